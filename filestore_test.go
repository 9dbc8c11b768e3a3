package media

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func init() {
	storerFactories = append(storerFactories, filestoreFactory{})
}

type filestoreFactory struct{}

func (filestoreFactory) NewStorer(t *testing.T) (Storer, error) {
	return NewFilestore(t.TempDir())
}

func TestFilestoreCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "blobs")
	if _, err := NewFilestore(root); err != nil {
		t.Fatalf("Unexpected error creating filestore: %s", err)
	}
	fi, err := os.Stat(filepath.Join(root, tempDirName))
	if err != nil {
		t.Fatalf("Expected temp dir to exist: %s", err)
	}
	if !fi.IsDir() {
		t.Errorf("Expected %s to be a directory", fi.Name())
	}
}

func TestFilestoreLeavesNoTempFiles(t *testing.T) {
	store, err := NewFilestore(t.TempDir())
	if err != nil {
		t.Fatalf("Unexpected error creating filestore: %s", err)
	}
	err = store.Upload(context.Background(), "abc.jpg", strings.NewReader("contents"))
	if err != nil {
		t.Fatalf("Unexpected error uploading: %s", err)
	}
	entries, err := ioutil.ReadDir(filepath.Join(store.Root, tempDirName))
	if err != nil {
		t.Fatalf("Unexpected error reading temp dir: %s", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected temp dir to be empty, found %d entries", len(entries))
	}
	b, err := ioutil.ReadFile(filepath.Join(store.Root, "abc.jpg"))
	if err != nil {
		t.Fatalf("Expected blob on disk: %s", err)
	}
	if string(b) != "contents" {
		t.Errorf("Expected %q on disk, got %q", "contents", b)
	}
}

func TestFilestoreUploadCancelled(t *testing.T) {
	store, err := NewFilestore(t.TempDir())
	if err != nil {
		t.Fatalf("Unexpected error creating filestore: %s", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Upload(ctx, "abc.jpg", strings.NewReader("x")); err == nil {
		t.Fatal("Expected error uploading with a cancelled context")
	}
	if _, err := os.Stat(filepath.Join(store.Root, "abc.jpg")); !os.IsNotExist(err) {
		t.Errorf("Expected no blob after a cancelled upload, got %v", err)
	}
}

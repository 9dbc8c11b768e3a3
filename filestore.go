package media

import (
	"context"
	"io"
	"os"
	"path/filepath"

	uuid "github.com/hashicorp/go-uuid"
	"github.com/pkg/errors"
)

const tempDirName = ".tmp"

// Filestore is a filesystem-based implementation of the Storer interface.
// Blobs live directly under Root, named by their storage key.
type Filestore struct {
	Root string
}

// NewFilestore creates root and its temp directory if needed and returns a
// ready-to-use Filestore.
func NewFilestore(root string) (Filestore, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(filepath.Join(root, tempDirName), 0755); err != nil {
		return Filestore{}, storageErr("creating blob root", root, err)
	}
	return Filestore{Root: root}, nil
}

func (s Filestore) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.Root, key), nil
}

// Upload writes data to a temporary file, syncs it and renames it over
// the final path, so readers only ever see a complete blob.
func (s Filestore) Upload(ctx context.Context, key string, data io.Reader) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := uuid.GenerateUUID()
	if err != nil {
		return storageErr("upload", key, err)
	}
	tmpPath := filepath.Join(s.Root, tempDirName, name)
	f, err := os.OpenFile(tmpPath, os.O_EXCL|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return storageErr("upload", key, err)
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return storageErr("upload", key, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return storageErr("upload", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return storageErr("upload", key, err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return storageErr("upload", key, err)
	}
	return nil
}

// Download opens the file named key for reading.
func (s Filestore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, storageErr("download", key, err)
	}
	return f, nil
}

// Delete removes the file named key. A missing file is ErrNotFound.
func (s Filestore) Delete(ctx context.Context, key string) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return storageErr("delete", key, err)
	}
	return nil
}

func (s Filestore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Size(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s Filestore) Size(ctx context.Context, key string) (int64, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, storageErr("stat", key, err)
	}
	if fi.IsDir() {
		return 0, ErrNotFound
	}
	return fi.Size(), nil
}

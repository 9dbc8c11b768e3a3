package media

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
)

func init() {
	storerFactories = append(storerFactories, cachedStorerFactory{})
}

type cachedStorerFactory struct{}

func (cachedStorerFactory) NewStorer(t *testing.T) (Storer, error) {
	m, err := NewMemstore()
	if err != nil {
		return nil, err
	}
	return NewCachedStorer(m, 4)
}

func TestCachedStorerServesFromCache(t *testing.T) {
	ctx := context.Background()
	backing, err := NewMemstore()
	if err != nil {
		t.Fatalf("Unexpected error creating memstore: %s", err)
	}
	cached, err := NewCachedStorer(backing, 4)
	if err != nil {
		t.Fatalf("Unexpected error creating cache: %s", err)
	}
	if err := cached.Upload(ctx, "a.jpg", strings.NewReader("hello")); err != nil {
		t.Fatalf("Unexpected error uploading: %s", err)
	}
	if b := readBlob(t, cached, "a.jpg"); string(b) != "hello" {
		t.Fatalf("Expected %q, got %q", "hello", b)
	}

	// remove behind the cache's back; the cached copy still answers
	if err := backing.Delete(ctx, "a.jpg"); err != nil {
		t.Fatalf("Unexpected error deleting from backing store: %s", err)
	}
	if b := readBlob(t, cached, "a.jpg"); string(b) != "hello" {
		t.Errorf("Expected cached %q, got %q", "hello", b)
	}
	exists, err := cached.Exists(ctx, "a.jpg")
	if err != nil || exists {
		t.Errorf("Expected Exists to consult the backing store, got %v, %v", exists, err)
	}
}

func TestCachedStorerInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	backing, err := NewMemstore()
	if err != nil {
		t.Fatalf("Unexpected error creating memstore: %s", err)
	}
	cached, err := NewCachedStorer(backing, 4)
	if err != nil {
		t.Fatalf("Unexpected error creating cache: %s", err)
	}
	if err := cached.Upload(ctx, "a.jpg", strings.NewReader("one")); err != nil {
		t.Fatalf("Unexpected error uploading: %s", err)
	}
	readBlob(t, cached, "a.jpg")
	if err := cached.Upload(ctx, "a.jpg", strings.NewReader("two")); err != nil {
		t.Fatalf("Unexpected error uploading: %s", err)
	}
	if b := readBlob(t, cached, "a.jpg"); string(b) != "two" {
		t.Errorf("Expected %q after overwrite, got %q", "two", b)
	}
	if err := cached.Delete(ctx, "a.jpg"); err != nil {
		t.Fatalf("Unexpected error deleting: %s", err)
	}
	if _, err := cached.Download(ctx, "a.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected %q after delete, got %v", ErrNotFound, err)
	}
}

func TestCachedStorerSkipsLargeBlobs(t *testing.T) {
	ctx := context.Background()
	backing, err := NewMemstore()
	if err != nil {
		t.Fatalf("Unexpected error creating memstore: %s", err)
	}
	cached, err := NewCachedStorer(backing, 4)
	if err != nil {
		t.Fatalf("Unexpected error creating cache: %s", err)
	}
	big := bytes.Repeat([]byte{7}, maxCachedBlobSize+10)
	if err := cached.Upload(ctx, "big.png", bytes.NewReader(big)); err != nil {
		t.Fatalf("Unexpected error uploading: %s", err)
	}
	if b := readBlob(t, cached, "big.png"); !bytes.Equal(b, big) {
		t.Fatalf("Expected %d bytes back, got %d", len(big), len(b))
	}
	if _, ok := cached.cache.Get("big.png"); ok {
		t.Error("Expected large blob not to be cached")
	}
}

// pausingStorer holds its first Download after the wrapped Storer has
// answered, until release is closed.
type pausingStorer struct {
	Storer

	once    sync.Once
	fetched chan struct{}
	release chan struct{}
}

func newPausingStorer(s Storer) *pausingStorer {
	return &pausingStorer{
		Storer:  s,
		fetched: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *pausingStorer) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := p.Storer.Download(ctx, key)
	p.once.Do(func() {
		close(p.fetched)
		<-p.release
	})
	return rc, err
}

func TestCachedStorerRacingWrites(t *testing.T) {
	type raceTest struct {
		write func(ctx context.Context, c *CachedStorer) error
		// want is the content expected afterwards, nil for a deleted key
		want []byte
	}
	table := map[string]raceTest{
		"delete": {
			write: func(ctx context.Context, c *CachedStorer) error {
				return c.Delete(ctx, "a.jpg")
			},
		},
		"overwrite": {
			write: func(ctx context.Context, c *CachedStorer) error {
				return c.Upload(ctx, "a.jpg", strings.NewReader("goodbye"))
			},
			want: []byte("goodbye"),
		},
	}
	for id, testcase := range table {
		id, testcase := id, testcase
		t.Run("ID="+id, func(t *testing.T) {
			ctx := testContext(t)
			backing, err := NewMemstore()
			if err != nil {
				t.Fatalf("Unexpected error creating memstore: %s", err)
			}
			if err := backing.Upload(ctx, "a.jpg", strings.NewReader("hello")); err != nil {
				t.Fatalf("Unexpected error uploading: %s", err)
			}
			paused := newPausingStorer(backing)
			cached, err := NewCachedStorer(paused, 4)
			if err != nil {
				t.Fatalf("Unexpected error creating cache: %s", err)
			}

			done := make(chan []byte)
			go func() {
				rc, err := cached.Download(ctx, "a.jpg")
				if err != nil {
					t.Errorf("Unexpected error from racing download: %s", err)
					done <- nil
					return
				}
				defer rc.Close()
				b, _ := io.ReadAll(rc)
				done <- b
			}()
			<-paused.fetched
			if err := testcase.write(ctx, cached); err != nil {
				t.Fatalf("Unexpected error writing: %s", err)
			}
			close(paused.release)
			if b := <-done; string(b) != "hello" {
				t.Errorf("Expected the racing download to see %q, got %q", "hello", b)
			}

			rc, err := cached.Download(ctx, "a.jpg")
			if testcase.want == nil {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("Expected %q for a deleted key, got %v", ErrNotFound, err)
				}
				if rc != nil {
					b, _ := io.ReadAll(rc)
					t.Errorf("Deleted blob still served: %q", b)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error downloading: %s", err)
			}
			defer rc.Close()
			if b, _ := io.ReadAll(rc); !bytes.Equal(b, testcase.want) {
				t.Errorf("Expected %q after the write, got %q", testcase.want, b)
			}
		})
	}
}

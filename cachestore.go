package media

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheEntries = 128
	// blobs larger than this are never cached
	maxCachedBlobSize = 1 << 20
)

// CachedStorer keeps recently downloaded small blobs in an LRU in front of
// another Storer. Blobs are immutable once ingested, so entries only need
// to be dropped when a key is uploaded again or deleted. Exists and Size
// always go to the wrapped Storer.
//
// Every Upload and Delete bumps gen before and after touching the wrapped
// Storer. A Download only fills the cache if gen did not move while it was
// reading, so a read racing a write never caches bytes the write replaced
// or removed.
type CachedStorer struct {
	Storer
	cache *lru.Cache[string, []byte]

	mu  sync.Mutex
	gen uint64
}

// NewCachedStorer wraps s with an LRU holding up to entries blobs.
func NewCachedStorer(s Storer, entries int) (*CachedStorer, error) {
	if entries <= 0 {
		entries = defaultCacheEntries
	}
	cache, err := lru.New[string, []byte](entries)
	if err != nil {
		return nil, err
	}
	return &CachedStorer{Storer: s, cache: cache}, nil
}

// invalidate drops key from the cache and moves gen forward.
func (c *CachedStorer) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Remove(key)
}

func (c *CachedStorer) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// fill caches b under key unless a write happened since gen was read.
func (c *CachedStorer) fill(key string, b []byte, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.cache.Add(key, b)
}

func (c *CachedStorer) Upload(ctx context.Context, key string, data io.Reader) error {
	c.invalidate(key)
	err := c.Storer.Upload(ctx, key, data)
	c.invalidate(key)
	return err
}

func (c *CachedStorer) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if b, ok := c.cache.Get(key); ok {
		return ioutil.NopCloser(bytes.NewReader(b)), nil
	}
	gen := c.generation()
	rc, err := c.Storer.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := ioutil.ReadAll(io.LimitReader(rc, maxCachedBlobSize+1))
	if err != nil {
		return nil, storageErr("download", key, err)
	}
	if len(b) > maxCachedBlobSize {
		// too big to cache; hand back what was read followed by the rest
		rest, err := ioutil.ReadAll(rc)
		if err != nil {
			return nil, storageErr("download", key, err)
		}
		return ioutil.NopCloser(bytes.NewReader(append(b, rest...))), nil
	}
	c.fill(key, b, gen)
	return ioutil.NopCloser(bytes.NewReader(b)), nil
}

func (c *CachedStorer) Delete(ctx context.Context, key string) error {
	c.invalidate(key)
	err := c.Storer.Delete(ctx, key)
	c.invalidate(key)
	return err
}

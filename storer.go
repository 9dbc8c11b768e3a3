package media

import (
	"context"
	"io"
	"time"
)

// Dependencies is a bundle of information that every non-trivial
// function will need access to, but which is not directly relevant
// to the main purpose of the function or request-scoped. Stores,
// the normalizer and metrics are passed around in Dependencies
// instead of living in package globals.
type Dependencies struct {
	Storer     Storer
	Metadata   MetadataStore
	Normalizer *Normalizer
	Config     Config
	Metrics    *Metrics

	// Now is used to stamp new records. Defaults to time.Now.
	Now func() time.Time
}

func (d Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// Storer is the blob-storage interface. Blobs are addressed by storage
// key; keys are validated with ValidateKey by every implementation.
type Storer interface {
	// Upload writes the full contents of data to key, replacing any
	// existing blob. The blob must be durable before Upload returns nil.
	Upload(ctx context.Context, key string, data io.Reader) error

	// Download returns the contents of the blob at key, or ErrNotFound.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the blob at key. Deleting a missing key returns
	// ErrNotFound so callers can treat it as already gone.
	Delete(ctx context.Context, key string) error

	// Exists reports whether a blob is stored at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Size returns the stored byte length of the blob at key, or ErrNotFound.
	Size(ctx context.Context, key string) (int64, error)
}

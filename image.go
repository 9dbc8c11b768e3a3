package media

import (
	"context"
	"io"
	"sort"
	"time"
)

// An UploadedImage is the metadata record of one ingested image. It does
// not contain the image bytes; those live in the Storer under Key.
type UploadedImage struct {
	ID               string    `json:"id"`
	Key              string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	URL              string    `json:"url"`
	Size             int64     `json:"size"`
	CreatedAt        time.Time `json:"createdAt"`
}

// IncomingImage is an upload as handed over by the transport layer.
// ContentType and Size are the client's declarations and are checked
// before Data is read.
type IncomingImage struct {
	Filename    string
	ContentType string
	Size        int64
	Data        io.ReadCloser
}

// MetadataStore persists UploadedImage records keyed by ID.
type MetadataStore interface {
	// Insert adds img. It returns ErrDuplicateKey if the id or storage
	// key is already in use.
	Insert(ctx context.Context, img UploadedImage) error

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (UploadedImage, error)

	// List returns every record, newest first.
	List(ctx context.Context) ([]UploadedImage, error)

	// Delete removes the record with the given id. It returns ErrNotFound
	// when no record was removed, which makes concurrent deletes of the
	// same id safe: exactly one caller succeeds.
	Delete(ctx context.Context, id string) error
}

func sortNewestFirst(imgs []UploadedImage) {
	sort.SliceStable(imgs, func(i, j int) bool {
		if !imgs[i].CreatedAt.Equal(imgs[j].CreatedAt) {
			return imgs[i].CreatedAt.After(imgs[j].CreatedAt)
		}
		return imgs[i].ID > imgs[j].ID
	})
}

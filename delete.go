package media

import (
	"context"

	"github.com/pkg/errors"
)

// Delete removes the image with the given id. The blob goes first and the
// metadata record second, so a record never outlives its blob. A blob
// that is already missing counts as deleted; any other storage failure
// aborts with the record left in place.
func Delete(ctx context.Context, d Dependencies, id string) error {
	logger := loggerFrom(ctx).WithField("id", id)

	rec, err := d.Metadata.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		d.Metrics.deleted("not_found")
		return ErrNotFound
	}
	if err != nil {
		logger.WithError(err).Error("error looking up image")
		d.Metrics.deleted("failed")
		return storageErr("lookup", id, err)
	}
	logger = logger.WithField("key", rec.Key)

	err = d.Storer.Delete(ctx, rec.Key)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		logger.Info("blob already gone")
	default:
		logger.WithError(err).Error("error deleting blob, keeping metadata")
		d.Metrics.deleted("failed")
		return storageErr("delete blob", rec.Key, err)
	}

	err = d.Metadata.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// a concurrent delete removed the record first
		d.Metrics.deleted("not_found")
		return ErrNotFound
	}
	if err != nil {
		logger.WithError(err).Error("error deleting metadata")
		d.Metrics.deleted("failed")
		return storageErr("delete metadata", id, err)
	}
	logger.Info("deleted image")
	d.Metrics.deleted("ok")
	return nil
}

// List returns every stored image, newest first. The result is not
// paginated.
func List(ctx context.Context, d Dependencies) ([]UploadedImage, error) {
	imgs, err := d.Metadata.List(ctx)
	if err != nil {
		loggerFrom(ctx).WithError(err).Error("error listing images")
		return nil, storageErr("list", "", err)
	}
	return imgs, nil
}

package media

import (
	"bytes"
	"context"
	"fmt"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	"github.com/pkg/errors"
	yall "yall.in"
)

// Ingest validates an upload, writes it to the Storer, normalizes it in
// place and records its metadata. It returns the stored record.
//
// The Storer and the MetadataStore share no transaction. Once the blob is
// written, any later failure deletes it again before the error is
// returned; if that delete fails too the blob is logged as leaked. Ingest
// never reports success without a metadata record.
func Ingest(ctx context.Context, d Dependencies, in IncomingImage) (UploadedImage, error) {
	started := time.Now()
	logger := loggerFrom(ctx).WithField("storer", fmt.Sprintf("%T", d.Storer))
	logger = logger.WithField("original_filename", in.Filename)
	logger = logger.WithField("content_type", in.ContentType)
	logger = logger.WithField("declared_size", in.Size)

	logger.Info("ingesting")
	if in.Data != nil {
		defer in.Data.Close()
	}

	img, err := ingest(ctx, d, in, logger)
	switch {
	case err == nil:
		d.Metrics.ingested("ok", started)
	case IsValidation(err):
		d.Metrics.ingested("rejected", started)
	default:
		d.Metrics.ingested("failed", started)
	}
	return img, err
}

func ingest(ctx context.Context, d Dependencies, in IncomingImage, logger *yall.Logger) (UploadedImage, error) {
	maxSize := d.Config.MaxUploadSize

	// validating
	if err := Validate(in.ContentType, in.Size, maxSize); err != nil {
		logger.WithError(err).Info("rejected upload")
		return UploadedImage{}, err
	}
	if in.Data == nil {
		return UploadedImage{}, ValidationError{Reason: "no file"}
	}
	data, err := readPayload(in.Data, maxSize)
	if err != nil {
		logger.WithError(err).Info("rejected upload while reading")
		if IsValidation(err) {
			return UploadedImage{}, err
		}
		return UploadedImage{}, errors.Wrap(err, "reading upload")
	}
	detected, err := SniffFormat(data)
	if err != nil {
		logger.WithError(err).Info("rejected upload after sniffing")
		return UploadedImage{}, err
	}
	if claimed := ExtensionFromFilename(in.Filename); claimed != "" && claimed != detected && !(claimed == "jpeg" && detected == "jpg") {
		logger.WithField("claimed", claimed).WithField("detected", detected).Debug("filename extension does not match content")
	}

	// writing
	id, err := uuid.GenerateUUID()
	if err != nil {
		return UploadedImage{}, errors.Wrap(err, "generating id")
	}
	ext := detected
	if d.Normalizer != nil {
		ext = normalizedExtension
	}
	key, err := NewStorageKey(ext)
	if err != nil {
		return UploadedImage{}, err
	}
	logger = logger.WithField("id", id).WithField("key", key)
	logger.WithField("size", len(data)).Debug("writing blob")
	if err := d.Storer.Upload(ctx, key, bytes.NewReader(data)); err != nil {
		logger.WithError(err).Error("error writing blob")
		if ctx.Err() != nil {
			// a cancelled write may have left something behind
			compensate(ctx, d, logger, key)
		}
		return UploadedImage{}, storageErr("upload", key, err)
	}

	// normalizing
	if d.Normalizer != nil {
		err := d.Normalizer.Normalize(ctx, d.Storer, key)
		if err != nil {
			d.Metrics.normalizeFailed()
			logger.WithError(err).Error("normalization failed, keeping original bytes")
			if detected != normalizedExtension {
				key, err = relocate(ctx, d, logger, key, withExtension(keyToken(key), detected), data)
				if err != nil {
					return UploadedImage{}, err
				}
				logger = logger.WithField("key", key)
			}
		}
	}

	// recording
	if err := ctx.Err(); err != nil {
		logger.WithError(err).Info("cancelled before recording")
		compensate(ctx, d, logger, key)
		return UploadedImage{}, err
	}
	size, err := d.Storer.Size(ctx, key)
	if err != nil {
		logger.WithError(err).Error("error reading back blob size")
		compensate(ctx, d, logger, key)
		return UploadedImage{}, storageErr("stat", key, err)
	}
	rec := UploadedImage{
		ID:               id,
		Key:              key,
		OriginalFilename: in.Filename,
		URL:              d.Config.URLFor(key),
		Size:             size,
		CreatedAt:        d.now(),
	}
	if err := d.Metadata.Insert(ctx, rec); err != nil {
		logger.WithError(err).Error("error recording metadata")
		compensate(ctx, d, logger, key)
		return UploadedImage{}, storageErr("record metadata", key, err)
	}
	logger.WithField("size", size).Info("completed upload")
	return rec, nil
}

// relocate moves the unnormalized bytes to a key whose extension matches
// them, so a key never claims a format its blob is not in.
func relocate(ctx context.Context, d Dependencies, logger *yall.Logger, from, to string, data []byte) (string, error) {
	logger.WithField("to", to).Debug("relocating unnormalized blob")
	if err := d.Storer.Upload(ctx, to, bytes.NewReader(data)); err != nil {
		logger.WithError(err).Error("error relocating unnormalized blob")
		compensate(ctx, d, logger, from)
		return "", storageErr("relocate", to, err)
	}
	if err := d.Storer.Delete(ctx, from); err != nil && !errors.Is(err, ErrNotFound) {
		logger.WithError(err).WithField("leaked_key", from).Error("leaked blob: could not remove key after relocation")
		d.Metrics.blobLeaked()
	}
	return to, nil
}

// compensate deletes a blob that will not get a metadata record. It runs
// even if ctx was cancelled.
func compensate(ctx context.Context, d Dependencies, logger *yall.Logger, key string) {
	ctx = context.WithoutCancel(ctx)
	err := d.Storer.Delete(ctx, key)
	if err == nil || errors.Is(err, ErrNotFound) {
		logger.Debug("removed blob without metadata")
		return
	}
	logger.WithError(err).WithField("leaked_key", key).Error("leaked blob: compensation failed, needs out-of-band cleanup")
	d.Metrics.blobLeaked()
}

package media

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Open builds the Dependencies described by cfg: it validates cfg, creates
// the blob root, opens the metadata database and brings its schema up to
// date. It is meant to be called once at startup. The returned Closer
// releases the metadata store.
func Open(ctx context.Context, cfg Config, reg prometheus.Registerer) (Dependencies, io.Closer, error) {
	noop := closerFunc(func() error { return nil })
	if err := cfg.Validate(); err != nil {
		return Dependencies{}, noop, err
	}
	logger := loggerFrom(ctx)

	var storer Storer
	switch cfg.BlobBackend {
	case BlobBackendFilesystem:
		fs, err := NewFilestore(cfg.BlobRoot)
		if err != nil {
			return Dependencies{}, noop, err
		}
		storer = fs
	case BlobBackendS3:
		s, err := NewS3Store(cfg.S3Config)
		if err != nil {
			return Dependencies{}, noop, err
		}
		storer = s
	case BlobBackendMemory:
		m, err := NewMemstore()
		if err != nil {
			return Dependencies{}, noop, err
		}
		storer = m
	}
	if cfg.CacheEntries > 0 {
		c, err := NewCachedStorer(storer, cfg.CacheEntries)
		if err != nil {
			return Dependencies{}, noop, err
		}
		storer = c
	}

	var meta MetadataStore
	closer := noop
	switch cfg.MetadataBackend {
	case MetadataBackendSQLite:
		s, err := OpenSQLiteMetadata(ctx, SQLiteDSN(cfg.DatabasePath))
		if err != nil {
			return Dependencies{}, noop, err
		}
		meta = s
		closer = closerFunc(s.Close)
	case MetadataBackendMemory:
		m, err := NewMemMetadata()
		if err != nil {
			return Dependencies{}, noop, err
		}
		meta = m
	}

	metrics, err := NewMetrics(reg)
	if err != nil {
		closer.Close()
		return Dependencies{}, noop, err
	}

	if cfg.BaseAddressIsLoopback() {
		logger.WithField("base_address", cfg.BaseAddress).Info("base address is a loopback host; image URLs will not resolve for remote clients")
	}
	logger.WithField("blob_backend", cfg.BlobBackend).WithField("metadata_backend", cfg.MetadataBackend).Debug("opened stores")

	return Dependencies{
		Storer:     storer,
		Metadata:   meta,
		Normalizer: NewNormalizer(cfg.MaxWidth, cfg.MaxHeight, cfg.Quality, cfg.NormalizeWorkers),
		Config:     cfg,
		Metrics:    metrics,
	}, closer, nil
}

package media

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// faultyStorer wraps a Storer and fails selected operations.
type faultyStorer struct {
	Storer

	mu         sync.Mutex
	failUpload error
	failDelete error
	failSize   error
	failExists error

	// uploadSuffix and deleteSuffix, when set, limit failUpload and
	// failDelete to keys ending in them.
	uploadSuffix string
	deleteSuffix string
}

func (f *faultyStorer) set(fn func(*faultyStorer)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *faultyStorer) fault(which *error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *which
}

func (f *faultyStorer) faultFor(which *error, suffix *string, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !strings.HasSuffix(key, *suffix) {
		return nil
	}
	return *which
}

func (f *faultyStorer) Upload(ctx context.Context, key string, data io.Reader) error {
	if err := f.faultFor(&f.failUpload, &f.uploadSuffix, key); err != nil {
		return err
	}
	return f.Storer.Upload(ctx, key, data)
}

func (f *faultyStorer) Delete(ctx context.Context, key string) error {
	if err := f.faultFor(&f.failDelete, &f.deleteSuffix, key); err != nil {
		return err
	}
	return f.Storer.Delete(ctx, key)
}

func (f *faultyStorer) Size(ctx context.Context, key string) (int64, error) {
	if err := f.fault(&f.failSize); err != nil {
		return 0, err
	}
	return f.Storer.Size(ctx, key)
}

func (f *faultyStorer) Exists(ctx context.Context, key string) (bool, error) {
	if err := f.fault(&f.failExists); err != nil {
		return false, err
	}
	return f.Storer.Exists(ctx, key)
}

// faultyMetadata wraps a MetadataStore and fails selected operations.
type faultyMetadata struct {
	MetadataStore

	failInsert error
	failDelete error
	failList   error
}

func (f *faultyMetadata) Insert(ctx context.Context, img UploadedImage) error {
	if f.failInsert != nil {
		return f.failInsert
	}
	return f.MetadataStore.Insert(ctx, img)
}

func (f *faultyMetadata) Delete(ctx context.Context, id string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.MetadataStore.Delete(ctx, id)
}

func (f *faultyMetadata) List(ctx context.Context) ([]UploadedImage, error) {
	if f.failList != nil {
		return nil, f.failList
	}
	return f.MetadataStore.List(ctx)
}

type testEnv struct {
	deps  Dependencies
	blobs *Memstore
	meta  *MemMetadata
	store *faultyStorer
	rec   *faultyMetadata
}

var testNow = time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	blobs, err := NewMemstore()
	if err != nil {
		t.Fatalf("Unexpected error creating memstore: %s", err)
	}
	meta, err := NewMemMetadata()
	if err != nil {
		t.Fatalf("Unexpected error creating metadata store: %s", err)
	}
	metrics, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("Unexpected error creating metrics: %s", err)
	}
	cfg := DefaultConfig()
	cfg.BaseAddress = "https://media.example.com"
	store := &faultyStorer{Storer: blobs}
	rec := &faultyMetadata{MetadataStore: meta}
	return &testEnv{
		deps: Dependencies{
			Storer:     store,
			Metadata:   rec,
			Normalizer: NewNormalizer(cfg.MaxWidth, cfg.MaxHeight, cfg.Quality, 2),
			Config:     cfg,
			Metrics:    metrics,
			Now:        func() time.Time { return testNow },
		},
		blobs: blobs,
		meta:  meta,
		store: store,
		rec:   rec,
	}
}

// blobKeys lists every key in the Memstore, sorted.
func (e *testEnv) blobKeys(t *testing.T) []string {
	t.Helper()
	txn := e.blobs.db.Txn(false)
	it, err := txn.Get("blob", "id")
	if err != nil {
		t.Fatalf("Unexpected error listing blobs: %s", err)
	}
	var keys []string
	for obj := it.Next(); obj != nil; obj = it.Next() {
		keys = append(keys, obj.(*Memblob).Key)
	}
	sort.Strings(keys)
	return keys
}

func (e *testEnv) records(t *testing.T) []UploadedImage {
	t.Helper()
	imgs, err := e.meta.List(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error listing records: %s", err)
	}
	return imgs
}

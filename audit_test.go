package media

import (
	"testing"

	"github.com/pkg/errors"
)

func TestAudit(t *testing.T) {
	ctx := testContext(t)
	env := newTestEnv(t)
	kept := ingestRedPixel(t, env)
	lost := ingestRedPixel(t, env)
	if err := env.blobs.Delete(ctx, lost.Key); err != nil {
		t.Fatalf("Unexpected error removing blob: %s", err)
	}

	report, err := Audit(ctx, env.deps, false)
	if err != nil {
		t.Fatalf("Unexpected error auditing: %s", err)
	}
	if report.Checked != 2 {
		t.Errorf("Expected 2 records checked, got %d", report.Checked)
	}
	if len(report.Dangling) != 1 || report.Dangling[0].ID != lost.ID {
		t.Errorf("Expected %s to be dangling, got %+v", lost.ID, report.Dangling)
	}
	if report.Pruned != 0 {
		t.Errorf("Expected nothing pruned, got %d", report.Pruned)
	}
	if recs := env.records(t); len(recs) != 2 {
		t.Errorf("Expected both records to remain without prune, found %d", len(recs))
	}

	report, err = Audit(ctx, env.deps, true)
	if err != nil {
		t.Fatalf("Unexpected error auditing: %s", err)
	}
	if report.Pruned != 1 {
		t.Errorf("Expected 1 record pruned, got %d", report.Pruned)
	}
	recs := env.records(t)
	if len(recs) != 1 || recs[0].ID != kept.ID {
		t.Errorf("Expected only %s to remain, got %+v", kept.ID, recs)
	}
}

func TestAuditStorageError(t *testing.T) {
	ctx := testContext(t)
	env := newTestEnv(t)
	ingestRedPixel(t, env)
	env.store.set(func(f *faultyStorer) { f.failExists = errors.New("bucket unreachable") })

	if _, err := Audit(ctx, env.deps, true); !IsStorage(err) {
		t.Errorf("Expected a StorageError, got %v", err)
	}
	if recs := env.records(t); len(recs) != 1 {
		t.Errorf("Expected the record to remain, found %d", len(recs))
	}
}

package media

import (
	"context"

	"github.com/pkg/errors"
)

// AuditReport is the result of Audit.
type AuditReport struct {
	Checked  int
	Dangling []UploadedImage
	Pruned   int
}

// Audit checks that every metadata record still has its blob. Records
// whose blob is missing are reported, and removed when prune is set.
func Audit(ctx context.Context, d Dependencies, prune bool) (AuditReport, error) {
	logger := loggerFrom(ctx)
	var report AuditReport

	imgs, err := d.Metadata.List(ctx)
	if err != nil {
		return report, storageErr("list", "", err)
	}
	for _, img := range imgs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		ok, err := d.Storer.Exists(ctx, img.Key)
		if err != nil {
			return report, storageErr("exists", img.Key, err)
		}
		if ok {
			continue
		}
		logger.WithField("id", img.ID).WithField("key", img.Key).Info("record without blob")
		report.Dangling = append(report.Dangling, img)
		if !prune {
			continue
		}
		err = d.Metadata.Delete(ctx, img.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return report, storageErr("prune", img.ID, err)
		}
		report.Pruned++
	}
	return report, nil
}

package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"math"
	"runtime"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	// registers the webp decoder with image.Decode
	_ "golang.org/x/image/webp"
)

// normalizedExtension is the extension of the single output format the
// Normalizer encodes to.
const normalizedExtension = "jpg"

// Normalizer downscales and re-encodes stored images in place. Decoding a
// 5 MiB upload can take a lot of memory, so at most Workers images are
// processed at once.
type Normalizer struct {
	MaxWidth  int
	MaxHeight int
	Quality   int

	sem *semaphore.Weighted
}

// NewNormalizer returns a Normalizer fitting images into maxWidth x
// maxHeight and encoding at quality. workers <= 0 means GOMAXPROCS.
func NewNormalizer(maxWidth, maxHeight, quality, workers int) *Normalizer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Normalizer{
		MaxWidth:  maxWidth,
		MaxHeight: maxHeight,
		Quality:   quality,
		sem:       semaphore.NewWeighted(int64(workers)),
	}
}

// Normalize decodes the blob at key, flattens and downscales it, and
// overwrites it with the JPEG encoding of the result. On any error the
// blob at key is left as it was.
func (n *Normalizer) Normalize(ctx context.Context, s Storer, key string) error {
	log := loggerFrom(ctx).WithField("key", key)

	if err := n.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer n.sem.Release(1)

	rc, err := s.Download(ctx, key)
	if err != nil {
		return errors.Wrap(err, "reading blob to normalize")
	}
	img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
	rc.Close()
	if err != nil {
		return errors.Wrap(err, "decoding image")
	}
	bounds := img.Bounds()
	out := n.Transform(img)
	log.WithField("from", bounds.Size().String()).WithField("to", out.Bounds().Size().String()).Debug("normalizing")

	var buf bytes.Buffer
	err = imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(n.Quality))
	if err != nil {
		return errors.Wrap(err, "encoding image")
	}
	if err := s.Upload(ctx, key, &buf); err != nil {
		return errors.Wrap(err, "writing normalized image")
	}
	return nil
}

// Transform flattens transparency and palettes onto white and downscales
// img to fit the configured bounds. It never upscales.
func (n *Normalizer) Transform(img image.Image) image.Image {
	img = flatten(img)
	b := img.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), n.MaxWidth, n.MaxHeight)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

func flatten(img image.Image) image.Image {
	_, paletted := img.(*image.Paletted)
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() && !paletted {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// FitWithin returns the dimensions of a w x h image scaled down by
// min(maxW/w, maxH/h), rounded to the nearest pixel. Images already
// inside the bounds keep their size.
func FitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	if scale >= 1 {
		return w, h
	}
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

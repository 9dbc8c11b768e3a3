package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io/ioutil"
	"os"
	"testing"

	yall "yall.in"
	"yall.in/colour"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	log := yall.New(colour.New(os.Stdout, yall.Debug))
	return yall.InContext(context.Background(), log)
}

func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Unexpected error encoding png: %s", err)
	}
	return buf.Bytes()
}

// redPixelPNG is a 1x1 opaque red PNG.
func redPixelPNG(t *testing.T) []byte {
	return encodePNG(t, solidImage(1, 1, color.NRGBA{R: 255, A: 255}))
}

func incoming(name, contentType string, data []byte) IncomingImage {
	return IncomingImage{
		Filename:    name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        ioutil.NopCloser(bytes.NewReader(data)),
	}
}

func readBlob(t *testing.T, s Storer, key string) []byte {
	t.Helper()
	rc, err := s.Download(context.Background(), key)
	if err != nil {
		t.Fatalf("Unexpected error downloading %q: %s", key, err)
	}
	defer rc.Close()
	b, err := ioutil.ReadAll(rc)
	if err != nil {
		t.Fatalf("Unexpected error reading %q: %s", key, err)
	}
	return b
}

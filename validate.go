package media

import (
	"bytes"
	"io"
	"mime"
	"strings"

	"gitlab.com/paddycarver/magic-number-checker/checker"
)

const (
	reasonNotAnImage = "not an image"
	reasonTooLarge   = "too large"
)

// supportedFormats maps the MIME types accepted for upload to the
// extension stored for them.
var supportedFormats = map[string]string{
	"image/gif":  "gif",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Validate checks the client's declarations for an upload before anything
// is read or written.
func Validate(contentType string, declaredSize, maxSize int64) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return ValidationError{Reason: reasonNotAnImage}
	}
	if declaredSize > maxSize {
		return ValidationError{Reason: reasonTooLarge}
	}
	return nil
}

// SniffFormat looks at the magic number of data and returns the stored
// extension for it. Payloads that are not one of the supported image
// formats are a ValidationError.
func SniffFormat(data []byte) (string, error) {
	fileTypeWriter := &checker.MagicNumberChecker{
		SupportedMIMEs: []string{
			"image/gif",
			"image/jpeg",
			"image/jpg",
			"image/png",
			"image/webp",
		},
	}
	if _, err := io.Copy(fileTypeWriter, bytes.NewReader(data)); err != nil {
		return "", ValidationError{Reason: reasonNotAnImage}
	}
	if err := fileTypeWriter.Close(); err != nil {
		return "", ValidationError{Reason: reasonNotAnImage}
	}
	ext, ok := supportedFormats[fileTypeWriter.MatchedMIME]
	if !ok {
		return "", ValidationError{Reason: reasonNotAnImage}
	}
	return ext, nil
}

// readPayload reads at most maxSize bytes from r. A longer payload is
// rejected regardless of what the client declared.
func readPayload(r io.Reader, maxSize int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, err
	}
	if n > maxSize {
		return nil, ValidationError{Reason: reasonTooLarge}
	}
	return buf.Bytes(), nil
}

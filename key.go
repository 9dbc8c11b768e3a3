package media

import (
	"path"
	"strings"

	uuid "github.com/hashicorp/go-uuid"
	"github.com/pkg/errors"
)

const maxKeyLength = 255

// ErrInvalidKey is returned for storage keys that could escape the blob
// namespace.
var ErrInvalidKey = errors.New("invalid storage key")

// NewStorageKey returns a fresh storage key made of a random 128-bit UUID
// and the lower-cased extension ext. No lookup is done against any store;
// the id space is large enough that a collision is treated as impossible.
func NewStorageKey(ext string) (string, error) {
	token, err := uuid.GenerateUUID()
	if err != nil {
		return "", errors.Wrap(err, "generating storage key")
	}
	return withExtension(token, ext), nil
}

func withExtension(token, ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return token
	}
	return token + "." + ext
}

// keyToken returns key without its extension.
func keyToken(key string) string {
	if i := strings.LastIndexByte(key, '.'); i > 0 {
		return key[:i]
	}
	return key
}

// ExtensionFromFilename returns the lower-cased text after the last dot of
// a client supplied filename, or "" when there is none. It is only used for
// logging; storage keys never take their extension from client input.
func ExtensionFromFilename(name string) string {
	ext := path.Ext(strings.ReplaceAll(name, "\\", "/"))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ValidateKey rejects keys that contain path separators, parent directory
// sequences, NUL bytes or a leading dot, independently of how the key was
// produced.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return errors.Wrap(ErrInvalidKey, "empty key")
	case len(key) > maxKeyLength:
		return errors.Wrap(ErrInvalidKey, "key too long")
	case strings.ContainsAny(key, "/\\\x00"):
		return errors.Wrapf(ErrInvalidKey, "%q contains a path separator", key)
	case strings.Contains(key, ".."):
		return errors.Wrapf(ErrInvalidKey, "%q contains a parent directory sequence", key)
	case strings.HasPrefix(key, "."):
		return errors.Wrapf(ErrInvalidKey, "%q starts with a dot", key)
	}
	return nil
}

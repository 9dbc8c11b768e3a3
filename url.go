package media

import "strings"

// ResolveURL returns the public URL of the blob stored under key.
func ResolveURL(baseAddress, prefix, key string) string {
	return strings.TrimRight(baseAddress, "/") + "/" + strings.Trim(prefix, "/") + "/" + key
}

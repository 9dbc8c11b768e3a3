package media

import (
	"net"
	"net/url"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

const (
	BlobBackendFilesystem = "filesystem"
	BlobBackendS3         = "s3"
	BlobBackendMemory     = "memory"

	MetadataBackendSQLite = "sqlite"
	MetadataBackendMemory = "memory"
)

// Config is everything Open needs to assemble the service. It is built
// once at startup and passed down explicitly.
type Config struct {
	// BaseAddress is the scheme and host clients use to reach the
	// service, e.g. https://example.com. It is not derived from requests.
	BaseAddress       string `mapstructure:"base_address"`
	PublicPrefix      string `mapstructure:"public_prefix"`
	StrictBaseAddress bool   `mapstructure:"strict_base_address"`

	MaxWidth      int   `mapstructure:"max_width"`
	MaxHeight     int   `mapstructure:"max_height"`
	Quality       int   `mapstructure:"quality"`
	MaxUploadSize int64 `mapstructure:"max_upload_size"`

	Listen string `mapstructure:"listen"`
	Debug  bool   `mapstructure:"debug"`

	BlobBackend string   `mapstructure:"blob_backend"`
	BlobRoot    string   `mapstructure:"blob_root"`
	S3Config    `mapstructure:",squash"`

	MetadataBackend string `mapstructure:"metadata_backend"`
	DatabasePath    string `mapstructure:"database_path"`

	// CacheEntries sizes the LRU in front of the blob store; 0 disables it.
	CacheEntries     int `mapstructure:"cache_entries"`
	NormalizeWorkers int `mapstructure:"normalize_workers"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		BaseAddress:      "http://localhost:8001",
		PublicPrefix:     "uploads",
		MaxWidth:         1200,
		MaxHeight:        800,
		Quality:          85,
		MaxUploadSize:    5 << 20,
		Listen:           ":8001",
		BlobBackend:      BlobBackendFilesystem,
		BlobRoot:         "uploads",
		MetadataBackend:  MetadataBackendSQLite,
		DatabasePath:     "media.db",
		CacheEntries:     defaultCacheEntries,
		NormalizeWorkers: runtime.GOMAXPROCS(0),
	}
}

// Validate checks cfg for values that would produce broken uploads or
// unreachable URLs.
func (cfg Config) Validate() error {
	u, err := url.Parse(cfg.BaseAddress)
	if err != nil {
		return errors.Wrap(err, "base_address")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("base_address %q must be an absolute http(s) URL", cfg.BaseAddress)
	}
	if u.Host == "" {
		return errors.Errorf("base_address %q has no host", cfg.BaseAddress)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return errors.Errorf("base_address %q must not carry a query or fragment", cfg.BaseAddress)
	}
	if cfg.StrictBaseAddress && cfg.BaseAddressIsLoopback() {
		return errors.Errorf("base_address %q points at a loopback host, which remote clients cannot reach", cfg.BaseAddress)
	}
	if strings.Trim(cfg.PublicPrefix, "/") == "" {
		return errors.New("public_prefix must not be empty")
	}
	if strings.Contains(strings.Trim(cfg.PublicPrefix, "/"), "/") {
		return errors.Errorf("public_prefix %q must be a single path segment", cfg.PublicPrefix)
	}
	switch strings.Trim(cfg.PublicPrefix, "/") {
	case "api", "healthz", "metrics":
		return errors.Errorf("public_prefix %q collides with a built-in route", cfg.PublicPrefix)
	}
	if cfg.MaxWidth < 1 || cfg.MaxHeight < 1 {
		return errors.New("max_width and max_height must be positive")
	}
	if cfg.Quality < 1 || cfg.Quality > 100 {
		return errors.Errorf("quality %d must be between 1 and 100", cfg.Quality)
	}
	if cfg.MaxUploadSize < 1 {
		return errors.New("max_upload_size must be positive")
	}
	switch cfg.BlobBackend {
	case BlobBackendFilesystem:
		if cfg.BlobRoot == "" {
			return errors.New("blob_root is required for the filesystem backend")
		}
	case BlobBackendS3:
		if cfg.S3Config.Bucket == "" {
			return errors.New("s3_bucket is required for the s3 backend")
		}
	case BlobBackendMemory:
	default:
		return errors.Errorf("unknown blob_backend %q", cfg.BlobBackend)
	}
	switch cfg.MetadataBackend {
	case MetadataBackendSQLite:
		if cfg.DatabasePath == "" {
			return errors.New("database_path is required for the sqlite backend")
		}
	case MetadataBackendMemory:
	default:
		return errors.Errorf("unknown metadata_backend %q", cfg.MetadataBackend)
	}
	if cfg.CacheEntries < 0 {
		return errors.New("cache_entries must not be negative")
	}
	return nil
}

// BaseAddressIsLoopback reports whether BaseAddress names localhost or a
// loopback IP. URLs built from such an address only work on the server
// itself.
func (cfg Config) BaseAddressIsLoopback() bool {
	u, err := url.Parse(cfg.BaseAddress)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// URLFor returns the public URL of key under cfg.
func (cfg Config) URLFor(key string) string {
	return ResolveURL(cfg.BaseAddress, cfg.PublicPrefix, key)
}

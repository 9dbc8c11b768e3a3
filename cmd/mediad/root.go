package main

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	yall "yall.in"
	"yall.in/colour"

	"tangl.es/code/media"
)

type rootOptions struct {
	configFile string
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: newViper()}
	cmd := &cobra.Command{
		Use:           "mediad",
		Short:         "Image upload, normalization and serving service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml); environment variables prefixed MEDIA_ override it")
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newAuditCmd(opts))
	return cmd
}

// newViper returns a viper instance reading MEDIA_* environment variables,
// with every key defaulted so AutomaticEnv can see it.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MEDIA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	d := media.DefaultConfig()
	v.SetDefault("base_address", d.BaseAddress)
	v.SetDefault("public_prefix", d.PublicPrefix)
	v.SetDefault("strict_base_address", d.StrictBaseAddress)
	v.SetDefault("max_width", d.MaxWidth)
	v.SetDefault("max_height", d.MaxHeight)
	v.SetDefault("quality", d.Quality)
	v.SetDefault("max_upload_size", d.MaxUploadSize)
	v.SetDefault("listen", d.Listen)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("blob_backend", d.BlobBackend)
	v.SetDefault("blob_root", d.BlobRoot)
	v.SetDefault("s3_bucket", "")
	v.SetDefault("s3_region", "")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_access_key_id", "")
	v.SetDefault("s3_secret_access_key", "")
	v.SetDefault("s3_prefix", "")
	v.SetDefault("metadata_backend", d.MetadataBackend)
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("cache_entries", d.CacheEntries)
	v.SetDefault("normalize_workers", d.NormalizeWorkers)
	return v
}

func (o *rootOptions) loadConfig() (media.Config, error) {
	if o.configFile != "" {
		o.v.SetConfigFile(o.configFile)
		if err := o.v.ReadInConfig(); err != nil {
			return media.Config{}, errors.Wrapf(err, "reading config file %s", o.configFile)
		}
	}
	var cfg media.Config
	if err := o.v.Unmarshal(&cfg); err != nil {
		return media.Config{}, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return media.Config{}, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func newLogger(debug bool) *yall.Logger {
	level := yall.Info
	if debug {
		level = yall.Debug
	}
	return yall.New(colour.New(os.Stderr, level))
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rendis/ambrosia/internal/export"
	"github.com/rendis/ambrosia/internal/janitor"
	"github.com/rendis/ambrosia/internal/snippets"
	"github.com/rendis/ambrosia/internal/tracking"
	"github.com/rendis/ambrosia/internal/transport"
)

// Config holds all ambrosia configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath         string                     `mapstructure:"db_path"`
	LogLevel       string                     `mapstructure:"log_level"`
	LogFormat      string                     `mapstructure:"log_format"`
	PoolSize       int                        `mapstructure:"pool_size"`
	SnippetStore   string                     `mapstructure:"snippet_store"`
	BlobRoot       string                     `mapstructure:"blob_root"`
	ArtifactBucket string                     `mapstructure:"artifact_bucket"`
	SnippetBucket  string                     `mapstructure:"snippet_bucket"`
	TrackingTTL    time.Duration              `mapstructure:"tracking_ttl"`
	CacheTTL       time.Duration              `mapstructure:"cache_ttl"`
	PurgeSchedule  string                     `mapstructure:"purge_schedule"`
	RenderFilter   string                     `mapstructure:"render_filter"`
	CoursewareFile string                     `mapstructure:"courseware_file"`
	RenderDir      string                     `mapstructure:"render_dir"`
	Redelivery     transport.RedeliveryPolicy `mapstructure:"redelivery"`
}

func ambrosiaDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ambrosia"
	}
	return filepath.Join(home, ".ambrosia")
}

func settingsPath() string {
	return filepath.Join(ambrosiaDir(), "settings.json")
}

func setDefaults(v *viper.Viper) {
	policy := transport.DefaultRedeliveryPolicy()
	v.SetDefault("db_path", filepath.Join(ambrosiaDir(), "ambrosia.db"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("pool_size", 10)
	v.SetDefault("snippet_store", string(snippets.ModeDurable))
	v.SetDefault("blob_root", filepath.Join(ambrosiaDir(), "blobs"))
	v.SetDefault("artifact_bucket", export.DefaultArtifactBucket)
	v.SetDefault("snippet_bucket", "snippets")
	v.SetDefault("tracking_ttl", tracking.DefaultTTL)
	v.SetDefault("cache_ttl", snippets.DefaultCacheTTL)
	v.SetDefault("purge_schedule", janitor.DefaultSchedule)
	v.SetDefault("render_filter", "")
	v.SetDefault("courseware_file", "")
	v.SetDefault("render_dir", "")
	v.SetDefault("redelivery.max_attempts", policy.MaxAttempts)
	v.SetDefault("redelivery.delay", policy.Delay)
	v.SetDefault("redelivery.backoff", policy.Backoff)
	v.SetDefault("redelivery.max_delay", policy.MaxDelay)
}

// loadConfig layers defaults, the settings file and AMBROSIA_* env vars.
// An explicit path must exist; the default settings file is optional.
func loadConfig(v *viper.Viper, path string) (Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("ambrosia")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = settingsPath()
	}
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if _, err := snippets.ParseMode(c.SnippetStore); err != nil {
		errs = append(errs, err)
	}
	if c.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("pool_size must be positive, got %d", c.PoolSize))
	}
	if c.TrackingTTL <= 0 {
		errs = append(errs, fmt.Errorf("tracking_ttl must be positive, got %s", c.TrackingTTL))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache_ttl must be positive, got %s", c.CacheTTL))
	}
	if _, err := janitor.ParseSchedule(c.PurgeSchedule); err != nil {
		errs = append(errs, err)
	}
	if _, err := export.NewRenderFilter(c.RenderFilter); err != nil {
		errs = append(errs, fmt.Errorf("render_filter: %w", err))
	}
	if err := c.Redelivery.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.ArtifactBucket == "" || c.SnippetBucket == "" {
		errs = append(errs, errors.New("artifact_bucket and snippet_bucket are required"))
	} else if c.ArtifactBucket == c.SnippetBucket {
		// Snippet listing scans "<export>/" under its bucket and would pick up artifacts.
		errs = append(errs, fmt.Errorf("artifact_bucket and snippet_bucket must differ, both are %q", c.ArtifactBucket))
	}
	return errors.Join(errs...)
}

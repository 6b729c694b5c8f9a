// Package config provides configuration management for lodemill using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultBufferThreshold = 5 * 1024 * 1024 // 5MiB: larger sources stay streamed
	defaultCacheDir        = ".lodemill-cache"
	defaultCacheRetention  = 30 * 24 * time.Hour
	defaultJanitorSchedule = "0 3 * * *" // daily, off-peak
	defaultCacheCodec      = "brotli"
)

// Config holds all configuration for the application.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`

	// Pipelines maps file path globs to ordered transformer names.
	// Globs are matched in declaration order; first match wins.
	Pipelines []PipelineSpec `mapstructure:"pipelines"`
}

// EngineConfig holds transformation engine configuration.
type EngineConfig struct {
	ProjectRoot string `mapstructure:"project_root"`
	// BufferThreshold is the size above which source content is kept as a
	// re-openable stream instead of an in-memory buffer.
	// Supports human-readable values like "5MB" or raw byte counts.
	BufferThreshold ByteSize `mapstructure:"buffer_threshold"`
	SourceMaps      bool     `mapstructure:"source_maps"`
	Minify          bool     `mapstructure:"minify"`
	Hot             bool     `mapstructure:"hot"`
	ScopeHoist      bool     `mapstructure:"scope_hoist"`
}

// CacheConfig holds artifact cache configuration.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	// Codec compresses serialized cache entries: "none", "brotli" or "xz".
	Codec string `mapstructure:"codec"`
	// Retention is how long unused entries survive before the janitor
	// removes them. Supports human-readable values like "30d" or "2w".
	Retention Duration `mapstructure:"retention"`
	// JanitorSchedule is a cron expression in the form Janitor.Start
	// accepts. No command reads it: the CLI prunes only on demand, through
	// `lodemill cache prune`.
	JanitorSchedule string `mapstructure:"janitor_schedule"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// PipelineSpec declares one pipeline: a path glob and the ordered
// transformer names that make up its stages.
type PipelineSpec struct {
	Glob         string   `mapstructure:"glob"`
	Transformers []string `mapstructure:"transformers"`
}

// SetDefaults registers default values on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("engine.project_root", ".")
	v.SetDefault("engine.buffer_threshold", defaultBufferThreshold)
	v.SetDefault("engine.source_maps", true)
	v.SetDefault("engine.minify", false)
	v.SetDefault("engine.hot", false)
	v.SetDefault("engine.scope_hoist", false)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", defaultCacheDir)
	v.SetDefault("cache.codec", defaultCacheCodec)
	v.SetDefault("cache.retention", defaultCacheRetention)
	v.SetDefault("cache.janitor_schedule", defaultJanitorSchedule)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
}

// Load unmarshals the viper state into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))

	var cfg Config
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Engine.BufferThreshold <= 0 {
		return errors.New("engine.buffer_threshold must be positive")
	}
	switch c.Cache.Codec {
	case "", "none", "brotli", "xz":
	default:
		return fmt.Errorf("cache.codec must be one of none, brotli, xz; got %q", c.Cache.Codec)
	}
	if c.Cache.Retention < 0 {
		return errors.New("cache.retention must not be negative")
	}
	seen := make(map[string]bool, len(c.Pipelines))
	for i, p := range c.Pipelines {
		if strings.TrimSpace(p.Glob) == "" {
			return fmt.Errorf("pipelines[%d]: glob must not be empty", i)
		}
		if len(p.Transformers) == 0 {
			return fmt.Errorf("pipelines[%d] (%s): at least one transformer required", i, p.Glob)
		}
		if seen[p.Glob] {
			return fmt.Errorf("pipelines[%d]: duplicate glob %q", i, p.Glob)
		}
		seen[p.Glob] = true
	}
	return nil
}

// BufferThresholdBytes returns the streaming threshold in bytes.
func (c *Config) BufferThresholdBytes() int64 {
	return c.Engine.BufferThreshold.Bytes()
}

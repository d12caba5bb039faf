// Package config loads hashwx settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/hashwx/engine"
	"github.com/wippyai/hashwx/errors"
	"github.com/wippyai/hashwx/native"
)

// Environment overrides.
const (
	EnvModule           = "HASHWX_MODULE"
	EnvLogLevel         = "HASHWX_LOG_LEVEL"
	EnvMaxContexts      = "HASHWX_MAX_CONTEXTS"
	EnvSideCache        = "HASHWX_SIDE_CACHE"
	EnvMemoryLimitPages = "HASHWX_MEMORY_LIMIT_PAGES"
	EnvMetricsAddr      = "HASHWX_METRICS_ADDR"
)

// Config holds loader settings.
type Config struct {
	// Module is the location of an external hashwx module: a path, a
	// file:// URL or an http(s) URL. Empty selects the reference engine.
	Module           string `yaml:"module"`
	LogLevel         string `yaml:"log_level"`
	MetricsAddr      string `yaml:"metrics_addr"`
	MaxContexts      int    `yaml:"max_contexts"`
	SideCacheSize    int    `yaml:"side_cache"`
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`
	InterpretedOnly  bool   `yaml:"interpreted_only"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:      "info",
		MaxContexts:   native.DefaultMaxContexts,
		SideCacheSize: 16,
	}
}

// Load reads path over the defaults, then applies the environment. An
// empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, fmt.Sprintf("read %s", path))
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, fmt.Sprintf("parse %s", path))
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse config")
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from lookup, usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvModule); ok {
		c.Module = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvMetricsAddr); ok {
		c.MetricsAddr = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvMaxContexts, &c.MaxContexts},
		{EnvSideCache, &c.SideCacheSize},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, e.key)
		}
		*e.dst = n
	}

	if v, ok := lookup(EnvMemoryLimitPages); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, EnvMemoryLimitPages)
		}
		c.MemoryLimitPages = uint32(n)
	}
	return nil
}

// Validate rejects negative sizes and unknown log levels.
func (c Config) Validate() error {
	if c.MaxContexts < 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(c.MaxContexts).
			Detail("max_contexts must not be negative").
			Build()
	}
	if c.SideCacheSize < 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(c.SideCacheSize).
			Detail("side_cache must not be negative").
			Build()
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log_level")
	}
	return lvl, nil
}

// Logger builds a production zap logger at LogLevel.
func (c Config) Logger() (*zap.Logger, error) {
	lvl, err := c.Level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// Opener returns the engine opener these settings describe.
func (c Config) Opener(logger *zap.Logger) engine.Opener {
	if c.Module == "" {
		return native.Opener{Config: native.Config{
			Logger:           logger,
			MaxContexts:      c.MaxContexts,
			SideCacheSize:    c.SideCacheSize,
			MemoryLimitPages: c.MemoryLimitPages,
			InterpretedOnly:  c.InterpretedOnly,
		}}
	}
	return engine.WasmOpener{Config: engine.WasmConfig{
		Logger:           logger,
		Location:         c.Module,
		MemoryLimitPages: c.MemoryLimitPages,
		SideCacheSize:    c.SideCacheSize,
	}}
}

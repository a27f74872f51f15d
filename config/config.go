// Package config loads engine-level settings from a YAML file and
// VECDB_-prefixed environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the engine-level settings. Per-collection knobs remain
// option funcs on the constructors; this covers process-wide defaults.
type Config struct {
	Log struct {
		// Level is one of debug, info, warn, error.
		Level string `mapstructure:"level"`
		// Format is text or json.
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Storage struct {
		SealThreshold int    `mapstructure:"seal_threshold"`
		SnapshotDir   string `mapstructure:"snapshot_dir"`
	} `mapstructure:"storage"`

	Index struct {
		DefaultNProbe       int `mapstructure:"default_nprobe"`
		KMeansMaxIterations int `mapstructure:"kmeans_max_iterations"`
	} `mapstructure:"index"`

	Resources struct {
		MaxIndexBuilds      int64 `mapstructure:"max_index_builds"`
		LoadedMemoryBytes   int64 `mapstructure:"loaded_memory_bytes"`
		SnapshotBytesPerSec int64 `mapstructure:"snapshot_bytes_per_sec"`
	} `mapstructure:"resources"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("storage.seal_threshold", 1024)
	v.SetDefault("storage.snapshot_dir", "data")
	v.SetDefault("index.default_nprobe", 8)
	v.SetDefault("index.kmeans_max_iterations", 16)
	v.SetDefault("resources.max_index_builds", 1)

	v.SetEnvPrefix("VECDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the built-in settings.
func Default() *Config {
	var cfg Config
	// Unmarshalling only defaults cannot fail.
	_ = newViper().Unmarshal(&cfg)
	return &cfg
}

// Load reads settings from the YAML file at path, layered over the
// defaults and under the environment.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LogLevel maps the configured level string onto slog. Unknown values
// fall back to info.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

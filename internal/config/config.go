// Package config loads the concentrator's YAML configuration file into a
// typed tree via viper, matching the key table and defaults in
// SPEC_FULL.md §6. Grounded on the teacher's internal/server/config.go
// (one struct per concern, defaults applied before unmarshal) and on
// original_source/src/config/mod.rs's serde-with-defaults shape.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Sentinels holds the Sentinel quorum settings.
type Sentinels struct {
	Address        []string `mapstructure:"address" yaml:"address"`
	CheckFrequency int      `mapstructure:"check_frequency" yaml:"check_frequency"`
}

// Log holds the logging-related settings.
type Log struct {
	File string `mapstructure:"file" yaml:"file"`
	Logo bool   `mapstructure:"logo" yaml:"logo"`
}

// Timeout holds the timeout-related settings.
type Timeout struct {
	Sentinels         int `mapstructure:"sentinels" yaml:"sentinels"`
	WorkerIdleTimeout int `mapstructure:"worker_idle_timeout" yaml:"worker_idle_timeout"`
}

// WorkersPool holds the worker-pool sizing settings.
type WorkersPool struct {
	Min int `mapstructure:"min" yaml:"min"`
	Max int `mapstructure:"max" yaml:"max"`
}

// Workers wraps WorkersPool to mirror the YAML key nesting
// (workers.pool.min / workers.pool.max).
type Workers struct {
	Pool WorkersPool `mapstructure:"pool" yaml:"pool"`
}

// Config is the fully decoded configuration file.
type Config struct {
	Bind      string    `mapstructure:"bind" yaml:"bind"`
	GroupName string    `mapstructure:"group_name" yaml:"group_name"`
	Sentinels Sentinels `mapstructure:"sentinels" yaml:"sentinels"`
	Log       Log       `mapstructure:"log" yaml:"log"`
	Timeout   Timeout   `mapstructure:"timeout" yaml:"timeout"`
	Workers   Workers   `mapstructure:"workers" yaml:"workers"`
}

// CheckFrequency returns sentinels.check_frequency as a time.Duration.
func (c *Config) CheckFrequency() time.Duration {
	return time.Duration(c.Sentinels.CheckFrequency) * time.Millisecond
}

// SentinelTimeout returns timeout.sentinels as a time.Duration.
func (c *Config) SentinelTimeout() time.Duration {
	return time.Duration(c.Timeout.Sentinels) * time.Millisecond
}

// Load reads and decodes the YAML file at path, applying the defaults
// from SPEC_FULL.md §6 before unmarshalling so any key the file omits
// still resolves to its documented default.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("sentinels.check_frequency", 1000)
	v.SetDefault("log.file", "log4rs.yml")
	v.SetDefault("log.logo", true)
	v.SetDefault("timeout.sentinels", 5000)
	v.SetDefault("timeout.worker_idle_timeout", 5000)
	v.SetDefault("workers.pool.min", 5)
	v.SetDefault("workers.pool.max", 10)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Bind == "" {
		return fmt.Errorf("config: %q is required", "bind")
	}
	if c.GroupName == "" {
		return fmt.Errorf("config: %q is required", "group_name")
	}
	if len(c.Sentinels.Address) == 0 {
		return fmt.Errorf("config: %q is required", "sentinels.address")
	}
	return nil
}

// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Runs     RunsConfig     `mapstructure:"runs"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// RunsConfig sets where run artifacts live and how runs are queued.
type RunsConfig struct {
	Dir               string `mapstructure:"dir"`
	MaxConcurrentRuns int    `mapstructure:"max_concurrent_runs"`
}

// AuditConfig holds per-run defaults and the crawl identity.
type AuditConfig struct {
	UserAgent          string `mapstructure:"user_agent"`
	MaxPagesDefault    int    `mapstructure:"max_pages_default"`
	ConcurrencyDefault int    `mapstructure:"concurrency_default"`
	// RequestsPerSecond throttles crawl-discovery fetches per run.
	// Zero disables the throttle.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// AnalyzerConfig configures the headless browser subsystem.
type AnalyzerConfig struct {
	MaxParallel   int `mapstructure:"max_parallel"`
	NavTimeoutSec int `mapstructure:"nav_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("runs.dir", "./runs")
	v.SetDefault("runs.max_concurrent_runs", 2)
	v.SetDefault("audit.user_agent", "sitepulse-bot/0.1")
	v.SetDefault("audit.max_pages_default", 100)
	v.SetDefault("audit.concurrency_default", 1)
	v.SetDefault("audit.requests_per_second", 0.0)
	v.SetDefault("analyzer.max_parallel", 2)
	v.SetDefault("analyzer.nav_timeout_seconds", 45)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Runs.Dir == "" {
		return fmt.Errorf("runs.dir must be set")
	}
	if c.Runs.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("runs.max_concurrent_runs must be > 0")
	}
	if c.Audit.MaxPagesDefault <= 0 {
		return fmt.Errorf("audit.max_pages_default must be > 0")
	}
	if c.Audit.ConcurrencyDefault <= 0 {
		return fmt.Errorf("audit.concurrency_default must be > 0")
	}
	if c.Audit.RequestsPerSecond < 0 {
		return fmt.Errorf("audit.requests_per_second must be >= 0")
	}
	if c.Analyzer.MaxParallel < 0 {
		return fmt.Errorf("analyzer.max_parallel must be >= 0")
	}
	if c.Analyzer.NavTimeoutSec <= 0 {
		return fmt.Errorf("analyzer.nav_timeout_seconds must be > 0")
	}
	return nil
}

// NavTimeout converts the analyzer timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Analyzer.NavTimeoutSec) * time.Second
}

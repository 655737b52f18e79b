package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SPXPLAIN_SPANNER_PROJECT.
const EnvPrefix = "SPXPLAIN"

// Query modes understood by Spanner.
const (
	QueryModeNormal  = "NORMAL"
	QueryModePlan    = "PLAN"
	QueryModeProfile = "PROFILE"
)

// Config holds the settings shared by all commands.
type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Display  DisplayConfig  `mapstructure:"display"`
	Spanner  SpannerConfig  `mapstructure:"spanner"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Diff     DiffConfig     `mapstructure:"diff"`
}

// DisplayConfig controls rendering.
type DisplayConfig struct {
	// Unknown replaces statistics the server did not report.
	Unknown string `mapstructure:"unknown"`
}

// SpannerConfig identifies the database queried by the query command.
type SpannerConfig struct {
	Project   string        `mapstructure:"project"`
	Instance  string        `mapstructure:"instance"`
	Database  string        `mapstructure:"database"`
	QueryMode string        `mapstructure:"query_mode"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// PostgresConfig configures the pg command.
type PostgresConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DiffConfig tunes the diff command.
type DiffConfig struct {
	MinPercentChange float64 `mapstructure:"min_percent_change"`
	MaxItems         int     `mapstructure:"max_items"`
}

var (
	mu     sync.RWMutex
	active = Default()
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Display: DisplayConfig{
			Unknown: "Unknown",
		},
		Spanner: SpannerConfig{
			QueryMode: QueryModeNormal,
		},
		Diff: DiffConfig{
			MinPercentChange: 5,
			MaxItems:         10,
		},
	}
}

// Active returns the currently applied configuration.
func Active() Config {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// Use replaces the active configuration.
func Use(cfg Config) {
	mu.Lock()
	active = cfg
	mu.Unlock()
}

// Apply loads configuration from defaults, the file at path (YAML or JSON) and
// SPXPLAIN_* environment variables, then makes it active. An empty path skips the file.
func Apply(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	Use(cfg)
	return nil
}

// Load reads configuration without activating it.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	c.Spanner.QueryMode = strings.ToUpper(strings.TrimSpace(c.Spanner.QueryMode))
	switch c.Spanner.QueryMode {
	case QueryModeNormal, QueryModePlan, QueryModeProfile:
	default:
		return fmt.Errorf("config: invalid spanner.query_mode %q (expected NORMAL, PLAN or PROFILE)", c.Spanner.QueryMode)
	}
	if c.Spanner.Timeout < 0 || c.Postgres.Timeout < 0 {
		return fmt.Errorf("config: timeouts must not be negative")
	}
	if c.Diff.MinPercentChange < 0 || c.Diff.MaxItems < 0 {
		return fmt.Errorf("config: diff thresholds must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("display.unknown", cfg.Display.Unknown)
	v.SetDefault("spanner.project", cfg.Spanner.Project)
	v.SetDefault("spanner.instance", cfg.Spanner.Instance)
	v.SetDefault("spanner.database", cfg.Spanner.Database)
	v.SetDefault("spanner.query_mode", cfg.Spanner.QueryMode)
	v.SetDefault("spanner.timeout", cfg.Spanner.Timeout)
	v.SetDefault("postgres.url", cfg.Postgres.URL)
	v.SetDefault("postgres.timeout", cfg.Postgres.Timeout)
	v.SetDefault("diff.min_percent_change", cfg.Diff.MinPercentChange)
	v.SetDefault("diff.max_items", cfg.Diff.MaxItems)
}

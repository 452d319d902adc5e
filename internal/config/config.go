package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/tally/internal/types"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Telegram TelegramConfig `yaml:"telegram"`
	Rules    RulesConfig    `yaml:"rules"`
	Report   ReportConfig   `yaml:"report"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TelegramConfig contains transport adapter settings.
type TelegramConfig struct {
	Token       string   `yaml:"-"` // env-only, never in YAML
	OwnerID     int64    `yaml:"owner_id"`
	PollTimeout Duration `yaml:"poll_timeout"`
}

// RulesConfig contains the point rule set: signed magnitude per action kind
// and which kinds are enabled.
type RulesConfig struct {
	ReactionPoints       int64 `yaml:"reaction_points"`
	ReactionRemovePoints int64 `yaml:"reaction_remove_points"`
	PollAnswerPoints     int64 `yaml:"poll_answer_points"`
	EnableReactions      bool  `yaml:"enable_reactions"`
	EnablePolls          bool  `yaml:"enable_polls"`
}

// ReportConfig contains reporting settings. Timezone is the fixed civil
// reference zone anchoring the weekly window boundary.
type ReportConfig struct {
	Timezone string `yaml:"timezone"`
	TopLimit int    `yaml:"top_limit"`
}

// AuthConfig contains API authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Points returns the configured signed magnitudes keyed by action kind.
func (r RulesConfig) Points() map[types.ActionKind]int64 {
	return map[types.ActionKind]int64{
		types.KindReaction:       r.ReactionPoints,
		types.KindReactionRemove: r.ReactionRemovePoints,
		types.KindPollAnswer:     r.PollAnswerPoints,
	}
}

// EnabledKinds returns the configured enablement table keyed by action kind.
func (r RulesConfig) EnabledKinds() map[types.ActionKind]bool {
	return map[types.ActionKind]bool{
		types.KindReaction:       r.EnableReactions,
		types.KindReactionRemove: r.EnableReactions,
		types.KindPollAnswer:     r.EnablePolls,
	}
}

// Location resolves the reference timezone.
func (r ReportConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid report timezone %q: %w", r.Timezone, err)
	}
	return loc, nil
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	// Determine config path
	configPath := getEnv("TALLY_CONFIG_PATH", "config/tally.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	// Load YAML file (file must exist for this function)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/tally.db",
		},
		Telegram: TelegramConfig{
			PollTimeout: Duration(50 * time.Second),
		},
		Rules: RulesConfig{
			ReactionPoints:       10,
			ReactionRemovePoints: -10,
			PollAnswerPoints:     10,
			EnableReactions:      true,
			EnablePolls:          true,
		},
		Report: ReportConfig{
			Timezone: "Asia/Bangkok",
			TopLimit: 15,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file is OK; use defaults
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("TALLY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TALLY_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("TALLY_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("TALLY_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("TALLY_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Telegram (BOT_TOKEN kept as fallback; the original deployment used it)
	if v := os.Getenv("TALLY_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	} else if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TALLY_OWNER_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.OwnerID = id
		}
	}
	if v := os.Getenv("TALLY_POLL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Telegram.PollTimeout = Duration(d)
		}
	}

	// Auth
	if v := os.Getenv("TALLY_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Report
	if v := os.Getenv("TALLY_REPORT_TIMEZONE"); v != "" {
		cfg.Report.Timezone = v
	}
	if v := os.Getenv("TALLY_TOP_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Report.TopLimit = n
		}
	}

	// Log
	if v := os.Getenv("TALLY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TALLY_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
// In offline mode (TALLY_OFFLINE=true), the bot token is not required;
// the report subcommands use it to query the database without a bot.
func (c *Config) validate() error {
	if _, err := c.Report.Location(); err != nil {
		return err
	}
	if c.Report.TopLimit <= 0 {
		return errors.New("report top_limit must be positive")
	}

	if os.Getenv("TALLY_OFFLINE") == "true" {
		return nil
	}
	if c.Telegram.Token == "" {
		return errors.New("TALLY_BOT_TOKEN is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

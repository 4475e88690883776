// Package config loads the openpgp-card settings: built-in defaults, then an optional
// YAML file, then OPENPGP_CARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. OPENPGP_CARD_LOG_LEVEL=debug.
const EnvPrefix = "OPENPGP_CARD"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid value")

// Config holds the runtime settings.
type Config struct {
	// ConnectorTimeout bounds how long the PC/SC service gets to hand out a context.
	ConnectorTimeout time.Duration `mapstructure:"connector_timeout"`

	// PINCacheIdle is the inactivity period after which remembered PINs are forgotten.
	PINCacheIdle time.Duration `mapstructure:"pin_cache_idle"`

	// MaxPINAttempts bounds the PIN verification loop.
	MaxPINAttempts int `mapstructure:"max_pin_attempts"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

var defaults = map[string]any{
	"connector_timeout": 2 * time.Second,
	"pin_cache_idle":    60 * time.Second,
	"max_pin_attempts":  10,
	"log_level":         "info",
	"log_format":        "text",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ConnectorTimeout: defaults["connector_timeout"].(time.Duration),
		PINCacheIdle:     defaults["pin_cache_idle"].(time.Duration),
		MaxPINAttempts:   defaults["max_pin_attempts"].(int),
		LogLevel:         defaults["log_level"].(string),
		LogFormat:        defaults["log_format"].(string),
	}
}

// Load reads the configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the rest of the program cannot work with.
func (c *Config) Validate() error {
	var errs []error

	if c.ConnectorTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: connector_timeout must be positive, got %s", ErrInvalid, c.ConnectorTimeout))
	}
	if c.PINCacheIdle <= 0 {
		errs = append(errs, fmt.Errorf("%w: pin_cache_idle must be positive, got %s", ErrInvalid, c.PINCacheIdle))
	}
	if c.MaxPINAttempts <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_pin_attempts must be positive, got %d", ErrInvalid, c.MaxPINAttempts))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: log_format %q", ErrInvalid, c.LogFormat))
	}

	return errors.Join(errs...)
}

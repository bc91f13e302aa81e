// Package config loads server settings from flags, the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every runtime setting of the server and CLI.
type Config struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	DataDir        string   `mapstructure:"data_dir"`
	Backend        string   `mapstructure:"store_backend"`
	PostgresDSN    string   `mapstructure:"postgres_dsn"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	LogLevel       string   `mapstructure:"log_level"`
	LogFormat      string   `mapstructure:"log_format"`
	RateLimit      float64  `mapstructure:"rate_limit"`
	RateBurst      int      `mapstructure:"rate_burst"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
	SampleSize     int      `mapstructure:"stats_sample_size"`
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.SampleSize < 1 {
		errs = append(errs, fmt.Errorf("stats sample size must be positive, got %d", c.SampleSize))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %g", c.RateLimit))
	}
	if c.RateBurst < 0 {
		errs = append(errs, fmt.Errorf("rate burst must not be negative, got %d", c.RateBurst))
	}
	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes))
	}
	return errors.Join(errs...)
}

// setting ties a config key to its flag and environment variable.
type setting struct {
	key   string
	flag  string
	env   string
	value any
	usage string
}

var settings = []setting{
	{"host", "host", "HOST", "0.0.0.0", "interface to listen on"},
	{"port", "port", "PORT", 8080, "port to listen on"},
	{"data_dir", "data-dir", "DATA_DIR", "./data", "directory for file based stores"},
	{"store_backend", "backend", "STORE_BACKEND", "json", "record store: json, sqlite, badger, postgres or memory"},
	{"postgres_dsn", "postgres-dsn", "POSTGRES_DSN", "", "connection string for the postgres backend"},
	{"allowed_origins", "allowed-origins", "ALLOWED_ORIGINS", []string{"*"}, "CORS origins, comma separated"},
	{"log_level", "log-level", "LOG_LEVEL", "info", "debug, info, warn or error"},
	{"log_format", "log-format", "LOG_FORMAT", "json", "json or console"},
	{"rate_limit", "rate-limit", "RATE_LIMIT", 0.0, "requests per second per client, 0 disables"},
	{"rate_burst", "rate-burst", "RATE_BURST", 20, "burst size for the rate limiter"},
	{"max_body_bytes", "max-body-bytes", "MAX_BODY_BYTES", int64(32 << 20), "largest accepted insert body in bytes"},
	{"stats_sample_size", "sample-size", "STATS_SAMPLE_SIZE", 100, "records examined by stats"},
}

// RegisterFlags defines one flag per setting.
func RegisterFlags(flags *pflag.FlagSet) {
	for _, s := range settings {
		switch v := s.value.(type) {
		case string:
			flags.String(s.flag, v, s.usage)
		case int:
			flags.Int(s.flag, v, s.usage)
		case int64:
			flags.Int64(s.flag, v, s.usage)
		case float64:
			flags.Float64(s.flag, v, s.usage)
		case []string:
			flags.StringSlice(s.flag, v, s.usage)
		}
	}
}

// Load resolves settings with precedence flag > environment > envFile >
// defaults. flags may be nil; envFile is skipped when empty or missing.
func Load(flags *pflag.FlagSet, envFile string) (*Config, error) {
	v := viper.New()

	for _, s := range settings {
		v.SetDefault(s.key, s.value)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", s.env, err)
		}
		if flags == nil {
			continue
		}
		if f := flags.Lookup(s.flag); f != nil {
			if err := v.BindPFlag(s.key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", s.flag, err)
			}
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read %s: %w", envFile, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.AllowedOrigins = cleanList(cfg.AllowedOrigins)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Package config loads server settings from the environment and an optional
// .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Port               int           `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	DBPath             string        `mapstructure:"DB_PATH"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	ShiftAutoOpen      bool          `mapstructure:"SHIFT_AUTO_OPEN"`
	ShiftCheckInterval time.Duration `mapstructure:"SHIFT_CHECK_INTERVAL"`
	CheckingAccountID  string        `mapstructure:"CHECKING_ACCOUNT_ID"`
}

var keys = []string{
	"PORT", "ENV", "DB_PATH", "LOG_LEVEL", "CORS_ORIGINS",
	"SHIFT_AUTO_OPEN", "SHIFT_CHECK_INTERVAL", "CHECKING_ACCOUNT_ID",
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	return load(".env")
}

func load(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(file)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_PATH", "ledger.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")
	v.SetDefault("SHIFT_AUTO_OPEN", true)
	v.SetDefault("SHIFT_CHECK_INTERVAL", "1h")
	v.SetDefault("CHECKING_ACCOUNT_ID", "checking-main")

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be within 1..65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.ShiftAutoOpen && c.ShiftCheckInterval <= 0 {
		return fmt.Errorf("SHIFT_CHECK_INTERVAL must be positive when SHIFT_AUTO_OPEN is set")
	}
	if c.CheckingAccountID == "" {
		return fmt.Errorf("CHECKING_ACCOUNT_ID is required")
	}
	return nil
}

// Level is the parsed LOG_LEVEL.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

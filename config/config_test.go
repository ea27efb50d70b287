package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every key; viper ignores empty variables.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "ledger.db", cfg.DBPath)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.CORSOrigins)
	assert.True(t, cfg.ShiftAutoOpen)
	assert.Equal(t, time.Hour, cfg.ShiftCheckInterval)
	assert.Equal(t, "checking-main", cfg.CheckingAccountID)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("CORS_ORIGINS", "https://desk.example.com, https://admin.example.com")
	t.Setenv("SHIFT_AUTO_OPEN", "false")
	t.Setenv("SHIFT_CHECK_INTERVAL", "15m")

	cfg, err := load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, zerolog.WarnLevel, cfg.Level())
	assert.Len(t, cfg.CORSOrigins, 2)
	assert.False(t, cfg.ShiftAutoOpen)
	assert.Equal(t, 15*time.Minute, cfg.ShiftCheckInterval)
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte("DB_PATH=/var/lib/ledger/desk.db\nLOG_LEVEL=debug\n"), 0o600))

	cfg, err := load(file)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ledger/desk.db", cfg.DBPath)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestValidate(t *testing.T) {
	valid := Config{Port: 8080, DBPath: "x.db", LogLevel: "info", ShiftAutoOpen: true, ShiftCheckInterval: time.Minute, CheckingAccountID: "c"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"db path", func(c *Config) { c.DBPath = "" }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"interval", func(c *Config) { c.ShiftCheckInterval = 0 }},
		{"checking account", func(c *Config) { c.CheckingAccountID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/dataset-server/config"
)

var envNames = []string{
	"HOST", "PORT", "DATA_DIR", "STORE_BACKEND", "POSTGRES_DSN", "ALLOWED_ORIGINS",
	"LOG_LEVEL", "LOG_FORMAT", "RATE_LIMIT", "RATE_BURST", "MAX_BODY_BYTES", "STATS_SAMPLE_SIZE",
}

// clearEnv blanks every variable Load reads. Empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envNames {
		t.Setenv(name, "")
	}
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(newFlags(t), "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "json", cfg.Backend)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Zero(t, cfg.RateLimit)
	assert.Equal(t, 20, cfg.RateBurst)
	assert.Equal(t, int64(32<<20), cfg.MaxBodyBytes)
	assert.Equal(t, 100, cfg.SampleSize)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RATE_LIMIT", "2.5")
	t.Setenv("STATS_SAMPLE_SIZE", "10")
	t.Setenv("MAX_BODY_BYTES", "1048576")

	cfg, err := config.Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.InDelta(t, 2.5, cfg.RateLimit, 1e-9)
	assert.Equal(t, 10, cfg.SampleSize)
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
}

func TestEnvFileBelowEnvironment(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STORE_BACKEND=badger\nPORT=7000\nLOG_LEVEL=debug\n"), 0o644))
	t.Setenv("PORT", "9000")

	cfg, err := config.Load(nil, envFile)
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.Backend)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9000, cfg.Port)
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(nil, filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}

func TestFlagsWin(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("HOST", "127.0.0.1")

	t.Setenv("MAX_BODY_BYTES", "4096")

	cfg, err := config.Load(newFlags(t, "--port=1234", "--allowed-origins=https://x.example", "--max-body-bytes=512"), "")
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.Port)
	assert.Equal(t, int64(512), cfg.MaxBodyBytes)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, []string{"https://x.example"}, cfg.AllowedOrigins)
}

func TestInvalid(t *testing.T) {
	tests := map[string]string{
		"PORT":              "70000",
		"STATS_SAMPLE_SIZE": "0",
		"RATE_LIMIT":        "-1",
		"RATE_BURST":        "-3",
		"MAX_BODY_BYTES":    "0",
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(name, value)
			_, err := config.Load(nil, "")
			assert.Error(t, err)
		})
	}
}

func TestUnparseableValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")
	_, err := config.Load(nil, "")
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "hybrid"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "trace"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log_level")
}

func TestValidateRequiresRpcURLForIndexerModes(t *testing.T) {
	cfg := Defaults()
	cfg.Chain.RpcURL = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_url")

	// Server-only mode never touches the chain.
	cfg.Mode = "server"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRateLimitRequiresRedis(t *testing.T) {
	cfg := Defaults()
	cfg.Server.RateLimit = 100
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit requires redis")

	cfg.Redis.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Indexer.BatchSize = 0
	cfg.Indexer.Fanout = 0
	cfg.Database.PoolMaxConns = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), "fanout")
	assert.Contains(t, err.Error(), "pool_max_conns")
}

func TestValidateDSNSkipsHostChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Database.DSN = "postgres://u:p@db:5432/bol"
	cfg.Database.Host = ""
	cfg.Database.Port = 0
	cfg.Database.Database = ""
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "indexer"
log_level = "debug"

[indexer]
batch_size = 500
poll_interval = "2s"

[database]
dsn = "postgres://u:p@db:5432/bol"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "indexer", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint64(500), cfg.Indexer.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Indexer.PollInterval.Duration)
	assert.Equal(t, "postgres://u:p@db:5432/bol", cfg.Database.DSN)

	// Untouched sections keep their defaults.
	assert.Equal(t, uint64(200), cfg.Indexer.SafetyMargin)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "full"`), 0o644))

	t.Setenv("BOLIDX_MODE", "server")
	t.Setenv("BOLIDX_DATABASE_URL", "postgres://env:env@db:5432/bol")
	t.Setenv("BOLIDX_INDEXER_POLL_INTERVAL", "30s")
	t.Setenv("BOLIDX_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BOLIDX_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "postgres://env:env@db:5432/bol", cfg.Database.DSN)
	assert.Equal(t, 30*time.Second, cfg.Indexer.PollInterval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Database.DSN = "postgres://u:secret@db/bol"
	cfg.Database.Password = "secret"
	cfg.Redis.Password = "secret"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "secret"
	cfg.Server.APIKey = "secret"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Database.DSN)
	assert.Equal(t, "***", red.Database.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.AccessKey)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)

	// Non-secret fields survive.
	assert.Equal(t, cfg.Database.Host, red.Database.Host)
	assert.Equal(t, cfg.Server.Port, red.Server.Port)
}

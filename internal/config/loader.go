package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BOLIDX_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BOLIDX_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RpcURL, "BOLIDX_CHAIN_RPC_URL")
	setStr(&cfg.Chain.ArtifactsDir, "BOLIDX_CHAIN_ARTIFACTS_DIR")

	// ── Indexer ──
	setBool(&cfg.Indexer.Enabled, "BOLIDX_INDEXER_ENABLED")
	setUint64(&cfg.Indexer.BatchSize, "BOLIDX_INDEXER_BATCH_SIZE")
	setDuration(&cfg.Indexer.PollInterval, "BOLIDX_INDEXER_POLL_INTERVAL")
	setDuration(&cfg.Indexer.ErrorInterval, "BOLIDX_INDEXER_ERROR_INTERVAL")
	setUint64(&cfg.Indexer.SafetyMargin, "BOLIDX_INDEXER_SAFETY_MARGIN")
	setStr(&cfg.Indexer.CursorName, "BOLIDX_INDEXER_CURSOR_NAME")
	setInt(&cfg.Indexer.Fanout, "BOLIDX_INDEXER_FANOUT")

	// ── Database ──
	setStr(&cfg.Database.DSN, "BOLIDX_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "BOLIDX_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "BOLIDX_DATABASE_HOST")
	setInt(&cfg.Database.Port, "BOLIDX_DATABASE_PORT")
	setStr(&cfg.Database.Database, "BOLIDX_DATABASE_NAME")
	setStr(&cfg.Database.User, "BOLIDX_DATABASE_USER")
	setStr(&cfg.Database.Password, "BOLIDX_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "BOLIDX_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "BOLIDX_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "BOLIDX_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "BOLIDX_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BOLIDX_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BOLIDX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BOLIDX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BOLIDX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BOLIDX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BOLIDX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BOLIDX_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "BOLIDX_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BOLIDX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BOLIDX_S3_REGION")
	setStr(&cfg.S3.Bucket, "BOLIDX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BOLIDX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BOLIDX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BOLIDX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BOLIDX_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ArchivePrefix, "BOLIDX_S3_ARCHIVE_PREFIX")
	setInt(&cfg.S3.ArchiveFlushCount, "BOLIDX_S3_ARCHIVE_FLUSH_COUNT")
	setDuration(&cfg.S3.ArchiveFlushInterval, "BOLIDX_S3_ARCHIVE_FLUSH_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BOLIDX_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BOLIDX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BOLIDX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BOLIDX_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BOLIDX_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "BOLIDX_SERVER_RATE_WINDOW")

	// ── Top-level ──
	setStr(&cfg.Mode, "BOLIDX_MODE")
	setStr(&cfg.LogLevel, "BOLIDX_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// Package config defines the top-level configuration for the bill-of-lading
// indexer and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BOLIDX_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Indexer  IndexerConfig  `toml:"indexer"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig holds the EVM RPC endpoint and ABI artifact location.
type ChainConfig struct {
	RpcURL string `toml:"rpc_url"`
	// ArtifactsDir points at compiled contract artifacts (Hardhat layout).
	// Leave empty to use the ABIs embedded in the binary.
	ArtifactsDir string `toml:"artifacts_dir"`
}

// IndexerConfig holds poll-loop parameters.
type IndexerConfig struct {
	Enabled bool `toml:"enabled"`
	// BatchSize is the maximum number of blocks scanned per iteration.
	BatchSize uint64 `toml:"batch_size"`
	// PollInterval is the sleep between successful iterations.
	PollInterval duration `toml:"poll_interval"`
	// ErrorInterval is the backoff after a failed iteration.
	ErrorInterval duration `toml:"error_interval"`
	// SafetyMargin is how many blocks behind the head a cold start begins.
	SafetyMargin uint64 `toml:"safety_margin"`
	// CursorName identifies this indexer's cursor row; lets several indexers
	// share one database.
	CursorName string `toml:"cursor_name"`
	// Fanout bounds concurrent per-contract event fetches.
	Fanout int `toml:"fanout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis backs the read cache,
// the event signal bus, API rate limiting, and the indexer leader lock; when
// disabled those features degrade gracefully.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for event archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`

	// ArchivePrefix is prepended to every archive object key.
	ArchivePrefix string `toml:"archive_prefix"`
	// ArchiveFlushCount uploads a batch once this many events are buffered.
	ArchiveFlushCount int `toml:"archive_flush_count"`
	// ArchiveFlushInterval uploads whatever is buffered at this cadence.
	ArchiveFlushInterval duration `toml:"archive_flush_interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit caps requests per client per RateWindow; requires Redis.
	// Zero disables rate limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RpcURL: "http://localhost:8545",
		},
		Indexer: IndexerConfig{
			Enabled:       true,
			BatchSize:     100,
			PollInterval:  duration{5 * time.Second},
			ErrorInterval: duration{10 * time.Second},
			SafetyMargin:  200,
			CursorName:    "last_block",
			Fanout:        4,
		},
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:              false,
			Endpoint:             "http://localhost:9000",
			Region:               "us-east-1",
			Bucket:               "bolindexer-data",
			UseSSL:               false,
			ForcePathStyle:       true,
			ArchivePrefix:        "archive/",
			ArchiveFlushCount:    100,
			ArchiveFlushInterval: duration{time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"indexer": true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: indexer, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	mode := strings.ToLower(c.Mode)
	needsIndexer := c.Indexer.Enabled && (mode == "indexer" || mode == "full")

	// Chain — required whenever the indexer runs.
	if needsIndexer && c.Chain.RpcURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty for mode "+c.Mode)
	}

	// Indexer
	if c.Indexer.BatchSize < 1 {
		errs = append(errs, "indexer: batch_size must be >= 1")
	}
	if c.Indexer.PollInterval.Duration <= 0 {
		errs = append(errs, "indexer: poll_interval must be > 0")
	}
	if c.Indexer.ErrorInterval.Duration <= 0 {
		errs = append(errs, "indexer: error_interval must be > 0")
	}
	if c.Indexer.CursorName == "" {
		errs = append(errs, "indexer: cursor_name must not be empty")
	}
	if c.Indexer.Fanout < 1 {
		errs = append(errs, "indexer: fanout must be >= 1")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.ArchiveFlushCount < 1 {
			errs = append(errs, "s3: archive_flush_count must be >= 1")
		}
		if c.S3.ArchiveFlushInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_flush_interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit requires redis to be enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

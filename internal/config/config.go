package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the optional YAML file read before the environment.
const ConfigFileEnv = "INDEXER_CONFIG_FILE"

const (
	SnapshotBackendSQLite   = "sqlite"
	SnapshotBackendPostgres = "postgres"
	SnapshotBackendS3       = "s3"
)

type Config struct {
	DB       DBConfig       `yaml:"db"`
	RPC      RPCConfig      `yaml:"rpc"`
	Hypermap HypermapConfig `yaml:"hypermap"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Redis    RedisConfig    `yaml:"redis"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Alert    AlertConfig    `yaml:"alert"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type RPCConfig struct {
	URL             string  `yaml:"url"`
	TimeoutSec      int     `yaml:"timeout_sec"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	BreakerFailures int     `yaml:"breaker_failures"`
	BreakerOpenSec  int     `yaml:"breaker_open_sec"`
}

type HypermapConfig struct {
	Address    string `yaml:"address"`
	FirstBlock int64  `yaml:"first_block"`
	ChainID    int64  `yaml:"chain_id"`
	RootLabel  string `yaml:"root_label"`
}

type PipelineConfig struct {
	RetryDelayMs               int `yaml:"retry_delay_ms"`
	CheckpointIntervalMs       int `yaml:"checkpoint_interval_ms"`
	BackfillRetryDelayMs       int `yaml:"backfill_retry_delay_ms"`
	BackfillMaxAttempts        int `yaml:"backfill_max_attempts"` // 0 = unbounded
	PendingMaxAttempts         int `yaml:"pending_max_attempts"`
	SubscriptionPollIntervalMs int `yaml:"subscription_poll_interval_ms"`
	InboxSize                  int `yaml:"inbox_size"`
}

type SnapshotConfig struct {
	Backend     string `yaml:"backend"`
	Name        string `yaml:"name"`
	PGURL       string `yaml:"pg_url"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	S3Prefix    string `yaml:"s3_prefix"`
}

// RedisConfig enables the dead-letter stream when URL is set.
type RedisConfig struct {
	URL              string `yaml:"url"`
	DeadLetterStream string `yaml:"dead_letter_stream"`
}

type ServerConfig struct {
	HealthPort int    `yaml:"health_port"`
	AdminAddr  string `yaml:"admin_addr"`
	AdminRPS   int    `yaml:"admin_rps"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// AlertConfig enables Slack and webhook alerts when a URL is set.
type AlertConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	WebhookURL      string `yaml:"webhook_url"`
	CooldownSec     int    `yaml:"cooldown_sec"`
}

func (a AlertConfig) Cooldown() time.Duration {
	return time.Duration(a.CooldownSec) * time.Second
}

func (p PipelineConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMs) * time.Millisecond
}

func (p PipelineConfig) CheckpointInterval() time.Duration {
	return time.Duration(p.CheckpointIntervalMs) * time.Millisecond
}

func (p PipelineConfig) BackfillRetryDelay() time.Duration {
	return time.Duration(p.BackfillRetryDelayMs) * time.Millisecond
}

func (p PipelineConfig) SubscriptionPollInterval() time.Duration {
	return time.Duration(p.SubscriptionPollIntervalMs) * time.Millisecond
}

func (r RPCConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSec) * time.Second
}

func (r RPCConfig) BreakerOpen() time.Duration {
	return time.Duration(r.BreakerOpenSec) * time.Second
}

func defaults() *Config {
	return &Config{
		DB: DBConfig{
			Path: "./data/hpn.db",
		},
		RPC: RPCConfig{
			URL:             "https://mainnet.base.org",
			TimeoutSec:      30,
			RateLimitRPS:    10,
			RateLimitBurst:  20,
			BreakerFailures: 5,
			BreakerOpenSec:  30,
		},
		Hypermap: HypermapConfig{
			Address:    "0x000000000044C6B8Cb4d8f0F889a3E47664EAeda",
			FirstBlock: 27_270_000,
			ChainID:    8453,
			RootLabel:  "hpn-testing-beta",
		},
		Pipeline: PipelineConfig{
			RetryDelayMs:               5000,
			CheckpointIntervalMs:       300_000,
			BackfillRetryDelayMs:       5000,
			BackfillMaxAttempts:        0,
			PendingMaxAttempts:         3,
			SubscriptionPollIntervalMs: 2000,
			InboxSize:                  1024,
		},
		Snapshot: SnapshotConfig{
			Backend: SnapshotBackendSQLite,
			Name:    "hpn-indexer-state",
		},
		Redis: RedisConfig{
			DeadLetterStream: "hpn-indexer:dead-letters",
		},
		Server: ServerConfig{
			HealthPort: 8080,
			AdminAddr:  ":8081",
			AdminRPS:   5,
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRatio: 1.0,
		},
		Alert: AlertConfig{
			CooldownSec: 300,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by INDEXER_CONFIG_FILE and then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DB.Path = getEnv("DB_PATH", c.DB.Path)

	c.RPC.URL = getEnv("RPC_URL", c.RPC.URL)
	c.RPC.TimeoutSec = getEnvInt("RPC_TIMEOUT_SEC", c.RPC.TimeoutSec)
	c.RPC.RateLimitRPS = getEnvFloat("RPC_RATE_LIMIT_RPS", c.RPC.RateLimitRPS)
	c.RPC.RateLimitBurst = getEnvInt("RPC_RATE_LIMIT_BURST", c.RPC.RateLimitBurst)
	c.RPC.BreakerFailures = getEnvInt("RPC_BREAKER_FAILURES", c.RPC.BreakerFailures)
	c.RPC.BreakerOpenSec = getEnvInt("RPC_BREAKER_OPEN_SEC", c.RPC.BreakerOpenSec)

	c.Hypermap.Address = getEnv("HYPERMAP_ADDRESS", c.Hypermap.Address)
	c.Hypermap.FirstBlock = getEnvInt64("HYPERMAP_FIRST_BLOCK", c.Hypermap.FirstBlock)
	c.Hypermap.ChainID = getEnvInt64("HYPERMAP_CHAIN_ID", c.Hypermap.ChainID)
	c.Hypermap.RootLabel = getEnv("ROOT_LABEL", c.Hypermap.RootLabel)

	c.Pipeline.RetryDelayMs = getEnvInt("RETRY_DELAY_MS", c.Pipeline.RetryDelayMs)
	c.Pipeline.CheckpointIntervalMs = getEnvInt("CHECKPOINT_INTERVAL_MS", c.Pipeline.CheckpointIntervalMs)
	c.Pipeline.BackfillRetryDelayMs = getEnvInt("BACKFILL_RETRY_DELAY_MS", c.Pipeline.BackfillRetryDelayMs)
	c.Pipeline.BackfillMaxAttempts = getEnvInt("BACKFILL_MAX_ATTEMPTS", c.Pipeline.BackfillMaxAttempts)
	c.Pipeline.PendingMaxAttempts = getEnvInt("PENDING_MAX_ATTEMPTS", c.Pipeline.PendingMaxAttempts)
	c.Pipeline.SubscriptionPollIntervalMs = getEnvInt("SUBSCRIPTION_POLL_INTERVAL_MS", c.Pipeline.SubscriptionPollIntervalMs)
	c.Pipeline.InboxSize = getEnvInt("INBOX_SIZE", c.Pipeline.InboxSize)

	c.Snapshot.Backend = strings.ToLower(getEnv("SNAPSHOT_BACKEND", c.Snapshot.Backend))
	c.Snapshot.Name = getEnv("SNAPSHOT_NAME", c.Snapshot.Name)
	c.Snapshot.PGURL = getEnv("SNAPSHOT_PG_URL", c.Snapshot.PGURL)
	c.Snapshot.S3Bucket = getEnv("SNAPSHOT_S3_BUCKET", c.Snapshot.S3Bucket)
	c.Snapshot.S3Region = getEnv("SNAPSHOT_S3_REGION", c.Snapshot.S3Region)
	c.Snapshot.S3Endpoint = getEnv("SNAPSHOT_S3_ENDPOINT", c.Snapshot.S3Endpoint)
	c.Snapshot.S3PathStyle = getEnvBool("SNAPSHOT_S3_PATH_STYLE", c.Snapshot.S3PathStyle)
	c.Snapshot.S3Prefix = getEnv("SNAPSHOT_S3_PREFIX", c.Snapshot.S3Prefix)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.DeadLetterStream = getEnv("DEADLETTER_STREAM", c.Redis.DeadLetterStream)

	c.Server.HealthPort = getEnvInt("HEALTH_PORT", c.Server.HealthPort)
	c.Server.AdminAddr = getEnv("ADMIN_ADDR", c.Server.AdminAddr)
	c.Server.AdminRPS = getEnvInt("ADMIN_RPS", c.Server.AdminRPS)

	c.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Log.Level))

	c.Tracing.Enabled = getEnvBool("TRACING_ENABLED", c.Tracing.Enabled)
	c.Tracing.Endpoint = getEnv("TRACING_ENDPOINT", c.Tracing.Endpoint)
	c.Tracing.Insecure = getEnvBool("TRACING_INSECURE", c.Tracing.Insecure)
	c.Tracing.SampleRatio = getEnvFloat("TRACING_SAMPLE_RATIO", c.Tracing.SampleRatio)

	c.Alert.SlackWebhookURL = getEnv("ALERT_SLACK_WEBHOOK_URL", c.Alert.SlackWebhookURL)
	c.Alert.WebhookURL = getEnv("ALERT_WEBHOOK_URL", c.Alert.WebhookURL)
	c.Alert.CooldownSec = getEnvInt("ALERT_COOLDOWN_SEC", c.Alert.CooldownSec)
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

func (c *Config) validate() error {
	var errs []error
	if c.DB.Path == "" {
		errs = append(errs, fmt.Errorf("DB_PATH is required"))
	}
	if c.RPC.URL == "" {
		errs = append(errs, fmt.Errorf("RPC_URL is required"))
	}
	if c.RPC.TimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("RPC_TIMEOUT_SEC must be positive"))
	}
	if !addressPattern.MatchString(c.Hypermap.Address) {
		errs = append(errs, fmt.Errorf("HYPERMAP_ADDRESS %q is not a 20-byte hex address", c.Hypermap.Address))
	}
	if c.Hypermap.FirstBlock < 0 {
		errs = append(errs, fmt.Errorf("HYPERMAP_FIRST_BLOCK must not be negative"))
	}
	if c.Hypermap.RootLabel == "" {
		errs = append(errs, fmt.Errorf("ROOT_LABEL is required"))
	}
	if c.Pipeline.RetryDelayMs <= 0 || c.Pipeline.CheckpointIntervalMs <= 0 ||
		c.Pipeline.BackfillRetryDelayMs <= 0 || c.Pipeline.SubscriptionPollIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("pipeline intervals must be positive"))
	}
	if c.Pipeline.BackfillMaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("BACKFILL_MAX_ATTEMPTS must not be negative"))
	}
	if c.Pipeline.PendingMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("PENDING_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Pipeline.InboxSize < 1 {
		errs = append(errs, fmt.Errorf("INBOX_SIZE must be at least 1"))
	}

	switch c.Snapshot.Backend {
	case SnapshotBackendSQLite:
	case SnapshotBackendPostgres:
		if c.Snapshot.PGURL == "" {
			errs = append(errs, fmt.Errorf("SNAPSHOT_PG_URL is required for the postgres snapshot backend"))
		}
	case SnapshotBackendS3:
		if c.Snapshot.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("SNAPSHOT_S3_BUCKET is required for the s3 snapshot backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("SNAPSHOT_BACKEND %q is not one of sqlite, postgres, s3", c.Snapshot.Backend))
	}
	if c.Snapshot.Name == "" {
		errs = append(errs, fmt.Errorf("SNAPSHOT_NAME is required"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("TRACING_SAMPLE_RATIO must be within [0, 1]"))
	}
	if c.Alert.CooldownSec < 0 {
		errs = append(errs, fmt.Errorf("ALERT_COOLDOWN_SEC must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

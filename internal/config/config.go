// Package config loads the crawl/archive engine's configuration from a YAML
// file overridable by environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the archivist worker.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Crawl    CrawlConfig
	Worker   WorkerConfig
	Browser  BrowserConfig
	Logger   LoggerConfig
	HTTP     HTTPConfig
}

// DatabaseConfig configures the Postgres connection holding sites, crawls,
// crawl_logs, and settings (spec §3, §6).
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns a lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig configures the durable job queue and the event bus (spec §4.2,
// §6).
type RedisConfig struct {
	Address    string
	Password   string
	DB         int
	StreamName string
}

// StorageConfig configures the S3/MinIO-compatible Storage Adapter (spec
// §4.1).
type StorageConfig struct {
	Endpoint             string
	AccessKeyID          string
	SecretAccessKey      string
	Bucket               string
	UseSSL               bool
	TempDir              string
	PartSizeBytes        int64
	PartAttempts         int
	RetryBaseDelay       time.Duration
	BufferFallbackBytes  int64
	PublicURLExpiry      time.Duration
}

// CrawlConfig configures one crawl attempt's behavior (spec §4.4, §6).
type CrawlConfig struct {
	MaxDurationMS             int
	ProgressPersistIntervalMS int
	StatusCheckIntervalMS     int
	PageMaxRetries            int
	PageRetryDelayMS          int
	MaxSiteConcurrency        int
	PageFetchTimeout          time.Duration
	PageNavTimeout            time.Duration
}

// WorkerConfig configures the process-level worker pool and orphan
// reconciliation (spec §5, §4.5, §6).
type WorkerConfig struct {
	CrawlConcurrency             int
	LockDurationMS               int
	StalledIntervalMS            int
	OrphanGraceMS                int
	OrphanReconcileIntervalMS    int
	ArchiveUploadTimeoutMS       int
}

// BrowserConfig configures the pooled headless-browser instances the Page
// Processor falls back to (spec §4.3 "Browser path").
type BrowserConfig struct {
	Instances      int
	Headless       bool
	DisableGPU     bool
	NoSandbox      bool
	UserAgent      string
	StartupTimeout time.Duration
	SitemapOnly    bool
}

// LoggerConfig configures the worker process's structured logger.
type LoggerConfig struct {
	Level       string
	Development bool
}

// HTTPConfig configures the core's own HTTP surface (spec §6 "HTTP surface
// that the core exposes to the external API"): the admin app is expected to
// mount these handlers under its own server, but the core can also serve
// them standalone for local development and the teaching example in
// cmd/archivist.
type HTTPConfig struct {
	Address string
}

// Load reads configuration from an optional YAML file at path, then applies
// environment-variable overrides, matching the table in spec §6.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	setDefaults(cfg)
	bindEnv(v)
	overlayViper(cfg, v)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Database = DatabaseConfig{
		Host: "localhost", Port: 5432, User: "postgres", Database: "crawl_archive",
		SSLMode: "disable", MaxConnections: 25, MaxIdleConns: 5, ConnMaxLifetime: 5 * time.Minute,
	}
	cfg.Redis = RedisConfig{Address: "localhost:6379", DB: 0, StreamName: "crawls:queue"}
	cfg.Storage = StorageConfig{
		Endpoint: "localhost:9000", Bucket: "crawl-archives", TempDir: "",
		PartSizeBytes: 16 * 1024 * 1024, PartAttempts: 4,
		RetryBaseDelay: 300 * time.Millisecond, BufferFallbackBytes: 256 * 1024 * 1024,
		PublicURLExpiry: 15 * time.Minute,
	}
	cfg.Crawl = CrawlConfig{
		MaxDurationMS: 2700000, ProgressPersistIntervalMS: 1500, StatusCheckIntervalMS: 3000,
		PageMaxRetries: 2, PageRetryDelayMS: 2000, MaxSiteConcurrency: 30,
		PageFetchTimeout: 10 * time.Second, PageNavTimeout: 30 * time.Second,
	}
	cfg.Worker = WorkerConfig{
		CrawlConcurrency: 2, LockDurationMS: 900000, StalledIntervalMS: 120000,
		OrphanGraceMS: 300000, OrphanReconcileIntervalMS: 120000, ArchiveUploadTimeoutMS: 600000,
	}
	cfg.Browser = BrowserConfig{
		Instances: 2, Headless: true, DisableGPU: true, NoSandbox: true,
		StartupTimeout: 30 * time.Second,
	}
	cfg.Logger = LoggerConfig{Level: "info"}
	cfg.HTTP = HTTPConfig{Address: ":8090"}
}

// bindEnv binds the exact environment variable names spec §6 lists (they
// don't follow the dotted viper convention, so AutomaticEnv's replacer
// wouldn't find them without explicit binding).
func bindEnv(v *viper.Viper) {
	names := []string{
		"CRAWL_MAX_DURATION_MS", "CRAWL_PROGRESS_PERSIST_INTERVAL_MS", "CRAWL_STATUS_CHECK_INTERVAL_MS",
		"CRAWL_PAGE_MAX_RETRIES", "CRAWL_PAGE_RETRY_DELAY_MS", "MAX_SITE_CONCURRENCY",
		"WORKER_CRAWL_CONCURRENCY", "WORKER_LOCK_DURATION_MS", "WORKER_STALLED_INTERVAL_MS",
		"ORPHAN_CRAWL_GRACE_MS", "ORPHAN_CRAWL_RECONCILE_INTERVAL_MS", "ARCHIVE_UPLOAD_TIMEOUT_MS",
		"S3_MULTIPART_PART_SIZE_BYTES", "S3_UPLOAD_PART_ATTEMPTS", "S3_UPLOAD_RETRY_BASE_DELAY_MS",
		"S3_BUFFER_FALLBACK_MAX_BYTES",
		"REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB",
		"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
		"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET", "MINIO_USE_SSL",
		"LOG_LEVEL", "HTTP_ADDRESS",
	}
	for _, n := range names {
		_ = v.BindEnv(n)
	}
}

func overlayViper(cfg *Config, v *viper.Viper) {
	overlayInt(v, "CRAWL_MAX_DURATION_MS", &cfg.Crawl.MaxDurationMS)
	overlayInt(v, "CRAWL_PROGRESS_PERSIST_INTERVAL_MS", &cfg.Crawl.ProgressPersistIntervalMS)
	overlayInt(v, "CRAWL_STATUS_CHECK_INTERVAL_MS", &cfg.Crawl.StatusCheckIntervalMS)
	overlayInt(v, "CRAWL_PAGE_MAX_RETRIES", &cfg.Crawl.PageMaxRetries)
	overlayInt(v, "CRAWL_PAGE_RETRY_DELAY_MS", &cfg.Crawl.PageRetryDelayMS)
	overlayInt(v, "MAX_SITE_CONCURRENCY", &cfg.Crawl.MaxSiteConcurrency)

	overlayInt(v, "WORKER_CRAWL_CONCURRENCY", &cfg.Worker.CrawlConcurrency)
	overlayInt(v, "WORKER_LOCK_DURATION_MS", &cfg.Worker.LockDurationMS)
	overlayInt(v, "WORKER_STALLED_INTERVAL_MS", &cfg.Worker.StalledIntervalMS)
	overlayInt(v, "ORPHAN_CRAWL_GRACE_MS", &cfg.Worker.OrphanGraceMS)
	overlayInt(v, "ORPHAN_CRAWL_RECONCILE_INTERVAL_MS", &cfg.Worker.OrphanReconcileIntervalMS)
	overlayInt(v, "ARCHIVE_UPLOAD_TIMEOUT_MS", &cfg.Worker.ArchiveUploadTimeoutMS)

	overlayInt64(v, "S3_MULTIPART_PART_SIZE_BYTES", &cfg.Storage.PartSizeBytes)
	overlayInt(v, "S3_UPLOAD_PART_ATTEMPTS", &cfg.Storage.PartAttempts)
	overlayDuration(v, "S3_UPLOAD_RETRY_BASE_DELAY_MS", &cfg.Storage.RetryBaseDelay)
	overlayInt64(v, "S3_BUFFER_FALLBACK_MAX_BYTES", &cfg.Storage.BufferFallbackBytes)

	overlayString(v, "REDIS_ADDRESS", &cfg.Redis.Address)
	overlayString(v, "REDIS_PASSWORD", &cfg.Redis.Password)
	overlayInt(v, "REDIS_DB", &cfg.Redis.DB)

	overlayString(v, "POSTGRES_HOST", &cfg.Database.Host)
	overlayInt(v, "POSTGRES_PORT", &cfg.Database.Port)
	overlayString(v, "POSTGRES_USER", &cfg.Database.User)
	overlayString(v, "POSTGRES_PASSWORD", &cfg.Database.Password)
	overlayString(v, "POSTGRES_DB", &cfg.Database.Database)

	overlayString(v, "MINIO_ENDPOINT", &cfg.Storage.Endpoint)
	overlayString(v, "MINIO_ACCESS_KEY", &cfg.Storage.AccessKeyID)
	overlayString(v, "MINIO_SECRET_KEY", &cfg.Storage.SecretAccessKey)
	overlayString(v, "MINIO_BUCKET", &cfg.Storage.Bucket)
	if v.IsSet("MINIO_USE_SSL") {
		cfg.Storage.UseSSL = v.GetBool("MINIO_USE_SSL")
	}

	overlayString(v, "LOG_LEVEL", &cfg.Logger.Level)
	overlayString(v, "HTTP_ADDRESS", &cfg.HTTP.Address)
}

func overlayInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func overlayInt64(v *viper.Viper, key string, dst *int64) {
	if v.IsSet(key) {
		*dst = v.GetInt64(key)
	}
}

func overlayString(v *viper.Viper, key string, dst *string) {
	if s := v.GetString(key); s != "" {
		*dst = s
	}
}

func overlayDuration(v *viper.Viper, key string, dst *time.Duration) {
	if v.IsSet(key) {
		*dst = time.Duration(v.GetInt64(key)) * time.Millisecond
	}
}

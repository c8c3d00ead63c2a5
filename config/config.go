package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

type Config struct {
	Bookflow BookflowConfig `yaml:"bookflow"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Reader   ReaderConfig   `yaml:"reader"`
	Source   SourceConfig   `yaml:"source"`
	Storage  StorageConfig  `yaml:"storage"`
	Export   ExportConfig   `yaml:"export"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type BookflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	Listen     string           `yaml:"listen"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

// IngestConfig controls the day loop shared by both venues.
type IngestConfig struct {
	Workers         int  `yaml:"workers"`
	DepthLevels     int  `yaml:"depth_levels"`
	ForceFullReload bool `yaml:"force_full_reload"`
}

type ReaderConfig struct {
	Backend   string          `yaml:"backend"` // http or s3
	Timeout   time.Duration   `yaml:"timeout"`
	SpoolDir  string          `yaml:"spool_dir"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry"`
	Pool      PoolConfig      `yaml:"connection_pool"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

type PoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type SourceConfig struct {
	Bybit   BybitSourceConfig   `yaml:"bybit"`
	Binance BinanceSourceConfig `yaml:"binance"`
}

// BybitSourceConfig addresses the snapshot+delta order book archives.
type BybitSourceConfig struct {
	Enabled      bool     `yaml:"enabled"`
	BaseURL      string   `yaml:"base_url"`
	PathTemplate string   `yaml:"path_template"`
	StartDate    string   `yaml:"start_date"`
	EndDate      string   `yaml:"end_date"`
	Symbols      []string `yaml:"symbols"`
}

// BinanceSourceConfig addresses the pre-aggregated depth and ticker archives.
type BinanceSourceConfig struct {
	Enabled               bool     `yaml:"enabled"`
	BaseURL               string   `yaml:"base_url"`
	DepthTemplate         string   `yaml:"depth_template"`
	TickerTemplate        string   `yaml:"ticker_template"`
	TickerMonthlyTemplate string   `yaml:"ticker_monthly_template"`
	TickerCutoff          string   `yaml:"ticker_cutoff"`
	StartDate             string   `yaml:"start_date"`
	EndDate               string   `yaml:"end_date"`
	Symbols               []string `yaml:"symbols"`
}

type StorageConfig struct {
	S3       S3Config       `yaml:"s3"`
	Database DatabaseConfig `yaml:"database"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // postgres or sqlite
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	MinConns int    `yaml:"min_conns"`
	MaxConns int    `yaml:"max_conns"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type ExportConfig struct {
	Parquet ParquetConfig `yaml:"parquet"`
}

type ParquetConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Compression string `yaml:"compression"`
	LocalDir    string `yaml:"local_dir"`
	UploadS3    bool   `yaml:"upload_s3"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with environment values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

var envPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

// LoadConfig reads the YAML file at path, expands ${VAR} references, applies
// defaults and validates the result. An empty path selects the file for APP_ENV.
func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, "config/config.yml", envPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(expandEnv(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_REGION"); v != "" && config.Storage.S3.Region == "" {
		config.Storage.S3.Region = strings.TrimSpace(v)
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		config.Storage.S3.Bucket = strings.TrimSpace(v)
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = 1
	}
	if c.Ingest.DepthLevels == 0 {
		c.Ingest.DepthLevels = 20
	}
	if c.Reader.Backend == "" {
		c.Reader.Backend = "http"
	}
	if c.Reader.Timeout == 0 {
		c.Reader.Timeout = 5 * time.Minute
	}
	if c.Reader.Retry.MaxAttempts == 0 {
		c.Reader.Retry.MaxAttempts = 3
	}
	if c.Reader.Retry.BaseDelay == 0 {
		c.Reader.Retry.BaseDelay = 2 * time.Second
	}
	if c.Reader.Retry.MaxDelay == 0 {
		c.Reader.Retry.MaxDelay = 30 * time.Second
	}
	if c.Reader.Retry.BackoffMultiplier == 0 {
		c.Reader.Retry.BackoffMultiplier = 2
	}
	if c.Reader.RateLimit.RequestsPerSecond == 0 {
		c.Reader.RateLimit.RequestsPerSecond = 5
	}
	if c.Reader.RateLimit.BurstSize == 0 {
		c.Reader.RateLimit.BurstSize = c.Reader.RateLimit.RequestsPerSecond
	}
	if c.Source.Bybit.BaseURL == "" {
		c.Source.Bybit.BaseURL = "https://quote-saver.bycsi.com"
	}
	if c.Source.Bybit.PathTemplate == "" {
		c.Source.Bybit.PathTemplate = "orderbook/linear/{symbol}/{date}_{symbol}_ob500.data.zip"
	}
	if c.Source.Binance.BaseURL == "" {
		c.Source.Binance.BaseURL = "https://data.binance.vision"
	}
	if c.Source.Binance.DepthTemplate == "" {
		c.Source.Binance.DepthTemplate = "data/futures/um/daily/bookDepth/{symbol}/{symbol}-bookDepth-{date}.zip"
	}
	if c.Source.Binance.TickerTemplate == "" {
		c.Source.Binance.TickerTemplate = "data/futures/um/daily/bookTicker/{symbol}/{symbol}-bookTicker-{date}.zip"
	}
	if c.Source.Binance.TickerMonthlyTemplate == "" {
		c.Source.Binance.TickerMonthlyTemplate = "data/futures/um/monthly/bookTicker/{symbol}/{symbol}-bookTicker-{month}.zip"
	}
	if c.Storage.Database.Driver == "" {
		c.Storage.Database.Driver = "sqlite"
	}
	if c.Storage.Database.SQLite.Path == "" {
		c.Storage.Database.SQLite.Path = "data/bookflow.db"
	}
	if c.Storage.Database.Postgres.Port == 0 {
		c.Storage.Database.Postgres.Port = 5432
	}
	if c.Storage.Database.Postgres.MaxConns == 0 {
		c.Storage.Database.Postgres.MaxConns = 4
	}
	if c.Export.Parquet.Compression == "" {
		c.Export.Parquet.Compression = "snappy"
	}
	if c.Metrics.CloudWatch.Namespace == "" {
		c.Metrics.CloudWatch.Namespace = "Bookflow"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Bookflow.Name == "" {
		return fmt.Errorf("bookflow.name is required")
	}
	if c.Bookflow.Version == "" {
		return fmt.Errorf("bookflow.version is required")
	}

	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be >= 1")
	}
	if c.Ingest.DepthLevels < 1 {
		return fmt.Errorf("ingest.depth_levels must be >= 1")
	}

	switch c.Reader.Backend {
	case "http":
	case "s3":
		if !c.Storage.S3.Enabled {
			return fmt.Errorf("reader.backend s3 requires storage.s3.enabled")
		}
	default:
		return fmt.Errorf("reader.backend must be http or s3, got %q", c.Reader.Backend)
	}
	if c.Reader.Timeout <= 0 {
		return fmt.Errorf("reader.timeout must be greater than 0")
	}
	if c.Reader.Retry.MaxAttempts < 1 {
		return fmt.Errorf("reader.retry.max_attempts must be >= 1")
	}
	if c.Reader.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("reader.retry.backoff_multiplier must be >= 1")
	}
	if c.Reader.RateLimit.RequestsPerSecond < 1 {
		return fmt.Errorf("reader.rate_limit.requests_per_second must be >= 1")
	}

	if !c.Source.Bybit.Enabled && !c.Source.Binance.Enabled {
		return fmt.Errorf("at least one of source.bybit or source.binance must be enabled")
	}
	if c.Source.Bybit.Enabled {
		if err := validateDates("source.bybit", c.Source.Bybit.StartDate, c.Source.Bybit.EndDate); err != nil {
			return err
		}
		if len(c.Source.Bybit.Symbols) == 0 {
			return fmt.Errorf("source.bybit.symbols is required")
		}
	}
	if c.Source.Binance.Enabled {
		if err := validateDates("source.binance", c.Source.Binance.StartDate, c.Source.Binance.EndDate); err != nil {
			return err
		}
		if c.Source.Binance.TickerCutoff != "" {
			if _, err := time.Parse(dateLayout, c.Source.Binance.TickerCutoff); err != nil {
				return fmt.Errorf("source.binance.ticker_cutoff must be YYYY-MM-DD: %w", err)
			}
		}
		if len(c.Source.Binance.Symbols) == 0 {
			return fmt.Errorf("source.binance.symbols is required")
		}
	}

	switch c.Storage.Database.Driver {
	case "sqlite":
		if c.Storage.Database.SQLite.Path == "" {
			return fmt.Errorf("storage.database.sqlite.path is required")
		}
	case "postgres":
		if err := c.Storage.Database.Postgres.validate("storage.database.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("storage.database.driver must be postgres or sqlite, got %q", c.Storage.Database.Driver)
	}

	if c.Storage.S3.Enabled {
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(c.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", c.Storage.S3.Bucket)
		}
	}

	if c.Export.Parquet.Enabled {
		switch c.Export.Parquet.Compression {
		case "snappy", "gzip", "zstd", "none":
		default:
			return fmt.Errorf("export.parquet.compression must be snappy, gzip, zstd or none")
		}
		if c.Export.Parquet.UploadS3 && !c.Storage.S3.Enabled {
			return fmt.Errorf("export.parquet.upload_s3 requires storage.s3.enabled")
		}
		if !c.Export.Parquet.UploadS3 && c.Export.Parquet.LocalDir == "" {
			return fmt.Errorf("export.parquet.local_dir is required unless upload_s3 is set")
		}
	}

	return nil
}

func (p *PostgresConfig) validate(prefix string) error {
	if p.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if p.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if p.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if p.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if p.MinConns < 0 || p.MinConns > p.MaxConns {
		return fmt.Errorf("%s.min_conns must be between 0 and max_conns", prefix)
	}
	return nil
}

func validateDates(prefix, start, end string) error {
	if start == "" {
		return fmt.Errorf("%s.start_date is required", prefix)
	}
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return fmt.Errorf("%s.start_date must be YYYY-MM-DD: %w", prefix, err)
	}
	if end == "" {
		return nil
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return fmt.Errorf("%s.end_date must be YYYY-MM-DD: %w", prefix, err)
	}
	if e.Before(s) {
		return fmt.Errorf("%s.end_date is before start_date", prefix)
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD value as a UTC midnight. Empty input yields the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalConfig = `bookflow:
  name: "TestApp"
  version: "1.0"
ingest:
  workers: 2
source:
  bybit:
    enabled: true
    start_date: "2024-01-01"
    symbols: ["BTCUSDT"]
  binance:
    enabled: true
    start_date: "2023-01-01"
    ticker_cutoff: "2024-03-30"
    symbols: ["BTCUSDT", "ETHUSDT"]
storage:
  database:
    driver: sqlite
    sqlite:
      path: "${BOOKFLOW_TEST_DB}"
`

// writeTempConfig writes content to a temporary configuration file and
// returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("BOOKFLOW_TEST_DB", "/tmp/test.db")
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Bookflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Bookflow.Name)
	}
	if cfg.Ingest.Workers != 2 {
		t.Errorf("unexpected workers: %d", cfg.Ingest.Workers)
	}
	if cfg.Storage.Database.SQLite.Path != "/tmp/test.db" {
		t.Errorf("env substitution failed: %q", cfg.Storage.Database.SQLite.Path)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BOOKFLOW_TEST_DB", "/tmp/test.db")
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Ingest.DepthLevels != 20 {
		t.Errorf("depth levels default = %d", cfg.Ingest.DepthLevels)
	}
	if cfg.Reader.Backend != "http" || cfg.Reader.Retry.MaxAttempts != 3 {
		t.Errorf("unexpected reader defaults: %+v", cfg.Reader)
	}
	if cfg.Reader.Timeout != 5*time.Minute {
		t.Errorf("unexpected timeout default: %s", cfg.Reader.Timeout)
	}
	if !strings.Contains(cfg.Source.Bybit.PathTemplate, "{symbol}") {
		t.Errorf("bybit path template default missing: %q", cfg.Source.Bybit.PathTemplate)
	}
	if cfg.Source.Binance.TickerMonthlyTemplate == "" {
		t.Errorf("monthly ticker template default missing")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing name", func(c *Config) { c.Bookflow.Name = "" }, "bookflow.name is required"},
		{"workers", func(c *Config) { c.Ingest.Workers = 0 }, "ingest.workers must be >= 1"},
		{"backend", func(c *Config) { c.Reader.Backend = "ftp" }, "reader.backend must be http or s3"},
		{"s3 backend without s3", func(c *Config) { c.Reader.Backend = "s3" }, "requires storage.s3.enabled"},
		{"no source", func(c *Config) { c.Source.Bybit.Enabled = false; c.Source.Binance.Enabled = false }, "at least one"},
		{"bad start", func(c *Config) { c.Source.Bybit.StartDate = "01/01/2024" }, "source.bybit.start_date must be YYYY-MM-DD"},
		{"end before start", func(c *Config) { c.Source.Binance.EndDate = "2022-01-01" }, "end_date is before start_date"},
		{"driver", func(c *Config) { c.Storage.Database.Driver = "mysql" }, "storage.database.driver"},
		{"postgres host", func(c *Config) { c.Storage.Database.Driver = "postgres" }, "storage.database.postgres.host is required"},
		{"bucket", func(c *Config) {
			c.Storage.S3 = S3Config{Enabled: true, Bucket: "Bad_Bucket", Region: "us-east-1"}
		}, "is invalid"},
		{"parquet target", func(c *Config) { c.Export.Parquet.Enabled = true }, "export.parquet.local_dir is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestValidConfigPasses(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-30")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if !d.Equal(time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date: %s", d)
	}
	zero, err := ParseDate("")
	if err != nil || !zero.IsZero() {
		t.Fatalf("empty date should be zero, got %s %v", zero, err)
	}
}

func TestResolveEnvSpecificPath(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "config.yml")
	prod := filepath.Join(dir, "config.production.yml")
	if err := os.WriteFile(prod, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	paths := map[string]string{environmentProduction: prod}

	t.Setenv("APP_ENV", "prod")
	if got := resolveEnvSpecificPath("", def, paths); got != prod {
		t.Fatalf("expected production path, got %s", got)
	}
	if got := resolveEnvSpecificPath("custom.yml", def, paths); got != "custom.yml" {
		t.Fatalf("explicit path should win, got %s", got)
	}

	t.Setenv("APP_ENV", "")
	if got := resolveEnvSpecificPath("", def, paths); got != def {
		t.Fatalf("development should use default, got %s", got)
	}
}

func validConfig() *Config {
	cfg := &Config{
		Bookflow: BookflowConfig{Name: "bookflow", Version: "test"},
		Source: SourceConfig{
			Bybit:   BybitSourceConfig{Enabled: true, StartDate: "2024-01-01", Symbols: []string{"BTCUSDT"}},
			Binance: BinanceSourceConfig{Enabled: true, StartDate: "2023-01-01", Symbols: []string{"BTCUSDT"}},
		},
	}
	cfg.applyDefaults()
	return cfg
}

package app

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/odyssey-erp/invoicecheck/internal/checker"
	"github.com/odyssey-erp/invoicecheck/internal/recon"
	"github.com/odyssey-erp/invoicecheck/internal/rename"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"55s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	TextExtractorURL     string        `envconfig:"TEXT_EXTRACTOR_URL" default:"http://127.0.0.1:3000"`
	TextExtractorTimeout time.Duration `envconfig:"TEXT_EXTRACTOR_TIMEOUT" default:"30s"`
	TextCacheTTL         time.Duration `envconfig:"TEXT_CACHE_TTL" default:"24h"`

	AmountTolerance     float64  `envconfig:"AMOUNT_TOLERANCE" default:"0.5"`
	InvoiceCodePrefixes []string `envconfig:"INVOICE_CODE_PREFIXES" default:"OM,PTR"`
	CheckConcurrency    int      `envconfig:"CHECK_CONCURRENCY" default:"4"`
	MaxDocumentBytes    int64    `envconfig:"MAX_DOCUMENT_BYTES" default:"20971520"`
	MaxUploadBytes      int64    `envconfig:"MAX_UPLOAD_BYTES" default:"67108864"`

	WatchDir  string `envconfig:"WATCH_DIR"`
	OutputDir string `envconfig:"OUTPUT_DIR"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.AmountTolerance < 0 || math.IsNaN(c.AmountTolerance) || math.IsInf(c.AmountTolerance, 0) {
		return fmt.Errorf("amount tolerance must be a finite non-negative number, got %v", c.AmountTolerance)
	}
	if len(c.prefixes()) == 0 {
		return errors.New("at least one invoice code prefix must be provided")
	}
	if c.CheckConcurrency < 1 {
		return fmt.Errorf("check concurrency must be positive, got %d", c.CheckConcurrency)
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Engine builds the immutable reconciliation and renaming policies.
func (c *Config) Engine() (recon.Config, rename.Config) {
	return recon.Config{AmountTolerance: c.AmountTolerance}, rename.Config{Prefixes: c.prefixes()}
}

// Checker builds the pipeline configuration.
func (c *Config) Checker() checker.Config {
	rc, nc := c.Engine()
	return checker.Config{
		Recon:            rc,
		Rename:           nc,
		Concurrency:      c.CheckConcurrency,
		MaxDocumentBytes: c.MaxDocumentBytes,
	}
}

func (c *Config) prefixes() []string {
	out := make([]string, 0, len(c.InvoiceCodePrefixes))
	for _, p := range c.InvoiceCodePrefixes {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

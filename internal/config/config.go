package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string

	POSBaseURL  string
	POSLogin    string
	POSPassword string

	Departments  []string
	ProductCodes []string

	LedgerTable     string
	AnchorTable     string
	LifecycleTable  string
	DiffDetailTable string
	DiffTotalTable  string
	LifecycleProc   string

	CronSchedule string
	Timezone     string
	APIPort      string
	LogLevel     string

	dateFrom string
	dateTo   string
}

func New() (*Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	cfg := &Config{
		DatabaseURL:     databaseURL,
		POSBaseURL:      strings.TrimRight(os.Getenv("POS_BASE_URL"), "/"),
		POSLogin:        os.Getenv("POS_LOGIN"),
		POSPassword:     os.Getenv("POS_PASSWORD"),
		Departments:     splitList(os.Getenv("DEPARTMENTS")),
		ProductCodes:    splitList(os.Getenv("PRODUCT_CODES")),
		LedgerTable:     getEnvOrDefault("LEDGER_TABLE", "stock_tx_ledger"),
		AnchorTable:     getEnvOrDefault("ANCHOR_TABLE", "production_fact_anchor"),
		LifecycleTable:  getEnvOrDefault("LIFECYCLE_TABLE", "batch_lifecycle"),
		DiffDetailTable: getEnvOrDefault("DIFF_DETAIL_TABLE", "production_diff_detail"),
		DiffTotalTable:  getEnvOrDefault("DIFF_TOTAL_TABLE", "production_diff_total"),
		LifecycleProc:   getEnvOrDefault("LIFECYCLE_REFRESH_PROC", "refresh_batch_lifecycle"),
		CronSchedule:    os.Getenv("CRON_SCHEDULE"),
		Timezone:        getEnvOrDefault("TIMEZONE", "Europe/Moscow"),
		APIPort:         getEnvOrDefault("API_PORT", "8080"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		dateFrom:        os.Getenv("DATE_FROM"),
		dateTo:          os.Getenv("DATE_TO"),
	}

	if _, _, err := cfg.Period(time.Now()); err != nil {
		return nil, err
	}

	if path := os.Getenv("PIPELINE_CONFIG"); path != "" {
		if err := cfg.applyPipelineFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Period resolves the reporting window for a run starting at now. Both bounds
// come from DATE_FROM/DATE_TO when set; otherwise the window is yesterday up
// to today. The upper bound is exclusive.
func (c *Config) Period(now time.Time) (time.Time, time.Time, error) {
	if c.dateFrom != "" && c.dateTo != "" {
		from, err := time.Parse("2006-01-02", c.dateFrom)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid value for DATE_FROM: expected YYYY-MM-DD, got '%s'", c.dateFrom)
		}
		to, err := time.Parse("2006-01-02", c.dateTo)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid value for DATE_TO: expected YYYY-MM-DD, got '%s'", c.dateTo)
		}
		// The report filter rejects an empty window. An inverted or
		// zero-length range widens to a single day.
		if !to.After(from) {
			to = from.AddDate(0, 0, 1)
		}
		return from, to, nil
	}

	year, month, day := now.Date()
	today := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -1), today, nil
}

type pipelineFile struct {
	Pipeline struct {
		Departments  []string `yaml:"departments"`
		ProductCodes []string `yaml:"product_codes"`
		Schedule     string   `yaml:"schedule"`
	} `yaml:"pipeline"`
}

func (c *Config) applyPipelineFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read pipeline config %s: %w", path, err)
	}

	var file pipelineFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse pipeline config %s: %w", path, err)
	}

	if len(file.Pipeline.Departments) > 0 {
		c.Departments = file.Pipeline.Departments
	}
	if len(file.Pipeline.ProductCodes) > 0 {
		c.ProductCodes = file.Pipeline.ProductCodes
	}
	if file.Pipeline.Schedule != "" {
		c.CronSchedule = file.Pipeline.Schedule
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

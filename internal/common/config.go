package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Docs     DocsConfig     `yaml:"docs"`
	OCR      OCRConfig      `yaml:"ocr"`
	LLM      LLMConfig      `yaml:"llm"`
	Batch    BatchConfig    `yaml:"batch"`
	Fetch    FetchConfig    `yaml:"fetch"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// DocsConfig holds the on-disk document store configuration.
type DocsConfig struct {
	Root     string `yaml:"root"`      // directory fetched PDFs are stored under
	LockPath string `yaml:"lock_path"` // single-instance pid lock file
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Pdftotext   string `yaml:"pdftotext"`
	Pdftoppm    string `yaml:"pdftoppm"`
	Tesseract   string `yaml:"tesseract"`
	TessdataDir string `yaml:"tessdata_dir"`
	DPI         int    `yaml:"dpi"`
	MaxPages    int    `yaml:"max_pages"`
	PSM         int    `yaml:"psm"`
}

// LLMConfig holds generative-text service configuration
type LLMConfig struct {
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// BatchConfig holds batch-runner configuration
type BatchConfig struct {
	Workers        int           `yaml:"workers"`
	Limit          int           `yaml:"limit"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	MinFreeMemory  uint64        `yaml:"min_free_memory"` // bytes
	MaxCPUPercent  float64       `yaml:"max_cpu_percent"`
	CronSpec       string        `yaml:"cron_spec"` // docket-watchd schedule
}

// FetchConfig holds the authenticated retrieval session configuration.
type FetchConfig struct {
	LoginURL string        `yaml:"login_url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Docs: DocsConfig{
			Root:     getEnv("DOCS_ROOT", "./docs"),
			LockPath: getEnv("LOCK_PATH", "/tmp/docketwatch.pid"),
		},
		OCR: OCRConfig{
			Pdftotext:   getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:    getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:   getEnv("TESSERACT_BIN", "tesseract"),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			DPI:         getEnvAsInt("OCR_DPI", 300),
			MaxPages:    getEnvAsInt("OCR_MAX_PAGES", 0),
			PSM:         getEnvAsInt("OCR_PSM", 1),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.2),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Batch: BatchConfig{
			Workers:        getEnvAsInt("BATCH_WORKERS", 3),
			Limit:          getEnvAsInt("BATCH_LIMIT", 25),
			AttemptTimeout: getEnvAsDuration("BATCH_ATTEMPT_TIMEOUT", 600*time.Second),
			RetryDelay:     getEnvAsDuration("BATCH_RETRY_DELAY", 15*time.Second),
			MinFreeMemory:  getEnvAsUint64("BATCH_MIN_FREE_MEMORY", 1<<30),
			MaxCPUPercent:  getEnvAsFloat64("BATCH_MAX_CPU_PERCENT", 90),
			CronSpec:       getEnv("BATCH_CRON", "0 15 * * * *"),
		},
		Fetch: FetchConfig{
			LoginURL: getEnv("COURT_LOGIN_URL", ""),
			Username: getEnv("COURT_USERNAME", ""),
			Password: getEnv("COURT_PASSWORD", ""),
			Timeout:  getEnvAsDuration("FETCH_TIMEOUT", 60*time.Second),
		},
	}
}

// ApplyFile overlays values from a YAML config file onto c. Zero values
// in the file leave the env-derived value in place.
func (c *Config) ApplyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var over Config
	if err := yaml.Unmarshal(b, &over); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	mergeConfig(c, &over)
	return nil
}

func mergeConfig(dst, src *Config) {
	if src.Database.DSN != "" {
		dst.Database.DSN = src.Database.DSN
	}
	if src.Database.MaxConns != 0 {
		dst.Database.MaxConns = src.Database.MaxConns
	}
	if src.Database.MinConns != 0 {
		dst.Database.MinConns = src.Database.MinConns
	}
	if src.Docs.Root != "" {
		dst.Docs.Root = src.Docs.Root
	}
	if src.Docs.LockPath != "" {
		dst.Docs.LockPath = src.Docs.LockPath
	}
	if src.OCR.Tesseract != "" {
		dst.OCR.Tesseract = src.OCR.Tesseract
	}
	if src.OCR.DPI != 0 {
		dst.OCR.DPI = src.OCR.DPI
	}
	if src.OCR.MaxPages != 0 {
		dst.OCR.MaxPages = src.OCR.MaxPages
	}
	if src.LLM.Model != "" {
		dst.LLM.Model = src.LLM.Model
	}
	if src.LLM.APIKey != "" {
		dst.LLM.APIKey = src.LLM.APIKey
	}
	if src.LLM.BaseURL != "" {
		dst.LLM.BaseURL = src.LLM.BaseURL
	}
	if src.Batch.Workers != 0 {
		dst.Batch.Workers = src.Batch.Workers
	}
	if src.Batch.Limit != 0 {
		dst.Batch.Limit = src.Batch.Limit
	}
	if src.Batch.AttemptTimeout != 0 {
		dst.Batch.AttemptTimeout = src.Batch.AttemptTimeout
	}
	if src.Batch.CronSpec != "" {
		dst.Batch.CronSpec = src.Batch.CronSpec
	}
	if src.Fetch.LoginURL != "" {
		dst.Fetch.LoginURL = src.Fetch.LoginURL
	}
	if src.Fetch.Username != "" {
		dst.Fetch.Username = src.Fetch.Username
	}
	if src.Fetch.Password != "" {
		dst.Fetch.Password = src.Fetch.Password
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Docs.Root == "" {
		return NewAppError("CONFIG_ERROR", "DOCS_ROOT is required", ErrInvalidInput)
	}
	return nil
}

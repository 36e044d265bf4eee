package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Firebase FirebaseConfig
	Storage  StorageConfig
	LLM      LLMConfig
	Sandbox  SandboxConfig
	Arxiv    ArxivConfig
	App      AppConfig
}

type ServerConfig struct {
	Port               string
	CORSAllowedOrigins []string
	SyncRequestTimeout time.Duration
}

type DatabaseConfig struct {
	DSN      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

type FirebaseConfig struct {
	CredentialsPath string
}

type StorageConfig struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// Enabled reports whether uploaded and fetched PDFs are kept in object storage.
func (s StorageConfig) Enabled() bool { return s.Bucket != "" }

type LLMConfig struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	MaxRetries   int
	Timeout      time.Duration
}

type SandboxConfig struct {
	APIURL            string
	APIKey            string
	Domain            string
	Timeout           time.Duration
	TemplateEnvSuffix string
}

type ArxivConfig struct {
	BaseURL    string
	ExportURL  string
	RatePerSec float64
}

type AppConfig struct {
	Environment       string
	LogLevel          string
	Version           string
	ReaperSchedule    string
	StaleProjectAfter time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			SyncRequestTimeout: getEnvAsDuration("SYNC_REQUEST_TIMEOUT", 5*time.Minute),
		},
		Database: DatabaseConfig{
			DSN:      getEnv("DB_DSN", ""),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			LockTTL:  getEnvAsDuration("PROJECT_LOCK_TTL", 10*time.Minute),
		},
		Firebase: FirebaseConfig{
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		},
		Storage: StorageConfig{
			Bucket:   getEnv("S3_BUCKET", ""),
			Region:   getEnv("S3_REGION", "us-east-1"),
			Endpoint: getEnv("S3_ENDPOINT", ""),
			Prefix:   getEnv("S3_PREFIX", "pdfs"),
		},
		LLM: LLMConfig{
			BaseURL:      getEnv("LLM_BASE_URL", ""),
			APIKey:       getEnv("LLM_API_KEY", ""),
			DefaultModel: getEnv("LLM_DEFAULT_MODEL", "gpt-4.1"),
			MaxRetries:   getEnvAsInt("LLM_MAX_RETRIES", 2),
			Timeout:      getEnvAsDuration("LLM_TIMEOUT", 3*time.Minute),
		},
		Sandbox: SandboxConfig{
			APIURL:            getEnv("SANDBOX_API_URL", ""),
			APIKey:            getEnv("SANDBOX_API_KEY", ""),
			Domain:            getEnv("SANDBOX_DOMAIN", ""),
			Timeout:           getEnvAsDuration("SANDBOX_TIMEOUT", 10*time.Minute),
			TemplateEnvSuffix: getEnv("TEMPLATE_ENV_SUFFIX", ""),
		},
		Arxiv: ArxivConfig{
			BaseURL:    getEnv("ARXIV_BASE_URL", "https://arxiv.org"),
			ExportURL:  getEnv("ARXIV_EXPORT_URL", "https://export.arxiv.org"),
			RatePerSec: getEnvAsFloat("ARXIV_RATE_PER_SEC", 1),
		},
		App: AppConfig{
			Environment:       getEnv("APP_ENV", "development"),
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			Version:           getEnv("APP_VERSION", "1.0.0"),
			ReaperSchedule:    getEnv("REAPER_SCHEDULE", "0 */5 * * * *"),
			StaleProjectAfter: getEnvAsDuration("STALE_PROJECT_AFTER", 15*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}

	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.Database.MinConns, c.Database.MaxConns)
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}

	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("LLM_MAX_RETRIES must not be negative")
	}

	if c.Sandbox.APIKey == "" {
		return fmt.Errorf("SANDBOX_API_KEY is required")
	}

	if c.Sandbox.APIURL == "" {
		return fmt.Errorf("SANDBOX_API_URL is required")
	}

	if c.Arxiv.RatePerSec <= 0 {
		return fmt.Errorf("ARXIV_RATE_PER_SEC must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %g", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

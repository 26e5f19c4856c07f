package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aryan0dhankhar/requestdesk/pkg/database"
)

const devJWTSecret = "change-me-in-production"

// Config holds the application configuration
type Config struct {
	Environment        string
	ServerPort         int
	LogLevel           string
	CORSAllowedOrigins []string

	// StorageBackend selects postgres or memory repositories.
	StorageBackend string
	Database       *database.Config
	RedisURL       string

	JWTSecret string
	JWTIssuer string
	ClientURL string

	Blob BlobConfig
	Mail MailConfig

	RateLimitRPS           float64
	RateLimitBurst         int
	AuthRateLimitPerMinute int
	MaxUploadBytes         int64

	Tracing TracingConfig
}

// TracingConfig enables the OTLP exporter when Endpoint is set.
type TracingConfig struct {
	Endpoint    string
	SampleRatio float64
}

// BlobConfig selects where request attachments and receipt images live.
type BlobConfig struct {
	Backend    string // local | s3
	UploadDir  string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	AccessKey  string
	SecretKey  string
}

type MailConfig struct {
	Provider     string // smtp | resend | log
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPSSL      bool
	ResendAPIKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	dbMaxOpen, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "465"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	smtpSSL, err := strconv.ParseBool(getEnv("SMTP_SSL", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_SSL: %w", err)
	}

	rps, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := strconv.Atoi(getEnv("RATE_LIMIT_BURST", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	authPerMinute, err := strconv.Atoi(getEnv("AUTH_RATE_LIMIT_PER_MINUTE", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_RATE_LIMIT_PER_MINUTE: %w", err)
	}

	maxUploadMB, err := strconv.Atoi(getEnv("MAX_UPLOAD_MB", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_MB: %w", err)
	}

	sampleRatio, err := strconv.ParseFloat(getEnv("OTEL_TRACES_SAMPLE_RATIO", "1"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid OTEL_TRACES_SAMPLE_RATIO: %w", err)
	}

	cfg := &Config{
		Environment:        getEnv("ENVIRONMENT", "development"),
		ServerPort:         port,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		StorageBackend:     strings.ToLower(getEnv("STORAGE_BACKEND", "postgres")),
		Database: &database.Config{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            dbPort,
			User:            getEnv("DB_USER", "requestdesk"),
			Password:        getEnv("DB_PASSWORD", "dev"),
			Database:        getEnv("DB_NAME", "requestdesk"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    dbMaxOpen,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		RedisURL:  os.Getenv("REDIS_URL"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTIssuer: getEnv("JWT_ISSUER", "requestdesk"),
		ClientURL: strings.TrimRight(getEnv("CLIENT_URL", "http://localhost:5173"), "/"),
		Blob: BlobConfig{
			Backend:    strings.ToLower(getEnv("BLOB_BACKEND", "local")),
			UploadDir:  getEnv("UPLOAD_DIR", "uploads"),
			S3Bucket:   os.Getenv("S3_BUCKET"),
			S3Region:   getEnv("S3_REGION", "us-east-1"),
			S3Endpoint: os.Getenv("S3_ENDPOINT"),
			AccessKey:  os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey:  os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
		Mail: MailConfig{
			Provider:     strings.ToLower(getEnv("MAIL_PROVIDER", "log")),
			From:         getEnv("MAIL_FROM", "no-reply@requestdesk.local"),
			SMTPHost:     os.Getenv("SMTP_HOST"),
			SMTPPort:     smtpPort,
			SMTPUser:     os.Getenv("SMTP_USER"),
			SMTPPassword: os.Getenv("SMTP_PASSWORD"),
			SMTPSSL:      smtpSSL,
			ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		},
		RateLimitRPS:           rps,
		RateLimitBurst:         burst,
		AuthRateLimitPerMinute: authPerMinute,
		MaxUploadBytes:         int64(maxUploadMB) << 20,
		Tracing: TracingConfig{
			Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			SampleRatio: sampleRatio,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q", c.StorageBackend)
	}
	switch c.Blob.Backend {
	case "local":
	case "s3":
		if c.Blob.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND=s3")
		}
	default:
		return fmt.Errorf("invalid BLOB_BACKEND %q", c.Blob.Backend)
	}
	switch c.Mail.Provider {
	case "log":
	case "smtp":
		if c.Mail.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when MAIL_PROVIDER=smtp")
		}
	case "resend":
		if c.Mail.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required when MAIL_PROVIDER=resend")
		}
	default:
		return fmt.Errorf("invalid MAIL_PROVIDER %q", c.Mail.Provider)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLE_RATIO must be between 0 and 1")
	}
	if c.JWTSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.JWTSecret = devJWTSecret
	}
	return nil
}

// IsProduction reports whether ENVIRONMENT=production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsingDevSecret reports whether the fallback signing secret is in use.
func (c *Config) UsingDevSecret() bool {
	return c.JWTSecret == devJWTSecret
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

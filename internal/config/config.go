package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Blob storage backends selectable with BLOB_BACKEND.
const (
	BlobBackendDisk   = "disk"
	BlobBackendMemory = "memory"
	BlobBackendS3     = "s3"
)

// minSigningKeyLength is the shortest JWT_SIGNING_KEY accepted outside development.
const minSigningKeyLength = 32

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir        string        `mapstructure:"MIGRATIONS_DIR"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	CacheTTL             time.Duration `mapstructure:"CACHE_TTL"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	JWTSigningKey        string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer            string        `mapstructure:"JWT_ISSUER"`
	TokenTTL             time.Duration `mapstructure:"TOKEN_TTL"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	UploadMaxBytes       int64         `mapstructure:"UPLOAD_MAX_BYTES"`
	BlobBackend          string        `mapstructure:"BLOB_BACKEND"`
	UploadDir            string        `mapstructure:"UPLOAD_DIR"`
	S3Bucket             string        `mapstructure:"S3_BUCKET"`
	S3Region             string        `mapstructure:"S3_REGION"`
	S3Endpoint           string        `mapstructure:"S3_ENDPOINT"`
	S3AccessKeyID        string        `mapstructure:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey    string        `mapstructure:"S3_SECRET_ACCESS_KEY"`
	S3Prefix             string        `mapstructure:"S3_PREFIX"`
	WorkerCount          int           `mapstructure:"WORKER_COUNT"`
	WorkerQueueSize      int           `mapstructure:"WORKER_QUEUE_SIZE"`
	JobTimeout           time.Duration `mapstructure:"JOB_TIMEOUT"`
	MaxTextLength        int           `mapstructure:"MAX_TEXT_LENGTH"`
	DedupeMedications    bool          `mapstructure:"DEDUPE_MEDICATIONS"`
	OCRCommand           string        `mapstructure:"OCR_COMMAND"`
	UnidocLicenseKey     string        `mapstructure:"UNIDOC_LICENSE_KEY"`
	AutoUpdateConfidence int           `mapstructure:"AUTO_UPDATE_CONFIDENCE"`
	AuditEnabled         bool          `mapstructure:"AUDIT_ENABLED"`
	TLSEnabled           bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile          string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile           string        `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"REDIS_URL", "CACHE_TTL", "CORS_ORIGINS",
	"JWT_SIGNING_KEY", "JWT_ISSUER", "TOKEN_TTL",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "UPLOAD_MAX_BYTES",
	"BLOB_BACKEND", "UPLOAD_DIR",
	"S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "S3_PREFIX",
	"WORKER_COUNT", "WORKER_QUEUE_SIZE", "JOB_TIMEOUT",
	"MAX_TEXT_LENGTH", "DEDUPE_MEDICATIONS", "OCR_COMMAND", "UNIDOC_LICENSE_KEY",
	"AUTO_UPDATE_CONFIDENCE", "AUDIT_ENABLED",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("CACHE_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("JWT_ISSUER", "medreports")
	v.SetDefault("TOKEN_TTL", "8h")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("UPLOAD_MAX_BYTES", 10<<20)
	v.SetDefault("BLOB_BACKEND", BlobBackendDisk)
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("WORKER_COUNT", 4)
	v.SetDefault("WORKER_QUEUE_SIZE", 100)
	v.SetDefault("JOB_TIMEOUT", "2m")
	v.SetDefault("MAX_TEXT_LENGTH", 5000)
	v.SetDefault("DEDUPE_MEDICATIONS", false)
	v.SetDefault("OCR_COMMAND", "tesseract")
	v.SetDefault("AUTO_UPDATE_CONFIDENCE", 70)
	v.SetDefault("AUDIT_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development a
// JWT signing key of at least 32 bytes is required.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.JWTSigningKey == "" {
			return fmt.Errorf("JWT_SIGNING_KEY is required when ENV=%q", c.Env)
		}
		if len(c.JWTSigningKey) < minSigningKeyLength {
			return fmt.Errorf("JWT_SIGNING_KEY must be at least %d bytes, got %d", minSigningKeyLength, len(c.JWTSigningKey))
		}
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}

	switch c.BlobBackend {
	case BlobBackendMemory:
	case BlobBackendDisk:
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required when BLOB_BACKEND is %q", BlobBackendDisk)
		}
	case BlobBackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND is %q", BlobBackendS3)
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be %q, %q or %q, got %q", BlobBackendDisk, BlobBackendMemory, BlobBackendS3, c.BlobBackend)
	}

	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.UploadMaxBytes)
	}
	if c.AutoUpdateConfidence < 0 || c.AutoUpdateConfidence > 100 {
		return fmt.Errorf("AUTO_UPDATE_CONFIDENCE must be between 0 and 100, got %d", c.AutoUpdateConfidence)
	}
	if c.WorkerCount <= 0 || c.WorkerQueueSize <= 0 {
		return fmt.Errorf("WORKER_COUNT and WORKER_QUEUE_SIZE must be positive")
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}

// Package config reads service settings from the environment.
//
// A .env file in the working directory, when present, seeds variables that
// are not already set. Everything downstream receives a validated Config and
// never calls os.Getenv itself.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendDir = "dir"
	BackendS3  = "s3"

	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"

	ErrorPolicyPending = "pending"
	ErrorPolicyFailed  = "failed"
)

// Config is the full set of knobs for the API and the smoke client.
type Config struct {
	ListenAddr     string
	DatabaseURL    string
	DBDriver       string
	MigrateOnStart bool

	FireEyeBaseURL     string
	FireEyeToken       string
	FireEyeTimeout     time.Duration
	FireEyeErrorPolicy string

	SamplesBackend string
	SamplesDir     string
	SamplesPrefix  string
	MinioEndpoint  string
	MinioBucket    string
	MinioAccessKey string
	MinioSecretKey string

	NATSURL     string
	NATSSubject string

	LogLevel  string
	LogFormat string
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		ListenAddr:         ":8000",
		DBDriver:           DriverPostgres,
		MigrateOnStart:     true,
		FireEyeTimeout:     60 * time.Second,
		FireEyeErrorPolicy: ErrorPolicyPending,
		SamplesBackend:     BackendDir,
		SamplesDir:         "./uploads/samples",
		SamplesPrefix:      "samples/",
		NATSSubject:        "analysis.fireeye.submitted",
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

// Load reads .env (if any) and the process environment on top of Default.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("DB_DRIVER", &cfg.DBDriver)
	str("FIREEYE_BASE_URL", &cfg.FireEyeBaseURL)
	str("FIREEYE_API_TOKEN", &cfg.FireEyeToken)
	str("FIREEYE_ERROR_POLICY", &cfg.FireEyeErrorPolicy)
	str("SAMPLES_BACKEND", &cfg.SamplesBackend)
	str("APP_UPLOADS_SAMPLES", &cfg.SamplesDir)
	str("SAMPLES_PREFIX", &cfg.SamplesPrefix)
	str("MINIO_ENDPOINT", &cfg.MinioEndpoint)
	str("MINIO_BUCKET", &cfg.MinioBucket)
	str("MINIO_ACCESS_KEY", &cfg.MinioAccessKey)
	str("MINIO_SECRET_KEY", &cfg.MinioSecretKey)
	str("NATS_URL", &cfg.NATSURL)
	str("NATS_SUBJECT", &cfg.NATSSubject)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	if v, ok := lookup("MIGRATE_ON_START"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("MIGRATE_ON_START: %w", err)
		}
		cfg.MigrateOnStart = b
	}
	if v, ok := lookup("FIREEYE_TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("FIREEYE_TIMEOUT: %w", err)
		}
		cfg.FireEyeTimeout = d
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.DBDriver = strings.ToLower(c.DBDriver)
	c.FireEyeErrorPolicy = strings.ToLower(c.FireEyeErrorPolicy)
	c.SamplesBackend = strings.ToLower(c.SamplesBackend)
	c.FireEyeBaseURL = strings.TrimRight(c.FireEyeBaseURL, "/")
}

// Validate reports the first missing or malformed setting.
func (c *Config) Validate() error {
	var problems []string

	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is not set")
	}
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		problems = append(problems, fmt.Sprintf("DB_DRIVER: unsupported value %q", c.DBDriver))
	}
	if c.FireEyeBaseURL == "" {
		problems = append(problems, "FIREEYE_BASE_URL is not set")
	}
	if c.FireEyeTimeout <= 0 {
		problems = append(problems, "FIREEYE_TIMEOUT must be positive")
	}
	switch c.FireEyeErrorPolicy {
	case ErrorPolicyPending, ErrorPolicyFailed:
	default:
		problems = append(problems, fmt.Sprintf("FIREEYE_ERROR_POLICY: unsupported value %q", c.FireEyeErrorPolicy))
	}
	switch c.SamplesBackend {
	case BackendDir:
		if c.SamplesDir == "" {
			problems = append(problems, "APP_UPLOADS_SAMPLES is not set")
		}
	case BackendS3:
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			problems = append(problems, "MINIO_ENDPOINT and MINIO_BUCKET are required for the s3 backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("SAMPLES_BACKEND: unsupported value %q", c.SamplesBackend))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

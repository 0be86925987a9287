package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig is the environment surface read by WithEnv. Unset variables keep
// the value already in the ServerConfig.
type envConfig struct {
	Port        string `env:"PORT"`
	Environment string `env:"ENVIRONMENT"`

	// DatabaseURL is "memory" or a postgres:// / postgresql:// URL
	DatabaseURL string `env:"DATABASE_URL"`
	DBSchema    string `env:"DB_SCHEMA"`
	AutoMigrate string `env:"AUTO_MIGRATE"`

	// StorageURL is one of memory://, file:///path/to/data or
	// s3://bucket?region=..&endpoint=..&path_style=true&sse=AES256&create_bucket=true
	StorageURL   string `env:"STORAGE_URL"`
	ImageBaseURL string `env:"IMAGE_BASE_URL"`
	URLStrategy  string `env:"URL_STRATEGY"`
	APIBaseURL   string `env:"API_BASE_URL"`
	ObjectKeys   string `env:"OBJECT_KEY_STRATEGY"`

	MaxConcurrency   int           `env:"MAX_CONCURRENCY"`
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT"`
	EventLogging     string        `env:"EVENT_LOGGING"`

	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSRegion          string `env:"AWS_REGION"`
}

// WithEnv applies environment variable overrides.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env envConfig
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}

		if env.Port != "" {
			c.Port = env.Port
		}
		if env.Environment != "" {
			c.Environment = env.Environment
		}
		if env.DBSchema != "" {
			c.DBSchema = env.DBSchema
		}
		if env.ImageBaseURL != "" {
			c.ImageBaseURL = env.ImageBaseURL
		}
		if env.URLStrategy != "" {
			c.URLStrategy = env.URLStrategy
		}
		if env.APIBaseURL != "" {
			c.APIBaseURL = env.APIBaseURL
		}
		if env.ObjectKeys != "" {
			c.ObjectKeyStrategy = env.ObjectKeys
		}
		if env.MaxConcurrency != 0 {
			c.MaxConcurrency = env.MaxConcurrency
		}
		if env.OperationTimeout != 0 {
			c.OperationTimeout = env.OperationTimeout
		}
		if err := applyBoolEnv("AUTO_MIGRATE", env.AutoMigrate, &c.AutoMigrate); err != nil {
			return err
		}
		if err := applyBoolEnv("EVENT_LOGGING", env.EventLogging, &c.EnableEventLogging); err != nil {
			return err
		}

		if err := applyDatabaseURL(env.DatabaseURL, c); err != nil {
			return err
		}
		if env.StorageURL != "" {
			storage, err := ParseStorageURL(env.StorageURL)
			if err != nil {
				return err
			}
			if storage.Type == "s3" {
				setIfEmpty(storage.Config, "access_key_id", env.AWSAccessKeyID)
				setIfEmpty(storage.Config, "secret_access_key", env.AWSSecretAccessKey)
				setIfEmpty(storage.Config, "region", env.AWSRegion)
			}
			c.Storage = storage
		}
		return nil
	}
}

func applyBoolEnv(name, raw string, target *bool) error {
	if raw == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid boolean for %s: %w", name, err)
	}
	*target = parsed
	return nil
}

// applyDatabaseURL detects the database type from the URL scheme
func applyDatabaseURL(dbURL string, c *ServerConfig) error {
	switch {
	case dbURL == "":
		return nil
	case dbURL == "memory":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
	}
	return nil
}

// ParseStorageURL turns a storage connection string into a backend config.
func ParseStorageURL(raw string) (StorageBackendConfig, error) {
	if raw == "memory" {
		raw = "memory://"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return StorageBackendConfig{}, fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	switch u.Scheme {
	case "memory":
		return StorageBackendConfig{Type: "memory", Config: map[string]interface{}{}}, nil

	case "file":
		path := u.Host + u.Path
		if path == "" {
			return StorageBackendConfig{}, fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		return StorageBackendConfig{Type: "fs", Config: map[string]interface{}{"base_dir": path}}, nil

	case "s3":
		if u.Host == "" {
			return StorageBackendConfig{}, fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
		}
		q := u.Query()
		config := map[string]interface{}{
			"bucket": u.Host,
			"region": "us-east-1",
		}
		if v := q.Get("region"); v != "" {
			config["region"] = v
		}
		if v := q.Get("endpoint"); v != "" {
			config["endpoint"] = v
		}
		if v := q.Get("path_style"); v != "" {
			config["use_path_style"] = v
		}
		if v := q.Get("sse"); v != "" {
			config["enable_sse"] = true
			config["sse_algorithm"] = v
		}
		if v := q.Get("kms_key_id"); v != "" {
			config["sse_kms_key_id"] = v
		}
		if v := q.Get("create_bucket"); v != "" {
			config["create_bucket_if_not_exist"] = v
		}
		return StorageBackendConfig{Type: "s3", Config: config}, nil
	}

	return StorageBackendConfig{}, fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", raw)
}

func setIfEmpty(config map[string]interface{}, key, value string) {
	if value == "" {
		return
	}
	if _, exists := config[key]; !exists {
		config[key] = value
	}
}

package config

import (
	"fmt"
	"time"

	"github.com/tendant/content-graph/pkg/contentgraph/objectkey"
	"github.com/tendant/content-graph/pkg/contentgraph/urlstrategy"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the Postgres schema
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate enables table creation on startup
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithMemoryStorage stores images in memory
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.Storage = StorageBackendConfig{Type: "memory", Config: map[string]interface{}{}}
		return nil
	}
}

// WithFilesystemStorage stores images below baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage = StorageBackendConfig{Type: "fs", Config: map[string]interface{}{"base_dir": baseDir}}
		return nil
	}
}

// WithS3Storage stores images in an S3 bucket. Credentials come from the
// default AWS chain unless WithS3Credentials is applied afterwards.
func WithS3Storage(bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1"
		}
		c.Storage = StorageBackendConfig{
			Type:   "s3",
			Config: map[string]interface{}{"bucket": bucket, "region": region},
		}
		return nil
	}
}

// WithS3Credentials sets static credentials on the S3 storage
func WithS3Credentials(accessKey, secretKey string) Option {
	return func(c *ServerConfig) error {
		if c.Storage.Type != "s3" {
			return fmt.Errorf("S3 credentials require S3 storage")
		}
		c.Storage.Config["access_key_id"] = accessKey
		c.Storage.Config["secret_access_key"] = secretKey
		return nil
	}
}

// WithS3Endpoint points the S3 storage at an S3-compatible service such as MinIO
func WithS3Endpoint(endpoint string, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		if c.Storage.Type != "s3" {
			return fmt.Errorf("S3 endpoint requires S3 storage")
		}
		c.Storage.Config["endpoint"] = endpoint
		c.Storage.Config["use_path_style"] = usePathStyle
		return nil
	}
}

// WithStorageURL configures storage from a connection string, see ParseStorageURL
func WithStorageURL(raw string) Option {
	return func(c *ServerConfig) error {
		storage, err := ParseStorageURL(raw)
		if err != nil {
			return err
		}
		c.Storage = storage
		return nil
	}
}

// WithImageBaseURL sets the prefix of uploaded image URLs
func WithImageBaseURL(baseURL string) Option {
	return func(c *ServerConfig) error {
		c.ImageBaseURL = baseURL
		return nil
	}
}

// WithURLStrategy selects how image URLs are built: "cdn" uses the image
// base URL, "content-based" routes through apiBaseURL.
func WithURLStrategy(strategy, apiBaseURL string) Option {
	return func(c *ServerConfig) error {
		switch urlstrategy.URLStrategyType(strategy) {
		case urlstrategy.StrategyTypeCDN, urlstrategy.StrategyTypeContentBased:
		default:
			return fmt.Errorf("url strategy must be 'cdn' or 'content-based', got: %s", strategy)
		}
		c.URLStrategy = strategy
		if apiBaseURL != "" {
			c.APIBaseURL = apiBaseURL
		}
		return nil
	}
}

// WithObjectKeyStrategy selects the layout of image keys in the blob store
func WithObjectKeyStrategy(strategy string) Option {
	return func(c *ServerConfig) error {
		if _, err := objectkey.New(strategy); err != nil {
			return err
		}
		c.ObjectKeyStrategy = strategy
		return nil
	}
}

// WithMaxConcurrency bounds fan-out goroutines; 0 means unbounded
func WithMaxConcurrency(n int) Option {
	return func(c *ServerConfig) error {
		if n < 0 {
			return fmt.Errorf("max concurrency must not be negative, got: %d", n)
		}
		c.MaxConcurrency = n
		return nil
	}
}

// WithOperationTimeout sets a deadline on every service call; 0 disables it
func WithOperationTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		if d < 0 {
			return fmt.Errorf("operation timeout must not be negative, got: %s", d)
		}
		c.OperationTimeout = d
		return nil
	}
}

// WithEventLogging enables or disables event logging
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithDefaults resets the configuration to library defaults. This is useful
// as a base before applying more specific options.
func WithDefaults() Option {
	return func(c *ServerConfig) error {
		*c = defaults()
		return nil
	}
}

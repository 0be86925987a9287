package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/content-graph/pkg/contentgraph"
	"github.com/tendant/content-graph/pkg/contentgraph/objectkey"
	"github.com/tendant/content-graph/pkg/contentgraph/repo/memory"
	repopg "github.com/tendant/content-graph/pkg/contentgraph/repo/postgres"
	fsstorage "github.com/tendant/content-graph/pkg/contentgraph/storage/fs"
	memorystorage "github.com/tendant/content-graph/pkg/contentgraph/storage/memory"
	s3storage "github.com/tendant/content-graph/pkg/contentgraph/storage/s3"
	"github.com/tendant/content-graph/pkg/contentgraph/urlstrategy"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		DBSchema:     "content_graph",
		Storage: StorageBackendConfig{
			Type:   "memory",
			Config: map[string]interface{}{},
		},
		ImageBaseURL:       "/files/",
		URLStrategy:        string(urlstrategy.StrategyTypeCDN),
		APIBaseURL:         urlstrategy.DefaultAPIBaseURL,
		ObjectKeyStrategy:  objectkey.StrategyDefault,
		EnableEventLogging: true,
	}
}

// ServerConfig represents server configuration for the content-graph service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: content_graph)
	AutoMigrate  bool   // Create tables on startup

	// Image storage
	Storage           StorageBackendConfig
	ImageBaseURL      string // Prefix of uploaded image URLs for the cdn strategy
	URLStrategy       string // "cdn" or "content-based"
	APIBaseURL        string // Prefix of image URLs for the content-based strategy
	ObjectKeyStrategy string // "default", "git-like" or "hashed"

	// Reconciliation
	MaxConcurrency   int           // Fan-out goroutine bound, 0 = unbounded
	OperationTimeout time.Duration // Deadline per service call, 0 = none

	EnableEventLogging bool
}

// StorageBackendConfig represents configuration for the image blob store
type StorageBackendConfig struct {
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.Storage.Type {
	case "memory":
	case "fs":
		if getString(c.Storage.Config, "base_dir", "") == "" {
			return errors.New("filesystem storage requires base_dir")
		}
	case "s3":
		if getString(c.Storage.Config, "bucket", "") == "" {
			return errors.New("s3 storage requires bucket")
		}
	default:
		return fmt.Errorf("unsupported storage backend type: %s", c.Storage.Type)
	}

	if _, err := c.urlStrategy(); err != nil {
		return err
	}
	if _, err := objectkey.New(c.ObjectKeyStrategy); err != nil {
		return err
	}

	if c.MaxConcurrency < 0 {
		return errors.New("max_concurrency must not be negative")
	}
	if c.OperationTimeout < 0 {
		return errors.New("operation_timeout must not be negative")
	}

	return nil
}

// BuildService creates a Service instance from the server configuration.
// extra options are applied last. The returned func releases the database
// pool and must be called on shutdown.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger, extra ...contentgraph.Option) (contentgraph.Service, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	repo, closeRepo, err := c.BuildRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}

	store, err := c.buildStorageBackend(ctx)
	if err != nil {
		closeRepo()
		return nil, nil, fmt.Errorf("failed to build %s storage backend: %w", c.Storage.Type, err)
	}

	urls, err := c.urlStrategy()
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	keys, err := objectkey.New(c.ObjectKeyStrategy)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	options := []contentgraph.Option{
		contentgraph.WithRepository(repo),
		contentgraph.WithBlobStore(store),
		contentgraph.WithLogger(logger),
		contentgraph.WithURLStrategy(urls),
		contentgraph.WithObjectKeyGenerator(keys),
		contentgraph.WithMaxConcurrency(c.MaxConcurrency),
		contentgraph.WithOperationTimeout(c.OperationTimeout),
	}
	if c.EnableEventLogging {
		options = append(options, contentgraph.WithEventSink(contentgraph.NewLoggingEventSink(logger)))
	}
	options = append(options, extra...)

	svc, err := contentgraph.New(options...)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	return svc, closeRepo, nil
}

// urlStrategy builds the image URL strategy. The cdn strategy accepts an
// empty ImageBaseURL, which stores bare object keys as URLs.
func (c *ServerConfig) urlStrategy() (urlstrategy.URLStrategy, error) {
	switch urlstrategy.URLStrategyType(c.URLStrategy) {
	case "", urlstrategy.StrategyTypeCDN:
		return urlstrategy.NewCDNStrategy(c.ImageBaseURL), nil
	default:
		return urlstrategy.NewURLStrategy(urlstrategy.Config{
			Type:       urlstrategy.URLStrategyType(c.URLStrategy),
			APIBaseURL: c.APIBaseURL,
		})
	}
}

// BuildRepository opens the configured Repository. The returned func releases
// its connections.
func (c *ServerConfig) BuildRepository(ctx context.Context) (contentgraph.Repository, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), func() {}, nil
	case "postgres":
		pool, err := NewPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		repo := repopg.NewWithPool(pool)
		if c.AutoMigrate {
			if c.DBSchema != "" {
				if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{c.DBSchema}.Sanitize())); err != nil {
					pool.Close()
					return nil, nil, fmt.Errorf("failed to create schema: %w", err)
				}
			}
			if err := repo.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return repo, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// NewPool opens a pgx pool whose sessions use schema as search_path and
// verifies connectivity.
func NewPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// buildStorageBackend creates a BlobStore based on the backend configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context) (contentgraph.BlobStore, error) {
	config := c.Storage
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir: getString(config.Config, "base_dir", "./data/storage"),
		})

	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}

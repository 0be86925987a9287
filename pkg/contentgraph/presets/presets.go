package presets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/tendant/content-graph/pkg/contentgraph"
	"github.com/tendant/content-graph/pkg/contentgraph/config"
	memoryrepo "github.com/tendant/content-graph/pkg/contentgraph/repo/memory"
	fsstorage "github.com/tendant/content-graph/pkg/contentgraph/storage/fs"
	memorystorage "github.com/tendant/content-graph/pkg/contentgraph/storage/memory"
	"github.com/tendant/content-graph/pkg/contentgraph/urlstrategy"
)

// Configuration Presets
//
// This package provides ready-made service configurations for common use
// cases while remaining customizable.

// NewDevelopment creates a service configured for local development.
//
// Features:
//   - In-memory repository (instant startup, no setup required)
//   - Filesystem image storage at ./dev-data/
//   - Content-based image URLs (/api/v1/images/{id}/file)
//   - Event logging enabled
//
// The returned cleanup function removes the storage directory.
//
// Example:
//
//	svc, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (contentgraph.Service, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
		apiBaseURL: urlstrategy.DefaultAPIBaseURL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	fsBackend, err := fsstorage.New(fsstorage.Config{
		BaseDir: cfg.storageDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create filesystem storage: %w", err)
	}

	svc, err := contentgraph.New(
		contentgraph.WithRepository(memoryrepo.New()),
		contentgraph.WithBlobStore(fsBackend),
		contentgraph.WithLogger(cfg.logger),
		contentgraph.WithEventSink(contentgraph.NewLoggingEventSink(cfg.logger)),
		contentgraph.WithURLStrategy(urlstrategy.NewContentBasedStrategy(cfg.apiBaseURL)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}

	cleanup := func() {
		os.RemoveAll(cfg.storageDir)
	}
	return svc, cleanup, nil
}

// NewTesting creates a service configured for unit and integration tests.
//
// Features:
//   - In-memory repository and image storage (isolated per call)
//   - No event logging (cleaner test output)
//   - Safe for parallel tests
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    svc := presets.NewTesting(t)
//	    ...
//	}
func NewTesting(t testing.TB, opts ...TestingOption) contentgraph.Service {
	t.Helper()
	cfg := &testConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	options := append([]contentgraph.Option{
		contentgraph.WithRepository(memoryrepo.New()),
		contentgraph.WithBlobStore(memorystorage.New()),
	}, cfg.extra...)

	svc, err := contentgraph.New(options...)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	return svc
}

// NewProduction creates a service configured for production deployment from
// the environment (see config.WithEnv).
//
// It refuses configurations that would lose data on restart: the repository
// must be postgres and the image storage must be fs or s3.
//
// Example:
//
//	svc, cleanup, err := presets.NewProduction(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewProduction(ctx context.Context, opts ...ProductionOption) (contentgraph.Service, func(), error) {
	cfg := &prodConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	loadOpts := append([]config.Option{config.WithEnv(), config.WithEnvironment("production")}, cfg.configOpts...)
	serverConfig, err := config.Load(loadOpts...)
	if err != nil {
		return nil, nil, err
	}

	if serverConfig.DatabaseType != "postgres" {
		return nil, nil, fmt.Errorf("production preset requires a postgres database (got %s)", serverConfig.DatabaseType)
	}
	if serverConfig.Storage.Type == "memory" {
		return nil, nil, fmt.Errorf("production preset requires persistent storage (s3 or fs, not memory)")
	}

	return serverConfig.BuildService(ctx, cfg.logger)
}

// Option types for customization

type devConfig struct {
	storageDir string
	apiBaseURL string
	logger     *slog.Logger
}

type testConfig struct {
	extra []contentgraph.Option
}

type prodConfig struct {
	configOpts []config.Option
	logger     *slog.Logger
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the development storage directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.storageDir = dir
	}
}

// WithDevAPIBaseURL sets the API prefix used in image URLs
func WithDevAPIBaseURL(baseURL string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.apiBaseURL = baseURL
	}
}

// WithDevLogger sets the logger
func WithDevLogger(logger *slog.Logger) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.logger = logger
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithServiceOptions appends service options, e.g. hooks or an event sink
func WithServiceOptions(opts ...contentgraph.Option) TestingOption {
	return func(cfg *testConfig) {
		cfg.extra = append(cfg.extra, opts...)
	}
}

// ProductionOption is a functional option for NewProduction
type ProductionOption func(*prodConfig)

// WithProdConfig applies config options after the environment is read
func WithProdConfig(opts ...config.Option) ProductionOption {
	return func(cfg *prodConfig) {
		cfg.configOpts = append(cfg.configOpts, opts...)
	}
}

// WithProdLogger sets the logger
func WithProdLogger(logger *slog.Logger) ProductionOption {
	return func(cfg *prodConfig) {
		cfg.logger = logger
	}
}

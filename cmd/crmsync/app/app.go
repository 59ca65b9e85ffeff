// Package app provides the application context and dependency management
// for the crmsync CLI. It centralizes configuration, logging and the
// lazily created client.
package app

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/agentstation/crmsync"
	"github.com/agentstation/crmsync/cmd/application"
	"github.com/agentstation/crmsync/pkg/errors"
	pkgsync "github.com/agentstation/crmsync/pkg/sync"
)

// Ensure App implements application.Application at compile time.
var _ application.Application = (*App)(nil)

// App represents the crmsync application with all its dependencies.
type App struct {
	build BuildInfo

	// Configuration, loaded once flags are parsed unless set with WithConfig
	config     *Config
	configured bool

	// Logger
	logger *zerolog.Logger

	// Client (lazy-initialized, singleton)
	mu         sync.Mutex
	client     crmsync.Client
	redis      *redis.Client
	clientOpts []crmsync.Option
}

// BuildInfo is stamped into the binary at release time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
	BuiltBy string
}

// New creates an App. Configuration is loaded when a command runs.
func New(build BuildInfo, opts ...Option) (*App, error) {
	app := &App{
		build:  build,
		config: &Config{LogFormat: "auto", LogOutput: "stderr"},
	}

	logger := NewLogger(app.config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Build returns the build stamp.
func (a *App) Build() BuildInfo {
	return a.build
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string {
	return a.config.Output
}

// SyncOptions returns the configured sync defaults.
func (a *App) SyncOptions() []pkgsync.Option {
	return a.config.SyncOptions()
}

// Sources returns the configured consolidation sources.
func (a *App) Sources() []crmsync.Source {
	return a.config.sources()
}

// Client returns the client, creating it on first use.
func (a *App) Client() (crmsync.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	opts := a.config.ClientOptions()
	if a.config.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.config.Redis.Addr,
			Password: a.config.Redis.Password,
			DB:       a.config.Redis.DB,
		})
		opts = append(opts, crmsync.WithCheckpointStore(nil), crmsync.WithRedis(a.redis))
	}
	opts = append(opts, a.clientOpts...)

	client, err := crmsync.New(opts...)
	if err != nil {
		a.closeRedis()
		if errors.IsFatal(err) {
			return nil, err
		}
		return nil, errors.WrapResource("create", "client", "", err)
	}

	a.client = client
	return client, nil
}

// Shutdown stops background work and closes the client.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	if a.client != nil {
		if err = a.client.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close client during shutdown")
		}
		a.client = nil
	}
	a.closeRedis()
	return err
}

func (a *App) closeRedis() {
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration. Config files and the
// environment are then not read.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		if err := config.Validate(); err != nil {
			return err
		}
		a.config = config
		a.configured = true
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithClientOptions adds client options applied after the configured ones.
func WithClientOptions(opts ...crmsync.Option) Option {
	return func(a *App) error {
		a.clientOpts = append(a.clientOpts, opts...)
		return nil
	}
}

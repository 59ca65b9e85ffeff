package crmsync

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentstation/crmsync/internal/consolidate"
	"github.com/agentstation/crmsync/internal/remote"
	"github.com/agentstation/crmsync/internal/runlock"
	"github.com/agentstation/crmsync/internal/store/postgrest"
	"github.com/agentstation/crmsync/internal/store/sqlstore"
	"github.com/agentstation/crmsync/pkg/backoff"
	"github.com/agentstation/crmsync/pkg/checkpoint"
	"github.com/agentstation/crmsync/pkg/constants"
	"github.com/agentstation/crmsync/pkg/identity"
	"github.com/agentstation/crmsync/pkg/store"
	pkgsync "github.com/agentstation/crmsync/pkg/sync"
)

// Re-exported configuration types of the internal packages.
type (
	// RemoteConfig describes the remote CRM endpoints.
	RemoteConfig = remote.Config
	// RateLimitEvent describes a 401/429 cooldown.
	RateLimitEvent = remote.RateLimitEvent
	// SQLConfig selects a SQLite or PostgreSQL store.
	SQLConfig = sqlstore.Config
	// PostgRESTConfig selects a PostgREST store.
	PostgRESTConfig = postgrest.Config
	// Source is one consolidation source table.
	Source = consolidate.Source
	// Report is the outcome of a consolidation.
	Report = consolidate.Report
	// ConsolidateOption tunes a single consolidation run.
	ConsolidateOption = consolidate.Option
	// Locker serializes runs.
	Locker = runlock.Locker
)

// options holds the configuration of a Client.
type options struct {
	remote     *remote.Config
	httpClient *http.Client
	rateLimit  int
	rateWindow time.Duration
	policy     backoff.Policy

	store       store.Store
	sqlConfig   *sqlstore.Config
	restConfig  *postgrest.Config
	checkpoints checkpoint.Store
	redis       redis.UniversalClient
	locker      runlock.Locker

	clientSchema   string
	customerSchema string
	sources        []consolidate.Source
	policyMerge    identity.Policy
	matchStores    bool
	syncDefaults   []pkgsync.Option
	autoSync       time.Duration
}

// defaults returns the default options.
func defaults() *options {
	return &options{
		rateLimit:      constants.DefaultRateLimit,
		rateWindow:     constants.RateLimitWindow,
		policy:         backoff.Default(),
		clientSchema:   "client",
		customerSchema: "customer",
		policyMerge:    identity.DefaultPolicy(),
		matchStores:    true,
	}
}

// apply applies the given options.
func (o *options) apply(opts ...Option) *options {
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a Client.
type Option func(*options)

// WithRemote sets the remote CRM endpoints. Required for Sync.
func WithRemote(cfg RemoteConfig) Option {
	return func(o *options) {
		o.remote = &cfg
	}
}

// WithHTTPClient replaces the HTTP client used for the remote CRM.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) {
		o.httpClient = h
	}
}

// WithRateLimit sets the remote call budget per window.
func WithRateLimit(ceiling int, window time.Duration) Option {
	return func(o *options) {
		o.rateLimit = ceiling
		if window > 0 {
			o.rateWindow = window
		}
	}
}

// WithRetryPolicy sets the cooldown policy for 401/429 responses.
func WithRetryPolicy(p backoff.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithStore uses an already opened store. The Client closes it on Close.
func WithStore(s store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithSQLStore opens a SQLite or PostgreSQL store.
func WithSQLStore(cfg SQLConfig) Option {
	return func(o *options) {
		o.sqlConfig = &cfg
	}
}

// WithPostgREST uses a PostgREST store.
func WithPostgREST(cfg PostgRESTConfig) Option {
	return func(o *options) {
		o.restConfig = &cfg
	}
}

// WithCheckpointFile keeps sync checkpoints in a local JSON file.
func WithCheckpointFile(path string) Option {
	return func(o *options) {
		o.checkpoints = checkpoint.NewFileStore(path)
	}
}

// WithCheckpointStore sets the checkpoint store.
func WithCheckpointStore(s checkpoint.Store) Option {
	return func(o *options) {
		o.checkpoints = s
	}
}

// WithRedis shares checkpoints and run locks through Redis, so several
// processes can take turns on the same data.
func WithRedis(client redis.UniversalClient) Option {
	return func(o *options) {
		o.redis = client
	}
}

// WithLocker sets the run lock.
func WithLocker(l Locker) Option {
	return func(o *options) {
		o.locker = l
	}
}

// WithSchemas selects the mapping schemas by built-in name or file path.
func WithSchemas(client, customer string) Option {
	return func(o *options) {
		if client != "" {
			o.clientSchema = client
		}
		if customer != "" {
			o.customerSchema = customer
		}
	}
}

// WithSources sets the default consolidation sources.
func WithSources(sources ...Source) Option {
	return func(o *options) {
		o.sources = sources
	}
}

// WithMergePolicy sets the consolidation merge policy.
func WithMergePolicy(p identity.Policy) Option {
	return func(o *options) {
		o.policyMerge = p
	}
}

// WithStoreMatching toggles campaign to store matching during consolidation.
func WithStoreMatching(enabled bool) Option {
	return func(o *options) {
		o.matchStores = enabled
	}
}

// WithSyncDefaults sets options applied before those passed to Sync.
func WithSyncDefaults(opts ...pkgsync.Option) Option {
	return func(o *options) {
		o.syncDefaults = append(o.syncDefaults, opts...)
	}
}

// WithAutoSync runs Sync every interval once the client is created.
func WithAutoSync(interval time.Duration) Option {
	return func(o *options) {
		o.autoSync = interval
	}
}

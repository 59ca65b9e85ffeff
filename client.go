// Package crmsync keeps a local relational copy of a remote CRM's client
// records and consolidates customer rows from several source tables into
// one master record per customer.
//
// A Client wires the pieces together:
//   - a rate-limited remote fetcher with cooldown retries
//   - a schema-driven field mapper
//   - a checkpoint store so interrupted syncs can resume
//   - a SQL or PostgREST store
//   - a run lock so only one sync or consolidation runs at a time
//
// Example usage:
//
//	client, err := crmsync.New(
//	    crmsync.WithRemote(crmsync.RemoteConfig{
//	        BaseURL: "https://crm.example.com/api",
//	        Token:   os.Getenv("CRM_TOKEN"),
//	    }),
//	    crmsync.WithSQLStore(crmsync.SQLConfig{DSN: "crm.db", Bootstrap: true}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	result, err := client.Sync(ctx, sync.WithResume(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Summary())
//
//	report, err := client.Consolidate(ctx, []crmsync.Source{
//	    {Table: "shop_customers"},
//	    {Table: "crm_clients", Name: "crm"},
//	})
package crmsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentstation/crmsync/internal/remote"
	"github.com/agentstation/crmsync/internal/runlock"
	"github.com/agentstation/crmsync/internal/store/postgrest"
	"github.com/agentstation/crmsync/internal/store/sqlstore"
	isync "github.com/agentstation/crmsync/internal/sync"
	"github.com/agentstation/crmsync/pkg/checkpoint"
	"github.com/agentstation/crmsync/pkg/constants"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/logging"
	"github.com/agentstation/crmsync/pkg/mapping"
	"github.com/agentstation/crmsync/pkg/ratelimit"
	"github.com/agentstation/crmsync/pkg/store"
)

// Client synchronizes and consolidates customer data.
type Client interface {

	// Syncer runs CRM synchronizations
	Syncer

	// Consolidator merges source tables into masters
	Consolidator

	// StoreMatcher resolves store tokens
	StoreMatcher

	// AutoSyncer provides access to periodic sync controls
	AutoSyncer

	// Hooks provides access to event callback registration
	Hooks

	// Checkpoint returns the checkpoint store used by Sync.
	Checkpoint() checkpoint.Store

	// Store returns the relational store.
	Store() store.Store

	// Close stops periodic syncs and closes the store.
	Close() error
}

// client is the internal implementation of the Client interface.
type client struct {

	// options are the configured options for the client
	options *options

	// collaborators
	remote         *remote.Client
	clientMapper   *mapping.Mapper
	customerMapper *mapping.Mapper
	store          store.Store
	checkpoints    checkpoint.Store
	locker         runlock.Locker

	// engine is the running sync engine, if any
	engine atomic.Pointer[isync.Engine]

	// auto sync state
	mu         sync.Mutex
	syncTicker *time.Ticker
	stopCh     chan struct{}
	syncCancel context.CancelFunc

	hooks *hooks
}

// New creates a Client. Configuration problems are reported before any
// network activity as errors matching errors.ErrFatalConfig.
func New(opts ...Option) (Client, error) {
	c := &client{
		options: defaults().apply(opts...),
		stopCh:  make(chan struct{}),
		hooks:   newHooks(),
	}
	o := c.options

	// Step 1: Mappers
	var err error
	if c.clientMapper, err = loadMapper(o.clientSchema); err != nil {
		return nil, err
	}
	if c.customerMapper, err = loadMapper(o.customerSchema); err != nil {
		return nil, err
	}

	// Step 2: Remote CRM, optional for consolidation-only use
	if o.remote != nil {
		remoteOpts := []remote.Option{
			remote.WithLimiter(ratelimit.New(o.rateLimit, ratelimit.WithWindow(o.rateWindow))),
			remote.WithPolicy(o.policy),
			remote.WithRateLimitHook(c.rateLimited),
		}
		if o.httpClient != nil {
			remoteOpts = append(remoteOpts, remote.WithHTTPClient(o.httpClient))
		}
		if c.remote, err = remote.New(*o.remote, remoteOpts...); err != nil {
			return nil, err
		}
	}

	// Step 3: Store
	if c.store, err = openStore(o); err != nil {
		return nil, err
	}

	// Step 4: Checkpoints and locks, shared through Redis when configured
	switch {
	case o.checkpoints != nil:
		c.checkpoints = o.checkpoints
	case o.redis != nil:
		c.checkpoints = checkpoint.NewRedisStore(o.redis)
	default:
		c.checkpoints = checkpoint.NewFileStore(constants.DefaultCheckpointPath)
	}
	switch {
	case o.locker != nil:
		c.locker = o.locker
	case o.redis != nil:
		c.locker = runlock.NewRedis(o.redis)
	default:
		c.locker = runlock.NewLocal()
	}

	// Step 5: Periodic sync
	if o.autoSync > 0 {
		if err := c.AutoSyncOn(o.autoSync); err != nil {
			_ = c.store.Close()
			return nil, errors.WrapResource("start", "auto-sync", "", err)
		}
	}

	return c, nil
}

func loadMapper(ref string) (*mapping.Mapper, error) {
	schema, err := mapping.Load(ref)
	if err != nil {
		return nil, errors.NewConfigError("mapping", "cannot load schema "+ref, err)
	}
	return mapping.New(schema)
}

func openStore(o *options) (store.Store, error) {
	switch {
	case o.store != nil:
		return o.store, nil
	case o.sqlConfig != nil:
		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
		defer cancel()
		s, err := sqlstore.Open(ctx, *o.sqlConfig)
		if err != nil {
			return nil, err
		}
		return s, nil
	case o.restConfig != nil:
		opts := []postgrest.Option{}
		if o.httpClient != nil {
			opts = append(opts, postgrest.WithHTTPClient(o.httpClient))
		}
		s, err := postgrest.New(*o.restConfig, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.NewConfigError("store", "a SQL or PostgREST store is required", nil)
	}
}

// rateLimited forwards cooldowns to the running engine and the hooks.
func (c *client) rateLimited(ev remote.RateLimitEvent) {
	if e := c.engine.Load(); e != nil {
		e.RateLimited(ev)
	}
	c.hooks.triggerRateLimited(ev)
}

// Checkpoint returns the checkpoint store used by Sync.
func (c *client) Checkpoint() checkpoint.Store {
	return c.checkpoints
}

// Store returns the relational store.
func (c *client) Store() store.Store {
	return c.store
}

// Close stops periodic syncs and closes the store.
func (c *client) Close() error {
	if err := c.AutoSyncOff(); err != nil {
		logging.Warn().Err(err).Msg("Failed to stop auto-sync")
	}
	return c.store.Close()
}

package crmsync

import (
	"context"
	"slices"

	isync "github.com/agentstation/crmsync/internal/sync"
	"github.com/agentstation/crmsync/pkg/constants"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/logging"
	pkgsync "github.com/agentstation/crmsync/pkg/sync"
)

// Compile-time interface check to ensure proper implementation.
var _ Syncer = (*client)(nil)

// Syncer runs CRM synchronizations.
type Syncer interface {
	// Sync mirrors the remote CRM into the records table.
	Sync(ctx context.Context, opts ...pkgsync.Option) (*pkgsync.Result, error)
}

// lock names
const (
	syncLock        = "sync"
	consolidateLock = "consolidate"
)

// Sync mirrors the remote CRM into the records table.
func (c *client) Sync(ctx context.Context, opts ...pkgsync.Option) (*pkgsync.Result, error) {
	// Step 0: Set context
	if ctx == nil {
		ctx = context.Background()
	}

	// Step 1: Check the remote is configured
	if c.remote == nil {
		return nil, errors.NewConfigError("remote", "remote CRM is not configured", nil)
	}

	// Step 2: Build the engine from defaults and per-call options
	engine, err := isync.New(isync.Deps{
		Fetcher:     c.remote,
		Mapper:      c.clientMapper,
		Records:     c.store,
		Checkpoints: c.checkpoints,
	}, append(slices.Clone(c.options.syncDefaults), opts...)...)
	if err != nil {
		return nil, err
	}

	// Step 3: Take the run lock
	release, err := c.locker.Acquire(ctx, syncLock)
	if err != nil {
		return nil, err
	}
	defer releaseLock(ctx, release, syncLock)

	// Step 4: Run
	c.engine.Store(engine)
	defer c.engine.Store(nil)
	result, err := engine.Run(ctx)

	// Step 5: Notify hooks
	if result != nil {
		c.hooks.triggerSyncFinished(result)
	}
	return result, err
}

func releaseLock(ctx context.Context, release func(context.Context) error, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
	defer cancel()
	if err := release(ctx); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("lock", name).Msg("Failed to release run lock")
	}
}

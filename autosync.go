package crmsync

import (
	"context"
	"time"

	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/logging"
	pkgsync "github.com/agentstation/crmsync/pkg/sync"
)

// Compile-time interface check to ensure proper implementation.
var _ AutoSyncer = (*client)(nil)

// AutoSyncer provides controls for periodic syncs.
type AutoSyncer interface {
	// AutoSyncOn runs Sync every interval until AutoSyncOff or Close.
	AutoSyncOn(interval time.Duration) error

	// AutoSyncOff stops periodic syncs.
	AutoSyncOff() error
}

// AutoSyncOn runs Sync every interval until AutoSyncOff or Close. Each
// tick resumes from a leftover checkpoint and starts fresh otherwise.
func (c *client) AutoSyncOn(interval time.Duration) error {
	if interval <= 0 {
		return &errors.ValidationError{
			Field:   "interval",
			Value:   interval,
			Message: "sync interval must be positive",
		}
	}
	if c.remote == nil {
		return errors.NewConfigError("remote", "remote CRM is not configured", nil)
	}

	// Stop any existing schedule to prevent leaked goroutines
	if err := c.AutoSyncOff(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopCh = make(chan struct{})
	c.syncTicker = time.NewTicker(interval)
	ctx, cancel := context.WithCancel(context.Background())
	c.syncCancel = cancel

	go c.autoSyncLoop(ctx, c.syncTicker.C, c.stopCh)
	return nil
}

func (c *client) autoSyncLoop(ctx context.Context, ticks <-chan time.Time, stop <-chan struct{}) {
	for {
		select {
		case <-ticks:
			_, err := c.Sync(ctx, pkgsync.WithResume(true))
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				return
			case errors.Is(err, errors.ErrLocked):
				logging.Debug().Msg("Auto-sync skipped, another run holds the lock")
			default:
				logging.Error().Err(err).Msg("Auto-sync failed")
			}
		case <-ctx.Done():
			return
		case <-stop:
			return
		}
	}
}

// AutoSyncOff stops periodic syncs.
func (c *client) AutoSyncOff() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.syncTicker != nil {
		c.syncTicker.Stop()
		c.syncTicker = nil
	}
	if c.syncCancel != nil {
		c.syncCancel()
		c.syncCancel = nil
	}
	select {
	case <-c.stopCh:
		// Already closed
	default:
		close(c.stopCh)
	}
	return nil
}

package crmsync

import (
	"sync"

	pkgsync "github.com/agentstation/crmsync/pkg/sync"
)

// Compile-time interface check to ensure proper implementation.
var _ Hooks = (*client)(nil)

// Hook function types for run events
type (
	// SyncFinishedHook is called after every sync run, complete or not
	SyncFinishedHook func(result *pkgsync.Result)

	// ConsolidatedHook is called after every consolidation run
	ConsolidatedHook func(report *Report)

	// RateLimitedHook is called before each remote cooldown
	RateLimitedHook func(event RateLimitEvent)
)

// Hooks provides event callback registration.
type Hooks interface {
	// OnSyncFinished registers a callback for finished sync runs
	OnSyncFinished(fn SyncFinishedHook)

	// OnConsolidated registers a callback for finished consolidations
	OnConsolidated(fn ConsolidatedHook)

	// OnRateLimited registers a callback for remote cooldowns
	OnRateLimited(fn RateLimitedHook)
}

// OnSyncFinished registers a callback for finished sync runs.
func (c *client) OnSyncFinished(fn SyncFinishedHook) {
	c.hooks.onSyncFinished(fn)
}

// OnConsolidated registers a callback for finished consolidations.
func (c *client) OnConsolidated(fn ConsolidatedHook) {
	c.hooks.onConsolidated(fn)
}

// OnRateLimited registers a callback for remote cooldowns.
func (c *client) OnRateLimited(fn RateLimitedHook) {
	c.hooks.onRateLimited(fn)
}

// hooks manages event callbacks
type hooks struct {
	mu           sync.RWMutex
	syncFinished []SyncFinishedHook
	consolidated []ConsolidatedHook
	rateLimited  []RateLimitedHook
}

// newHooks creates a new hooks instance
func newHooks() *hooks {
	return &hooks{}
}

func (h *hooks) onSyncFinished(fn SyncFinishedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.syncFinished = append(h.syncFinished, fn)
}

func (h *hooks) onConsolidated(fn ConsolidatedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consolidated = append(h.consolidated, fn)
}

func (h *hooks) onRateLimited(fn RateLimitedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rateLimited = append(h.rateLimited, fn)
}

func (h *hooks) triggerSyncFinished(result *pkgsync.Result) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.syncFinished {
		fn(result)
	}
}

func (h *hooks) triggerConsolidated(report *Report) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.consolidated {
		fn(report)
	}
}

// triggerRateLimited runs on fetcher goroutines; hooks must not block.
func (h *hooks) triggerRateLimited(ev RateLimitEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.rateLimited {
		fn(ev)
	}
}

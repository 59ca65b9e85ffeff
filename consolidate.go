package crmsync

import (
	"context"

	"github.com/agentstation/crmsync/internal/consolidate"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/matcher"
	"github.com/agentstation/crmsync/pkg/records"
)

// Compile-time interface checks to ensure proper implementation.
var (
	_ Consolidator = (*client)(nil)
	_ StoreMatcher = (*client)(nil)
)

// Consolidator merges source tables into masters.
type Consolidator interface {
	// Consolidate merges sources, or the configured defaults when none
	// are given. opts are applied after the client's merge settings.
	Consolidate(ctx context.Context, sources []Source, opts ...ConsolidateOption) (*Report, error)
}

// StoreMatcher resolves store tokens.
type StoreMatcher interface {
	// MatchStore resolves token against the stores table.
	MatchStore(ctx context.Context, token string) (*records.StoreEntity, matcher.Tier, error)
}

// Consolidate merges sources, or the configured defaults when none are given.
func (c *client) Consolidate(ctx context.Context, sources []Source, opts ...ConsolidateOption) (*Report, error) {
	if len(sources) == 0 {
		sources = c.options.sources
	}
	if len(sources) == 0 {
		return nil, errors.NewConfigError("consolidate", "no source tables configured", nil)
	}

	cons, err := consolidate.New(c.store, c.customerMapper, append([]consolidate.Option{
		consolidate.WithPolicy(c.options.policyMerge),
		consolidate.WithStoreMatching(c.options.matchStores),
	}, opts...)...)
	if err != nil {
		return nil, err
	}

	release, err := c.locker.Acquire(ctx, consolidateLock)
	if err != nil {
		return nil, err
	}
	defer releaseLock(ctx, release, consolidateLock)

	report, err := cons.Run(ctx, sources)
	if report != nil {
		c.hooks.triggerConsolidated(report)
	}
	return report, err
}

// MatchStore resolves token against the stores table.
func (c *client) MatchStore(ctx context.Context, token string) (*records.StoreEntity, matcher.Tier, error) {
	stores, err := c.store.ListStores(ctx)
	if err != nil {
		return nil, matcher.TierNone, err
	}
	s, tier := matcher.Match(token, stores)
	return s, tier, nil
}

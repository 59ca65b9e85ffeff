// Package runlock guards a named run so two syncs of the same entity never
// share a checkpoint at the same time.
package runlock

import (
	"context"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/agentstation/crmsync/pkg/constants"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/logging"
)

// Release frees a held lock.
type Release func(context.Context) error

// Locker acquires named locks. A held name fails fast with errors.ErrLocked.
type Locker interface {
	Acquire(ctx context.Context, name string) (Release, error)
}

// Local is a process-local Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocal returns an empty process-local locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]bool)}
}

// Acquire implements Locker.
func (l *Local) Acquire(ctx context.Context, name string) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, lockedError(name)
	}
	l.held[name] = true

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
		return nil
	}, nil
}

// Redis is a Locker shared between hosts through a Redis lease. The lease
// is refreshed in the background until released.
type Redis struct {
	client  *redislock.Client
	prefix  string
	ttl     time.Duration
	refresh time.Duration
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithTTL sets the lease length.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRefreshInterval sets how often a held lease is extended.
func WithRefreshInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.refresh = d
		}
	}
}

// WithPrefix sets the key prefix for lock names.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis returns a Redis locker over client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:  redislock.New(client),
		prefix:  "crmsync:lock:",
		ttl:     constants.LockTTL,
		refresh: constants.LockRefreshInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.refresh >= r.ttl {
		r.refresh = r.ttl / 2
	}
	return r
}

// Acquire implements Locker.
func (r *Redis) Acquire(ctx context.Context, name string) (Release, error) {
	key := r.prefix + name
	lock, err := r.client.Obtain(ctx, key, r.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, lockedError(name)
		}
		return nil, errors.WrapResource("obtain", "lock", key, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(ctx, lock, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			close(stop)
			<-done
			if rerr := lock.Release(ctx); rerr != nil && !errors.Is(rerr, redislock.ErrLockNotHeld) {
				err = errors.WrapResource("release", "lock", key, rerr)
			}
		})
		return err
	}, nil
}

func (r *Redis) keepAlive(ctx context.Context, lock *redislock.Lock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Refresh(context.WithoutCancel(ctx), r.ttl, nil); err != nil {
				logging.FromContext(ctx).Warn().
					Err(err).
					Str("lock", lock.Key()).
					Msg("Failed to refresh run lock")
				return
			}
		}
	}
}

func lockedError(name string) error {
	return errors.NewResourceError("acquire", "lock", name, errors.ErrLocked)
}

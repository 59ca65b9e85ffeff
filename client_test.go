package crmsync_test

import (
	"context"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/crmsync"
	"github.com/agentstation/crmsync/internal/remote/remotetest"
	"github.com/agentstation/crmsync/internal/runlock"
	"github.com/agentstation/crmsync/internal/store/memory"
	"github.com/agentstation/crmsync/pkg/backoff"
	"github.com/agentstation/crmsync/pkg/checkpoint"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/matcher"
	"github.com/agentstation/crmsync/pkg/records"
	pkgsync "github.com/agentstation/crmsync/pkg/sync"
)

func newClient(t *testing.T, srv *remotetest.Server, st *memory.Store, opts ...crmsync.Option) crmsync.Client {
	t.Helper()
	base := []crmsync.Option{
		crmsync.WithStore(st),
		crmsync.WithCheckpointFile(filepath.Join(t.TempDir(), "checkpoint.json")),
		crmsync.WithRetryPolicy(backoff.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 1}),
	}
	if srv != nil {
		base = append(base, crmsync.WithRemote(crmsync.RemoteConfig{BaseURL: srv.URL, Token: "token", PageSize: 1}))
	}
	c, err := crmsync.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []crmsync.Option
	}{
		{"no store", nil},
		{"unknown schema", []crmsync.Option{crmsync.WithStore(memory.New()), crmsync.WithSchemas("no-such-schema.yaml", "")}},
		{"bad remote", []crmsync.Option{crmsync.WithStore(memory.New()), crmsync.WithRemote(crmsync.RemoteConfig{BaseURL: "http://crm"})}},
		{"bad postgrest", []crmsync.Option{crmsync.WithPostgREST(crmsync.PostgRESTConfig{})}},
		{"bad sql driver", []crmsync.Option{crmsync.WithSQLStore(crmsync.SQLConfig{Driver: "oracle", DSN: "x"})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := crmsync.New(tt.opts...)
			require.Error(t, err)
			assert.True(t, errors.IsFatal(err), err.Error())
		})
	}
}

func TestSyncRequiresRemote(t *testing.T) {
	c := newClient(t, nil, memory.New())
	_, err := c.Sync(context.Background())
	assert.True(t, errors.IsFatal(err))
	assert.True(t, errors.IsFatal(c.AutoSyncOn(time.Second)))
}

func TestSync(t *testing.T) {
	srv := remotetest.New(
		map[string]any{"id": "1", "nome": "Ana", "telefone": "555"},
		map[string]any{"id": "2", "nome": "Bruno", "telefone": "556"},
	)
	defer srv.Close()
	st := memory.New()
	st.Seed(records.Local{ID: "gone"})
	c := newClient(t, srv, st)

	var finished []*pkgsync.Result
	c.OnSyncFinished(func(r *pkgsync.Result) { finished = append(finished, r) })

	res, err := c.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 3, res.ListCalls)
	assert.Equal(t, 2, st.Len())
	require.Len(t, finished, 1)
	assert.Same(t, res, finished[0])

	cp, err := c.Checkpoint().Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestSyncDefaultsAndOverrides(t *testing.T) {
	srv := remotetest.New(map[string]any{"id": "1", "nome": "Ana", "telefone": "555"})
	defer srv.Close()
	st := memory.New()
	c := newClient(t, srv, st, crmsync.WithSyncDefaults(pkgsync.WithDryRun(true)))

	res, err := c.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Zero(t, st.Len())

	res, err = c.Sync(context.Background(), pkgsync.WithDryRun(false))
	require.NoError(t, err)
	assert.False(t, res.DryRun)
	assert.Equal(t, 1, st.Len())

	_, err = c.Sync(context.Background(), pkgsync.WithBatchWidth(0))
	assert.True(t, errors.IsValidationError(err))
}

func TestSyncHonoursRunLock(t *testing.T) {
	srv := remotetest.New()
	defer srv.Close()
	locker := runlock.NewLocal()
	c := newClient(t, srv, memory.New(), crmsync.WithLocker(locker))

	release, err := locker.Acquire(context.Background(), "sync")
	require.NoError(t, err)

	_, err = c.Sync(context.Background())
	assert.ErrorIs(t, err, errors.ErrLocked)

	require.NoError(t, release(context.Background()))
	_, err = c.Sync(context.Background())
	assert.NoError(t, err)
}

func TestOnRateLimited(t *testing.T) {
	srv := remotetest.New(map[string]any{"id": "1", "nome": "Ana", "telefone": "555"})
	defer srv.Close()
	srv.FailPage(1, http.StatusTooManyRequests)
	c := newClient(t, srv, memory.New())

	var events []crmsync.RateLimitEvent
	c.OnRateLimited(func(ev crmsync.RateLimitEvent) { events = append(events, ev) })

	res, err := c.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Page)
	assert.Equal(t, http.StatusTooManyRequests, events[0].Status)
	assert.Zero(t, res.Errors())
}

func TestConsolidate(t *testing.T) {
	st := memory.New()
	st.SetSource("shop", []records.Raw{
		{"id": "1", "nome": "Ana", "cpf": "123", "campanha": "[Maringá 3] Natal"},
	})
	st.SetStores(records.StoreEntity{ID: "3", Name: "Maringá - Loja 3"})
	c := newClient(t, nil, st, crmsync.WithSources(crmsync.Source{Table: "shop"}))

	var reports []*crmsync.Report
	c.OnConsolidated(func(r *crmsync.Report) { reports = append(reports, r) })

	report, err := c.Consolidate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Totals().Inserted)
	require.Len(t, reports, 1)

	masters := st.AllMasters()
	require.Len(t, masters, 1)
	assert.Equal(t, "3", masters[0].Attributes["store_id"])
	assert.Len(t, st.ConsolidationLog(), 1)
}

func TestConsolidateRequiresSources(t *testing.T) {
	c := newClient(t, nil, memory.New())
	_, err := c.Consolidate(context.Background(), nil)
	assert.True(t, errors.IsFatal(err))
}

func TestMatchStore(t *testing.T) {
	st := memory.New()
	st.SetStores(records.StoreEntity{ID: "3", Name: "Maringá - Loja 3"})
	c := newClient(t, nil, st)

	s, tier, err := c.MatchStore(context.Background(), "MARINGA 3")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "3", s.ID)
	assert.Equal(t, matcher.TierCityNumber, tier)

	s, tier, err = c.MatchStore(context.Background(), "londrina")
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, matcher.TierNone, tier)
}

func TestAutoSync(t *testing.T) {
	srv := remotetest.New(map[string]any{"id": "1", "nome": "Ana", "telefone": "555"})
	defer srv.Close()
	c := newClient(t, srv, memory.New())

	var runs atomic.Int32
	c.OnSyncFinished(func(*pkgsync.Result) { runs.Add(1) })

	assert.True(t, errors.IsValidationError(c.AutoSyncOn(0)))
	require.NoError(t, c.AutoSyncOn(10*time.Millisecond))
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.AutoSyncOff())
	require.NoError(t, c.AutoSyncOff())
}

func TestSQLStoreOption(t *testing.T) {
	c, err := crmsync.New(crmsync.WithSQLStore(crmsync.SQLConfig{DSN: ":memory:", Bootstrap: true}))
	require.NoError(t, err)
	defer c.Close()

	ids, err := c.Store().ListIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRedisOption(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := newClient(t, nil, memory.New(), crmsync.WithCheckpointStore(nil), crmsync.WithRedis(rdb))
	_, ok := c.Checkpoint().(*checkpoint.RedisStore)
	assert.True(t, ok)

	ctx := context.Background()
	require.NoError(t, c.Checkpoint().Save(ctx, checkpoint.Progress{Page: 2}))
	cp, err := c.Checkpoint().Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, cp.NextPage())
}

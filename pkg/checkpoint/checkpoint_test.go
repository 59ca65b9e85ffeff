package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/crmsync/pkg/errors"
)

func sampleProgress() Progress {
	return Progress{
		RunID:     "run-1",
		Processed: 250,
		Inserted:  200,
		Updated:   30,
		Skipped:   15,
		Errors:    5,
		Page:      3,
		StartedAt: utc.Time{Time: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
}

// exerciseStore runs the shared Store contract against s.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "no checkpoint before the first save")

	want := sampleProgress()
	require.NoError(t, s.Save(ctx, want))

	got, err = s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Processed, got.Processed)
	assert.Equal(t, want.Inserted, got.Inserted)
	assert.Equal(t, want.Updated, got.Updated)
	assert.Equal(t, want.Skipped, got.Skipped)
	assert.Equal(t, want.Errors, got.Errors)
	assert.Equal(t, want.Page, got.Page)
	assert.Equal(t, want.RunID, got.RunID)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	assert.False(t, got.SavedAt.IsZero())
	assert.Equal(t, 4, got.NextPage())

	want.Page = 4
	require.NoError(t, s.Save(ctx, want))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Page, "save replaces the previous checkpoint")

	require.NoError(t, s.Clear(ctx))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Clear(ctx), "clearing twice is harmless")
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "checkpoint.json")
	s := NewFileStore(path)
	assert.Equal(t, path, s.Path())
	exerciseStore(t, s)
}

func TestFileStoreDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	s := NewFileStore(path)
	require.NoError(t, s.Save(context.Background(), sampleProgress()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"started_at": "2024-05-01T12:00:00`)
	assert.Contains(t, string(data), `"page": 3`)
	assert.NotContains(t, string(data), "version")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	var parseErr *errors.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestFileStoreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	assert.ErrorIs(t, s.Save(ctx, sampleProgress()), context.Canceled)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, WithKey("test:checkpoint"))
	assert.Equal(t, "test:checkpoint", s.Key())
	exerciseStore(t, s)
}

func TestRedisStoreTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, WithTTL(time.Hour))
	require.NoError(t, s.Save(context.Background(), sampleProgress()))
	assert.Equal(t, time.Hour, mr.TTL(s.Key()))

	mr.FastForward(2 * time.Hour)
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisStore(client).Load(context.Background())
	var resErr *errors.ResourceError
	assert.ErrorAs(t, err, &resErr)
}

func TestNextPage(t *testing.T) {
	var p *Progress
	assert.Equal(t, 1, p.NextPage())
	assert.Equal(t, 1, (&Progress{}).NextPage())
	assert.Equal(t, 8, (&Progress{Page: 7}).NextPage())
}

func TestNop(t *testing.T) {
	var s Store = Nop{}
	require.NoError(t, s.Save(context.Background(), sampleProgress()))
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

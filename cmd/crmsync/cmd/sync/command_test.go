package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/crmsync"
	"github.com/agentstation/crmsync/cmd/application"
	"github.com/agentstation/crmsync/internal/remote/remotetest"
	"github.com/agentstation/crmsync/internal/store/memory"
	"github.com/agentstation/crmsync/pkg/backoff"
	"github.com/agentstation/crmsync/pkg/errors"
	pkgsync "github.com/agentstation/crmsync/pkg/sync"
)

func newApp(t *testing.T, srv *remotetest.Server, st *memory.Store) *application.Mock {
	t.Helper()
	client, err := crmsync.New(
		crmsync.WithRemote(crmsync.RemoteConfig{BaseURL: srv.URL, Token: "token", PageSize: 10}),
		crmsync.WithStore(st),
		crmsync.WithCheckpointFile(filepath.Join(t.TempDir(), "checkpoint.json")),
		crmsync.WithRetryPolicy(backoff.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 1}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return &application.Mock{
		ClientFunc:       func() (crmsync.Client, error) { return client, nil },
		OutputFormatFunc: func() string { return "json" },
	}
}

func execute(t *testing.T, app application.Application, args ...string) (*pkgsync.Result, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCommand(app)
	cmd.SilenceUsage, cmd.SilenceErrors = true, true
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	if out.Len() == 0 {
		return nil, err
	}
	var res pkgsync.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res), out.String())
	return &res, err
}

func TestSyncCommand(t *testing.T) {
	srv := remotetest.New(
		map[string]any{"id": "1", "nome": "Ana", "telefone": "555"},
		map[string]any{"id": "2", "nome": "Bruno", "telefone": "556"},
	)
	defer srv.Close()
	st := memory.New()

	res, err := execute(t, newApp(t, srv, st))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.True(t, res.Complete)
	assert.Equal(t, 2, st.Len())
}

func TestSyncCommandDryRun(t *testing.T) {
	srv := remotetest.New(map[string]any{"id": "1", "nome": "Ana", "telefone": "555"})
	defer srv.Close()
	st := memory.New()

	res, err := execute(t, newApp(t, srv, st), "--dry-run", "--detail", "never")
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Zero(t, st.Len())
}

func TestSyncCommandReportsPartialRun(t *testing.T) {
	srv := remotetest.New(map[string]any{"id": "1", "nome": "Ana", "telefone": "555"})
	defer srv.Close()
	srv.FailPage(1, http.StatusInternalServerError)

	res, err := execute(t, newApp(t, srv, memory.New()), "--max-page-errors", "1")
	require.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Complete)
	assert.False(t, errors.IsFatal(err))
}

func TestSyncCommandValidation(t *testing.T) {
	app := &application.Mock{}

	_, err := execute(t, app, "--detail", "sometimes")
	assert.True(t, errors.IsValidationError(err))

	_, err = execute(t, app, "extra")
	assert.Error(t, err)
}

func TestFlagsOnlyOverrideWhatWasSet(t *testing.T) {
	cmd := NewCommand(&application.Mock{})
	require.NoError(t, cmd.ParseFlags([]string{"--batch-width", "3", "--no-sweep"}))

	flags := &Flags{BatchWidth: 3, NoSweep: true}
	opts, err := flags.options(cmd)
	require.NoError(t, err)

	got := pkgsync.Defaults().Apply(opts...)
	assert.Equal(t, 3, got.BatchWidth)
	assert.False(t, got.Sweep)
	assert.Equal(t, pkgsync.Defaults().StalenessWindow, got.StalenessWindow)
}

func TestParseDetailMode(t *testing.T) {
	for _, s := range []string{"never", "missing", "always"} {
		mode, err := ParseDetailMode(s)
		require.NoError(t, err)
		assert.Equal(t, pkgsync.DetailMode(s), mode)
	}
	_, err := ParseDetailMode("")
	assert.Error(t, err)
}

package checkpoint

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/crmsync"
	"github.com/agentstation/crmsync/cmd/application"
	"github.com/agentstation/crmsync/internal/store/memory"
	pkgcheckpoint "github.com/agentstation/crmsync/pkg/checkpoint"
)

func newApp(t *testing.T, format string) (*application.Mock, crmsync.Client) {
	t.Helper()
	client, err := crmsync.New(
		crmsync.WithStore(memory.New()),
		crmsync.WithCheckpointFile(filepath.Join(t.TempDir(), "checkpoint.json")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return &application.Mock{
		ClientFunc:       func() (crmsync.Client, error) { return client, nil },
		OutputFormatFunc: func() string { return format },
	}, client
}

func run(app application.Application, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := NewCommand(app)
	cmd.SilenceUsage, cmd.SilenceErrors = true, true
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestShowWithoutCheckpoint(t *testing.T) {
	app, _ := newApp(t, "table")
	out, err := run(app, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "none")
}

func TestShowAndClear(t *testing.T) {
	ctx := context.Background()
	app, client := newApp(t, "yaml")
	require.NoError(t, client.Checkpoint().Save(ctx, pkgcheckpoint.Progress{RunID: "run-7", Page: 4, Processed: 40}))

	out, err := run(app, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "run_id: run-7")
	assert.Contains(t, out, "page: 4")

	_, err = run(app, "clear")
	require.NoError(t, err)

	p, err := client.Checkpoint().Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)
}

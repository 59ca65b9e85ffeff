package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/crmsync"
	"github.com/agentstation/crmsync/internal/store/memory"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/records"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Output:         "json",
		LogFormat:      "json",
		LogOutput:      "stderr",
		LogLevel:       "error",
		Remote:         RemoteConfig{PageSize: 10},
		Store:          StoreConfig{Backend: "sqlite", DSN: ":memory:", Bootstrap: true},
		CheckpointFile: filepath.Join(t.TempDir(), "checkpoint.json"),
		Schemas:        SchemasConfig{Client: "client", Customer: "customer"},
		RateLimit:      RateLimitConfig{Ceiling: 60, Window: 60e9},
		Sync:           SyncConfig{BatchWidth: 2, DetailMode: "missing", MaxPageErrors: 3, Sweep: true},
		Consolidate:    ConsolidateConfig{MatchStores: true},
	}
}

func execute(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := app.createRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return out.String(), err
}

// TestApp_New verifies app initialization.
func TestApp_New(t *testing.T) {
	build := BuildInfo{Version: "1.0.0", Commit: "abc123", Date: "2024-01-01", BuiltBy: "test"}
	app, err := New(build)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if app.Build() != build {
		t.Errorf("Build() = %+v, want %+v", app.Build(), build)
	}
	if app.Logger() == nil {
		t.Error("Logger() returned nil")
	}
	if app.Config() == nil {
		t.Error("Config() returned nil")
	}
}

func TestWithConfigValidates(t *testing.T) {
	config := testConfig(t)
	config.Store.Backend = "oracle"
	_, err := New(BuildInfo{Version: "dev"}, WithConfig(config))
	assert.True(t, errors.IsFatal(err))
}

// TestApp_Client_Singleton verifies that Client() returns the same instance.
func TestApp_Client_Singleton(t *testing.T) {
	app, err := New(BuildInfo{Version: "dev"}, WithConfig(testConfig(t)))
	require.NoError(t, err)
	defer app.Shutdown(context.Background())

	c1, err := app.Client()
	require.NoError(t, err)
	c2, err := app.Client()
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	ids, err := c1.Store().ListIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestVersionCommand(t *testing.T) {
	app, err := New(BuildInfo{Version: "1.2.3", Commit: "abc", Date: "today", BuiltBy: "make"})
	require.NoError(t, err)

	out, err := execute(t, app, "version", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "crmsync 1.2.3")
	assert.Contains(t, out, "commit:   abc")
}

func TestMatchThroughRoot(t *testing.T) {
	st := memory.New()
	st.SetStores(records.StoreEntity{ID: "3", Name: "Maringá - Loja 3"})
	app, err := New(BuildInfo{Version: "dev"}, WithConfig(testConfig(t)), WithClientOptions(crmsync.WithStore(st)))
	require.NoError(t, err)

	out, err := execute(t, app, "match", "maringa 3")
	require.NoError(t, err)

	var res struct {
		StoreID string `json:"store_id"`
		Tier    string `json:"tier"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, "3", res.StoreID)
	assert.Equal(t, "city_number", res.Tier)
}

func TestOutputFlagOverridesConfig(t *testing.T) {
	app, err := New(BuildInfo{Version: "dev"}, WithConfig(testConfig(t)), WithClientOptions(crmsync.WithStore(memory.New())))
	require.NoError(t, err)

	out, err := execute(t, app, "checkpoint", "show", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "none")
	assert.Equal(t, "table", app.OutputFormat())

	_, err = execute(t, app, "checkpoint", "show", "-o", "xml")
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestExitCodes(t *testing.T) {
	app, err := New(BuildInfo{Version: "dev"}, WithConfig(testConfig(t)), WithClientOptions(crmsync.WithStore(memory.New())))
	require.NoError(t, err)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"sync", "--frobnicate"}, ExitUsage},
		{"unknown command", []string{"frobnicate"}, ExitUsage},
		{"extra argument", []string{"checkpoint", "show", "extra"}, ExitUsage},
		{"sync without remote", []string{"sync"}, ExitUsage},
		{"consolidate without sources", []string{"consolidate"}, ExitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, app, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.want, ExitCode(err), err.Error())
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(fmt.Errorf("sync partial")))
	assert.Equal(t, ExitUsage, ExitCode(&UsageError{Err: fmt.Errorf("bad flag")}))
	assert.Equal(t, ExitUsage, ExitCode(errors.NewConfigError("store", "missing", nil)))
	assert.Equal(t, ExitFailure, ExitCode(errors.ErrLocked))
}

package match

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/crmsync"
	"github.com/agentstation/crmsync/cmd/application"
	"github.com/agentstation/crmsync/internal/cmd/output"
	"github.com/agentstation/crmsync/internal/store/memory"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/records"
)

func newApp(t *testing.T) *application.Mock {
	t.Helper()
	st := memory.New()
	st.SetStores(
		records.StoreEntity{ID: "1", Name: "Maringá - Loja 1"},
		records.StoreEntity{ID: "3", Name: "Maringá - Loja 3"},
		records.StoreEntity{ID: "7", Name: "Shopping Catuaí"},
	)
	client, err := crmsync.New(crmsync.WithStore(st))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return &application.Mock{
		ClientFunc:       func() (crmsync.Client, error) { return client, nil },
		OutputFormatFunc: func() string { return "json" },
	}
}

func run(t *testing.T, app application.Application, args ...string) (output.MatchResult, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCommand(app)
	cmd.SilenceUsage, cmd.SilenceErrors = true, true
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	var res output.MatchResult
	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	}
	return res, err
}

func TestMatchCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantID   string
		wantTier string
	}{
		{"exact", []string{"SHOPPING CATUAÍ"}, "7", "exact"},
		{"city and number", []string{"MARINGA 3"}, "3", "city_number"},
		{"city only", []string{"maringá"}, "1", "city_only"},
		{"campaign", []string{"--campaign", "Black Friday | Maringá Loja 3"}, "3", "city_number"},
		{"unknown", []string{"londrina"}, "", "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := run(t, newApp(t), tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, res.StoreID)
			assert.Equal(t, tt.wantTier, res.Tier)
		})
	}
}

func TestMatchCommandArgs(t *testing.T) {
	app := &application.Mock{}

	_, err := run(t, app)
	assert.True(t, errors.IsValidationError(err))

	_, err = run(t, app, "a", "--campaign", "b")
	assert.True(t, errors.IsValidationError(err))

	_, err = run(t, app, "--campaign", "Natal |  loja ")
	assert.True(t, errors.IsValidationError(err))
}

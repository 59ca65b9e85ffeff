package consolidate

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
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/records"
)

func TestSelect(t *testing.T) {
	configured := []crmsync.Source{
		{Table: "shop_customers", Name: "shop"},
		{Table: "shop_returns"},
		{Table: "crm_clients", Name: "crm"},
	}

	tests := []struct {
		name    string
		args    []string
		want    []crmsync.Source
		wantErr bool
	}{
		{"defaults", nil, configured, false},
		{"by table", []string{"shop_returns"}, []crmsync.Source{{Table: "shop_returns"}}, false},
		{"by name", []string{"crm"}, []crmsync.Source{{Table: "crm_clients", Name: "crm"}}, false},
		{"ad hoc", []string{"legacy"}, []crmsync.Source{{Table: "legacy"}}, false},
		{"glob", []string{"shop_*"}, configured[:2], false},
		{"regex on name", []string{"^cr"}, configured[2:], false},
		{"dedup", []string{"shop_*", "shop_returns"}, configured[:2], false},
		{"no match", []string{"erp_*"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(configured, tt.args)
			if tt.wantErr {
				assert.True(t, errors.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newApp(t *testing.T, st *memory.Store, sources ...crmsync.Source) *application.Mock {
	t.Helper()
	client, err := crmsync.New(
		crmsync.WithStore(st),
		crmsync.WithCheckpointFile(filepath.Join(t.TempDir(), "checkpoint.json")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return &application.Mock{
		ClientFunc:  func() (crmsync.Client, error) { return client, nil },
		SourcesFunc: func() []crmsync.Source { return sources },
	}
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

func seed() *memory.Store {
	st := memory.New()
	st.SetSource("shop_customers", []records.Raw{
		{"id": "1", "nome": "Ana", "cpf": "123", "campanha": "[Maringá 3] Natal"},
	})
	st.SetSource("crm_clients", []records.Raw{
		{"id": "9", "nome": "Ana Souza", "cpf": "123"},
	})
	st.SetStores(records.StoreEntity{ID: "3", Name: "Maringá - Loja 3"})
	return st
}

func TestConsolidateCommand(t *testing.T) {
	st := seed()
	app := newApp(t, st, crmsync.Source{Table: "shop_customers", Name: "shop"}, crmsync.Source{Table: "crm_clients"})

	out, err := run(app)
	require.NoError(t, err)
	assert.Contains(t, out, "shop")
	assert.Contains(t, out, "crm_clients")

	masters := st.AllMasters()
	require.Len(t, masters, 1)
	assert.Equal(t, []string{"shop", "crm_clients"}, masters[0].Sources)
	assert.Equal(t, "3", masters[0].Attributes["store_id"])
}

func TestConsolidateCommandFlags(t *testing.T) {
	st := seed()
	app := newApp(t, st, crmsync.Source{Table: "shop_customers"})

	_, err := run(app, "--dry-run", "--source", "crm_clients")
	require.NoError(t, err)
	assert.Empty(t, st.AllMasters())
	assert.Empty(t, st.ConsolidationLog())

	_, err = run(app, "--no-store-match", "--source", "shop_*")
	require.NoError(t, err)
	masters := st.AllMasters()
	require.Len(t, masters, 1)
	assert.NotContains(t, masters[0].Attributes, "store_id")
}

func TestConsolidateCommandWithoutSources(t *testing.T) {
	_, err := run(newApp(t, memory.New()))
	assert.True(t, errors.IsFatal(err))
}

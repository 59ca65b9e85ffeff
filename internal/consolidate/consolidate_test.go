package consolidate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/crmsync/internal/store/memory"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/mapping"
	"github.com/agentstation/crmsync/pkg/records"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newConsolidator(t *testing.T, backend Backend, opts ...Option) *Consolidator {
	t.Helper()
	schema, err := mapping.Builtin("customer")
	require.NoError(t, err)
	mapper, err := mapping.New(schema)
	require.NoError(t, err)

	opts = append([]Option{WithClock(func() time.Time { return now }), WithBatchSize(2)}, opts...)
	c, err := New(backend, mapper, opts...)
	require.NoError(t, err)
	return c
}

func seed(st *memory.Store) {
	st.SetSource("shop", []records.Raw{
		{"id": "1", "nome": "Ana", "cpf": "123", "cidade": "Maringá", "campanha": "Black Friday | Maringá Loja 3"},
		{"id": "2", "nome": "Sem chave"},
		{"id": "3", "nome": "Bruno", "telefone": "(44) 555"},
	})
	st.SetSource("crm", []records.Raw{
		{"id": "9", "nome": "Ana Souza", "cpf": "123", "cidade": "", "uf": "PR"},
		{"id": "10", "nome": "Bruno", "celular": "44555"},
	})
	st.SetStores(
		records.StoreEntity{ID: "1", Name: "Maringá - Loja 1"},
		records.StoreEntity{ID: "3", Name: "Maringá - Loja 3"},
	)
}

func TestRunMergesSources(t *testing.T) {
	st := memory.New()
	seed(st)

	report, err := newConsolidator(t, st).Run(context.Background(), []Source{{Table: "shop"}, {Name: "crm", Table: "crm"}})
	require.NoError(t, err)
	require.Len(t, report.Sources, 2)
	assert.NotEmpty(t, report.RunID)

	shop := report.Sources[0]
	assert.Equal(t, "shop", shop.Source)
	assert.Equal(t, 3, shop.Processed)
	assert.Equal(t, 2, shop.Inserted)
	assert.Equal(t, 1, shop.Excluded)
	assert.Zero(t, shop.Errors)

	crm := report.Sources[1]
	assert.Equal(t, 2, crm.Processed)
	assert.Equal(t, 2, crm.Updated)

	masters := st.AllMasters()
	require.Len(t, masters, 2)
	assert.Equal(t, "phone:44555", masters[0].IdentificationKey)
	assert.Equal(t, []string{"shop", "crm"}, masters[0].Sources)

	ana := masters[1]
	assert.Equal(t, "tax:123", ana.IdentificationKey)
	assert.Equal(t, "Ana Souza", ana.Attributes["name"])
	assert.Equal(t, "Maringá", ana.Attributes["city"])
	assert.Equal(t, "PR", ana.Attributes["state"])
	assert.Equal(t, "3", ana.Attributes["store_id"])
	assert.Equal(t, "Maringá - Loja 3", ana.Attributes["store_name"])
	assert.NotContains(t, ana.Attributes, "campaign")
	assert.NotContains(t, ana.Attributes, "source_id")

	log := st.ConsolidationLog()
	require.Len(t, log, 2)
	assert.Equal(t, report.RunID, log[0].RunID)
	assert.Equal(t, report.RunID, log[1].RunID)
	assert.NotEqual(t, log[0].ID, log[1].ID)
	assert.True(t, now.Equal(log[0].StartedAt.Time))

	totals := report.Totals()
	assert.Equal(t, 5, totals.Processed)
	assert.Contains(t, report.Summary(), "2 sources: 5 processed")
}

func TestRunAcceptsRowsWithoutSourceID(t *testing.T) {
	tests := []struct {
		name         string
		row          records.Raw
		wantKey      string
		wantInserted int
		wantExcluded int
	}{
		{"tax id and email", records.Raw{"nome": "Ana", "cpf": "123", "email": "ana@x.com"}, "tax:123", 1, 0},
		{"phone only", records.Raw{"nome": "Bruno", "telefone": "(44) 99999-0001"}, "phone:44999990001", 1, 0},
		{"no identity", records.Raw{"nome": "Carla"}, "", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memory.New()
			st.SetSource("leads", []records.Raw{tt.row})

			report, err := newConsolidator(t, st).Run(context.Background(), []Source{{Table: "leads"}})
			require.NoError(t, err)
			require.Len(t, report.Sources, 1)

			leads := report.Sources[0]
			assert.Equal(t, 1, leads.Processed)
			assert.Equal(t, tt.wantInserted, leads.Inserted)
			assert.Equal(t, tt.wantExcluded, leads.Excluded)
			assert.Zero(t, leads.Errors)

			masters := st.AllMasters()
			if tt.wantKey == "" {
				assert.Empty(t, masters)
				return
			}
			require.Len(t, masters, 1)
			assert.Equal(t, tt.wantKey, masters[0].IdentificationKey)
		})
	}
}

func TestRunTwiceIsUnchanged(t *testing.T) {
	st := memory.New()
	seed(st)
	c := newConsolidator(t, st)
	ctx := context.Background()

	_, err := c.Run(ctx, []Source{{Table: "shop"}})
	require.NoError(t, err)

	report, err := c.Run(ctx, []Source{{Table: "shop"}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sources[0].Unchanged)
	assert.Zero(t, report.Sources[0].Inserted)
	assert.Zero(t, report.Sources[0].Updated)
}

func TestMissingSourceIsReported(t *testing.T) {
	st := memory.New()
	seed(st)

	report, err := newConsolidator(t, st).Run(context.Background(), []Source{{Table: "nope"}, {Table: "shop"}})
	require.NoError(t, err)
	require.Len(t, report.Sources, 2)
	assert.Equal(t, 1, report.Sources[0].Errors)
	assert.Contains(t, report.Sources[0].Message, "offset 0")
	assert.Equal(t, 2, report.Sources[1].Inserted)
	assert.Len(t, st.ConsolidationLog(), 2)
}

func TestRowFailuresAreCounted(t *testing.T) {
	st := memory.New()
	st.SetSource("shop", []records.Raw{
		{"nome": "no id"},
		{"id": "1", "telefone": "555"},
		{"id": "2", "email": "ana@example.com"},
	})
	st.FailOn("insert_master", "phone:555", 500)

	report, err := newConsolidator(t, st, WithStoreMatching(false)).Run(context.Background(), []Source{{Table: "shop"}})
	require.NoError(t, err)
	entry := report.Sources[0]
	assert.Equal(t, 3, entry.Processed)
	assert.Equal(t, 2, entry.Errors)
	assert.Equal(t, 1, entry.Inserted)
}

func TestDryRunWritesNothing(t *testing.T) {
	st := memory.New()
	seed(st)

	report, err := newConsolidator(t, st, WithDryRun(true)).Run(context.Background(), []Source{{Table: "shop"}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sources[0].Inserted)
	assert.Empty(t, st.AllMasters())
	assert.Empty(t, st.ConsolidationLog())
}

type failingStores struct {
	*memory.Store
}

func (failingStores) ListStores(context.Context) ([]records.StoreEntity, error) {
	return nil, errors.New("stores table unavailable")
}

func TestStoreListingFailureIsLogged(t *testing.T) {
	st := memory.New()
	seed(st)

	report, err := newConsolidator(t, failingStores{st}).Run(context.Background(), []Source{{Table: "shop"}})
	require.NoError(t, err)
	assert.Contains(t, report.Sources[0].Message, "store matching disabled")
	assert.Equal(t, 2, report.Sources[0].Inserted)

	m, ok, err := st.GetMaster(context.Background(), "tax:123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, m.Attributes, "store_id")
}

func TestRunValidates(t *testing.T) {
	st := memory.New()
	_, err := newConsolidator(t, st).Run(context.Background(), nil)
	assert.True(t, errors.IsValidationError(err))

	_, err = New(nil, nil)
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	st := memory.New()
	seed(st)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newConsolidator(t, st).Run(ctx, []Source{{Table: "shop"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Sources)
}

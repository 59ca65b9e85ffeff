package store

import "github.com/agentstation/crmsync/pkg/constants"

// DefaultTables returns the standard table names.
func DefaultTables() Tables {
	return Tables{
		Records: constants.DefaultRecordsTable,
		Masters: constants.DefaultMastersTable,
		Stores:  constants.DefaultStoresTable,
		Log:     constants.DefaultLogTable,
	}
}

// WithDefaults fills empty names from DefaultTables.
func (t Tables) WithDefaults() Tables {
	d := DefaultTables()
	if t.Records == "" {
		t.Records = d.Records
	}
	if t.Masters == "" {
		t.Masters = d.Masters
	}
	if t.Stores == "" {
		t.Stores = d.Stores
	}
	if t.Log == "" {
		t.Log = d.Log
	}
	return t
}

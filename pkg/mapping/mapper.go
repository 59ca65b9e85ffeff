// Package mapping converts heterogeneous, inconsistently-cased payloads
// into canonical records described by a YAML schema.
//
// Only an unusable primary key rejects a record. Every other defect is
// repaired in place and reported as an Issue next to a valid record.
package mapping

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/records"
)

// IssueKind classifies a repaired defect.
type IssueKind string

// Issue kinds.
const (
	IssueTruncated   IssueKind = "truncated"
	IssueUnparseable IssueKind = "unparseable"
	IssueDefaulted   IssueKind = "defaulted"
)

// Issue is a non-fatal defect repaired during mapping.
type Issue struct {
	Field  string    `json:"field"`
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

// Result is the outcome of mapping one record.
type Result struct {
	ID      string
	Record  records.Canonical
	Issues  []Issue
	Missing []string // required fields with no value
}

// Mapper applies a schema to raw records. It is safe for concurrent use.
type Mapper struct {
	schema *Schema
	now    func() time.Time
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithClock injects the time source used for relative defaults.
func WithClock(now func() time.Time) Option {
	return func(m *Mapper) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a Mapper for schema.
func New(schema *Schema, opts ...Option) (*Mapper, error) {
	if schema == nil {
		return nil, errors.NewValidationError("schema", nil, "schema is required")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	m := &Mapper{schema: schema, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Schema returns the schema the mapper applies.
func (m *Mapper) Schema() *Schema {
	return m.schema
}

// ExtractID resolves only the primary key of raw.
func (m *Mapper) ExtractID(raw records.Raw) (string, error) {
	if !m.schema.HasKey() {
		return "", errors.NewMappingError(m.schema.Entity, "", "schema has no key field")
	}
	key := m.schema.KeyField()
	v, _ := resolve(raw, key.Aliases)
	return m.keyValue(key, v)
}

// Map converts raw into a canonical record. Rows mapped by a keyless
// schema have an empty ID.
func (m *Mapper) Map(raw records.Raw) (Result, error) {
	res := Result{Record: records.Canonical{}}
	if m.schema.HasKey() {
		key := m.schema.KeyField()
		v, _ := resolve(raw, key.Aliases)
		id, err := m.keyValue(key, v)
		if err != nil {
			return Result{}, err
		}
		res.ID = id
		res.Record[key.Name] = id
	}

	for _, f := range m.schema.Fields {
		if f.Key {
			continue
		}
		value, found := resolve(raw, f.Aliases)
		out, issue := m.coerce(f, value, found)
		res.Record[f.Name] = out
		if issue != nil {
			res.Issues = append(res.Issues, *issue)
		}
		if f.Required && records.IsEmpty(out) {
			res.Missing = append(res.Missing, f.Name)
		}
	}

	return res, nil
}

func (m *Mapper) keyValue(key FieldSpec, v any) (string, error) {
	entity := m.schema.Entity
	switch v.(type) {
	case nil:
		return "", errors.NewMappingError(entity, key.Name, "missing or empty")
	case map[string]any, []any, bool:
		return "", errors.NewMappingError(entity, key.Name, "not a scalar identifier")
	}

	id, err := ToString(v)
	if err != nil {
		return "", &errors.MappingError{Entity: entity, Field: key.Name, Reason: "not a scalar identifier", Err: err}
	}
	if id == "" {
		return "", errors.NewMappingError(entity, key.Name, "missing or empty")
	}
	if key.MaxLength > 0 && utf8.RuneCountInString(id) > key.MaxLength {
		return "", errors.NewMappingError(entity, key.Name, "exceeds "+strconv.Itoa(key.MaxLength)+" characters")
	}
	return id, nil
}

// coerce converts one field value. A missing value yields the default;
// a value that cannot be coerced yields the default plus an issue.
func (m *Mapper) coerce(f FieldSpec, v any, found bool) (any, *Issue) {
	if !found {
		return m.defaultValue(f), nil
	}

	switch f.Type {
	case TypeString:
		s, err := ToString(v)
		if err != nil {
			return m.defaultValue(f), &Issue{Field: f.Name, Kind: IssueDefaulted, Detail: err.Error()}
		}
		if s == "" {
			return nil, nil
		}
		return truncate(f, s)

	case TypeInt:
		n, err := ToInt(v)
		if err != nil {
			return m.defaultValue(f), &Issue{Field: f.Name, Kind: IssueDefaulted, Detail: err.Error()}
		}
		return n, nil

	case TypeBool:
		b, err := ToBool(v)
		if err != nil {
			return m.defaultValue(f), &Issue{Field: f.Name, Kind: IssueDefaulted, Detail: err.Error()}
		}
		return b, nil

	case TypeDecimal:
		d, err := ToDecimal(v)
		if err != nil {
			return m.defaultValue(f), &Issue{Field: f.Name, Kind: IssueDefaulted, Detail: err.Error()}
		}
		return d.String(), nil

	case TypeDate:
		ts, ok := ParseDate(v)
		if !ok {
			return nil, &Issue{Field: f.Name, Kind: IssueUnparseable, Detail: describe(v)}
		}
		return ts.Format(time.RFC3339), nil

	case TypeJSON:
		s, err := ToJSON(v)
		if err != nil {
			return nil, &Issue{Field: f.Name, Kind: IssueUnparseable, Detail: err.Error()}
		}
		return s, nil
	}

	return nil, nil
}

func truncate(f FieldSpec, s string) (any, *Issue) {
	if f.MaxLength <= 0 || utf8.RuneCountInString(s) <= f.MaxLength {
		return s, nil
	}
	runes := []rune(s)
	return string(runes[:f.MaxLength]), &Issue{
		Field:  f.Name,
		Kind:   IssueTruncated,
		Detail: strconv.Itoa(len(runes)) + " > " + strconv.Itoa(f.MaxLength),
	}
}

// defaultValue returns the field's declared default, coerced to its type.
func (m *Mapper) defaultValue(f FieldSpec) any {
	if f.Default == nil {
		return nil
	}
	switch f.Type {
	case TypeInt:
		n, err := ToInt(f.Default)
		if err != nil {
			return nil
		}
		return n
	case TypeBool:
		b, err := ToBool(f.Default)
		if err != nil {
			return nil
		}
		return b
	case TypeDecimal:
		d, err := ToDecimal(f.Default)
		if err != nil {
			return nil
		}
		return d.String()
	case TypeDate:
		if s, ok := f.Default.(string); ok && strings.EqualFold(s, "now") {
			return m.now().UTC().Format(time.RFC3339)
		}
		if ts, ok := ParseDate(f.Default); ok {
			return ts.Format(time.RFC3339)
		}
		return nil
	default:
		s, err := ToString(f.Default)
		if err != nil || s == "" {
			return nil
		}
		return s
	}
}

func describe(v any) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case json.Number:
		return t.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(data)
}

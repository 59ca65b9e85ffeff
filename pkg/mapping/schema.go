package mapping

import (
	"embed"
	"os"
	"path"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/crmsync/pkg/errors"
)

//go:embed schemas/*.yaml
var builtinSchemas embed.FS

// Built-in schema names.
const (
	SchemaClient   = "client"
	SchemaCustomer = "customer"
)

// FieldType is the canonical type of a field.
type FieldType string

// Field types.
const (
	TypeString  FieldType = "string"
	TypeInt     FieldType = "int"
	TypeBool    FieldType = "bool"
	TypeDecimal FieldType = "decimal"
	TypeDate    FieldType = "date"
	TypeJSON    FieldType = "json"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeString, TypeInt, TypeBool, TypeDecimal, TypeDate, TypeJSON:
		return true
	}
	return false
}

// FieldSpec describes one canonical field and where to find it in a payload.
type FieldSpec struct {
	Name      string    `yaml:"name"`
	Type      FieldType `yaml:"type"`
	Aliases   []string  `yaml:"aliases"`
	MaxLength int       `yaml:"max_length"`
	Required  bool      `yaml:"required"`
	Key       bool      `yaml:"key"`
	Default   any       `yaml:"default"`
}

// Schema is an ordered set of field specs for one entity.
type Schema struct {
	Entity string      `yaml:"entity"`
	Fields []FieldSpec `yaml:"fields"`
}

// KeyField returns the FieldSpec of the primary key, or a zero FieldSpec
// for a keyless schema.
func (s *Schema) KeyField() FieldSpec {
	for _, f := range s.Fields {
		if f.Key {
			return f
		}
	}
	return FieldSpec{}
}

// HasKey reports whether the schema declares a primary key.
func (s *Schema) HasKey() bool {
	return s.KeyField().Name != ""
}

// Field returns the FieldSpec named name.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Validate checks the schema is internally consistent and fills alias defaults.
func (s *Schema) Validate() error {
	if strings.TrimSpace(s.Entity) == "" {
		return errors.NewValidationError("entity", s.Entity, "entity name is required")
	}

	seen := make(map[string]bool, len(s.Fields))
	keys := 0
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return errors.NewValidationError("fields", i, "field name is required")
		}
		if seen[f.Name] {
			return errors.NewValidationError("fields", f.Name, "duplicate field")
		}
		seen[f.Name] = true

		if f.Type == "" {
			f.Type = TypeString
		}
		if !f.Type.valid() {
			return errors.NewValidationError(f.Name, f.Type, "unknown field type")
		}
		if len(f.Aliases) == 0 {
			f.Aliases = []string{f.Name}
		}
		if f.MaxLength < 0 {
			return errors.NewValidationError(f.Name, f.MaxLength, "max_length must not be negative")
		}
		if f.Key {
			keys++
		}
	}
	if keys > 1 {
		return errors.NewValidationError("fields", keys, "at most one key field is allowed")
	}
	return nil
}

// ParseSchema decodes and validates a YAML schema.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.WrapParse("yaml", "schema", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSchemaFile reads a schema from disk.
func LoadSchemaFile(file string) (*Schema, error) {
	data, err := os.ReadFile(file) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, errors.WrapIO("read", file, err)
	}
	s, err := ParseSchema(data)
	if err != nil {
		return nil, errors.WrapResource("load", "schema", file, err)
	}
	return s, nil
}

// Builtin returns one of the embedded schemas by name.
func Builtin(name string) (*Schema, error) {
	data, err := builtinSchemas.ReadFile(path.Join("schemas", name+".yaml"))
	if err != nil {
		return nil, errors.NewNotFoundError("schema", name)
	}
	return ParseSchema(data)
}

// Load resolves ref as a built-in schema name first, then as a file path.
func Load(ref string) (*Schema, error) {
	if s, err := Builtin(ref); err == nil {
		return s, nil
	}
	return LoadSchemaFile(ref)
}

// Package identity derives identification keys for customer records and
// merges records from several sources into one master per key.
package identity

import (
	"strings"
	"unicode"

	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/mapping"
	"github.com/agentstation/crmsync/pkg/records"
)

// Canonical field names used for key derivation.
const (
	FieldTaxID = "tax_id"
	FieldPhone = "phone"
	FieldEmail = "email"
)

// Kind is the identifier a key was derived from.
type Kind string

// Key kinds, in priority order.
const (
	KindTax   Kind = "tax"
	KindPhone Kind = "phone"
	KindEmail Kind = "email"
)

// Key is an identification key such as "tax:12345678901".
type Key struct {
	Kind  Kind
	Value string
}

// String renders the key as stored.
func (k Key) String() string {
	return string(k.Kind) + ":" + k.Value
}

// IsZero reports whether the key is empty.
func (k Key) IsZero() bool {
	return k.Value == ""
}

// ParseKey parses a stored key.
func ParseKey(s string) (Key, error) {
	kind, value, ok := strings.Cut(s, ":")
	if !ok || value == "" {
		return Key{}, errors.NewValidationError("identification_key", s, "expected kind:value")
	}
	switch Kind(kind) {
	case KindTax, KindPhone, KindEmail:
		return Key{Kind: Kind(kind), Value: value}, nil
	}
	return Key{}, errors.NewValidationError("identification_key", s, "unknown kind "+kind)
}

// Resolve derives the key of fields: tax id, else phone, else email. It
// reports false when none is usable and the record must be excluded.
func Resolve(fields records.Canonical) (Key, bool) {
	if v := Digits(stringOf(fields[FieldTaxID])); v != "" {
		return Key{Kind: KindTax, Value: v}, true
	}
	if v := Digits(stringOf(fields[FieldPhone])); v != "" {
		return Key{Kind: KindPhone, Value: v}, true
	}
	if v := NormalizeEmail(stringOf(fields[FieldEmail])); v != "" {
		return Key{Kind: KindEmail, Value: v}, true
	}
	return Key{}, false
}

// Digits keeps only the ASCII digits of s.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// NormalizeEmail trims and lower-cases an address, returning "" for values
// without an @.
func NormalizeEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.Contains(s, "@") {
		return ""
	}
	return s
}

func stringOf(v any) string {
	if records.IsEmpty(v) {
		return ""
	}
	s, err := mapping.ToString(v)
	if err != nil {
		return ""
	}
	return s
}

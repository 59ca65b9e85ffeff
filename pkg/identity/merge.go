package identity

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/records"
	"github.com/agentstation/utc"
)

// Policy orders the field groups of a merge.
//
//  1. Identity fields (tax_id, phone, email) overwrite when the incoming
//     value is non-empty. They are stored normalized.
//  2. Protected fields only fill a master field that is still empty.
//  3. Every other field overwrites when the incoming value is non-empty.
//
// Ignored fields never reach the master. An empty incoming value never
// clears a master field.
type Policy struct {
	Protected []string `yaml:"protected" json:"protected"`
	Ignored   []string `yaml:"ignored" json:"ignored"`
}

// DefaultPolicy protects the address and store fields and ignores
// per-source ids.
func DefaultPolicy() Policy {
	return Policy{
		Protected: []string{"city", "state", "store_id", "store_name"},
		Ignored:   []string{"source_id", "campaign"},
	}
}

type group int

const (
	groupGeneral group = iota
	groupIdentity
	groupProtected
	groupIgnored
)

func (p Policy) group(field string) group {
	switch {
	case slices.Contains(p.Ignored, field):
		return groupIgnored
	case field == FieldTaxID || field == FieldPhone || field == FieldEmail:
		return groupIdentity
	case slices.Contains(p.Protected, field):
		return groupProtected
	default:
		return groupGeneral
	}
}

// Merge folds incoming from source into existing with the default policy.
func Merge(existing *records.Master, incoming records.Canonical, source string, now time.Time) (*records.Master, error) {
	return DefaultPolicy().Merge(existing, incoming, source, now)
}

// Merge folds incoming from source into existing and returns a new master;
// existing is not modified. A nil existing starts a master keyed by
// Resolve(incoming), which must succeed.
func (p Policy) Merge(existing *records.Master, incoming records.Canonical, source string, now time.Time) (*records.Master, error) {
	out := &records.Master{Attributes: records.Canonical{}}
	if existing != nil {
		out.IdentificationKey = existing.IdentificationKey
		out.Attributes = existing.Attributes.Clone()
		if out.Attributes == nil {
			out.Attributes = records.Canonical{}
		}
		out.Sources = slices.Clone(existing.Sources)
		out.CreatedAt = existing.CreatedAt
	} else {
		key, ok := Resolve(incoming)
		if !ok {
			return nil, errors.NewValidationError("identification_key", nil, "record has no tax id, phone or email")
		}
		out.IdentificationKey = key.String()
		out.CreatedAt = utc.Time{Time: now}
	}

	for _, field := range slices.Sorted(maps.Keys(incoming)) {
		value := incoming[field]
		if records.IsEmpty(value) {
			continue
		}
		switch p.group(field) {
		case groupIgnored:
		case groupIdentity:
			if v := normalizeIdentity(field, value); v != "" {
				out.Attributes[field] = v
			}
		case groupProtected:
			if records.IsEmpty(out.Attributes[field]) {
				out.Attributes[field] = value
			}
		default:
			out.Attributes[field] = value
		}
	}

	if source != "" && !out.HasSource(source) {
		out.Sources = append(out.Sources, source)
	}

	hash, err := Hash(out.Attributes)
	if err != nil {
		return nil, err
	}
	out.DataHash = hash
	out.UpdatedAt = utc.Time{Time: now}
	if existing != nil && !Changed(existing, out) {
		out.UpdatedAt = existing.UpdatedAt
	}
	return out, nil
}

func normalizeIdentity(field string, v any) string {
	s := stringOf(v)
	if field == FieldEmail {
		return NormalizeEmail(s)
	}
	return Digits(s)
}

// Hash returns a content hash of attrs. Empty values are ignored and every
// value is compared by its string form, so an int64 and the json.Number
// read back from a store hash alike.
func Hash(attrs records.Canonical) (string, error) {
	normalized := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if s := stringOf(v); s != "" {
			normalized[k] = s
		}
	}
	sum, err := hashstructure.Hash(normalized, hashstructure.FormatV2, nil)
	if err != nil {
		return "", errors.WrapResource("hash", "master", "", err)
	}
	return fmt.Sprintf("%016x", sum), nil
}

// Changed reports whether after differs from before in content or sources.
func Changed(before, after *records.Master) bool {
	if before == nil || after == nil {
		return before != after
	}
	return before.DataHash != after.DataHash || !slices.Equal(before.Sources, after.Sources)
}

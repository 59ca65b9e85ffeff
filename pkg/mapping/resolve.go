package mapping

import (
	"strconv"
	"strings"

	"github.com/agentstation/crmsync/pkg/records"
)

// resolve returns the first non-empty value among aliases. Alias segments
// are matched case-insensitively; numeric segments index into arrays.
func resolve(raw records.Raw, aliases []string) (any, bool) {
	for _, alias := range aliases {
		v, ok := lookupPath(map[string]any(raw), strings.Split(alias, "."))
		if ok && !empty(v) {
			return v, true
		}
	}
	return nil, false
}

func lookupPath(cur any, segments []string) (any, bool) {
	for _, seg := range segments {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := lookupKey(node, seg)
			if !ok {
				return nil, false
			}
			cur = v
		case records.Raw:
			v, ok := lookupKey(node, seg)
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// lookupKey prefers an exact key and falls back to a case-insensitive
// match. When several keys differ only in case, the smallest one wins so
// the result does not depend on map iteration order.
func lookupKey(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	best, found := "", false
	for k := range m {
		if strings.EqualFold(k, key) && (!found || k < best) {
			best, found = k, true
		}
	}
	if !found {
		return nil, false
	}
	return m[best], true
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

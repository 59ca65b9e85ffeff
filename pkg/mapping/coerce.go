package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// dateLayouts are tried in order. Layouts without a zone are read as UTC.
// Day-first layouts accept unpadded day and month.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"2/1/06",
	"2-1-2006",
	"2.1.2006",
}

// epochMillisThreshold separates unix seconds from unix milliseconds.
const epochMillisThreshold = 100_000_000_000

// ParseDate parses the date formats seen across CRM payloads and source
// tables. It returns false rather than an error on unparseable input.
func ParseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), !t.IsZero()
	case json.Number:
		return parseEpoch(t.String())
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		if isDigits(s) {
			return parseEpoch(s)
		}
		return time.Time{}, false
	default:
		n, err := cast.ToInt64E(v)
		if err != nil || n <= 0 {
			return time.Time{}, false
		}
		return fromEpoch(n), true
	}
}

func parseEpoch(s string) (time.Time, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f <= 0 {
			return time.Time{}, false
		}
		n = int64(f)
	}
	if n <= 0 {
		return time.Time{}, false
	}
	return fromEpoch(n), true
}

func fromEpoch(n int64) time.Time {
	if n >= epochMillisThreshold {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// truthy and falsy words accepted beyond strconv.ParseBool.
var boolWords = map[string]bool{
	"sim": true, "s": true, "yes": true, "y": true, "on": true, "ativo": true,
	"não": false, "nao": false, "n": false, "no": false, "off": false, "inativo": false,
}

// ToBool coerces v to a bool.
func ToBool(v any) (bool, error) {
	switch t := v.(type) {
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		if b, ok := boolWords[s]; ok {
			return b, nil
		}
		return cast.ToBoolE(s)
	case json.Number:
		return cast.ToBoolE(t.String())
	default:
		return cast.ToBoolE(v)
	}
}

// ToInt coerces v to an int64. Strings are always read as base 10 and
// fractional values are truncated.
func ToInt(v any) (int64, error) {
	switch t := v.(type) {
	case string:
		return parseIntString(t)
	case json.Number:
		return parseIntString(t.String())
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("not a finite number: %v", t)
		}
		return int64(t), nil
	default:
		return cast.ToInt64E(v)
	}
}

func parseIntString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int64(f), nil
}

// ToDecimal coerces v to a decimal. Strings may use either "1,234.56" or
// "1.234,56" grouping; currency symbols and spaces are ignored.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		return decimal.NewFromString(normalizeNumber(t))
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	default:
		n, err := cast.ToInt64E(v)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(n), nil
	}
}

func normalizeNumber(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9', r == '-', r == '.', r == ',':
			b.WriteRune(r)
		}
	}
	out := b.String()

	lastDot := strings.LastIndex(out, ".")
	lastComma := strings.LastIndex(out, ",")
	switch {
	case lastComma < 0 && strings.Count(out, ".") > 1:
		// dots can only be grouping separators
		out = strings.ReplaceAll(out, ".", "")
	case lastComma > lastDot:
		// comma is the decimal separator
		out = strings.ReplaceAll(out, ".", "")
		out = strings.Replace(out, ",", ".", 1)
	default:
		out = strings.ReplaceAll(out, ",", "")
	}
	return out
}

// ToString coerces a scalar to a trimmed string.
func ToString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		return t.String(), nil
	case map[string]any, []any:
		return ToJSON(v)
	default:
		s, err := cast.ToStringE(v)
		return strings.TrimSpace(s), err
	}
}

// ToJSON renders v as compact JSON text. Strings that already hold valid
// JSON arrays or objects are compacted rather than double-encoded.
func ToJSON(v any) (string, error) {
	if s, ok := v.(string); ok {
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var buf bytes.Buffer
			if err := json.Compact(&buf, []byte(trimmed)); err == nil {
				return buf.String(), nil
			}
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

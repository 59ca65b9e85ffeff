package mapping

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{"rfc3339", "2024-05-01T12:30:00Z", "2024-05-01T12:30:00Z", true},
		{"rfc3339 offset", "2024-05-01T09:30:00-03:00", "2024-05-01T12:30:00Z", true},
		{"fractional", "2024-05-01T12:30:00.123Z", "2024-05-01T12:30:00.123Z", true},
		{"no zone", "2024-05-01T12:30:00", "2024-05-01T12:30:00Z", true},
		{"space separated", "2024-05-01 12:30:00", "2024-05-01T12:30:00Z", true},
		{"bare date", "2024-05-01", "2024-05-01T00:00:00Z", true},
		{"day month year", "01/05/2024", "2024-05-01T00:00:00Z", true},
		{"day month year time", "01/05/2024 08:15", "2024-05-01T08:15:00Z", true},
		{"dashed dmy", "01-05-2024", "2024-05-01T00:00:00Z", true},
		{"unpadded dmy", "5/3/2024", "2024-03-05T00:00:00Z", true},
		{"unpadded dmy time", "5/3/2024 14:05", "2024-03-05T14:05:00Z", true},
		{"two digit year", "05/03/24", "2024-03-05T00:00:00Z", true},
		{"unpadded dotted", "1.5.2024", "2024-05-01T00:00:00Z", true},
		{"epoch seconds", json.Number("1714566600"), "2024-05-01T12:30:00Z", true},
		{"epoch millis string", "1714566600000", "2024-05-01T12:30:00Z", true},
		{"epoch int", 1714566600, "2024-05-01T12:30:00Z", true},
		{"garbage", "not a date", "", false},
		{"impossible", "31/02/2024", "", false},
		{"empty", "", "", false},
		{"nil", nil, "", false},
		{"zero", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got.Format(time.RFC3339Nano))
			}
		})
	}
}

func TestToBool(t *testing.T) {
	tests := []struct {
		in      any
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"SIM", true, false},
		{"não", false, false},
		{"n", false, false},
		{"1", true, false},
		{json.Number("0"), false, false},
		{true, true, false},
		{1, true, false},
		{"talvez", false, true},
	}
	for _, tt := range tests {
		got, err := ToBool(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.in)
			continue
		}
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestToInt(t *testing.T) {
	tests := []struct {
		in      any
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{" 08 ", 8, false},
		{"3.9", 3, false},
		{json.Number("12"), 12, false},
		{float64(7.2), 7, false},
		{int32(5), 5, false},
		{"abc", 0, true},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, err := ToInt(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.in)
			continue
		}
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestToDecimal(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"1.234,56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"R$ 99,90", "99.9"},
		{"1.000.000", "1000000"},
		{"-12.5", "-12.5"},
		{json.Number("10.10"), "10.1"},
		{float64(0.1), "0.1"},
		{int64(3), "3"},
	}
	for _, tt := range tests {
		got, err := ToDecimal(tt.in)
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, got.String(), "%v", tt.in)
	}

	_, err := ToDecimal("abc")
	assert.Error(t, err)
}

func TestToJSON(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{map[string]any{"a": 1}, `{"a":1}`},
		{[]any{"x", "y"}, `["x","y"]`},
		{`{ "a" : [1, 2] }`, `{"a":[1,2]}`},
		{"plain", `"plain"`},
		{`{broken`, `"{broken"`},
	}
	for _, tt := range tests {
		got, err := ToJSON(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

package remote

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"

	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/records"
)

// listShapes are the known locations of the record array, tried in order.
var listShapes = [][]string{
	{"data", "list"},
	{"list"},
	{"data", "data"},
	{"data"},
	{"items"},
	{"results"},
	{"records"},
}

// detailShapes are the known locations of a single record, tried in order.
var detailShapes = [][]string{
	{"data"},
	{"record"},
}

func decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.WrapParse("json", "response", err)
	}
	return v, nil
}

// ParseEnvelope extracts the record array from a list response. A bare
// array is accepted as-is; otherwise each known envelope shape is tried in
// order. A body matching none of them yields UnrecognizedEnvelopeError.
func ParseEnvelope(endpoint string, body []byte) ([]records.Raw, error) {
	v, err := decode(body)
	if err != nil {
		return nil, err
	}

	if arr, ok := v.([]any); ok {
		return toRecords(arr), nil
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &errors.UnrecognizedEnvelopeError{Endpoint: endpoint}
	}

	for _, path := range listShapes {
		if arr, ok := lookup(obj, path).([]any); ok {
			return toRecords(arr), nil
		}
	}

	return nil, &errors.UnrecognizedEnvelopeError{
		Endpoint: endpoint,
		Keys:     slices.Sorted(maps.Keys(obj)),
	}
}

// ParseDetail extracts a single record from a detail response.
func ParseDetail(endpoint string, body []byte) (records.Raw, error) {
	v, err := decode(body)
	if err != nil {
		return nil, err
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &errors.UnrecognizedEnvelopeError{Endpoint: endpoint}
	}

	for _, path := range detailShapes {
		if inner, ok := lookup(obj, path).(map[string]any); ok {
			return records.Raw(inner), nil
		}
	}

	if len(obj) == 0 {
		return nil, &errors.UnrecognizedEnvelopeError{Endpoint: endpoint}
	}
	return records.Raw(obj), nil
}

func lookup(obj map[string]any, path []string) any {
	var cur any = obj
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[key]
		if !ok {
			return nil
		}
	}
	return cur
}

// toRecords converts array elements to records. Non-object elements become
// empty records so they are still counted, and later rejected by the mapper.
func toRecords(arr []any) []records.Raw {
	out := make([]records.Raw, 0, len(arr))
	for _, item := range arr {
		m, _ := item.(map[string]any)
		if m == nil {
			m = map[string]any{}
		}
		out = append(out, records.Raw(m))
	}
	return out
}

// Package coerce converts row values between the shapes callers supply,
// the shapes the schema validates, and the shapes stored in SQL columns.
//
// Three passes run over a compiled *schema.Desc:
//
//   - Preprocess normalizes caller input before validation.
//   - Transform turns a validated row into column values.
//   - ParseFromStorage rebuilds a row from column values.
//
// Composite values (objects, arrays, records, associative maps) are stored
// as JSON text, booleans as 0/1, dates as epoch milliseconds and bytes as
// base64 text. For every kind, ParseFromStorage(Transform(x)) == x for a
// validated x, except where a union collapses to a branch other than the
// one x belongs to.
package coerce

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mesh-intelligence/shelf/internal/schema"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

// dateLayouts are tried in order when parsing date strings.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses s with the accepted layouts, returning UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FromEpochMillis converts epoch milliseconds to a UTC time.
func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// parseNumber parses a numeric string. Empty and NaN strings are rejected.
func parseNumber(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return nil, false
	}
	return f, true
}

// decodeJSON parses text with json.Number preserved so integers survive.
func decodeJSON(s string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return out, true
}

// plainNumber converts a json.Number that no schema claimed.
func plainNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// toAssoc rebuilds an associative map from a decoded JSON object.
func toAssoc(v any) (types.Assoc, bool) {
	switch m := v.(type) {
	case types.Assoc:
		return m, true
	case map[string]any:
		return types.Assoc(m), true
	}
	return nil, false
}

// encodeBlob stores bytes as base64 text.
func encodeBlob(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeBlob(s string) ([]byte, bool) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

// marshalJSON serializes v without HTML escaping.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// kindOf is the kind of d, or unknown when d is nil (no schema).
func kindOf(d *schema.Desc) schema.Kind {
	if d == nil {
		return schema.KindUnknown
	}
	return d.Kind
}

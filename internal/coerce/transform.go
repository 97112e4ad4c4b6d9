package coerce

import (
	"fmt"
	"time"

	"github.com/mesh-intelligence/shelf/internal/schema"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Transform converts a validated row into storage column values. Fields the
// schema does not describe (auto-fields) pass through unchanged.
func Transform(d *schema.Desc, row types.Row) (types.Row, error) {
	out := make(types.Row, len(row))
	for name, v := range row {
		sv, err := TransformValue(d.Field(name), v)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", name, err)
		}
		out[name] = sv
	}
	return out, nil
}

// TransformValue converts one value for its column.
func TransformValue(d *schema.Desc, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	kind := kindOf(d)
	switch {
	case kind.IsJSON():
		if _, ok := v.(string); ok {
			return v, nil
		}
		return marshalJSON(toPlain(v))
	case kind == schema.KindBoolean:
		if b, ok := v.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case kind == schema.KindDate:
		if t, ok := v.(time.Time); ok {
			return t.UnixMilli(), nil
		}
	case kind.IsNumber():
		if s, ok := v.(string); ok {
			if n, ok := parseNumber(s); ok {
				return normalizeNumber(kind, n), nil
			}
		}
	case kind == schema.KindBlob:
		if b, ok := v.([]byte); ok {
			return encodeBlob(b), nil
		}
	}
	if t, ok := v.(time.Time); ok {
		return t.UnixMilli(), nil
	}
	if b, ok := v.(bool); ok && kind == schema.KindUnknown {
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	}
	if _, ok := v.(types.Assoc); ok {
		return marshalJSON(toPlain(v))
	}
	if _, ok := schema.AsMap(v); ok {
		return marshalJSON(toPlain(v))
	}
	if _, ok := schema.AsSlice(v); ok {
		return marshalJSON(toPlain(v))
	}
	return v, nil
}

// toPlain converts associative maps to plain objects recursively and
// formats nested dates as RFC 3339 with millisecond precision.
func toPlain(v any) any {
	switch x := v.(type) {
	case types.Assoc:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = toPlain(val)
		}
		return out
	case time.Time:
		return x.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	case []byte:
		return encodeBlob(x)
	}
	if m, ok := schema.AsMap(v); ok {
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = toPlain(val)
		}
		return out
	}
	if s, ok := schema.AsSlice(v); ok {
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = toPlain(item)
		}
		return out
	}
	return v
}

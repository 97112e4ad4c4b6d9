package coerce

import (
	"encoding/json"
	"time"

	"github.com/mesh-intelligence/shelf/internal/schema"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

// ParseFromStorage rebuilds a row from raw column values. NULL columns are
// dropped from the row. The result still has to pass schema validation.
func ParseFromStorage(d *schema.Desc, raw types.Row) types.Row {
	out := make(types.Row, len(raw))
	for name, v := range raw {
		if v == nil {
			continue
		}
		out[name] = ParseValue(d.Field(name), v)
	}
	return out
}

// ParseValue rebuilds one column value.
func ParseValue(d *schema.Desc, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	kind := kindOf(d)
	switch {
	case kind.IsJSON():
		s, ok := v.(string)
		if !ok {
			return PreprocessValue(d, v)
		}
		parsed, ok := decodeJSON(s)
		if !ok {
			return s
		}
		return PreprocessValue(d, parsed)
	case kind == schema.KindBoolean:
		switch x := v.(type) {
		case bool:
			return x
		case string:
			return x == "1"
		}
		if f, ok := schema.AsFloat(v); ok {
			return f == 1
		}
		return v
	case kind.IsNumber():
		if s, ok := v.(string); ok {
			if n, ok := parseNumber(s); ok {
				return normalizeNumber(kind, n)
			}
			return s
		}
		return normalizeNumber(kind, v)
	case kind == schema.KindDate:
		switch x := v.(type) {
		case time.Time:
			return x.UTC()
		case string:
			if t, ok := ParseDate(x); ok {
				return t
			}
			return x
		}
		if ms, ok := schema.AsInt(v); ok {
			return FromEpochMillis(ms)
		}
		return v
	case kind == schema.KindBlob:
		if s, ok := v.(string); ok {
			if b, ok := decodeBlob(s); ok {
				return b
			}
		}
		return v
	}
	if n, ok := v.(json.Number); ok {
		return plainNumber(n)
	}
	return v
}

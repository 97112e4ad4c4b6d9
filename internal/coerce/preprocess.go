package coerce

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mesh-intelligence/shelf/internal/schema"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Preprocess normalizes caller input against the table's root object
// descriptor before validation. Only fields the schema knows are touched;
// values that cannot be normalized are left as they are for the validator
// to reject.
func Preprocess(d *schema.Desc, row types.Row) types.Row {
	out := make(types.Row, len(row))
	for name, v := range row {
		out[name] = PreprocessValue(d.Field(name), v)
	}
	return out
}

// PreprocessValue normalizes one value against d.
func PreprocessValue(d *schema.Desc, v any) any {
	if v == nil {
		return nil
	}
	if n, ok := v.(json.Number); ok {
		switch kind := kindOf(d); {
		case kind == schema.KindString, kind == schema.KindEnum:
			return n.String()
		case !kind.IsNumber() && kind != schema.KindDate && kind != schema.KindBoolean:
			return plainNumber(n)
		}
	}

	switch kind := kindOf(d); {
	case kind.IsJSON():
		return preprocessComposite(d, v)
	case kind == schema.KindBoolean:
		return preprocessBool(v)
	case kind.IsNumber():
		return preprocessNumber(kind, v)
	case kind == schema.KindDate:
		return preprocessDate(v)
	case kind == schema.KindBlob:
		if s, ok := v.(string); ok {
			if b, ok := decodeBlob(s); ok {
				return b
			}
		}
	case kind == schema.KindUnknown:
		return plainDeep(v)
	}
	return v
}

// plainDeep replaces json.Number values inside schema-less structures.
func plainDeep(v any) any {
	switch x := v.(type) {
	case json.Number:
		return plainNumber(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = plainDeep(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = plainDeep(val)
		}
		return out
	}
	return v
}

func preprocessComposite(d *schema.Desc, v any) any {
	if s, ok := v.(string); ok {
		parsed, ok := decodeJSON(s)
		if !ok {
			return v
		}
		v = parsed
	}

	switch d.Kind {
	case schema.KindMap:
		m, ok := toAssoc(v)
		if !ok {
			m, ok = schema.AsMap(v)
		}
		if ok {
			out := make(types.Assoc, len(m))
			for k, val := range m {
				out[k] = PreprocessValue(d.Elem(), val)
			}
			return out
		}
	case schema.KindArray:
		if s, ok := schema.AsSlice(v); ok {
			out := make([]any, len(s))
			for i, item := range s {
				out[i] = PreprocessValue(d.Item(i), item)
			}
			return out
		}
	case schema.KindRecord:
		if m, ok := schema.AsMap(v); ok {
			out := make(map[string]any, len(m))
			for k, val := range m {
				out[k] = PreprocessValue(d.Elem(), val)
			}
			return out
		}
	case schema.KindObject:
		if m, ok := schema.AsMap(v); ok {
			out := make(map[string]any, len(m))
			for k, val := range m {
				out[k] = PreprocessValue(d.Field(k), val)
			}
			return out
		}
	}
	return v
}

func preprocessBool(v any) any {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1":
			return true
		case "false", "0":
			return false
		}
		return v
	}
	if f, ok := schema.AsFloat(v); ok {
		switch f {
		case 1:
			return true
		case 0:
			return false
		}
	}
	return v
}

func preprocessNumber(kind schema.Kind, v any) any {
	switch n := v.(type) {
	case string:
		parsed, ok := parseNumber(n)
		if !ok {
			return v
		}
		return normalizeNumber(kind, parsed)
	case json.Number:
		return normalizeNumber(kind, n)
	}
	return v
}

// normalizeNumber returns int64 for integral integer-kind values and float64
// otherwise; values that do not fit are returned unchanged.
func normalizeNumber(kind schema.Kind, v any) any {
	if kind == schema.KindInteger {
		if i, ok := schema.AsInt(v); ok {
			return i
		}
	}
	if f, ok := schema.AsFloat(v); ok {
		return f
	}
	return v
}

func preprocessDate(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Truncate(time.Millisecond)
	case string:
		if parsed, ok := ParseDate(t); ok {
			return parsed.Truncate(time.Millisecond)
		}
		return v
	}
	if ms, ok := schema.AsInt(v); ok {
		return FromEpochMillis(ms)
	}
	return v
}

package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/mesh-intelligence/shelf/pkg/types"
)

// attrKey is the CUE attribute that refines a field's storage shape:
// @shelf(date), @shelf(map) or @shelf(bytes).
const attrKey = "shelf"

const maxCUEDepth = 32

// FromCUE compiles src and builds a Node from the value at path, usually a
// definition such as "#User". An empty path uses the root value.
//
// Mapping: string/int/float/number/bool become leaves; a disjunction of
// string literals becomes an enum; `null | T` is nullable; `*x | T` has a
// default; other disjunctions are unions; `[...T]` is an array and a closed
// list a tuple; a struct with only a `[string]: T` pattern is a record; an
// optional field `f?:` is optional.
func FromCUE(src []byte, filename, path string) (*Node, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile %s: %w", filename, err)
	}
	if path != "" {
		v = v.LookupPath(cue.ParsePath(path))
		if !v.Exists() {
			return nil, fmt.Errorf("%w: %s not found in %s", types.ErrInvalidSchema, path, filename)
		}
	}
	return FromCUEValue(v)
}

// FromCUEValue builds a Node from an already compiled CUE value.
func FromCUEValue(v cue.Value) (*Node, error) {
	return fromCUE(v, 0)
}

func fromCUE(v cue.Value, depth int) (*Node, error) {
	if depth > maxCUEDepth {
		return nil, fmt.Errorf("%w: CUE value nested deeper than %d", types.ErrInvalidSchema, maxCUEDepth)
	}
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSchema, err)
	}

	if def, ok := defaultOf(v); ok {
		inner, err := fromCUEDisjunction(v, depth)
		if err != nil {
			return nil, err
		}
		dv, err := concreteValue(def)
		if err != nil {
			return nil, err
		}
		return inner.Default(dv), nil
	}
	return fromCUEDisjunction(v, depth)
}

// defaultOf returns the marked default of a disjunction such as
// "*false | bool". CUE also reports non-disjunctions (closed lists, for one)
// as their own default; those are not defaults.
func defaultOf(v cue.Value) (cue.Value, bool) {
	if op, _ := v.Expr(); op != cue.OrOp {
		return cue.Value{}, false
	}
	def, ok := v.Default()
	if !ok || def.Validate(cue.Concrete(true)) != nil {
		return cue.Value{}, false
	}
	return def, true
}

func fromCUEDisjunction(v cue.Value, depth int) (*Node, error) {
	op, args := v.Expr()
	if op != cue.OrOp || len(args) < 2 {
		return fromCUEKind(v, depth)
	}

	nullable := false
	var rest []cue.Value
	for _, a := range args {
		if a.IncompleteKind() == cue.NullKind {
			nullable = true
			continue
		}
		rest = append(rest, a)
	}

	var n *Node
	switch {
	case len(rest) == 0:
		n = Any()
	case len(rest) == 1:
		inner, err := fromCUE(rest[0], depth+1)
		if err != nil {
			return nil, err
		}
		n = inner
	case allStringLiterals(rest):
		values := make([]string, 0, len(rest))
		for _, a := range rest {
			s, _ := a.String()
			values = append(values, s)
		}
		n = Enum(values...)
	default:
		options := make([]*Node, 0, len(rest))
		for _, a := range rest {
			opt, err := fromCUE(a, depth+1)
			if err != nil {
				return nil, err
			}
			options = append(options, opt)
		}
		n = Union(options...)
	}
	if nullable {
		n = n.Nullable()
	}
	return n, nil
}

func allStringLiterals(values []cue.Value) bool {
	for _, a := range values {
		if a.IncompleteKind() != cue.StringKind || !a.IsConcrete() {
			return false
		}
	}
	return true
}

func fromCUEKind(v cue.Value, depth int) (*Node, error) {
	switch attr := shelfAttr(v); attr {
	case "date":
		return Date(), nil
	case "bytes":
		return Bytes(), nil
	case "map":
		elem := v.LookupPath(cue.MakePath(cue.AnyString))
		if !usable(elem) {
			return Map(Any()), nil
		}
		en, err := fromCUE(elem, depth+1)
		if err != nil {
			return nil, err
		}
		return Map(en), nil
	case "":
	default:
		return nil, fmt.Errorf("%w: unknown @%s(%s) attribute", types.ErrInvalidSchema, attrKey, attr)
	}

	kind := v.IncompleteKind()
	if v.IsConcrete() && kind != cue.StructKind && kind != cue.ListKind {
		lit, err := concreteValue(v)
		if err != nil {
			return nil, err
		}
		return Literal(lit), nil
	}

	switch kind {
	case cue.StringKind:
		return String(), nil
	case cue.IntKind:
		return Int(), nil
	case cue.FloatKind, cue.NumberKind:
		return Number(), nil
	case cue.BoolKind:
		return Boolean(), nil
	case cue.BytesKind:
		return Bytes(), nil
	case cue.TopKind:
		return Any(), nil
	case cue.ListKind:
		return fromCUEList(v, depth)
	case cue.StructKind:
		return fromCUEStruct(v, depth)
	}
	return nil, fmt.Errorf("%w: unsupported CUE kind %v", types.ErrInvalidSchema, kind)
}

func fromCUEList(v cue.Value, depth int) (*Node, error) {
	if elem := v.LookupPath(cue.MakePath(cue.AnyIndex)); usable(elem) {
		en, err := fromCUE(elem, depth+1)
		if err != nil {
			return nil, err
		}
		return Array(en), nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSchema, err)
	}
	var items []*Node
	for iter.Next() {
		item, err := fromCUE(iter.Value(), depth+1)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return Tuple(items...), nil
}

func fromCUEStruct(v cue.Value, depth int) (*Node, error) {
	iter, err := v.Fields(cue.Optional(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSchema, err)
	}
	var fields []Field
	for iter.Next() {
		fn, err := fromCUE(iter.Value(), depth+1)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", iter.Label(), err)
		}
		if iter.IsOptional() {
			fn = fn.Optional()
		}
		fields = append(fields, F(iter.Label(), fn))
	}
	if len(fields) == 0 {
		if elem := v.LookupPath(cue.MakePath(cue.AnyString)); usable(elem) {
			en, err := fromCUE(elem, depth+1)
			if err != nil {
				return nil, err
			}
			return Record(en), nil
		}
	}
	return Object(fields...), nil
}

// usable reports whether a pattern lookup found an element constraint.
func usable(v cue.Value) bool {
	return v.Exists() && v.Err() == nil
}

func shelfAttr(v cue.Value) string {
	a := v.Attribute(attrKey)
	if a.Err() != nil {
		return ""
	}
	return a.Contents()
}

func concreteValue(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind, cue.NumberKind:
		return v.Float64()
	case cue.BoolKind:
		return v.Bool()
	case cue.BytesKind:
		return v.Bytes()
	case cue.NullKind:
		return nil, nil
	}
	var out any
	if err := v.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode default: %v", types.ErrInvalidSchema, err)
	}
	return out, nil
}

package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Validate checks v against n and returns the validated value: defaults are
// applied, catch values substituted, unknown object keys dropped, numbers
// normalized to int64 or float64, and associative maps returned as
// types.Assoc. A nil v means the value is absent. Failures are
// *types.ValidationError.
func Validate(n *Node, v any) (any, error) {
	return validate(n, v, nil)
}

// ValidateRow validates a row against the table schema. With partial set,
// absent top-level fields are skipped instead of being required or
// defaulted, which is how update payloads are checked.
func (d *Descriptor) ValidateRow(row types.Row, partial bool) (types.Row, error) {
	leaf := d.Desc.Leaf
	out, err := validateObject(leaf, map[string]any(row), nil, partial)
	if err != nil {
		return nil, err
	}
	// Refinements and pipes declared on the root still apply.
	if d.Root != leaf && !partial {
		res, err := validate(d.Root, out, nil)
		if err != nil {
			return nil, err
		}
		if m, ok := AsMap(res); ok {
			out = m
		}
	}
	return types.Row(out), nil
}

func fail(path []string, format string, args ...any) error {
	return &types.ValidationError{Path: strings.Join(path, "."), Constraint: fmt.Sprintf(format, args...)}
}

func child(path []string, name string) []string {
	return append(path[:len(path):len(path)], name)
}

func validate(n *Node, v any, path []string) (any, error) {
	if n == nil {
		return v, nil
	}
	missing := v == nil

	switch n.Tag {
	case TagOptional, TagNullable:
		if missing {
			return nil, nil
		}
		return validate(n.Inner, v, path)
	case TagDefault:
		if missing && n.DefaultFn != nil {
			v = n.DefaultFn()
		}
		return validate(n.Inner, v, path)
	case TagCatch:
		out, err := validate(n.Inner, v, path)
		if err != nil {
			return n.CatchValue, nil
		}
		return out, nil
	case TagBranded, TagReadonly, TagPromise:
		return validate(n.Inner, v, path)
	case TagRefine:
		out, err := validate(n.Inner, v, path)
		if err != nil {
			return nil, err
		}
		if n.Check != nil && !n.Check(out) {
			msg := n.Message
			if msg == "" {
				msg = "failed refinement"
			}
			return nil, fail(path, "%s", msg)
		}
		return out, nil
	case TagLazy:
		return validate(n.resolveLazy(), v, path)
	case TagPipe:
		out, err := validate(n.Inner, v, path)
		if err != nil {
			return nil, err
		}
		return validate(n.Out, out, path)
	case TagAny:
		return v, nil
	case TagUnion, TagDiscriminatedUnion:
		return validateUnion(n, v, path)
	case TagIntersection:
		return validateIntersection(n, v, path)
	}

	if missing {
		return nil, fail(path, "required")
	}

	switch n.Tag {
	case TagString:
		s, ok := v.(string)
		if !ok {
			return nil, fail(path, "expected string, got %T", v)
		}
		if err := checkBounds(path, float64(utf8.RuneCountInString(s)), n, "length"); err != nil {
			return nil, err
		}
		return s, nil
	case TagNumber:
		return validateNumber(n, v, path)
	case TagBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fail(path, "expected boolean, got %T", v)
		}
		return b, nil
	case TagDate:
		t, ok := v.(time.Time)
		if !ok {
			return nil, fail(path, "expected date, got %T", v)
		}
		// Dates are stored as epoch milliseconds.
		return t.UTC().Truncate(time.Millisecond), nil
	case TagEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fail(path, "expected one of %s, got %T", strings.Join(n.Values, "|"), v)
		}
		for _, allowed := range n.Values {
			if s == allowed {
				return s, nil
			}
		}
		return nil, fail(path, "expected one of %s, got %q", strings.Join(n.Values, "|"), s)
	case TagLiteral:
		if !literalEqual(n.Literal, v) {
			return nil, fail(path, "expected literal %v", n.Literal)
		}
		return n.Literal, nil
	case TagBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, fail(path, "expected bytes, got %T", v)
		}
		return b, nil
	case TagObject:
		m, ok := AsMap(v)
		if !ok {
			return nil, fail(path, "expected object, got %T", v)
		}
		return validateObject(n, m, path, false)
	case TagArray:
		return validateArray(n, v, path)
	case TagTuple:
		s, ok := AsSlice(v)
		if !ok {
			return nil, fail(path, "expected tuple, got %T", v)
		}
		if len(s) != len(n.Items) {
			return nil, fail(path, "expected tuple of length %d, got %d", len(n.Items), len(s))
		}
		out := make([]any, len(s))
		for i, item := range n.Items {
			res, err := validate(item, s[i], child(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out[i] = res
		}
		return out, nil
	case TagRecord:
		m, ok := AsMap(v)
		if !ok {
			return nil, fail(path, "expected record, got %T", v)
		}
		out := make(map[string]any, len(m))
		for k, val := range m {
			res, err := validate(n.Elem, val, child(path, k))
			if err != nil {
				return nil, err
			}
			if res != nil {
				out[k] = res
			}
		}
		return out, nil
	case TagMap:
		var m map[string]any
		switch mv := v.(type) {
		case types.Assoc:
			m = mv
		default:
			plain, ok := AsMap(v)
			if !ok {
				return nil, fail(path, "expected map, got %T", v)
			}
			m = plain
		}
		out := make(types.Assoc, len(m))
		for k, val := range m {
			res, err := validate(n.Elem, val, child(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = res
		}
		return out, nil
	}
	return nil, fail(path, "unsupported schema node %s", n.Tag)
}

func validateObject(n *Node, m map[string]any, path []string, partial bool) (map[string]any, error) {
	out := make(map[string]any, len(n.Fields))
	for _, f := range n.Fields {
		val, present := m[f.Name]
		if partial && !present {
			continue
		}
		res, err := validate(f.Node, val, child(path, f.Name))
		if err != nil {
			return nil, err
		}
		if res != nil {
			out[f.Name] = res
		}
	}
	return out, nil
}

func validateArray(n *Node, v any, path []string) (any, error) {
	s, ok := AsSlice(v)
	if !ok {
		return nil, fail(path, "expected array, got %T", v)
	}
	if err := checkBounds(path, float64(len(s)), n, "length"); err != nil {
		return nil, err
	}
	out := make([]any, len(s))
	for i, item := range s {
		res, err := validate(n.Elem, item, child(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

func validateNumber(n *Node, v any, path []string) (any, error) {
	f, ok := AsFloat(v)
	if !ok {
		return nil, fail(path, "expected number, got %T", v)
	}
	if math.IsNaN(f) {
		return nil, fail(path, "expected number, got NaN")
	}
	if err := checkBounds(path, f, n, "value"); err != nil {
		return nil, err
	}
	if n.Integer {
		i, ok := AsInt(v)
		if !ok {
			return nil, fail(path, "expected integer, got %v", v)
		}
		return i, nil
	}
	return f, nil
}

func validateUnion(n *Node, v any, path []string) (any, error) {
	options := n.Options
	if n.Tag == TagDiscriminatedUnion {
		if m, ok := AsMap(v); ok {
			if opt := discriminatedBranch(n, m[n.Discriminator]); opt != nil {
				options = []*Node{opt}
			}
		}
	}
	var firstErr error
	for _, opt := range options {
		out, err := validate(opt, v, path)
		if err == nil {
			return out, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if len(options) == 1 && firstErr != nil {
		return nil, firstErr
	}
	if v == nil {
		return nil, fail(path, "required")
	}
	return nil, fail(path, "no union branch matched %T", v)
}

// discriminatedBranch returns the option whose discriminator field is a
// literal (or single-value enum) equal to tag.
func discriminatedBranch(n *Node, tag any) *Node {
	for _, opt := range n.Options {
		leaf := Unwrap(opt)
		if leaf.Tag != TagObject {
			continue
		}
		for _, f := range leaf.Fields {
			if f.Name != n.Discriminator {
				continue
			}
			fl := Unwrap(f.Node)
			switch {
			case fl.Tag == TagLiteral && literalEqual(fl.Literal, tag):
				return opt
			case fl.Tag == TagEnum:
				for _, val := range fl.Values {
					if val == tag {
						return opt
					}
				}
			}
		}
	}
	return nil
}

func validateIntersection(n *Node, v any, path []string) (any, error) {
	var merged map[string]any
	var last any
	for _, opt := range n.Options {
		out, err := validate(opt, v, path)
		if err != nil {
			return nil, err
		}
		if m, ok := AsMap(out); ok {
			if merged == nil {
				merged = make(map[string]any, len(m))
			}
			for k, val := range m {
				merged[k] = val
			}
			continue
		}
		last = out
	}
	if merged != nil {
		return merged, nil
	}
	return last, nil
}

func checkBounds(path []string, got float64, n *Node, what string) error {
	if n.Minimum != nil && got < *n.Minimum {
		return fail(path, "%s must be >= %v", what, *n.Minimum)
	}
	if n.Maximum != nil && got > *n.Maximum {
		return fail(path, "%s must be <= %v", what, *n.Maximum)
	}
	return nil
}

func literalEqual(want, got any) bool {
	if wf, ok := AsFloat(want); ok {
		gf, ok := AsFloat(got)
		return ok && wf == gf
	}
	return want == got
}

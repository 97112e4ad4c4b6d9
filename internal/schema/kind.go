package schema

import (
	"errors"
	"reflect"
)

// Kind is the storage-relevant classification of a schema node.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindString
	KindInteger
	KindReal
	KindBoolean
	KindDate
	KindEnum
	KindBlob
	KindObject
	KindArray
	KindRecord
	KindMap
)

var kindNames = [...]string{
	KindUnknown: "unknown",
	KindString:  "string",
	KindInteger: "integer",
	KindReal:    "real",
	KindBoolean: "boolean",
	KindDate:    "date",
	KindEnum:    "enum",
	KindBlob:    "blob",
	KindObject:  "object",
	KindArray:   "array",
	KindRecord:  "record",
	KindMap:     "map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsNumber reports integer or real.
func (k Kind) IsNumber() bool { return k == KindInteger || k == KindReal }

// IsJSON reports whether values of this kind are stored as JSON text.
func (k Kind) IsJSON() bool {
	return k == KindObject || k == KindArray || k == KindRecord || k == KindMap
}

// maxUnwrapDepth bounds modifier chains; maxUnwrapSteps bounds the total
// work of one Unwrap across union branches.
const (
	maxUnwrapDepth = 64
	maxUnwrapSteps = 1024
)

var errLazyPanic = errors.New("lazy resolver panicked")

// Unwrap strips modifier wrappers and collapses combinators until it reaches
// a leaf node.
//
// Optional, nullable, default, branded, readonly, catch, promise and refine
// unwrap to their inner node. Lazy unwraps to its resolved node (a string
// node if resolution fails). Pipe unwraps to its input side. Union,
// intersection and discriminated union unwrap to one branch chosen by the
// fixed priority boolean > number > string > map > array > object > first.
//
// The priority rule is a heuristic: a union of incompatible shapes is stored
// using the winning branch only, and values of the other branches are
// coerced best-effort.
func Unwrap(n *Node) *Node {
	budget := maxUnwrapSteps
	return unwrap(n, &budget)
}

// unwrap shares one step budget across all branches so that self-referential
// lazy schemas terminate quickly.
func unwrap(n *Node, budget *int) *Node {
	for *budget > 0 {
		*budget--
		if n == nil {
			return String()
		}
		switch {
		case n.Tag == TagLazy:
			n = n.resolveLazy()
		case n.Tag.isModifier():
			n = n.Inner
		case n.Tag == TagUnion, n.Tag == TagIntersection, n.Tag == TagDiscriminatedUnion:
			n = pickBranch(n.Options, budget)
		default:
			return n
		}
	}
	return String()
}

// unwrapModifiers strips single-child wrappers but stops at combinators.
func unwrapModifiers(n *Node) *Node {
	for depth := 0; depth < maxUnwrapDepth; depth++ {
		if n == nil {
			return String()
		}
		switch {
		case n.Tag == TagLazy:
			n = n.resolveLazy()
		case n.Tag.isModifier():
			n = n.Inner
		default:
			return n
		}
	}
	return String()
}

var branchPriority = []func(Kind) bool{
	func(k Kind) bool { return k == KindBoolean },
	Kind.IsNumber,
	func(k Kind) bool { return k == KindString },
	func(k Kind) bool { return k == KindMap },
	func(k Kind) bool { return k == KindArray },
	func(k Kind) bool { return k == KindObject },
}

func pickBranch(options []*Node, budget *int) *Node {
	if len(options) == 0 {
		return String()
	}
	leaves := make([]*Node, len(options))
	kinds := make([]Kind, len(options))
	for i, opt := range options {
		leaves[i] = unwrap(opt, budget)
		kinds[i] = leafKind(leaves[i])
	}
	for _, wants := range branchPriority {
		for i, k := range kinds {
			if wants(k) {
				return leaves[i]
			}
		}
	}
	return leaves[0]
}

// KindOf returns the logical kind of n.
func KindOf(n *Node) Kind {
	return leafKind(Unwrap(n))
}

func leafKind(n *Node) Kind {
	switch n.Tag {
	case TagString:
		return KindString
	case TagNumber:
		if n.Integer {
			return KindInteger
		}
		return KindReal
	case TagBoolean:
		return KindBoolean
	case TagDate:
		return KindDate
	case TagEnum:
		return KindEnum
	case TagLiteral:
		return literalKind(n.Literal)
	case TagBytes:
		return KindBlob
	case TagObject:
		return KindObject
	case TagArray, TagTuple:
		return KindArray
	case TagRecord:
		return KindRecord
	case TagMap:
		return KindMap
	default:
		return KindUnknown
	}
}

func literalKind(v any) Kind {
	switch v.(type) {
	case string:
		return KindEnum
	case bool:
		return KindBoolean
	case float32, float64:
		return KindReal
	case nil:
		return KindUnknown
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInteger
	}
	return KindUnknown
}

// IsNumber reports whether n collapses to an integer or real number.
func IsNumber(n *Node) bool { return KindOf(n).IsNumber() }

// IsDate reports whether n collapses to a date.
func IsDate(n *Node) bool { return KindOf(n) == KindDate }

// IsBoolean reports whether n collapses to a boolean.
func IsBoolean(n *Node) bool { return KindOf(n) == KindBoolean }

// IsString reports whether n collapses to a plain string.
func IsString(n *Node) bool { return KindOf(n) == KindString }

// IsArray reports whether n collapses to an array or tuple.
func IsArray(n *Node) bool { return KindOf(n) == KindArray }

// IsObject reports whether n collapses to an object.
func IsObject(n *Node) bool { return KindOf(n) == KindObject }

// IsMap reports whether n collapses to an associative map.
func IsMap(n *Node) bool { return KindOf(n) == KindMap }

// IsEnum reports whether n collapses to an enum or string literal.
func IsEnum(n *Node) bool { return KindOf(n) == KindEnum }

// IsRecord reports whether n collapses to a record.
func IsRecord(n *Node) bool { return KindOf(n) == KindRecord }

// IsJSON reports whether values of n are stored as JSON text.
func IsJSON(n *Node) bool { return KindOf(n).IsJSON() }

// IsUnion reports whether n, after stripping modifiers, is a union or
// discriminated union.
func IsUnion(n *Node) bool {
	t := unwrapModifiers(n).Tag
	return t == TagUnion || t == TagDiscriminatedUnion
}

// IsIntersection reports whether n, after stripping modifiers, is an
// intersection.
func IsIntersection(n *Node) bool {
	return unwrapModifiers(n).Tag == TagIntersection
}

// Package schema describes the structural shape of a table's rows.
//
// A schema is a tree of *Node values. Each node carries a closed Tag and the
// payload that tag needs. Leaf tags describe values (string, number, ...),
// wrapper tags modify an inner node (optional, default, refine, ...), and
// combinator tags join several nodes (union, intersection). The
// introspector in kind.go collapses any node to the logical Kind that decides
// its storage column and coercion rules.
package schema

import "sync"

// Tag identifies the variant of a Node.
type Tag uint8

// Leaf tags.
const (
	TagString Tag = iota + 1
	TagNumber
	TagBoolean
	TagDate
	TagEnum
	TagLiteral
	TagBytes
	TagObject
	TagArray
	TagTuple
	TagRecord
	TagMap
	TagAny
)

// Wrapper tags. Inner holds the wrapped node (the input side for TagPipe).
const (
	TagOptional Tag = iota + 32
	TagNullable
	TagDefault
	TagRefine
	TagLazy
	TagPipe
	TagBranded
	TagReadonly
	TagCatch
	TagPromise
)

// Combinator tags. Options holds the branches.
const (
	TagUnion Tag = iota + 64
	TagIntersection
	TagDiscriminatedUnion
)

var tagNames = map[Tag]string{
	TagString:             "string",
	TagNumber:             "number",
	TagBoolean:            "boolean",
	TagDate:               "date",
	TagEnum:               "enum",
	TagLiteral:            "literal",
	TagBytes:              "bytes",
	TagObject:             "object",
	TagArray:              "array",
	TagTuple:              "tuple",
	TagRecord:             "record",
	TagMap:                "map",
	TagAny:                "any",
	TagOptional:           "optional",
	TagNullable:           "nullable",
	TagDefault:            "default",
	TagRefine:             "refine",
	TagLazy:               "lazy",
	TagPipe:               "pipe",
	TagBranded:            "branded",
	TagReadonly:           "readonly",
	TagCatch:              "catch",
	TagPromise:            "promise",
	TagUnion:              "union",
	TagIntersection:       "intersection",
	TagDiscriminatedUnion: "discriminated_union",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return "unknown"
}

// isModifier reports whether t wraps exactly one inner node.
func (t Tag) isModifier() bool {
	return t >= TagOptional && t < TagUnion
}

// Field is one named member of an object node.
type Field struct {
	Name string
	Node *Node
}

// Node is one schema element. Only the payload fields relevant to Tag are set.
type Node struct {
	Tag Tag

	Inner   *Node   // wrappers; pipe input
	Out     *Node   // pipe output
	Fields  []Field // object, in declaration order
	Elem    *Node   // array element; record and map value
	Items   []*Node // tuple
	Options []*Node // union, intersection, discriminated union

	Discriminator string
	Values        []string // enum
	Literal       any

	Integer bool     // number restricted to integers
	Minimum *float64 // string/array length or number value
	Maximum *float64

	DefaultFn  func() any
	CatchValue any
	BrandName  string
	Check      func(any) bool
	Message    string
	Resolve    func() (*Node, error)

	lazyOnce sync.Once
	lazyNode *Node
}

// String returns a string node.
func String() *Node { return &Node{Tag: TagString} }

// Number returns a real number node.
func Number() *Node { return &Node{Tag: TagNumber} }

// Int returns an integer number node.
func Int() *Node { return &Node{Tag: TagNumber, Integer: true} }

// Boolean returns a boolean node.
func Boolean() *Node { return &Node{Tag: TagBoolean} }

// Date returns a date node. Dates are stored as epoch milliseconds.
func Date() *Node { return &Node{Tag: TagDate} }

// Enum returns a node accepting exactly one of values.
func Enum(values ...string) *Node { return &Node{Tag: TagEnum, Values: values} }

// Literal returns a node accepting exactly v.
func Literal(v any) *Node { return &Node{Tag: TagLiteral, Literal: v} }

// Bytes returns a binary node stored as base64 text.
func Bytes() *Node { return &Node{Tag: TagBytes} }

// Any returns a node accepting every value.
func Any() *Node { return &Node{Tag: TagAny} }

// Object returns an object node with the given fields.
func Object(fields ...Field) *Node { return &Node{Tag: TagObject, Fields: fields} }

// F is shorthand for a Field.
func F(name string, n *Node) Field { return Field{Name: name, Node: n} }

// Array returns an array node.
func Array(elem *Node) *Node { return &Node{Tag: TagArray, Elem: elem} }

// Tuple returns a fixed-length array node.
func Tuple(items ...*Node) *Node { return &Node{Tag: TagTuple, Items: items} }

// Record returns a string-keyed dictionary node.
func Record(value *Node) *Node { return &Node{Tag: TagRecord, Elem: value} }

// Map returns an associative-map node. In memory its values are types.Assoc.
func Map(value *Node) *Node { return &Node{Tag: TagMap, Elem: value} }

// Lazy defers construction of a node until first use, which allows
// recursive schemas. A resolver error makes the node behave as a string.
func Lazy(resolve func() (*Node, error)) *Node { return &Node{Tag: TagLazy, Resolve: resolve} }

// Pipe validates against in, then feeds the result to out. Storage follows in.
func Pipe(in, out *Node) *Node { return &Node{Tag: TagPipe, Inner: in, Out: out} }

// Promise wraps n.
func Promise(n *Node) *Node { return &Node{Tag: TagPromise, Inner: n} }

// Union accepts a value matching any option.
func Union(options ...*Node) *Node { return &Node{Tag: TagUnion, Options: options} }

// Intersection requires a value to match every option.
func Intersection(options ...*Node) *Node { return &Node{Tag: TagIntersection, Options: options} }

// DiscriminatedUnion is a union of objects selected by the discriminator field.
func DiscriminatedUnion(discriminator string, options ...*Node) *Node {
	return &Node{Tag: TagDiscriminatedUnion, Discriminator: discriminator, Options: options}
}

// Optional allows the value to be absent.
func (n *Node) Optional() *Node { return &Node{Tag: TagOptional, Inner: n} }

// Nullable allows the value to be null.
func (n *Node) Nullable() *Node { return &Node{Tag: TagNullable, Inner: n} }

// Default supplies v when the value is absent.
func (n *Node) Default(v any) *Node {
	return &Node{Tag: TagDefault, Inner: n, DefaultFn: func() any { return v }}
}

// DefaultFunc supplies fn() when the value is absent.
func (n *Node) DefaultFunc(fn func() any) *Node {
	return &Node{Tag: TagDefault, Inner: n, DefaultFn: fn}
}

// Refine adds a predicate; msg is reported when it returns false.
func (n *Node) Refine(check func(any) bool, msg string) *Node {
	return &Node{Tag: TagRefine, Inner: n, Check: check, Message: msg}
}

// Brand tags the node with a nominal name. It does not change validation.
func (n *Node) Brand(name string) *Node { return &Node{Tag: TagBranded, Inner: n, BrandName: name} }

// Readonly marks the node read-only. It does not change validation.
func (n *Node) Readonly() *Node { return &Node{Tag: TagReadonly, Inner: n} }

// Catch substitutes v whenever validation of n fails.
func (n *Node) Catch(v any) *Node { return &Node{Tag: TagCatch, Inner: n, CatchValue: v} }

// Min sets a lower bound (length for strings and arrays, value for numbers).
// It mutates and returns n.
func (n *Node) Min(v float64) *Node {
	n.Minimum = &v
	return n
}

// Max sets an upper bound. It mutates and returns n.
func (n *Node) Max(v float64) *Node {
	n.Maximum = &v
	return n
}

// resolveLazy returns the node produced by a lazy resolver, computing it once.
func (n *Node) resolveLazy() *Node {
	n.lazyOnce.Do(func() {
		if n.Resolve == nil {
			n.lazyNode = String()
			return
		}
		resolved, err := safeResolve(n.Resolve)
		if err != nil || resolved == nil {
			resolved = String()
		}
		n.lazyNode = resolved
	})
	return n.lazyNode
}

func safeResolve(fn func() (*Node, error)) (n *Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = nil, errLazyPanic
		}
	}()
	return fn()
}

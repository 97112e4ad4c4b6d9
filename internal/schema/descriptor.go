package schema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Desc is a compiled node: its logical kind plus compiled children. Children
// are compiled on first access so recursive (lazy) schemas stay finite.
type Desc struct {
	Kind Kind
	Node *Node // as declared, wrappers included
	Leaf *Node // after Unwrap

	once   sync.Once
	fields []FieldDesc
	byName map[string]*Desc
	elem   *Desc
	items  []*Desc
}

// FieldDesc is one compiled object member.
type FieldDesc struct {
	Name string
	Desc *Desc
}

// Describe compiles n.
func Describe(n *Node) *Desc {
	leaf := Unwrap(n)
	return &Desc{Kind: leafKind(leaf), Node: n, Leaf: leaf}
}

func (d *Desc) children() {
	d.once.Do(func() {
		switch d.Leaf.Tag {
		case TagObject:
			d.byName = make(map[string]*Desc, len(d.Leaf.Fields))
			for _, f := range d.Leaf.Fields {
				fd := Describe(f.Node)
				d.fields = append(d.fields, FieldDesc{Name: f.Name, Desc: fd})
				d.byName[f.Name] = fd
			}
		case TagArray, TagRecord, TagMap:
			if d.Leaf.Elem != nil {
				d.elem = Describe(d.Leaf.Elem)
			}
		case TagTuple:
			for _, item := range d.Leaf.Items {
				d.items = append(d.items, Describe(item))
			}
		}
	})
}

// Fields returns the compiled members of an object descriptor.
func (d *Desc) Fields() []FieldDesc {
	d.children()
	return d.fields
}

// Field returns the compiled member name, or nil.
func (d *Desc) Field(name string) *Desc {
	d.children()
	return d.byName[name]
}

// Elem returns the compiled element of an array, record or map, or nil.
func (d *Desc) Elem() *Desc {
	d.children()
	return d.elem
}

// Item returns the compiled i-th tuple member. For plain arrays it returns
// the element descriptor. It returns nil when there is no such member.
func (d *Desc) Item(i int) *Desc {
	d.children()
	if d.Leaf.Tag == TagArray {
		return d.elem
	}
	if i < 0 || i >= len(d.items) {
		return nil
	}
	return d.items[i]
}

// Column is one schema-derived column of a table.
type Column struct {
	Name string
	Kind Kind
	Desc *Desc
}

// Descriptor is the compiled schema of a table, built once at registration.
type Descriptor struct {
	Root    *Node
	Desc    *Desc
	Columns []Column

	index map[string]int
}

// Compile builds the table descriptor for root, which must collapse to an
// object whose field names are usable as column identifiers.
func Compile(root *Node) (*Descriptor, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil schema", types.ErrInvalidSchema)
	}
	d := Describe(root)
	if d.Kind != KindObject {
		return nil, fmt.Errorf("%w: root must be an object, got %s", types.ErrInvalidSchema, d.Kind)
	}
	desc := &Descriptor{Root: root, Desc: d, index: make(map[string]int)}
	for _, f := range d.Fields() {
		if err := CheckIdentifier(f.Name); err != nil {
			return nil, err
		}
		if _, dup := desc.index[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", types.ErrInvalidSchema, f.Name)
		}
		desc.index[f.Name] = len(desc.Columns)
		desc.Columns = append(desc.Columns, Column{Name: f.Name, Kind: f.Desc.Kind, Desc: f.Desc})
	}
	return desc, nil
}

// Column returns the schema column name.
func (d *Descriptor) Column(name string) (Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return Column{}, false
	}
	return d.Columns[i], true
}

// CheckIdentifier rejects names that cannot be used as quoted SQL identifiers.
func CheckIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty identifier", types.ErrInvalidSchema)
	}
	if strings.ContainsAny(name, "\"\x00") {
		return fmt.Errorf("%w: identifier %q contains a quote or NUL", types.ErrInvalidSchema, name)
	}
	return nil
}

package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/shelf/pkg/types"
)

func TestCompileColumns(t *testing.T) {
	d, err := Compile(Object(
		F("name", String()),
		F("age", Int().Optional()),
		F("tags", Array(String())),
		F("meta", Map(Int())),
	))
	require.NoError(t, err)

	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"name", "age", "tags", "meta"}, names)

	col, ok := d.Column("meta")
	require.True(t, ok)
	assert.Equal(t, KindMap, col.Kind)
	assert.Equal(t, KindInteger, col.Desc.Elem().Kind)

	_, ok = d.Column("missing")
	assert.False(t, ok)
}

func TestCompileRejectsBadSchemas(t *testing.T) {
	tests := []struct {
		name string
		root *Node
	}{
		{"nil", nil},
		{"not an object", String()},
		{"quoted field", Object(F(`a"b`, String()))},
		{"empty field", Object(F("", String()))},
		{"duplicate field", Object(F("a", String()), F("a", Int()))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.root)
			assert.ErrorIs(t, err, types.ErrInvalidSchema)
		})
	}
}

func TestDescRecursiveSchema(t *testing.T) {
	var tree *Node
	tree = Object(
		F("label", String()),
		F("children", Array(Lazy(func() (*Node, error) { return tree, nil }))),
	)
	d, err := Compile(tree)
	require.NoError(t, err)

	children := d.Desc.Field("children")
	require.NotNil(t, children)
	grand := children.Elem().Field("children")
	require.NotNil(t, grand)
	assert.Equal(t, KindArray, grand.Kind)
}

func TestDescTupleItems(t *testing.T) {
	d := Describe(Tuple(String(), Date()))
	assert.Equal(t, KindString, d.Item(0).Kind)
	assert.Equal(t, KindDate, d.Item(1).Kind)
	assert.Nil(t, d.Item(2))

	arr := Describe(Array(Int()))
	assert.Equal(t, KindInteger, arr.Item(7).Kind)
}

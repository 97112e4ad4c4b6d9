package schema

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Fingerprint returns a blake3 digest of the structural shape of n. Two
// schemas with the same fingerprint produce the same columns and coercions.
// Lazy nodes are not expanded; refinement predicates and default values do
// not contribute.
func Fingerprint(n *Node) string {
	var b strings.Builder
	writeShape(&b, n)
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeShape(b *strings.Builder, n *Node) {
	if n == nil {
		b.WriteString("nil")
		return
	}
	b.WriteString(n.Tag.String())
	switch n.Tag {
	case TagNumber:
		if n.Integer {
			b.WriteString(":int")
		}
	case TagEnum:
		values := append([]string(nil), n.Values...)
		sort.Strings(values)
		fmt.Fprintf(b, "%q", values)
	case TagLiteral:
		fmt.Fprintf(b, "(%T:%v)", n.Literal, n.Literal)
	case TagBranded:
		fmt.Fprintf(b, "<%s>", n.BrandName)
	case TagDiscriminatedUnion:
		fmt.Fprintf(b, "<%s>", n.Discriminator)
	case TagLazy:
		return
	}
	if n.Minimum != nil {
		fmt.Fprintf(b, ">=%v", *n.Minimum)
	}
	if n.Maximum != nil {
		fmt.Fprintf(b, "<=%v", *n.Maximum)
	}
	if len(n.Fields) > 0 {
		b.WriteByte('{')
		for _, f := range n.Fields {
			fmt.Fprintf(b, "%q:", f.Name)
			writeShape(b, f.Node)
			b.WriteByte(',')
		}
		b.WriteByte('}')
	}
	for _, sub := range []*Node{n.Inner, n.Out, n.Elem} {
		if sub != nil {
			b.WriteByte('(')
			writeShape(b, sub)
			b.WriteByte(')')
		}
	}
	if len(n.Items) > 0 || len(n.Options) > 0 {
		b.WriteByte('[')
		for _, sub := range append(append([]*Node(nil), n.Items...), n.Options...) {
			writeShape(b, sub)
			b.WriteByte('|')
		}
		b.WriteByte(']')
	}
}

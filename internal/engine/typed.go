package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/mesh-intelligence/shelf/pkg/types"
)

// Typed maps a Go struct type onto a registered table. Field names come from
// json tags; tag optional fields with omitempty so an unset field is absent
// rather than null.
type Typed[T any] struct {
	t *Table
}

// NewTyped wraps t for struct type T.
func NewTyped[T any](t *Table) *Typed[T] {
	return &Typed[T]{t: t}
}

// Table returns the untyped handle.
func (x *Typed[T]) Table() *Table { return x.t }

// Insert stores v and returns it as stored, auto-fields included.
func (x *Typed[T]) Insert(ctx context.Context, v T) (T, error) {
	var zero T
	row, err := EncodeRow(v)
	if err != nil {
		return zero, err
	}
	stored, err := x.t.Insert(ctx, row)
	if err != nil {
		return zero, err
	}
	return DecodeRow[T](stored)
}

// Upsert stores v, replacing the row with the same conflict value.
func (x *Typed[T]) Upsert(ctx context.Context, v T, conflictField string) (T, error) {
	var zero T
	row, err := EncodeRow(v)
	if err != nil {
		return zero, err
	}
	stored, err := x.t.Upsert(ctx, row, conflictField)
	if err != nil {
		return zero, err
	}
	return DecodeRow[T](stored)
}

// Get runs a scoped query built on the table and decodes every row.
func (x *Typed[T]) Get(ctx context.Context, q Query) ([]T, error) {
	rows, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}
	return decodeRows[T](rows)
}

// Select runs q without the ownership filter and decodes every row.
func (x *Typed[T]) Select(ctx context.Context, q types.Query) ([]T, error) {
	rows, err := x.t.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	return decodeRows[T](rows)
}

func decodeRows[T any](rows []types.Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		v, err := DecodeRow[T](r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// EncodeRow turns a struct into a row through its JSON form. Numbers stay
// json.Number so the coercion pipeline can type them against the schema.
func EncodeRow(v any) (types.Row, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var row types.Row
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	return row, nil
}

// DecodeRow fills a T from a logical row.
func DecodeRow[T any](row types.Row) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			assocToMap,
		),
	})
	if err != nil {
		return out, fmt.Errorf("decode row: %w", err)
	}
	if err := dec.Decode(map[string]any(row)); err != nil {
		return out, fmt.Errorf("decode row: %w", err)
	}
	return out, nil
}

var assocType = reflect.TypeOf(types.Assoc{})

// assocToMap presents associative-map values as plain maps.
func assocToMap(from, _ reflect.Type, data any) (any, error) {
	if from == assocType {
		return map[string]any(data.(types.Assoc)), nil
	}
	return data, nil
}

package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/shelf/internal/schema"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

type address struct {
	City string `json:"city"`
	Zip  string `json:"zip,omitempty"`
}

type customer struct {
	ID        int64          `json:"id,omitempty"`
	CreatedAt int64          `json:"created_at,omitempty"`
	Email     string         `json:"email"`
	Name      string         `json:"name"`
	Score     float64        `json:"score"`
	VIP       bool           `json:"vip"`
	Since     time.Time      `json:"since"`
	Tags      []string       `json:"tags,omitempty"`
	Address   *address       `json:"address,omitempty"`
	Prefs     map[string]any `json:"prefs,omitempty"`
}

func registerCustomers(t *testing.T, e *Engine) *Typed[customer] {
	t.Helper()
	tbl, err := e.RegisterTable(context.Background(), "customers", schema.Object(
		schema.F("email", schema.String()),
		schema.F("name", schema.String()),
		schema.F("score", schema.Number()),
		schema.F("vip", schema.Boolean()),
		schema.F("since", schema.Date()),
		schema.F("tags", schema.Array(schema.String()).Optional()),
		schema.F("address", schema.Object(
			schema.F("city", schema.String()),
			schema.F("zip", schema.String().Optional()),
		).Optional()),
		schema.F("prefs", schema.Map(schema.Any()).Optional()),
	), types.TableOptions{
		AutoFields:    types.AutoFields{ID: true, Timestamps: true},
		ConflictField: "email",
	})
	require.NoError(t, err)
	return NewTyped[customer](tbl)
}

func TestTypedRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	customers := registerCustomers(t, e)
	ctx := context.Background()

	since := time.Date(2020, 2, 29, 8, 0, 0, 0, time.UTC)
	in := customer{
		Email:   "grace@example.com",
		Name:    "Grace",
		Score:   9.5,
		VIP:     true,
		Since:   since,
		Tags:    []string{"navy", "cobol"},
		Address: &address{City: "Arlington"},
		Prefs:   map[string]any{"theme": "dark"},
	}

	stored, err := customers.Insert(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ID)
	assert.Equal(t, fixedNow.UnixMilli(), stored.CreatedAt)

	want := in
	want.ID = stored.ID
	want.CreatedAt = stored.CreatedAt
	assert.Equal(t, want, stored)

	got, err := customers.Get(ctx, customers.Table().Query().Where("vip", "=", true))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want, got[0])
}

func TestTypedUpsertAndSelect(t *testing.T) {
	e := newTestEngine(t)
	customers := registerCustomers(t, e)
	ctx := context.Background()

	base := customer{Email: "linus@example.com", Name: "Linus", Score: 1, Since: fixedNow}
	_, err := customers.Upsert(ctx, base, "")
	require.NoError(t, err)

	base.Score = 2
	updated, err := customers.Upsert(ctx, base, "")
	require.NoError(t, err)
	assert.Equal(t, 2.0, updated.Score)
	assert.Equal(t, int64(1), updated.ID)

	all, err := customers.Select(ctx, types.Query{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].Address)
	assert.Empty(t, all[0].Tags)
}

func TestEncodeRowKeepsNumbersUntyped(t *testing.T) {
	row, err := EncodeRow(struct {
		N int    `json:"n"`
		S string `json:"s"`
	}{N: 7, S: "x"})
	require.NoError(t, err)
	assert.Equal(t, json.Number("7"), row["n"])
	assert.Equal(t, "x", row["s"])
}

func TestDecodeRowAssoc(t *testing.T) {
	type withMap struct {
		Prefs map[string]any `json:"prefs"`
	}
	got, err := DecodeRow[withMap](types.Row{"prefs": types.Assoc{"a": int64(1)}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1)}, got.Prefs)
}

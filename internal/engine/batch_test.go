package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/shelf/pkg/types"
)

func registerNotes(t *testing.T, e *Engine) *Table {
	t.Helper()
	tbl, err := e.RegisterTable(context.Background(), "notes", notesSchema(),
		types.TableOptions{AutoFields: types.AutoFields{ID: true}})
	require.NoError(t, err)
	return tbl
}

func TestMultiTableTransaction(t *testing.T) {
	e := newTestEngine(t, WithIDGenerator(func() string { return "batch-1" }))
	users := registerUsers(t, e)
	notes := registerNotes(t, e)
	ctx := context.Background()

	_, err := notes.Insert(ctx, types.Row{"title": "stale"})
	require.NoError(t, err)
	_, err = users.Insert(ctx, types.Row{"email": "old@example.com", "name": "Old"})
	require.NoError(t, err)

	res, err := e.MultiTableTransaction(ctx, []BatchOp{
		{Kind: BatchInsert, Table: "users", Data: types.Row{"email": "new@example.com", "name": "New"}},
		{Kind: BatchInsert, Table: "notes", Data: types.Row{"title": "welcome"}},
		{Kind: BatchUpdate, Table: "users", ID: 1, Data: types.Row{"name": "Renamed"}},
		{Kind: BatchUpsert, Table: "users", Data: types.Row{"email": "new@example.com", "name": "Newer"}},
		{Kind: BatchDelete, Table: "notes", Where: &types.Condition{Field: "title", Op: "=", Value: "stale"}},
		{Kind: BatchSQL, Ops: []types.Op{{SQL: `UPDATE "notes" SET "body" = ? WHERE "title" = ?`, Params: []any{"hello", "welcome"}}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "batch-1", res.BatchID)
	require.Len(t, res.Entries, 6)
	for i, entry := range res.Entries {
		assert.Equal(t, i, entry.Index)
	}
	assert.Equal(t, int64(2), res.Entries[0].Row[types.ColID])
	assert.Equal(t, "Renamed", res.Entries[2].Row["name"])
	upserted := res.Entries[3].Row
	assert.Equal(t, "Newer", upserted["name"])
	assert.Equal(t, true, upserted["active"], "upsert entries carry the validated row with defaults")
	assert.Contains(t, upserted, types.ColID)
	assert.Contains(t, upserted, types.ColCreatedAt)
	assert.Equal(t, int64(1), res.Entries[4].Affected)
	assert.Equal(t, int64(1), res.Entries[5].Affected)

	all, err := users.Select(ctx, types.Query{OrderBy: "id"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Renamed", all[0]["name"])
	assert.Equal(t, "Newer", all[1]["name"])

	left, err := notes.Select(ctx, types.Query{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "welcome", left[0]["title"])
	assert.Equal(t, "hello", left[0]["body"])
}

func TestMultiTableTransactionMissingFieldWritesNothing(t *testing.T) {
	e := newTestEngine(t)
	registerUsers(t, e)
	notes := registerNotes(t, e)
	ctx := context.Background()

	tests := []struct {
		name  string
		entry BatchOp
		field string
	}{
		{"insert without table", BatchOp{Kind: BatchInsert, Data: types.Row{"title": "x"}}, "table"},
		{"insert without data", BatchOp{Kind: BatchInsert, Table: "notes"}, "data"},
		{"update without id", BatchOp{Kind: BatchUpdate, Table: "users", Data: types.Row{"name": "x"}}, "id"},
		{"update without data", BatchOp{Kind: BatchUpdate, Table: "users", ID: 1}, "data"},
		{"upsert without data", BatchOp{Kind: BatchUpsert, Table: "users"}, "data"},
		{"delete without target", BatchOp{Kind: BatchDelete, Table: "notes"}, "id or where"},
		{"sql without ops", BatchOp{Kind: BatchSQL}, "ops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.MultiTableTransaction(ctx, []BatchOp{
				{Kind: BatchInsert, Table: "notes", Data: types.Row{"title": "valid"}},
				tt.entry,
			})
			require.ErrorIs(t, err, types.ErrMissingRequiredField)

			var merr *types.MissingRequiredFieldError
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, 1, merr.Index)
			assert.Equal(t, string(tt.entry.Kind), merr.Kind)
			assert.Equal(t, tt.field, merr.Field)

			rows, err := notes.Select(ctx, types.Query{})
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestMultiTableTransactionRollsBackOnStorageFailure(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)
	notes := registerNotes(t, e)
	ctx := context.Background()

	_, err := users.Insert(ctx, types.Row{"email": "taken@example.com", "name": "Taken"})
	require.NoError(t, err)

	_, err = e.MultiTableTransaction(ctx, []BatchOp{
		{Kind: BatchInsert, Table: "notes", Data: types.Row{"title": "orphan"}},
		{Kind: BatchInsert, Table: "users", Data: types.Row{"email": "taken@example.com", "name": "Again"}},
	})
	require.ErrorIs(t, err, types.ErrStorageExecution)

	rows, err := notes.Select(ctx, types.Query{})
	require.NoError(t, err)
	assert.Empty(t, rows, "the note from the same batch is rolled back")
}

func TestMultiTableTransactionErrors(t *testing.T) {
	e := newTestEngine(t)
	registerNotes(t, e)
	ctx := context.Background()

	_, err := e.MultiTableTransaction(ctx, nil)
	assert.ErrorIs(t, err, types.ErrInvalidOperation)

	_, err = e.MultiTableTransaction(ctx, []BatchOp{{Kind: "merge", Table: "notes"}})
	assert.ErrorIs(t, err, types.ErrInvalidOperation)

	_, err = e.MultiTableTransaction(ctx, []BatchOp{{Kind: BatchInsert, Table: "ghost", Data: types.Row{}}})
	assert.ErrorIs(t, err, types.ErrUnregisteredTable)

	_, err = e.MultiTableTransaction(ctx, []BatchOp{{Kind: BatchInsert, Table: "notes", Data: types.Row{}}})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestExecTransaction(t *testing.T) {
	e := newTestEngine(t)
	notes := registerNotes(t, e)
	ctx := context.Background()

	_, err := e.ExecTransaction(ctx, nil)
	require.ErrorIs(t, err, types.ErrInvalidOperation)

	cursors, err := e.ExecTransaction(ctx, []types.Op{
		{SQL: `INSERT INTO "notes" ("id", "title") VALUES (?, ?)`, Params: []any{10, "a"}},
		{SQL: `INSERT INTO "notes" ("id", "title") VALUES (?, ?)`, Params: []any{11, "b"}},
	})
	require.NoError(t, err)
	require.Len(t, cursors, 2)
	assert.Equal(t, int64(1), cursors[1].RowsAffected())

	bad := []types.Op{
		{SQL: `INSERT INTO "notes" ("id", "title") VALUES (?, ?)`, Params: []any{12, "c"}},
		{SQL: `INSERT INTO "nowhere" ("x") VALUES (?)`, Params: []any{1}},
	}
	_, err = e.ExecTransaction(ctx, bad)
	require.ErrorIs(t, err, types.ErrStorageExecution)
	var serr *types.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, bad[1].SQL, serr.SQL)
	assert.Equal(t, []any{1}, serr.Params)

	rows, err := notes.Select(ctx, types.Query{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestExecSelect(t *testing.T) {
	e := newTestEngine(t)
	notes := registerNotes(t, e)
	ctx := context.Background()

	_, err := notes.Insert(ctx, types.Row{"title": "a", "body": "x"})
	require.NoError(t, err)

	for _, q := range []string{`DELETE FROM "notes"`, `  update "notes" set "body" = 'y'`, "", "PRAGMA user_version"} {
		_, err := e.ExecSelect(ctx, q, nil, "")
		assert.ErrorIs(t, err, types.ErrInvalidOperation, q)
	}

	raw, err := e.ExecSelect(ctx, `  select count(*) as n from "notes"`, nil, "")
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, int64(1), raw[0]["n"])

	rows, err := e.ExecSelect(ctx, `SELECT * FROM "notes" WHERE "title" = ?`, []any{"a"}, "notes")
	require.NoError(t, err)
	assert.Equal(t, []types.Row{{"id": int64(1), "title": "a", "body": "x"}}, rows)
}

package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/shelf/internal/schema"
	"github.com/mesh-intelligence/shelf/pkg/types"
)

func TestInsertRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)
	ctx := context.Background()

	joined := time.Date(2023, 9, 1, 12, 30, 0, 0, time.UTC)
	inserted, err := users.Insert(ctx, types.Row{
		"email":  "ada@example.com",
		"name":   "Ada",
		"age":    "36",
		"active": "false",
		"tags":   []string{"math", "engines"},
		"profile": map[string]any{
			"bio":    "first programmer",
			"joined": joined.Format(time.RFC3339),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(36), inserted["age"])
	assert.Equal(t, false, inserted["active"])
	assert.Equal(t, []any{"math", "engines"}, inserted["tags"])
	assert.Equal(t, map[string]any{"bio": "first programmer", "joined": joined}, inserted["profile"])

	got, err := users.Select(ctx, types.Query{Where: []types.Condition{types.Eq("email", "ada@example.com")}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inserted, got[0])
}

func TestInsertAppliesDefaultsAndDropsUnknownFields(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)

	row, err := users.Insert(context.Background(), types.Row{"email": "b@example.com", "name": "B", "nickname": "bee"})
	require.NoError(t, err)
	assert.Equal(t, true, row["active"])
	assert.NotContains(t, row, "nickname")
	assert.NotContains(t, row, "age")
}

func TestInsertAutoFields(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)

	row, err := users.Insert(context.Background(), types.Row{
		"email":      "c@example.com",
		"name":       "C",
		"id":         999,
		"created_at": 1,
	})
	require.NoError(t, err)

	id, ok := row[types.ColID].(int64)
	require.True(t, ok)
	assert.Positive(t, id)
	assert.NotEqual(t, int64(999), id, "caller-supplied auto-fields are ignored")
	assert.Equal(t, fixedNow.UnixMilli(), row[types.ColCreatedAt])
	assert.Equal(t, row[types.ColCreatedAt], row[types.ColUpdatedAt])
}

func TestInsertIDsAreMonotonic(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		row, err := users.Insert(ctx, types.Row{"email": string(rune('a'+i)) + "@example.com", "name": "n"})
		require.NoError(t, err)
		assert.Equal(t, int64(i), row[types.ColID])
	}
	n, err := e.NextID(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestIDsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.db")
	ctx := context.Background()

	first, err := New(ctx, openBackend(t, path), WithClock(fixedClock))
	require.NoError(t, err)
	users := registerUsers(t, first)
	_, err = users.Insert(ctx, types.Row{"email": "a@example.com", "name": "A"})
	require.NoError(t, err)
	_, err = users.Insert(ctx, types.Row{"email": "b@example.com", "name": "B"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newEngineAt(t, path)
	users = registerUsers(t, second)
	row, err := users.Insert(ctx, types.Row{"email": "c@example.com", "name": "C"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), row[types.ColID])
}

func TestInsertValidationFailureWritesNothing(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)
	ctx := context.Background()

	_, err := users.Insert(ctx, types.Row{"email": "x@example.com", "name": "X", "age": "old"})
	require.ErrorIs(t, err, types.ErrValidation)

	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "users", verr.Table)
	assert.Equal(t, "age", verr.Path)

	rows, err := users.Select(ctx, types.Query{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestInsertMissingRequiredField(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)

	_, err := users.Insert(context.Background(), types.Row{"name": "no email"})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestInsertUniqueViolationIsStorageError(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)
	ctx := context.Background()

	_, err := users.Insert(ctx, types.Row{"email": "dup@example.com", "name": "one"})
	require.NoError(t, err)
	_, err = users.Insert(ctx, types.Row{"email": "dup@example.com", "name": "two"})
	require.ErrorIs(t, err, types.ErrStorageExecution)

	var serr *types.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.SQL, `INSERT INTO "users"`)
}

func TestUpdate(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)
	ctx := context.Background()

	row, err := users.Insert(ctx, types.Row{"email": "u@example.com", "name": "Before", "age": 20})
	require.NoError(t, err)
	id := row[types.ColID].(int64)

	updated, err := users.Update(ctx, id, types.Row{"name": "After"})
	require.NoError(t, err)
	assert.Equal(t, types.Row{"name": "After", "id": id, "updated_at": fixedNow.UnixMilli()}, updated,
		"partial updates apply no defaults")

	got, err := users.Select(ctx, types.Query{Where: []types.Condition{types.Eq("id", id)}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "After", got[0]["name"])
	assert.Equal(t, int64(20), got[0]["age"])
	assert.Equal(t, "u@example.com", got[0]["email"])
}

func TestUpdateErrors(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)
	ctx := context.Background()

	_, err := users.Update(ctx, 0, types.Row{"name": "x"})
	assert.ErrorIs(t, err, types.ErrMissingID)

	_, err = users.Update(ctx, 1, types.Row{"age": "many"})
	assert.ErrorIs(t, err, types.ErrValidation)

	notes, err := e.RegisterTable(ctx, "notes", notesSchema(), types.TableOptions{AutoFields: types.AutoFields{ID: true}})
	require.NoError(t, err)
	_, err = notes.Update(ctx, 1, types.Row{"unknown": 1})
	assert.ErrorIs(t, err, types.ErrInvalidOperation, "nothing left to set")
}

func TestUpsertReplacesOnConflict(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)
	ctx := context.Background()

	first, err := users.Upsert(ctx, types.Row{"email": "same@example.com", "name": "A"}, "email")
	require.NoError(t, err)
	second, err := users.Upsert(ctx, types.Row{"email": "same@example.com", "name": "B"}, "")
	require.NoError(t, err)

	assert.Equal(t, "B", second["name"])
	assert.Equal(t, first[types.ColID], second[types.ColID], "the existing row is updated in place")

	rows, err := users.Select(ctx, types.Query{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "B", rows[0]["name"])
}

func TestUpsertRequiresConflictField(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	notes, err := e.RegisterTable(ctx, "notes", notesSchema(), types.TableOptions{})
	require.NoError(t, err)

	_, err = notes.Upsert(ctx, types.Row{"title": "t"}, "")
	assert.ErrorIs(t, err, types.ErrMissingConflictField)

	users := registerUsers(t, e)
	_, err = users.Upsert(ctx, types.Row{"name": "no key"}, "")
	assert.ErrorIs(t, err, types.ErrValidation, "full validation runs before the conflict value is checked")
}

func TestDeleteRequiresTarget(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)
	ctx := context.Background()

	_, err := users.Insert(ctx, types.Row{"email": "keep@example.com", "name": "Keep"})
	require.NoError(t, err)

	_, err = e.Delete(ctx, "users", 0, nil)
	require.ErrorIs(t, err, types.ErrMissingWhereClause)
	_, err = e.Delete(ctx, "users", 0, &types.Condition{})
	require.ErrorIs(t, err, types.ErrMissingWhereClause)

	rows, err := users.Select(ctx, types.Query{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDelete(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)
	ctx := context.Background()

	for _, email := range []string{"a@x.io", "b@x.io", "c@y.io"} {
		_, err := users.Insert(ctx, types.Row{"email": email, "name": email, "age": 30})
		require.NoError(t, err)
	}

	n, err := users.Delete(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = users.DeleteWhere(ctx, types.Condition{Field: "email", Op: "like", Value: "%@x.io"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = users.Delete(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, n)

	rows, err := users.Select(ctx, types.Query{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "c@y.io", rows[0]["email"])
}

func TestBatchInsertIsAtomic(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)
	ctx := context.Background()

	rows, err := users.BatchInsert(ctx, []types.Row{
		{"email": "1@example.com", "name": "one"},
		{"email": "2@example.com", "name": "two"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0][types.ColID])
	assert.Equal(t, int64(2), rows[1][types.ColID])

	_, err = users.BatchInsert(ctx, []types.Row{
		{"email": "3@example.com", "name": "three"},
		{"email": "1@example.com", "name": "duplicate"},
	})
	require.ErrorIs(t, err, types.ErrStorageExecution)

	all, err := users.Select(ctx, types.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "a failing row rolls back the whole batch")
}

func TestSelectOrderingAndPaging(t *testing.T) {
	e := newTestEngine(t)
	users := registerUsers(t, e)
	ctx := context.Background()

	for i, name := range []string{"carol", "alice", "bob"} {
		_, err := users.Insert(ctx, types.Row{"email": name + "@example.com", "name": name, "age": 20 + i})
		require.NoError(t, err)
	}

	rows, err := users.Select(ctx, types.Query{OrderBy: "name", Limit: intPtr(2), Offset: intPtr(1)})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "bob", rows[0]["name"])
	assert.Equal(t, "carol", rows[1]["name"])

	rows, err = users.Select(ctx, types.Query{
		Where:   []types.Condition{{Field: "age", Op: ">=", Value: "21"}},
		OrderBy: "age",
		Dir:     types.Desc,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "bob", rows[0]["name"])

	rows, err = users.Select(ctx, types.Query{Where: []types.Condition{{Field: "name", Op: "in", Value: []string{"alice", "bob"}}}})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = users.Select(ctx, types.Query{Where: []types.Condition{{Field: "name", Op: "~", Value: "x"}}})
	assert.ErrorIs(t, err, types.ErrInvalidOperation)
}

func TestSelectByBooleanAndDate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	events, err := e.RegisterTable(ctx, "events", schema.Object(
		schema.F("name", schema.String()),
		schema.F("at", schema.Date()),
		schema.F("done", schema.Boolean()),
	), types.TableOptions{AutoFields: types.AutoFields{ID: true}})
	require.NoError(t, err)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = events.Insert(ctx, types.Row{"name": "a", "at": at, "done": true})
	require.NoError(t, err)
	_, err = events.Insert(ctx, types.Row{"name": "b", "at": at.Add(time.Hour), "done": "0"})
	require.NoError(t, err)

	rows, err := events.Select(ctx, types.Query{Where: []types.Condition{types.Eq("done", "true")}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0]["name"])

	rows, err = events.Select(ctx, types.Query{Where: []types.Condition{{Field: "at", Op: ">", Value: at}}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0]["name"])
	assert.Equal(t, at.Add(time.Hour), rows[0]["at"])
}

func TestInsertedDateMatchesStoredDate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	events, err := e.RegisterTable(ctx, "events", schema.Object(
		schema.F("at", schema.Date()),
	), types.TableOptions{AutoFields: types.AutoFields{ID: true}})
	require.NoError(t, err)

	at := time.Date(2024, 1, 2, 3, 4, 5, 123_456_789, time.FixedZone("EST", -5*3600))
	inserted, err := events.Insert(ctx, types.Row{"at": at})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 8, 4, 5, 123_000_000, time.UTC), inserted["at"])

	rows, err := events.Select(ctx, types.Query{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, inserted, rows[0])
}

func TestQueueAutoFields(t *testing.T) {
	e := newTestEngine(t, WithIDGenerator(func() string { return "q-1" }))
	ctx := context.Background()
	jobs, err := e.RegisterTable(ctx, "jobs", schema.Object(schema.F("task", schema.String())),
		types.TableOptions{AutoFields: types.AutoFields{ID: true, Queue: true}})
	require.NoError(t, err)

	row, err := jobs.Insert(ctx, types.Row{"task": "index"})
	require.NoError(t, err)
	assert.Equal(t, "q-1", row[types.ColQueueID])
	assert.Equal(t, types.QueueStatusPending, row[types.ColQueueStatus])

	row, err = jobs.Insert(ctx, types.Row{"task": "mail", "queueId": "ext-7", "queueStatus": "sent"})
	require.NoError(t, err)
	assert.Equal(t, "ext-7", row[types.ColQueueID])
	assert.Equal(t, "sent", row[types.ColQueueStatus])

	rows, err := jobs.Select(ctx, types.Query{Where: []types.Condition{types.Eq("queueStatus", "sent")}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "mail", rows[0]["task"])
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/shelf/pkg/types"
)

const usersCUE = `
#User: {
	email: string
	name:  string
	age?:  int
}
`

type cliEnv struct {
	t       *testing.T
	cfgDir  string
	dataDir string
	schema  string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("SHELF_USER", "")
	t.Setenv("SHELF_PARTITION", "")
	dir := t.TempDir()
	schema := filepath.Join(dir, "users.cue")
	require.NoError(t, os.WriteFile(schema, []byte(usersCUE), 0o644))
	return &cliEnv{
		t:       t,
		cfgDir:  filepath.Join(dir, "config"),
		dataDir: filepath.Join(dir, "data"),
		schema:  schema,
	}
}

func (c *cliEnv) run(args ...string) (string, error) {
	c.t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config-dir", c.cfgDir, "--data-dir", c.dataDir}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cliEnv) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "shelf %v", args)
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestCLIWorkflow(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("init")
	assert.Contains(t, out, "shelf initialized")
	assert.FileExists(t, filepath.Join(env.cfgDir, "config.yaml"))
	assert.FileExists(t, filepath.Join(env.dataDir, "default.db"))

	out = env.mustRun("register", "users", "--schema", env.schema, "--def", "#User",
		"--auto", "id,timestamps", "--user-scoped", "--unique", "email", "--conflict", "email")
	assert.Equal(t, "registered users (id, created_at, updated_at, user_id, email, name, age)\n", out)
	out = env.mustRun("register", "users", "--schema", env.schema, "--def", "#User")
	assert.Contains(t, out, "already registered")

	one := decode[map[string]any](t, env.mustRun("insert", "users", `{"email":"a@x.io","name":"A","age":30}`))
	assert.Equal(t, float64(1), one["id"])
	assert.Equal(t, "local", one["user_id"])

	many := decode[[]map[string]any](t, env.mustRun("insert", "users",
		`[{"email":"b@x.io","name":"B","age":31},{"email":"c@x.io","name":"C","age":32}]`))
	require.Len(t, many, 2)
	assert.Equal(t, float64(3), many[1]["id"])

	rows := decode[[]map[string]any](t, env.mustRun("get", "users", "--where", "age:>=:31", "--order", "age:desc"))
	require.Len(t, rows, 2)
	assert.Equal(t, "C", rows[0]["name"])
	assert.Equal(t, "B", rows[1]["name"])

	rows = decode[[]map[string]any](t, env.mustRun("get", "users", "--user", "someone-else"))
	assert.Empty(t, rows, "rows of another user are not returned")

	count := decode[map[string]int64](t, env.mustRun("count", "users", "-w", "name=B"))
	assert.Equal(t, int64(1), count["count"])

	up := decode[map[string]any](t, env.mustRun("upsert", "users", `{"email":"a@x.io","name":"A2"}`))
	assert.Equal(t, "A2", up["name"])
	assert.Equal(t, float64(1), up["id"])

	upd := decode[map[string]any](t, env.mustRun("update", "users", "2", `{"age":40}`))
	assert.Equal(t, float64(40), upd["age"])

	del := decode[map[string]int64](t, env.mustRun("delete", "users", "--where", "email=a@x.io"))
	assert.Equal(t, int64(1), del["deleted"])

	_, err := env.run("delete", "users")
	require.ErrorIs(t, err, types.ErrMissingWhereClause)
	assert.Equal(t, exitUserError, exitCode(err))

	raw := decode[[]map[string]any](t, env.mustRun("select", `SELECT COUNT(*) AS n FROM "users"`))
	assert.Equal(t, float64(2), raw[0]["n"])

	tables := decode[map[string][]string](t, env.mustRun("tables"))
	assert.Contains(t, tables, "users")
}

func TestCLIBatch(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("register", "users", "--schema", env.schema, "--def", "#User", "--auto", "id", "--unique", "email")

	batch := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(batch, []byte(`
- {kind: insert, table: users, data: {email: a@x.io, name: A}}
- {kind: insert, table: users, data: {email: b@x.io, name: B, age: 3}}
- {kind: update, table: users, id: 1, data: {age: 9}}
`), 0o644))
	res := decode[map[string]any](t, env.mustRun("batch", batch))
	assert.Len(t, res["entries"], 3)

	count := decode[map[string]int64](t, env.mustRun("count", "users", "-w", "age:>:1"))
	assert.Equal(t, int64(2), count["count"])

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
- {kind: insert, table: users, data: {email: c@x.io, name: C}}
- {kind: update, table: users, data: {name: nobody}}
`), 0o644))
	_, err := env.run("batch", bad)
	require.ErrorIs(t, err, types.ErrMissingRequiredField)

	count = decode[map[string]int64](t, env.mustRun("count", "users"))
	assert.Equal(t, int64(2), count["count"], "a rejected batch writes nothing")
}

func TestCLIUnknownTable(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("get", "ghosts")
	require.ErrorIs(t, err, types.ErrUnregisteredTable)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestCLIYAMLOutput(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("register", "users", "--schema", env.schema, "--def", "#User", "--auto", "id")
	env.mustRun("insert", "users", `{"email":"y@x.io","name":"Y"}`)

	out := env.mustRun("get", "users", "-o", "yaml")
	assert.Contains(t, out, "email: y@x.io")
	assert.Contains(t, out, "id: 1")
}

func TestVersion(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun("version")
	assert.Contains(t, out, "shelf v")
	assert.Contains(t, out, modulePath)
}

func TestParseWhere(t *testing.T) {
	tests := []struct {
		in   string
		want types.Condition
	}{
		{"name=ada", types.Condition{Field: "name", Op: "=", Value: "ada"}},
		{"url=http://x.io/a", types.Condition{Field: "url", Op: "=", Value: "http://x.io/a"}},
		{"age:>=:30", types.Condition{Field: "age", Op: ">=", Value: "30"}},
		{"at:<:2024-01-01T10:00:00Z", types.Condition{Field: "at", Op: "<", Value: "2024-01-01T10:00:00Z"}},
		{"name:in:a,b", types.Condition{Field: "name", Op: "in", Value: []any{"a", "b"}}},
		{"note=a:b:c", types.Condition{Field: "note", Op: "=", Value: "a:b:c"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseWhere(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "novalue", "=x"} {
		_, err := parseWhere(bad)
		assert.ErrorIs(t, err, errUsage, bad)
	}
}

func TestParseAutoFields(t *testing.T) {
	got, err := parseAutoFields([]string{"id", "Timestamps", "org", "queue"})
	require.NoError(t, err)
	assert.Equal(t, types.AutoFields{ID: true, Timestamps: true, Organization: true, Queue: true}, got)

	_, err = parseAutoFields([]string{"version"})
	assert.ErrorIs(t, err, errUsage)
}

func TestParseRows(t *testing.T) {
	rows, many, err := parseRows([]byte(`{"n": 1}`))
	require.NoError(t, err)
	assert.False(t, many)
	assert.Equal(t, json.Number("1"), rows[0]["n"])

	rows, many, err = parseRows([]byte(`[{"a": "x"}, {"a": "y"}]`))
	require.NoError(t, err)
	assert.True(t, many)
	assert.Len(t, rows, 2)

	for _, bad := range []string{`[1]`, `"x"`, `{`} {
		_, _, err := parseRows([]byte(bad))
		assert.ErrorIs(t, err, errUsage, bad)
	}
	_, err = parseRow([]byte(`[{"a": 1}]`))
	assert.ErrorIs(t, err, errUsage)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitUserError, exitCode(fmt.Errorf("insert: %w", &types.ValidationError{Constraint: "x"})))
	assert.Equal(t, exitSysError, exitCode(&types.StorageError{Err: io.ErrUnexpectedEOF}))
	assert.Equal(t, exitSysError, exitCode(io.EOF))
}

type memKV map[string][]byte

func (m memKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m memKV) Put(_ context.Context, key string, value []byte) error {
	m[key] = value
	return nil
}

func TestRegistrationsRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := memKV{}

	regs, err := loadRegistrations(ctx, kv)
	require.NoError(t, err)
	assert.Empty(t, regs)

	want := []registration{{
		Table:  "users",
		Def:    "#User",
		File:   "users.cue",
		Source: usersCUE,
		Options: types.TableOptions{
			UserScoped:    true,
			UniqueIndexes: []string{"email"},
			AutoFields:    types.AutoFields{ID: true},
			ConflictField: "email",
		},
	}}
	require.NoError(t, saveRegistrations(ctx, kv, want))
	assert.Contains(t, string(kv[registrationsKey]), `"conflictField":"email"`)

	got, err := loadRegistrations(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCLIExportImport(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("register", "users", "--schema", env.schema, "--def", "#User", "--auto", "id")
	env.mustRun("insert", "users", `[{"email":"a@x.io","name":"A"},{"email":"b@x.io","name":"B"}]`)

	file := filepath.Join(t.TempDir(), "users.jsonl")
	out := decode[map[string]int](t, env.mustRun("export", "users", file))
	assert.Equal(t, 2, out["exported"])

	out = decode[map[string]int](t, env.mustRun("import", "users", file))
	assert.Equal(t, 2, out["imported"])

	count := decode[map[string]int64](t, env.mustRun("count", "users", "-w", "name=A"))
	assert.Equal(t, int64(2), count["count"])
}

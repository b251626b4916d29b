package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/quarry"
)

const v1 = `version: v1
models:
  - name: Author
    columns:
      - {name: id, type: bigint}
      - {name: name, type: varchar(64)}
    primary_key: [id]
    relations:
      - {name: posts, kind: O2M, target: Post}
  - name: Post
    columns:
      - {name: id, type: bigint}
      - {name: title, type: text}
      - {name: author_id, type: bigint}
    primary_key: [id]
    relations:
      - {name: author, kind: M2O, target: Author}
`

// v2 drops Author.name.
const v2 = `version: v2
models:
  - name: Author
    columns:
      - {name: id, type: bigint}
    primary_key: [id]
    relations:
      - {name: posts, kind: O2M, target: Post}
  - name: Post
    columns:
      - {name: id, type: bigint}
      - {name: title, type: text}
      - {name: author_id, type: bigint}
    primary_key: [id]
    relations:
      - {name: author, kind: M2O, target: Author}
`

// workspace changes into a fresh directory holding the given files.
func workspace(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	workspace(t, nil)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "quarry v"+Version)
}

func TestPlan(t *testing.T) {
	workspace(t, map[string]string{"v1.yaml": v1, "v2.yaml": v2})

	t.Run("table", func(t *testing.T) {
		out, err := run(t, "plan", "--to", "v1.yaml", "--sql")
		require.NoError(t, err)
		assert.Contains(t, out, "create table")
		assert.Contains(t, out, "authors")
		assert.Contains(t, out, "posts")
		assert.Contains(t, out, "-- postgres")
		assert.Contains(t, out, `CREATE TABLE "authors"`)
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "plan", "--to", "v1.yaml", "-o", "json")
		require.NoError(t, err)
		var record struct {
			To       string           `json:"to"`
			Checksum string           `json:"checksum"`
			Ops      []map[string]any `json:"ops"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &record))
		assert.Equal(t, "v1", record.To)
		assert.NotEmpty(t, record.Checksum)
		assert.NotEmpty(t, record.Ops)
	})

	t.Run("up to date", func(t *testing.T) {
		out, err := run(t, "plan", "--from", "v1.yaml", "--to", "v1.yaml")
		require.NoError(t, err)
		assert.Contains(t, out, "Schema is up to date")
	})

	t.Run("destructive", func(t *testing.T) {
		_, err := run(t, "plan", "--from", "v1.yaml", "--to", "v2.yaml")
		require.Error(t, err)
		assert.True(t, quarry.IsMigrationError(err, quarry.MigrationDestructiveWithoutConfirmation))

		out, err := run(t, "plan", "--from", "v1.yaml", "--to", "v2.yaml", "--allow-destructive")
		require.NoError(t, err)
		assert.Contains(t, out, "drop column")
		assert.Contains(t, out, "destructive: yes")
	})
}

func TestConfigFile(t *testing.T) {
	workspace(t, map[string]string{
		"v1.yaml":     v1,
		"quarry.yaml": "schema: v1.yaml\ndialect: sqlite3\n",
	})
	out, err := run(t, "plan", "--sql")
	require.NoError(t, err)
	assert.Contains(t, out, "-- sqlite3")
	assert.Contains(t, out, "CREATE TABLE `authors`")

	out, err = run(t, "plan", "--sql", "--dialect", "mysql")
	require.NoError(t, err)
	assert.Contains(t, out, "-- mysql")

	_, err = run(t, "plan", "--dialect", "oracle")
	assert.ErrorContains(t, err, `unknown dialect "oracle"`)
}

func TestWriteApplyStatus(t *testing.T) {
	workspace(t, map[string]string{"v1.yaml": v1})
	db := []string{"--dialect", "sqlite3", "--dsn", "app.db", "--dir", "migrations"}

	_, err := run(t, "write", "Init", "--to", "v1.yaml")
	assert.ErrorContains(t, err, "invalid migration name")

	out, err := run(t, "write", "init", "--to", "v1.yaml", "--dialect", "sqlite3", "--dir", "migrations")
	require.NoError(t, err)
	assert.Contains(t, out, "_init (")

	out, err = run(t, "verify", "--dir", "migrations")
	require.NoError(t, err)
	assert.Contains(t, out, "1 migrations verified")

	out, err = run(t, append([]string{"status", "-o", "json"}, db...)...)
	require.NoError(t, err)
	var status []struct {
		Description string `json:"description"`
		Applied     bool   `json:"applied"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.Len(t, status, 1)
	assert.Equal(t, "init", status[0].Description)
	assert.False(t, status[0].Applied)

	out, err = run(t, append([]string{"apply"}, db...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "applied ")

	out, err = run(t, append([]string{"apply"}, db...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Database is up to date")

	out, err = run(t, append([]string{"status", "-o", "json"}, db...)...)
	require.NoError(t, err)
	status = nil
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.Len(t, status, 1)
	assert.True(t, status[0].Applied)

	_, err = run(t, "apply", "--dialect", "sqlite3", "--dir", "migrations")
	assert.ErrorContains(t, err, "dsn is required")
}

func TestGen(t *testing.T) {
	dir := workspace(t, map[string]string{"v1.yaml": v1})
	out, err := run(t, "gen", "--to", "v1.yaml", "--out", "models", "--models", "Post")
	require.NoError(t, err)
	assert.Equal(t, "post/post.go\n", out)

	b, err := os.ReadFile(filepath.Join(dir, "models", "post", "post.go"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "package post")
	assert.NoFileExists(t, filepath.Join(dir, "models", "author", "author.go"))
}

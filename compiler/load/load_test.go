package load_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/quarry/compiler/load"
	"github.com/syssam/quarry/internal/testutil"
	"github.com/syssam/quarry/schema"
	"github.com/syssam/quarry/schema/field"
)

func marshal(t *testing.T, snap *schema.Snapshot) string {
	t.Helper()
	b, err := json.Marshal(snap)
	require.NoError(t, err)
	return string(b)
}

func TestFile_YAML(t *testing.T) {
	snap, err := load.File(filepath.Join("testdata", "blog.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "blog", snap.Version())
	assert.JSONEq(t, marshal(t, testutil.BlogSnapshot(t)), marshal(t, snap))
}

func TestFile_JSONMapping(t *testing.T) {
	snap, err := load.File(filepath.Join("testdata", "shop.json"), schema.WithVersion("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "shop-1", snap.Version())

	models := snap.Models()
	require.Len(t, models, 2)
	assert.Equal(t, "Customer", models[0].Name, "mapping order is kept")
	assert.Equal(t, "purchase_orders", models[1].Table)

	total, ok := models[1].Column("total")
	require.True(t, ok)
	assert.Equal(t, field.KindDecimal, total.Type.Kind)
	assert.Equal(t, field.Decimal("0.00"), total.Default.Value)

	fks := snap.ForeignKeysOf("purchase_orders")
	require.Len(t, fks, 1)
	assert.Equal(t, []string{"customer_id"}, fks[0].Columns)
	assert.Equal(t, "customers", fks[0].RefTable)
}

func TestDecode_YAMLMapping(t *testing.T) {
	doc, err := load.Decode([]byte(`
models:
  Tag:
    columns: [{name: id, type: int}]
    primary_key: [id]
  Label:
    columns: [{name: id, type: int}]
    primary_key: [id]
`), load.YAML)
	require.NoError(t, err)
	require.Len(t, doc.Models, 2)
	assert.Equal(t, "Tag", doc.Models[0].Name)
	assert.Equal(t, "Label", doc.Models[1].Name)
	assert.Len(t, doc.Descriptor(), 2)

	reg, err := schema.NewRegistryFrom(doc.Descriptor())
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
}

func TestEncode_RoundTrip(t *testing.T) {
	snap := testutil.BlogSnapshot(t)
	for _, format := range []load.Format{load.YAML, load.JSON} {
		t.Run(string(format), func(t *testing.T) {
			b, err := load.Encode(snap, format)
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "schema."+string(format))
			require.NoError(t, os.WriteFile(path, b, 0o644))
			got, err := load.File(path)
			require.NoError(t, err)
			assert.JSONEq(t, marshal(t, snap), marshal(t, got))
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		format load.Format
		input  string
		msg    string
	}{
		{"scalar models", load.YAML, "models: 3", "must be a sequence or a mapping"},
		{"duplicate model", load.YAML, "models: [{name: A}, {name: A}]", "declared twice"},
		{"unknown type", load.YAML, "models: [{name: A, columns: [{name: id, type: money}]}]", `unknown type "money"`},
		{"unknown relation kind", load.JSON, `{"models": [{"name": "A", "relations": [{"name": "b", "kind": "lots"}]}]}`, `unknown relation kind "lots"`},
		{"malformed json", load.JSON, `{"models": `, "decode json"},
		{"unknown format", load.Format("toml"), "", "unknown descriptor format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load.Decode([]byte(tt.input), tt.format)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestRead_Errors(t *testing.T) {
	_, err := load.Read("schema.toml")
	assert.ErrorContains(t, err, "unknown descriptor format")

	_, err = load.Read(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("models: [{name: A, primary_key: [id]}]"), 0o644))
	_, err = load.File(path)
	require.Error(t, err, "registration errors surface")
}

func TestDecode_Mixins(t *testing.T) {
	for _, tt := range []struct {
		format load.Format
		input  string
	}{
		{load.YAML, `
models:
  Post:
    mixins: [id, time]
    columns: [{name: title, type: text}]
`},
		{load.JSON, `{"models": [{"name": "Post", "mixins": ["id", "time"], "columns": [{"name": "title", "type": "text"}]}]}`},
	} {
		t.Run(string(tt.format), func(t *testing.T) {
			doc, err := load.Decode([]byte(tt.input), tt.format)
			require.NoError(t, err)
			require.Len(t, doc.Models, 1)
			post := doc.Models[0]
			assert.Equal(t, "Post", post.Name)
			assert.Equal(t, []string{"id", "created_at", "updated_at", "title"}, post.ColumnNames())
			assert.Equal(t, []string{"id"}, post.PrimaryKey)

			snap, err := doc.Snapshot()
			require.NoError(t, err)
			assert.Len(t, snap.Models(), 1)
		})
	}

	_, err := load.Decode([]byte("models: [{name: A, mixins: [audit]}]"), load.YAML)
	assert.ErrorContains(t, err, `unknown mixin "audit"`)
}

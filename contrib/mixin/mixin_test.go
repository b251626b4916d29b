package mixin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/quarry"
	"github.com/syssam/quarry/contrib/mixin"
	"github.com/syssam/quarry/schema"
	"github.com/syssam/quarry/schema/field"
)

func columnNames(cols []*schema.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func TestMixinColumns(t *testing.T) {
	tests := []struct {
		name    string
		mixin   mixin.Mixin
		columns []string
		indexes int
	}{
		{"create_time", mixin.CreateTime{}, []string{"created_at"}, 0},
		{"update_time", mixin.UpdateTime{}, []string{"updated_at"}, 0},
		{"time", mixin.Time{}, []string{"created_at", "updated_at"}, 0},
		{"id", mixin.ID{}, []string{"id"}, 0},
		{"soft_delete", mixin.SoftDelete{}, []string{"deleted_at"}, 1},
		{"tenant_id", mixin.TenantID{}, []string{"tenant_id"}, 1},
		{"time_soft_delete", mixin.TimeSoftDelete{}, []string{"created_at", "updated_at", "deleted_at"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.columns, columnNames(tt.mixin.Columns()))
			assert.Len(t, tt.mixin.Indexes(), tt.indexes)
			m, ok := mixin.Lookup(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.mixin, m)
		})
	}
	assert.Len(t, mixin.Names(), len(tests))
}

func TestMixinDefaults(t *testing.T) {
	created := mixin.CreateTime{}.Columns()[0]
	assert.Equal(t, field.KindTime, created.Type.Kind)
	require.NotNil(t, created.Default)
	assert.Equal(t, "CURRENT_TIMESTAMP", created.Default.Expr)
	assert.False(t, created.Nullable)

	deleted := mixin.SoftDelete{}.Columns()[0]
	assert.True(t, deleted.Nullable)
	assert.Nil(t, deleted.Default)

	assert.Equal(t, field.KindUUID, mixin.ID{}.Columns()[0].Type.Kind)
	assert.Nil(t, mixin.Schema{}.Columns())
}

func TestApply(t *testing.T) {
	post := &schema.Model{
		Name:    "Post",
		Columns: []*schema.Column{{Name: "title", Type: field.TypeText()}},
		Indexes: []*schema.Index{{Columns: []string{"title"}}},
	}
	got, err := mixin.Apply(post, mixin.ID{}, mixin.TimeSoftDelete{})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "created_at", "updated_at", "deleted_at", "title"}, columnNames(got.Columns))
	assert.Equal(t, []string{"id"}, got.PrimaryKey)
	require.Len(t, got.Indexes, 2)
	assert.Equal(t, []string{"deleted_at"}, got.Indexes[1].Columns)

	assert.Len(t, post.Columns, 1, "the input model is not modified")
	assert.Empty(t, post.PrimaryKey)

	r := schema.NewRegistry()
	require.NoError(t, r.Register(got))
	snap, err := r.Snapshot()
	require.NoError(t, err)
	m, ok := snap.Model("Post")
	require.True(t, ok)
	assert.Len(t, m.Columns, 5)
}

func TestApply_KeepsPrimaryKey(t *testing.T) {
	m := &schema.Model{
		Name:       "Tag",
		Columns:    []*schema.Column{{Name: "label", Type: field.TypeVarchar(32)}},
		PrimaryKey: []string{"label"},
	}
	got, err := mixin.Apply(m, mixin.ID{})
	require.NoError(t, err)
	assert.Equal(t, []string{"label"}, got.PrimaryKey)
}

func TestApply_Errors(t *testing.T) {
	m := &schema.Model{
		Name:    "Post",
		Columns: []*schema.Column{{Name: "created_at", Type: field.TypeTime()}},
	}
	_, err := mixin.Apply(m, mixin.Time{})
	require.Error(t, err)
	assert.True(t, quarry.IsSchemaError(err, quarry.SchemaInvalidModel))
	assert.Contains(t, err.Error(), "column created_at")

	_, err = mixin.ApplyNamed(m, "audit")
	assert.ErrorContains(t, err, `unknown mixin "audit"`)

	got, err := mixin.ApplyNamed(m, "id", "soft_delete")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "deleted_at", "created_at"}, columnNames(got.Columns))
}

package testutil

import (
	"testing"

	"github.com/syssam/quarry/schema"
	"github.com/syssam/quarry/schema/field"
)

// BlogModels returns a small blog schema: authors write posts, posts have
// comments and are tagged through the synthesized posts_tags join table.
func BlogModels() []*schema.Model {
	return []*schema.Model{
		{
			Name: "Author",
			Columns: []*schema.Column{
				{Name: "id", Type: field.TypeBigInt()},
				{Name: "name", Type: field.TypeVarchar(255)},
				{Name: "email", Type: field.TypeVarchar(255), Nullable: true, Unique: true},
			},
			PrimaryKey: []string{"id"},
			Relations: []*schema.Relation{
				{Name: "posts", Kind: schema.O2M, Target: "Post"},
			},
		},
		{
			Name: "Post",
			Columns: []*schema.Column{
				{Name: "id", Type: field.TypeBigInt()},
				{Name: "title", Type: field.TypeText()},
				{Name: "author_id", Type: field.TypeBigInt()},
				{Name: "published", Type: field.TypeBool(), Default: schema.DefaultValue(field.Bool(false))},
				{Name: "views", Type: field.TypeInt(), Default: schema.DefaultValue(field.Int(0))},
				{Name: "created_at", Type: field.TypeTime(), Default: schema.DefaultExpr("CURRENT_TIMESTAMP")},
			},
			PrimaryKey: []string{"id"},
			Relations: []*schema.Relation{
				{Name: "author", Kind: schema.M2O, Target: "Author"},
				{Name: "comments", Kind: schema.O2M, Target: "Comment"},
				{Name: "tags", Kind: schema.M2M, Target: "Tag"},
			},
			Indexes: []*schema.Index{
				{Columns: []string{"author_id"}},
			},
		},
		{
			Name: "Comment",
			Columns: []*schema.Column{
				{Name: "id", Type: field.TypeBigInt()},
				{Name: "post_id", Type: field.TypeBigInt()},
				{Name: "body", Type: field.TypeText()},
			},
			PrimaryKey: []string{"id"},
			Relations: []*schema.Relation{
				{Name: "post", Kind: schema.M2O, Target: "Post", OnDelete: schema.Cascade},
			},
		},
		{
			Name: "Tag",
			Columns: []*schema.Column{
				{Name: "id", Type: field.TypeBigInt()},
				{Name: "label", Type: field.TypeVarchar(32), Unique: true},
			},
			PrimaryKey: []string{"id"},
			Relations: []*schema.Relation{
				{Name: "posts", Kind: schema.M2M, Target: "Post", Through: &schema.JoinTable{
					Table: "posts_tags", Columns: []string{"tag_id"}, RefColumns: []string{"post_id"},
				}},
			},
		},
	}
}

// BlogSnapshot returns a snapshot of BlogModels with version "blog".
func BlogSnapshot(t testing.TB) *schema.Snapshot {
	t.Helper()
	s, err := schema.NewSnapshot("blog", BlogModels()...)
	if err != nil {
		t.Fatalf("blog snapshot: %v", err)
	}
	return s
}

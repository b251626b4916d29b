package schema_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/syssam/quarry"
	"github.com/syssam/quarry/schema"
	"github.com/syssam/quarry/schema/field"
)

func author() *schema.Model {
	return &schema.Model{
		Name: "Author",
		Columns: []*schema.Column{
			{Name: "id", Type: field.TypeBigInt()},
			{Name: "name", Type: field.TypeVarchar(255)},
		},
		PrimaryKey: []string{"id"},
		Relations: []*schema.Relation{
			{Name: "posts", Kind: schema.O2M, Target: "Post"},
		},
	}
}

func post() *schema.Model {
	return &schema.Model{
		Name: "Post",
		Columns: []*schema.Column{
			{Name: "id", Type: field.TypeBigInt()},
			{Name: "title", Type: field.TypeText()},
			{Name: "author_id", Type: field.TypeBigInt()},
			{Name: "published", Type: field.TypeBool(), Default: schema.DefaultValue(field.Bool(false))},
		},
		PrimaryKey: []string{"id"},
		Relations: []*schema.Relation{
			{Name: "author", Kind: schema.M2O, Target: "Author"},
		},
		Indexes: []*schema.Index{
			{Columns: []string{"author_id"}},
		},
	}
}

func newRegistry(t *testing.T, models ...*schema.Model) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()
	for _, m := range models {
		require.NoError(t, r.Register(m))
	}
	return r
}

func TestRegister_Defaults(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, author(), post())
	s, err := r.Snapshot()
	require.NoError(t, err)

	a, ok := s.Model("Author")
	require.True(t, ok)
	assert.Equal(t, "authors", a.Table)

	p, ok := s.ModelByTable("posts")
	require.True(t, ok)
	assert.Equal(t, "Post", p.Name)
	assert.Equal(t, "posts_author_id_idx", p.Indexes[0].Name)

	rel, target, err := s.Relation("Author", "posts")
	require.NoError(t, err)
	assert.Equal(t, "Post", target.Name)
	assert.Equal(t, []string{"author_id"}, rel.Columns)
	assert.Equal(t, []string{"id"}, rel.RefColumns)
}

func TestRegister_Duplicate(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, author())

	err := r.Register(author())
	require.Error(t, err)
	assert.True(t, quarry.IsSchemaError(err, quarry.SchemaDuplicateModel))

	other := post()
	other.Name = "Writer"
	other.Table = "authors"
	err = r.Register(other)
	assert.True(t, quarry.IsSchemaError(err, quarry.SchemaDuplicateModel))
	assert.Contains(t, err.Error(), `table "authors" already used by model Author`)
}

func TestRegister_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		modify func(*schema.Model)
		want   string
	}{
		{"empty name", func(m *schema.Model) { m.Name = "" }, "model name is empty"},
		{"no columns", func(m *schema.Model) { m.Columns = nil }, "no columns"},
		{"duplicate column", func(m *schema.Model) { m.Columns = append(m.Columns, &schema.Column{Name: "id", Type: field.TypeInt()}) }, "duplicate column"},
		{"invalid type", func(m *schema.Model) { m.Columns[1].Type = field.Type{} }, "invalid type"},
		{"no primary key", func(m *schema.Model) { m.PrimaryKey = nil }, "no primary key"},
		{"missing primary key", func(m *schema.Model) { m.PrimaryKey = []string{"uuid"} }, "primary key column does not exist"},
		{"nullable primary key", func(m *schema.Model) { m.Columns[0].Nullable = true }, "primary key column is nullable"},
		{"bad default", func(m *schema.Model) { m.Columns[1].Default = schema.DefaultValue(field.Int(1)) }, "does not fit type"},
		{"null default", func(m *schema.Model) { m.Columns[1].Default = schema.DefaultValue(field.Null{}) }, "NULL default"},
		{"duplicate relation", func(m *schema.Model) { m.Relations = append(m.Relations, m.Relations[0]) }, "duplicate relation"},
		{"no target", func(m *schema.Model) { m.Relations[0].Target = "" }, "no target"},
		{"through on O2M", func(m *schema.Model) { m.Relations[0].Through = &schema.JoinTable{Table: "x"} }, "join table"},
		{"bad on delete", func(m *schema.Model) { m.Relations[0].OnDelete = "EXPLODE" }, "unknown on_delete"},
		{"index column", func(m *schema.Model) { m.Indexes = []*schema.Index{{Columns: []string{"nope"}}} }, "missing column"},
		{"fk column", func(m *schema.Model) {
			m.Relations = []*schema.Relation{{Name: "editor", Kind: schema.M2O, Target: "Author", Columns: []string{"editor_id"}}}
		}, `foreign key column "editor_id" does not exist`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := author()
			tt.modify(m)
			err := schema.NewRegistry().Register(m)
			require.Error(t, err)
			assert.True(t, quarry.IsSchemaError(err, quarry.SchemaInvalidModel), err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRegister_Frozen(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, author())
	r.Freeze()
	err := r.Register(post())
	assert.True(t, quarry.IsSchemaError(err, quarry.SchemaFrozen))
	assert.Equal(t, 1, r.Len())
}

func TestRegister_CopiesInput(t *testing.T) {
	t.Parallel()
	m := author()
	r := newRegistry(t, m, post())
	m.Columns[1].Name = "renamed"
	m.Table = "people"

	s, err := r.Snapshot()
	require.NoError(t, err)
	a, _ := s.Model("Author")
	assert.Equal(t, "authors", a.Table)
	_, ok := a.Column("name")
	assert.True(t, ok)
}

func TestResolveRelation(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, author(), post())

	rel, target, err := r.ResolveRelation("Post", "author")
	require.NoError(t, err)
	assert.Equal(t, "Author", target.Name)
	assert.Equal(t, []string{"author_id"}, rel.Columns)
	assert.Equal(t, []string{"id"}, rel.RefColumns)

	_, _, err = r.ResolveRelation("Comment", "post")
	assert.True(t, quarry.IsSchemaError(err, quarry.SchemaUnknownModel))

	_, _, err = r.ResolveRelation("Post", "comments")
	assert.True(t, quarry.IsSchemaError(err, quarry.SchemaUnknownRelation))
	var serr *quarry.SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "Post", serr.Model)
	assert.Equal(t, "comments", serr.Relation)

	orphan := author()
	orphan.Name = "Orphan"
	orphan.Relations = []*schema.Relation{{Name: "ghost", Kind: schema.O2M, Target: "Ghost"}}
	require.NoError(t, r.Register(orphan))
	_, _, err = r.ResolveRelation("Orphan", "ghost")
	assert.True(t, quarry.IsSchemaError(err, quarry.SchemaUnknownTarget))
}

func TestValidate_Aggregates(t *testing.T) {
	t.Parallel()
	a := author()
	a.Relations = append(a.Relations, &schema.Relation{Name: "awards", Kind: schema.O2M, Target: "Award"})
	p := post()
	p.Relations = append(p.Relations, &schema.Relation{Name: "blog", Kind: schema.M2O, Target: "Blog"})
	r := newRegistry(t, a, p)

	err := r.Validate()
	require.Error(t, err)
	var agg *quarry.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
	assert.True(t, quarry.IsSchemaError(err, quarry.SchemaUnknownTarget))
	assert.ErrorIs(t, err, quarry.ErrSchema)

	_, err = r.Snapshot()
	assert.Error(t, err)
}

func TestValidate_MissingForeignKeyColumn(t *testing.T) {
	t.Parallel()
	p := post()
	p.Columns = p.Columns[:2]
	p.Relations = nil
	p.Indexes = nil
	r := newRegistry(t, author(), p)
	err := r.Validate()
	require.Error(t, err)
	assert.True(t, quarry.IsSchemaError(err, quarry.SchemaInvalidModel))
	assert.Contains(t, err.Error(), "column author_id")
}

func TestValidate_KeyTypeMismatch(t *testing.T) {
	t.Parallel()
	p := post()
	p.Columns[2].Type = field.TypeUUID()
	r := newRegistry(t, author(), p)
	err := r.Validate()
	assert.True(t, quarry.IsSchemaError(err, quarry.SchemaInvalidModel))
	assert.Contains(t, err.Error(), "cannot reference")
}

// ring returns n models, each holding a required foreign key to the next.
func ring(n int, nullable, deferrable bool) []*schema.Model {
	models := make([]*schema.Model, n)
	for i := range n {
		next := fmt.Sprintf("M%d", (i+1)%n)
		models[i] = &schema.Model{
			Name: fmt.Sprintf("M%d", i),
			Columns: []*schema.Column{
				{Name: "id", Type: field.TypeBigInt()},
				{Name: "next_id", Type: field.TypeBigInt(), Nullable: nullable && i == 0},
			},
			PrimaryKey: []string{"id"},
			Relations: []*schema.Relation{
				{Name: "next", Kind: schema.M2O, Target: next, Deferrable: deferrable && i == n-1},
			},
		}
	}
	return models
}

// reciprocalChain returns A <-> B <-> C, every key required. No cycle
// passes through all three models.
func reciprocalChain() []*schema.Model {
	model := func(name string, refs ...string) *schema.Model {
		m := &schema.Model{
			Name:       name,
			Columns:    []*schema.Column{{Name: "id", Type: field.TypeBigInt()}},
			PrimaryKey: []string{"id"},
		}
		for _, ref := range refs {
			m.Columns = append(m.Columns, &schema.Column{Name: strings.ToLower(ref) + "_id", Type: field.TypeBigInt()})
			m.Relations = append(m.Relations, &schema.Relation{Name: strings.ToLower(ref), Kind: schema.M2O, Target: ref})
		}
		return m
	}
	return []*schema.Model{model("A", "B"), model("B", "A", "C"), model("C", "B")}
}

func TestValidate_Cycles(t *testing.T) {
	t.Parallel()
	t.Run("self reference", func(t *testing.T) {
		m := &schema.Model{
			Name: "Employee",
			Columns: []*schema.Column{
				{Name: "id", Type: field.TypeInt()},
				{Name: "manager_id", Type: field.TypeInt()},
			},
			PrimaryKey: []string{"id"},
			Relations:  []*schema.Relation{{Name: "manager", Kind: schema.M2O, Target: "Employee"}},
		}
		assert.NoError(t, newRegistry(t, m).Validate())
	})
	t.Run("reciprocal", func(t *testing.T) {
		assert.NoError(t, newRegistry(t, ring(2, false, false)...).Validate())
	})
	t.Run("chain of reciprocal pairs", func(t *testing.T) {
		assert.NoError(t, newRegistry(t, reciprocalChain()...).Validate())
	})
	t.Run("three required", func(t *testing.T) {
		err := newRegistry(t, ring(3, false, false)...).Validate()
		require.Error(t, err)
		assert.True(t, quarry.IsSchemaError(err, quarry.SchemaDependencyCycle))
		var serr *quarry.SchemaError
		require.ErrorAs(t, err, &serr)
		assert.Len(t, serr.Cycle, 4)
		assert.Equal(t, serr.Cycle[0], serr.Cycle[3])
		assert.Contains(t, err.Error(), "cycle M0 -> ")
	})
	t.Run("nullable breaks cycle", func(t *testing.T) {
		assert.NoError(t, newRegistry(t, ring(3, true, false)...).Validate())
	})
	t.Run("deferrable breaks cycle", func(t *testing.T) {
		assert.NoError(t, newRegistry(t, ring(4, false, true)...).Validate())
	})
	t.Run("check deferred", func(t *testing.T) {
		r := schema.NewRegistry(schema.DeferCycleCheck())
		for _, m := range ring(3, false, false) {
			require.NoError(t, r.Register(m))
		}
		assert.NoError(t, r.Validate())
	})
}

func TestSnapshot_Isolation(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, author(), post())
	s1, err := r.Snapshot()
	require.NoError(t, err)

	tag := &schema.Model{
		Name:       "Tag",
		Columns:    []*schema.Column{{Name: "id", Type: field.TypeBigInt()}},
		PrimaryKey: []string{"id"},
	}
	require.NoError(t, r.Register(tag))
	s2, err := r.Snapshot()
	require.NoError(t, err)

	assert.False(t, s1.Has("Tag"))
	assert.True(t, s2.Has("Tag"))
	assert.Len(t, s1.Models(), 2)
	assert.NotEqual(t, s1.Version(), s2.Version())

	// Slices handed out are copies.
	models := s1.Models()
	models[0] = nil
	assert.NotNil(t, s1.Models()[0])

	// So are the models, relations and keys they hold.
	version := s1.Version()
	m, ok := s1.Model("Author")
	require.True(t, ok)
	m.Columns = nil
	m.PrimaryKey[0] = "name"
	s1.Models()[0].Table = "writers"
	rel, target, err := s1.Relation("Author", "posts")
	require.NoError(t, err)
	rel.Target = "Author"
	target.Columns[0].Name = "renamed"
	s1.ForeignKeys()[0].RefTable = "writers"

	m, _ = s1.Model("Author")
	assert.Equal(t, []string{"id", "name"}, m.ColumnNames())
	assert.Equal(t, []string{"id"}, m.PrimaryKey)
	assert.Equal(t, "authors", m.Table)
	rel, target, err = s1.Relation("Author", "posts")
	require.NoError(t, err)
	assert.Equal(t, "Post", rel.Target)
	assert.Equal(t, "id", target.Columns[0].Name)
	assert.Equal(t, "authors", s1.ForeignKeys()[0].RefTable)
	assert.Equal(t, version, s1.Version())
}

func TestSnapshot_Version(t *testing.T) {
	t.Parallel()
	s1, err := newRegistry(t, author(), post()).Snapshot()
	require.NoError(t, err)
	s2, err := newRegistry(t, author(), post()).Snapshot()
	require.NoError(t, err)
	assert.Equal(t, s1.Version(), s2.Version(), "content addressed")
	assert.Len(t, s1.Version(), 12)

	r := schema.NewRegistry(schema.WithVersion("v2"))
	require.NoError(t, r.Register(author()))
	require.NoError(t, r.Register(post()))
	s3, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "v2", s3.Version())
}

func TestSnapshot_ForeignKeys(t *testing.T) {
	t.Parallel()
	s, err := newRegistry(t, author(), post()).Snapshot()
	require.NoError(t, err)

	// Author.posts and Post.author describe the same constraint.
	fks := s.ForeignKeys()
	require.Len(t, fks, 1)
	fk := fks[0]
	assert.Equal(t, "posts_author_id_fkey", fk.Name)
	assert.Equal(t, "posts(author_id) -> authors(id)", fk.String())
	assert.True(t, fk.Required)
	assert.Equal(t, fks, s.ForeignKeysOf("posts"))
	assert.Empty(t, s.ForeignKeysOf("authors"))

	g := s.DependencyGraph()
	order, err := g.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"authors", "posts"}, order)
}

func TestSnapshot_ManyToMany(t *testing.T) {
	t.Parallel()
	p := post()
	p.Relations = append(p.Relations, &schema.Relation{Name: "tags", Kind: schema.M2M, Target: "Tag"})
	tag := &schema.Model{
		Name: "Tag",
		Columns: []*schema.Column{
			{Name: "id", Type: field.TypeInt()},
			{Name: "label", Type: field.TypeVarchar(32), Unique: true},
		},
		PrimaryKey: []string{"id"},
		Relations: []*schema.Relation{
			{Name: "posts", Kind: schema.M2M, Target: "Post", Through: &schema.JoinTable{
				Table: "posts_tags", Columns: []string{"tag_id"}, RefColumns: []string{"post_id"},
			}},
		},
	}
	s, err := newRegistry(t, author(), p, tag).Snapshot()
	require.NoError(t, err)

	rel, _, err := s.Relation("Post", "tags")
	require.NoError(t, err)
	require.NotNil(t, rel.Through)
	assert.Equal(t, "posts_tags", rel.Through.Table)
	assert.Equal(t, []string{"post_id"}, rel.Through.Columns)
	assert.Equal(t, []string{"tag_id"}, rel.Through.RefColumns)

	jt, ok := s.ModelByTable("posts_tags")
	require.True(t, ok)
	assert.True(t, jt.JoinTable)
	assert.Equal(t, []string{"post_id", "tag_id"}, jt.PrimaryKey)
	assert.Len(t, s.Tables(), 4)
	assert.Len(t, s.Models(), 3)
	assert.Len(t, s.ForeignKeysOf("posts_tags"), 2)

	owner, _ := s.Model("Post")
	links := s.Links(owner, rel)
	require.Len(t, links, 2)
	assert.Equal(t, schema.Link{From: "posts", FromColumns: []string{"id"}, To: "posts_tags", ToColumns: []string{"post_id"}}, links[0])
	assert.Equal(t, schema.Link{From: "posts_tags", FromColumns: []string{"tag_id"}, To: "tags", ToColumns: []string{"id"}}, links[1])
}

func TestIngest(t *testing.T) {
	t.Parallel()
	r, err := schema.NewRegistryFrom(schema.Descriptor{
		"Post":   post(),
		"Author": author(),
	})
	require.NoError(t, err)
	s, err := r.Snapshot()
	require.NoError(t, err)
	models := s.Models()
	require.Len(t, models, 2)
	assert.Equal(t, "Author", models[0].Name)
	assert.Equal(t, "Post", models[1].Name)

	bad := author()
	bad.PrimaryKey = nil
	_, err = schema.NewRegistryFrom(schema.Descriptor{"A": bad, "B": nil})
	var agg *quarry.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
}

func TestModel_Encoding(t *testing.T) {
	t.Parallel()
	m := post()
	m.Columns = append(m.Columns, &schema.Column{Name: "created_at", Type: field.TypeTime(), Default: schema.DefaultExpr("CURRENT_TIMESTAMP")})

	b, err := json.Marshal(m)
	require.NoError(t, err)
	var fromJSON schema.Model
	require.NoError(t, json.Unmarshal(b, &fromJSON))
	assert.Equal(t, m, &fromJSON)

	y, err := yaml.Marshal(m)
	require.NoError(t, err)
	var fromYAML schema.Model
	require.NoError(t, yaml.Unmarshal(y, &fromYAML))
	assert.Equal(t, m, &fromYAML)
	assert.Contains(t, string(y), "kind: M2O")
	assert.Contains(t, string(y), "expr: CURRENT_TIMESTAMP")
}

func TestParseRelationKind(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]schema.RelationKind{
		"O2M": schema.O2M, "one-to-many": schema.O2M, "has_one": schema.O2O,
		"belongs_to": schema.M2O, "many_to_many": schema.M2M,
	} {
		got, err := schema.ParseRelationKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := schema.ParseRelationKind("sideways")
	assert.Error(t, err)
	assert.True(t, schema.M2O.ToOne())
	assert.False(t, schema.O2M.ToOne())
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, author(), post())
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i == 0 {
				_ = r.Register(&schema.Model{
					Name:       "Tag",
					Columns:    []*schema.Column{{Name: "id", Type: field.TypeInt()}},
					PrimaryKey: []string{"id"},
				})
				return
			}
			s, err := r.Snapshot()
			assert.NoError(t, err)
			assert.True(t, s.Has("Author"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, r.Len())
}

package sql_test

import (
	dbsql "database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/quarry"
	"github.com/syssam/quarry/dialect"
	"github.com/syssam/quarry/dialect/sql"
	"github.com/syssam/quarry/internal/testutil"
	"github.com/syssam/quarry/query"
	"github.com/syssam/quarry/schema"
	"github.com/syssam/quarry/schema/field"
)

var profiles = []*dialect.Profile{dialect.PostgresProfile, dialect.MySQLProfile, dialect.SQLiteProfile}

func TestCompile_Golden(t *testing.T) {
	snap := testutil.BlogSnapshot(t)
	b := query.New(snap)
	tests := []struct {
		name string
		b    *query.Builder
	}{
		{
			name: "select_join",
			b: b.Select("Post").
				Join("author").
				Columns("id", "title", "author.name").
				Where(query.EQ("author.name", "ada"), query.BoolColumn("published").EQ(true)).
				OrderBy(query.Desc("id")).
				Limit(10).
				Offset(20),
		},
		{
			name: "select_m2m",
			b:    b.Select("Post", "id").Join("tags").Where(query.In("tags.label", "go", "sql")),
		},
		{
			name: "update_nested",
			b: b.Update("Post").
				Set("title", "x").
				Where(query.Or(query.EQ("id", 1), query.And(query.GT("views", 10), query.ContainsFold("title", "Go")))),
		},
		{
			name: "upsert_returning",
			b:    b.Insert("Tag").Set("id", 1).Set("label", "go").OnConflict("label").DoUpdate().Returning("id"),
		},
		{
			name: "insert_ignore",
			b:    b.Insert("Author").Set("id", 1).Set("name", "ada").OnConflict().DoNothing(),
		},
		{
			name: "delete_unbounded",
			b:    b.Delete("Comment").AllowUnbounded(),
		},
	}
	for _, tt := range tests {
		q, err := tt.b.Build()
		require.NoError(t, err, tt.name)
		for _, p := range profiles {
			t.Run(tt.name+"_"+p.Name, func(t *testing.T) {
				g := goldie.New(t,
					goldie.WithFixtureDir("testdata/golden"),
					goldie.WithNameSuffix(".golden"),
				)
				g.Assert(t, tt.name+"_"+p.Name, render(sql.Compile(q, p)))
			})
		}
	}
}

func render(s *sql.Statement, err error) []byte {
	if err != nil {
		return []byte(fmt.Sprintf("-- error: %v\n", err))
	}
	return []byte(fmt.Sprintf("%s\n-- args: %v\n", s.Query, s.Values))
}

func TestCompile_Deterministic(t *testing.T) {
	t.Parallel()
	snap := testutil.BlogSnapshot(t)
	q, err := query.New(snap).
		Select("Author").
		LeftJoin("posts.comments").
		Columns("id", "name", "posts.title", "posts.comments.body").
		Where(query.Or(query.HasPrefix("name", "a"), query.NotIn("posts.views", 1, 2, 3)), query.NotNull("posts.comments.id")).
		OrderBy(query.Asc("name"), query.Desc("posts.id")).
		Limit(3).
		Build()
	require.NoError(t, err)
	for _, p := range profiles {
		first, err := sql.Compile(q, p)
		require.NoError(t, err)
		for range 20 {
			again, err := sql.Compile(q, p)
			require.NoError(t, err)
			assert.Equal(t, first.Query, again.Query)
			assert.Equal(t, first.Args, again.Args)
		}
		assert.Equal(t, strings.Count(first.Query, "?")+strings.Count(first.Query, "$"), len(first.Args), p.Name)
	}
}

func TestCompile_InjectionSafety(t *testing.T) {
	t.Parallel()
	snap := testutil.BlogSnapshot(t)
	hostile := []string{
		`'; DROP TABLE authors; --`,
		`" OR "1"="1`,
		"`x`; --",
		"Robert'); DELETE FROM posts WHERE ('1' = '1",
		"line\nbreak\x00nul",
		`\' OR 1=1`,
	}
	for _, v := range hostile {
		q, err := query.New(snap).
			Select("Author").
			Where(query.Or(query.EQ("name", v), query.Contains("name", v), query.In("email", v))).
			Build()
		require.NoError(t, err)
		for _, p := range profiles {
			s, err := sql.Compile(q, p)
			require.NoError(t, err)
			assert.NotContains(t, s.Query, v)
			assert.Contains(t, s.Args, v)
		}
	}
}

func TestCompile_QuotesIdentifiers(t *testing.T) {
	t.Parallel()
	m := testutil.BlogModels()
	m[0].Columns[1].Name = `na"me`
	snap, err := schema.NewSnapshot("quoted", m...)
	require.NoError(t, err)
	q, err := query.New(snap).Select("Author", `na"me`).Build()
	require.NoError(t, err)
	s, err := sql.Compile(q, dialect.PostgresProfile)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "na""me" FROM "authors"`, s.Query)
}

func TestCompile_Unsupported(t *testing.T) {
	t.Parallel()
	snap := testutil.BlogSnapshot(t)
	offsetOnly, err := query.New(snap).Select("Post", "id").Offset(5).Build()
	require.NoError(t, err)
	returning, err := query.New(snap).Delete("Post").Where(query.EQ("id", 1)).Returning("id").Build()
	require.NoError(t, err)
	upsert, err := query.New(snap).Insert("Tag").Set("id", 1).Set("label", "go").OnConflict().DoNothing().Build()
	require.NoError(t, err)

	noLimit := dialect.PostgresProfile.Clone()
	noLimit.Name, noLimit.Limit, noLimit.Upsert = "legacy", dialect.LimitNone, dialect.UpsertNone

	tests := []struct {
		q         *query.Query
		p         *dialect.Profile
		construct string
	}{
		{offsetOnly, dialect.MySQLProfile, "OFFSET without LIMIT"},
		{offsetOnly, noLimit, "LIMIT"},
		{returning, dialect.MySQLProfile, "RETURNING"},
		{upsert, noLimit, "upsert"},
	}
	for _, tt := range tests {
		_, err := sql.Compile(tt.q, tt.p)
		var ce *quarry.CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, quarry.CompileUnsupportedConstruct, ce.Kind)
		assert.Equal(t, tt.construct, ce.Construct)
		assert.Equal(t, tt.p.Name, ce.Dialect)
	}

	// PostgreSQL accepts OFFSET alone.
	s, err := sql.Compile(offsetOnly, dialect.PostgresProfile)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id" FROM "posts" OFFSET $1`, s.Query)

	_, err = sql.Compile(&query.Query{}, dialect.PostgresProfile)
	assert.True(t, quarry.IsCompileError(err, quarry.CompileInvalidAST))
}

func TestCompile_Placeholders(t *testing.T) {
	t.Parallel()
	snap := testutil.BlogSnapshot(t)
	q, err := query.New(snap).Select("Post", "id").Where(query.Between("views", 1, 9)).Limit(2).Build()
	require.NoError(t, err)

	mssql := &dialect.Profile{
		Name:        "mssql",
		Quote:       "[",
		QuoteEnd:    "]",
		Placeholder: dialect.PlaceholderAt,
		Limit:       dialect.OffsetFetch,
	}
	s, err := sql.Compile(q, mssql)
	require.NoError(t, err)
	assert.Equal(t, "SELECT [id] FROM [posts] WHERE [views] BETWEEN @p1 AND @p2 OFFSET @p3 ROWS FETCH NEXT @p4 ROWS ONLY", s.Query)
	require.Len(t, s.Args, 4)
	assert.Equal(t, dbsql.Named("p1", int64(1)), s.Args[0])
	assert.Equal(t, dbsql.Named("p3", int64(0)), s.Args[2])
	assert.Equal(t, []field.Value{field.Int(1), field.Int(9), field.Int(0), field.Int(2)}, s.Values)
}

func TestCompile_LikeEscape(t *testing.T) {
	t.Parallel()
	snap := testutil.BlogSnapshot(t)
	q, err := query.New(snap).Select("Post", "id").Where(query.Contains("title", "50%")).Build()
	require.NoError(t, err)

	s, err := sql.Compile(q, dialect.SQLiteProfile)
	require.NoError(t, err)
	assert.Equal(t, "SELECT `id` FROM `posts` WHERE `title` LIKE ? ESCAPE '\\'", s.Query)
	assert.Equal(t, []any{`%50\%%`}, s.Args)

	s, err = sql.Compile(q, dialect.PostgresProfile)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id" FROM "posts" WHERE "title" LIKE $1`, s.Query)
}

func TestCompile_EmptyIn(t *testing.T) {
	t.Parallel()
	snap := testutil.BlogSnapshot(t)
	q, err := query.New(snap).Select("Post", "id").Where(query.In("id"), query.Not(query.NotIn("id"))).Build()
	require.NoError(t, err)
	s, err := sql.Compile(q, dialect.PostgresProfile)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id" FROM "posts" WHERE 1 = 0 AND NOT (1 = 1)`, s.Query)
	assert.Empty(t, s.Args)
}

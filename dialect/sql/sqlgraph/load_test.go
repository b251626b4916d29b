package sqlgraph_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/quarry/dialect"
	"github.com/syssam/quarry/dialect/sql"
	"github.com/syssam/quarry/dialect/sql/schema"
	"github.com/syssam/quarry/dialect/sql/sqlgraph"
	"github.com/syssam/quarry/internal/testutil"
	"github.com/syssam/quarry/query"
)

func newMock(t *testing.T) (*sql.Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	drv := sql.OpenDB(dialect.Postgres, db)
	return sql.NewExecutor(drv, dialect.PostgresProfile, sql.WithExecLogger(testutil.NewTestLogger(t))), mock
}

var postColumns = []string{"id", "title", "author_id", "published", "views", "created_at"}

func TestLoad_AuthorPosts(t *testing.T) {
	snap := testutil.BlogSnapshot(t)
	exec, mock := newMock(t)
	plan, err := sqlgraph.PlanEagerLoad(snap, selectAll(t, snap, "Author"), "posts")
	require.NoError(t, err)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(`SELECT "id", "name", "email" FROM "authors"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}).
			AddRow(int64(1), "ada", nil).
			AddRow(int64(2), "grace", nil).
			AddRow(int64(3), "edsger", nil))
	mock.ExpectQuery(`SELECT "id", "title", "author_id", "published", "views", "created_at" FROM "posts" WHERE "author_id" IN ($1, $2, $3)`).
		WithArgs(int64(1), int64(2), int64(3)).
		WillReturnRows(sqlmock.NewRows(postColumns).
			AddRow(int64(10), "engines", int64(1), true, int64(5), now).
			AddRow(int64(11), "cobol", int64(2), true, int64(3), now).
			AddRow(int64(12), "notes", int64(1), false, int64(0), now))

	authors, err := sqlgraph.Load(context.Background(), exec, plan)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet(), "one secondary query for the level")

	require.Len(t, authors, 3)
	titles := func(n *sqlgraph.Node) []string {
		var out []string
		for _, p := range n.Edge("posts") {
			out = append(out, p.Values["title"].(string))
		}
		return out
	}
	assert.Equal(t, []string{"engines", "notes"}, titles(authors[0]))
	assert.Equal(t, []string{"cobol"}, titles(authors[1]))
	posts, ok := authors[2].Edges["posts"]
	require.True(t, ok, "a parent without children has the relation")
	assert.NotNil(t, posts)
	assert.Empty(t, posts)
	assert.Equal(t, "Post", authors[0].Edge("posts")[0].Model.Name)
}

func TestLoad_JoinsAndBatches(t *testing.T) {
	snap := testutil.BlogSnapshot(t)
	exec, mock := newMock(t)
	mock.MatchExpectationsInOrder(false)
	q, err := query.New(snap).Select("Post", "id", "title").OrderBy(query.Asc("id")).Build()
	require.NoError(t, err)
	plan, err := sqlgraph.PlanEagerLoad(snap, q, "author", "comments", "tags")
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT "posts"."id", "posts"."title", "author"."id" AS "author.id", "author"."name" AS "author.name", "author"."email" AS "author.email" FROM "posts" LEFT JOIN "authors" AS "author" ON "posts"."author_id" = "author"."id" ORDER BY "posts"."id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author.id", "author.name", "author.email"}).
			AddRow(int64(1), "engines", int64(1), "ada", "ada@example.com").
			AddRow(int64(2), "orphan", nil, nil, nil))
	mock.ExpectQuery(`SELECT "id", "post_id", "body" FROM "comments" WHERE "post_id" IN ($1, $2)`).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id", "body"}).
			AddRow(int64(100), int64(2), "first"))
	mock.ExpectQuery(`SELECT "tags"."id", "tags"."label", "Post.tags"."post_id" AS "Post.tags.post_id" FROM "tags" JOIN "posts_tags" AS "Post.tags" ON "tags"."id" = "Post.tags"."tag_id" WHERE "Post.tags"."post_id" IN ($1, $2)`).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "label", "Post.tags.post_id"}).
			AddRow(int64(7), "go", int64(1)).
			AddRow(int64(8), "sql", int64(1)).
			AddRow(int64(7), "go", int64(2)))

	posts, err := sqlgraph.Load(context.Background(), exec, plan)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, posts, 2)

	engines, orphan := posts[0], posts[1]
	assert.Equal(t, map[string]any{"id": int64(1), "title": "engines"}, engines.Values)
	require.Len(t, engines.Edge("author"), 1)
	assert.Equal(t, "ada", engines.Edge("author")[0].Values["name"])
	assert.Empty(t, engines.Edge("comments"))
	require.Len(t, engines.Edge("tags"), 2)
	assert.Equal(t, map[string]any{"id": int64(8), "label": "sql"}, engines.Edge("tags")[1].Values)

	assert.NotNil(t, orphan.Edge("author"))
	assert.Empty(t, orphan.Edge("author"))
	require.Len(t, orphan.Edge("comments"), 1)
	assert.Equal(t, "first", orphan.Edge("comments")[0].Values["body"])
	require.Len(t, orphan.Edge("tags"), 1)
}

func TestLoad_SkipsEmptyLevels(t *testing.T) {
	snap := testutil.BlogSnapshot(t)
	exec, mock := newMock(t)
	plan, err := sqlgraph.PlanEagerLoad(snap, selectAll(t, snap, "Author"), "posts.comments")
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT "id", "name", "email" FROM "authors"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}).AddRow(int64(1), "ada", nil))
	mock.ExpectQuery(`SELECT "id", "title", "author_id", "published", "views", "created_at" FROM "posts" WHERE "author_id" IN ($1)`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(postColumns))

	authors, err := sqlgraph.Load(context.Background(), exec, plan)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet(), "no comments query without posts")
	require.Len(t, authors, 1)
	assert.Empty(t, authors[0].Edge("posts"))
}

func TestLoad_Error(t *testing.T) {
	snap := testutil.BlogSnapshot(t)
	exec, mock := newMock(t)
	plan, err := sqlgraph.PlanEagerLoad(snap, selectAll(t, snap, "Author"), "posts")
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT "id", "name", "email" FROM "authors"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}).AddRow(int64(1), "ada", nil))
	mock.ExpectQuery(`SELECT "id", "title", "author_id", "published", "views", "created_at" FROM "posts" WHERE "author_id" IN ($1)`).
		WillReturnError(errors.New("connection reset"))

	_, err = sqlgraph.Load(context.Background(), exec, plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `load "posts"`)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestLoad_SQLite(t *testing.T) {
	snap := testutil.BlogSnapshot(t)
	drv, err := sql.Open(dialect.SQLite, "file:"+filepath.Join(t.TempDir(), "blog.db")+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	drv.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { drv.Close() })
	ctx := context.Background()

	plan, err := schema.Diff(nil, snap)
	require.NoError(t, err)
	stmts, err := plan.SQL(dialect.SQLiteProfile)
	require.NoError(t, err)
	for _, s := range stmts {
		require.NoError(t, drv.Exec(ctx, s, []any{}, nil), s)
	}
	exec := sql.NewExecutor(drv, dialect.SQLiteProfile)
	b := query.New(snap)
	inserts := []*query.Builder{
		b.Insert("Author").Set("id", 1).Set("name", "ada"),
		b.Insert("Author").Set("id", 2).Set("name", "grace"),
		b.Insert("Post").Set("id", 10).Set("title", "engines").Set("author_id", 1),
		b.Insert("Post").Set("id", 11).Set("title", "notes").Set("author_id", 1),
		b.Insert("Comment").Set("id", 100).Set("post_id", 11).Set("body", "nice"),
		b.Insert("Tag").Set("id", 7).Set("label", "go"),
	}
	for _, ib := range inserts {
		q, err := ib.Build()
		require.NoError(t, err)
		_, err = exec.Exec(ctx, q)
		require.NoError(t, err)
	}
	require.NoError(t, drv.Exec(ctx, "INSERT INTO `posts_tags` (`post_id`, `tag_id`) VALUES (10, 7), (11, 7)", []any{}, nil))

	root, err := b.Select("Author").OrderBy(query.Asc("id")).Build()
	require.NoError(t, err)
	lp, err := sqlgraph.PlanEagerLoad(snap, root, "posts.comments", "posts.tags", "posts.author")
	require.NoError(t, err)
	authors, err := sqlgraph.Load(ctx, exec, lp)
	require.NoError(t, err)

	require.Len(t, authors, 2)
	ada, grace := authors[0], authors[1]
	assert.Empty(t, grace.Edge("posts"))
	posts := ada.Edge("posts")
	require.Len(t, posts, 2)
	for _, p := range posts {
		require.Len(t, p.Edge("author"), 1)
		assert.Equal(t, "ada", p.Edge("author")[0].Values["name"])
		require.Len(t, p.Edge("tags"), 1)
		assert.Equal(t, "go", p.Edge("tags")[0].Values["label"])
	}
	byTitle := make(map[string]*sqlgraph.Node)
	for _, p := range posts {
		byTitle[p.Values["title"].(string)] = p
	}
	assert.Empty(t, byTitle["engines"].Edge("comments"))
	require.Len(t, byTitle["notes"].Edge("comments"), 1)
	assert.Equal(t, "nice", byTitle["notes"].Edge("comments")[0].Values["body"])
}

func TestMerge(t *testing.T) {
	type author struct {
		ID    int64
		Posts []string
	}
	type post struct {
		AuthorID int64
		Title    string
	}
	authors := []*author{{ID: 3}, {ID: 1}, {ID: 2}}
	posts := []post{{1, "a"}, {3, "b"}, {1, "c"}, {9, "dangling"}}

	sqlgraph.Merge(authors, posts,
		func(a *author) int64 { return a.ID },
		func(p post) int64 { return p.AuthorID },
		func(a *author, ps []post) {
			a.Posts = []string{}
			for _, p := range ps {
				a.Posts = append(a.Posts, p.Title)
			}
		},
	)
	assert.Equal(t, []string{"b"}, authors[0].Posts)
	assert.Equal(t, []string{"a", "c"}, authors[1].Posts)
	assert.NotNil(t, authors[2].Posts)
	assert.Empty(t, authors[2].Posts)
}

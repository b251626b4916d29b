// Package sql compiles built queries to SQL and runs them over database/sql.
//
// # Compilation
//
// Compile lowers a *query.Query to a Statement for a dialect profile. Values
// are always bound as parameters and identifiers are quoted through the
// profile, so the output is safe for any input and byte-identical across
// runs:
//
//	q, err := query.New(snap).
//		Select("Post", "id", "title").
//		Where(query.EQ("published", true)).
//		Limit(10).
//		Build()
//	...
//	s, err := sql.Compile(q, dialect.PostgresProfile)
//	// s.Query: SELECT "id", "title" FROM "posts" WHERE "published" = $1 LIMIT $2
//	// s.Args:  [true 10]
//
// Constructs the profile does not advertise, such as RETURNING on MySQL,
// fail with a *quarry.CompileError.
//
// # Execution
//
// Driver adapts a *sql.DB to dialect.Driver. Executor compiles queries for
// one profile, optionally through a StatementCache, and runs them on any
// dialect.ExecQuerier:
//
//	drv, err := sql.Open(dialect.SQLite, "file:blog.db")
//	...
//	exec := sql.NewExecutor(sql.NewDebugDriver(drv, logger), dialect.SQLiteProfile)
//	rows, err := exec.Query(ctx, q)
//
// StatsDriver and DebugDriver wrap a driver with statement statistics and
// logging. Constraint violations reported by the PostgreSQL, MySQL and
// SQLite drivers are wrapped in *quarry.ConstraintError.
package sql

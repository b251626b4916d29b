// Package dialect describes the SQL dialects quarry compiles for.
//
// A dialect is described by a capability Profile: identifier quoting,
// parameter placeholder style, pagination and upsert syntax, and flags for
// optional features such as RETURNING or deferrable constraints. The SQL
// compiler and the DDL renderer consult the profile and fail with an
// unsupported-construct error instead of degrading silently.
//
// # Built-in Profiles
//
//	dialect.PostgresProfile // "postgres": $n placeholders, RETURNING, ON CONFLICT
//	dialect.MySQLProfile    // "mysql":    ? placeholders, ON DUPLICATE KEY UPDATE
//	dialect.SQLiteProfile   // "sqlite3":  ? placeholders, RETURNING, ON CONFLICT
//
// Custom profiles are added with Register and found with Lookup, which also
// accepts common driver names such as "pgx" or "sqlite".
//
// # Driver Interface
//
// The package also defines the Driver interface implemented by dialect/sql
// for executing compiled statements:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// # Sub-packages
//
//   - dialect/sql: SQL compiler, driver and executor
//   - dialect/sql/schema: migration planner and DDL rendering
//   - dialect/sql/sqlgraph: eager-load planner
package dialect

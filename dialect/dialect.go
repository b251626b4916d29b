package dialect

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/syssam/quarry/schema/field"
)

// Dialect names of the built-in profiles.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite3"
	Postgres = "postgres"
)

// ExecQuerier wraps the 2 database operations.
type ExecQuerier interface {
	// Exec executes a query that does not return records. For example, in SQL, INSERT or UPDATE.
	// It scans the result into the pointer v. For SQL drivers, it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for executing
// compiled statements.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query operations in transaction.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// PlaceholderStyle defines how statement parameters are written.
type PlaceholderStyle uint8

const (
	// PlaceholderQuestion uses ? for every parameter (MySQL, SQLite).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar uses $1, $2, ... (PostgreSQL).
	PlaceholderDollar
	// PlaceholderColon uses named :p1, :p2, ... parameters.
	PlaceholderColon
	// PlaceholderAt uses named @p1, @p2, ... parameters.
	PlaceholderAt
)

// Named reports if parameters are bound by name.
func (s PlaceholderStyle) Named() bool {
	return s == PlaceholderColon || s == PlaceholderAt
}

// LimitStyle defines how a row limit and offset are written.
type LimitStyle uint8

const (
	// LimitNone means the dialect has no pagination syntax.
	LimitNone LimitStyle = iota
	// LimitOffset writes LIMIT n OFFSET m.
	LimitOffset
	// OffsetFetch writes OFFSET m ROWS FETCH NEXT n ROWS ONLY.
	OffsetFetch
)

// UpsertStyle defines how insert conflicts are resolved.
type UpsertStyle uint8

const (
	// UpsertNone means the dialect has no upsert syntax.
	UpsertNone UpsertStyle = iota
	// UpsertOnConflict writes ON CONFLICT (cols) DO UPDATE SET / DO NOTHING.
	UpsertOnConflict
	// UpsertOnDuplicateKey writes ON DUPLICATE KEY UPDATE.
	UpsertOnDuplicateKey
)

// Profile is the capability profile of a SQL dialect. It is pure data: the
// compilers consult it and fail on constructs it does not advertise.
type Profile struct {
	// Name is the dialect identifier, e.g. "postgres".
	Name string

	// Quote and QuoteEnd delimit identifiers. A QuoteEnd inside an
	// identifier is escaped by doubling it.
	Quote    string
	QuoteEnd string

	Placeholder PlaceholderStyle
	Limit       LimitStyle
	Upsert      UpsertStyle

	// OffsetRequiresLimit is set when OFFSET is only valid after LIMIT.
	OffsetRequiresLimit bool
	// Returning reports support for INSERT/UPDATE/DELETE ... RETURNING.
	Returning bool
	// ILike reports support for the case-insensitive ILIKE operator.
	ILike bool
	// LikeEscape is set when LIKE has no default escape character, so
	// patterns holding a backslash need an explicit ESCAPE clause.
	LikeEscape bool
	// Deferrable reports support for DEFERRABLE INITIALLY DEFERRED foreign keys.
	Deferrable bool
	// AlterColumn reports support for changing a column in place.
	AlterColumn bool
	// AddConstraint reports support for adding and dropping foreign keys on
	// existing tables.
	AddConstraint bool
	// IfExists reports support for DROP TABLE IF EXISTS.
	IfExists bool
	// CreateIndexIfNotExists reports support for CREATE INDEX IF NOT EXISTS.
	CreateIndexIfNotExists bool
	// ModifyColumn is set when columns are changed with MODIFY COLUMN and a
	// full definition instead of ALTER COLUMN clauses.
	ModifyColumn bool
	// DropIndexOn is set when DROP INDEX names the table: DROP INDEX i ON t.
	DropIndexOn bool
	// DropForeignKey is the keyword naming a foreign key in
	// ALTER TABLE ... DROP. Empty means CONSTRAINT.
	DropForeignKey string
	// BackslashEscapes is set when backslash is an escape character in
	// string literals.
	BackslashEscapes bool

	// Types maps logical type kinds to SQL type names. Varchar and decimal
	// names are followed by their size, precision and scale.
	Types map[field.Kind]string
}

// QuoteIdent quotes an identifier, escaping embedded quote characters.
func (p *Profile) QuoteIdent(ident string) string {
	end := p.QuoteEnd
	if end == "" {
		end = p.Quote
	}
	if end != "" {
		ident = strings.ReplaceAll(ident, end, end+end)
	}
	return p.Quote + ident + end
}

// Param returns the placeholder of the n-th parameter, starting at 1.
func (p *Profile) Param(n int) string {
	switch p.Placeholder {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(n)
	case PlaceholderColon:
		return ":" + ParamName(n)
	case PlaceholderAt:
		return "@" + ParamName(n)
	default:
		return "?"
	}
}

// ParamName returns the name bound to the n-th parameter of dialects with
// named placeholders.
func ParamName(n int) string {
	return "p" + strconv.Itoa(n)
}

// ColumnType returns the SQL spelling of a logical type.
func (p *Profile) ColumnType(t field.Type) (string, error) {
	name, ok := p.Types[t.Kind]
	if !ok {
		return "", fmt.Errorf("dialect: %s has no type for %s", p.Name, t.Kind)
	}
	switch t.Kind {
	case field.KindVarchar:
		return fmt.Sprintf("%s(%d)", name, t.Size), nil
	case field.KindDecimal:
		return fmt.Sprintf("%s(%d,%d)", name, t.Precision, t.Scale), nil
	default:
		return name, nil
	}
}

// Validate reports if the profile is complete enough to compile with.
func (p *Profile) Validate() error {
	switch {
	case p == nil:
		return fmt.Errorf("dialect: nil profile")
	case p.Name == "":
		return fmt.Errorf("dialect: profile has no name")
	case p.Quote == "":
		return fmt.Errorf("dialect: profile %s has no identifier quote", p.Name)
	case p.Placeholder > PlaceholderAt:
		return fmt.Errorf("dialect: profile %s has unknown placeholder style %d", p.Name, p.Placeholder)
	case p.Limit > OffsetFetch:
		return fmt.Errorf("dialect: profile %s has unknown limit style %d", p.Name, p.Limit)
	case p.Upsert > UpsertOnDuplicateKey:
		return fmt.Errorf("dialect: profile %s has unknown upsert style %d", p.Name, p.Upsert)
	}
	return nil
}

// Clone returns a copy of the profile that can be modified freely.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Types = make(map[field.Kind]string, len(p.Types))
	for k, v := range p.Types {
		c.Types[k] = v
	}
	return &c
}

var (
	// PostgresProfile is the PostgreSQL capability profile.
	PostgresProfile = &Profile{
		Name:                   Postgres,
		Quote:                  `"`,
		Placeholder:            PlaceholderDollar,
		Limit:                  LimitOffset,
		Upsert:                 UpsertOnConflict,
		Returning:              true,
		ILike:                  true,
		Deferrable:             true,
		AlterColumn:            true,
		AddConstraint:          true,
		IfExists:               true,
		CreateIndexIfNotExists: true,
		Types: map[field.Kind]string{
			field.KindInt:     "integer",
			field.KindBigInt:  "bigint",
			field.KindFloat:   "double precision",
			field.KindDecimal: "numeric",
			field.KindText:    "text",
			field.KindVarchar: "varchar",
			field.KindBool:    "boolean",
			field.KindTime:    "timestamp with time zone",
			field.KindDate:    "date",
			field.KindBytes:   "bytea",
			field.KindUUID:    "uuid",
			field.KindJSON:    "jsonb",
		},
	}

	// MySQLProfile is the MySQL capability profile.
	MySQLProfile = &Profile{
		Name:                MySQL,
		Quote:               "`",
		Placeholder:         PlaceholderQuestion,
		Limit:               LimitOffset,
		Upsert:              UpsertOnDuplicateKey,
		OffsetRequiresLimit: true,
		AlterColumn:         true,
		AddConstraint:       true,
		IfExists:            true,
		ModifyColumn:        true,
		DropIndexOn:         true,
		DropForeignKey:      "FOREIGN KEY",
		BackslashEscapes:    true,
		Types: map[field.Kind]string{
			field.KindInt:     "int",
			field.KindBigInt:  "bigint",
			field.KindFloat:   "double",
			field.KindDecimal: "decimal",
			field.KindText:    "longtext",
			field.KindVarchar: "varchar",
			field.KindBool:    "boolean",
			field.KindTime:    "timestamp(6)",
			field.KindDate:    "date",
			field.KindBytes:   "longblob",
			field.KindUUID:    "char(36)",
			field.KindJSON:    "json",
		},
	}

	// SQLiteProfile is the SQLite capability profile. Type names are chosen
	// so that they parse back to the same logical types.
	SQLiteProfile = &Profile{
		Name:                   SQLite,
		Quote:                  "`",
		Placeholder:            PlaceholderQuestion,
		Limit:                  LimitOffset,
		Upsert:                 UpsertOnConflict,
		OffsetRequiresLimit:    true,
		Returning:              true,
		LikeEscape:             true,
		IfExists:               true,
		CreateIndexIfNotExists: true,
		Types: map[field.Kind]string{
			field.KindInt:     "integer",
			field.KindBigInt:  "bigint",
			field.KindFloat:   "real",
			field.KindDecimal: "decimal",
			field.KindText:    "text",
			field.KindVarchar: "varchar",
			field.KindBool:    "boolean",
			field.KindTime:    "datetime",
			field.KindDate:    "date",
			field.KindBytes:   "blob",
			field.KindUUID:    "uuid",
			field.KindJSON:    "json",
		},
	}
)

var registry = struct {
	sync.RWMutex
	profiles map[string]*Profile
	aliases  map[string]string
}{
	profiles: map[string]*Profile{
		Postgres: PostgresProfile,
		MySQL:    MySQLProfile,
		SQLite:   SQLiteProfile,
	},
	aliases: map[string]string{
		"postgresql": Postgres,
		"pgx":        Postgres,
		"sqlite":     SQLite,
		"mariadb":    MySQL,
	},
}

// Register adds a custom profile. Built-in profiles cannot be replaced.
func Register(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	registry.Lock()
	defer registry.Unlock()
	switch p.Name {
	case Postgres, MySQL, SQLite:
		return fmt.Errorf("dialect: cannot replace built-in profile %q", p.Name)
	}
	registry.profiles[p.Name] = p.Clone()
	return nil
}

// Lookup returns the profile registered under a dialect or driver name.
func Lookup(name string) (*Profile, bool) {
	registry.RLock()
	defer registry.RUnlock()
	name = strings.ToLower(name)
	if alias, ok := registry.aliases[name]; ok {
		name = alias
	}
	p, ok := registry.profiles[name]
	return p, ok
}

// Names returns the names of every registered profile, sorted.
func Names() []string {
	registry.RLock()
	defer registry.RUnlock()
	names := make([]string, 0, len(registry.profiles))
	for name := range registry.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBuiltin reports if the name refers to one of the built-in profiles.
func IsBuiltin(name string) bool {
	return slices.Contains([]string{Postgres, MySQL, SQLite}, name)
}

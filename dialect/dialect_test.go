package dialect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/quarry/dialect"
	"github.com/syssam/quarry/schema/field"
)

func TestProfile_QuoteIdent(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `"users"`, dialect.PostgresProfile.QuoteIdent("users"))
	assert.Equal(t, `"a""b"`, dialect.PostgresProfile.QuoteIdent(`a"b`))
	assert.Equal(t, "`a``b`", dialect.MySQLProfile.QuoteIdent("a`b"))

	brackets := &dialect.Profile{Name: "mssql", Quote: "[", QuoteEnd: "]"}
	assert.Equal(t, "[a]]b]", brackets.QuoteIdent("a]b"))
}

func TestProfile_Param(t *testing.T) {
	t.Parallel()
	tests := []struct {
		style dialect.PlaceholderStyle
		want  string
	}{
		{dialect.PlaceholderQuestion, "?"},
		{dialect.PlaceholderDollar, "$3"},
		{dialect.PlaceholderColon, ":p3"},
		{dialect.PlaceholderAt, "@p3"},
	}
	for _, tt := range tests {
		p := &dialect.Profile{Name: "x", Quote: `"`, Placeholder: tt.style}
		assert.Equal(t, tt.want, p.Param(3))
	}
	assert.True(t, dialect.PlaceholderAt.Named())
	assert.False(t, dialect.PlaceholderDollar.Named())
}

func TestProfile_ColumnType(t *testing.T) {
	t.Parallel()
	typ, err := dialect.PostgresProfile.ColumnType(field.TypeVarchar(20))
	require.NoError(t, err)
	assert.Equal(t, "varchar(20)", typ)

	typ, err = dialect.MySQLProfile.ColumnType(field.TypeDecimal(10, 2))
	require.NoError(t, err)
	assert.Equal(t, "decimal(10,2)", typ)

	typ, err = dialect.PostgresProfile.ColumnType(field.TypeJSON())
	require.NoError(t, err)
	assert.Equal(t, "jsonb", typ)

	// SQLite type names read back as the same logical type.
	for _, want := range []field.Type{field.TypeInt(), field.TypeBigInt(), field.TypeFloat(), field.TypeDecimal(8, 3),
		field.TypeText(), field.TypeVarchar(9), field.TypeBool(), field.TypeTime(), field.TypeDate(),
		field.TypeBytes(), field.TypeUUID(), field.TypeJSON()} {
		name, err := dialect.SQLiteProfile.ColumnType(want)
		require.NoError(t, err)
		got, err := field.ParseType(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err = (&dialect.Profile{Name: "empty"}).ColumnType(field.TypeInt())
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	p, ok := dialect.Lookup("pgx")
	require.True(t, ok)
	assert.Same(t, dialect.PostgresProfile, p)
	p, ok = dialect.Lookup("SQLite")
	require.True(t, ok)
	assert.Equal(t, dialect.SQLite, p.Name)
	_, ok = dialect.Lookup("oracle")
	assert.False(t, ok)

	assert.Error(t, dialect.Register(&dialect.Profile{Name: dialect.Postgres, Quote: `"`}))
	assert.Error(t, dialect.Register(&dialect.Profile{Name: "noquote"}))

	custom := dialect.PostgresProfile.Clone()
	custom.Name = "cockroach"
	custom.Deferrable = false
	require.NoError(t, dialect.Register(custom))
	custom.Returning = false // the registry holds its own copy

	got, ok := dialect.Lookup("cockroach")
	require.True(t, ok)
	assert.True(t, got.Returning)
	assert.False(t, got.Deferrable)
	assert.Contains(t, dialect.Names(), "cockroach")
	assert.False(t, dialect.IsBuiltin("cockroach"))
	assert.True(t, dialect.IsBuiltin(dialect.MySQL))
}

package sql

import (
	"database/sql"
	"strings"

	"github.com/syssam/quarry"
	"github.com/syssam/quarry/dialect"
	"github.com/syssam/quarry/schema/field"
)

// Statement is a compiled statement: SQL text and the parameters bound to
// its placeholders, in order.
type Statement struct {
	Query string
	// Args are the driver arguments. Dialects with named placeholders get
	// sql.NamedArg values.
	Args []any
	// Values are the typed parameters Args were derived from.
	Values []field.Value
}

// Builder is a low-level SQL string builder bound to a dialect profile.
// Identifiers are quoted through the profile and values are only ever
// written as placeholders. The first recorded error is kept.
type Builder struct {
	sb     strings.Builder
	p      *dialect.Profile
	values []field.Value
	err    error
}

// NewBuilder returns a builder for a dialect profile.
func NewBuilder(p *dialect.Profile) *Builder {
	return &Builder{p: p}
}

// Profile returns the dialect profile of the builder.
func (b *Builder) Profile() *dialect.Profile { return b.p }

// WriteString appends SQL text.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// WriteByte appends a single byte.
func (b *Builder) WriteByte(c byte) *Builder {
	b.sb.WriteByte(c)
	return b
}

// Pad appends a space.
func (b *Builder) Pad() *Builder { return b.WriteByte(' ') }

// Ident appends a quoted identifier.
func (b *Builder) Ident(name string) *Builder {
	return b.WriteString(b.p.QuoteIdent(name))
}

// Qualified appends a quoted qualifier.column identifier. An empty
// qualifier writes the column alone.
func (b *Builder) Qualified(qualifier, column string) *Builder {
	if qualifier != "" {
		b.Ident(qualifier).WriteByte('.')
	}
	return b.Ident(column)
}

// IdentComma appends a comma separated list of quoted identifiers.
func (b *Builder) IdentComma(names ...string) *Builder {
	for i, n := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(n)
	}
	return b
}

// Arg binds a value and appends its placeholder.
func (b *Builder) Arg(v field.Value) *Builder {
	b.values = append(b.values, v)
	return b.WriteString(b.p.Param(len(b.values)))
}

// Args binds values and appends their comma separated placeholders.
func (b *Builder) Args(vs ...field.Value) *Builder {
	for i, v := range vs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Arg(v)
	}
	return b
}

// Wrap appends the output of f in parentheses.
func (b *Builder) Wrap(f func(*Builder)) *Builder {
	b.WriteByte('(')
	f(b)
	return b.WriteByte(')')
}

// Unsupported records that the dialect lacks a construct.
func (b *Builder) Unsupported(construct string) *Builder {
	return b.AddError(quarry.NewUnsupportedError(b.p.Name, construct))
}

// AddError records an error. Only the first one is kept.
func (b *Builder) AddError(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Err returns the first recorded error.
func (b *Builder) Err() error { return b.err }

// Len returns the length of the SQL text written so far.
func (b *Builder) Len() int { return b.sb.Len() }

// String returns the SQL text.
func (b *Builder) String() string { return b.sb.String() }

// Statement returns the compiled statement, or the first recorded error.
func (b *Builder) Statement() (*Statement, error) {
	if b.err != nil {
		return nil, b.err
	}
	return newStatement(b.p, b.sb.String(), b.values), nil
}

// newStatement derives the driver arguments of values for a profile.
func newStatement(p *dialect.Profile, query string, values []field.Value) *Statement {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v.Arg()
		if p.Placeholder.Named() {
			args[i] = sql.Named(dialect.ParamName(i+1), args[i])
		}
	}
	return &Statement{Query: query, Args: args, Values: values}
}

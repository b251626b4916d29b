package sql

import (
	"fmt"
	"strings"

	"github.com/syssam/quarry"
	"github.com/syssam/quarry/dialect"
	"github.com/syssam/quarry/query"
	"github.com/syssam/quarry/schema/field"
)

// Compile lowers a built query to a parameterized statement for a dialect.
// The output depends only on the query and the profile: compiling twice
// yields byte-identical SQL and the same parameters.
//
// Constructs the profile does not advertise fail with a CompileError of
// kind UnsupportedConstruct.
func Compile(q *query.Query, p *dialect.Profile) (*Statement, error) {
	if err := p.Validate(); err != nil {
		return nil, &quarry.CompileError{Kind: quarry.CompileInvalidAST, Message: err.Error()}
	}
	if q == nil || q.Model() == nil {
		return nil, &quarry.CompileError{Kind: quarry.CompileInvalidAST, Dialect: p.Name, Message: "query was not built"}
	}
	c := &compiler{Builder: NewBuilder(p), q: q}
	switch q.Op() {
	case query.OpSelect:
		c.selectStmt()
	case query.OpInsert:
		c.insertStmt()
	case query.OpUpdate:
		c.updateStmt()
	case query.OpDelete:
		c.deleteStmt()
	default:
		return nil, &quarry.CompileError{Kind: quarry.CompileInvalidAST, Dialect: p.Name, Message: fmt.Sprintf("unknown operation %s", q.Op())}
	}
	return c.Statement()
}

// MustCompile is like Compile but panics on error.
func MustCompile(q *query.Query, p *dialect.Profile) *Statement {
	s, err := Compile(q, p)
	if err != nil {
		panic(err)
	}
	return s
}

type compiler struct {
	*Builder
	q *query.Query
	// qualify is set when columns are written with their table or
	// relation alias.
	qualify bool
}

func (c *compiler) selectStmt() {
	q := c.q
	joins := q.Joins()
	c.qualify = len(joins) > 0
	c.WriteString("SELECT ")
	for i, ref := range q.Columns() {
		if i > 0 {
			c.WriteString(", ")
		}
		c.column(ref)
		if ref.Path != "" {
			c.WriteString(" AS ").Ident(ref.String())
		}
	}
	c.WriteString(" FROM ").Ident(q.Model().Table)
	for _, j := range joins {
		c.join(j)
	}
	c.where()
	if order := q.OrderBy(); len(order) > 0 {
		c.WriteString(" ORDER BY ")
		for i, o := range order {
			if i > 0 {
				c.WriteString(", ")
			}
			c.column(o.Column)
			if o.Desc {
				c.WriteString(" DESC")
			}
		}
	}
	c.paginate()
}

// join writes the hops of a relation join. The target is aliased by its
// relation path and a join table by ThroughAlias.
func (c *compiler) join(j query.Join) {
	from := c.alias(j.Parent)
	for i, l := range j.Links {
		to := j.Path
		if i < len(j.Links)-1 {
			to = ThroughAlias(j)
		}
		c.Pad().WriteString(j.Kind.String()).Pad().Ident(l.To).WriteString(" AS ").Ident(to).WriteString(" ON ")
		for k := range l.FromColumns {
			if k > 0 {
				c.WriteString(" AND ")
			}
			c.Qualified(from, l.FromColumns[k]).WriteString(" = ").Qualified(to, l.ToColumns[k])
		}
		from = to
	}
}

// ThroughAlias returns the alias of the join table of a many-to-many join.
func ThroughAlias(j query.Join) string {
	return j.Path + "#" + j.Links[0].To
}

func (c *compiler) alias(path string) string {
	if path == "" {
		return c.q.Model().Table
	}
	return path
}

func (c *compiler) column(ref query.ColumnRef) {
	if !c.qualify {
		c.Ident(ref.Column)
		return
	}
	c.Qualified(c.alias(ref.Path), ref.Column)
}

func (c *compiler) paginate() {
	limit, hasLimit := c.q.Limit()
	offset, hasOffset := c.q.Offset()
	if !hasLimit && !hasOffset {
		return
	}
	switch c.p.Limit {
	case dialect.LimitOffset:
		if hasOffset && !hasLimit && c.p.OffsetRequiresLimit {
			c.Unsupported("OFFSET without LIMIT")
			return
		}
		if hasLimit {
			c.WriteString(" LIMIT ").Arg(field.Int(limit))
		}
		if hasOffset {
			c.WriteString(" OFFSET ").Arg(field.Int(offset))
		}
	case dialect.OffsetFetch:
		c.WriteString(" OFFSET ").Arg(field.Int(offset)).WriteString(" ROWS")
		if hasLimit {
			c.WriteString(" FETCH NEXT ").Arg(field.Int(limit)).WriteString(" ROWS ONLY")
		}
	default:
		c.Unsupported("LIMIT")
	}
}

func (c *compiler) insertStmt() {
	q := c.q
	set := q.Assignments()
	columns := make([]string, len(set))
	values := make([]field.Value, len(set))
	for i, a := range set {
		columns[i], values[i] = a.Column, a.Value
	}
	c.WriteString("INSERT INTO ").Ident(q.Model().Table).Pad().
		Wrap(func(b *Builder) { b.IdentComma(columns...) }).
		WriteString(" VALUES ").
		Wrap(func(b *Builder) { b.Args(values...) })
	if conflict := q.Conflict(); conflict != nil {
		c.upsert(conflict)
	}
	c.returning()
}

func (c *compiler) upsert(conflict *query.Conflict) {
	switch c.p.Upsert {
	case dialect.UpsertOnConflict:
		c.WriteString(" ON CONFLICT ").Wrap(func(b *Builder) { b.IdentComma(conflict.Columns...) })
		if conflict.DoNothing {
			c.WriteString(" DO NOTHING")
			return
		}
		c.WriteString(" DO UPDATE SET ")
		for i, col := range conflict.Update {
			if i > 0 {
				c.WriteString(", ")
			}
			c.Ident(col).WriteString(" = EXCLUDED.").Ident(col)
		}
	case dialect.UpsertOnDuplicateKey:
		c.WriteString(" ON DUPLICATE KEY UPDATE ")
		if conflict.DoNothing {
			// A no-op assignment keeps the existing row.
			col := conflict.Columns[0]
			c.Ident(col).WriteString(" = ").Ident(col)
			return
		}
		for i, col := range conflict.Update {
			if i > 0 {
				c.WriteString(", ")
			}
			c.Ident(col).WriteString(" = VALUES(").Ident(col).WriteByte(')')
		}
	default:
		c.Unsupported("upsert")
	}
}

func (c *compiler) updateStmt() {
	q := c.q
	c.WriteString("UPDATE ").Ident(q.Model().Table).WriteString(" SET ")
	for i, a := range q.Assignments() {
		if i > 0 {
			c.WriteString(", ")
		}
		c.Ident(a.Column).WriteString(" = ").Arg(a.Value)
	}
	c.where()
	c.returning()
}

func (c *compiler) deleteStmt() {
	c.WriteString("DELETE FROM ").Ident(c.q.Model().Table)
	c.where()
	c.returning()
}

func (c *compiler) returning() {
	columns := c.q.Returning()
	if len(columns) == 0 {
		return
	}
	if !c.p.Returning {
		c.Unsupported("RETURNING")
		return
	}
	c.WriteString(" RETURNING ").IdentComma(columns...)
}

func (c *compiler) where() {
	p := c.q.Where()
	if p == nil {
		if op := c.q.Op(); (op == query.OpUpdate || op == query.OpDelete) && !c.q.Unbounded() {
			c.AddError(&quarry.CompileError{
				Kind:    quarry.CompileInvalidAST,
				Dialect: c.p.Name,
				Message: fmt.Sprintf("%s without a predicate is not marked unbounded", op),
			})
		}
		return
	}
	c.WriteString(" WHERE ")
	c.predicate(p)
}

// predicate writes a predicate tree. Nested groups are parenthesized so the
// output never relies on operator precedence.
func (c *compiler) predicate(p query.Predicate) {
	switch p := p.(type) {
	case *query.Compare:
		c.column(p.Column)
		c.Pad().WriteString(p.Op.String()).Pad().Arg(p.Value)
	case *query.ColumnCompare:
		c.column(p.Left)
		c.Pad().WriteString(p.Op.String()).Pad()
		c.column(p.Right)
	case *query.Range:
		c.column(p.Column)
		c.WriteString(" BETWEEN ").Arg(p.Low).WriteString(" AND ").Arg(p.High)
	case *query.Membership:
		if len(p.Values) == 0 {
			// IN () is not valid SQL: an empty list matches nothing.
			if p.Negated {
				c.WriteString("1 = 1")
			} else {
				c.WriteString("1 = 0")
			}
			return
		}
		c.column(p.Column)
		if p.Negated {
			c.WriteString(" NOT")
		}
		c.WriteString(" IN ").Wrap(func(b *Builder) { b.Args(p.Values...) })
	case *query.Match:
		c.match(p)
	case *query.NullCheck:
		c.column(p.Column)
		if p.Negated {
			c.WriteString(" IS NOT NULL")
		} else {
			c.WriteString(" IS NULL")
		}
	case *query.Conjunction:
		c.group(p.Preds, " AND ")
	case *query.Disjunction:
		c.group(p.Preds, " OR ")
	case *query.Negation:
		c.WriteString("NOT ").Wrap(func(*Builder) { c.predicate(p.Pred) })
	default:
		c.AddError(&quarry.CompileError{Kind: quarry.CompileInvalidAST, Dialect: c.p.Name, Message: fmt.Sprintf("unexpected predicate %T", p)})
	}
}

func (c *compiler) group(preds []query.Predicate, sep string) {
	for i, p := range preds {
		if i > 0 {
			c.WriteString(sep)
		}
		switch p.(type) {
		case *query.Conjunction, *query.Disjunction:
			c.Wrap(func(*Builder) { c.predicate(p) })
		default:
			c.predicate(p)
		}
	}
}

func (c *compiler) match(p *query.Match) {
	switch {
	case !p.Fold:
		c.column(p.Column)
		c.WriteString(" LIKE ").Arg(field.String(p.Pattern))
	case c.p.ILike:
		c.column(p.Column)
		c.WriteString(" ILIKE ").Arg(field.String(p.Pattern))
	default:
		c.WriteString("LOWER(")
		c.column(p.Column)
		c.WriteString(") LIKE LOWER(").Arg(field.String(p.Pattern)).WriteByte(')')
	}
	if c.p.LikeEscape && strings.ContainsRune(p.Pattern, '\\') {
		c.WriteString(` ESCAPE '\'`)
	}
}

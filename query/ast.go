package query

import (
	"slices"
	"strings"

	"github.com/syssam/quarry/schema"
	"github.com/syssam/quarry/schema/field"
)

// Op is the root operation of a query.
type Op uint8

// Query operations.
const (
	OpNone Op = iota
	OpSelect
	OpInsert
	OpUpdate
	OpDelete
)

// String returns the SQL keyword of the operation.
func (o Op) String() string {
	switch o {
	case OpSelect:
		return "select"
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "none"
	}
}

// State is the position of a Builder in the clause sequence. Filtered,
// Joined and Ordered may be revisited in any order; Built is terminal.
type State uint8

// Builder states.
const (
	Empty State = iota
	Projected
	Filtered
	Joined
	Ordered
	Built
)

// String returns the state name.
func (s State) String() string {
	return [...]string{"empty", "projected", "filtered", "joined", "ordered", "built"}[s]
}

// ColumnRef references a column of the root model (empty Path) or of a
// joined relation path.
type ColumnRef struct {
	Path   string
	Column string
}

// Col parses "column" or "path.to.relation.column".
func Col(ref string) ColumnRef {
	if i := strings.LastIndexByte(ref, '.'); i >= 0 {
		return ColumnRef{Path: ref[:i], Column: ref[i+1:]}
	}
	return ColumnRef{Column: ref}
}

// String returns the dotted form of the reference.
func (c ColumnRef) String() string {
	if c.Path == "" {
		return c.Column
	}
	return c.Path + "." + c.Column
}

// JoinKind is the kind of a join.
type JoinKind uint8

// Join kinds.
const (
	InnerJoin JoinKind = iota + 1
	LeftJoin
)

// String returns the SQL keyword of the join.
func (k JoinKind) String() string {
	if k == LeftJoin {
		return "LEFT JOIN"
	}
	return "JOIN"
}

// Join is a resolved relation join. Path is the dotted relation path from
// the root model; Parent is the path of the joined parent ("" for the root).
type Join struct {
	Kind     JoinKind
	Path     string
	Parent   string
	Relation *schema.Relation
	Owner    *schema.Model
	Target   *schema.Model
	// Links are the hops from the parent to the target: one, or two through
	// the join table of a many-to-many relation.
	Links []schema.Link
}

func (j Join) clone() Join {
	c := j
	c.Relation = j.Relation.Clone()
	c.Owner = j.Owner.Clone()
	c.Target = j.Target.Clone()
	c.Links = make([]schema.Link, len(j.Links))
	for i, l := range j.Links {
		c.Links[i] = schema.Link{
			From:        l.From,
			FromColumns: slices.Clone(l.FromColumns),
			To:          l.To,
			ToColumns:   slices.Clone(l.ToColumns),
		}
	}
	return c
}

// Order is an ORDER BY term.
type Order struct {
	Column ColumnRef
	Desc   bool
}

// Asc orders by a column ascending.
func Asc(column string) Order { return Order{Column: Col(column)} }

// Desc orders by a column descending.
func Desc(column string) Order { return Order{Column: Col(column), Desc: true} }

// Assignment is a column value of an insert or update.
type Assignment struct {
	Column string
	Value  field.Value
}

// Conflict is the upsert clause of an insert: on a conflict over Columns,
// either do nothing or overwrite the Update columns with the new values.
type Conflict struct {
	Columns   []string
	DoNothing bool
	Update    []string
}

// Query is an immutable, built query. Accessors return deep copies, so
// changing what they return never changes the query.
type Query struct {
	op        Op
	model     *schema.Model
	columns   []ColumnRef
	where     Predicate
	joins     []Join
	order     []Order
	limit     *int
	offset    *int
	set       []Assignment
	conflict  *Conflict
	returning []string
	unbounded bool
}

// Op returns the root operation.
func (q *Query) Op() Op { return q.op }

// Model returns the root model.
func (q *Query) Model() *schema.Model { return q.model.Clone() }

// Columns returns the projection in order.
func (q *Query) Columns() []ColumnRef { return slices.Clone(q.columns) }

// Where returns the predicate tree, or nil.
func (q *Query) Where() Predicate { return Clone(q.where) }

// Joins returns the joins in order.
func (q *Query) Joins() []Join {
	joins := make([]Join, len(q.joins))
	for i, j := range q.joins {
		joins[i] = j.clone()
	}
	return joins
}

// Join returns the join of a relation path.
func (q *Query) Join(path string) (Join, bool) {
	for _, j := range q.joins {
		if j.Path == path {
			return j.clone(), true
		}
	}
	return Join{}, false
}

// OrderBy returns the ordering terms in order.
func (q *Query) OrderBy() []Order { return slices.Clone(q.order) }

// Limit returns the row limit, if set.
func (q *Query) Limit() (int, bool) {
	if q.limit == nil {
		return 0, false
	}
	return *q.limit, true
}

// Offset returns the row offset, if set.
func (q *Query) Offset() (int, bool) {
	if q.offset == nil {
		return 0, false
	}
	return *q.offset, true
}

// Assignments returns the insert or update values in order.
func (q *Query) Assignments() []Assignment {
	set := make([]Assignment, len(q.set))
	for i, a := range q.set {
		set[i] = Assignment{Column: a.Column, Value: field.Clone(a.Value)}
	}
	return set
}

// Conflict returns the upsert clause, or nil.
func (q *Query) Conflict() *Conflict {
	if q.conflict == nil {
		return nil
	}
	return &Conflict{
		Columns:   slices.Clone(q.conflict.Columns),
		DoNothing: q.conflict.DoNothing,
		Update:    slices.Clone(q.conflict.Update),
	}
}

// Returning returns the RETURNING columns.
func (q *Query) Returning() []string { return slices.Clone(q.returning) }

// Unbounded reports if the query was explicitly allowed to affect every row.
func (q *Query) Unbounded() bool { return q.unbounded }

// String returns a readable, dialect-free form of the query for logs.
func (q *Query) String() string {
	var b strings.Builder
	b.WriteString(q.op.String())
	b.WriteString(" ")
	b.WriteString(q.model.Name)
	for _, j := range q.joins {
		b.WriteString(" ")
		b.WriteString(strings.ToLower(j.Kind.String()))
		b.WriteString(" ")
		b.WriteString(j.Path)
	}
	if q.where != nil {
		b.WriteString(" where ")
		b.WriteString(q.where.String())
	}
	return b.String()
}

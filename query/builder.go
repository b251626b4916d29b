package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/quarry"
	"github.com/syssam/quarry/schema"
	"github.com/syssam/quarry/schema/field"
)

// Builder builds a Query against a schema snapshot. Builders are persistent:
// every method returns a new Builder and leaves the receiver untouched, so a
// partially built query can be shared and extended in several directions.
//
// The first invalid clause records an error; later calls are no-ops and
// Build returns that error.
type Builder struct {
	snap  *schema.Snapshot
	state State
	q     Query
	err   error
}

// New returns an empty builder over a schema snapshot.
func New(snap *schema.Snapshot) *Builder {
	return &Builder{snap: snap}
}

// From returns a builder seeded with a built query, to derive new queries
// from it.
func From(snap *schema.Snapshot, q *Query) *Builder {
	b := &Builder{snap: snap, q: *q, state: Projected}
	switch {
	case len(q.order) > 0 || q.limit != nil || q.offset != nil:
		b.state = Ordered
	case len(q.joins) > 0:
		b.state = Joined
	case q.where != nil:
		b.state = Filtered
	}
	return b
}

// State returns the current state of the builder.
func (b *Builder) State() State { return b.state }

// Err returns the first error recorded by the builder.
func (b *Builder) Err() error { return b.err }

// Select starts a select over a model. Without columns, every column of the
// model is selected in declaration order.
func (b *Builder) Select(model string, columns ...string) *Builder {
	nb := b.start(OpSelect, model)
	if len(columns) > 0 {
		nb = nb.Columns(columns...)
	}
	return nb
}

// Insert starts an insert into a model.
func (b *Builder) Insert(model string) *Builder { return b.start(OpInsert, model) }

// Update starts an update of a model.
func (b *Builder) Update(model string) *Builder { return b.start(OpUpdate, model) }

// Delete starts a delete from a model.
func (b *Builder) Delete(model string) *Builder { return b.start(OpDelete, model) }

func (b *Builder) start(op Op, model string) *Builder {
	if b.err != nil {
		return b
	}
	if b.state != Empty {
		return b.fail(quarry.QueryInvalidClauseCombination, op.String(), "an operation was already started")
	}
	m, ok := b.snap.Model(model)
	if !ok {
		return b.failWith(&quarry.QueryBuildError{
			Kind:    quarry.QueryUnknownModel,
			Op:      op.String(),
			Model:   model,
			Message: "model is not in the schema",
		})
	}
	nb := b.clone()
	nb.q.op = op
	nb.q.model = m
	nb.state = Projected
	return nb
}

// Columns sets the projection of a select. Columns of joined relations are
// written as "path.column".
func (b *Builder) Columns(columns ...string) *Builder {
	if nb, ok := b.expect("columns", OpSelect); !ok {
		return nb
	}
	refs := slices.Clip(b.q.columns)
	for _, c := range columns {
		ref := Col(c)
		if _, err := b.column("columns", ref); err != nil {
			return b.failWith(err)
		}
		if slices.Contains(refs, ref) {
			return b.failColumn(quarry.QueryInvalidClauseCombination, "columns", ref, "column selected twice")
		}
		refs = append(refs, ref)
	}
	nb := b.clone()
	nb.q.columns = refs
	nb.advance(Projected)
	return nb
}

// Where adds predicates, combined with AND with any existing ones.
func (b *Builder) Where(preds ...Predicate) *Builder {
	if nb, ok := b.expect("where", OpSelect, OpUpdate, OpDelete); !ok {
		return nb
	}
	if len(preds) == 0 {
		return b.fail(quarry.QueryMissingPredicate, "where", "no predicate given")
	}
	owned := make([]Predicate, 0, len(preds)+1)
	owned = append(owned, b.q.where)
	for _, p := range preds {
		p = Clone(p)
		if err := b.check(p); err != nil {
			return b.failWith(err)
		}
		owned = append(owned, p)
	}
	nb := b.clone()
	nb.q.where = And(owned...)
	nb.advance(Filtered)
	return nb
}

// Join adds an inner join along a relation path such as "author" or
// "posts.tags". Missing intermediate joins are added with the same kind.
func (b *Builder) Join(path string) *Builder { return b.join(InnerJoin, path) }

// LeftJoin adds a left outer join along a relation path.
func (b *Builder) LeftJoin(path string) *Builder { return b.join(LeftJoin, path) }

func (b *Builder) join(kind JoinKind, path string) *Builder {
	if nb, ok := b.expect("join", OpSelect); !ok {
		return nb
	}
	joins := slices.Clip(b.q.joins)
	owner, parent := b.q.model, ""
	for _, seg := range strings.Split(path, ".") {
		current := seg
		if parent != "" {
			current = parent + "." + seg
		}
		if i := slices.IndexFunc(joins, func(j Join) bool { return j.Path == current }); i >= 0 {
			if current == path && joins[i].Kind != kind {
				return b.failWith(&quarry.QueryBuildError{
					Kind:     quarry.QueryInvalidClauseCombination,
					Op:       b.q.op.String(),
					Model:    b.q.model.Name,
					Relation: path,
					Clause:   "join",
					Message:  fmt.Sprintf("relation already joined with %s", joins[i].Kind),
				})
			}
			owner, parent = joins[i].Target, current
			continue
		}
		rel, target, err := b.snap.Relation(owner.Name, seg)
		if err != nil {
			return b.failWith(&quarry.QueryBuildError{
				Kind:     quarry.QueryUnknownRelation,
				Op:       b.q.op.String(),
				Model:    owner.Name,
				Relation: current,
				Clause:   "join",
				Message:  "relation is not declared",
			})
		}
		if current == b.q.model.Table {
			return b.failWith(&quarry.QueryBuildError{
				Kind:     quarry.QueryInvalidClauseCombination,
				Op:       b.q.op.String(),
				Model:    b.q.model.Name,
				Relation: current,
				Clause:   "join",
				Message:  "relation path collides with the root table name",
			})
		}
		joins = append(joins, Join{
			Kind:     kind,
			Path:     current,
			Parent:   parent,
			Relation: rel,
			Owner:    owner,
			Target:   target,
			Links:    b.snap.Links(owner, rel),
		})
		owner, parent = target, current
	}
	nb := b.clone()
	nb.q.joins = joins
	nb.advance(Joined)
	return nb
}

// Through joins the join table of a many-to-many relation whose target is
// the root model, so that rows can be selected by the keys of the owning
// side. The join table columns are addressed as "Owner.relation.column".
func (b *Builder) Through(owner, relation string) *Builder {
	if nb, ok := b.expect("join", OpSelect); !ok {
		return nb
	}
	path := owner + "." + relation
	if _, ok := b.q.Join(path); ok {
		return b
	}
	rel, target, err := b.snap.Relation(owner, relation)
	if err != nil {
		return b.failWith(&quarry.QueryBuildError{
			Kind:     quarry.QueryUnknownRelation,
			Op:       b.q.op.String(),
			Model:    owner,
			Relation: relation,
			Clause:   "join",
			Message:  "relation is not declared",
		})
	}
	if rel.Kind != schema.M2M || target.Name != b.q.model.Name {
		return b.failWith(&quarry.QueryBuildError{
			Kind:     quarry.QueryInvalidClauseCombination,
			Op:       b.q.op.String(),
			Model:    b.q.model.Name,
			Relation: path,
			Clause:   "join",
			Message:  "not a many-to-many relation targeting the selected model",
		})
	}
	jt, _ := b.snap.ModelByTable(rel.Through.Table)
	ownerModel, _ := b.snap.Model(owner)
	nb := b.clone()
	nb.q.joins = append(slices.Clip(b.q.joins), Join{
		Kind:     InnerJoin,
		Path:     path,
		Relation: rel,
		Owner:    ownerModel,
		Target:   jt,
		Links: []schema.Link{{
			From:        target.Table,
			FromColumns: target.PrimaryKey,
			To:          jt.Table,
			ToColumns:   rel.Through.RefColumns,
		}},
	})
	nb.advance(Joined)
	return nb
}

// OrderBy appends ordering terms.
func (b *Builder) OrderBy(orders ...Order) *Builder {
	if nb, ok := b.expect("order", OpSelect); !ok {
		return nb
	}
	for _, o := range orders {
		if _, err := b.column("order", o.Column); err != nil {
			return b.failWith(err)
		}
	}
	nb := b.clone()
	nb.q.order = append(slices.Clip(b.q.order), orders...)
	nb.advance(Ordered)
	return nb
}

// Limit caps the number of selected rows.
func (b *Builder) Limit(n int) *Builder {
	if nb, ok := b.expect("limit", OpSelect); !ok {
		return nb
	}
	if n < 0 {
		return b.fail(quarry.QueryInvalidClauseCombination, "limit", "negative limit")
	}
	nb := b.clone()
	nb.q.limit = &n
	nb.advance(Ordered)
	return nb
}

// Offset skips rows of a select.
func (b *Builder) Offset(n int) *Builder {
	if nb, ok := b.expect("offset", OpSelect); !ok {
		return nb
	}
	if n < 0 {
		return b.fail(quarry.QueryInvalidClauseCombination, "offset", "negative offset")
	}
	nb := b.clone()
	nb.q.offset = &n
	nb.advance(Ordered)
	return nb
}

// Set assigns a column value of an insert or update.
func (b *Builder) Set(column string, v any) *Builder {
	if nb, ok := b.expect("set", OpInsert, OpUpdate); !ok {
		return nb
	}
	ref := ColumnRef{Column: column}
	c, ok := b.q.model.Column(column)
	if !ok {
		return b.failColumn(quarry.QueryUnknownColumn, "set", ref, "column is not declared")
	}
	if slices.ContainsFunc(b.q.set, func(a Assignment) bool { return a.Column == column }) {
		return b.failColumn(quarry.QueryInvalidClauseCombination, "set", ref, "column assigned twice")
	}
	value, err := field.FromAny(v)
	if err != nil {
		return b.failColumn(quarry.QueryTypeMismatch, "set", ref, err.Error())
	}
	if _, null := value.(field.Null); null && !c.Nullable {
		return b.failColumn(quarry.QueryTypeMismatch, "set", ref, "NULL into NOT NULL column")
	}
	if !c.Type.Accepts(value) {
		return b.failColumn(quarry.QueryTypeMismatch, "set", ref, fmt.Sprintf("value %s does not fit type %s", value, c.Type))
	}
	nb := b.clone()
	nb.q.set = append(slices.Clip(b.q.set), Assignment{Column: column, Value: field.Clone(value)})
	return nb
}

// OnConflict starts an upsert over a unique key of the model. Without
// columns the primary key is used. It must be followed by DoNothing or
// DoUpdate.
func (b *Builder) OnConflict(columns ...string) *Builder {
	if nb, ok := b.expect("on conflict", OpInsert); !ok {
		return nb
	}
	if b.q.conflict != nil {
		return b.fail(quarry.QueryInvalidClauseCombination, "on conflict", "conflict clause already set")
	}
	if len(columns) == 0 {
		columns = b.q.model.PrimaryKey
	}
	for _, c := range columns {
		if _, ok := b.q.model.Column(c); !ok {
			return b.failColumn(quarry.QueryUnknownColumn, "on conflict", ColumnRef{Column: c}, "column is not declared")
		}
	}
	if !uniqueKey(b.q.model, columns) {
		return b.fail(quarry.QueryInvalidClauseCombination, "on conflict",
			fmt.Sprintf("no unique key over (%s)", strings.Join(columns, ", ")))
	}
	nb := b.clone()
	nb.q.conflict = &Conflict{Columns: slices.Clone(columns)}
	return nb
}

// DoNothing ignores rows that conflict.
func (b *Builder) DoNothing() *Builder {
	if nb, ok := b.expect("on conflict", OpInsert); !ok {
		return nb
	}
	if b.q.conflict == nil {
		return b.fail(quarry.QueryInvalidClauseCombination, "on conflict", "do nothing without on conflict")
	}
	nb := b.clone()
	nb.q.conflict = &Conflict{Columns: b.q.conflict.Columns, DoNothing: true}
	return nb
}

// DoUpdate overwrites the given columns of a conflicting row with the
// inserted values. Without columns every assigned column outside the
// conflict key is updated.
func (b *Builder) DoUpdate(columns ...string) *Builder {
	if nb, ok := b.expect("on conflict", OpInsert); !ok {
		return nb
	}
	if b.q.conflict == nil {
		return b.fail(quarry.QueryInvalidClauseCombination, "on conflict", "do update without on conflict")
	}
	for _, c := range columns {
		if _, ok := b.q.model.Column(c); !ok {
			return b.failColumn(quarry.QueryUnknownColumn, "on conflict", ColumnRef{Column: c}, "column is not declared")
		}
	}
	nb := b.clone()
	nb.q.conflict = &Conflict{Columns: b.q.conflict.Columns, Update: slices.Clone(columns)}
	if len(columns) == 0 {
		// Filled in by Build, once every assignment is known.
		nb.q.conflict.Update = []string{}
	}
	return nb
}

// Returning sets the columns returned by an insert, update or delete.
func (b *Builder) Returning(columns ...string) *Builder {
	if nb, ok := b.expect("returning", OpInsert, OpUpdate, OpDelete); !ok {
		return nb
	}
	for _, c := range columns {
		if _, ok := b.q.model.Column(c); !ok {
			return b.failColumn(quarry.QueryUnknownColumn, "returning", ColumnRef{Column: c}, "column is not declared")
		}
	}
	nb := b.clone()
	nb.q.returning = append(slices.Clip(b.q.returning), columns...)
	return nb
}

// AllowUnbounded allows an update or delete without a predicate to affect
// every row of the table.
func (b *Builder) AllowUnbounded() *Builder {
	if nb, ok := b.expect("where", OpUpdate, OpDelete); !ok {
		return nb
	}
	nb := b.clone()
	nb.q.unbounded = true
	return nb
}

// Build validates the clause combination and returns the immutable query.
func (b *Builder) Build() (*Query, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.q.op == OpNone {
		return nil, quarry.NewQueryBuildError(quarry.QueryInvalidClauseCombination, "", "", "no operation started")
	}
	q := b.q
	switch q.op {
	case OpSelect:
		if len(q.columns) == 0 {
			for _, c := range q.model.Columns {
				q.columns = append(q.columns, ColumnRef{Column: c.Name})
			}
		}
	case OpInsert:
		if len(q.set) == 0 {
			return nil, b.errorf(quarry.QueryInvalidClauseCombination, "set", "insert without values")
		}
		if q.conflict != nil {
			c := *q.conflict
			switch {
			case !c.DoNothing && c.Update == nil:
				return nil, b.errorf(quarry.QueryInvalidClauseCombination, "on conflict", "conflict clause has no action")
			case !c.DoNothing && len(c.Update) == 0:
				for _, a := range q.set {
					if !slices.Contains(c.Columns, a.Column) {
						c.Update = append(c.Update, a.Column)
					}
				}
				if len(c.Update) == 0 {
					return nil, b.errorf(quarry.QueryInvalidClauseCombination, "on conflict", "no assigned column to update")
				}
			}
			for _, u := range c.Update {
				if !slices.ContainsFunc(q.set, func(a Assignment) bool { return a.Column == u }) {
					return nil, b.errorf(quarry.QueryInvalidClauseCombination, "on conflict",
						fmt.Sprintf("update of column %q that is not inserted", u))
				}
			}
			q.conflict = &c
		}
	case OpUpdate, OpDelete:
		if q.op == OpUpdate && len(q.set) == 0 {
			return nil, b.errorf(quarry.QueryInvalidClauseCombination, "set", "update without values")
		}
		if q.where == nil && !q.unbounded {
			return nil, b.errorf(quarry.QueryMissingPredicate, "where",
				fmt.Sprintf("%s without a predicate; call AllowUnbounded to affect every row", q.op))
		}
	}
	return &q, nil
}

// check validates a predicate tree against the model and the joins.
func (b *Builder) check(p Predicate) error {
	switch p := p.(type) {
	case nil:
		return b.errorf(quarry.QueryMissingPredicate, "where", "nil predicate")
	case *Compare:
		c, err := b.column("where", p.Column)
		if err != nil {
			return err
		}
		return b.checkValue(p.Column, c, p.Value)
	case *ColumnCompare:
		l, err := b.column("where", p.Left)
		if err != nil {
			return err
		}
		r, err := b.column("where", p.Right)
		if err != nil {
			return err
		}
		if !comparableTypes(l.Type, r.Type) {
			return b.columnError(quarry.QueryTypeMismatch, "where", p.Right,
				fmt.Sprintf("cannot compare %s with %s", l.Type, r.Type))
		}
	case *Range:
		c, err := b.column("where", p.Column)
		if err != nil {
			return err
		}
		if err := b.checkValue(p.Column, c, p.Low); err != nil {
			return err
		}
		return b.checkValue(p.Column, c, p.High)
	case *Membership:
		c, err := b.column("where", p.Column)
		if err != nil {
			return err
		}
		for _, v := range p.Values {
			if err := b.checkValue(p.Column, c, v); err != nil {
				return err
			}
		}
	case *Match:
		c, err := b.column("where", p.Column)
		if err != nil {
			return err
		}
		if !c.Type.Kind.Textual() {
			return b.columnError(quarry.QueryTypeMismatch, "where", p.Column,
				fmt.Sprintf("LIKE on column of type %s", c.Type))
		}
	case *NullCheck:
		_, err := b.column("where", p.Column)
		return err
	case *Conjunction:
		return b.checkAll(p.Preds)
	case *Disjunction:
		return b.checkAll(p.Preds)
	case *Negation:
		return b.check(p.Pred)
	case *invalid:
		return b.columnError(quarry.QueryTypeMismatch, "where", p.Column, p.Err.Error())
	default:
		return b.errorf(quarry.QueryInvalidClauseCombination, "where", fmt.Sprintf("unknown predicate %T", p))
	}
	return nil
}

func (b *Builder) checkAll(ps []Predicate) error {
	if len(ps) == 0 {
		return b.errorf(quarry.QueryMissingPredicate, "where", "empty predicate group")
	}
	for _, p := range ps {
		if err := b.check(p); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) checkValue(ref ColumnRef, c *schema.Column, v field.Value) error {
	if _, null := v.(field.Null); null {
		return b.columnError(quarry.QueryTypeMismatch, "where", ref, "comparison with NULL; use IsNull or NotNull")
	}
	if !c.Type.Accepts(v) {
		return b.columnError(quarry.QueryTypeMismatch, "where", ref,
			fmt.Sprintf("value %s does not fit type %s", v, c.Type))
	}
	return nil
}

// column resolves a column reference against the root model or a joined
// relation.
func (b *Builder) column(clause string, ref ColumnRef) (*schema.Column, error) {
	m := b.q.model
	if ref.Path != "" {
		j, ok := b.q.Join(ref.Path)
		if !ok {
			return nil, &quarry.QueryBuildError{
				Kind:     quarry.QueryUnknownRelation,
				Op:       b.q.op.String(),
				Model:    b.q.model.Name,
				Relation: ref.Path,
				Column:   ref.Column,
				Clause:   clause,
				Message:  "relation is not joined",
			}
		}
		m = j.Target
	}
	c, ok := m.Column(ref.Column)
	if !ok {
		return nil, b.columnError(quarry.QueryUnknownColumn, clause, ref, fmt.Sprintf("model %s has no such column", m.Name))
	}
	return c, nil
}

// expect reports if the builder can take a clause for one of the ops. If
// not, it returns the builder to hand back to the caller.
func (b *Builder) expect(clause string, ops ...Op) (*Builder, bool) {
	switch {
	case b.err != nil:
		return b, false
	case b.state == Empty:
		return b.failWith(quarry.NewQueryBuildError(quarry.QueryInvalidClauseCombination, "", "",
			clause+" before an operation was started")), false
	case !slices.Contains(ops, b.q.op):
		return b.fail(quarry.QueryInvalidClauseCombination, clause, fmt.Sprintf("%s is not valid in %s", clause, b.q.op)), false
	}
	return nil, true
}

func (b *Builder) clone() *Builder {
	nb := *b
	return &nb
}

// advance moves to a clause state. Clause states can be revisited freely.
func (b *Builder) advance(s State) {
	b.state = s
}

func (b *Builder) errorf(kind quarry.QueryBuildErrorKind, clause, message string) *quarry.QueryBuildError {
	e := quarry.NewQueryBuildError(kind, b.q.op.String(), "", message)
	if b.q.model != nil {
		e.Model = b.q.model.Name
	}
	e.Clause = clause
	return e
}

func (b *Builder) columnError(kind quarry.QueryBuildErrorKind, clause string, ref ColumnRef, message string) *quarry.QueryBuildError {
	e := b.errorf(kind, clause, message)
	e.Relation = ref.Path
	e.Column = ref.Column
	return e
}

func (b *Builder) fail(kind quarry.QueryBuildErrorKind, clause, message string) *Builder {
	return b.failWith(b.errorf(kind, clause, message))
}

func (b *Builder) failColumn(kind quarry.QueryBuildErrorKind, clause string, ref ColumnRef, message string) *Builder {
	return b.failWith(b.columnError(kind, clause, ref, message))
}

func (b *Builder) failWith(err error) *Builder {
	nb := b.clone()
	nb.err = err
	return nb
}

// uniqueKey reports if the columns are covered by the primary key, a unique
// column or a unique index of the model.
func uniqueKey(m *schema.Model, columns []string) bool {
	same := func(key []string) bool {
		return len(key) == len(columns) && !slices.ContainsFunc(key, func(c string) bool { return !slices.Contains(columns, c) })
	}
	if same(m.PrimaryKey) {
		return true
	}
	if len(columns) == 1 {
		if c, ok := m.Column(columns[0]); ok && c.Unique {
			return true
		}
	}
	return slices.ContainsFunc(m.Indexes, func(idx *schema.Index) bool { return idx.Unique && same(idx.Columns) })
}

// comparableTypes reports if two column types can be compared without a cast.
func comparableTypes(a, b field.Type) bool {
	switch {
	case a.Kind == b.Kind:
		return true
	case a.Kind.Numeric() && b.Kind.Numeric():
		return true
	case a.Kind.Textual() && b.Kind.Textual():
		return true
	default:
		return (a.Kind == field.KindTime || a.Kind == field.KindDate) && (b.Kind == field.KindTime || b.Kind == field.KindDate)
	}
}

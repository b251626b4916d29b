package query

import (
	"fmt"
	"strings"

	"github.com/syssam/quarry/schema/field"
)

// Predicate is a node of a WHERE tree. The set of node types is closed:
// Compare, ColumnCompare, Range, Membership, Match, NullCheck,
// Conjunction, Disjunction and Negation.
type Predicate interface {
	fmt.Stringer
	predicate()
}

// CompareOp is a binary comparison operator.
type CompareOp uint8

// Comparison operators.
const (
	OpEQ CompareOp = iota + 1
	OpNEQ
	OpGT
	OpGTE
	OpLT
	OpLTE
)

// String returns the SQL operator.
func (o CompareOp) String() string {
	return [...]string{"", "=", "<>", ">", ">=", "<", "<="}[o]
}

type (
	// Compare compares a column with a value.
	Compare struct {
		Op     CompareOp
		Column ColumnRef
		Value  field.Value
	}

	// ColumnCompare compares two columns.
	ColumnCompare struct {
		Op          CompareOp
		Left, Right ColumnRef
	}

	// Range matches values in the closed range [Low, High].
	Range struct {
		Column    ColumnRef
		Low, High field.Value
	}

	// Membership matches values in a list. An empty list matches nothing, or
	// everything when negated.
	Membership struct {
		Column  ColumnRef
		Values  []field.Value
		Negated bool
	}

	// Match matches a column against a LIKE pattern.
	Match struct {
		Column  ColumnRef
		Pattern string
		Fold    bool
	}

	// NullCheck matches NULL values, or non-NULL values when negated.
	NullCheck struct {
		Column  ColumnRef
		Negated bool
	}

	// Conjunction is the conjunction of its operands.
	Conjunction struct{ Preds []Predicate }

	// Disjunction is the disjunction of its operands.
	Disjunction struct{ Preds []Predicate }

	// Negation negates its operand.
	Negation struct{ Pred Predicate }

	// invalid carries a value that could not be converted; the builder
	// reports it when the predicate is added.
	invalid struct {
		Column ColumnRef
		Err    error
	}
)

func (*Compare) predicate()       {}
func (*ColumnCompare) predicate() {}
func (*Range) predicate()         {}
func (*Membership) predicate()    {}
func (*Match) predicate()         {}
func (*NullCheck) predicate()     {}
func (*Conjunction) predicate()   {}
func (*Disjunction) predicate()   {}
func (*Negation) predicate()      {}
func (*invalid) predicate()       {}

func (p *Compare) String() string { return fmt.Sprintf("%s %s %s", p.Column, p.Op, p.Value) }

func (p *ColumnCompare) String() string { return fmt.Sprintf("%s %s %s", p.Left, p.Op, p.Right) }

func (p *Range) String() string {
	return fmt.Sprintf("%s BETWEEN %s AND %s", p.Column, p.Low, p.High)
}

func (p *Membership) String() string {
	vs := make([]string, len(p.Values))
	for i, v := range p.Values {
		vs[i] = v.String()
	}
	op := "IN"
	if p.Negated {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", p.Column, op, strings.Join(vs, ", "))
}

func (p *Match) String() string {
	op := "LIKE"
	if p.Fold {
		op = "ILIKE"
	}
	return fmt.Sprintf("%s %s %q", p.Column, op, p.Pattern)
}

func (p *NullCheck) String() string {
	if p.Negated {
		return p.Column.String() + " IS NOT NULL"
	}
	return p.Column.String() + " IS NULL"
}

func (p *Conjunction) String() string { return join(p.Preds, " AND ") }

func (p *Disjunction) String() string { return join(p.Preds, " OR ") }

func (p *Negation) String() string { return "NOT (" + p.Pred.String() + ")" }

func (p *invalid) String() string { return fmt.Sprintf("%s <invalid: %v>", p.Column, p.Err) }

func join(ps []Predicate, sep string) string {
	s := make([]string, len(ps))
	for i, p := range ps {
		s[i] = p.String()
	}
	return "(" + strings.Join(s, sep) + ")"
}

func compare(op CompareOp, column string, v any) Predicate {
	value, err := field.FromAny(v)
	if err != nil {
		return &invalid{Column: Col(column), Err: err}
	}
	return &Compare{Op: op, Column: Col(column), Value: value}
}

// EQ returns a "=" predicate. Comparing with nil is rejected by the
// builder; use IsNull instead.
func EQ(column string, v any) Predicate { return compare(OpEQ, column, v) }

// NEQ returns a "<>" predicate.
func NEQ(column string, v any) Predicate { return compare(OpNEQ, column, v) }

// GT returns a ">" predicate.
func GT(column string, v any) Predicate { return compare(OpGT, column, v) }

// GTE returns a ">=" predicate.
func GTE(column string, v any) Predicate { return compare(OpGTE, column, v) }

// LT returns a "<" predicate.
func LT(column string, v any) Predicate { return compare(OpLT, column, v) }

// LTE returns a "<=" predicate.
func LTE(column string, v any) Predicate { return compare(OpLTE, column, v) }

// ColumnsEQ returns a predicate comparing two columns for equality.
func ColumnsEQ(left, right string) Predicate {
	return &ColumnCompare{Op: OpEQ, Left: Col(left), Right: Col(right)}
}

// ColumnsOp returns a predicate comparing two columns.
func ColumnsOp(op CompareOp, left, right string) Predicate {
	return &ColumnCompare{Op: op, Left: Col(left), Right: Col(right)}
}

// Between returns a BETWEEN predicate.
func Between(column string, low, high any) Predicate {
	lv, err := field.FromAny(low)
	if err != nil {
		return &invalid{Column: Col(column), Err: err}
	}
	hv, err := field.FromAny(high)
	if err != nil {
		return &invalid{Column: Col(column), Err: err}
	}
	return &Range{Column: Col(column), Low: lv, High: hv}
}

// In returns an IN predicate.
func In(column string, vs ...any) Predicate { return in(column, false, vs) }

// NotIn returns a NOT IN predicate.
func NotIn(column string, vs ...any) Predicate { return in(column, true, vs) }

func in(column string, negated bool, vs []any) Predicate {
	values := make([]field.Value, len(vs))
	for i, v := range vs {
		value, err := field.FromAny(v)
		if err != nil {
			return &invalid{Column: Col(column), Err: err}
		}
		values[i] = value
	}
	return &Membership{Column: Col(column), Values: values, Negated: negated}
}

// Like returns a LIKE predicate with a raw pattern.
func Like(column, pattern string) Predicate {
	return &Match{Column: Col(column), Pattern: pattern}
}

// Contains matches values containing substr. LIKE wildcards in substr are
// escaped.
func Contains(column, substr string) Predicate {
	return &Match{Column: Col(column), Pattern: "%" + EscapeLike(substr) + "%"}
}

// ContainsFold is the case-insensitive version of Contains.
func ContainsFold(column, substr string) Predicate {
	return &Match{Column: Col(column), Pattern: "%" + EscapeLike(substr) + "%", Fold: true}
}

// HasPrefix matches values starting with prefix.
func HasPrefix(column, prefix string) Predicate {
	return &Match{Column: Col(column), Pattern: EscapeLike(prefix) + "%"}
}

// HasSuffix matches values ending with suffix.
func HasSuffix(column, suffix string) Predicate {
	return &Match{Column: Col(column), Pattern: "%" + EscapeLike(suffix)}
}

// EscapeLike escapes the LIKE wildcards and the escape character itself.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// IsNull returns an IS NULL predicate.
func IsNull(column string) Predicate { return &NullCheck{Column: Col(column)} }

// NotNull returns an IS NOT NULL predicate.
func NotNull(column string) Predicate { return &NullCheck{Column: Col(column), Negated: true} }

// And returns the conjunction of the predicates. Nested conjunctions are
// flattened and a single operand is returned as is.
func And(preds ...Predicate) Predicate { return combine(preds, true) }

// Or returns the disjunction of the predicates.
func Or(preds ...Predicate) Predicate { return combine(preds, false) }

// Not negates a predicate.
func Not(p Predicate) Predicate { return &Negation{Pred: p} }

func combine(preds []Predicate, and bool) Predicate {
	flat := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		switch p := p.(type) {
		case nil:
		case *Conjunction:
			if and {
				flat = append(flat, p.Preds...)
				continue
			}
			flat = append(flat, p)
		case *Disjunction:
			if !and {
				flat = append(flat, p.Preds...)
				continue
			}
			flat = append(flat, p)
		default:
			flat = append(flat, p)
		}
	}
	switch {
	case len(flat) == 0:
		return nil
	case len(flat) == 1:
		return flat[0]
	case and:
		return &Conjunction{Preds: flat}
	default:
		return &Disjunction{Preds: flat}
	}
}

// Walk calls fn for p and every predicate nested in it, depth first.
func Walk(p Predicate, fn func(Predicate)) {
	if p == nil {
		return
	}
	fn(p)
	switch p := p.(type) {
	case *Conjunction:
		for _, c := range p.Preds {
			Walk(c, fn)
		}
	case *Disjunction:
		for _, c := range p.Preds {
			Walk(c, fn)
		}
	case *Negation:
		Walk(p.Pred, fn)
	}
}

// Clone returns a deep copy of a predicate tree.
func Clone(p Predicate) Predicate {
	switch p := p.(type) {
	case nil:
		return nil
	case *Compare:
		c := *p
		c.Value = field.Clone(p.Value)
		return &c
	case *ColumnCompare:
		c := *p
		return &c
	case *Range:
		c := *p
		c.Low, c.High = field.Clone(p.Low), field.Clone(p.High)
		return &c
	case *Membership:
		c := *p
		c.Values = make([]field.Value, len(p.Values))
		for i, v := range p.Values {
			c.Values[i] = field.Clone(v)
		}
		return &c
	case *Match:
		c := *p
		return &c
	case *NullCheck:
		c := *p
		return &c
	case *Conjunction:
		return &Conjunction{Preds: cloneAll(p.Preds)}
	case *Disjunction:
		return &Disjunction{Preds: cloneAll(p.Preds)}
	case *Negation:
		return &Negation{Pred: Clone(p.Pred)}
	case *invalid:
		c := *p
		return &c
	default:
		return p
	}
}

func cloneAll(ps []Predicate) []Predicate {
	out := make([]Predicate, len(ps))
	for i, p := range ps {
		out[i] = Clone(p)
	}
	return out
}

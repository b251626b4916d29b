package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/syssam/quarry"
	qschema "github.com/syssam/quarry/schema"
)

// ChangeKind describes the kind of a plan operation. Kinds are bit flags so
// that groups of them can be matched at once with Is.
type ChangeKind uint16

// Plan operation kinds.
const (
	NoChange    ChangeKind = 0
	CreateTable ChangeKind = 1 << (iota - 1)
	DropTable
	AddColumn
	DropColumn
	ModifyColumn
	CreateIndex
	DropIndex
	AddForeignKey
	DropForeignKey
)

// Destructive matches the kinds that discard data.
const Destructive = DropTable | DropColumn

var kindNames = []struct {
	kind ChangeKind
	name string
}{
	{CreateTable, "create_table"},
	{DropTable, "drop_table"},
	{AddColumn, "add_column"},
	{DropColumn, "drop_column"},
	{ModifyColumn, "modify_column"},
	{CreateIndex, "create_index"},
	{DropIndex, "drop_index"},
	{AddForeignKey, "add_foreign_key"},
	{DropForeignKey, "drop_foreign_key"},
}

// Is reports whether k matches any of the kinds in c.
func (k ChangeKind) Is(c ChangeKind) bool {
	return k == c || k&c != 0
}

// String returns the readable name of the kind, e.g. "create table".
func (k ChangeKind) String() string {
	for _, n := range kindNames {
		if n.kind == k {
			return strings.ReplaceAll(n.name, "_", " ")
		}
	}
	return fmt.Sprintf("ChangeKind(%d)", uint16(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k ChangeKind) MarshalText() ([]byte, error) {
	for _, n := range kindNames {
		if n.kind == k {
			return []byte(n.name), nil
		}
	}
	return nil, fmt.Errorf("schema: unknown change kind %d", uint16(k))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ChangeKind) UnmarshalText(text []byte) error {
	for _, n := range kindNames {
		if n.name == string(text) {
			*k = n.kind
			return nil
		}
	}
	return fmt.Errorf("schema: unknown change kind %q", text)
}

// Definition is the schema element an operation creates, drops or changes.
type Definition struct {
	// Columns holds the table columns of create and drop table operations,
	// and the single column of column operations. For modify column it is
	// the new definition.
	Columns    []*qschema.Column `json:"columns,omitempty" yaml:"columns,omitempty"`
	PrimaryKey []string          `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	// From is the previous definition of a modified column.
	From       *qschema.Column     `json:"from,omitempty" yaml:"from,omitempty"`
	Index      *qschema.Index      `json:"index,omitempty" yaml:"index,omitempty"`
	ForeignKey *qschema.ForeignKey `json:"foreign_key,omitempty" yaml:"foreign_key,omitempty"`
	// Deferred is set on foreign keys made deferrable to break a cycle of
	// required keys.
	Deferred bool `json:"deferred,omitempty" yaml:"deferred,omitempty"`
}

// Op is one step of a migration plan.
type Op struct {
	Kind       ChangeKind `json:"kind" yaml:"kind"`
	Table      string     `json:"table" yaml:"table"`
	Column     string     `json:"column,omitempty" yaml:"column,omitempty"`
	Definition Definition `json:"definition" yaml:"definition"`
	// Reversible reports whether Inverse undoes the operation without
	// losing data written before it ran.
	Reversible bool `json:"reversible" yaml:"reversible"`
	Inverse    *Op  `json:"inverse,omitempty" yaml:"inverse,omitempty"`
	// IfExists makes a table drop tolerate a missing table, and a table
	// creation tolerate an existing one.
	IfExists bool `json:"if_exists,omitempty" yaml:"if_exists,omitempty"`
}

// String returns a one-line description, e.g. `add column "posts"."title"`.
func (op *Op) String() string {
	var b strings.Builder
	b.WriteString(op.Kind.String())
	fmt.Fprintf(&b, " %q", op.Table)
	switch {
	case op.Column != "":
		fmt.Fprintf(&b, ".%q", op.Column)
	case op.Definition.Index != nil:
		fmt.Fprintf(&b, " index %q", op.Definition.Index.Name)
	case op.Definition.ForeignKey != nil:
		fmt.Fprintf(&b, " constraint %q", op.Definition.ForeignKey.Name)
	}
	return b.String()
}

// column returns the column the operation adds, drops or changes to.
func (op *Op) column() *qschema.Column {
	if len(op.Definition.Columns) == 0 {
		return nil
	}
	return op.Definition.Columns[0]
}

func (op *Op) clone() *Op {
	c := *op
	c.Definition.Columns = make([]*qschema.Column, len(op.Definition.Columns))
	for i, col := range op.Definition.Columns {
		c.Definition.Columns[i] = col.Clone()
	}
	c.Definition.PrimaryKey = slices.Clone(op.Definition.PrimaryKey)
	c.Definition.From = op.Definition.From.Clone()
	if op.Definition.Index != nil {
		c.Definition.Index = op.Definition.Index.Clone()
	}
	if op.Definition.ForeignKey != nil {
		c.Definition.ForeignKey = op.Definition.ForeignKey.Clone()
	}
	c.Inverse = nil
	return &c
}

// invert returns the operation undoing op, or nil when undoing it would
// lose data or cannot be proven safe.
func invert(op *Op) *Op {
	inv := op.clone()
	inv.IfExists = false
	switch op.Kind {
	case CreateTable:
		inv.Kind, inv.IfExists = DropTable, true
	case AddColumn:
		inv.Kind = DropColumn
	case ModifyColumn:
		from, to := op.Definition.From, op.column()
		if from == nil || to == nil || !reversibleChange(from, to) {
			return nil
		}
		inv.Definition.Columns = []*qschema.Column{from.Clone()}
		inv.Definition.From = to.Clone()
	case CreateIndex:
		inv.Kind = DropIndex
	case DropIndex:
		inv.Kind = CreateIndex
	case AddForeignKey:
		inv.Kind = DropForeignKey
	case DropForeignKey:
		inv.Kind = AddForeignKey
	default:
		return nil
	}
	inv.Reversible = true
	return inv
}

// reversibleChange reports whether changing a column from one definition
// to another can be undone without loss: the type is kept or widened and
// nullability is kept or relaxed. Defaults may change freely.
func reversibleChange(from, to *qschema.Column) bool {
	switch {
	case from.Type != to.Type && !from.Type.Widens(to.Type):
		return false
	case from.Nullable && !to.Nullable:
		return false
	case from.Unique != to.Unique, from.Check != to.Check:
		return false
	default:
		return true
	}
}

// Plan is an ordered list of schema operations taking a database from one
// snapshot version to another.
type Plan struct {
	From string
	To   string
	Ops  []*Op
}

// Empty reports whether the plan has no operations.
func (p *Plan) Empty() bool { return len(p.Ops) == 0 }

// Reversible reports whether every operation of the plan can be undone.
func (p *Plan) Reversible() bool {
	for _, op := range p.Ops {
		if !op.Reversible {
			return false
		}
	}
	return true
}

// Destructive reports whether the plan drops tables or columns.
func (p *Plan) Destructive() bool {
	return slices.ContainsFunc(p.Ops, func(op *Op) bool { return op.Kind.Is(Destructive) })
}

// Reverse returns the plan undoing p, applying the inverse of every
// operation in reverse order. It fails on the first irreversible operation.
func (p *Plan) Reverse() (*Plan, error) {
	r := &Plan{From: p.To, To: p.From, Ops: make([]*Op, 0, len(p.Ops))}
	for i := len(p.Ops) - 1; i >= 0; i-- {
		op := p.Ops[i]
		if !op.Reversible || op.Inverse == nil {
			return nil, &quarry.MigrationError{
				Kind:    quarry.MigrationIrreversibleAlteration,
				Op:      op.Kind.String(),
				Table:   op.Table,
				Column:  op.Column,
				Message: "operation cannot be undone without losing data",
			}
		}
		inv := op.Inverse.clone()
		inv.Reversible = true
		inv.Inverse = op.clone()
		inv.Inverse.IfExists = false
		r.Ops = append(r.Ops, inv)
	}
	return r, nil
}

// planRecord is the persisted form of a plan.
type planRecord struct {
	From     string `json:"from,omitempty" yaml:"from,omitempty"`
	To       string `json:"to" yaml:"to"`
	Checksum string `json:"checksum" yaml:"checksum"`
	Ops      []*Op  `json:"ops" yaml:"ops"`
}

// Checksum returns the hex SHA-256 of the canonical JSON encoding of the
// plan versions and operations.
func (p *Plan) Checksum() string {
	b, err := json.Marshal(struct {
		From string `json:"from"`
		To   string `json:"to"`
		Ops  []*Op  `json:"ops"`
	}{p.From, p.To, p.ops()})
	if err != nil {
		// Every field of an op encodes; an error means a hand-built op
		// carries an invalid type.
		panic(fmt.Sprintf("schema: encode plan: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum reports a MigrationChecksumMismatch error if sum is not
// the checksum of the plan.
func (p *Plan) VerifyChecksum(sum string) error {
	if got := p.Checksum(); got != sum {
		return &quarry.MigrationError{
			Kind:    quarry.MigrationChecksumMismatch,
			Message: fmt.Sprintf("plan %s -> %s has checksum %s, recorded %s", p.From, p.To, got, sum),
			Hint:    "the plan was edited after it was written; regenerate it",
		}
	}
	return nil
}

func (p *Plan) ops() []*Op {
	if p.Ops == nil {
		return []*Op{}
	}
	return p.Ops
}

// MarshalJSON encodes the plan with its checksum.
func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(planRecord{From: p.From, To: p.To, Checksum: p.Checksum(), Ops: p.ops()})
}

// MarshalYAML encodes the plan with its checksum.
func (p *Plan) MarshalYAML() (any, error) {
	return planRecord{From: p.From, To: p.To, Checksum: p.Checksum(), Ops: p.ops()}, nil
}

// DecodePlan decodes a plan written as JSON or YAML and verifies its
// recorded checksum.
func DecodePlan(b []byte) (*Plan, error) {
	var (
		r   planRecord
		err error
	)
	if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 && trimmed[0] == '{' {
		err = json.Unmarshal(b, &r)
	} else {
		err = yaml.Unmarshal(b, &r)
	}
	if err != nil {
		return nil, fmt.Errorf("schema: decode plan: %w", err)
	}
	p := &Plan{From: r.From, To: r.To, Ops: r.Ops}
	if err := p.VerifyChecksum(r.Checksum); err != nil {
		return nil, err
	}
	return p, nil
}

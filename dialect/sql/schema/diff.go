package schema

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/syssam/quarry"
	"github.com/syssam/quarry/graph"
	qschema "github.com/syssam/quarry/schema"
)

// DiffOption configures Diff.
type DiffOption func(*diffConfig)

type diffConfig struct {
	destructive bool
	deferCycles bool
	logger      *slog.Logger
}

// AllowDestructive permits plans that drop tables or columns.
func AllowDestructive() DiffOption {
	return func(c *diffConfig) {
		c.destructive = true
	}
}

// WithDeferredCycles accepts cycles of required foreign keys by creating
// the keys of the cycle DEFERRABLE INITIALLY DEFERRED. Rendering such a
// plan fails on dialects without deferrable constraints.
func WithDeferredCycles() DiffOption {
	return func(c *diffConfig) {
		c.deferCycles = true
	}
}

// WithLogger sets the logger reporting planning decisions.
func WithLogger(l *slog.Logger) DiffOption {
	return func(c *diffConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Diff computes the plan migrating a database from the from snapshot to
// the to snapshot. A nil from snapshot stands for an empty database.
//
// Operations are ordered so that every step is valid when run in turn:
// foreign keys are dropped first, then indexes and columns, then tables
// with referencing tables before the tables they reference. Tables are
// created with referenced tables first, columns and indexes are added to
// existing tables, and foreign keys are added last.
func Diff(from, to *qschema.Snapshot, opts ...DiffOption) (*Plan, error) {
	cfg := diffConfig{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if to == nil {
		return nil, fmt.Errorf("schema: diff: nil target snapshot")
	}
	plan := &Plan{To: to.Version()}
	if from == nil {
		var err error
		if from, err = qschema.NewSnapshot(""); err != nil {
			return nil, err
		}
	} else {
		plan.From = from.Version()
	}
	d := &differ{cfg: cfg, from: from, to: to}
	if err := d.run(); err != nil {
		return nil, err
	}
	for _, ops := range [][]*Op{d.dropFKs, d.dropParts, d.dropTables, d.creates, d.alters, d.addFKs} {
		plan.Ops = append(plan.Ops, ops...)
	}
	for _, op := range plan.Ops {
		op.Inverse = invert(op)
		op.Reversible = op.Inverse != nil
	}
	cfg.logger.Debug("migration planned",
		slog.String("from", plan.From),
		slog.String("to", plan.To),
		slog.Int("ops", len(plan.Ops)),
		slog.Bool("reversible", plan.Reversible()),
	)
	return plan, nil
}

// differ accumulates the operations of each plan phase.
type differ struct {
	cfg      diffConfig
	from, to *qschema.Snapshot

	dropFKs    []*Op
	dropParts  []*Op
	dropTables []*Op
	creates    []*Op
	alters     []*Op
	addFKs     []*Op
}

func (d *differ) run() error {
	oldTables, newTables := tableSet(d.from), tableSet(d.to)
	oldFKs, newFKs := fkSet(d.from), fkSet(d.to)

	for _, fk := range d.from.ForeignKeys() {
		if n, ok := newFKs[fkKey(fk)]; !ok || !n.Equal(fk) {
			d.dropFKs = append(d.dropFKs, &Op{Kind: DropForeignKey, Table: fk.Table, Definition: Definition{ForeignKey: fk.Clone()}})
		}
	}

	var dropped []string
	for _, m := range d.from.Tables() {
		if _, ok := newTables[m.Table]; !ok {
			dropped = append(dropped, m.Table)
		}
	}
	if len(dropped) > 0 && !d.cfg.destructive {
		return destructive("drop table", dropped[0], "")
	}
	order := d.from.DependencyGraph().Subgraph(dropped).OrderBreakingCycles()
	for _, table := range slices.Backward(order) {
		m := oldTables[table]
		d.dropTables = append(d.dropTables, &Op{Kind: DropTable, Table: table, Definition: tableDefinition(m)})
	}

	for _, m := range d.to.Tables() {
		if old, ok := oldTables[m.Table]; ok {
			if err := d.alterTable(old, m); err != nil {
				return err
			}
		}
	}

	var created []string
	for _, m := range d.to.Tables() {
		if _, ok := oldTables[m.Table]; !ok {
			created = append(created, m.Table)
		}
	}
	for _, table := range d.to.DependencyGraph().Subgraph(created).OrderBreakingCycles() {
		m := newTables[table]
		d.creates = append(d.creates, &Op{Kind: CreateTable, Table: table, Definition: tableDefinition(m)})
		for _, idx := range m.Indexes {
			d.creates = append(d.creates, &Op{Kind: CreateIndex, Table: table, Definition: Definition{Index: idx.Clone()}})
		}
	}

	added := make(map[string]*Op)
	for _, fk := range d.to.ForeignKeys() {
		if o, ok := oldFKs[fkKey(fk)]; !ok || !o.Equal(fk) {
			op := &Op{Kind: AddForeignKey, Table: fk.Table, Definition: Definition{ForeignKey: fk.Clone()}}
			d.addFKs = append(d.addFKs, op)
			added[fkKey(fk)] = op
		}
	}
	return d.checkCycles(added)
}

// alterTable plans the changes of a table present in both snapshots.
func (d *differ) alterTable(old, m *qschema.Model) error {
	if !slices.Equal(old.PrimaryKey, m.PrimaryKey) {
		return &quarry.MigrationError{
			Kind:    quarry.MigrationIrreversibleAlteration,
			Op:      "alter primary key",
			Table:   m.Table,
			Message: fmt.Sprintf("primary key changes from %v to %v", old.PrimaryKey, m.PrimaryKey),
			Hint:    "primary keys cannot be altered in place; create a new table and copy the rows",
		}
	}
	for _, idx := range old.Indexes {
		if n, ok := m.Index(idx.Name); !ok || !n.Equal(idx) {
			d.dropParts = append(d.dropParts, &Op{Kind: DropIndex, Table: m.Table, Definition: Definition{Index: idx.Clone()}})
		}
	}
	for _, c := range old.Columns {
		if _, ok := m.Column(c.Name); ok {
			continue
		}
		if !d.cfg.destructive {
			return destructive("drop column", m.Table, c.Name)
		}
		d.dropParts = append(d.dropParts, &Op{Kind: DropColumn, Table: m.Table, Column: c.Name, Definition: Definition{Columns: []*qschema.Column{c.Clone()}}})
	}
	for _, c := range m.Columns {
		prev, ok := old.Column(c.Name)
		switch {
		case !ok:
			d.alters = append(d.alters, &Op{Kind: AddColumn, Table: m.Table, Column: c.Name, Definition: Definition{Columns: []*qschema.Column{c.Clone()}}})
		case !prev.Equal(c):
			if prev.Nullable && !c.Nullable {
				d.cfg.logger.Warn("column becomes NOT NULL; the migration fails if rows hold NULL",
					slog.String("table", m.Table), slog.String("column", c.Name))
			}
			d.alters = append(d.alters, &Op{
				Kind:       ModifyColumn,
				Table:      m.Table,
				Column:     c.Name,
				Definition: Definition{Columns: []*qschema.Column{c.Clone()}, From: prev.Clone()},
			})
		}
	}
	for _, idx := range m.Indexes {
		if o, ok := old.Index(idx.Name); !ok || !o.Equal(idx) {
			d.alters = append(d.alters, &Op{Kind: CreateIndex, Table: m.Table, Definition: Definition{Index: idx.Clone()}})
		}
	}
	return nil
}

// checkCycles rejects cycles of required, non-deferrable foreign keys that
// the plan closes, or marks their keys deferred when allowed.
func (d *differ) checkCycles(added map[string]*Op) error {
	if len(added) == 0 {
		return nil
	}
	g := requiredGraph(d.to)
	for _, cycle := range g.Cycles(3) {
		var closing []*Op
		for _, fk := range d.to.ForeignKeys() {
			op, ok := added[fkKey(fk)]
			if ok && fk.Required && !fk.Deferrable && slices.Contains(cycle, fk.Table) && slices.Contains(cycle, fk.RefTable) {
				closing = append(closing, op)
			}
		}
		if len(closing) == 0 {
			continue
		}
		if !d.cfg.deferCycles {
			return &quarry.MigrationError{
				Kind:    quarry.MigrationUnresolvableCycle,
				Op:      AddForeignKey.String(),
				Table:   cycle[0],
				Cycle:   cycle,
				Message: "required foreign keys form a cycle that no insert order satisfies",
				Hint:    "plan with WithDeferredCycles to create the keys DEFERRABLE INITIALLY DEFERRED",
			}
		}
		for _, op := range closing {
			op.Definition.ForeignKey.Deferrable = true
			op.Definition.Deferred = true
		}
		d.cfg.logger.Info("foreign key cycle deferred", slog.Any("tables", cycle))
	}
	return nil
}

// requiredGraph links tables by required, non-deferrable foreign keys.
func requiredGraph(s *qschema.Snapshot) *graph.Graph {
	g := graph.New()
	for _, m := range s.Tables() {
		g.AddNode(m.Table, m)
	}
	for _, fk := range s.ForeignKeys() {
		if fk.Required && !fk.Deferrable && fk.Table != fk.RefTable {
			_ = g.AddEdge(fk.RefTable, fk.Table)
		}
	}
	return g
}

func destructive(op, table, column string) error {
	return &quarry.MigrationError{
		Kind:    quarry.MigrationDestructiveWithoutConfirmation,
		Op:      op,
		Table:   table,
		Column:  column,
		Message: "the change discards data",
		Hint:    "plan with AllowDestructive to confirm",
	}
}

func tableDefinition(m *qschema.Model) Definition {
	def := Definition{PrimaryKey: slices.Clone(m.PrimaryKey)}
	for _, c := range m.Columns {
		def.Columns = append(def.Columns, c.Clone())
	}
	return def
}

func tableSet(s *qschema.Snapshot) map[string]*qschema.Model {
	tables := make(map[string]*qschema.Model)
	for _, m := range s.Tables() {
		tables[m.Table] = m
	}
	return tables
}

func fkKey(fk *qschema.ForeignKey) string { return fk.Table + "." + fk.Name }

func fkSet(s *qschema.Snapshot) map[string]*qschema.ForeignKey {
	fks := make(map[string]*qschema.ForeignKey)
	for _, fk := range s.ForeignKeys() {
		fks[fkKey(fk)] = fk
	}
	return fks
}

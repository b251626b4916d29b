package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/syssam/quarry"
	"github.com/syssam/quarry/graph"
	"github.com/syssam/quarry/schema/field"
)

// Snapshot is an immutable, versioned view of a schema. It is safe for
// concurrent use and independent of the Registry it was taken from.
type Snapshot struct {
	version string
	models  []*Model // registration order
	tables  []*Model // models, then synthesized join tables by name
	byName  map[string]*Model
	byTable map[string]*Model
	fks     []*ForeignKey
}

// NewSnapshot validates the given models as a whole and returns a snapshot
// of them, without going through a Registry. It is meant for tools that
// already hold complete schemas, such as persisted migration states.
func NewSnapshot(version string, models ...*Model) (*Snapshot, error) {
	r := NewRegistry(WithVersion(version))
	var errs []error
	for _, m := range models {
		if err := r.Register(m); err != nil {
			errs = append(errs, err)
		}
	}
	if err := quarry.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return r.Snapshot()
}

// Version returns the snapshot version.
func (s *Snapshot) Version() string { return s.version }

// Models returns copies of the registered models in registration order.
func (s *Snapshot) Models() []*Model { return cloneModels(s.models) }

// Tables returns copies of every table of the schema: the registered models
// followed by the synthesized join tables.
func (s *Snapshot) Tables() []*Model { return cloneModels(s.tables) }

// Model returns a copy of a model by name.
func (s *Snapshot) Model(name string) (*Model, bool) {
	m, ok := s.byName[name]
	return m.Clone(), ok
}

// ModelByTable returns a copy of a model, or of a synthesized join table,
// by table name.
func (s *Snapshot) ModelByTable(table string) (*Model, bool) {
	m, ok := s.byTable[table]
	return m.Clone(), ok
}

func cloneModels(models []*Model) []*Model {
	out := make([]*Model, len(models))
	for i, m := range models {
		out[i] = m.Clone()
	}
	return out
}

// Has reports if the snapshot contains the named model.
func (s *Snapshot) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Relation resolves a relation of a model and returns it with its target.
func (s *Snapshot) Relation(model, relation string) (*Relation, *Model, error) {
	m, ok := s.byName[model]
	if !ok {
		return nil, nil, quarry.NewSchemaError(quarry.SchemaUnknownModel, model, "model is not in the snapshot")
	}
	rel, ok := m.Relation(relation)
	if !ok {
		return nil, nil, &quarry.SchemaError{
			Kind:     quarry.SchemaUnknownRelation,
			Model:    model,
			Relation: relation,
			Message:  "relation is not declared",
		}
	}
	return rel.Clone(), s.byName[rel.Target].Clone(), nil
}

// ForeignKeys returns every foreign key of the schema, ordered by table and
// constraint name.
func (s *Snapshot) ForeignKeys() []*ForeignKey {
	fks := make([]*ForeignKey, len(s.fks))
	for i, fk := range s.fks {
		fks[i] = fk.Clone()
	}
	return fks
}

// ForeignKeysOf returns the foreign keys held by a table.
func (s *Snapshot) ForeignKeysOf(table string) []*ForeignKey {
	var fks []*ForeignKey
	for _, fk := range s.fks {
		if fk.Table == table {
			fks = append(fks, fk.Clone())
		}
	}
	return fks
}

// Links returns the hops joining rows of the relation's owner to rows of
// its target: one hop, or two through the join table of a many-to-many
// relation.
func (s *Snapshot) Links(owner *Model, rel *Relation) []Link {
	target := s.byName[rel.Target]
	switch {
	case rel.Kind == M2M:
		jt := rel.Through
		return []Link{
			{From: owner.Table, FromColumns: slices.Clone(owner.PrimaryKey), To: jt.Table, ToColumns: slices.Clone(jt.Columns)},
			{From: jt.Table, FromColumns: slices.Clone(jt.RefColumns), To: target.Table, ToColumns: slices.Clone(target.PrimaryKey)},
		}
	case rel.OwnerHoldsKey():
		return []Link{{From: owner.Table, FromColumns: slices.Clone(rel.Columns), To: target.Table, ToColumns: slices.Clone(rel.RefColumns)}}
	default:
		return []Link{{From: owner.Table, FromColumns: slices.Clone(rel.RefColumns), To: target.Table, ToColumns: slices.Clone(rel.Columns)}}
	}
}

// MarshalJSON encodes the snapshot as its version and models.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotRecord{Version: s.version, Models: s.models})
}

type snapshotRecord struct {
	Version string   `json:"version"`
	Models  []*Model `json:"models"`
}

// hash returns a short content hash used as the default version.
func (s *Snapshot) hash() string {
	b, err := json.Marshal(s.models)
	if err != nil {
		// Models were validated, so every type marshals.
		panic(fmt.Sprintf("schema: hash snapshot: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:6])
}

// newSnapshot resolves the relations of the given models, synthesizes join
// tables, derives foreign keys and, when checkCycles is set, rejects
// unresolvable dependency cycles.
func newSnapshot(models []*Model, checkCycles bool) (*Snapshot, []error) {
	s := &Snapshot{
		models:  models,
		byName:  make(map[string]*Model, len(models)),
		byTable: make(map[string]*Model, len(models)),
	}
	for _, m := range models {
		s.byName[m.Name] = m
		s.byTable[m.Table] = m
	}
	var (
		errs  []error
		joins = make(map[string]*Model)
		fks   = make(map[string]*ForeignKey)
	)
	addFK := func(owner *Model, rel *Relation, fk *ForeignKey) {
		key := fk.Table + "(" + strings.Join(fk.Columns, ",") + ")->" + fk.RefTable + "(" + strings.Join(fk.RefColumns, ",") + ")"
		prev, ok := fks[key]
		if !ok {
			fks[key] = fk
			return
		}
		if prev.OnDelete != "" && fk.OnDelete != "" && prev.OnDelete != fk.OnDelete {
			errs = append(errs, &quarry.SchemaError{
				Kind:     quarry.SchemaInvalidModel,
				Model:    owner.Name,
				Relation: rel.Name,
				Message:  fmt.Sprintf("on_delete %s conflicts with %s declared for %s", fk.OnDelete, prev.OnDelete, prev),
			})
			return
		}
		prev.Deferrable = prev.Deferrable || fk.Deferrable
		if prev.OnDelete == "" {
			prev.OnDelete = fk.OnDelete
		}
	}
	for _, m := range models {
		for _, rel := range m.Relations {
			target, err := resolveRelation(s.byName, m, rel)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if rel.Kind != M2M {
				holder, ref := target, m
				if rel.OwnerHoldsKey() {
					holder, ref = m, target
				}
				addFK(m, rel, &ForeignKey{
					Name:       foreignKeyName(holder.Table, rel.Columns),
					Table:      holder.Table,
					Columns:    slices.Clone(rel.Columns),
					RefTable:   ref.Table,
					RefColumns: slices.Clone(rel.RefColumns),
					Required:   notNull(holder, rel.Columns),
					Deferrable: rel.Deferrable,
					OnDelete:   rel.OnDelete,
				})
				continue
			}
			jt, err := s.joinTable(joins, m, rel, target)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, hop := range []struct {
				cols []string
				ref  *Model
			}{{rel.Through.Columns, m}, {rel.Through.RefColumns, target}} {
				addFK(m, rel, &ForeignKey{
					Name:       foreignKeyName(jt.Table, hop.cols),
					Table:      jt.Table,
					Columns:    slices.Clone(hop.cols),
					RefTable:   hop.ref.Table,
					RefColumns: slices.Clone(hop.ref.PrimaryKey),
					Required:   notNull(jt, hop.cols),
					OnDelete:   Cascade,
				})
			}
		}
	}
	s.tables = slices.Clone(models)
	for _, name := range sortedKeys(joins) {
		s.tables = append(s.tables, joins[name])
	}
	for _, key := range sortedKeys(fks) {
		s.fks = append(s.fks, fks[key])
	}
	sort.SliceStable(s.fks, func(i, j int) bool {
		if s.fks[i].Table != s.fks[j].Table {
			return s.fks[i].Table < s.fks[j].Table
		}
		return s.fks[i].Name < s.fks[j].Name
	})
	if checkCycles && len(errs) == 0 {
		errs = append(errs, s.checkCycles()...)
	}
	return s, errs
}

// joinTable returns the table backing a many-to-many relation: an
// explicitly registered model with that table name, or a synthesized one
// shared by every relation naming the same table.
func (s *Snapshot) joinTable(joins map[string]*Model, owner *Model, rel *Relation, target *Model) (*Model, error) {
	jt := rel.Through
	invalid := func(format string, args ...any) error {
		return &quarry.SchemaError{
			Kind:     quarry.SchemaInvalidModel,
			Model:    owner.Name,
			Relation: rel.Name,
			Target:   rel.Target,
			Message:  fmt.Sprintf(format, args...),
		}
	}
	columns := make([]*Column, 0, len(jt.Columns)+len(jt.RefColumns))
	for i, col := range jt.Columns {
		pk, _ := owner.Column(owner.PrimaryKey[i])
		columns = append(columns, &Column{Name: col, Type: pk.Type})
	}
	for i, col := range jt.RefColumns {
		pk, _ := target.Column(target.PrimaryKey[i])
		columns = append(columns, &Column{Name: col, Type: pk.Type})
	}
	m, ok := s.byTable[jt.Table]
	if !ok {
		m, ok = joins[jt.Table]
	}
	if !ok {
		m = &Model{
			Name:       jt.Table,
			Table:      jt.Table,
			Columns:    columns,
			PrimaryKey: append(slices.Clone(jt.Columns), jt.RefColumns...),
			JoinTable:  true,
		}
		joins[jt.Table] = m
		s.byTable[jt.Table] = m
		return m, nil
	}
	for _, want := range columns {
		got, ok := m.Column(want.Name)
		if !ok {
			return nil, invalid("join table %q has no column %q", jt.Table, want.Name)
		}
		if !keyCompatible(got.Type, want.Type) {
			return nil, invalid("join table column %s.%s has type %s, want %s", jt.Table, want.Name, got.Type, want.Type)
		}
	}
	return m, nil
}

// checkCycles reports every cycle of three or more tables joined by
// required, non-deferrable foreign keys. Such a cycle admits no insert
// order, and no creation order when constraints are checked immediately.
func (s *Snapshot) checkCycles() []error {
	g := s.requiredGraph()
	var errs []error
	for _, cycle := range g.Cycles(3) {
		names := make([]string, len(cycle))
		for i, table := range cycle {
			names[i] = s.byTable[table].Name
		}
		errs = append(errs, &quarry.SchemaError{
			Kind:    quarry.SchemaDependencyCycle,
			Model:   names[0],
			Cycle:   names,
			Message: "required foreign keys form a cycle; mark one relation deferrable or make a key nullable",
		})
	}
	return errs
}

// requiredGraph returns the dependency graph over tables whose edges are
// the required, non-deferrable foreign keys, pointing from the referenced
// table to the referencing one.
func (s *Snapshot) requiredGraph() *graph.Graph {
	g := graph.New()
	for _, m := range s.tables {
		g.AddNode(m.Table, m)
	}
	for _, fk := range s.fks {
		if fk.Required && !fk.Deferrable && fk.Table != fk.RefTable {
			_ = g.AddEdge(fk.RefTable, fk.Table)
		}
	}
	return g
}

// DependencyGraph returns a new graph over copies of all tables with an
// edge from each referenced table to each table holding a foreign key into
// it. Self references are omitted.
func (s *Snapshot) DependencyGraph() *graph.Graph {
	g := graph.New()
	for _, m := range s.tables {
		g.AddNode(m.Table, m.Clone())
	}
	for _, fk := range s.fks {
		if fk.Table != fk.RefTable {
			_ = g.AddEdge(fk.RefTable, fk.Table)
		}
	}
	return g
}

// keyCompatible reports if a column of type fk may reference a column of
// type ref.
func keyCompatible(fk, ref field.Type) bool {
	switch {
	case fk == ref:
		return true
	case (fk.Kind == field.KindInt || fk.Kind == field.KindBigInt) &&
		(ref.Kind == field.KindInt || ref.Kind == field.KindBigInt):
		return true
	case fk.Kind.Textual() && ref.Kind.Textual():
		return true
	default:
		return fk.Kind == ref.Kind
	}
}

func notNull(m *Model, columns []string) bool {
	for _, name := range columns {
		if c, ok := m.Column(name); !ok || c.Nullable {
			return false
		}
	}
	return len(columns) > 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

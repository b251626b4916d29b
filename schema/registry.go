package schema

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/syssam/quarry"
	"github.com/syssam/quarry/schema/field"
)

// Option configures a Registry.
type Option func(*config)

type config struct {
	logger      *slog.Logger
	version     string
	checkCycles bool
}

// WithLogger sets the logger used to report registrations.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithVersion sets the version stamped on snapshots. By default a snapshot
// is versioned by a hash of its content.
func WithVersion(v string) Option {
	return func(c *config) {
		c.version = v
	}
}

// DeferCycleCheck disables the dependency cycle check of Validate. Cycles of
// required foreign keys are then reported by the migration planner instead.
func DeferCycleCheck() Option {
	return func(c *config) {
		c.checkCycles = false
	}
}

// Registry holds the models of one schema during the registration phase.
// Registration takes a write lock; every other method a read lock, so a
// Registry may be shared between one writer and many readers.
type Registry struct {
	mu      sync.RWMutex
	cfg     config
	models  []*Model
	byName  map[string]*Model
	byTable map[string]string
	frozen  bool
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	cfg := config{
		logger:      slog.New(slog.DiscardHandler),
		checkCycles: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{
		cfg:     cfg,
		byName:  make(map[string]*Model),
		byTable: make(map[string]string),
	}
}

// NewRegistryFrom returns a registry populated from a descriptor.
func NewRegistryFrom(d Descriptor, opts ...Option) (*Registry, error) {
	r := NewRegistry(opts...)
	if err := r.Ingest(d); err != nil {
		return nil, err
	}
	return r, nil
}

// Descriptor is the ingestion shape of a schema: model name to definition.
// The map key is authoritative for the model name.
type Descriptor map[string]*Model

// Ingest registers every model of the descriptor in model-name order. All
// registration failures are reported together.
func (r *Registry) Ingest(d Descriptor) error {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	var errs []error
	for _, name := range names {
		m := d[name]
		if m == nil {
			errs = append(errs, quarry.NewSchemaError(quarry.SchemaInvalidModel, name, "nil model"))
			continue
		}
		m = m.Clone()
		m.Name = name
		if err := r.Register(m); err != nil {
			errs = append(errs, err)
		}
	}
	return quarry.NewAggregateError(errs...)
}

// Register adds a model to the registry. The model is copied, conventional
// table and index names are filled in, and its structure is checked.
func (r *Registry) Register(m *Model) error {
	if m == nil {
		return quarry.NewSchemaError(quarry.SchemaInvalidModel, "", "nil model")
	}
	m = m.Clone()
	if m.Table == "" && m.Name != "" {
		m.Table = TableName(m.Name)
	}
	for _, idx := range m.Indexes {
		if idx.Name == "" && len(idx.Columns) > 0 {
			idx.Name = indexName(m.Table, idx)
		}
	}
	if err := checkModel(m); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return quarry.NewSchemaError(quarry.SchemaFrozen, m.Name, "registration after freeze")
	}
	if _, ok := r.byName[m.Name]; ok {
		return quarry.NewSchemaError(quarry.SchemaDuplicateModel, m.Name, "model already registered")
	}
	if owner, ok := r.byTable[m.Table]; ok {
		return quarry.NewSchemaError(quarry.SchemaDuplicateModel, m.Name,
			fmt.Sprintf("table %q already used by model %s", m.Table, owner))
	}
	r.models = append(r.models, m)
	r.byName[m.Name] = m
	r.byTable[m.Table] = m.Name
	r.cfg.logger.Debug("schema: model registered",
		slog.String("model", m.Name),
		slog.String("table", m.Table),
		slog.Int("columns", len(m.Columns)),
		slog.Int("relations", len(m.Relations)),
	)
	return nil
}

// Freeze ends the registration phase. Later calls to Register fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// ResolveRelation resolves a relation of a registered model and returns it,
// with conventional key columns filled in, together with its target model.
func (r *Registry) ResolveRelation(model, relation string) (*Relation, *Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[model]
	if !ok {
		return nil, nil, quarry.NewSchemaError(quarry.SchemaUnknownModel, model, "model is not registered")
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
	rel = rel.Clone()
	target, err := resolveRelation(r.byName, m, rel)
	if err != nil {
		return nil, nil, err
	}
	return rel, target.Clone(), nil
}

// Validate checks the registered models as a whole: relation targets exist,
// key columns exist and agree in type, and no cycle of required foreign keys
// across three or more models exists unless one of its keys is deferrable.
// Every problem found is reported.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, err := r.build()
	return err
}

// Snapshot validates the registry and returns an immutable copy of it.
// Later registrations do not affect the returned snapshot.
func (r *Registry) Snapshot() (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.build()
}

func (r *Registry) build() (*Snapshot, error) {
	models := make([]*Model, len(r.models))
	for i, m := range r.models {
		models[i] = m.Clone()
	}
	s, errs := newSnapshot(models, r.cfg.checkCycles)
	if err := quarry.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	s.version = r.cfg.version
	if s.version == "" {
		s.version = s.hash()
	}
	r.cfg.logger.Debug("schema: snapshot taken",
		slog.String("version", s.version),
		slog.Int("models", len(s.models)),
		slog.Int("foreign_keys", len(s.fks)),
	)
	return s, nil
}

// checkModel checks the structure of a single model, without looking at
// other models.
func checkModel(m *Model) error {
	invalid := func(column, format string, args ...any) error {
		return &quarry.SchemaError{
			Kind:    quarry.SchemaInvalidModel,
			Model:   m.Name,
			Column:  column,
			Message: fmt.Sprintf(format, args...),
		}
	}
	if m.Name == "" {
		return invalid("", "model name is empty")
	}
	if len(m.Columns) == 0 {
		return invalid("", "model has no columns")
	}
	seen := make(map[string]bool, len(m.Columns))
	for _, c := range m.Columns {
		switch {
		case c == nil || c.Name == "":
			return invalid("", "column name is empty")
		case seen[c.Name]:
			return invalid(c.Name, "duplicate column")
		}
		seen[c.Name] = true
		if err := c.Type.Valid(); err != nil {
			return invalid(c.Name, "%v", err)
		}
		if d := c.Default; d != nil && d.Expr == "" {
			v := d.Value
			if v == nil {
				return invalid(c.Name, "default has neither value nor expression")
			}
			if _, null := v.(field.Null); null && !c.Nullable {
				return invalid(c.Name, "NULL default on NOT NULL column")
			}
			if !c.Type.Accepts(v) {
				return invalid(c.Name, "default %s does not fit type %s", v, c.Type)
			}
		}
	}
	if len(m.PrimaryKey) == 0 {
		return invalid("", "model has no primary key")
	}
	for _, pk := range m.PrimaryKey {
		c, ok := m.Column(pk)
		if !ok {
			return invalid(pk, "primary key column does not exist")
		}
		if c.Nullable {
			return invalid(pk, "primary key column is nullable")
		}
	}
	rels := make(map[string]bool, len(m.Relations))
	for _, rel := range m.Relations {
		if rel == nil || rel.Name == "" {
			return invalid("", "relation name is empty")
		}
		if rels[rel.Name] {
			return &quarry.SchemaError{Kind: quarry.SchemaInvalidModel, Model: m.Name, Relation: rel.Name, Message: "duplicate relation"}
		}
		rels[rel.Name] = true
		if err := checkRelation(m, rel); err != "" {
			return &quarry.SchemaError{Kind: quarry.SchemaInvalidModel, Model: m.Name, Relation: rel.Name, Message: err}
		}
	}
	idxs := make(map[string]bool, len(m.Indexes))
	for _, idx := range m.Indexes {
		if idx == nil || len(idx.Columns) == 0 {
			return invalid("", "index has no columns")
		}
		if idxs[idx.Name] {
			return invalid("", "duplicate index %q", idx.Name)
		}
		idxs[idx.Name] = true
		for _, col := range idx.Columns {
			if _, ok := m.Column(col); !ok {
				return invalid(col, "index %q references a missing column", idx.Name)
			}
		}
	}
	return nil
}

func checkRelation(m *Model, rel *Relation) string {
	switch {
	case rel.Kind < O2O || rel.Kind > M2M:
		return fmt.Sprintf("invalid relation kind %d", rel.Kind)
	case rel.Target == "":
		return "relation has no target"
	case rel.Through != nil && rel.Kind != M2M:
		return "join table on a relation that is not many-to-many"
	case rel.Inverse && rel.Kind != O2O:
		return "inverse is only meaningful for one-to-one relations"
	case rel.Kind == M2M && (rel.Deferrable || rel.OnDelete != ""):
		return "many-to-many relations do not declare key options"
	case len(rel.RefColumns) > 0 && len(rel.Columns) != len(rel.RefColumns):
		return "columns and ref_columns differ in length"
	}
	switch rel.OnDelete {
	case "", Cascade, SetNull, Restrict, NoAction, SetDefault:
	default:
		return fmt.Sprintf("unknown on_delete action %q", rel.OnDelete)
	}
	if rel.OwnerHoldsKey() {
		for _, col := range rel.Columns {
			if _, ok := m.Column(col); !ok {
				return fmt.Sprintf("foreign key column %q does not exist", col)
			}
		}
	}
	return ""
}

// resolveRelation fills conventional key columns into rel and checks them
// against the owner and target models. It returns the target model.
func resolveRelation(models map[string]*Model, owner *Model, rel *Relation) (*Model, error) {
	target, ok := models[rel.Target]
	if !ok {
		return nil, &quarry.SchemaError{
			Kind:     quarry.SchemaUnknownTarget,
			Model:    owner.Name,
			Relation: rel.Name,
			Target:   rel.Target,
			Message:  "target model is not registered",
		}
	}
	invalid := func(column, format string, args ...any) error {
		return &quarry.SchemaError{
			Kind:     quarry.SchemaInvalidModel,
			Model:    owner.Name,
			Relation: rel.Name,
			Column:   column,
			Target:   rel.Target,
			Message:  fmt.Sprintf(format, args...),
		}
	}
	if rel.Kind == M2M {
		if rel.Through == nil {
			rel.Through = &JoinTable{}
		}
		jt := rel.Through
		if jt.Table == "" {
			jt.Table = owner.Table + "_" + TableName(rel.Name)
		}
		if len(jt.Columns) == 0 {
			jt.Columns = keyColumns(owner.Name, owner.PrimaryKey)
		}
		if len(jt.RefColumns) == 0 {
			name := target.Name
			if target == owner {
				name = rel.Name
			}
			jt.RefColumns = keyColumns(name, target.PrimaryKey)
		}
		switch {
		case len(jt.Columns) != len(owner.PrimaryKey):
			return nil, invalid("", "join table columns do not match the primary key of %s", owner.Name)
		case len(jt.RefColumns) != len(target.PrimaryKey):
			return nil, invalid("", "join table ref_columns do not match the primary key of %s", target.Name)
		case hasDuplicates(append(slices.Clone(jt.Columns), jt.RefColumns...)):
			return nil, invalid("", "join table %q repeats a column", jt.Table)
		}
		return target, nil
	}

	holder, ref := target, owner
	if rel.OwnerHoldsKey() {
		holder, ref = owner, target
	}
	if len(rel.Columns) == 0 {
		name := owner.Name
		if rel.OwnerHoldsKey() {
			name = rel.Name
		}
		rel.Columns = keyColumns(name, ref.PrimaryKey)
	}
	if len(rel.RefColumns) == 0 {
		rel.RefColumns = slices.Clone(ref.PrimaryKey)
	}
	if len(rel.Columns) != len(rel.RefColumns) {
		return nil, invalid("", "%d foreign key columns reference %d columns", len(rel.Columns), len(rel.RefColumns))
	}
	for i, col := range rel.Columns {
		fc, ok := holder.Column(col)
		if !ok {
			return nil, invalid(col, "foreign key column does not exist on %s", holder.Name)
		}
		rc, ok := ref.Column(rel.RefColumns[i])
		if !ok {
			return nil, invalid(rel.RefColumns[i], "referenced column does not exist on %s", ref.Name)
		}
		if !keyCompatible(fc.Type, rc.Type) {
			return nil, invalid(col, "type %s cannot reference %s.%s of type %s", fc.Type, ref.Name, rc.Name, rc.Type)
		}
	}
	return target, nil
}

// keyColumns returns the conventional foreign-key column names for a
// reference to the given key: "author_id" for a single column key, and
// "author_<col>" for each column of a composite key.
func keyColumns(name string, key []string) []string {
	if len(key) == 1 {
		return []string{ForeignKeyColumn(name)}
	}
	base := ForeignKeyColumn(name)
	base = base[:len(base)-len("id")]
	cols := make([]string, len(key))
	for i, k := range key {
		cols[i] = base + k
	}
	return cols
}

func hasDuplicates(names []string) bool {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return true
		}
		seen[n] = true
	}
	return false
}

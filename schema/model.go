package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/go-openapi/inflect"
	"gopkg.in/yaml.v3"

	"github.com/syssam/quarry/schema/field"
)

// Model describes one table-level entity: its columns, primary key,
// relations and indexes. A Model handed to Register is copied; the copy held
// by a Snapshot must not be modified.
type Model struct {
	Name       string      `json:"name" yaml:"name"`
	Table      string      `json:"table,omitempty" yaml:"table,omitempty"`
	Columns    []*Column   `json:"columns" yaml:"columns"`
	PrimaryKey []string    `json:"primary_key" yaml:"primary_key"`
	Relations  []*Relation `json:"relations,omitempty" yaml:"relations,omitempty"`
	Indexes    []*Index    `json:"indexes,omitempty" yaml:"indexes,omitempty"`

	// JoinTable is set on the models a Snapshot synthesizes for
	// many-to-many join tables that were not registered explicitly.
	JoinTable bool `json:"join_table,omitempty" yaml:"join_table,omitempty"`
}

// Column returns the column with the given name.
func (m *Model) Column(name string) (*Column, bool) {
	for _, c := range m.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Relation returns the relation with the given name.
func (m *Model) Relation(name string) (*Relation, bool) {
	for _, r := range m.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Index returns the index with the given name.
func (m *Model) Index(name string) (*Index, bool) {
	for _, idx := range m.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return nil, false
}

// ColumnNames returns the column names in declaration order.
func (m *Model) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// IsPrimaryKey reports if the column is part of the primary key.
func (m *Model) IsPrimaryKey(column string) bool {
	return slices.Contains(m.PrimaryKey, column)
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	c := *m
	c.Columns = make([]*Column, len(m.Columns))
	for i, col := range m.Columns {
		c.Columns[i] = col.Clone()
	}
	c.PrimaryKey = slices.Clone(m.PrimaryKey)
	c.Relations = make([]*Relation, len(m.Relations))
	for i, r := range m.Relations {
		c.Relations[i] = r.Clone()
	}
	c.Indexes = make([]*Index, len(m.Indexes))
	for i, idx := range m.Indexes {
		c.Indexes[i] = idx.Clone()
	}
	return &c
}

// Column describes a table column.
type Column struct {
	Name     string     `json:"name" yaml:"name"`
	Type     field.Type `json:"type" yaml:"type"`
	Nullable bool       `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Default  *Default   `json:"default,omitempty" yaml:"default,omitempty"`
	Unique   bool       `json:"unique,omitempty" yaml:"unique,omitempty"`
	Check    string     `json:"check,omitempty" yaml:"check,omitempty"`
}

// Clone returns a copy of the column.
func (c *Column) Clone() *Column {
	if c == nil {
		return nil
	}
	cc := *c
	if c.Default != nil {
		d := *c.Default
		cc.Default = &d
	}
	return &cc
}

// Equal reports if two column definitions are identical.
func (c *Column) Equal(o *Column) bool {
	return c.Name == o.Name && c.Type == o.Type && c.Nullable == o.Nullable &&
		c.Unique == o.Unique && c.Check == o.Check && c.Default.Equal(o.Default)
}

// Default is a column default: either a typed literal Value or a raw SQL
// expression taken from trusted schema metadata, such as CURRENT_TIMESTAMP.
type Default struct {
	Value field.Value
	Expr  string
}

// DefaultValue returns a literal default.
func DefaultValue(v field.Value) *Default { return &Default{Value: v} }

// DefaultExpr returns an expression default.
func DefaultExpr(expr string) *Default { return &Default{Expr: expr} }

// Equal reports if two defaults are identical. Nil defaults are equal.
func (d *Default) Equal(o *Default) bool {
	switch {
	case d == nil || o == nil:
		return d == nil && o == nil
	case d.Expr != "" || o.Expr != "":
		return d.Expr == o.Expr
	default:
		return field.Equal(d.Value, o.Value)
	}
}

// String returns a readable form of the default.
func (d *Default) String() string {
	switch {
	case d == nil:
		return ""
	case d.Expr != "":
		return d.Expr
	case d.Value == nil:
		return field.Null{}.String()
	default:
		return d.Value.String()
	}
}

// defaultRecord is the persisted form of a Default.
type defaultRecord struct {
	Expr  string         `json:"expr,omitempty" yaml:"expr,omitempty"`
	Value *field.Literal `json:"value,omitempty" yaml:"value,omitempty"`
}

func (d Default) record() defaultRecord {
	if d.Expr != "" {
		return defaultRecord{Expr: d.Expr}
	}
	lit := field.ToLiteral(d.Value)
	return defaultRecord{Value: &lit}
}

// MarshalJSON implements json.Marshaler.
func (d Default) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.record())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Default) UnmarshalJSON(b []byte) error {
	var r defaultRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	return d.fromRecord(r)
}

// MarshalYAML implements yaml.Marshaler.
func (d Default) MarshalYAML() (any, error) {
	return d.record(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Default) UnmarshalYAML(node *yaml.Node) error {
	var r defaultRecord
	if err := node.Decode(&r); err != nil {
		return err
	}
	return d.fromRecord(r)
}

func (d *Default) fromRecord(r defaultRecord) error {
	switch {
	case r.Expr != "" && r.Value != nil:
		return fmt.Errorf("schema: default has both expr and value")
	case r.Expr != "":
		*d = Default{Expr: r.Expr}
	case r.Value != nil:
		v, err := r.Value.Decode()
		if err != nil {
			return err
		}
		*d = Default{Value: v}
	default:
		return fmt.Errorf("schema: empty default")
	}
	return nil
}

// RelationKind is the cardinality of a relation.
type RelationKind uint8

// Relation kinds.
const (
	O2O RelationKind = iota + 1 // one-to-one
	O2M                         // one-to-many
	M2O                         // many-to-one
	M2M                         // many-to-many
)

var relationKindNames = map[RelationKind]string{
	O2O: "O2O",
	O2M: "O2M",
	M2O: "M2O",
	M2M: "M2M",
}

// String returns the kind name.
func (k RelationKind) String() string {
	if s, ok := relationKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("RelationKind(%d)", k)
}

// ToOne reports if the relation yields at most one target row per owner.
func (k RelationKind) ToOne() bool { return k == O2O || k == M2O }

// MarshalText implements encoding.TextMarshaler.
func (k RelationKind) MarshalText() ([]byte, error) {
	s, ok := relationKindNames[k]
	if !ok {
		return nil, fmt.Errorf("schema: invalid relation kind %d", k)
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *RelationKind) UnmarshalText(text []byte) error {
	kind, err := ParseRelationKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseRelationKind parses "O2M", "one-to-many", "has_many" and similar
// spellings.
func ParseRelationKind(s string) (RelationKind, error) {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)) {
	case "o2o", "onetoone", "hasone":
		return O2O, nil
	case "o2m", "onetomany", "hasmany":
		return O2M, nil
	case "m2o", "manytoone", "belongsto":
		return M2O, nil
	case "m2m", "manytomany":
		return M2M, nil
	default:
		return 0, fmt.Errorf("schema: unknown relation kind %q", s)
	}
}

// Referential actions accepted in Relation.OnDelete.
const (
	Cascade    = "CASCADE"
	SetNull    = "SET NULL"
	Restrict   = "RESTRICT"
	NoAction   = "NO ACTION"
	SetDefault = "SET DEFAULT"
)

// Relation is a typed association between the owning model and a target
// model.
//
// Columns are the foreign-key columns on the side that holds the key and
// RefColumns the columns they reference. The owner holds the key for M2O
// relations and for O2O relations unless Inverse is set; the target holds
// it for O2M relations and inverse O2O relations. M2M relations hold their
// keys in the Through join table instead.
//
// Unset Columns, RefColumns and Through are filled with conventional names
// when a snapshot is taken.
type Relation struct {
	Name       string       `json:"name" yaml:"name"`
	Kind       RelationKind `json:"kind" yaml:"kind"`
	Target     string       `json:"target" yaml:"target"`
	Columns    []string     `json:"columns,omitempty" yaml:"columns,omitempty"`
	RefColumns []string     `json:"ref_columns,omitempty" yaml:"ref_columns,omitempty"`
	Through    *JoinTable   `json:"through,omitempty" yaml:"through,omitempty"`
	Inverse    bool         `json:"inverse,omitempty" yaml:"inverse,omitempty"`
	// Deferrable marks the foreign key as creatable with deferred checking,
	// which allows it to take part in a cycle of required foreign keys.
	Deferrable bool   `json:"deferrable,omitempty" yaml:"deferrable,omitempty"`
	OnDelete   string `json:"on_delete,omitempty" yaml:"on_delete,omitempty"`
}

// Clone returns a deep copy of the relation.
func (r *Relation) Clone() *Relation {
	if r == nil {
		return nil
	}
	c := *r
	c.Columns = slices.Clone(r.Columns)
	c.RefColumns = slices.Clone(r.RefColumns)
	if r.Through != nil {
		t := *r.Through
		t.Columns = slices.Clone(r.Through.Columns)
		t.RefColumns = slices.Clone(r.Through.RefColumns)
		c.Through = &t
	}
	return &c
}

// OwnerHoldsKey reports if the foreign-key columns live on the owning model.
func (r *Relation) OwnerHoldsKey() bool {
	return r.Kind == M2O || (r.Kind == O2O && !r.Inverse)
}

// JoinTable describes the table backing a many-to-many relation. Columns
// reference the owner's primary key and RefColumns the target's.
type JoinTable struct {
	Table      string   `json:"table" yaml:"table"`
	Columns    []string `json:"columns,omitempty" yaml:"columns,omitempty"`
	RefColumns []string `json:"ref_columns,omitempty" yaml:"ref_columns,omitempty"`
}

// Index describes a table index.
type Index struct {
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Columns []string `json:"columns" yaml:"columns"`
	Unique  bool     `json:"unique,omitempty" yaml:"unique,omitempty"`
}

// Clone returns a copy of the index.
func (idx *Index) Clone() *Index {
	if idx == nil {
		return nil
	}
	c := *idx
	c.Columns = slices.Clone(idx.Columns)
	return &c
}

// Equal reports if two index definitions are identical.
func (idx *Index) Equal(o *Index) bool {
	return idx.Name == o.Name && idx.Unique == o.Unique && slices.Equal(idx.Columns, o.Columns)
}

// ForeignKey is a foreign-key constraint derived from the relations of a
// snapshot. Relations describing the same constraint from both ends (an O2M
// and its M2O inverse) yield a single ForeignKey.
type ForeignKey struct {
	Name       string   `json:"name" yaml:"name"`
	Table      string   `json:"table" yaml:"table"`
	Columns    []string `json:"columns" yaml:"columns"`
	RefTable   string   `json:"ref_table" yaml:"ref_table"`
	RefColumns []string `json:"ref_columns" yaml:"ref_columns"`
	// Required is set when every foreign-key column is NOT NULL.
	Required   bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Deferrable bool   `json:"deferrable,omitempty" yaml:"deferrable,omitempty"`
	OnDelete   string `json:"on_delete,omitempty" yaml:"on_delete,omitempty"`
}

// Clone returns a copy of the foreign key.
func (fk *ForeignKey) Clone() *ForeignKey {
	c := *fk
	c.Columns = slices.Clone(fk.Columns)
	c.RefColumns = slices.Clone(fk.RefColumns)
	return &c
}

// Equal reports if two foreign keys are identical.
func (fk *ForeignKey) Equal(o *ForeignKey) bool {
	return fk.Name == o.Name && fk.Table == o.Table && fk.RefTable == o.RefTable &&
		slices.Equal(fk.Columns, o.Columns) && slices.Equal(fk.RefColumns, o.RefColumns) &&
		fk.Required == o.Required && fk.Deferrable == o.Deferrable && fk.OnDelete == o.OnDelete
}

// String returns "table(cols) -> ref_table(ref_cols)".
func (fk *ForeignKey) String() string {
	return fmt.Sprintf("%s(%s) -> %s(%s)", fk.Table, strings.Join(fk.Columns, ", "),
		fk.RefTable, strings.Join(fk.RefColumns, ", "))
}

// Link is one hop of a relation: rows of table From match rows of table To
// where FromColumns equal ToColumns pairwise.
type Link struct {
	From        string
	FromColumns []string
	To          string
	ToColumns   []string
}

// TableName returns the conventional table name of a model:
// the pluralized snake_case model name.
func TableName(model string) string {
	return inflect.Pluralize(inflect.Underscore(model))
}

// ForeignKeyColumn returns the conventional foreign-key column name
// referencing the given model or relation name, e.g. "author_id".
func ForeignKeyColumn(name string) string {
	return inflect.Underscore(inflect.Singularize(name)) + "_id"
}

// foreignKeyName returns the conventional constraint name for a foreign key.
func foreignKeyName(table string, columns []string) string {
	return table + "_" + strings.Join(columns, "_") + "_fkey"
}

// indexName returns the conventional name for an index.
func indexName(table string, idx *Index) string {
	suffix := "_idx"
	if idx.Unique {
		suffix = "_key"
	}
	return table + "_" + strings.Join(idx.Columns, "_") + suffix
}

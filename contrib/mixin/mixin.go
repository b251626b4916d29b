// Package mixin provides reusable column sets for schema models.
//
// A mixin contributes columns and indexes to every model it is applied to.
// Mixin columns are placed before the columns of the model:
//
//	post, err := mixin.Apply(&schema.Model{
//	    Name:    "Post",
//	    Columns: []*schema.Column{{Name: "title", Type: field.TypeText()}},
//	}, mixin.ID{}, mixin.Time{})
//	// post columns: id, created_at, updated_at, title
//
// Descriptor files refer to mixins by name:
//
//	models:
//	  - name: Post
//	    mixins: [id, time]
//	    columns:
//	      - {name: title, type: text}
package mixin

import (
	"fmt"
	"sort"

	"github.com/syssam/quarry"
	"github.com/syssam/quarry/schema"
	"github.com/syssam/quarry/schema/field"
)

// Mixin is a reusable set of columns and indexes.
type Mixin interface {
	Columns() []*schema.Column
	Indexes() []*schema.Index
}

// Keyed is implemented by mixins that supply the primary key of a model.
type Keyed interface {
	PrimaryKey() []string
}

// Schema is the default implementation of Mixin. Custom mixins embed it
// and override the methods they need.
type Schema struct{}

// Columns of the mixin.
func (Schema) Columns() []*schema.Column { return nil }

// Indexes of the mixin.
func (Schema) Indexes() []*schema.Index { return nil }

// CreateTime adds a created_at column set by the database on insert.
type CreateTime struct{ Schema }

// Columns of the create time mixin.
func (CreateTime) Columns() []*schema.Column {
	return []*schema.Column{
		{Name: "created_at", Type: field.TypeTime(), Default: schema.DefaultExpr("CURRENT_TIMESTAMP")},
	}
}

// UpdateTime adds an updated_at column.
type UpdateTime struct{ Schema }

// Columns of the update time mixin.
func (UpdateTime) Columns() []*schema.Column {
	return []*schema.Column{
		{Name: "updated_at", Type: field.TypeTime(), Default: schema.DefaultExpr("CURRENT_TIMESTAMP")},
	}
}

// Time composes CreateTime and UpdateTime.
type Time struct{ Schema }

// Columns of the time mixin.
func (Time) Columns() []*schema.Column {
	return append(CreateTime{}.Columns(), UpdateTime{}.Columns()...)
}

// ID adds a UUID primary key column.
type ID struct{ Schema }

// Columns of the ID mixin.
func (ID) Columns() []*schema.Column {
	return []*schema.Column{{Name: "id", Type: field.TypeUUID()}}
}

// PrimaryKey implements Keyed.
func (ID) PrimaryKey() []string { return []string{"id"} }

// SoftDelete adds a nullable deleted_at column. Rows are marked deleted
// instead of being removed.
type SoftDelete struct{ Schema }

// Columns of the soft delete mixin.
func (SoftDelete) Columns() []*schema.Column {
	return []*schema.Column{{Name: "deleted_at", Type: field.TypeTime(), Nullable: true}}
}

// Indexes of the soft delete mixin.
func (SoftDelete) Indexes() []*schema.Index {
	return []*schema.Index{{Columns: []string{"deleted_at"}}}
}

// TenantID adds an indexed tenant_id column for multi-tenant tables.
type TenantID struct{ Schema }

// Columns of the tenant mixin.
func (TenantID) Columns() []*schema.Column {
	return []*schema.Column{{Name: "tenant_id", Type: field.TypeVarchar(64), Check: "tenant_id <> ''"}}
}

// Indexes of the tenant mixin.
func (TenantID) Indexes() []*schema.Index {
	return []*schema.Index{{Columns: []string{"tenant_id"}}}
}

// TimeSoftDelete composes Time and SoftDelete.
type TimeSoftDelete struct{ Schema }

// Columns of the time soft delete mixin.
func (TimeSoftDelete) Columns() []*schema.Column {
	return append(Time{}.Columns(), SoftDelete{}.Columns()...)
}

// Indexes of the time soft delete mixin.
func (TimeSoftDelete) Indexes() []*schema.Index { return SoftDelete{}.Indexes() }

var named = map[string]Mixin{
	"create_time":      CreateTime{},
	"update_time":      UpdateTime{},
	"time":             Time{},
	"id":               ID{},
	"soft_delete":      SoftDelete{},
	"tenant_id":        TenantID{},
	"time_soft_delete": TimeSoftDelete{},
}

// Lookup returns the built-in mixin registered under name.
func Lookup(name string) (Mixin, bool) {
	m, ok := named[name]
	return m, ok
}

// Names returns the names of the built-in mixins, sorted.
func Names() []string {
	names := make([]string, 0, len(named))
	for n := range named {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply returns a copy of m with the columns and indexes of mixins added.
// A mixin supplying a primary key sets it when m declares none. Declaring
// the same column twice is an error.
func Apply(m *schema.Model, mixins ...Mixin) (*schema.Model, error) {
	out := m.Clone()
	var cols []*schema.Column
	for _, mx := range mixins {
		for _, c := range mx.Columns() {
			cols = append(cols, c.Clone())
		}
		for _, idx := range mx.Indexes() {
			out.Indexes = append(out.Indexes, idx.Clone())
		}
		if k, ok := mx.(Keyed); ok && len(out.PrimaryKey) == 0 {
			out.PrimaryKey = k.PrimaryKey()
		}
	}
	out.Columns = append(cols, out.Columns...)
	seen := make(map[string]bool, len(out.Columns))
	for _, c := range out.Columns {
		if seen[c.Name] {
			return nil, &quarry.SchemaError{
				Kind:    quarry.SchemaInvalidModel,
				Model:   m.Name,
				Column:  c.Name,
				Message: "column is declared twice by the model and its mixins",
			}
		}
		seen[c.Name] = true
	}
	return out, nil
}

// ApplyNamed applies the built-in mixins listed by name.
func ApplyNamed(m *schema.Model, names ...string) (*schema.Model, error) {
	mixins := make([]Mixin, 0, len(names))
	for _, n := range names {
		mx, ok := Lookup(n)
		if !ok {
			return nil, quarry.NewSchemaError(quarry.SchemaInvalidModel, m.Name, fmt.Sprintf("unknown mixin %q", n))
		}
		mixins = append(mixins, mx)
	}
	return Apply(m, mixins...)
}

// Package schema holds the model metadata every other quarry component reads.
//
// Models are registered into a Registry, either one by one or from a
// Descriptor produced by an external metadata extractor:
//
//	reg := schema.NewRegistry()
//	err := reg.Register(&schema.Model{
//	    Name: "Author",
//	    Columns: []*schema.Column{
//	        {Name: "id", Type: field.TypeBigInt()},
//	        {Name: "name", Type: field.TypeVarchar(255)},
//	    },
//	    PrimaryKey: []string{"id"},
//	    Relations: []*schema.Relation{
//	        {Name: "posts", Kind: schema.O2M, Target: "Post"},
//	    },
//	})
//
// Relations name their target lazily. Validate resolves every target, fills
// in conventional key columns ("author_id"), derives the foreign keys and
// checks the foreign-key dependency graph. Self references and reciprocal
// relations are legal; a cycle of required foreign keys through three or
// more models is not, unless one of them is deferrable.
//
// Snapshot returns an immutable copy of the registry that the query
// builder, the eager-load planner and the migration planner consume.
//
// # Defaults
//
// A table name defaults to the pluralized snake_case model name: Author is
// stored in "authors". The foreign key of an O2M relation defaults to the
// snake_case owner name followed by "_id" on the target, and the foreign key
// of an M2O relation to the relation name followed by "_id" on the owner.
package schema

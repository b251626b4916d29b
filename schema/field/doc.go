// Package field defines the logical column types and the typed values that
// flow through the query builder, the SQL compiler and the migration planner.
//
// A column type is a tagged variant:
//
//	field.Int()            // INTEGER
//	field.BigInt()         // BIGINT
//	field.Varchar(255)     // VARCHAR(255)
//	field.Decimal(10, 2)   // DECIMAL(10,2)
//	field.Time()           // TIMESTAMP
//
// Values are a sealed set of concrete types, one per logical type family.
// Callers pattern-match on them with a type switch; nothing in this package
// relies on reflection:
//
//	switch v := v.(type) {
//	case field.String:
//	    ...
//	case field.Int:
//	    ...
//	}
//
// Values are never rendered into SQL text. The compiler hands them to the
// driver through Value.Arg.
package field

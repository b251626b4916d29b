// Package schema plans and applies schema migrations.
//
// Diff compares two schema snapshots and returns a Plan: an ordered list of
// operations that is valid to run in turn. Dropping tables or columns needs
// AllowDestructive. Every operation records whether it can be undone, and
// Reverse builds the down plan of a reversible plan.
//
//	plan, err := schema.Diff(old, cur)
//	...
//	stmts, err := plan.SQL(dialect.PostgresProfile)
//
// Plans encode to JSON and YAML with a checksum that DecodePlan verifies.
// Dir stores plans as versioned up and down scripts next to their records,
// guarded by an atlas.sum integrity file, and Migrator applies the pending
// scripts of a Dir, recording each version in the quarry_revisions table.
package schema

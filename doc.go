// Package quarry is the query and migration core of an object-relational
// mapping layer.
//
// Model metadata is registered in a schema.Registry and frozen into a
// schema.Snapshot. From a snapshot:
//
//   - package query builds immutable query ASTs, checked against the schema;
//   - package dialect/sql compiles them into parameterized SQL for a dialect
//     capability profile;
//   - package dialect/sql/schema diffs two snapshots into an ordered,
//     reversible migration plan;
//   - package dialect/sql/sqlgraph plans eager loads of related rows as
//     joins or batched secondary queries.
//
// This package holds the error types shared by all of them and the Cache
// interface behind the statement cache.
package quarry

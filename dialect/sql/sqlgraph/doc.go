// Package sqlgraph loads relations along with the rows of a select.
//
// PlanEagerLoad resolves relation paths such as "posts.comments" against a
// schema snapshot and picks a strategy for every relation from its kind
// alone. To-one relations are joined into the root query. To-many relations
// are batched: once the parent rows are known, a single secondary query
// fetches the rows of every parent with an IN predicate over their keys.
//
//	q, _ := query.New(snap).Select("Author").Build()
//	plan, err := sqlgraph.PlanEagerLoad(snap, q, "posts.comments")
//	...
//	authors, err := sqlgraph.Load(ctx, exec, plan)
//
// Load runs a plan on an executor and returns the rows as a tree of Nodes.
// Merge is the generic form of its grouping step for callers decoding rows
// into their own types.
package sqlgraph

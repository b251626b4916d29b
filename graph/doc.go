// Package graph provides the directed dependency graph shared by the schema
// registry and the migration planner.
//
// Nodes are identified by name. An edge from parent to child means the child
// depends on the parent: the parent's DDL must run before the child's.
//
//	g := graph.New()
//	g.AddNode("authors", nil)
//	g.AddNode("posts", nil)
//	_ = g.AddEdge("authors", "posts") // posts.author_id references authors
//
//	order, err := g.TopologicalSort() // authors, posts
//
// Relation graphs of a schema are allowed to be cyclic, so the package also
// exposes cycle detection (HasCycle), strongly connected components
// (Components) and an ordering that breaks cycles deterministically
// (OrderBreakingCycles).
//
// Every result is deterministic: ties are broken by node name, never by map
// iteration order.
package graph

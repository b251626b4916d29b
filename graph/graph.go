package graph

import (
	"container/heap"
	"fmt"
	"slices"
	"sort"
)

// Node represents a node in the graph.
type Node struct {
	// ID is the unique identifier (model or table name).
	ID string
	// Data holds arbitrary node data.
	Data any
}

// Graph is a directed graph. It is not safe for concurrent mutation.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// New creates a new empty graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node to the graph, or updates its data if it exists.
func (g *Graph) AddNode(id string, data any) {
	if n, exists := g.nodes[id]; exists {
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
// Self-loops are rejected: a table referencing itself never constrains order.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("graph: parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("graph: child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("graph: self-loop detected: %s", parentID)
	}
	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Parents returns the dependencies of a node, sorted.
func (g *Graph) Parents(id string) []string {
	return sorted(g.parents[id])
}

// Children returns the dependents of a node, sorted.
func (g *Graph) Children(id string) []string {
	return sorted(g.edges[id])
}

// HasEdge reports if parent -> child exists.
func (g *Graph) HasEdge(parentID, childID string) bool {
	return slices.Contains(g.edges[parentID], childID)
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// IDs returns all node IDs, sorted.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasCycle returns true if the graph contains a cycle, along with the cycle
// path. The path starts and ends with the same node.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string
	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true
		for _, childID := range g.Children(id) {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}
		recStack[id] = false
		return false
	}
	for _, id := range g.IDs() {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// TopologicalSort returns node IDs with dependencies before dependents.
// Among nodes whose dependencies are satisfied the smallest ID goes first.
// It fails if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, &CycleError{Path: cyclePath}
	}
	return g.OrderBreakingCycles(), nil
}

// OrderBreakingCycles returns every node ID, dependencies first, like
// TopologicalSort. When only cyclic nodes remain, the smallest remaining ID
// is emitted next and its unsatisfied dependencies are ignored.
func (g *Graph) OrderBreakingCycles() []string {
	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.parents[id])
	}
	ready := &idHeap{}
	for id, d := range indegree {
		if d == 0 {
			heap.Push(ready, id)
		}
	}
	done := make(map[string]bool, len(g.nodes))
	order := make([]string, 0, len(g.nodes))
	emit := func(id string) {
		done[id] = true
		order = append(order, id)
		for _, child := range g.edges[id] {
			if done[child] {
				continue
			}
			indegree[child]--
			if indegree[child] == 0 {
				heap.Push(ready, child)
			}
		}
	}
	for len(order) < len(g.nodes) {
		if ready.Len() == 0 {
			// Only cycles remain.
			for _, id := range g.IDs() {
				if !done[id] {
					indegree[id] = 0
					heap.Push(ready, id)
					break
				}
			}
		}
		id := heap.Pop(ready).(string)
		if done[id] {
			continue
		}
		emit(id)
	}
	return order
}

// Components returns the strongly connected components of the graph using
// Tarjan's algorithm. Members of each component are sorted and components
// are ordered by their smallest member.
func (g *Graph) Components() [][]string {
	var (
		index   int
		stack   []string
		onStack = make(map[string]bool)
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		comps   [][]string
	)
	var connect func(id string)
	connect = func(id string) {
		indices[id] = index
		lowlink[id] = index
		index++
		stack = append(stack, id)
		onStack[id] = true
		for _, child := range g.Children(id) {
			if _, seen := indices[child]; !seen {
				connect(child)
				lowlink[id] = min(lowlink[id], lowlink[child])
			} else if onStack[child] {
				lowlink[id] = min(lowlink[id], indices[child])
			}
		}
		if lowlink[id] != indices[id] {
			return
		}
		var comp []string
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			comp = append(comp, top)
			if top == id {
				break
			}
		}
		sort.Strings(comp)
		comps = append(comps, comp)
	}
	for _, id := range g.IDs() {
		if _, seen := indices[id]; !seen {
			connect(id)
		}
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i][0] < comps[j][0] })
	return comps
}

// Cycles returns one simple cycle through at least minSize distinct nodes
// for every strongly connected component that has one, as a closed path
// that can be shown to users. Components whose cycles are all shorter,
// such as chains of reciprocal pairs, are skipped.
func (g *Graph) Cycles(minSize int) [][]string {
	minSize = max(minSize, 2)
	var cycles [][]string
	for _, comp := range g.Components() {
		if len(comp) < minSize {
			continue
		}
		if path := g.Subgraph(comp).longCycle(minSize); path != nil {
			cycles = append(cycles, path)
		}
	}
	return cycles
}

// longCycle returns the first simple cycle through at least minSize nodes,
// closed on its smallest node, or nil. Nodes and children are visited in
// sorted order, so the result is deterministic.
func (g *Graph) longCycle(minSize int) []string {
	for _, start := range g.IDs() {
		path := []string{start}
		onPath := map[string]bool{start: true}
		var visit func(id string) []string
		visit = func(id string) []string {
			for _, child := range g.Children(id) {
				switch {
				case child == start:
					if len(path) >= minSize {
						return append(slices.Clone(path), start)
					}
				case child < start || onPath[child]:
					// Cycles through smaller nodes were searched from them.
				default:
					path = append(path, child)
					onPath[child] = true
					if found := visit(child); found != nil {
						return found
					}
					onPath[child] = false
					path = path[:len(path)-1]
				}
			}
			return nil
		}
		if found := visit(start); found != nil {
			return found
		}
	}
	return nil
}

// Subgraph returns a new graph containing only the given nodes and the
// edges between them.
func (g *Graph) Subgraph(nodeIDs []string) *Graph {
	sub := New()
	set := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		if n, ok := g.nodes[id]; ok {
			set[id] = true
			sub.AddNode(id, n.Data)
		}
	}
	for id := range set {
		for _, child := range g.edges[id] {
			if set[child] {
				_ = sub.AddEdge(id, child)
			}
		}
	}
	return sub
}

// CycleError is returned by TopologicalSort on a cyclic graph.
type CycleError struct {
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("graph: cycle detected: %v", e.Path)
}

func sorted(ids []string) []string {
	out := slices.Clone(ids)
	sort.Strings(out)
	return out
}

// idHeap is a min-heap of node IDs.
type idHeap []string

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(string)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

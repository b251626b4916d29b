package sqlgraph

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/quarry/contrib/dataloader"
	"github.com/syssam/quarry/dialect/sql"
	"github.com/syssam/quarry/schema"
	"github.com/syssam/quarry/schema/field"
)

// Node is a loaded row with its loaded relations.
type Node struct {
	Model  *schema.Model
	Values map[string]any
	// Edges holds the loaded rows of each requested relation of the node,
	// keyed by relation name. A relation without rows maps to an empty
	// slice.
	Edges map[string][]*Node
}

// Edge returns the loaded rows of a relation.
func (n *Node) Edge(name string) []*Node { return n.Edges[name] }

func newNode(m *schema.Model) *Node {
	return &Node{Model: m, Values: make(map[string]any, len(m.Columns)), Edges: make(map[string][]*Node)}
}

// Load runs a load plan: the root query, then one query per batched step.
// The batched steps of one level run concurrently. It returns the root rows
// in query order, each with the requested relations attached.
func Load(ctx context.Context, exec *sql.Executor, plan *LoadPlan) ([]*Node, error) {
	rows, err := exec.Query(ctx, plan.Root)
	if err != nil {
		return nil, err
	}
	loaded := demux(plan, rows)
	for _, level := range plan.Levels() {
		fetched := make([][]*Node, len(level))
		g, gctx := errgroup.WithContext(ctx)
		for i, s := range level {
			g.Go(func() error {
				nodes, err := fetch(gctx, exec, s, loaded[s.Parent])
				if err != nil {
					return fmt.Errorf("sqlgraph: load %q: %w", s.Path, err)
				}
				fetched[i] = nodes
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for i, s := range level {
			children := fetched[i]
			Merge(loaded[s.Parent], children,
				func(n *Node) field.Literal { return keyOf(n.Values[s.ParentKey]) },
				func(n *Node) field.Literal { return keyOf(n.Values[s.ChildKey]) },
				func(n *Node, cs []*Node) { n.Edges[s.Name()] = cs },
			)
			if s.Through != "" {
				for _, c := range children {
					delete(c.Values, s.ChildKey)
				}
			}
			loaded[s.Path] = children
		}
	}
	return loaded[""], nil
}

// demux splits the rows of the root query into root nodes and the nodes of
// the joined relations, keyed by step path with the roots under "". Rows
// repeating a primary key are dropped.
func demux(plan *LoadPlan, rows []map[string]any) map[string][]*Node {
	m := plan.Root.Model()
	roots := make([]*Node, 0, len(rows))
	loaded := map[string][]*Node{"": roots}
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if len(m.PrimaryKey) > 0 {
			id := rowKey(row, m.PrimaryKey)
			if seen[id] {
				continue
			}
			seen[id] = true
		}
		root := newNode(m)
		for k, v := range row {
			if !strings.Contains(k, ".") {
				root.Values[k] = v
			}
		}
		roots = append(roots, root)
		nodes := map[string]*Node{"": root}
		for _, s := range plan.Steps {
			if s.Strategy != Join {
				continue
			}
			parent := nodes[s.Parent]
			if parent == nil {
				continue
			}
			child := joined(s, row)
			if child == nil {
				parent.Edges[s.Name()] = []*Node{}
				continue
			}
			parent.Edges[s.Name()] = []*Node{child}
			nodes[s.Path] = child
			loaded[s.Path] = append(loaded[s.Path], child)
		}
	}
	loaded[""] = roots
	return loaded
}

// joined returns the node of a joined relation read from a root row, or nil
// when the outer join matched no row.
func joined(s *Step, row map[string]any) *Node {
	prefix := s.Path + "."
	pk := s.target.PrimaryKey
	if len(pk) > 0 && row[prefix+pk[0]] == nil {
		return nil
	}
	n := newNode(s.target)
	for _, c := range s.target.Columns {
		n.Values[c.Name] = row[prefix+c.Name]
	}
	return n
}

// fetch runs the secondary query of a batched step for the keys of its
// parent nodes.
func fetch(ctx context.Context, exec *sql.Executor, s *Step, parents []*Node) ([]*Node, error) {
	literals := dataloader.UniqueKeys(parents, func(n *Node) field.Literal { return keyOf(n.Values[s.ParentKey]) })
	keys := make([]field.Value, 0, len(literals))
	for _, l := range literals {
		if l.Type == "null" {
			continue
		}
		v, err := l.Decode()
		if err != nil {
			return nil, err
		}
		keys = append(keys, v)
	}
	if len(keys) == 0 {
		return []*Node{}, nil
	}
	q, err := s.Query(keys)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	nodes := make([]*Node, len(rows))
	for i, row := range rows {
		n := newNode(s.target)
		for k, v := range row {
			n.Values[k] = v
		}
		nodes[i] = n
	}
	return nodes, nil
}

// keyOf returns the comparable form of a key value. Bytes are read as text
// since drivers return character columns either way.
func keyOf(v any) field.Literal {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	fv, err := field.FromAny(v)
	if err != nil {
		return field.Literal{Type: "invalid", Value: fmt.Sprint(v)}
	}
	return field.ToLiteral(fv)
}

func rowKey(row map[string]any, columns []string) string {
	var b strings.Builder
	for i, c := range columns {
		if i > 0 {
			b.WriteByte(0)
		}
		l := keyOf(row[c])
		b.WriteString(l.Type)
		b.WriteByte(':')
		b.WriteString(l.Value)
	}
	return b.String()
}

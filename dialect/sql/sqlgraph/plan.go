package sqlgraph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/quarry"
	"github.com/syssam/quarry/query"
	"github.com/syssam/quarry/schema"
	"github.com/syssam/quarry/schema/field"
)

// Strategy is how the rows of a relation are fetched.
type Strategy uint8

// Load strategies.
const (
	// Join folds a to-one relation into the root query.
	Join Strategy = iota + 1
	// Batched fetches a relation level with one secondary query selecting
	// the rows of every parent with an IN predicate.
	Batched
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case Join:
		return "join"
	case Batched:
		return "batched"
	default:
		return fmt.Sprintf("Strategy(%d)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Step loads one relation of an eager-load tree.
type Step struct {
	// Path is the relation path from the root, e.g. "posts.comments".
	Path string `json:"path" yaml:"path"`
	// Parent is the path of the step whose rows own the relation, empty
	// for the root query.
	Parent   string   `json:"parent,omitempty" yaml:"parent,omitempty"`
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	// Model and Target name the owner and the target of the relation.
	Model  string `json:"model" yaml:"model"`
	Target string `json:"target" yaml:"target"`
	// ParentKey is the column of the parent rows whose values select the
	// rows of a batched step, and ChildKey the column of the fetched rows
	// holding the same values. A many-to-many ChildKey is a column of the
	// join table, addressed as "Model.relation.column".
	ParentKey string `json:"parent_key,omitempty" yaml:"parent_key,omitempty"`
	ChildKey  string `json:"child_key,omitempty" yaml:"child_key,omitempty"`
	// Through is the join table of a many-to-many relation.
	Through string `json:"through,omitempty" yaml:"through,omitempty"`

	rel    *schema.Relation
	owner  *schema.Model
	target *schema.Model
	depth  int
	snap   *schema.Snapshot
}

// Relation returns the loaded relation.
func (s *Step) Relation() *schema.Relation { return s.rel }

// Name returns the relation name, the last segment of the path.
func (s *Step) Name() string { return s.rel.Name }

// Query builds the secondary query of a batched step for a set of parent
// keys.
func (s *Step) Query(keys []field.Value) (*query.Query, error) {
	if s.Strategy != Batched {
		return nil, fmt.Errorf("sqlgraph: %q is joined into the root query", s.Path)
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	b := query.New(s.snap).Select(s.target.Name, s.target.ColumnNames()...)
	if s.rel.Kind == schema.M2M {
		b = b.Through(s.owner.Name, s.rel.Name).Columns(s.ChildKey)
	}
	return b.Where(query.In(s.ChildKey, args...)).Build()
}

// toOne reports if a parent row has at most one related row.
func (s *Step) toOne() bool {
	return s.rel.Kind == schema.M2O || s.rel.Kind == schema.O2O
}

// LoadPlan is the plan of an eager load: the root query, extended with the
// joins of to-one relations, and the steps of every requested relation with
// parents ordered before their children.
type LoadPlan struct {
	Root  *query.Query `json:"-" yaml:"-"`
	Steps []*Step      `json:"steps" yaml:"steps"`
}

// Step returns the step loading a relation path.
func (p *LoadPlan) Step(path string) (*Step, bool) {
	i := slices.IndexFunc(p.Steps, func(s *Step) bool { return s.Path == path })
	if i < 0 {
		return nil, false
	}
	return p.Steps[i], true
}

// Levels returns the batched steps grouped by the number of secondary
// queries that must run before them. The steps of one level are
// independent of each other.
func (p *LoadPlan) Levels() [][]*Step {
	var levels [][]*Step
	for _, s := range p.Steps {
		if s.Strategy != Batched {
			continue
		}
		for len(levels) < s.depth {
			levels = append(levels, nil)
		}
		levels[s.depth-1] = append(levels[s.depth-1], s)
	}
	return levels
}

// PlanEagerLoad plans the loading of relation paths along with the rows of a
// select. Paths are dot-separated relation names resolved from the root
// model; a segment may be spelled "Model.relation" to name the model it is
// resolved against. Relation names match case-insensitively when no exact
// match exists.
//
// To-one relations reached through to-one relations only are joined into
// the root query; every other relation is batched.
func PlanEagerLoad(snap *schema.Snapshot, root *query.Query, paths ...string) (*LoadPlan, error) {
	if root.Op() != query.OpSelect {
		return nil, fmt.Errorf("sqlgraph: eager load on a %s query", root.Op())
	}
	pl := &planner{snap: snap, root: root.Model(), steps: make(map[string]*Step)}
	for _, path := range paths {
		if err := pl.add(path); err != nil {
			return nil, err
		}
	}
	q, err := pl.rootQuery(root)
	if err != nil {
		return nil, err
	}
	return &LoadPlan{Root: q, Steps: pl.order}, nil
}

type planner struct {
	snap  *schema.Snapshot
	root  *schema.Model
	steps map[string]*Step
	order []*Step
}

// add resolves a path and adds the steps it is missing.
func (pl *planner) add(path string) error {
	segs := strings.Split(path, ".")
	m, parent := pl.root, (*Step)(nil)
	for i := 0; i < len(segs); {
		rel, n, err := pl.resolve(path, m, segs[i:])
		if err != nil {
			return err
		}
		i += n
		current := rel.Name
		if parent != nil {
			current = parent.Path + "." + rel.Name
		}
		step, ok := pl.steps[current]
		if !ok {
			if step, err = pl.step(path, current, parent, m, rel); err != nil {
				return err
			}
			pl.steps[current] = step
			pl.order = append(pl.order, step)
		}
		m, parent = step.target, step
	}
	return nil
}

// candidate is a way to read the next segments of a path as a relation.
type candidate struct {
	rel      *schema.Relation
	consumed int
	spelling string
}

// resolve reads the relation named by the first segments of segs on model m
// and returns it with the number of segments read.
func (pl *planner) resolve(path string, m *schema.Model, segs []string) (*schema.Relation, int, error) {
	seg := segs[0]
	if seg == "" {
		return nil, 0, &quarry.EagerLoadError{Kind: quarry.EagerLoadUnknownPath, Path: path, Model: m.Name}
	}
	var cands []candidate
	for _, rel := range relationsNamed(m, seg) {
		cands = append(cands, candidate{rel: rel, consumed: 1, spelling: rel.Name})
	}
	if len(segs) > 1 && strings.EqualFold(seg, m.Name) {
		if rels := relationsNamed(m, segs[1]); len(rels) == 1 {
			cands = append(cands, candidate{rel: rels[0], consumed: 2, spelling: m.Name + "." + rels[0].Name})
		}
	}
	switch len(cands) {
	case 0:
		return nil, 0, &quarry.EagerLoadError{Kind: quarry.EagerLoadUnknownPath, Path: path, Segment: seg, Model: m.Name}
	case 1:
		return cands[0].rel, cands[0].consumed, nil
	default:
		names := make([]string, len(cands))
		for i, c := range cands {
			names[i] = c.spelling
		}
		slices.Sort(names)
		return nil, 0, &quarry.EagerLoadError{
			Kind:       quarry.EagerLoadAmbiguousPath,
			Path:       path,
			Segment:    seg,
			Model:      m.Name,
			Candidates: names,
		}
	}
}

// relationsNamed returns the relation of m named name, or every relation
// whose name matches it case-insensitively when none matches exactly.
func relationsNamed(m *schema.Model, name string) []*schema.Relation {
	if rel, ok := m.Relation(name); ok {
		return []*schema.Relation{rel}
	}
	var rels []*schema.Relation
	for _, rel := range m.Relations {
		if strings.EqualFold(rel.Name, name) {
			rels = append(rels, rel)
		}
	}
	return rels
}

func (pl *planner) step(path, current string, parent *Step, owner *schema.Model, rel *schema.Relation) (*Step, error) {
	target, _ := pl.snap.Model(rel.Target)
	s := &Step{
		Path:   current,
		Model:  owner.Name,
		Target: target.Name,
		rel:    rel,
		owner:  owner,
		target: target,
		snap:   pl.snap,
	}
	var depth int
	if parent != nil {
		s.Parent = parent.Path
		depth = parent.depth
	}
	if s.toOne() && depth == 0 {
		s.Strategy = Join
		return s, nil
	}
	s.Strategy, s.depth = Batched, depth+1
	links := pl.snap.Links(owner, rel)
	if len(links[0].FromColumns) != 1 {
		return nil, &quarry.EagerLoadError{Kind: quarry.EagerLoadCompositeKey, Path: path, Segment: rel.Name, Model: owner.Name}
	}
	s.ParentKey = links[0].FromColumns[0]
	s.ChildKey = links[0].ToColumns[0]
	if rel.Kind == schema.M2M {
		s.Through = rel.Through.Table
		s.ChildKey = owner.Name + "." + rel.Name + "." + s.ChildKey
	}
	return s, nil
}

// rootQuery extends the root query with the joins of the joined steps and
// the columns the load reads: the primary key of the root model, every
// column of a joined model and the parent keys of the batched steps.
func (pl *planner) rootQuery(root *query.Query) (*query.Query, error) {
	b := query.From(pl.snap, root)
	need := slices.Clone(pl.root.PrimaryKey)
	for _, s := range pl.order {
		switch {
		case s.Strategy == Join:
			if _, ok := root.Join(s.Path); !ok {
				b = b.LeftJoin(s.Path)
			}
			for _, c := range s.target.Columns {
				need = append(need, s.Path+"."+c.Name)
			}
		case s.Parent == "":
			need = append(need, s.ParentKey)
		}
	}
	have := root.Columns()
	var missing []string
	for _, c := range need {
		ref := query.Col(c)
		if !slices.Contains(have, ref) {
			have = append(have, ref)
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		b = b.Columns(missing...)
	}
	return b.Build()
}

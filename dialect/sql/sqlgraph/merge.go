package sqlgraph

import "github.com/syssam/quarry/contrib/dataloader"

// Merge attaches children to their parents. Children are grouped by the key
// childKey returns and each parent receives, in input order, the group
// matching parentKey. A parent without children receives an empty, non-nil
// slice.
//
//	sqlgraph.Merge(authors, posts,
//		func(a *Author) int64 { return a.ID },
//		func(p *Post) int64 { return p.AuthorID },
//		func(a *Author, ps []*Post) { a.Posts = ps },
//	)
func Merge[K comparable, P, C any](parents []P, children []C, parentKey func(P) K, childKey func(C) K, attach func(P, []C)) {
	groups := dataloader.GroupByKey(children, childKey)
	keys := make([]K, len(parents))
	for i, p := range parents {
		keys[i] = parentKey(p)
	}
	for i, cs := range dataloader.OrderGroupsByKeys(keys, groups) {
		attach(parents[i], cs)
	}
}

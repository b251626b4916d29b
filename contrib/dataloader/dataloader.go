// Package dataloader provides generic helpers for batch loading related rows.
//
// A batched load fetches the children of many parents with one query and
// then hands each parent its own children:
//
//	keys := dataloader.UniqueKeys(authors, func(a *Author) int64 { return a.ID })
//	posts := loadPostsByAuthor(ctx, keys)
//	groups := dataloader.GroupByKey(posts, func(p *Post) int64 { return p.AuthorID })
//	ordered := dataloader.OrderGroupsByKeys(keys, groups)
//	// ordered[i] holds the posts of keys[i], empty when there are none.
package dataloader

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// UniqueKeys returns the keys of values in first-appearance order, each key
// once. The result is the argument list of an IN predicate.
func UniqueKeys[K comparable, V any](values []V, keyFn KeyFunc[K, V]) []K {
	seen := make(map[K]struct{}, len(values))
	keys := make([]K, 0, len(values))
	for _, v := range values {
		k := keyFn(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// GroupByKey groups values by a key function. Values keep their input order
// within a group.
//
// Example:
//
//	posts := loadPostsByAuthor(ctx, authorIDs)
//	grouped := GroupByKey(posts, func(p *Post) int64 { return p.AuthorID })
//	// grouped[authorID] contains all posts for that author
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys reorders grouped values to match the order of the
// requested keys. A key without a group gets an empty, non-nil slice.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		if g, ok := groups[key]; ok {
			result[i] = g
		} else {
			result[i] = []V{}
		}
	}
	return result
}

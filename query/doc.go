// Package query builds validated, dialect-independent queries.
//
// A Builder is bound to a schema snapshot and validates every clause as it
// is added: unknown columns and relations, values that do not fit a
// column's type, and clauses that do not belong to the operation are
// reported as quarry.QueryBuildError. The first error wins and is returned
// by Build.
//
//	q, err := query.New(snap).
//	    Select("Post", "id", "title").
//	    Join("author").
//	    Where(query.EQ("author.name", "ada"), query.Column[bool]("published").EQ(true)).
//	    OrderBy(query.Desc("id")).
//	    Limit(10).
//	    Build()
//
// Builders are persistent: each method returns a new Builder, so a common
// prefix can be extended into several queries. Build returns an immutable
// Query; derive new queries from it with From.
//
// Updates and deletes without a predicate are rejected unless
// AllowUnbounded is called.
package query

package sql

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/quarry"
	"github.com/syssam/quarry/dialect"
	"github.com/syssam/quarry/query"
	"github.com/syssam/quarry/schema/field"
)

// StatementCache memoizes compilation. Entries are keyed by the
// fingerprint of a query and a dialect, and stored msgpack-encoded in a
// quarry.Cache, so a shared cache can serve several processes.
type StatementCache struct {
	cache  quarry.Cache
	ttl    time.Duration
	prefix string
	hits   atomic.Int64
	misses atomic.Int64
}

// NewStatementCache returns a statement cache over c. Entries expire after
// ttl, or never when ttl is 0.
func NewStatementCache(c quarry.Cache, ttl time.Duration) *StatementCache {
	return &StatementCache{cache: c, ttl: ttl, prefix: "quarry:stmt:"}
}

// cachedStatement is the stored form of a Statement.
type cachedStatement struct {
	Query  string          `msgpack:"q"`
	Values []field.Literal `msgpack:"v"`
}

// Compile returns the cached statement for q, compiling and storing it on
// a miss. Cache failures are returned; compile errors are never cached.
func (c *StatementCache) Compile(ctx context.Context, q *query.Query, p *dialect.Profile) (*Statement, error) {
	key, err := Fingerprint(q, p)
	if err != nil {
		return nil, err
	}
	key = c.prefix + key
	b, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: statement cache get: %w", err)
	}
	if b != nil {
		var cs cachedStatement
		if err := msgpack.Unmarshal(b, &cs); err != nil {
			return nil, fmt.Errorf("dialect/sql: decode cached statement: %w", err)
		}
		values := make([]field.Value, len(cs.Values))
		for i, l := range cs.Values {
			if values[i], err = l.Decode(); err != nil {
				return nil, fmt.Errorf("dialect/sql: decode cached statement: %w", err)
			}
		}
		c.hits.Add(1)
		return newStatement(p, cs.Query, values), nil
	}
	c.misses.Add(1)
	s, err := Compile(q, p)
	if err != nil {
		return nil, err
	}
	cs := cachedStatement{Query: s.Query, Values: make([]field.Literal, len(s.Values))}
	for i, v := range s.Values {
		cs.Values[i] = field.ToLiteral(v)
	}
	if b, err = msgpack.Marshal(cs); err != nil {
		return nil, fmt.Errorf("dialect/sql: encode statement: %w", err)
	}
	if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
		return nil, fmt.Errorf("dialect/sql: statement cache set: %w", err)
	}
	return s, nil
}

// Purge drops every statement cached for the given dialect.
func (c *StatementCache) Purge(ctx context.Context, p *dialect.Profile) error {
	return c.cache.DeletePrefix(ctx, c.prefix+p.Name+":")
}

// Stats returns the number of hits and misses.
func (c *StatementCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// fingerprint is the canonical record hashed by Fingerprint.
type fingerprint struct {
	Op        string          `msgpack:"op"`
	Model     string          `msgpack:"model"`
	Columns   []string        `msgpack:"columns"`
	Joins     []string        `msgpack:"joins"`
	Where     string          `msgpack:"where"`
	Values    []field.Literal `msgpack:"values"`
	Order     []string        `msgpack:"order"`
	Limit     *int            `msgpack:"limit"`
	Offset    *int            `msgpack:"offset"`
	Conflict  *query.Conflict `msgpack:"conflict"`
	Returning []string        `msgpack:"returning"`
	Unbounded bool            `msgpack:"unbounded"`
}

// Fingerprint returns a key identifying the statement q compiles to on p:
// "<dialect>:<hex sha256>". Equal queries have equal fingerprints.
func Fingerprint(q *query.Query, p *dialect.Profile) (string, error) {
	if q == nil || q.Model() == nil {
		return "", &quarry.CompileError{Kind: quarry.CompileInvalidAST, Dialect: p.Name, Message: "query was not built"}
	}
	f := fingerprint{
		Op:        q.Op().String(),
		Model:     q.Model().Name,
		Conflict:  q.Conflict(),
		Returning: q.Returning(),
		Unbounded: q.Unbounded(),
	}
	for _, c := range q.Columns() {
		f.Columns = append(f.Columns, c.String())
	}
	for _, j := range q.Joins() {
		f.Joins = append(f.Joins, j.Kind.String()+" "+j.Path)
	}
	if w := q.Where(); w != nil {
		f.Where = w.String()
		query.Walk(w, func(p query.Predicate) {
			switch p := p.(type) {
			case *query.Compare:
				f.Values = append(f.Values, field.ToLiteral(p.Value))
			case *query.Range:
				f.Values = append(f.Values, field.ToLiteral(p.Low), field.ToLiteral(p.High))
			case *query.Membership:
				for _, v := range p.Values {
					f.Values = append(f.Values, field.ToLiteral(v))
				}
			case *query.Match:
				f.Values = append(f.Values, field.ToLiteral(field.String(p.Pattern)))
			}
		})
	}
	for _, a := range q.Assignments() {
		f.Columns = append(f.Columns, "set:"+a.Column)
		f.Values = append(f.Values, field.ToLiteral(a.Value))
	}
	for _, o := range q.OrderBy() {
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		f.Order = append(f.Order, o.Column.String()+dir)
	}
	if n, ok := q.Limit(); ok {
		f.Limit = &n
	}
	if n, ok := q.Offset(); ok {
		f.Offset = &n
	}
	b, err := msgpack.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("dialect/sql: fingerprint: %w", err)
	}
	sum := sha256.Sum256(b)
	return p.Name + ":" + hex.EncodeToString(sum[:]), nil
}

package sql

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/syssam/quarry/dialect"
	"github.com/syssam/quarry/query"
)

// Executor compiles built queries for one dialect and runs them on a
// driver. Rows are returned as maps keyed by column name; columns of
// joined relations are keyed "path.column".
type Executor struct {
	drv     dialect.ExecQuerier
	profile *dialect.Profile
	cache   *StatementCache
	logger  *slog.Logger
}

// ExecOption configures an Executor.
type ExecOption func(*Executor)

// WithStatementCache makes the executor reuse compiled statements.
func WithStatementCache(c *StatementCache) ExecOption {
	return func(e *Executor) {
		e.cache = c
	}
}

// WithExecLogger sets the logger reporting executed statements.
func WithExecLogger(l *slog.Logger) ExecOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor returns an executor running statements compiled for p on drv.
func NewExecutor(drv dialect.ExecQuerier, p *dialect.Profile, opts ...ExecOption) *Executor {
	e := &Executor{
		drv:     drv,
		profile: p,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Profile returns the dialect profile statements are compiled for.
func (e *Executor) Profile() *dialect.Profile { return e.profile }

// WithDriver returns a copy of the executor running on drv, typically a
// transaction.
func (e *Executor) WithDriver(drv dialect.ExecQuerier) *Executor {
	c := *e
	c.drv = drv
	return &c
}

// Compile compiles q, through the statement cache when one is set.
func (e *Executor) Compile(ctx context.Context, q *query.Query) (*Statement, error) {
	if e.cache != nil {
		return e.cache.Compile(ctx, q, e.profile)
	}
	return Compile(q, e.profile)
}

// Query runs a select, or a statement with a RETURNING clause, and returns
// its rows.
func (e *Executor) Query(ctx context.Context, q *query.Query) ([]map[string]any, error) {
	s, err := e.Compile(ctx, q)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := QueryStatement(ctx, e.drv, s)
	if err != nil {
		return nil, wrapConstraint(err)
	}
	out, err := ScanMaps(rows)
	if err != nil {
		return nil, err
	}
	e.logger.DebugContext(ctx, "query executed",
		slog.String("op", q.Op().String()),
		slog.String("model", q.Model().Name),
		slog.Int("rows", len(out)),
		slog.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// Exec runs a statement that returns no rows. Constraint violations are
// reported as quarry.ConstraintError.
func (e *Executor) Exec(ctx context.Context, q *query.Query) (Result, error) {
	if len(q.Returning()) > 0 {
		return nil, fmt.Errorf("dialect/sql: %s with RETURNING must run through Query", q.Op())
	}
	s, err := e.Compile(ctx, q)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := ExecStatement(ctx, e.drv, s)
	if err != nil {
		return nil, wrapConstraint(err)
	}
	e.logger.DebugContext(ctx, "statement executed",
		slog.String("op", q.Op().String()),
		slog.String("model", q.Model().Name),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

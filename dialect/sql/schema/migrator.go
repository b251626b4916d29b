package schema

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/syssam/quarry/dialect"
	"github.com/syssam/quarry/dialect/sql"
	"github.com/syssam/quarry/query"
	qschema "github.com/syssam/quarry/schema"
	"github.com/syssam/quarry/schema/field"
)

// RevisionTable is the table recording applied migrations.
const RevisionTable = "quarry_revisions"

// revisions is the schema of the revision table.
var revisions = &qschema.Model{
	Name:  "Revision",
	Table: RevisionTable,
	Columns: []*qschema.Column{
		{Name: "version", Type: field.TypeVarchar(64)},
		{Name: "description", Type: field.TypeVarchar(255)},
		{Name: "applied_at", Type: field.TypeTime()},
	},
	PrimaryKey: []string{"version"},
}

// Revision is an applied migration.
type Revision struct {
	Version     string
	Description string
	AppliedAt   time.Time
}

// Migrator applies the migrations of a Dir to a database, recording each
// applied version in the revision table.
type Migrator struct {
	drv     dialect.Driver
	profile *dialect.Profile
	snap    *qschema.Snapshot
	exec    *sql.Executor
	logger  *slog.Logger
	now     func() time.Time
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithMigratorLogger sets the logger reporting applied migrations.
func WithMigratorLogger(l *slog.Logger) MigratorOption {
	return func(m *Migrator) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMigrator returns a migrator for the database behind drv.
func NewMigrator(drv dialect.Driver, opts ...MigratorOption) (*Migrator, error) {
	p, ok := dialect.Lookup(drv.Dialect())
	if !ok {
		return nil, fmt.Errorf("schema: no dialect profile for %q", drv.Dialect())
	}
	snap, err := qschema.NewSnapshot(RevisionTable, revisions.Clone())
	if err != nil {
		return nil, err
	}
	m := &Migrator{
		drv:     drv,
		profile: p,
		snap:    snap,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.exec = sql.NewExecutor(drv, p, sql.WithExecLogger(m.logger))
	return m, nil
}

// init creates the revision table when missing.
func (m *Migrator) init(ctx context.Context) error {
	plan, err := Diff(nil, m.snap)
	if err != nil {
		return err
	}
	for _, op := range plan.Ops {
		op.IfExists = true
	}
	stmts, err := plan.SQL(m.profile)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if err := m.drv.Exec(ctx, s, []any{}, nil); err != nil {
			return fmt.Errorf("schema: create revision table: %w", err)
		}
	}
	return nil
}

// Applied returns the applied migrations in version order.
func (m *Migrator) Applied(ctx context.Context) ([]*Revision, error) {
	if err := m.init(ctx); err != nil {
		return nil, err
	}
	q, err := query.New(m.snap).
		Select(revisions.Name, "version", "description", "applied_at").
		OrderBy(query.Asc("version")).
		Build()
	if err != nil {
		return nil, err
	}
	rows, err := m.exec.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("schema: read revisions: %w", err)
	}
	revs := make([]*Revision, 0, len(rows))
	for _, row := range rows {
		r, err := scanRevision(row)
		if err != nil {
			return nil, err
		}
		revs = append(revs, r)
	}
	return revs, nil
}

// timeLayouts are the text forms of applied_at read back from drivers that
// do not return time.Time.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// scanRevision reads a row of the revision table.
func scanRevision(row map[string]any) (*Revision, error) {
	version, ok := row["version"].(string)
	if !ok || version == "" {
		return nil, fmt.Errorf("schema: read revisions: unexpected version %v (%T)", row["version"], row["version"])
	}
	r := &Revision{Version: version}
	switch d := row["description"].(type) {
	case string:
		r.Description = d
	case nil:
	default:
		return nil, fmt.Errorf("schema: read revision %s: unexpected description type %T", version, d)
	}
	switch t := row["applied_at"].(type) {
	case time.Time:
		r.AppliedAt = t
	case string:
		var err error
		for _, layout := range timeLayouts {
			if r.AppliedAt, err = time.Parse(layout, t); err == nil {
				break
			}
		}
		if err != nil {
			return nil, fmt.Errorf("schema: read revision %s: parse applied_at %q: %w", version, t, err)
		}
	default:
		return nil, fmt.Errorf("schema: read revision %s: unexpected applied_at type %T", version, t)
	}
	return r, nil
}

// Pending returns the migrations of dir that are not applied yet.
func (m *Migrator) Pending(ctx context.Context, dir *Dir) ([]*Migration, error) {
	if err := dir.Verify(); err != nil {
		return nil, err
	}
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, r := range applied {
		done[r.Version] = true
	}
	all, err := dir.Migrations()
	if err != nil {
		return nil, err
	}
	var pending []*Migration
	for _, mg := range all {
		if !done[mg.Version] {
			pending = append(pending, mg)
		}
	}
	return pending, nil
}

// Apply runs every pending migration of dir, each in its own transaction,
// and returns the applied versions. It stops at the first failure.
func (m *Migrator) Apply(ctx context.Context, dir *Dir) ([]string, error) {
	pending, err := m.Pending(ctx, dir)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, mg := range pending {
		if err := m.apply(ctx, mg); err != nil {
			return versions, err
		}
		versions = append(versions, mg.Version)
		m.logger.InfoContext(ctx, "migration applied",
			slog.String("version", mg.Version),
			slog.String("description", mg.Description),
			slog.Int("statements", len(mg.Stmts)),
		)
	}
	return versions, nil
}

func (m *Migrator) apply(ctx context.Context, mg *Migration) (err error) {
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				err = fmt.Errorf("%w: rollback: %v", err, rerr)
			}
		}
	}()
	for _, s := range mg.Stmts {
		if err := tx.Exec(ctx, s, []any{}, nil); err != nil {
			return fmt.Errorf("schema: migration %s: %w", mg.Version, err)
		}
	}
	q, err := query.New(m.snap).
		Insert(revisions.Name).
		Set("version", mg.Version).
		Set("description", mg.Description).
		Set("applied_at", m.now().UTC()).
		Build()
	if err != nil {
		return err
	}
	if _, err := m.exec.WithDriver(tx).Exec(ctx, q); err != nil {
		return fmt.Errorf("schema: record revision %s: %w", mg.Version, err)
	}
	return tx.Commit()
}

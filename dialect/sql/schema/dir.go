package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ariga.io/atlas/sql/migrate"

	"github.com/syssam/quarry"
	"github.com/syssam/quarry/dialect"
)

// File suffixes of a migration written by Dir.Write.
const (
	UpSuffix   = ".up.sql"
	DownSuffix = ".down.sql"
	PlanSuffix = ".plan.json"
)

// Dir is a migration directory. Each migration is written as an up script,
// a down script when the plan is reversible, and the JSON plan record. The
// directory integrity file (atlas.sum) covers the SQL scripts; the plan
// record carries its own checksum.
type Dir struct {
	path string
	dir  *migrate.LocalDir
	now  func() time.Time
}

// DirOption configures a Dir.
type DirOption func(*Dir)

// WithClock sets the clock versioning new migrations.
func WithClock(now func() time.Time) DirOption {
	return func(d *Dir) {
		d.now = now
	}
}

// OpenDir opens the migration directory at path, creating it when missing.
func OpenDir(path string, opts ...DirOption) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("schema: create migration directory: %w", err)
	}
	ld, err := migrate.NewLocalDir(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open migration directory: %w", err)
	}
	d := &Dir{path: path, dir: ld, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// Migration is a migration stored in a Dir.
type Migration struct {
	Version     string
	Description string
	// Stmts are the statements of the up script.
	Stmts []string
}

// Write stores plan as a new migration named name, rendered for profile,
// and updates the integrity file. It returns the migration version.
func (d *Dir) Write(name string, plan *Plan, profile *dialect.Profile) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	up, err := scriptOf(plan, profile)
	if err != nil {
		return "", err
	}
	var down []byte
	if plan.Reversible() {
		r, err := plan.Reverse()
		if err != nil {
			return "", err
		}
		if down, err = scriptOf(r, profile); err != nil {
			return "", err
		}
	}
	record, err := plan.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("schema: encode plan: %w", err)
	}
	version, err := d.nextVersion()
	if err != nil {
		return "", err
	}
	base := version + "_" + name
	files := []struct {
		name string
		b    []byte
	}{
		{base + UpSuffix, up},
		{base + DownSuffix, down},
		{base + PlanSuffix, append(record, '\n')},
	}
	for _, f := range files {
		if f.b == nil {
			continue
		}
		if err := d.dir.WriteFile(f.name, f.b); err != nil {
			return "", fmt.Errorf("schema: write %s: %w", f.name, err)
		}
	}
	sum, err := d.dir.Checksum()
	if err != nil {
		return "", fmt.Errorf("schema: compute directory checksum: %w", err)
	}
	if err := migrate.WriteSumFile(d.dir, sum); err != nil {
		return "", fmt.Errorf("schema: write %s: %w", migrate.HashFileName, err)
	}
	return version, nil
}

// Validate checks the directory against its integrity file.
func (d *Dir) Validate() error {
	err := migrate.Validate(d.dir)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, migrate.ErrChecksumMismatch), errors.Is(err, migrate.ErrChecksumNotFound):
		return &quarry.MigrationError{
			Kind:    quarry.MigrationChecksumMismatch,
			Message: fmt.Sprintf("%s: %v", d.path, err),
			Hint:    "migration files were edited or added by hand; restore them or regenerate " + migrate.HashFileName,
		}
	default:
		return fmt.Errorf("schema: validate migration directory: %w", err)
	}
}

// Plans decodes every plan record of the directory in version order,
// verifying each recorded checksum.
func (d *Dir) Plans() ([]*Plan, error) {
	matches, err := filepath.Glob(filepath.Join(d.path, "*"+PlanSuffix))
	if err != nil {
		return nil, err
	}
	plans := make([]*Plan, 0, len(matches))
	for _, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("schema: read plan: %w", err)
		}
		p, err := DecodePlan(b)
		if err != nil {
			var me *quarry.MigrationError
			if errors.As(err, &me) {
				me.Message = filepath.Base(m) + ": " + me.Message
			}
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// Verify validates the integrity file and the checksum of every plan record.
func (d *Dir) Verify() error {
	if err := d.Validate(); err != nil {
		return err
	}
	_, err := d.Plans()
	return err
}

// Migrations returns the up migrations of the directory in version order.
func (d *Dir) Migrations() ([]*Migration, error) {
	files, err := d.dir.Files()
	if err != nil {
		return nil, fmt.Errorf("schema: read migration directory: %w", err)
	}
	var ms []*Migration
	for _, f := range files {
		if !strings.HasSuffix(f.Name(), UpSuffix) {
			continue
		}
		stmts, err := f.Stmts()
		if err != nil {
			return nil, fmt.Errorf("schema: parse %s: %w", f.Name(), err)
		}
		ms = append(ms, &Migration{
			Version:     f.Version(),
			Description: strings.TrimSuffix(f.Desc(), ".up"),
			Stmts:       stmts,
		})
	}
	return ms, nil
}

// nextVersion returns a timestamp version greater than every existing one.
func (d *Dir) nextVersion() (string, error) {
	files, err := d.dir.Files()
	if err != nil {
		return "", fmt.Errorf("schema: read migration directory: %w", err)
	}
	t := d.now().UTC()
	for {
		v := t.Format("20060102150405")
		taken := false
		for _, f := range files {
			if f.Version() >= v {
				taken = true
				break
			}
		}
		if !taken {
			return v, nil
		}
		t = t.Add(time.Second)
	}
}

// scriptOf renders a plan as a SQL script, each statement preceded by a
// comment naming its operation.
func scriptOf(plan *Plan, profile *dialect.Profile) ([]byte, error) {
	byOp, err := plan.statements(profile)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "-- %s -> %s\n", versionOrEmpty(plan.From), versionOrEmpty(plan.To))
	for i, stmts := range byOp {
		if len(stmts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "-- %s\n", plan.Ops[i])
		for _, s := range stmts {
			b.WriteString(s)
			b.WriteString(";\n")
		}
	}
	return []byte(b.String()), nil
}

func versionOrEmpty(v string) string {
	if v == "" {
		return "(empty)"
	}
	return v
}

package schema

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/syssam/quarry/dialect"
	"github.com/syssam/quarry/dialect/sql"
	qschema "github.com/syssam/quarry/schema"
	"github.com/syssam/quarry/schema/field"
)

// SQL renders the plan as DDL statements for a dialect, in plan order.
// Statements carry no trailing semicolon.
//
// On dialects that cannot add foreign keys to existing tables, keys of
// tables created by the same plan are declared in CREATE TABLE and keys
// of tables dropped by the plan go with the table. Any other constraint
// change, and column changes on dialects without ALTER COLUMN, fail with
// a *quarry.CompileError.
func (p *Plan) SQL(profile *dialect.Profile) ([]string, error) {
	byOp, err := p.statements(profile)
	if err != nil {
		return nil, err
	}
	var stmts []string
	for _, s := range byOp {
		stmts = append(stmts, s...)
	}
	return stmts, nil
}

// statements renders the plan and returns the statements of each
// operation. Operations folded into another statement render none.
func (p *Plan) statements(profile *dialect.Profile) ([][]string, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	r := &renderer{
		p:       profile,
		created: make(map[string]bool),
		dropped: make(map[string]bool),
		folded:  make(map[string][]*Op),
	}
	for _, op := range p.Ops {
		switch op.Kind {
		case CreateTable:
			r.created[op.Table] = true
		case DropTable:
			r.dropped[op.Table] = true
		}
	}
	if !profile.AddConstraint {
		for _, op := range p.Ops {
			if op.Kind == AddForeignKey && r.created[op.Table] {
				r.folded[op.Table] = append(r.folded[op.Table], op)
			}
		}
	}
	byOp := make([][]string, len(p.Ops))
	for i, op := range p.Ops {
		n := len(r.stmts)
		if err := r.render(op); err != nil {
			return nil, err
		}
		byOp[i] = r.stmts[n:]
	}
	return byOp, nil
}

type renderer struct {
	p       *dialect.Profile
	created map[string]bool
	dropped map[string]bool
	folded  map[string][]*Op
	stmts   []string
}

// emit builds one statement.
func (r *renderer) emit(f func(b *sql.Builder)) error {
	b := sql.NewBuilder(r.p)
	f(b)
	if err := b.Err(); err != nil {
		return err
	}
	if b.Len() > 0 {
		r.stmts = append(r.stmts, b.String())
	}
	return nil
}

func (r *renderer) render(op *Op) error {
	switch op.Kind {
	case CreateTable:
		return r.emit(func(b *sql.Builder) { r.createTable(b, op) })
	case DropTable:
		return r.emit(func(b *sql.Builder) {
			b.WriteString("DROP TABLE ")
			if op.IfExists && r.p.IfExists {
				b.WriteString("IF EXISTS ")
			}
			b.Ident(op.Table)
		})
	case AddColumn:
		return r.emit(func(b *sql.Builder) {
			b.WriteString("ALTER TABLE ").Ident(op.Table).WriteString(" ADD COLUMN ")
			columnDef(b, op.column(), true)
		})
	case DropColumn:
		return r.emit(func(b *sql.Builder) {
			b.WriteString("ALTER TABLE ").Ident(op.Table).WriteString(" DROP COLUMN ").Ident(op.Column)
		})
	case ModifyColumn:
		return r.modifyColumn(op)
	case CreateIndex:
		return r.emit(func(b *sql.Builder) {
			idx := op.Definition.Index
			b.WriteString("CREATE ")
			if idx.Unique {
				b.WriteString("UNIQUE ")
			}
			b.WriteString("INDEX ").Ident(idx.Name).WriteString(" ON ").Ident(op.Table).
				WriteString(" (").IdentComma(idx.Columns...).WriteByte(')')
		})
	case DropIndex:
		return r.emit(func(b *sql.Builder) {
			b.WriteString("DROP INDEX ").Ident(op.Definition.Index.Name)
			if r.p.DropIndexOn {
				b.WriteString(" ON ").Ident(op.Table)
			}
		})
	case AddForeignKey:
		if r.created[op.Table] && !r.p.AddConstraint {
			return nil
		}
		return r.emit(func(b *sql.Builder) {
			if !r.p.AddConstraint {
				b.Unsupported("ADD CONSTRAINT")
			}
			b.WriteString("ALTER TABLE ").Ident(op.Table).WriteString(" ADD ")
			r.foreignKey(b, op)
		})
	case DropForeignKey:
		if r.dropped[op.Table] && !r.p.AddConstraint {
			return nil
		}
		return r.emit(func(b *sql.Builder) {
			if !r.p.AddConstraint {
				b.Unsupported("DROP CONSTRAINT")
			}
			kw := r.p.DropForeignKey
			if kw == "" {
				kw = "CONSTRAINT"
			}
			b.WriteString("ALTER TABLE ").Ident(op.Table).WriteString(" DROP ").WriteString(kw).Pad().
				Ident(op.Definition.ForeignKey.Name)
		})
	default:
		return r.emit(func(b *sql.Builder) { b.Unsupported(op.Kind.String()) })
	}
}

func (r *renderer) createTable(b *sql.Builder, op *Op) {
	b.WriteString("CREATE TABLE ")
	if op.IfExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.Ident(op.Table).WriteString(" (")
	for i, c := range op.Definition.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		columnDef(b, c, true)
	}
	if pk := op.Definition.PrimaryKey; len(pk) > 0 {
		b.WriteString(", PRIMARY KEY (").IdentComma(pk...).WriteByte(')')
	}
	for _, fk := range r.folded[op.Table] {
		b.WriteString(", ")
		r.foreignKey(b, fk)
	}
	b.WriteByte(')')
}

// foreignKey writes a CONSTRAINT ... FOREIGN KEY clause.
func (r *renderer) foreignKey(b *sql.Builder, op *Op) {
	fk := op.Definition.ForeignKey
	b.WriteString("CONSTRAINT ").Ident(fk.Name).
		WriteString(" FOREIGN KEY (").IdentComma(fk.Columns...).
		WriteString(") REFERENCES ").Ident(fk.RefTable).
		WriteString(" (").IdentComma(fk.RefColumns...).WriteByte(')')
	if fk.OnDelete != "" {
		b.WriteString(" ON DELETE ").WriteString(fk.OnDelete)
	}
	switch {
	case fk.Deferrable && r.p.Deferrable:
		b.WriteString(" DEFERRABLE INITIALLY DEFERRED")
	case op.Definition.Deferred:
		b.Unsupported("DEFERRABLE")
	}
}

func (r *renderer) modifyColumn(op *Op) error {
	from, to := op.Definition.From, op.column()
	if !r.p.AlterColumn {
		return r.emit(func(b *sql.Builder) { b.Unsupported("ALTER COLUMN") })
	}
	if r.p.ModifyColumn {
		if err := r.emit(func(b *sql.Builder) {
			if from.Check != to.Check && from.Check != "" {
				b.Unsupported("ALTER CHECK")
			}
			b.WriteString("ALTER TABLE ").Ident(op.Table).WriteString(" MODIFY COLUMN ")
			columnDef(b, to, !from.Unique)
		}); err != nil {
			return err
		}
		if from.Unique && !to.Unique {
			return r.emit(func(b *sql.Builder) {
				b.WriteString("ALTER TABLE ").Ident(op.Table).WriteString(" DROP INDEX ").Ident(to.Name)
			})
		}
		return nil
	}
	return r.emit(func(b *sql.Builder) {
		var actions []func()
		alter := func(f func()) {
			actions = append(actions, func() {
				b.WriteString("ALTER COLUMN ").Ident(to.Name).Pad()
				f()
			})
		}
		if from.Type != to.Type {
			alter(func() { b.WriteString("TYPE ").WriteString(columnType(b, to.Type)) })
		}
		if from.Nullable != to.Nullable {
			alter(func() {
				if to.Nullable {
					b.WriteString("DROP NOT NULL")
				} else {
					b.WriteString("SET NOT NULL")
				}
			})
		}
		if !from.Default.Equal(to.Default) {
			alter(func() {
				if to.Default == nil {
					b.WriteString("DROP DEFAULT")
					return
				}
				b.WriteString("SET DEFAULT ")
				defaultSQL(b, to.Default)
			})
		}
		if from.Unique != to.Unique {
			name := op.Table + "_" + to.Name + "_key"
			actions = append(actions, func() {
				if to.Unique {
					b.WriteString("ADD CONSTRAINT ").Ident(name).WriteString(" UNIQUE (").Ident(to.Name).WriteByte(')')
				} else {
					b.WriteString("DROP CONSTRAINT ").Ident(name)
				}
			})
		}
		if from.Check != to.Check {
			name := op.Table + "_" + to.Name + "_check"
			if from.Check != "" {
				actions = append(actions, func() { b.WriteString("DROP CONSTRAINT ").Ident(name) })
			}
			if to.Check != "" {
				actions = append(actions, func() {
					b.WriteString("ADD CONSTRAINT ").Ident(name).WriteString(" CHECK (").WriteString(to.Check).WriteByte(')')
				})
			}
		}
		if len(actions) == 0 {
			return
		}
		b.WriteString("ALTER TABLE ").Ident(op.Table).Pad()
		for i, f := range actions {
			if i > 0 {
				b.WriteString(", ")
			}
			f()
		}
	})
}

// columnDef writes a column definition. Column level UNIQUE is written
// only when unique is set.
func columnDef(b *sql.Builder, c *qschema.Column, unique bool) {
	b.Ident(c.Name).Pad().WriteString(columnType(b, c.Type))
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT ")
		defaultSQL(b, c.Default)
	}
	if c.Unique && unique {
		b.WriteString(" UNIQUE")
	}
	if c.Check != "" {
		b.WriteString(" CHECK (").WriteString(c.Check).WriteByte(')')
	}
}

func columnType(b *sql.Builder, t field.Type) string {
	name, err := b.Profile().ColumnType(t)
	if err != nil {
		b.AddError(err)
	}
	return name
}

// defaultSQL writes a column default. DDL cannot bind parameters, so
// literal values are written as escaped SQL literals. Expressions other
// than bare keywords such as CURRENT_TIMESTAMP are parenthesized.
func defaultSQL(b *sql.Builder, d *qschema.Default) {
	if d.Expr != "" {
		if isKeyword(d.Expr) {
			b.WriteString(d.Expr)
		} else {
			b.WriteByte('(').WriteString(d.Expr).WriteByte(')')
		}
		return
	}
	b.WriteString(literal(b.Profile(), d.Value))
}

// literal returns the SQL literal of a value.
func literal(p *dialect.Profile, v field.Value) string {
	switch v := v.(type) {
	case nil, field.Null:
		return "NULL"
	case field.Int, field.Float, field.Decimal, field.Bool:
		return v.String()
	case field.String:
		return quoteString(p, string(v))
	case field.Time:
		return quoteString(p, time.Time(v).UTC().Format("2006-01-02 15:04:05.999999"))
	case field.Bytes:
		if p.Types[field.KindBytes] == "bytea" {
			return `'\x` + hex.EncodeToString(v) + "'"
		}
		return "X'" + hex.EncodeToString(v) + "'"
	case field.JSON:
		return quoteString(p, string(v))
	default:
		return quoteString(p, v.String())
	}
}

func quoteString(p *dialect.Profile, s string) string {
	if p.BackslashEscapes {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func isKeyword(s string) bool {
	for _, c := range s {
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') && c != '_' {
			return false
		}
	}
	return s != ""
}

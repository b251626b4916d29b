package gen

import (
	"fmt"
	"go/token"

	"github.com/dave/jennifer/jen"

	"github.com/syssam/quarry/schema"
	"github.com/syssam/quarry/schema/field"
)

const (
	queryPkg = "github.com/syssam/quarry/query"
	fieldPkg = "github.com/syssam/quarry/schema/field"
)

// reserved are the package-level names every model package declares.
var reserved = map[string]bool{
	"Model":       true,
	"Table":       true,
	"Columns":     true,
	"PrimaryKey":  true,
	"ValidColumn": true,
}

// modelFile describes the package generated for one model.
type modelFile struct {
	model *schema.Model
	pkg   string
	// idents maps column names to the names of their typed columns.
	idents map[string]string
}

// Path returns the file path relative to the target directory.
func (f *modelFile) Path() string { return f.pkg + "/" + f.pkg + ".go" }

// newModelFile picks the identifiers of a model package and reports
// names that cannot be expressed in Go.
func newModelFile(m *schema.Model) (*modelFile, error) {
	pkg, ok := packageName(m.Name)
	if !ok {
		return nil, NewGenerationError(m.Name, "", fmt.Sprintf("package name %q is not a valid identifier", pkg), nil)
	}
	f := &modelFile{model: m, pkg: pkg, idents: make(map[string]string, len(m.Columns))}
	owners := make(map[string]string)
	claim := func(ident, owner string) error {
		if !token.IsIdentifier(ident) || !token.IsExported(ident) {
			return NewGenerationError(m.Name, f.Path(), fmt.Sprintf("%s does not map to an exported identifier (got %q)", owner, ident), nil)
		}
		if prev, ok := owners[ident]; ok {
			return NewGenerationError(m.Name, f.Path(), fmt.Sprintf("%s and %s both map to %s", prev, owner, ident), nil)
		}
		owners[ident] = owner
		return nil
	}
	for _, c := range m.Columns {
		owner := fmt.Sprintf("column %q", c.Name)
		ident := pascal(c.Name)
		if reserved[ident] {
			ident += "Column"
		}
		if err := claim(ident, owner); err != nil {
			return nil, err
		}
		if err := claim("Field"+ident, owner); err != nil {
			return nil, err
		}
		f.idents[c.Name] = ident
	}
	for _, r := range m.Relations {
		owner := fmt.Sprintf("relation %q", r.Name)
		if err := claim("Edge"+pascal(r.Name), owner); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// render builds the model package: a single const block with the model,
// table, column and relation names, the Columns list, one typed column per
// column and ValidColumn.
func (f *modelFile) render(header string) *jen.File {
	m := f.model
	file := jen.NewFile(f.pkg)
	if header != "" {
		file.HeaderComment(header)
	}
	file.PackageComment(fmt.Sprintf("Package %s holds the typed columns of the %s model.", f.pkg, m.Name))

	file.Const().DefsFunc(func(defs *jen.Group) {
		defs.Commentf("Model holds the name of the %s model in the schema.", m.Name)
		defs.Id("Model").Op("=").Lit(m.Name)
		defs.Commentf("Table holds the table name of the %s in the database.", m.Name)
		defs.Id("Table").Op("=").Lit(m.Table)
		for _, c := range m.Columns {
			defs.Commentf("Field%s holds the string denoting the %s column in the database.", f.idents[c.Name], c.Name)
			defs.Id("Field" + f.idents[c.Name]).Op("=").Lit(c.Name)
		}
		for _, r := range m.Relations {
			edge := pascal(r.Name)
			defs.Commentf("Edge%s holds the string denoting the %s relation to %s.", edge, r.Name, r.Target)
			defs.Id("Edge" + edge).Op("=").Lit(r.Name)
		}
	})

	if pk := m.PrimaryKey; len(pk) > 0 {
		file.Comment("PrimaryKey holds the primary key columns of the table.")
		file.Var().Id("PrimaryKey").Op("=").Index().String().ValuesFunc(func(vals *jen.Group) {
			for _, c := range pk {
				vals.Id("Field" + f.idents[c])
			}
		})
	}

	file.Commentf("Columns holds all SQL columns for %s fields.", m.Name)
	file.Var().Id("Columns").Op("=").Index().String().ValuesFunc(func(vals *jen.Group) {
		for _, c := range m.Columns {
			vals.Id("Field" + f.idents[c.Name])
		}
	})

	file.Commentf("Typed columns of %s for building predicates and orderings.", m.Name)
	file.Var().DefsFunc(func(defs *jen.Group) {
		for _, c := range m.Columns {
			defs.Id(f.idents[c.Name]).Op("=").Add(columnType(c.Type)).Call(jen.Id("Field" + f.idents[c.Name]))
		}
	})

	file.Comment("ValidColumn reports if the column name is valid (part of the table columns).")
	file.Func().Id("ValidColumn").Params(jen.Id("column").String()).Bool().Block(
		jen.For(jen.Id("i").Op(":=").Range().Id("Columns")).Block(
			jen.If(jen.Id("column").Op("==").Id("Columns").Index(jen.Id("i"))).Block(
				jen.Return(jen.True()),
			),
		),
		jen.Return(jen.False()),
	)
	return file
}

// columnType returns the typed column constructor for a logical type.
func columnType(t field.Type) *jen.Statement {
	switch t.Kind {
	case field.KindInt, field.KindBigInt:
		return jen.Qual(queryPkg, "IntColumn")
	case field.KindFloat:
		return jen.Qual(queryPkg, "FloatColumn")
	case field.KindDecimal:
		return jen.Qual(queryPkg, "Column").Types(jen.Qual(fieldPkg, "Decimal"))
	case field.KindText, field.KindVarchar:
		return jen.Qual(queryPkg, "StringColumn")
	case field.KindBool:
		return jen.Qual(queryPkg, "BoolColumn")
	case field.KindTime, field.KindDate:
		return jen.Qual(queryPkg, "TimeColumn")
	case field.KindUUID:
		return jen.Qual(queryPkg, "UUIDColumn")
	case field.KindJSON:
		return jen.Qual(queryPkg, "Column").Types(jen.Qual("encoding/json", "RawMessage"))
	default:
		return jen.Qual(queryPkg, "Column").Types(jen.Index().Byte())
	}
}

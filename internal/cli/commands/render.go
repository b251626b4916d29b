package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/syssam/quarry/dialect"
	"github.com/syssam/quarry/dialect/sql/schema"
)

// renderValue writes v as indented JSON or YAML.
func renderValue(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}

// renderPlan writes a plan in the configured output format. Table output
// lists the operations and, when withSQL is set, the statements rendered
// for profile.
func renderPlan(w io.Writer, format string, plan *schema.Plan, profile *dialect.Profile, withSQL bool) error {
	if format != "table" {
		return renderValue(w, format, plan)
	}
	if plan.Empty() {
		_, _ = fmt.Fprintln(w, "Schema is up to date")
		return nil
	}
	t := newTable(w, "#", "Operation", "Table", "Target", "Reversible")
	for i, op := range plan.Ops {
		target := op.Column
		switch {
		case op.Definition.Index != nil:
			target = "index " + op.Definition.Index.Name
		case op.Definition.ForeignKey != nil:
			target = "constraint " + op.Definition.ForeignKey.Name
		}
		t.AppendRow(table.Row{i + 1, op.Kind.String(), op.Table, target, yesNo(op.Reversible)})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d operations, destructive: %s, reversible: %s)\n",
		len(plan.Ops), yesNo(plan.Destructive()), yesNo(plan.Reversible()))
	if !withSQL {
		return nil
	}
	stmts, err := plan.SQL(profile)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "\n-- %s\n", profile.Name)
	for _, s := range stmts {
		_, _ = fmt.Fprintf(w, "%s;\n", s)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

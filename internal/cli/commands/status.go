package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type migrationStatus struct {
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description" yaml:"description"`
	Applied     bool   `json:"applied" yaml:"applied"`
	AppliedAt   string `json:"applied_at,omitempty" yaml:"applied_at,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			dir, err := c.OpenDir()
			if err != nil {
				return err
			}
			m, closeDB, err := c.openMigrator()
			if err != nil {
				return err
			}
			defer closeDB()
			applied, err := m.Applied(cmd.Context())
			if err != nil {
				return err
			}
			pending, err := m.Pending(cmd.Context(), dir)
			if err != nil {
				return err
			}
			rows := make([]migrationStatus, 0, len(applied)+len(pending))
			for _, r := range applied {
				rows = append(rows, migrationStatus{
					Version:     r.Version,
					Description: r.Description,
					Applied:     true,
					AppliedAt:   r.AppliedAt.UTC().Format("2006-01-02 15:04:05"),
				})
			}
			for _, p := range pending {
				rows = append(rows, migrationStatus{Version: p.Version, Description: p.Description})
			}
			if c.Cfg.Output != "table" {
				return renderValue(c.Out, c.Cfg.Output, rows)
			}
			t := newTable(c.Out, "Version", "Description", "Status", "Applied At")
			for _, r := range rows {
				status := "pending"
				if r.Applied {
					status = "applied"
				}
				t.AppendRow(table.Row{r.Version, r.Description, status, r.AppliedAt})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Migration directory")
	cmd.Flags().String("dsn", "", "Data source name of the database")
	return cmd
}

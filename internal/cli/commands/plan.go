package commands

import (
	"github.com/spf13/cobra"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the migration plan between two schema versions",
		Long: `Compare the previous schema descriptor with the target one and print
the operations taking a database from one to the other.

Dropping tables or columns is refused unless --allow-destructive is set.`,
		Example: `  # Plan a fresh database
  quarry plan --to schema.yaml

  # Plan an upgrade and show the MySQL statements
  quarry plan --from v1.yaml --to v2.yaml --dialect mysql --sql

  # Re-plan whenever the schema file changes
  quarry plan --from v1.yaml --to v2.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			withSQL, _ := cmd.Flags().GetBool("sql")
			run := func() error {
				plan, err := c.Plan()
				if err != nil {
					return err
				}
				return renderPlan(c.Out, c.Cfg.Output, plan, c.Cfg.Profile(), withSQL)
			}
			if watch, _ := cmd.Flags().GetBool("watch"); watch {
				return watchFiles(cmd.Context(), c.Logger, []string{c.Cfg.Previous, c.Cfg.Schema}, run)
			}
			return run()
		},
	}
	addDiffFlags(cmd)
	cmd.Flags().Bool("sql", false, "Print the SQL statements of the plan")
	cmd.Flags().Bool("watch", false, "Re-plan when a descriptor file changes")
	return cmd
}

package commands

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"
)

var validName = regexp.MustCompile(`^[a-z0-9_]+$`)

// NewWriteCommand creates the write command.
func NewWriteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <name>",
		Short: "Write the migration plan to the migration directory",
		Long: `Plan the migration between the previous and the target schema and store
it as a new versioned migration: an up script, a down script when every
operation can be undone, and the plan record with its checksum.`,
		Example: `  quarry write add_tags --from v1.yaml --to v2.yaml --dir migrations`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validName.MatchString(args[0]) {
				return fmt.Errorf("invalid migration name %q: use lower case letters, digits and underscores", args[0])
			}
			c, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			plan, err := c.Plan()
			if err != nil {
				return err
			}
			if plan.Empty() {
				_, _ = fmt.Fprintln(c.Out, "Schema is up to date, no migration written")
				return nil
			}
			dir, err := c.OpenDir()
			if err != nil {
				return err
			}
			version, err := dir.Write(args[0], plan, c.Cfg.Profile())
			if err != nil {
				return err
			}
			c.Logger.Info("migration written",
				"version", version,
				"operations", len(plan.Ops),
				"reversible", plan.Reversible(),
			)
			_, _ = fmt.Fprintf(c.Out, "%s_%s (%d operations)\n", version, args[0], len(plan.Ops))
			return nil
		},
	}
	addDiffFlags(cmd)
	cmd.Flags().String("dir", "", "Migration directory")
	return cmd
}

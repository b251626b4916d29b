package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the integrity of the migration directory",
		Long: `Validate the migration directory against its integrity file and check the
checksum recorded in every plan file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			dir, err := c.OpenDir()
			if err != nil {
				return err
			}
			if err := dir.Verify(); err != nil {
				return err
			}
			migrations, err := dir.Migrations()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.Out, "%s: %d migrations verified\n", dir.Path(), len(migrations))
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Migration directory")
	return cmd
}

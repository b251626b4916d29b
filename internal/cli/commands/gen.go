package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syssam/quarry/compiler/gen"
	"github.com/syssam/quarry/compiler/load"
	"github.com/syssam/quarry/schema"
)

// NewGenCommand creates the gen command.
func NewGenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate typed column packages",
		Long: `Generate one Go package per model of the target schema, declaring the
table name, column name constants and typed columns for the query builder.`,
		Example: `  quarry gen --to schema.yaml --out internal/models
  quarry gen --models Post,Tag --workers 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			snap, err := load.File(c.Cfg.Schema, schema.WithLogger(c.Logger))
			if err != nil {
				return fmt.Errorf("failed to load schema: %w", err)
			}
			opts := []gen.Option{
				gen.WithTarget(c.Cfg.Gen.Target),
				gen.WithLogger(c.Logger),
			}
			if n := c.Cfg.Gen.Workers; n > 0 {
				opts = append(opts, gen.WithWorkers(n))
			}
			if len(c.Cfg.Gen.Models) > 0 {
				opts = append(opts, gen.WithModels(c.Cfg.Gen.Models...))
			}
			metrics, err := gen.Generate(cmd.Context(), snap, opts...)
			if err != nil {
				return err
			}
			for _, f := range metrics.Files {
				_, _ = fmt.Fprintln(c.Out, f)
			}
			return nil
		},
	}
	cmd.Flags().String("to", "", "Descriptor of the schema")
	cmd.Flags().String("out", "", "Target directory of the generated packages")
	cmd.Flags().StringSlice("models", nil, "Models to generate (default: all)")
	cmd.Flags().Int("workers", 0, "Number of files written concurrently")
	return cmd
}

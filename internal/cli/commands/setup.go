// Package commands implements the subcommands of the quarry command.
package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/syssam/quarry/compiler/load"
	"github.com/syssam/quarry/dialect/sql/schema"
	"github.com/syssam/quarry/internal/config"
	qschema "github.com/syssam/quarry/schema"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Out    io.Writer
}

// NewCommandContext returns the dependencies stored by the root command.
// Commands executed on their own load the configuration from their flags.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := config.GetLogger(ctx)
	if cfg == nil {
		var err error
		if cfg, err = config.Load("", cmd.Flags()); err != nil {
			return nil, err
		}
		logger = cfg.NewLogger(cmd.ErrOrStderr())
	}
	return &CommandContext{Cfg: cfg, Logger: logger, Out: cmd.OutOrStdout()}, nil
}

// Snapshots loads the previous and the target schema. The previous
// snapshot is nil when no previous descriptor is configured.
func (c *CommandContext) Snapshots() (from, to *qschema.Snapshot, err error) {
	opts := []qschema.Option{qschema.WithLogger(c.Logger)}
	if c.Cfg.DeferredCycles {
		opts = append(opts, qschema.DeferCycleCheck())
	}
	if c.Cfg.Previous != "" {
		if from, err = load.File(c.Cfg.Previous, opts...); err != nil {
			return nil, nil, fmt.Errorf("failed to load previous schema: %w", err)
		}
	}
	if to, err = load.File(c.Cfg.Schema, opts...); err != nil {
		return nil, nil, fmt.Errorf("failed to load schema: %w", err)
	}
	return from, to, nil
}

// Plan computes the migration plan between the configured schemas.
func (c *CommandContext) Plan() (*schema.Plan, error) {
	from, to, err := c.Snapshots()
	if err != nil {
		return nil, err
	}
	opts := []schema.DiffOption{schema.WithLogger(c.Logger)}
	if c.Cfg.AllowDestructive {
		opts = append(opts, schema.AllowDestructive())
	}
	if c.Cfg.DeferredCycles {
		opts = append(opts, schema.WithDeferredCycles())
	}
	return schema.Diff(from, to, opts...)
}

// OpenDir opens the configured migration directory.
func (c *CommandContext) OpenDir() (*schema.Dir, error) {
	return schema.OpenDir(c.Cfg.MigrationsDir)
}

// addDiffFlags registers the flags selecting the schemas to compare.
func addDiffFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "Descriptor of the current schema (empty for an empty database)")
	cmd.Flags().String("to", "", "Descriptor of the target schema")
	cmd.Flags().Bool("allow-destructive", false, "Allow dropping tables and columns")
	cmd.Flags().Bool("deferred-cycles", false, "Break foreign key cycles with deferred constraints")
}

package commands

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/syssam/quarry/dialect"
	"github.com/syssam/quarry/dialect/sql"
	"github.com/syssam/quarry/dialect/sql/schema"
)

// openMigrator connects to the configured database. The returned function
// closes the connection.
func (c *CommandContext) openMigrator() (*schema.Migrator, func(), error) {
	source, err := c.Cfg.Source()
	if err != nil {
		return nil, nil, err
	}
	drv, err := sql.Open(c.Cfg.DriverDialect(), source)
	if err != nil {
		return nil, nil, err
	}
	if c.Cfg.DriverDialect() == dialect.SQLite {
		drv.DB().SetMaxOpenConns(1)
	}
	m, err := schema.NewMigrator(sql.NewDebugDriver(drv, c.Logger), schema.WithMigratorLogger(c.Logger))
	if err != nil {
		_ = drv.Close()
		return nil, nil, err
	}
	return m, func() { _ = drv.Close() }, nil
}

// NewApplyCommand creates the apply command.
func NewApplyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply pending migrations to a database",
		Long: `Apply every migration of the migration directory that the database has
not seen yet, each in its own transaction. Applied versions are recorded in
the revision table. Run with -v to log every executed statement.`,
		Example: `  quarry apply --dialect postgres --dsn postgres://localhost/app
  quarry apply --dialect sqlite3 --dsn app.db --dir migrations`,
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
			m, closeDB, err := c.openMigrator()
			if err != nil {
				return err
			}
			defer closeDB()
			versions, err := m.Apply(cmd.Context(), dir)
			for _, v := range versions {
				_, _ = fmt.Fprintf(c.Out, "applied %s\n", v)
			}
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				_, _ = fmt.Fprintln(c.Out, "Database is up to date")
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Migration directory")
	cmd.Flags().String("dsn", "", "Data source name of the database")
	return cmd
}

package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/streamharvest/streamharvest/db"
	"github.com/streamharvest/streamharvest/internal/config"
)

// NewMigrateCmd creates the migrate command, which applies the embedded
// PostgreSQL schema migrations. The keyword index needs no migration; its
// schema is created when the index file is opened.
func NewMigrateCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.NeedsPostgres() {
				return fmt.Errorf("no PostgreSQL-backed sink enabled, nothing to migrate")
			}
			if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

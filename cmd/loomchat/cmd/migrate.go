package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/loomchat/loomchat/internal/adapter/outbound/sqlstore"
	"github.com/loomchat/loomchat/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	Long: `Apply all pending database migrations and exit.

The start command migrates automatically on boot; this command exists
for deployments that run migrations as a separate step (e.g. before a
rolling restart).`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Open applies pending migrations before returning.
	store, err := sqlstore.Open(cmd.Context(), sqlstore.Driver(cfg.Database.Driver), cfg.Database.DSN,
		sqlstore.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer store.Close()

	logger.Info("migrations applied", "driver", cfg.Database.Driver)
	return nil
}

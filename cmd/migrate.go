package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jandubois/healthmon/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("down", false, "Roll back all migrations")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path, err := getDatabasePath(cmd)
	if err != nil {
		return err
	}
	down, _ := cmd.Flags().GetBool("down")

	if down {
		slog.Info("rolling back all migrations", "database", path)
		if err := db.RollbackMigrations(ctx, path); err != nil {
			return err
		}
		slog.Info("migrations rolled back")
	} else {
		slog.Info("running migrations", "database", path)
		if err := db.RunMigrations(ctx, path); err != nil {
			return err
		}
		slog.Info("migrations complete")
	}

	return nil
}

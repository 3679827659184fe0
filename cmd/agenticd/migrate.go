package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dembrane/agentic/pkg/config"
	"github.com/dembrane/agentic/pkg/directory/postgres"
)

// migrateCmd applies pending schema migrations and exits. postgres.NewClient
// runs golang-migrate's Up() as part of connecting, so this is the same
// schema setup serve does on every start, available standalone for
// deploy pipelines that migrate before rolling out new pods.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dbCfg, err := config.LoadDatabaseConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load database config: %w", err)
	}

	client, err := postgres.NewClient(context.Background(), dbCfg)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()

	slog.Info("migrations applied", "database", dbCfg.Database)
	return nil
}

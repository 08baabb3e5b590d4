package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/savings-tracker/internal/cli"
	"github.com/Veraticus/savings-tracker/internal/config"
	"github.com/Veraticus/savings-tracker/internal/service"
	"github.com/Veraticus/savings-tracker/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures your database has all the tables and indexes the
application needs.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")

	dbConfig, err := config.LoadDatabaseConfig()
	if err != nil {
		return err
	}

	var store service.Storage
	var sqlite *storage.SQLiteStorage
	switch dbConfig.Driver {
	case config.DriverPostgres:
		store, err = storage.NewPostgresStorage(dbConfig.DSN)
	default:
		sqlite, err = storage.NewSQLiteStorage(dbConfig.Path)
		store = sqlite
	}
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if status {
		if sqlite == nil {
			_, err = fmt.Fprintln(out, cli.FormatInfo("Schema status is only tracked for SQLite; postgres tables are auto-migrated"))
			return err
		}
		version, err := sqlite.SchemaVersion(ctx)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		_, err = fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Database %s is at schema version %d of %d",
			sqlite.Path(), version, storage.ExpectedSchemaVersion)))
		return err
	}

	slog.Info("Running database migrations", "driver", dbConfig.Driver)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	_, err = fmt.Fprintln(out, cli.FormatSuccess("Database migrations completed successfully"))
	return err
}

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/Skotchmaster/authsession/internal/config"
	"github.com/Skotchmaster/authsession/internal/db"
)

// migrateFn is swapped in tests.
var migrateFn = db.Migrate

func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply the embedded goose migrations to the PostgreSQL database in DATABASE_URL.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").With("field", "DATABASE_URL").Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.DBDriver != config.DriverPostgres {
		return oops.Code("CONFIG_INVALID").With("field", "DB_DRIVER").Errorf("migrations run against postgres only, got %q", cfg.DBDriver)
	}

	cmd.Println("Running migrations...")
	if err := migrateFn(cmd.Context(), cfg.DatabaseURL); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}

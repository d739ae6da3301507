package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/jmcleod/liftlog/config"
	"github.com/jmcleod/liftlog/storage/postgres"
)

var migrateDSN string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the embedded schema migrations to the Postgres database.
The bbolt and memory drivers need no migrations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if migrateDSN != "" {
			cfg.StorageDriver = config.DriverPostgres
			cfg.DatabaseDSN = migrateDSN
		}
		if cfg.StorageDriver != config.DriverPostgres {
			fmt.Fprintf(cmd.OutOrStdout(), "storage driver %q has no migrations\n", cfg.StorageDriver)
			return nil
		}
		if cfg.DatabaseDSN == "" {
			return errors.New("a database DSN is required (--dsn or LIFTLOG_DATABASE_URL)")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		db, err := sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if err := postgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateDSN, "dsn", "", "Postgres DSN (overrides LIFTLOG_DATABASE_URL)")
}

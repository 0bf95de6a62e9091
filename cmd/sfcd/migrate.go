package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/database"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, opts, func(db *database.DB) error {
				if err := db.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("applying migrations: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, opts, func(db *database.DB) error {
				if err := db.MigrateDown(cmd.Context()); err != nil {
					return fmt.Errorf("rolling back migration: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migration rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, opts, func(db *database.DB) error {
				applied, pending, err := db.MigrationStatus(cmd.Context())
				if err != nil {
					return fmt.Errorf("reading migration status: %w", err)
				}
				printMigrationStatus(cmd.OutOrStdout(), applied, pending)
				return nil
			})
		},
	})

	return cmd
}

// withDatabase opens the configured database for the duration of fn.
func withDatabase(cmd *cobra.Command, opts *rootOptions, fn func(*database.DB) error) error {
	db, err := openDatabase(cmd.Context(), opts.resolveConfigPath())
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func printMigrationStatus(w io.Writer, applied []database.MigrationRecord, pending []database.Migration) {
	for _, m := range applied {
		fmt.Fprintf(w, "applied  %s  %s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(w, "pending  %s  %s\n", m.Version, m.Name)
	}
	fmt.Fprintf(w, "%d applied, %d pending\n", len(applied), len(pending))
}

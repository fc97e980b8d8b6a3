package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/MolPrep-Engine/internal/config"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/database/postgres"
)

// NewMigrateCmd creates the migrate subcommand family.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	cmd.AddCommand(
		newMigrateUpCmd(),
		newMigrateDownCmd(),
		newMigrateStatusCmd(),
	)

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			src, dbURL := migrationTargets(cliCtx.Config)
			if err := postgres.RunMigrations(dbURL, src); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			src, dbURL := migrationTargets(cliCtx.Config)
			if err := postgres.RollbackMigration(dbURL, src, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	return cmd
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			src, dbURL := migrationTargets(cliCtx.Config)
			version, dirty, err := postgres.MigrationStatus(dbURL, src)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version: %d, dirty: %t\n", version, dirty)
			return nil
		},
	}
}

// migrationTargets derives the migration source and database URL from config.
func migrationTargets(cfg *config.Config) (src, dbURL string) {
	path := cfg.Database.MigrationPath
	if path == "" {
		path = "migrations"
	}
	return "file://" + path, postgres.BuildDSN(cfg.Database)
}

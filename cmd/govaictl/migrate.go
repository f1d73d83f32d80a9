package main

import (
	"fmt"

	"github.com/govai/console/internal"
	"github.com/spf13/cobra"
)

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or apply database migrations",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Print each migration's applied state",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.connect(cmd)
			if err != nil {
				return err
			}
			if err := internal.MigrationStatus(cmd.Context(), env.db); err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			version, err := internal.MigrationVersion(cmd.Context(), env.db)
			if err != nil {
				return fmt.Errorf("migration version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations, including the plan seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.connect(cmd)
			if err != nil {
				return err
			}
			if err := internal.RunMigrations(env.db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	cmd.AddCommand(status, up)
	return cmd
}

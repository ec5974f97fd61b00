package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/freelance-market/internal/db"
)

var migrateDownSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		if err := migrateUp(e); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if migrateDownSteps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		e, err := loadEnv()
		if err != nil {
			return err
		}
		url, err := e.requireDatabaseURL()
		if err != nil {
			return err
		}
		if err := db.MigrateDown(url, migrateDownSteps); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d migration(s)\n", migrateDownSteps)
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		url, err := e.requireDatabaseURL()
		if err != nil {
			return err
		}
		version, dirty, err := db.MigrationVersion(url)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch {
		case version == 0:
			fmt.Fprintln(out, "No migrations applied")
		case dirty:
			fmt.Fprintf(out, "Version %d (dirty)\n", version)
		default:
			fmt.Fprintf(out, "Version %d\n", version)
		}
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func migrateUp(e *env) error {
	url, err := e.requireDatabaseURL()
	if err != nil {
		return err
	}
	if err := db.MigrateUp(url); err != nil {
		return err
	}
	e.log.Info("database migrations applied")
	return nil
}

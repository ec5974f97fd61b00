package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/freelance-market/internal/gateway"
	"github.com/jonathan/freelance-market/internal/lifecycle"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair in-progress jobs once",
	Long: `Scan every in-progress job and settle its proposals: the assigned
freelancer's proposal is accepted and every other open proposal rejected.
Jobs that cannot be repaired are listed in the report.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	e, err := loadEnv()
	if err != nil {
		return err
	}
	database, err := e.connect(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	// Reconciliation never touches the payment gateway.
	engine := lifecycle.New(database, gateway.NewMockGateway(),
		lifecycle.WithLogger(e.log),
		lifecycle.WithTemplates(e.policy.Templates),
	)
	defer engine.Notifications.Wait()

	report, err := engine.Reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if len(report.Unrepairable) > 0 {
		return fmt.Errorf("%d job(s) could not be repaired", len(report.Unrepairable))
	}
	return nil
}

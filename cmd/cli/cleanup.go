package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ddokjang/plan-service/internal/jobs"
)

var (
	cleanupCallDays      int
	cleanupExecDays      int
	cleanupSelectionDays int
)

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply retention policies to audit tables",
	Long: `Delete provider call-log, plan execution, and plan selection rows
older than the configured retention windows. The server runs the same jobs
daily; this command applies them on demand.`,
	Example: `  plan-service cleanup
  plan-service cleanup --call-days 31`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	defaults := jobs.DefaultCleanupConfig()
	cleanupCmd.Flags().IntVar(&cleanupCallDays, "call-days", defaults.CallLogRetentionDays, "Provider call-log retention in days")
	cleanupCmd.Flags().IntVar(&cleanupExecDays, "execution-days", defaults.ExecutionRetentionDays, "Plan execution retention in days")
	cleanupCmd.Flags().IntVar(&cleanupSelectionDays, "selection-days", defaults.SelectionRetentionDays, "Plan selection retention in days")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg := jobs.CleanupConfig{
		CallLogRetentionDays:   cleanupCallDays,
		ExecutionRetentionDays: cleanupExecDays,
		SelectionRetentionDays: cleanupSelectionDays,
	}

	if err := jobs.RunRetention(ctx, cfg); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	logger.Info().Msg("Cleanup complete")
	return nil
}

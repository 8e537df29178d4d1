package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ddokjang/plan-service/internal/catalog"
	"github.com/ddokjang/plan-service/internal/database"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <file.xlsx>",
	Short: "Import a price snapshot workbook",
	Long: `Import an xlsx workbook of store price snapshots into the catalog.
The first sheet must carry a header row followed by columns:
store_id, product_name, brand, size, category, price, observed_at.`,
	Example: `  plan-service ingest snapshots/2026-09.xlsx`,
	Args:    cobra.ExactArgs(1),
	RunE:    runIngestFile,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngestFile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read workbook: %w", err)
	}

	repo := catalog.NewRepository(database.Pool())
	result, err := repo.ImportSnapshotsXLSX(ctx, content)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	logger.Info().
		Int("total", result.TotalRows).
		Int("imported", result.ImportedRows).
		Int("skipped", result.SkippedRows).
		Int("products", result.Products).
		Msg("Import complete")

	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "row error: %s\n", e)
	}
	if result.SkippedRows > 0 {
		fmt.Printf("Imported %d of %d rows (%d skipped)\n", result.ImportedRows, result.TotalRows, result.SkippedRows)
	} else {
		fmt.Printf("Imported %d rows\n", result.ImportedRows)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ddokjang/plan-service/internal/catalog"
	"github.com/ddokjang/plan-service/internal/database"
	"github.com/ddokjang/plan-service/internal/matching"
)

var (
	matchBrand string
	matchSize  string
	matchLimit int
)

// matchCmd represents the match command
var matchCmd = &cobra.Command{
	Use:   "match <item-name>",
	Short: "Match a basket item against the product catalog",
	Long: `Resolve a free-text basket item name against the canonical product
catalog and print the best match with its score, or the top suggestions
when --limit is given.`,
	Example: `  plan-service match 우유
  plan-service match 계란 --size 30구
  plan-service match 서울우유 --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringVar(&matchBrand, "brand", "", "Preferred brand for the item")
	matchCmd.Flags().StringVar(&matchSize, "size", "", "Requested size, e.g. 500ml or 30개입")
	matchCmd.Flags().IntVar(&matchLimit, "limit", 0, "Print the top N suggestions instead of the single best match")
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	repo := catalog.NewRepository(database.Pool())
	matcher := matching.NewMatcher(repo, matching.DefaultConfig())

	item := matching.Item{
		Name:     args[0],
		Brand:    matchBrand,
		Size:     matchSize,
		Quantity: 1,
	}

	if matchLimit > 0 {
		suggestions, err := matcher.Suggest(ctx, item, matchLimit)
		if err != nil {
			return fmt.Errorf("suggest failed: %w", err)
		}
		if len(suggestions) == 0 {
			fmt.Println("No candidates found")
			return nil
		}
		printResults(suggestions)
		return nil
	}

	result, err := matcher.Match(ctx, item, nil, nil)
	if err != nil {
		if errors.Is(err, matching.ErrNoMatch) {
			fmt.Printf("No match for %q\n", item.Name)
			return nil
		}
		return fmt.Errorf("match failed: %w", err)
	}

	printResults([]matching.Result{*result})
	for _, a := range result.Assumptions {
		fmt.Printf("  assumed %s=%s (%s)\n", a.Field, a.AssumedValue, a.Reason)
	}
	return nil
}

func printResults(results []matching.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tPRODUCT KEY\tNAME\tBRAND\tSIZE")
	for _, r := range results {
		fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\t%s\n", r.Score, r.ProductKey, r.NormalizedName, r.Brand, r.SizeDisplay)
	}
	w.Flush()
}

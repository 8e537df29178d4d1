package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ddokjang/plan-service/internal/catalog"
	"github.com/ddokjang/plan-service/internal/database"
	"github.com/ddokjang/plan-service/internal/matching"
	"github.com/ddokjang/plan-service/internal/planner"
)

var (
	planLat     float64
	planLng     float64
	planMode    string
	planMinutes int
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan <item>[:qty] [<item>[:qty]...]",
	Short: "Generate purchase plans from the local catalog",
	Long: `Generate the Top-3 purchase plans (cheapest, nearest, balanced) for a
basket against the local catalog only. External providers are not called, so
results reflect stored snapshots and known stores.`,
	Example: `  plan-service plan 우유 계란:2 --lat 37.5665 --lng 126.9780
  plan-service plan 생수:6 --mode car --minutes 20`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().Float64Var(&planLat, "lat", 37.5665, "User latitude")
	planCmd.Flags().Float64Var(&planLng, "lng", 126.9780, "User longitude")
	planCmd.Flags().StringVar(&planMode, "mode", "walk", "Travel mode: walk, transit or car")
	planCmd.Flags().IntVar(&planMinutes, "minutes", 30, "Maximum travel minutes")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	items, err := parseBasketArgs(args)
	if err != nil {
		return err
	}

	repo := catalog.NewRepository(database.Pool())
	matcher := matching.NewMatcher(repo, matching.DefaultConfig())
	resolver := planner.NewResolver(repo, nil, nil, planner.DefaultResolverConfig())
	evalCfg := planner.DefaultEvaluatorConfig()
	evaluator := planner.NewEvaluator(repo, evalCfg)
	ranker := planner.NewRanker(planner.DefaultRankingConfig())

	svc := planner.NewService(
		matcher, resolver, evaluator, ranker,
		repo, nil, nil, repo, repo,
		planner.DefaultServiceConfig(), evalCfg,
	)

	resp, perr := svc.GeneratePlans(ctx, &planner.PlanRequest{
		Items: items,
		UserContext: planner.UserContext{
			Lat:              planLat,
			Lng:              planLng,
			TravelMode:       planner.TravelMode(planMode),
			MaxTravelMinutes: planMinutes,
		},
	})
	if perr != nil {
		return fmt.Errorf("plan generation failed (%s): %s", perr.Kind, perr.Message)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLAN\tSTORE\tTOTAL\tCOVERAGE\tMINUTES")
	for _, p := range resp.Plans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%d\n",
			p.PlanType, p.StoreName, planner.FormatWon(p.TotalPrice), p.CoverageRatio*100, p.TravelMinutes)
	}
	w.Flush()

	for _, p := range resp.Plans {
		fmt.Printf("\n[%s] %s\n", p.PlanType, p.Explanation)
		for _, m := range p.MissingItems {
			fmt.Printf("  missing: %s (%s)\n", m.ItemName, m.Reason)
		}
	}
	if len(resp.Meta.DegradedProviders) > 0 {
		fmt.Printf("\ndegraded providers: %s\n", strings.Join(resp.Meta.DegradedProviders, ", "))
	}
	return nil
}

// parseBasketArgs turns "이름:수량" arguments into basket items; the quantity
// defaults to 1.
func parseBasketArgs(args []string) ([]planner.BasketItem, error) {
	items := make([]planner.BasketItem, 0, len(args))
	for _, arg := range args {
		name := arg
		qty := 1
		if idx := strings.LastIndex(arg, ":"); idx > 0 {
			parsed, err := strconv.Atoi(arg[idx+1:])
			if err != nil || parsed < 1 {
				return nil, fmt.Errorf("invalid quantity in %q", arg)
			}
			name = arg[:idx]
			qty = parsed
		}
		items = append(items, planner.BasketItem{ItemName: name, Quantity: qty})
	}
	return items, nil
}

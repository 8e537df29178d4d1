package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func score(storeID string, total int64, coverage float64, minutes int) StoreScore {
	return StoreScore{
		StoreID:       storeID,
		StoreName:     "매장 " + storeID,
		TotalPrice:    total,
		CoverageRatio: coverage,
		TravelMinutes: minutes,
	}
}

func planByType(t *testing.T, plans []Plan, planType PlanType) Plan {
	t.Helper()
	for _, p := range plans {
		if p.PlanType == planType {
			return p
		}
	}
	t.Fatalf("no %s plan in %v", planType, plans)
	return Plan{}
}

func TestRankProducesThreePlans(t *testing.T) {
	ranker := NewRanker(DefaultRankingConfig())

	plans := ranker.Rank([]StoreScore{
		score("cheap", 10000, 1.0, 30),
		score("near", 15000, 1.0, 5),
		score("mid", 12000, 1.0, 15),
	})
	require.Len(t, plans, 3)

	assert.Equal(t, "cheap", planByType(t, plans, PlanCheapest).StoreID)
	assert.Equal(t, "near", planByType(t, plans, PlanNearest).StoreID)
	// The balanced pick must differ from both when a third store exists.
	assert.Equal(t, "mid", planByType(t, plans, PlanBalanced).StoreID)
}

func TestRankCoverageFilter(t *testing.T) {
	ranker := NewRanker(DefaultRankingConfig())

	plans := ranker.Rank([]StoreScore{
		score("good-a", 10000, 0.8, 10),
		score("good-b", 11000, 0.7, 12),
		score("good-c", 12000, 0.9, 14),
		score("thin", 1000, 0.3, 5),
	})
	require.Len(t, plans, 3)
	for _, p := range plans {
		assert.NotEqual(t, "thin", p.StoreID, "coverage below the floor must never rank")
	}
}

func TestRankRelaxesCoverageWhenFewStoresPass(t *testing.T) {
	ranker := NewRanker(DefaultRankingConfig())

	// Only one store passes 0.6; relaxing to 0.4 admits two more.
	plans := ranker.Rank([]StoreScore{
		score("strict", 10000, 0.8, 10),
		score("relaxed-a", 9000, 0.5, 12),
		score("relaxed-b", 11000, 0.45, 8),
		score("hopeless", 1000, 0.2, 5),
	})
	require.Len(t, plans, 3)

	ids := map[string]bool{}
	for _, p := range plans {
		ids[p.StoreID] = true
	}
	assert.False(t, ids["hopeless"], "0.2 coverage fails even the relaxed floor")
	assert.True(t, ids["relaxed-a"] || ids["relaxed-b"], "relaxation must admit mid-coverage stores")
}

func TestRankNothingPassesCoverage(t *testing.T) {
	ranker := NewRanker(DefaultRankingConfig())

	plans := ranker.Rank([]StoreScore{
		score("a", 10000, 0.1, 10),
		score("b", 11000, 0.2, 12),
	})
	assert.Nil(t, plans)
}

func TestRankEmptyInput(t *testing.T) {
	assert.Nil(t, NewRanker(DefaultRankingConfig()).Rank(nil))
}

func TestRankSingleCandidateFillsAllSlots(t *testing.T) {
	ranker := NewRanker(DefaultRankingConfig())

	plans := ranker.Rank([]StoreScore{score("only", 10000, 0.9, 10)})
	require.Len(t, plans, 3)
	for _, p := range plans {
		assert.Equal(t, "only", p.StoreID)
	}
	assert.Equal(t, PlanCheapest, plans[0].PlanType)
	assert.Equal(t, PlanNearest, plans[1].PlanType)
	assert.Equal(t, PlanBalanced, plans[2].PlanType)
}

func TestRankBalancedPrefersDistinctStore(t *testing.T) {
	ranker := NewRanker(DefaultRankingConfig())

	// "both" is simultaneously cheapest and nearest; the balanced slot must
	// go to the runner-up rather than repeat it.
	plans := ranker.Rank([]StoreScore{
		score("both", 9000, 1.0, 5),
		score("other", 12000, 1.0, 20),
	})
	require.Len(t, plans, 3)
	assert.Equal(t, "both", planByType(t, plans, PlanCheapest).StoreID)
	assert.Equal(t, "both", planByType(t, plans, PlanNearest).StoreID)
	assert.Equal(t, "other", planByType(t, plans, PlanBalanced).StoreID)
}

func TestRankCheapestTieBreaks(t *testing.T) {
	ranker := NewRanker(DefaultRankingConfig())

	// Equal totals: higher coverage wins; then shorter travel; then store ID.
	plans := ranker.Rank([]StoreScore{
		score("b", 10000, 0.8, 10),
		score("a", 10000, 0.9, 20),
		score("c", 10000, 0.8, 10),
	})
	assert.Equal(t, "a", planByType(t, plans, PlanCheapest).StoreID)

	plans = ranker.Rank([]StoreScore{
		score("z", 10000, 0.8, 10),
		score("y", 10000, 0.8, 10),
	})
	assert.Equal(t, "y", planByType(t, plans, PlanCheapest).StoreID)
}

func TestRankNearestTieBreaksOnPrice(t *testing.T) {
	ranker := NewRanker(DefaultRankingConfig())

	plans := ranker.Rank([]StoreScore{
		score("dear", 15000, 0.9, 10),
		score("cheap", 10000, 0.9, 10),
	})
	assert.Equal(t, "cheap", planByType(t, plans, PlanNearest).StoreID)
}

func TestRankExplanationsMentionTotals(t *testing.T) {
	ranker := NewRanker(DefaultRankingConfig())

	plans := ranker.Rank([]StoreScore{score("s", 12300, 1.0, 7)})
	cheapest := planByType(t, plans, PlanCheapest)
	assert.Contains(t, cheapest.Explanation, "12,300원")
	assert.Contains(t, cheapest.Explanation, "7분")
}

func TestFormatWon(t *testing.T) {
	tests := []struct {
		amount   int64
		expected string
	}{
		{0, "0원"},
		{900, "900원"},
		{1000, "1,000원"},
		{12300, "12,300원"},
		{1234567, "1,234,567원"},
		{-4500, "-4,500원"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatWon(tt.amount))
	}
}

package planner

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RankingConfig holds the plan ranking policy. Weights are policy values,
// surfaced through configuration rather than hardcoded.
type RankingConfig struct {
	MinCoverage     float64
	RelaxedCoverage float64

	// Balanced plan weights. Coverage is subtracted: higher coverage
	// improves (lowers) the balanced score.
	PriceWeight    float64
	TravelWeight   float64
	CoverageWeight float64
}

// DefaultRankingConfig returns the production ranking policy.
func DefaultRankingConfig() RankingConfig {
	return RankingConfig{
		MinCoverage:     0.6,
		RelaxedCoverage: 0.4,
		PriceWeight:     0.5,
		TravelWeight:    0.3,
		CoverageWeight:  0.2,
	}
}

// Ranker turns evaluated store scores into the three ranked plans.
type Ranker struct {
	config RankingConfig
	logger zerolog.Logger
}

// NewRanker builds a Ranker.
func NewRanker(config RankingConfig) *Ranker {
	return &Ranker{
		config: config,
		logger: log.With().Str("component", "ranking_engine").Logger(),
	}
}

// Rank produces the cheapest, nearest, and balanced plans. Coverage below
// the threshold filters a store out; the threshold relaxes when fewer than
// three stores pass. Returns nil when nothing passes even relaxed.
func (r *Ranker) Rank(scores []StoreScore) []Plan {
	if len(scores) == 0 {
		return nil
	}

	filtered := filterByCoverage(scores, r.config.MinCoverage)
	if len(filtered) < 3 {
		relaxed := filterByCoverage(scores, r.config.RelaxedCoverage)
		if len(relaxed) > len(filtered) {
			r.logger.Info().
				Int("strict", len(filtered)).
				Int("relaxed", len(relaxed)).
				Msg("coverage threshold relaxed")
			filtered = relaxed
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	cheapestOrder := make([]StoreScore, len(filtered))
	copy(cheapestOrder, filtered)
	sort.Slice(cheapestOrder, func(i, j int) bool {
		a, b := cheapestOrder[i], cheapestOrder[j]
		if a.TotalPrice != b.TotalPrice {
			return a.TotalPrice < b.TotalPrice
		}
		if a.CoverageRatio != b.CoverageRatio {
			return a.CoverageRatio > b.CoverageRatio
		}
		if a.TravelMinutes != b.TravelMinutes {
			return a.TravelMinutes < b.TravelMinutes
		}
		return a.StoreID < b.StoreID
	})

	nearestOrder := make([]StoreScore, len(filtered))
	copy(nearestOrder, filtered)
	sort.Slice(nearestOrder, func(i, j int) bool {
		a, b := nearestOrder[i], nearestOrder[j]
		if a.TravelMinutes != b.TravelMinutes {
			return a.TravelMinutes < b.TravelMinutes
		}
		if a.TotalPrice != b.TotalPrice {
			return a.TotalPrice < b.TotalPrice
		}
		if a.CoverageRatio != b.CoverageRatio {
			return a.CoverageRatio > b.CoverageRatio
		}
		return a.StoreID < b.StoreID
	})

	balancedOrder := r.balancedOrder(filtered)

	cheapest := cheapestOrder[0]
	nearest := nearestOrder[0]
	balanced := pickBalanced(balancedOrder, cheapest.StoreID, nearest.StoreID)

	return []Plan{
		r.buildPlan(PlanCheapest, cheapest),
		r.buildPlan(PlanNearest, nearest),
		r.buildPlan(PlanBalanced, balanced),
	}
}

func filterByCoverage(scores []StoreScore, threshold float64) []StoreScore {
	var out []StoreScore
	for _, s := range scores {
		if s.CoverageRatio >= threshold {
			out = append(out, s)
		}
	}
	return out
}

// balancedOrder sorts by the weighted min-max-normalized score. A single
// candidate normalizes to zero everywhere.
func (r *Ranker) balancedOrder(scores []StoreScore) []StoreScore {
	minPrice, maxPrice := scores[0].TotalPrice, scores[0].TotalPrice
	minTravel, maxTravel := scores[0].TravelMinutes, scores[0].TravelMinutes
	minCov, maxCov := scores[0].CoverageRatio, scores[0].CoverageRatio
	for _, s := range scores[1:] {
		if s.TotalPrice < minPrice {
			minPrice = s.TotalPrice
		}
		if s.TotalPrice > maxPrice {
			maxPrice = s.TotalPrice
		}
		if s.TravelMinutes < minTravel {
			minTravel = s.TravelMinutes
		}
		if s.TravelMinutes > maxTravel {
			maxTravel = s.TravelMinutes
		}
		if s.CoverageRatio < minCov {
			minCov = s.CoverageRatio
		}
		if s.CoverageRatio > maxCov {
			maxCov = s.CoverageRatio
		}
	}

	normalize := func(value, min, max float64) float64 {
		if max <= min {
			return 0
		}
		return (value - min) / (max - min)
	}

	ordered := make([]StoreScore, len(scores))
	copy(ordered, scores)
	for i := range ordered {
		s := &ordered[i]
		s.balancedScore = r.config.PriceWeight*normalize(float64(s.TotalPrice), float64(minPrice), float64(maxPrice)) +
			r.config.TravelWeight*normalize(float64(s.TravelMinutes), float64(minTravel), float64(maxTravel)) -
			r.config.CoverageWeight*normalize(s.CoverageRatio, minCov, maxCov)
	}

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].balancedScore != ordered[j].balancedScore {
			return ordered[i].balancedScore < ordered[j].balancedScore
		}
		return ordered[i].StoreID < ordered[j].StoreID
	})
	return ordered
}

// pickBalanced returns the best balanced candidate that differs from both
// the cheapest and nearest stores, falling back to the best overall when no
// distinct store exists.
func pickBalanced(ordered []StoreScore, cheapestID, nearestID string) StoreScore {
	for _, s := range ordered {
		if s.StoreID != cheapestID && s.StoreID != nearestID {
			return s
		}
	}
	return ordered[0]
}

func (r *Ranker) buildPlan(planType PlanType, score StoreScore) Plan {
	return Plan{
		PlanType:      planType,
		StoreID:       score.StoreID,
		StoreName:     score.StoreName,
		StoreAddress:  score.StoreAddress,
		TotalPrice:    score.TotalPrice,
		CoverageRatio: score.CoverageRatio,
		TravelMinutes: score.TravelMinutes,
		DistanceKm:    score.DistanceKm,
		Explanation:   explanation(planType, score),
		MatchedItems:  score.MatchedItems,
		MissingItems:  score.MissingItems,
		PriceSource:   score.PriceSource,
		ObservedAt:    score.ObservedAt,
	}
}

func explanation(planType PlanType, score StoreScore) string {
	total := FormatWon(score.TotalPrice)
	coverage := int(score.CoverageRatio*100 + 0.5)

	switch planType {
	case PlanCheapest:
		return fmt.Sprintf("총 %s으로 후보 중 가장 저렴합니다. 장바구니 커버리지 %d%%, 이동 %d분.", total, coverage, score.TravelMinutes)
	case PlanNearest:
		return fmt.Sprintf("이동 %d분으로 가장 가까운 매장입니다. 총 %s, 커버리지 %d%%.", score.TravelMinutes, total, coverage)
	default:
		return fmt.Sprintf("가격과 거리의 균형이 가장 좋습니다. 총 %s, 이동 %d분, 커버리지 %d%%.", total, score.TravelMinutes, coverage)
	}
}

// FormatWon renders a minor-unit amount as a grouped won string, e.g. 12,300원.
func FormatWon(amount int64) string {
	digits := strconv.FormatInt(amount, 10)
	negative := false
	if digits[0] == '-' {
		negative = true
		digits = digits[1:]
	}

	var grouped []byte
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, d)
	}
	if negative {
		return "-" + string(grouped) + "원"
	}
	return string(grouped) + "원"
}

package planner

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Item tags surfaced in plan responses.
const (
	TagCheapest = "최저가"
	TagValue    = "가성비"
)

// EvaluatorConfig holds price evaluation policy.
type EvaluatorConfig struct {
	// Absolute sanity bounds for online quotes, in minor currency units.
	MinQuotePrice int64
	MaxQuotePrice int64

	// Median-relative band applied when at least MedianMinQuotes quotes
	// survive the absolute bounds.
	MedianLowRatio  float64
	MedianHighRatio float64
	MedianMinQuotes int

	// ValueTagRatio marks an item 가성비 when its price is within this
	// multiple of the cross-store median.
	ValueTagRatio float64
}

// DefaultEvaluatorConfig returns the production evaluation policy.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		MinQuotePrice:   100,
		MaxQuotePrice:   300000,
		MedianLowRatio:  0.45,
		MedianHighRatio: 2.2,
		MedianMinQuotes: 3,
		ValueTagRatio:   1.1,
	}
}

// Evaluator prices the basket at each candidate store from the latest
// snapshots and suggests alternatives for items a store cannot supply.
type Evaluator struct {
	prices PriceReader
	config EvaluatorConfig
	logger zerolog.Logger
}

// NewEvaluator builds an Evaluator.
func NewEvaluator(prices PriceReader, config EvaluatorConfig) *Evaluator {
	return &Evaluator{
		prices: prices,
		config: config,
		logger: log.With().Str("component", "price_evaluator").Logger(),
	}
}

// EvaluateStores scores every candidate store against the basket. Stores
// with no snapshot for any basket product are excluded. unmatchedAlts maps a
// basket item name to its best online alternative, when one was found.
func (e *Evaluator) EvaluateStores(
	ctx context.Context,
	candidates []ResolvedCandidate,
	matched []MatchedProduct,
	unmatched []BasketItem,
	unmatchedAlts map[string]*Alternative,
) ([]StoreScore, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	storeIDs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		storeIDs = append(storeIDs, c.Store.StoreID)
	}
	productKeys := make([]string, 0, len(matched))
	for _, m := range matched {
		productKeys = append(productKeys, m.ProductKey)
	}

	snapshots, err := e.prices.LatestSnapshots(ctx, storeIDs, productKeys)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	byStore := make(map[string]map[string]PriceSnapshot)
	for _, s := range snapshots {
		if byStore[s.StoreID] == nil {
			byStore[s.StoreID] = make(map[string]PriceSnapshot)
		}
		byStore[s.StoreID][s.ProductKey] = s
	}

	totalItems := len(matched) + len(unmatched)
	var scores []StoreScore

	for _, c := range candidates {
		storeSnapshots := byStore[c.Store.StoreID]
		if len(storeSnapshots) == 0 {
			// No price data at all; the store cannot be evaluated.
			continue
		}

		score := StoreScore{
			StoreID:       c.Store.StoreID,
			StoreName:     c.Store.Name,
			StoreAddress:  c.Store.Address,
			TravelMinutes: c.Route.TravelMinutes,
			DistanceKm:    c.Route.DistanceKm,
			PriceSource:   "local_snapshot",
		}

		for _, m := range matched {
			snap, ok := storeSnapshots[m.ProductKey]
			if !ok {
				score.MissingItems = append(score.MissingItems, MissingItem{
					ItemName:    m.Original.ItemName,
					Reason:      "매장 가격 정보 없음",
					Alternative: e.findAlternative(ctx, c.Store, m),
				})
				continue
			}

			observed := snap.ObservedAt
			score.MatchedItems = append(score.MatchedItems, MatchedItem{
				ItemName:    m.Original.ItemName,
				Brand:       m.Brand,
				SizeDisplay: m.SizeDisplay,
				Quantity:    m.Quantity,
				UnitPrice:   snap.Price,
				Subtotal:    snap.Price * int64(m.Quantity),
				VerifiedAt:  &observed,
			})
			score.TotalPrice += snap.Price * int64(m.Quantity)
			if observed.After(score.ObservedAt) {
				score.ObservedAt = observed
			}
		}

		for _, item := range unmatched {
			score.MissingItems = append(score.MissingItems, MissingItem{
				ItemName:    item.ItemName,
				Reason:      "상품 매칭 실패",
				Alternative: unmatchedAlts[item.ItemName],
			})
		}

		if len(score.MatchedItems) == 0 {
			continue
		}
		if totalItems > 0 {
			score.CoverageRatio = float64(len(score.MatchedItems)) / float64(totalItems)
		}
		scores = append(scores, score)
	}

	e.applyItemTags(scores)

	sort.Slice(scores, func(i, j int) bool {
		return scores[i].StoreID < scores[j].StoreID
	})
	return scores, nil
}

// findAlternative looks for a same-name variant first, then the cheapest
// product in the same category.
func (e *Evaluator) findAlternative(ctx context.Context, store StoreCandidate, m MatchedProduct) *Alternative {
	alt, err := e.prices.CheapestVariant(ctx, store.StoreID, m.NormalizedName, m.ProductKey)
	if err != nil {
		e.logger.Debug().Err(err).Str("store_id", store.StoreID).Msg("variant lookup failed")
		return nil
	}
	if alt != nil {
		return alt
	}

	alt, err = e.prices.CategoryAlternative(ctx, store.StoreID, store.Category)
	if err != nil {
		e.logger.Debug().Err(err).Str("store_id", store.StoreID).Msg("category lookup failed")
		return nil
	}
	return alt
}

// applyItemTags marks each item 최저가 at the store(s) selling it cheapest
// across the evaluated set, and 가성비 where the price stays within the
// configured multiple of the cross-store median.
func (e *Evaluator) applyItemTags(scores []StoreScore) {
	pricesByItem := make(map[string][]int64)
	for _, s := range scores {
		for _, item := range s.MatchedItems {
			pricesByItem[item.ItemName] = append(pricesByItem[item.ItemName], item.UnitPrice)
		}
	}

	minByItem := make(map[string]int64, len(pricesByItem))
	medianByItem := make(map[string]int64, len(pricesByItem))
	for name, prices := range pricesByItem {
		sorted := make([]int64, len(prices))
		copy(sorted, prices)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		minByItem[name] = sorted[0]
		medianByItem[name] = sorted[len(sorted)/2]
	}

	for si := range scores {
		for ii := range scores[si].MatchedItems {
			item := &scores[si].MatchedItems[ii]
			switch {
			case item.UnitPrice == minByItem[item.ItemName]:
				item.Tag = TagCheapest
			case float64(item.UnitPrice) <= float64(medianByItem[item.ItemName])*e.config.ValueTagRatio:
				item.Tag = TagValue
			}
		}
	}
}

// FilterOutlierQuotes drops implausible online quotes: first an absolute
// price band, then a median-relative band once enough quotes remain. If the
// relative band would reject everything, the quote closest to the median
// survives.
func FilterOutlierQuotes(quotes []PriceQuote, config EvaluatorConfig) []PriceQuote {
	var inBounds []PriceQuote
	for _, q := range quotes {
		if q.UnitPrice >= config.MinQuotePrice && q.UnitPrice <= config.MaxQuotePrice {
			inBounds = append(inBounds, q)
		}
	}
	if len(inBounds) < config.MedianMinQuotes {
		return inBounds
	}

	sorted := make([]PriceQuote, len(inBounds))
	copy(sorted, inBounds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UnitPrice < sorted[j].UnitPrice })
	median := float64(sorted[len(sorted)/2].UnitPrice)

	var kept []PriceQuote
	for _, q := range inBounds {
		price := float64(q.UnitPrice)
		if price >= median*config.MedianLowRatio && price <= median*config.MedianHighRatio {
			kept = append(kept, q)
		}
	}
	if len(kept) > 0 {
		return kept
	}

	// Degenerate distribution; keep the single quote closest to the median.
	best := inBounds[0]
	bestDelta := math.Abs(float64(best.UnitPrice) - median)
	for _, q := range inBounds[1:] {
		if delta := math.Abs(float64(q.UnitPrice) - median); delta < bestDelta {
			best, bestDelta = q, delta
		}
	}
	return []PriceQuote{best}
}

// BestQuoteAlternative converts the cheapest surviving quote into a
// missing-item alternative.
func BestQuoteAlternative(quotes []PriceQuote, config EvaluatorConfig) *Alternative {
	filtered := FilterOutlierQuotes(quotes, config)
	if len(filtered) == 0 {
		return nil
	}

	best := filtered[0]
	for _, q := range filtered[1:] {
		if q.UnitPrice < best.UnitPrice {
			best = q
		}
	}
	return &Alternative{
		ItemName:  fmt.Sprintf("%s (%s)", best.Title, best.MallName),
		Brand:     best.Brand,
		UnitPrice: best.UnitPrice,
	}
}

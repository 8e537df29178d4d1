package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNoMatch is returned when no catalog entry scores above the confidence floor.
var ErrNoMatch = errors.New("no catalog match above confidence floor")

// Item is the free-text basket entry to resolve against the catalog.
type Item struct {
	Name     string
	Brand    string
	Size     string
	Quantity int
}

// Candidate is a canonical catalog entry considered during matching.
type Candidate struct {
	ProductKey     string
	NormalizedName string
	Brand          string
	SizeDisplay    string
	Category       string
	Aliases        []string
}

// CandidateSource supplies a bounded candidate set for a query.
// Implementations search normalized names and aliases by substring using the
// full query and its leading tokens.
type CandidateSource interface {
	SearchCandidates(ctx context.Context, query string, tokens []string, limit int) ([]Candidate, error)

	// FallbackCandidates returns a bounded slice of the catalog when the
	// substring search produced nothing.
	FallbackCandidates(ctx context.Context, limit int) ([]Candidate, error)
}

// Assumption records a brand or size the matcher auto-selected because the
// user did not specify one and the top candidates disagreed.
type Assumption struct {
	ItemName     string `json:"itemName"`
	Field        string `json:"field"`
	AssumedValue string `json:"assumedValue"`
	Reason       string `json:"reason"`
}

// Result is a successful catalog match.
type Result struct {
	ProductKey     string
	NormalizedName string
	Brand          string
	SizeDisplay    string
	Score          float64
	Assumptions    []Assumption
}

// Config holds the matcher scoring policy. The weights are empirical policy
// values, kept configurable rather than hardcoded.
type Config struct {
	MinScore          float64 // reject matches below this score
	SimilarityWeight  float64 // weight of the best name/alias similarity
	TokenWeight       float64 // weight of the query token overlap
	ContainsBonus     float64 // bonus when the query is contained in name/alias
	ContainedBonus    float64 // bonus when the name is contained in the query
	BrandMatchBonus   float64
	BrandMismatch     float64
	SizeMatchBonus    float64
	SizeMismatch      float64
	PreferredBonus    float64
	DislikedPenalty   float64
	SizeTolerance     float64 // relative size difference treated as equal
	UserSizeTolerance float64 // tolerance when the user specified the size
	CandidateLimit    int     // per-pattern search cap
	FallbackLimit     int     // full-catalog fallback cap
}

// DefaultConfig returns the default matching policy.
func DefaultConfig() Config {
	return Config{
		MinScore:          0.35,
		SimilarityWeight:  0.55,
		TokenWeight:       0.25,
		ContainsBonus:     0.18,
		ContainedBonus:    0.1,
		BrandMatchBonus:   0.25,
		BrandMismatch:     -0.15,
		SizeMatchBonus:    0.2,
		SizeMismatch:      -0.1,
		PreferredBonus:    0.12,
		DislikedPenalty:   -0.2,
		SizeTolerance:     0.15,
		UserSizeTolerance: 0.2,
		CandidateLimit:    80,
		FallbackLimit:     200,
	}
}

// Matcher resolves free-text basket entries to canonical catalog products.
type Matcher struct {
	source CandidateSource
	config Config
	logger zerolog.Logger
}

// NewMatcher creates a matcher backed by the given candidate source.
func NewMatcher(source CandidateSource, config Config) *Matcher {
	return &Matcher{
		source: source,
		config: config,
		logger: log.With().Str("component", "product_matcher").Logger(),
	}
}

type scoredCandidate struct {
	Candidate
	score float64
}

// Match resolves an item to its best catalog candidate. preferredBrands and
// dislikedBrands are soft hints from the caller's preference profile.
// Returns ErrNoMatch when nothing scores above the confidence floor, or when
// the user asked for a size that no candidate approximates.
func (m *Matcher) Match(ctx context.Context, item Item, preferredBrands, dislikedBrands []string) (*Result, error) {
	scored, err := m.scoredCandidates(ctx, item, preferredBrands, dislikedBrands)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 || scored[0].score < m.config.MinScore {
		return nil, ErrNoMatch
	}

	var assumptions []Assumption

	if item.Brand != "" {
		filtered := make([]scoredCandidate, 0, len(scored))
		for _, c := range scored {
			if brandMatches(c.Brand, item.Brand) {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) > 0 {
			scored = filtered
		}
	} else if value, disagree := topFieldDisagreement(scored, func(c Candidate) string { return c.Brand }); disagree {
		assumptions = append(assumptions, Assumption{
			ItemName:     item.Name,
			Field:        "brand",
			AssumedValue: orDefault(value, "무브랜드"),
			Reason:       "브랜드 미지정, 대표 브랜드 자동 선택",
		})
	}

	if item.Size != "" {
		filtered := make([]scoredCandidate, 0, len(scored))
		for _, c := range scored {
			if m.sizeMatches(c.SizeDisplay, item.Size, m.config.UserSizeTolerance) {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) == 0 {
			// The user asked for a specific size and nothing comes close.
			// Auto-selecting a different size here would be a silent lie.
			return nil, ErrNoMatch
		}
		sort.SliceStable(filtered, func(i, j int) bool {
			di := SizeDistanceRatio(filtered[i].SizeDisplay, item.Size)
			dj := SizeDistanceRatio(filtered[j].SizeDisplay, item.Size)
			if di != dj {
				return di < dj
			}
			if filtered[i].score != filtered[j].score {
				return filtered[i].score > filtered[j].score
			}
			return filtered[i].ProductKey < filtered[j].ProductKey
		})
		scored = filtered
	} else if value, disagree := topFieldDisagreement(scored, func(c Candidate) string { return c.SizeDisplay }); disagree {
		assumptions = append(assumptions, Assumption{
			ItemName:     item.Name,
			Field:        "size",
			AssumedValue: orDefault(value, "표준"),
			Reason:       "용량 미지정, 표준 규격 자동 선택",
		})
	}

	best := scored[0]
	return &Result{
		ProductKey:     best.ProductKey,
		NormalizedName: best.NormalizedName,
		Brand:          best.Brand,
		SizeDisplay:    best.SizeDisplay,
		Score:          best.score,
		Assumptions:    assumptions,
	}, nil
}

// Suggest returns up to limit candidates above the confidence floor, best first.
func (m *Matcher) Suggest(ctx context.Context, item Item, limit int) ([]Result, error) {
	scored, err := m.scoredCandidates(ctx, item, nil, nil)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 1
	}
	results := make([]Result, 0, limit)
	for _, c := range scored {
		if len(results) >= limit {
			break
		}
		if c.score < m.config.MinScore {
			continue
		}
		results = append(results, Result{
			ProductKey:     c.ProductKey,
			NormalizedName: c.NormalizedName,
			Brand:          c.Brand,
			SizeDisplay:    c.SizeDisplay,
			Score:          c.score,
		})
	}
	return results, nil
}

func (m *Matcher) scoredCandidates(ctx context.Context, item Item, preferred, disliked []string) ([]scoredCandidate, error) {
	tokens := make([]string, 0, 3)
	for _, t := range Tokenize(item.Name) {
		if len([]rune(t)) >= 2 {
			tokens = append(tokens, t)
		}
		if len(tokens) == 3 {
			break
		}
	}

	candidates, err := m.source.SearchCandidates(ctx, item.Name, tokens, m.config.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("candidate search: %w", err)
	}
	if len(candidates) == 0 {
		candidates, err = m.source.FallbackCandidates(ctx, m.config.FallbackLimit)
		if err != nil {
			return nil, fmt.Errorf("candidate fallback: %w", err)
		}
	}

	preferredSet := normalizeSet(preferred)
	dislikedSet := normalizeSet(disliked)

	scored := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, scoredCandidate{
			Candidate: c,
			score:     m.score(c, item, preferredSet, dislikedSet),
		})
	}
	// Identical inputs must always produce identical winners, so ties fall
	// back to the product key.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].ProductKey < scored[j].ProductKey
	})
	return scored, nil
}

func (m *Matcher) score(c Candidate, item Item, preferred, disliked map[string]struct{}) float64 {
	query := Normalize(item.Name)
	name := Normalize(c.NormalizedName)
	aliases := make([]string, 0, len(c.Aliases))
	for _, a := range c.Aliases {
		aliases = append(aliases, Normalize(a))
	}

	nameSim := SimilarityRatio(query, name)
	aliasSim := 0.0
	for _, a := range aliases {
		if s := SimilarityRatio(query, a); s > aliasSim {
			aliasSim = s
		}
	}
	maxSim := nameSim
	if aliasSim > maxSim {
		maxSim = aliasSim
	}

	queryTokens := Tokenize(item.Name)
	textTokens := make(map[string]struct{})
	for _, t := range Tokenize(c.NormalizedName) {
		textTokens[t] = struct{}{}
	}
	for _, a := range c.Aliases {
		for _, t := range Tokenize(a) {
			textTokens[t] = struct{}{}
		}
	}
	tokenOverlap := 0.0
	if len(queryTokens) > 0 {
		hit := 0
		for _, t := range queryTokens {
			if _, ok := textTokens[t]; ok {
				hit++
			}
		}
		tokenOverlap = float64(hit) / float64(len(queryTokens))
	}

	containsBonus := 0.0
	if query != "" {
		if strings.Contains(name, query) || containsAny(aliases, query) {
			containsBonus += m.config.ContainsBonus
		}
		if name != "" && strings.Contains(query, name) {
			containsBonus += m.config.ContainedBonus
		}
	}

	score := m.config.SimilarityWeight*maxSim + m.config.TokenWeight*tokenOverlap + containsBonus

	if item.Brand != "" {
		if brandMatches(c.Brand, item.Brand) {
			score += m.config.BrandMatchBonus
		} else {
			score += m.config.BrandMismatch
		}
	}
	if item.Size != "" {
		if m.sizeMatches(c.SizeDisplay, item.Size, m.config.SizeTolerance) {
			score += m.config.SizeMatchBonus
		} else {
			score += m.config.SizeMismatch
		}
	}

	candidateBrand := Normalize(c.Brand)
	if candidateBrand != "" {
		if _, ok := preferred[candidateBrand]; ok {
			score += m.config.PreferredBonus
		}
		if _, ok := disliked[candidateBrand]; ok {
			score += m.config.DislikedPenalty
		}
	}

	return score
}

// sizeMatches reports whether two size strings describe the same magnitude
// within tolerance. Sizes from different unit families never match.
func (m *Matcher) sizeMatches(candidateSize, requestedSize string, tolerance float64) bool {
	cNorm := Normalize(candidateSize)
	rNorm := Normalize(requestedSize)
	if cNorm == "" || rNorm == "" {
		return false
	}

	cMetric, cok := ParseSizeMetric(candidateSize)
	rMetric, rok := ParseSizeMetric(requestedSize)
	if cok && rok {
		if cMetric.Unit != rMetric.Unit || rMetric.Value <= 0 {
			return false
		}
		diff := cMetric.Value - rMetric.Value
		if diff < 0 {
			diff = -diff
		}
		return diff/rMetric.Value <= tolerance
	}

	return cNorm == rNorm
}

func brandMatches(candidateBrand, requestedBrand string) bool {
	c := Normalize(candidateBrand)
	r := Normalize(requestedBrand)
	if c == "" || r == "" {
		return false
	}
	return c == r || strings.Contains(c, r) || strings.Contains(r, c)
}

// topFieldDisagreement reports whether the top five candidates disagree on a
// field, returning the winning candidate's value when they do.
func topFieldDisagreement(scored []scoredCandidate, field func(Candidate) string) (string, bool) {
	distinct := make(map[string]struct{})
	for i, c := range scored {
		if i == 5 {
			break
		}
		if v := field(c.Candidate); v != "" {
			distinct[v] = struct{}{}
		}
	}
	if len(distinct) > 1 {
		return field(scored[0].Candidate), true
	}
	return "", false
}

func normalizeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if n := Normalize(v); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func containsAny(haystacks []string, needle string) bool {
	for _, h := range haystacks {
		if strings.Contains(h, needle) {
			return true
		}
	}
	return false
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

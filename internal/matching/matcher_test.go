package matching

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCandidateSource is an in-memory CandidateSource for testing.
type mockCandidateSource struct {
	candidates []Candidate
	searchErr  error
}

func (m *mockCandidateSource) SearchCandidates(ctx context.Context, query string, tokens []string, limit int) ([]Candidate, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	normQuery := Normalize(query)
	var out []Candidate
	for _, c := range m.candidates {
		if strings.Contains(Normalize(c.NormalizedName), normQuery) || containsToken(c, tokens) {
			out = append(out, c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func containsToken(c Candidate, tokens []string) bool {
	name := Normalize(c.NormalizedName)
	for _, t := range tokens {
		if strings.Contains(name, t) {
			return true
		}
	}
	return false
}

func (m *mockCandidateSource) FallbackCandidates(ctx context.Context, limit int) ([]Candidate, error) {
	if limit > len(m.candidates) {
		limit = len(m.candidates)
	}
	return m.candidates[:limit], nil
}

func milkCatalog() []Candidate {
	return []Candidate{
		{ProductKey: "milk:seoul:1l", NormalizedName: "서울우유 1L", Brand: "서울우유", SizeDisplay: "1L"},
		{ProductKey: "milk:seoul:500ml", NormalizedName: "서울우유 500ml", Brand: "서울우유", SizeDisplay: "500ml"},
		{ProductKey: "milk:maeil:900ml", NormalizedName: "매일우유 900ml", Brand: "매일유업", SizeDisplay: "900ml"},
		{ProductKey: "egg:pulmuone:30", NormalizedName: "풀무원 달걀 특란 30개입", Brand: "풀무원", SizeDisplay: "30개입"},
	}
}

func TestMatchExactName(t *testing.T) {
	matcher := NewMatcher(&mockCandidateSource{candidates: milkCatalog()}, DefaultConfig())

	result, err := matcher.Match(context.Background(), Item{Name: "서울우유 500ml", Brand: "서울우유", Size: "500ml", Quantity: 1}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "milk:seoul:500ml", result.ProductKey)
	assert.GreaterOrEqual(t, result.Score, DefaultConfig().MinScore)
	assert.Empty(t, result.Assumptions, "fully specified query should not record assumptions")
}

func TestMatchBrandFilter(t *testing.T) {
	matcher := NewMatcher(&mockCandidateSource{candidates: milkCatalog()}, DefaultConfig())

	result, err := matcher.Match(context.Background(), Item{Name: "우유", Brand: "매일유업", Quantity: 1}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "milk:maeil:900ml", result.ProductKey)
	assert.Equal(t, "매일유업", result.Brand)
}

func TestMatchSizeFilterPrefersClosest(t *testing.T) {
	matcher := NewMatcher(&mockCandidateSource{candidates: milkCatalog()}, DefaultConfig())

	result, err := matcher.Match(context.Background(), Item{Name: "서울우유", Size: "500ml", Quantity: 1}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "milk:seoul:500ml", result.ProductKey)
}

func TestMatchRequestedSizeUnavailable(t *testing.T) {
	matcher := NewMatcher(&mockCandidateSource{candidates: milkCatalog()}, DefaultConfig())

	// 2L exists in no candidate; auto-substituting a size the user asked
	// for explicitly is not allowed.
	_, err := matcher.Match(context.Background(), Item{Name: "서울우유", Size: "2L", Quantity: 1}, nil, nil)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestMatchUnitFamiliesNeverCross(t *testing.T) {
	source := &mockCandidateSource{candidates: []Candidate{
		{ProductKey: "salt:500g", NormalizedName: "꽃소금 500g", Brand: "", SizeDisplay: "500g"},
	}}
	matcher := NewMatcher(source, DefaultConfig())

	// 500ml and 500g share a magnitude but not a unit family.
	_, err := matcher.Match(context.Background(), Item{Name: "꽃소금", Size: "500ml", Quantity: 1}, nil, nil)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestMatchNoCandidates(t *testing.T) {
	matcher := NewMatcher(&mockCandidateSource{}, DefaultConfig())

	_, err := matcher.Match(context.Background(), Item{Name: "존재하지않는상품", Quantity: 1}, nil, nil)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestMatchRecordsSizeAssumption(t *testing.T) {
	matcher := NewMatcher(&mockCandidateSource{candidates: milkCatalog()}, DefaultConfig())

	result, err := matcher.Match(context.Background(), Item{Name: "서울우유", Quantity: 1}, nil, nil)
	require.NoError(t, err)

	var fields []string
	for _, a := range result.Assumptions {
		fields = append(fields, a.Field)
		assert.Equal(t, "서울우유", a.ItemName)
		assert.NotEmpty(t, a.AssumedValue)
	}
	// Two sizes of the same brand survive, so the matcher must disclose the
	// size it picked.
	assert.Contains(t, fields, "size")
}

func TestMatchPreferredBrandWins(t *testing.T) {
	source := &mockCandidateSource{candidates: []Candidate{
		{ProductKey: "milk:a", NormalizedName: "우유 1L", Brand: "서울우유", SizeDisplay: "1L"},
		{ProductKey: "milk:b", NormalizedName: "우유 1L", Brand: "매일유업", SizeDisplay: "1L"},
	}}
	matcher := NewMatcher(source, DefaultConfig())

	result, err := matcher.Match(context.Background(), Item{Name: "우유 1L", Quantity: 1}, []string{"매일유업"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "milk:b", result.ProductKey)
}

func TestMatchDislikedBrandLoses(t *testing.T) {
	source := &mockCandidateSource{candidates: []Candidate{
		{ProductKey: "milk:a", NormalizedName: "우유 1L", Brand: "서울우유", SizeDisplay: "1L"},
		{ProductKey: "milk:b", NormalizedName: "우유 1L", Brand: "매일유업", SizeDisplay: "1L"},
	}}
	matcher := NewMatcher(source, DefaultConfig())

	result, err := matcher.Match(context.Background(), Item{Name: "우유 1L", Quantity: 1}, nil, []string{"서울우유"})
	require.NoError(t, err)
	assert.Equal(t, "milk:b", result.ProductKey)
}

func TestMatchDeterministicTieBreak(t *testing.T) {
	source := &mockCandidateSource{candidates: []Candidate{
		{ProductKey: "milk:b", NormalizedName: "우유", Brand: "동일", SizeDisplay: "1L"},
		{ProductKey: "milk:a", NormalizedName: "우유", Brand: "동일", SizeDisplay: "1L"},
	}}
	matcher := NewMatcher(source, DefaultConfig())

	for i := 0; i < 5; i++ {
		result, err := matcher.Match(context.Background(), Item{Name: "우유", Quantity: 1}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "milk:a", result.ProductKey, "equal scores must break ties by product key")
	}
}

func TestMatchAliasScoring(t *testing.T) {
	source := &mockCandidateSource{candidates: []Candidate{
		{ProductKey: "egg:30", NormalizedName: "달걀 특란 30개입", Brand: "", SizeDisplay: "30개입", Aliases: []string{"계란 30구"}},
		{ProductKey: "noodle:5", NormalizedName: "신라면 5개입", Brand: "농심", SizeDisplay: "5개입"},
	}}
	matcher := NewMatcher(source, DefaultConfig())

	result, err := matcher.Match(context.Background(), Item{Name: "계란 30구", Quantity: 1}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "egg:30", result.ProductKey)
}

func TestSuggestOrdersByScore(t *testing.T) {
	matcher := NewMatcher(&mockCandidateSource{candidates: milkCatalog()}, DefaultConfig())

	results, err := matcher.Suggest(context.Background(), Item{Name: "서울우유 1L", Quantity: 1}, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "milk:seoul:1l", results[0].ProductKey)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

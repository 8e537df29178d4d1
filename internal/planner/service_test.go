package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddokjang/plan-service/internal/matching"
)

// mockMatcher resolves items from a canned name -> result table.
type mockMatcher struct {
	results map[string]*matching.Result
}

func (m *mockMatcher) Match(ctx context.Context, item matching.Item, preferredBrands, dislikedBrands []string) (*matching.Result, error) {
	if r, ok := m.results[item.Name]; ok {
		return r, nil
	}
	return nil, matching.ErrNoMatch
}

// mockPrefs returns a fixed brand profile.
type mockPrefs struct {
	preferred, disliked []string
	err                 error
}

func (m *mockPrefs) BrandPreferences(ctx context.Context, userID string) ([]string, []string, error) {
	return m.preferred, m.disliked, m.err
}

// mockWeather returns a fixed advisory note.
type mockWeather struct {
	note       string
	err        error
	configured bool
}

func (m *mockWeather) AdvisoryNote(ctx context.Context, lat, lng float64) (string, error) {
	return m.note, m.err
}

func (m *mockWeather) Configured() bool { return m.configured }

// mockShopping returns canned online quotes per item name.
type mockShopping struct {
	quotes     map[string][]PriceQuote
	err        error
	configured bool
}

func (m *mockShopping) SearchPrices(ctx context.Context, item BasketItem) ([]PriceQuote, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.quotes[item.ItemName], nil
}

func (m *mockShopping) Configured() bool { return m.configured }

// mockAudit records execution and selection logs in memory.
type mockAudit struct {
	executions []ExecutionLog
	selections []SelectionLog
}

func (m *mockAudit) LogExecution(ctx context.Context, rec ExecutionLog) error {
	m.executions = append(m.executions, rec)
	return nil
}

func (m *mockAudit) LogSelection(ctx context.Context, rec SelectionLog) error {
	m.selections = append(m.selections, rec)
	return nil
}

type serviceFixture struct {
	service *Service
	stores  *mockStoreDirectory
	audit   *mockAudit
}

// newServiceFixture wires a Service over in-memory collaborators: one store
// near the user with snapshots for milk and eggs.
func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	observed := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	stores := &mockStoreDirectory{local: []StoreCandidate{
		storeAt("mart-1", 37.501, 127.001),
		storeAt("mart-2", 37.502, 127.002),
	}}
	reader := &mockPriceReader{snapshots: []PriceSnapshot{
		{StoreID: "mart-1", ProductKey: "milk", Price: 2500, ObservedAt: observed},
		{StoreID: "mart-1", ProductKey: "egg", Price: 7000, ObservedAt: observed},
		{StoreID: "mart-2", ProductKey: "milk", Price: 2300, ObservedAt: observed},
		{StoreID: "mart-2", ProductKey: "egg", Price: 7500, ObservedAt: observed},
	}}
	matcher := &mockMatcher{results: map[string]*matching.Result{
		"우유": {ProductKey: "milk", NormalizedName: "우유", SizeDisplay: "1L", Score: 0.9},
		"계란": {ProductKey: "egg", NormalizedName: "계란", SizeDisplay: "30개입", Score: 0.85},
	}}
	audit := &mockAudit{}

	evalCfg := DefaultEvaluatorConfig()
	service := NewService(
		matcher,
		NewResolver(stores, nil, nil, DefaultResolverConfig()),
		NewEvaluator(reader, evalCfg),
		NewRanker(DefaultRankingConfig()),
		&mockPrefs{},
		nil,
		nil,
		stores,
		audit,
		DefaultServiceConfig(),
		evalCfg,
	)
	return &serviceFixture{service: service, stores: stores, audit: audit}
}

func planRequest() *PlanRequest {
	return &PlanRequest{
		Items: []BasketItem{
			{ItemName: "우유", Quantity: 1},
			{ItemName: "계란", Quantity: 1},
		},
		UserContext: walkUser(60),
	}
}

func TestGeneratePlansEndToEnd(t *testing.T) {
	f := newServiceFixture(t)

	resp, perr := f.service.GeneratePlans(context.Background(), planRequest())
	require.Nil(t, perr)
	require.Len(t, resp.Plans, 3)

	cheapest := resp.Plans[0]
	assert.Equal(t, PlanCheapest, cheapest.PlanType)
	assert.Equal(t, "mart-1", cheapest.StoreID) // 2500 + 7000 < 2300 + 7500
	assert.Equal(t, int64(9500), cheapest.TotalPrice)
	assert.Equal(t, 1.0, cheapest.CoverageRatio)

	assert.NotEmpty(t, resp.Meta.RequestID)
	assert.Empty(t, resp.Meta.DegradedProviders)

	require.Len(t, f.audit.executions, 1)
	assert.Equal(t, 3, f.audit.executions[0].PlanCount)
	assert.Empty(t, f.audit.executions[0].FailureReason)
}

func TestGeneratePlansInvalidRequest(t *testing.T) {
	f := newServiceFixture(t)

	req := planRequest()
	req.Items = nil
	_, perr := f.service.GeneratePlans(context.Background(), req)
	require.NotNil(t, perr)
	assert.Equal(t, ErrKindInvalidRequest, perr.Kind)

	req = planRequest()
	req.UserContext.TravelMode = "teleport"
	_, perr = f.service.GeneratePlans(context.Background(), req)
	require.NotNil(t, perr)
	assert.Equal(t, ErrKindInvalidRequest, perr.Kind)
}

func TestGeneratePlansTooManyItems(t *testing.T) {
	f := newServiceFixture(t)

	req := planRequest()
	for i := 0; i < 60; i++ {
		req.Items = append(req.Items, BasketItem{ItemName: "우유", Quantity: 1})
	}
	_, perr := f.service.GeneratePlans(context.Background(), req)
	require.NotNil(t, perr)
	assert.Equal(t, ErrKindInvalidRequest, perr.Kind)
}

func TestGeneratePlansNoCandidates(t *testing.T) {
	f := newServiceFixture(t)
	f.stores.local = nil
	f.stores.recent = nil

	_, perr := f.service.GeneratePlans(context.Background(), planRequest())
	require.NotNil(t, perr)
	assert.Equal(t, ErrKindNoCandidates, perr.Kind)
}

func TestGeneratePlansUnmatchedItemStillPlans(t *testing.T) {
	f := newServiceFixture(t)

	req := planRequest()
	req.Items = append(req.Items, BasketItem{ItemName: "미확인상품", Quantity: 1})

	resp, perr := f.service.GeneratePlans(context.Background(), req)
	require.Nil(t, perr)
	require.Len(t, resp.Plans, 3)

	cheapest := resp.Plans[0]
	assert.InDelta(t, 2.0/3.0, cheapest.CoverageRatio, 1e-9)

	var missingNames []string
	for _, m := range cheapest.MissingItems {
		missingNames = append(missingNames, m.ItemName)
		assert.Equal(t, "상품 매칭 실패", m.Reason)
	}
	assert.Contains(t, missingNames, "미확인상품")
}

func TestGeneratePlansOnlineAlternativeForUnmatched(t *testing.T) {
	f := newServiceFixture(t)

	shopping := &mockShopping{
		configured: true,
		quotes: map[string][]PriceQuote{
			"미확인상품": {
				{ItemName: "미확인상품", Title: "대체 상품", MallName: "SSG", UnitPrice: 4500},
			},
		},
	}
	f.service.shopping = shopping

	req := planRequest()
	req.Items = append(req.Items, BasketItem{ItemName: "미확인상품", Quantity: 1})

	resp, perr := f.service.GeneratePlans(context.Background(), req)
	require.Nil(t, perr)

	var alt *Alternative
	for _, m := range resp.Plans[0].MissingItems {
		if m.ItemName == "미확인상품" {
			alt = m.Alternative
		}
	}
	require.NotNil(t, alt)
	assert.Equal(t, int64(4500), alt.UnitPrice)
	assert.Equal(t, "대체 상품 (SSG)", alt.ItemName)
}

func TestGeneratePlansShoppingFailureDegrades(t *testing.T) {
	f := newServiceFixture(t)
	f.service.shopping = &mockShopping{configured: true, err: errors.New("api down")}

	req := planRequest()
	req.Items = append(req.Items, BasketItem{ItemName: "미확인상품", Quantity: 1})

	resp, perr := f.service.GeneratePlans(context.Background(), req)
	require.Nil(t, perr)
	assert.Contains(t, resp.Meta.DegradedProviders, "shopping")
}

func TestGeneratePlansWeatherNoteAttached(t *testing.T) {
	f := newServiceFixture(t)
	f.service.weather = &mockWeather{note: "비 예보가 있어요. 우산을 챙기세요.", configured: true}

	resp, perr := f.service.GeneratePlans(context.Background(), planRequest())
	require.Nil(t, perr)
	for _, p := range resp.Plans {
		assert.Equal(t, "비 예보가 있어요. 우산을 챙기세요.", p.WeatherNote)
	}
}

func TestGeneratePlansWeatherFailureDegrades(t *testing.T) {
	f := newServiceFixture(t)
	f.service.weather = &mockWeather{err: errors.New("api down"), configured: true}

	resp, perr := f.service.GeneratePlans(context.Background(), planRequest())
	require.Nil(t, perr)
	assert.Contains(t, resp.Meta.DegradedProviders, "weather")
	for _, p := range resp.Plans {
		assert.Empty(t, p.WeatherNote)
	}
}

func TestNoCandidatesErrorClassification(t *testing.T) {
	f := newServiceFixture(t)

	budget := NewDegradedSet()
	budget.Add("budget")
	assert.Equal(t, ErrKindBudgetExceeded, f.service.noCandidatesError(budget).Kind)

	circuit := NewDegradedSet()
	circuit.Add("circuit")
	assert.Equal(t, ErrKindCircuitOpen, f.service.noCandidatesError(circuit).Kind)

	plain := NewDegradedSet()
	plain.Add("place")
	assert.Equal(t, ErrKindNoCandidates, f.service.noCandidatesError(plain).Kind)
}

func TestSelectPlanPhysicalStore(t *testing.T) {
	f := newServiceFixture(t)
	f.stores.local[0].Address = "서울 강남구 테헤란로 1"

	resp, perr := f.service.SelectPlan(context.Background(), &SelectRequest{
		RequestID:        "req-1",
		SelectedPlanType: PlanCheapest,
		StoreID:          "mart-1",
	})
	require.Nil(t, perr)
	assert.Equal(t, "selected", resp.Status)
	assert.Contains(t, resp.NavigationURL, "https://map.naver.com/v5/search/")

	require.Len(t, f.audit.selections, 1)
	assert.Equal(t, "cheapest", f.audit.selections[0].PlanType)
}

func TestSelectPlanOnlineStoreAllowList(t *testing.T) {
	f := newServiceFixture(t)
	f.stores.local[0].Address = "https://www.ssg.com/cart"

	resp, perr := f.service.SelectPlan(context.Background(), &SelectRequest{
		RequestID:        "req-1",
		SelectedPlanType: PlanBalanced,
		StoreID:          "mart-1",
	})
	require.Nil(t, perr)
	assert.Equal(t, "https://www.ssg.com/cart", resp.NavigationURL)
}

func TestSelectPlanRejectsUnlistedDomain(t *testing.T) {
	f := newServiceFixture(t)
	f.stores.local[0].Address = "https://evil.example.com/cart"

	_, perr := f.service.SelectPlan(context.Background(), &SelectRequest{
		RequestID:        "req-1",
		SelectedPlanType: PlanBalanced,
		StoreID:          "mart-1",
	})
	require.NotNil(t, perr)
	assert.Equal(t, ErrKindInvalidRequest, perr.Kind)
}

func TestSelectPlanValidation(t *testing.T) {
	f := newServiceFixture(t)

	_, perr := f.service.SelectPlan(context.Background(), &SelectRequest{
		SelectedPlanType: PlanCheapest,
		StoreID:          "mart-1",
	})
	require.NotNil(t, perr)
	assert.Equal(t, ErrKindInvalidRequest, perr.Kind)

	_, perr = f.service.SelectPlan(context.Background(), &SelectRequest{
		RequestID:        "req-1",
		SelectedPlanType: "fastest",
		StoreID:          "mart-1",
	})
	require.NotNil(t, perr)
	assert.Equal(t, ErrKindInvalidRequest, perr.Kind)

	_, perr = f.service.SelectPlan(context.Background(), &SelectRequest{
		RequestID:        "req-1",
		SelectedPlanType: PlanCheapest,
		StoreID:          "no-such-store",
	})
	require.NotNil(t, perr)
	assert.Equal(t, ErrKindInvalidRequest, perr.Kind)
}

func TestSelectPlanDomainSuffixMatching(t *testing.T) {
	f := newServiceFixture(t)

	assert.True(t, f.service.allowedURL("https://ssg.com/item"))
	assert.True(t, f.service.allowedURL("https://emart.ssg.com/item"))
	assert.True(t, f.service.allowedURL("https://www.kurly.com/goods/1"))
	assert.False(t, f.service.allowedURL("https://notssg.com/item"))
	assert.False(t, f.service.allowedURL("https://ssg.com.evil.kr/item"))
	assert.False(t, f.service.allowedURL("not a url"))
}

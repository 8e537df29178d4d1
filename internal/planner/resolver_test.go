package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddokjang/plan-service/internal/resilience"
)

// mockStoreDirectory is an in-memory StoreDirectory for testing.
type mockStoreDirectory struct {
	local      []StoreCandidate
	recent     []StoreCandidate
	categories []string
	upserted   []StoreCandidate
	boxErr     error
}

func (m *mockStoreDirectory) StoresWithinBox(ctx context.Context, box BoundingBox, limit int) ([]StoreCandidate, error) {
	return m.local, m.boxErr
}

func (m *mockStoreDirectory) RecentActiveStores(ctx context.Context, limit int) ([]StoreCandidate, error) {
	if limit > len(m.recent) {
		limit = len(m.recent)
	}
	return m.recent[:limit], nil
}

func (m *mockStoreDirectory) StoreByID(ctx context.Context, storeID string) (*StoreCandidate, error) {
	for _, s := range m.local {
		if s.StoreID == storeID {
			store := s
			return &store, nil
		}
	}
	return nil, errors.New("store not found")
}

func (m *mockStoreDirectory) UpsertStores(ctx context.Context, stores []StoreCandidate) error {
	m.upserted = append(m.upserted, stores...)
	return nil
}

func (m *mockStoreDirectory) DistinctStoreCategories(ctx context.Context) ([]string, error) {
	return m.categories, nil
}

// mockPlaceSearcher is a canned PlaceSearcher for testing.
type mockPlaceSearcher struct {
	stores     []StoreCandidate
	err        error
	configured bool
	calls      int
}

func (m *mockPlaceSearcher) SearchNearbyStores(ctx context.Context, lat, lng float64, categories []string, radiusKm float64) ([]StoreCandidate, error) {
	m.calls++
	return m.stores, m.err
}

func (m *mockPlaceSearcher) Configured() bool { return m.configured }

// mockRouteEstimator is a canned RouteEstimator for testing.
type mockRouteEstimator struct {
	route      *RouteEstimate
	err        error
	configured bool
	calls      int
}

func (m *mockRouteEstimator) DrivingRoute(ctx context.Context, fromLat, fromLng, toLat, toLng float64) (*RouteEstimate, error) {
	m.calls++
	return m.route, m.err
}

func (m *mockRouteEstimator) Configured() bool { return m.configured }

func walkUser(maxMinutes int) UserContext {
	return UserContext{Lat: 37.5, Lng: 127.0, TravelMode: ModeWalk, MaxTravelMinutes: maxMinutes}
}

func storeAt(id string, lat, lng float64) StoreCandidate {
	return StoreCandidate{StoreID: id, Name: "매장 " + id, Lat: lat, Lng: lng, Source: "local", IsActive: true}
}

func TestResolveLocalStoresWithinLimit(t *testing.T) {
	stores := &mockStoreDirectory{local: []StoreCandidate{
		storeAt("near", 37.501, 127.001),  // a few hundred meters
		storeAt("far", 37.55, 127.05),     // several km, over a 30-minute walk
	}}
	resolver := NewResolver(stores, nil, nil, DefaultResolverConfig())

	degraded := NewDegradedSet()
	resolved, err := resolver.Resolve(context.Background(), walkUser(30), degraded)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "near", resolved[0].Store.StoreID)
	assert.True(t, resolved[0].Route.IsEstimated)
	assert.Empty(t, degraded.Names())
}

func TestResolveSortsNearestFirst(t *testing.T) {
	stores := &mockStoreDirectory{local: []StoreCandidate{
		storeAt("b", 37.51, 127.01),
		storeAt("a", 37.501, 127.001),
	}}
	resolver := NewResolver(stores, nil, nil, DefaultResolverConfig())

	resolved, err := resolver.Resolve(context.Background(), walkUser(120), NewDegradedSet())
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, "a", resolved[0].Store.StoreID)
	assert.LessOrEqual(t, resolved[0].Route.TravelMinutes, resolved[1].Route.TravelMinutes)
}

func TestResolveMergesExternalLocalWins(t *testing.T) {
	local := storeAt("shared", 37.501, 127.001)
	local.Name = "로컬 매장"
	external := storeAt("shared", 37.501, 127.001)
	external.Name = "외부 매장"
	external.Source = "external"

	stores := &mockStoreDirectory{local: []StoreCandidate{local}, categories: []string{"마트"}}
	places := &mockPlaceSearcher{
		stores:     []StoreCandidate{external, storeAt("extra", 37.502, 127.002)},
		configured: true,
	}
	resolver := NewResolver(stores, places, nil, DefaultResolverConfig())

	resolved, err := resolver.Resolve(context.Background(), walkUser(60), NewDegradedSet())
	require.NoError(t, err)
	require.Len(t, resolved, 2)

	byID := map[string]StoreCandidate{}
	for _, c := range resolved {
		byID[c.Store.StoreID] = c.Store
	}
	assert.Equal(t, "로컬 매장", byID["shared"].Name, "local record wins ID collisions")
	assert.Contains(t, byID, "extra")

	// Externally discovered stores are persisted for future local hits.
	assert.NotEmpty(t, stores.upserted)
}

func TestResolvePlaceFailureDegrades(t *testing.T) {
	stores := &mockStoreDirectory{local: []StoreCandidate{storeAt("s", 37.501, 127.001)}}
	places := &mockPlaceSearcher{err: errors.New("api down"), configured: true}
	resolver := NewResolver(stores, places, nil, DefaultResolverConfig())

	degraded := NewDegradedSet()
	resolved, err := resolver.Resolve(context.Background(), walkUser(60), degraded)
	require.NoError(t, err)
	assert.Len(t, resolved, 1, "local candidates survive a place outage")
	assert.Contains(t, degraded.Names(), "place")
}

func TestResolveBudgetFailureClassified(t *testing.T) {
	stores := &mockStoreDirectory{local: []StoreCandidate{storeAt("s", 37.501, 127.001)}}
	places := &mockPlaceSearcher{
		err:        &resilience.BudgetExceededError{Used: 285000, Threshold: 285000, Limit: 300000},
		configured: true,
	}
	resolver := NewResolver(stores, places, nil, DefaultResolverConfig())

	degraded := NewDegradedSet()
	_, err := resolver.Resolve(context.Background(), walkUser(60), degraded)
	require.NoError(t, err)
	assert.Contains(t, degraded.Names(), "budget")
}

func TestResolveCircuitFailureClassified(t *testing.T) {
	stores := &mockStoreDirectory{local: []StoreCandidate{storeAt("s", 37.501, 127.001)}}
	places := &mockPlaceSearcher{err: resilience.ErrCircuitOpen, configured: true}
	resolver := NewResolver(stores, places, nil, DefaultResolverConfig())

	degraded := NewDegradedSet()
	_, err := resolver.Resolve(context.Background(), walkUser(60), degraded)
	require.NoError(t, err)
	assert.Contains(t, degraded.Names(), "circuit")
}

func TestResolveFallsBackToRecentStores(t *testing.T) {
	stores := &mockStoreDirectory{
		recent: []StoreCandidate{storeAt("recent", 37.52, 127.02)},
	}
	resolver := NewResolver(stores, nil, nil, DefaultResolverConfig())

	degraded := NewDegradedSet()
	resolved, err := resolver.Resolve(context.Background(), walkUser(600), degraded)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "recent", resolved[0].Store.StoreID)
	assert.Contains(t, degraded.Names(), "place", "distance-ignoring fallback must be marked degraded")
}

func TestResolveNoCandidatesAnywhere(t *testing.T) {
	resolver := NewResolver(&mockStoreDirectory{}, nil, nil, DefaultResolverConfig())

	resolved, err := resolver.Resolve(context.Background(), walkUser(30), NewDegradedSet())
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestResolveKeepsNearestWhenAllExceedLimit(t *testing.T) {
	stores := &mockStoreDirectory{local: []StoreCandidate{
		storeAt("far-a", 37.55, 127.05),
		storeAt("far-b", 37.56, 127.06),
		storeAt("far-c", 37.57, 127.07),
		storeAt("far-d", 37.58, 127.08),
	}}
	resolver := NewResolver(stores, nil, nil, DefaultResolverConfig())

	// One-minute walk limit: nothing qualifies, the nearest three survive.
	degraded := NewDegradedSet()
	resolved, err := resolver.Resolve(context.Background(), walkUser(1), degraded)
	require.NoError(t, err)
	require.Len(t, resolved, 3)
	assert.Equal(t, "far-a", resolved[0].Store.StoreID)
	assert.Contains(t, degraded.Names(), "place", "over-limit relaxation must be marked degraded")
}

func TestResolveCarUsesLiveRoute(t *testing.T) {
	stores := &mockStoreDirectory{local: []StoreCandidate{storeAt("s", 37.51, 127.01)}}
	routes := &mockRouteEstimator{
		route:      &RouteEstimate{DistanceKm: 2.4, TravelMinutes: 8, IsEstimated: false},
		configured: true,
	}
	resolver := NewResolver(stores, nil, routes, DefaultResolverConfig())

	user := UserContext{Lat: 37.5, Lng: 127.0, TravelMode: ModeCar, MaxTravelMinutes: 30}
	resolved, err := resolver.Resolve(context.Background(), user, NewDegradedSet())
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.False(t, resolved[0].Route.IsEstimated)
	assert.Equal(t, 8, resolved[0].Route.TravelMinutes)
}

func TestResolveRoutingFailureFallsBackAndDegrades(t *testing.T) {
	stores := &mockStoreDirectory{local: []StoreCandidate{storeAt("s", 37.51, 127.01)}}
	routes := &mockRouteEstimator{err: errors.New("api down"), configured: true}
	resolver := NewResolver(stores, nil, routes, DefaultResolverConfig())

	user := UserContext{Lat: 37.5, Lng: 127.0, TravelMode: ModeCar, MaxTravelMinutes: 30}
	degraded := NewDegradedSet()
	resolved, err := resolver.Resolve(context.Background(), user, degraded)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.True(t, resolved[0].Route.IsEstimated)
	assert.Contains(t, degraded.Names(), "routing")
}

func TestResolveDeadlineMidRouteUsesFallback(t *testing.T) {
	stores := &mockStoreDirectory{local: []StoreCandidate{
		storeAt("s1", 37.51, 127.01),
		storeAt("s2", 37.52, 127.02),
	}}
	routes := &mockRouteEstimator{
		route:      &RouteEstimate{DistanceKm: 2.4, TravelMinutes: 8, IsEstimated: false},
		configured: true,
	}
	resolver := NewResolver(stores, nil, routes, DefaultResolverConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// An expired context must not abort resolution: the geometric fallback
	// needs no I/O, so every store still gets an estimate.
	user := UserContext{Lat: 37.5, Lng: 127.0, TravelMode: ModeCar, MaxTravelMinutes: 120}
	degraded := NewDegradedSet()
	resolved, err := resolver.Resolve(ctx, user, degraded)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	for _, c := range resolved {
		assert.True(t, c.Route.IsEstimated)
	}
	assert.Zero(t, routes.calls, "no live route calls after the deadline")
	assert.Contains(t, degraded.Names(), "routing")
}

func TestResolveUnconfiguredPlaceSkipped(t *testing.T) {
	stores := &mockStoreDirectory{local: []StoreCandidate{storeAt("s", 37.501, 127.001)}}
	places := &mockPlaceSearcher{configured: false}
	resolver := NewResolver(stores, places, nil, DefaultResolverConfig())

	_, err := resolver.Resolve(context.Background(), walkUser(60), NewDegradedSet())
	require.NoError(t, err)
	assert.Zero(t, places.calls, "unconfigured provider must never be called")
}

func TestDegradedSetDeduplicatesAndSorts(t *testing.T) {
	d := NewDegradedSet()
	d.Add("routing")
	d.Add("place")
	d.Add("routing")
	assert.Equal(t, []string{"place", "routing"}, d.Names())
}

package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ddokjang/plan-service/internal/resilience"
)

// classifyProviderError maps budget and breaker failures to their own
// degraded-set entries so the caller can report them distinctly.
func classifyProviderError(provider string, err error) string {
	var budgetErr *resilience.BudgetExceededError
	if errors.As(err, &budgetErr) {
		return "budget"
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "circuit"
	}
	return provider
}

// DegradedSet accumulates the names of providers that failed during a
// request. Safe for concurrent use.
type DegradedSet struct {
	mu    sync.Mutex
	names map[string]bool
}

// NewDegradedSet returns an empty set.
func NewDegradedSet() *DegradedSet {
	return &DegradedSet{names: make(map[string]bool)}
}

// Add marks a provider as degraded.
func (d *DegradedSet) Add(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[name] = true
}

// Names returns the degraded providers in deterministic order.
func (d *DegradedSet) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.names))
	for n := range d.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResolverConfig bounds candidate resolution.
type ResolverConfig struct {
	MaxLocalStores  int
	FallbackStores  int
	RelaxationKeep  int
	DefaultCategory string
	PersistExternal bool
}

// DefaultResolverConfig returns the production resolver policy.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		MaxLocalStores:  200,
		FallbackStores:  30,
		RelaxationKeep:  3,
		DefaultCategory: "마트",
		PersistExternal: true,
	}
}

// ResolvedCandidate pairs a store with its travel estimate.
type ResolvedCandidate struct {
	Store StoreCandidate
	Route RouteEstimate
}

// Resolver assembles the candidate store set: local bounding-box prefilter,
// external place merge, fallback, per-candidate route estimate, and travel
// filtering with keep-nearest relaxation.
type Resolver struct {
	stores StoreDirectory
	places PlaceSearcher
	routes RouteEstimator
	config ResolverConfig
	logger zerolog.Logger
}

// NewResolver builds a Resolver. places and routes may be nil when the
// corresponding provider is not configured.
func NewResolver(stores StoreDirectory, places PlaceSearcher, routes RouteEstimator, config ResolverConfig) *Resolver {
	return &Resolver{
		stores: stores,
		places: places,
		routes: routes,
		config: config,
		logger: log.With().Str("component", "candidate_resolver").Logger(),
	}
}

// Resolve returns travel-filtered store candidates sorted nearest-first.
// Provider failures degrade; an empty result is not an error here, the
// caller decides how to report it.
func (r *Resolver) Resolve(ctx context.Context, user UserContext, degraded *DegradedSet) ([]ResolvedCandidate, error) {
	radiusKm := SearchRadiusKm(user.TravelMode, user.MaxTravelMinutes)
	box := BoxAround(user.Lat, user.Lng, radiusKm)

	local, err := r.stores.StoresWithinBox(ctx, box, r.config.MaxLocalStores)
	if err != nil {
		return nil, fmt.Errorf("local store search: %w", err)
	}

	merged := make(map[string]StoreCandidate, len(local))
	for _, s := range local {
		merged[s.StoreID] = s
	}

	if r.places != nil && r.places.Configured() {
		external := r.searchExternal(ctx, user, radiusKm, degraded)
		for _, s := range external {
			if _, exists := merged[s.StoreID]; !exists {
				merged[s.StoreID] = s
			}
		}
	}

	candidates := make([]StoreCandidate, 0, len(merged))
	for _, s := range merged {
		candidates = append(candidates, s)
	}

	// Geo search found nothing; fall back to the most recently updated
	// active stores regardless of distance. That result ignores the user's
	// location, so it counts as degraded.
	if len(candidates) == 0 {
		fallback, err := r.stores.RecentActiveStores(ctx, r.config.FallbackStores)
		if err != nil {
			return nil, fmt.Errorf("fallback store search: %w", err)
		}
		if len(fallback) > 0 {
			degraded.Add("place")
			r.logger.Info().
				Int("stores", len(fallback)).
				Msg("geo search empty, using recent active stores")
		}
		candidates = fallback
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	resolved := make([]ResolvedCandidate, 0, len(candidates))
	routingDegraded := false
	liveRoutes := user.TravelMode == ModeCar && r.routes != nil && r.routes.Configured()
	for _, store := range candidates {
		if liveRoutes && ctx.Err() != nil {
			// Deadline hit mid-loop: finish the remaining stores on the
			// geometric fallback, which needs no I/O.
			routingDegraded = true
			distanceKm := HaversineKm(user.Lat, user.Lng, store.Lat, store.Lng)
			resolved = append(resolved, ResolvedCandidate{Store: store, Route: FallbackRoute(distanceKm, user.TravelMode)})
			continue
		}
		route := r.estimateRoute(ctx, user, store, &routingDegraded)
		resolved = append(resolved, ResolvedCandidate{Store: store, Route: route})
	}
	if routingDegraded {
		degraded.Add("routing")
	}

	sort.Slice(resolved, func(i, j int) bool {
		if resolved[i].Route.TravelMinutes != resolved[j].Route.TravelMinutes {
			return resolved[i].Route.TravelMinutes < resolved[j].Route.TravelMinutes
		}
		return resolved[i].Store.StoreID < resolved[j].Store.StoreID
	})

	within := make([]ResolvedCandidate, 0, len(resolved))
	for _, c := range resolved {
		if c.Route.TravelMinutes <= user.MaxTravelMinutes {
			within = append(within, c)
		}
	}

	// Every candidate exceeds the travel limit: keep the nearest few rather
	// than returning nothing, and mark the result degraded since none of
	// them honors the requested limit.
	if len(within) == 0 {
		keep := r.config.RelaxationKeep
		if keep > len(resolved) {
			keep = len(resolved)
		}
		within = resolved[:keep]
		degraded.Add("place")
		r.logger.Info().
			Int("kept", keep).
			Int("max_minutes", user.MaxTravelMinutes).
			Msg("all candidates exceed travel limit, keeping nearest")
	}

	return within, nil
}

func (r *Resolver) searchExternal(ctx context.Context, user UserContext, radiusKm float64, degraded *DegradedSet) []StoreCandidate {
	categories, err := r.stores.DistinctStoreCategories(ctx)
	if err != nil || len(categories) == 0 {
		categories = []string{r.config.DefaultCategory}
	}

	external, err := r.places.SearchNearbyStores(ctx, user.Lat, user.Lng, categories, radiusKm)
	if err != nil {
		degraded.Add(classifyProviderError("place", err))
		r.logger.Warn().Err(err).Msg("place search degraded")
	}
	if len(external) == 0 {
		return nil
	}

	if r.config.PersistExternal {
		if err := r.stores.UpsertStores(ctx, external); err != nil {
			r.logger.Warn().Err(err).Msg("failed to persist external stores")
		}
	}
	return external
}

func (r *Resolver) estimateRoute(ctx context.Context, user UserContext, store StoreCandidate, routingDegraded *bool) RouteEstimate {
	distanceKm := HaversineKm(user.Lat, user.Lng, store.Lat, store.Lng)

	if user.TravelMode == ModeCar && r.routes != nil && r.routes.Configured() {
		est, err := r.routes.DrivingRoute(ctx, user.Lat, user.Lng, store.Lat, store.Lng)
		if err == nil {
			return *est
		}
		*routingDegraded = true
		r.logger.Debug().Err(err).Str("store_id", store.StoreID).Msg("driving route degraded")
	}

	return FallbackRoute(distanceKm, user.TravelMode)
}

package providers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpx "github.com/ddokjang/plan-service/internal/http"
	"github.com/ddokjang/plan-service/internal/planner"
	"github.com/ddokjang/plan-service/internal/resilience"
)

// PlaceConfig configures the local-search place provider.
type PlaceConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Display      int
	CacheTTL     time.Duration
}

// DefaultPlaceConfig returns production defaults for the place provider.
func DefaultPlaceConfig() PlaceConfig {
	return PlaceConfig{
		BaseURL:  "https://openapi.naver.com/v1/search/local.json",
		Display:  20,
		CacheTTL: 6 * time.Hour,
	}
}

// PlaceProvider finds nearby stores through the local-search API, one query
// per store category, merged by store ID.
type PlaceProvider struct {
	config PlaceConfig
	client *httpx.Client
	cache  *resilience.Cache
	guard  *guard
	logger zerolog.Logger
}

// NewPlaceProvider wires a place provider with its own circuit breaker.
func NewPlaceProvider(config PlaceConfig, client *httpx.Client, cache *resilience.Cache, budget *resilience.Budget, calls CallLogger, breakerCfg resilience.BreakerConfig) *PlaceProvider {
	logger := log.With().Str("component", "place_provider").Logger()
	return &PlaceProvider{
		config: config,
		client: client,
		cache:  cache,
		guard:  newGuard("place", budget, calls, breakerCfg, logger),
		logger: logger,
	}
}

// Configured reports whether API credentials are present.
func (p *PlaceProvider) Configured() bool {
	return p.config.ClientID != "" && p.config.ClientSecret != ""
}

// Breaker exposes the provider breaker for admin reset.
func (p *PlaceProvider) Breaker() *resilience.Breaker {
	return p.guard.Breaker()
}

type localSearchResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Category    string `json:"category"`
		Address     string `json:"address"`
		RoadAddress string `json:"roadAddress"`
		MapX        string `json:"mapx"`
		MapY        string `json:"mapy"`
	} `json:"items"`
}

// SearchNearbyStores searches one query per category and merges results by
// store ID. A failed category degrades silently; the first budget rejection
// stops further categories and is returned alongside what was gathered.
func (p *PlaceProvider) SearchNearbyStores(ctx context.Context, lat, lng float64, categories []string, radiusKm float64) ([]planner.StoreCandidate, error) {
	if !p.Configured() {
		return nil, nil
	}
	if len(categories) == 0 {
		categories = []string{"마트"}
	}

	radiusM := int(radiusKm * 1000)
	merged := make(map[string]planner.StoreCandidate)
	var firstErr error

	for _, category := range categories {
		cacheKey := fmt.Sprintf("place:%.3f:%.3f:%s:%d", lat, lng, category, radiusM)
		if cached, ok := p.cache.Get(cacheKey); ok {
			for _, s := range cached.([]planner.StoreCandidate) {
				merged[s.StoreID] = s
			}
			continue
		}

		var stores []planner.StoreCandidate
		err := p.guard.run(ctx, "local_search", func(ctx context.Context) error {
			var resp localSearchResponse
			query := url.Values{}
			query.Set("query", strings.TrimSpace("마트 "+category))
			query.Set("display", strconv.Itoa(p.config.Display))
			query.Set("start", "1")
			query.Set("sort", "random")

			if err := p.client.GetJSON(ctx, p.config.BaseURL+"?"+query.Encode(), p.headers(), &resp); err != nil {
				return err
			}

			for _, item := range resp.Items {
				store, ok := p.toStore(item.Title, item.RoadAddress, item.Address, item.MapX, item.MapY, category)
				if !ok {
					continue
				}
				if planner.HaversineKm(lat, lng, store.Lat, store.Lng) <= radiusKm {
					stores = append(stores, store)
				}
			}
			return nil
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			var budgetErr *resilience.BudgetExceededError
			if errors.As(err, &budgetErr) {
				break
			}
			continue
		}

		p.cache.Set(cacheKey, stores, p.config.CacheTTL)
		for _, s := range stores {
			merged[s.StoreID] = s
		}
	}

	result := make([]planner.StoreCandidate, 0, len(merged))
	for _, s := range merged {
		result = append(result, s)
	}
	return result, firstErr
}

func (p *PlaceProvider) headers() map[string]string {
	return map[string]string{
		"X-Naver-Client-Id":     p.config.ClientID,
		"X-Naver-Client-Secret": p.config.ClientSecret,
	}
}

func (p *PlaceProvider) toStore(title, roadAddress, address, mapx, mapy, category string) (planner.StoreCandidate, bool) {
	lat, lng, ok := parseCoordinates(mapx, mapy)
	if !ok {
		return planner.StoreCandidate{}, false
	}

	name := strings.TrimSpace(stripHTML(title))
	if name == "" {
		name = "이름 없음"
	}
	addr := roadAddress
	if addr == "" {
		addr = address
	}

	identity := fmt.Sprintf("%s|%s|%.6f|%.6f", name, addr, lat, lng)
	storeID := "place:" + httpx.ComputeSha256([]byte(identity))[:16]

	return planner.StoreCandidate{
		StoreID:   storeID,
		Name:      name,
		Address:   addr,
		Lat:       lat,
		Lng:       lng,
		Category:  category,
		Source:    "external",
		IsActive:  true,
		UpdatedAt: time.Now().UTC(),
	}, true
}

// parseCoordinates handles both response shapes seen in the wild: WGS84
// degrees and 1e7-scaled integers. Anything outside Korean bounds is dropped.
func parseCoordinates(mapx, mapy string) (lat, lng float64, ok bool) {
	rawX, errX := strconv.ParseFloat(mapx, 64)
	rawY, errY := strconv.ParseFloat(mapy, 64)
	if errX != nil || errY != nil {
		return 0, 0, false
	}

	switch {
	case rawX >= -180 && rawX <= 180 && rawY >= -90 && rawY <= 90:
		lng, lat = rawX, rawY
	case rawX >= 1_240_000_000 && rawX <= 1_320_000_000 && rawY >= 330_000_000 && rawY <= 390_000_000:
		lng, lat = rawX/10_000_000, rawY/10_000_000
	default:
		return 0, 0, false
	}

	if lat < 33.0 || lat > 39.5 || lng < 124.0 || lng > 132.0 {
		return 0, 0, false
	}
	return lat, lng, true
}

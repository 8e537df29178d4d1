package providers

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpx "github.com/ddokjang/plan-service/internal/http"
	"github.com/ddokjang/plan-service/internal/planner"
	"github.com/ddokjang/plan-service/internal/resilience"
)

// RoutingConfig configures the cloud directions provider.
type RoutingConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	CacheTTL     time.Duration
}

// DefaultRoutingConfig returns production defaults for the routing provider.
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		BaseURL:  "https://naveropenapi.apigw.ntruss.com/map-direction/v1/driving",
		CacheTTL: 24 * time.Hour,
	}
}

// RoutingProvider estimates car travel through the directions API. Walk and
// transit have no live API; callers use the geometric fallback for those.
type RoutingProvider struct {
	config RoutingConfig
	client *httpx.Client
	cache  *resilience.Cache
	guard  *guard
	logger zerolog.Logger
}

// NewRoutingProvider wires a routing provider with its own circuit breaker.
func NewRoutingProvider(config RoutingConfig, client *httpx.Client, cache *resilience.Cache, budget *resilience.Budget, calls CallLogger, breakerCfg resilience.BreakerConfig) *RoutingProvider {
	logger := log.With().Str("component", "routing_provider").Logger()
	return &RoutingProvider{
		config: config,
		client: client,
		cache:  cache,
		guard:  newGuard("routing", budget, calls, breakerCfg, logger),
		logger: logger,
	}
}

// Configured reports whether API credentials are present.
func (p *RoutingProvider) Configured() bool {
	return p.config.ClientID != "" && p.config.ClientSecret != ""
}

// Breaker exposes the provider breaker for admin reset.
func (p *RoutingProvider) Breaker() *resilience.Breaker {
	return p.guard.Breaker()
}

type directionsResponse struct {
	Route struct {
		Traoptimal []struct {
			Summary struct {
				Distance float64 `json:"distance"` // meters
				Duration float64 `json:"duration"` // milliseconds
			} `json:"summary"`
		} `json:"traoptimal"`
	} `json:"route"`
}

// DrivingRoute returns the live car route between two points. The caller
// falls back to a geometric estimate on any error.
func (p *RoutingProvider) DrivingRoute(ctx context.Context, fromLat, fromLng, toLat, toLng float64) (*planner.RouteEstimate, error) {
	if !p.Configured() {
		return nil, fmt.Errorf("routing credentials are not configured")
	}

	cacheKey := fmt.Sprintf("route:car:%.5f:%.5f:%.5f:%.5f", fromLat, fromLng, toLat, toLng)
	if cached, ok := p.cache.Get(cacheKey); ok {
		est := cached.(planner.RouteEstimate)
		return &est, nil
	}

	var est planner.RouteEstimate
	err := p.guard.run(ctx, "driving", func(ctx context.Context) error {
		query := url.Values{}
		query.Set("start", fmt.Sprintf("%f,%f", fromLng, fromLat))
		query.Set("goal", fmt.Sprintf("%f,%f", toLng, toLat))

		var resp directionsResponse
		if err := p.client.GetJSON(ctx, p.config.BaseURL+"?"+query.Encode(), p.headers(), &resp); err != nil {
			return err
		}
		if len(resp.Route.Traoptimal) == 0 {
			return fmt.Errorf("directions response has no route")
		}

		summary := resp.Route.Traoptimal[0].Summary
		minutes := int(math.Round(summary.Duration / 60000))
		if minutes < 1 {
			minutes = 1
		}
		est = planner.RouteEstimate{
			DistanceKm:    math.Round(summary.Distance/1000*10) / 10,
			TravelMinutes: minutes,
			IsEstimated:   false,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.cache.Set(cacheKey, est, p.config.CacheTTL)
	return &est, nil
}

func (p *RoutingProvider) headers() map[string]string {
	return map[string]string{
		"X-NCP-APIGW-API-KEY-ID": p.config.ClientID,
		"X-NCP-APIGW-API-KEY":    p.config.ClientSecret,
	}
}

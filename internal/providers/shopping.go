package providers

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpx "github.com/ddokjang/plan-service/internal/http"
	"github.com/ddokjang/plan-service/internal/matching"
	"github.com/ddokjang/plan-service/internal/planner"
	"github.com/ddokjang/plan-service/internal/resilience"
)

// ShoppingConfig configures the shopping-search price provider.
type ShoppingConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Display      int
	CacheTTL     time.Duration
}

// DefaultShoppingConfig returns production defaults for the shopping provider.
func DefaultShoppingConfig() ShoppingConfig {
	return ShoppingConfig{
		BaseURL:  "https://openapi.naver.com/v1/search/shop.json",
		Display:  20,
		CacheTTL: 30 * time.Minute,
	}
}

// queryOverrides maps item names whose literal query returns poor results to
// a tuned query.
var queryOverrides = map[string]string{
	"계란": "달걀 특란 30개입",
	"달걀": "달걀 특란 30개입",
}

// sizeNormalization rewrites count units the shopping index does not use.
var sizeNormalization = map[string]string{
	"30구": "30개입",
	"15구": "15개입",
	"10구": "10개입",
}

// targetMalls is the mall whitelist for price quotes. Marketplace resellers
// outside it produce unreliable unit prices.
var targetMalls = map[string]bool{
	"이마트": true, "이마트몰": true, "트레이더스": true, "신세계몰": true, "SSG": true, "SSG.COM": true,
	"홈플러스": true, "Homeplus": true,
	"롯데마트": true, "롯데ON": true, "롯데온": true,
	"쿠팡": true, "마켓컬리": true, "컬리": true,
	"농협몰": true, "GS프레시몰": true,
}

var parenRe = regexp.MustCompile(`[()]`)
var spaceRe = regexp.MustCompile(`\s+`)

// ShoppingProvider searches online unit prices for basket items that no
// nearby store snapshot covers.
type ShoppingProvider struct {
	config ShoppingConfig
	client *httpx.Client
	cache  *resilience.Cache
	guard  *guard
	logger zerolog.Logger
}

// NewShoppingProvider wires a shopping provider with its own circuit breaker.
func NewShoppingProvider(config ShoppingConfig, client *httpx.Client, cache *resilience.Cache, budget *resilience.Budget, calls CallLogger, breakerCfg resilience.BreakerConfig) *ShoppingProvider {
	logger := log.With().Str("component", "shopping_provider").Logger()
	return &ShoppingProvider{
		config: config,
		client: client,
		cache:  cache,
		guard:  newGuard("shopping", budget, calls, breakerCfg, logger),
		logger: logger,
	}
}

// Configured reports whether API credentials are present.
func (p *ShoppingProvider) Configured() bool {
	return p.config.ClientID != "" && p.config.ClientSecret != ""
}

// Breaker exposes the provider breaker for admin reset.
func (p *ShoppingProvider) Breaker() *resilience.Breaker {
	return p.guard.Breaker()
}

type shopSearchResponse struct {
	Items []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		LPrice   string `json:"lprice"`
		MallName string `json:"mallName"`
		Brand    string `json:"brand"`
	} `json:"items"`
}

// SearchPrices returns whitelist-mall price quotes for one basket item.
// Quotes still need the outlier guard before they are trusted.
func (p *ShoppingProvider) SearchPrices(ctx context.Context, item planner.BasketItem) ([]planner.PriceQuote, error) {
	if !p.Configured() {
		return nil, nil
	}

	query := BuildShoppingQuery(item)
	cacheKey := "shop:" + matching.Normalize(query)
	if cached, ok := p.cache.Get(cacheKey); ok {
		return cached.([]planner.PriceQuote), nil
	}

	var quotes []planner.PriceQuote
	err := p.guard.run(ctx, "shop_search", func(ctx context.Context) error {
		params := url.Values{}
		params.Set("query", query)
		params.Set("display", strconv.Itoa(p.config.Display))
		params.Set("sort", "sim")

		var resp shopSearchResponse
		if err := p.client.GetJSON(ctx, p.config.BaseURL+"?"+params.Encode(), p.headers(), &resp); err != nil {
			return err
		}

		var whitelisted, all []planner.PriceQuote
		for _, raw := range resp.Items {
			price, err := strconv.ParseInt(raw.LPrice, 10, 64)
			if err != nil || price <= 0 {
				continue
			}
			quote := planner.PriceQuote{
				ItemName:  item.ItemName,
				Title:     strings.TrimSpace(stripHTML(raw.Title)),
				MallName:  raw.MallName,
				Brand:     raw.Brand,
				UnitPrice: price,
				Link:      raw.Link,
			}
			all = append(all, quote)
			if targetMalls[raw.MallName] {
				whitelisted = append(whitelisted, quote)
			}
		}

		// Whitelist results are preferred; marketplace-only results are
		// better than nothing and still face the outlier guard.
		quotes = whitelisted
		if len(quotes) == 0 {
			quotes = all
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.cache.Set(cacheKey, quotes, p.config.CacheTTL)
	return quotes, nil
}

// BuildShoppingQuery builds the search query for one basket item: brand-fixed
// items keep their brand, known poor queries are overridden, and count sizes
// are normalized.
func BuildShoppingQuery(item planner.BasketItem) string {
	size := item.Size
	if normalized, ok := sizeNormalization[size]; ok {
		size = normalized
	}

	if item.Brand != "" {
		parts := []string{item.Brand, item.ItemName}
		if size != "" {
			parts = append(parts, size)
		}
		return strings.Join(parts, " ")
	}

	if override, ok := queryOverrides[item.ItemName]; ok {
		return override
	}

	clean := parenRe.ReplaceAllString(item.ItemName, " ")
	clean = strings.TrimSpace(spaceRe.ReplaceAllString(clean, " "))
	if size != "" {
		return clean + " " + size
	}
	return clean
}

func (p *ShoppingProvider) headers() map[string]string {
	return map[string]string{
		"X-Naver-Client-Id":     p.config.ClientID,
		"X-Naver-Client-Secret": p.config.ClientSecret,
	}
}

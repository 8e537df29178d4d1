package providers

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpx "github.com/ddokjang/plan-service/internal/http"
	"github.com/ddokjang/plan-service/internal/resilience"
)

// WeatherConfig configures the short-term forecast provider.
type WeatherConfig struct {
	BaseURL    string
	ServiceKey string
	CacheTTL   time.Duration
}

// DefaultWeatherConfig returns production defaults for the weather provider.
func DefaultWeatherConfig() WeatherConfig {
	return WeatherConfig{
		BaseURL:  "https://apis.data.go.kr/1360000/VilageFcstInfoService_2.0/getVilageFcst",
		CacheTTL: time.Hour,
	}
}

// WeatherAdvisory is an informational note attached to plans. It never
// affects ranking.
type WeatherAdvisory struct {
	Note                     string   `json:"note"`
	Temperature              *float64 `json:"temperature,omitempty"`
	PrecipitationProbability int      `json:"precipitationProbability"`
}

// WeatherProvider fetches a short-term forecast and condenses it into a
// shopping advisory.
type WeatherProvider struct {
	config WeatherConfig
	client *httpx.Client
	cache  *resilience.Cache
	guard  *guard
	logger zerolog.Logger
	clock  func() time.Time
}

// NewWeatherProvider wires a weather provider with its own circuit breaker.
func NewWeatherProvider(config WeatherConfig, client *httpx.Client, cache *resilience.Cache, budget *resilience.Budget, calls CallLogger, breakerCfg resilience.BreakerConfig) *WeatherProvider {
	logger := log.With().Str("component", "weather_provider").Logger()
	return &WeatherProvider{
		config: config,
		client: client,
		cache:  cache,
		guard:  newGuard("weather", budget, calls, breakerCfg, logger),
		logger: logger,
		clock:  time.Now,
	}
}

// Configured reports whether the service key is present.
func (p *WeatherProvider) Configured() bool {
	return p.config.ServiceKey != ""
}

// Breaker exposes the provider breaker for admin reset.
func (p *WeatherProvider) Breaker() *resilience.Breaker {
	return p.guard.Breaker()
}

var forecastBaseTimes = []string{"0200", "0500", "0800", "1100", "1400", "1700", "2000", "2300"}

type forecastResponse struct {
	Response struct {
		Body struct {
			Items struct {
				Item []forecastItem `json:"item"`
			} `json:"items"`
		} `json:"body"`
	} `json:"response"`
}

type forecastItem struct {
	Category  string `json:"category"`
	FcstDate  string `json:"fcstDate"`
	FcstTime  string `json:"fcstTime"`
	FcstValue string `json:"fcstValue"`
}

// Advisory returns the weather note for the user's location, cached per
// hour block.
func (p *WeatherProvider) Advisory(ctx context.Context, lat, lng float64) (*WeatherAdvisory, error) {
	if !p.Configured() {
		return nil, fmt.Errorf("weather service key is not configured")
	}

	kst := p.clock().In(time.FixedZone("KST", 9*3600))
	cacheKey := fmt.Sprintf("weather:%.2f:%.2f:%s", lat, lng, kst.Format("2006010215"))
	if cached, ok := p.cache.Get(cacheKey); ok {
		adv := cached.(WeatherAdvisory)
		return &adv, nil
	}

	var advisory WeatherAdvisory
	err := p.guard.run(ctx, "vilage_fcst", func(ctx context.Context) error {
		nx, ny := toForecastGrid(lat, lng)
		baseDate, baseTime := resolveBaseTime(kst)

		query := url.Values{}
		query.Set("serviceKey", p.config.ServiceKey)
		query.Set("pageNo", "1")
		query.Set("numOfRows", "1000")
		query.Set("dataType", "JSON")
		query.Set("base_date", baseDate)
		query.Set("base_time", baseTime)
		query.Set("nx", strconv.Itoa(nx))
		query.Set("ny", strconv.Itoa(ny))

		var resp forecastResponse
		if err := p.client.GetJSON(ctx, p.config.BaseURL+"?"+query.Encode(), nil, &resp); err != nil {
			return err
		}

		advisory = buildAdvisory(resp.Response.Body.Items.Item)
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.cache.Set(cacheKey, advisory, p.config.CacheTTL)
	return &advisory, nil
}

// AdvisoryNote returns just the advisory text, the shape plan generation
// attaches to responses.
func (p *WeatherProvider) AdvisoryNote(ctx context.Context, lat, lng float64) (string, error) {
	adv, err := p.Advisory(ctx, lat, lng)
	if err != nil {
		return "", err
	}
	return adv.Note, nil
}

// buildAdvisory condenses the earliest forecast values per category into one
// human-readable note.
func buildAdvisory(items []forecastItem) WeatherAdvisory {
	sorted := make([]forecastItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].FcstDate != sorted[j].FcstDate {
			return sorted[i].FcstDate < sorted[j].FcstDate
		}
		return sorted[i].FcstTime < sorted[j].FcstTime
	})

	first := func(category string) (string, bool) {
		for _, it := range sorted {
			if it.Category == category {
				return it.FcstValue, true
			}
		}
		return "", false
	}

	pop := 0
	if v, ok := first("POP"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			pop = n
		}
	}
	pty := 0
	if v, ok := first("PTY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			pty = n
		}
	}
	sky := 0
	if v, ok := first("SKY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			sky = n
		}
	}
	var temp *float64
	if v, ok := first("TMP"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			temp = &f
		}
	}

	var parts []string
	switch {
	case pty == 3:
		parts = append(parts, "눈 예보")
	case pty > 0:
		parts = append(parts, "비 예보")
	case sky == 1:
		parts = append(parts, "맑음")
	case sky == 3:
		parts = append(parts, "구름많음")
	case sky == 4:
		parts = append(parts, "흐림")
	default:
		parts = append(parts, "날씨 정보 확인 필요")
	}
	if pop >= 60 {
		parts = append(parts, fmt.Sprintf("강수확률 %d%%", pop))
	}

	return WeatherAdvisory{
		Note:                     strings.Join(parts, ", "),
		Temperature:              temp,
		PrecipitationProbability: pop,
	}
}

// resolveBaseTime picks the latest published forecast base time before now,
// rolling back to the previous day's last slot when needed.
func resolveBaseTime(nowKST time.Time) (string, string) {
	compare := nowKST.Add(-10 * time.Minute)
	hhmm := compare.Format("1504")
	for i := len(forecastBaseTimes) - 1; i >= 0; i-- {
		if forecastBaseTimes[i] <= hhmm {
			return compare.Format("20060102"), forecastBaseTimes[i]
		}
	}
	prev := compare.AddDate(0, 0, -1)
	return prev.Format("20060102"), forecastBaseTimes[len(forecastBaseTimes)-1]
}

// toForecastGrid converts WGS84 coordinates to the forecast service's
// Lambert conformal conic grid.
func toForecastGrid(lat, lng float64) (int, int) {
	const (
		re   = 6371.00877
		grid = 5.0
		xo   = 43.0
		yo   = 136.0
	)
	deg := math.Pi / 180.0
	r := re / grid
	slat1 := 30.0 * deg
	slat2 := 60.0 * deg
	olon := 126.0 * deg
	olat := 38.0 * deg

	sn := math.Tan(math.Pi*0.25+slat2*0.5) / math.Tan(math.Pi*0.25+slat1*0.5)
	sn = math.Log(math.Cos(slat1)/math.Cos(slat2)) / math.Log(sn)
	sf := math.Tan(math.Pi*0.25 + slat1*0.5)
	sf = math.Pow(sf, sn) * math.Cos(slat1) / sn
	ro := math.Tan(math.Pi*0.25 + olat*0.5)
	ro = r * sf / math.Pow(ro, sn)

	ra := math.Tan(math.Pi*0.25 + lat*deg*0.5)
	ra = r * sf / math.Pow(ra, sn)
	theta := lng*deg - olon
	if theta > math.Pi {
		theta -= 2 * math.Pi
	}
	if theta < -math.Pi {
		theta += 2 * math.Pi
	}
	theta *= sn

	nx := int(ra*math.Sin(theta) + xo + 0.5)
	ny := int(ro - ra*math.Cos(theta) + yo + 0.5)
	return nx, ny
}

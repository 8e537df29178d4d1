package planner

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ddokjang/plan-service/internal/matching"
)

// ServiceConfig bounds plan generation.
type ServiceConfig struct {
	RequestTimeout    time.Duration
	MaxBasketItems    int
	OnlineConcurrency int

	// AllowedDomains is the external-link allow-list applied to navigation
	// URLs at plan selection.
	AllowedDomains []string
}

// DefaultServiceConfig returns the production service policy.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		RequestTimeout:    10 * time.Second,
		MaxBasketItems:    50,
		OnlineConcurrency: 4,
		AllowedDomains: []string{
			"ssg.com",
			"homeplus.co.kr",
			"kurly.com",
			"coupang.com",
			"lotteon.com",
		},
	}
}

// Service orchestrates the full pipeline: match, resolve, evaluate, rank.
type Service struct {
	matcher   ProductMatcher
	resolver  *Resolver
	evaluator *Evaluator
	ranker    *Ranker
	prefs     PreferenceSource
	weather   WeatherAdvisor
	shopping  PriceSearcher
	stores    StoreDirectory
	audit     AuditLogger
	config    ServiceConfig
	evalCfg   EvaluatorConfig
	logger    zerolog.Logger
	clock     func() time.Time
}

// NewService wires the plan service. weather and shopping may be nil when
// the providers are not configured.
func NewService(
	matcher ProductMatcher,
	resolver *Resolver,
	evaluator *Evaluator,
	ranker *Ranker,
	prefs PreferenceSource,
	weather WeatherAdvisor,
	shopping PriceSearcher,
	stores StoreDirectory,
	audit AuditLogger,
	config ServiceConfig,
	evalCfg EvaluatorConfig,
) *Service {
	return &Service{
		matcher:   matcher,
		resolver:  resolver,
		evaluator: evaluator,
		ranker:    ranker,
		prefs:     prefs,
		weather:   weather,
		shopping:  shopping,
		stores:    stores,
		audit:     audit,
		config:    config,
		evalCfg:   evalCfg,
		logger:    log.With().Str("component", "plan_service").Logger(),
		clock:     time.Now,
	}
}

// GeneratePlans runs the pipeline and returns the Top-3 plans.
func (s *Service) GeneratePlans(ctx context.Context, req *PlanRequest) (*PlanResponse, *PlanError) {
	started := s.clock()
	requestID := uuid.New().String()

	if err := req.Validate(s.config.MaxBasketItems); err != nil {
		recordPlanOutcome("invalid_request", s.clock().Sub(started))
		return nil, NewPlanError(ErrKindInvalidRequest, err.Error(), err)
	}
	basketSize.Observe(float64(len(req.Items)))

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	degraded := NewDegradedSet()

	preferred, disliked := s.loadPreferences(ctx, req.UserID)
	matched, unmatched, assumptions, perr := s.matchBasket(ctx, req.Items, preferred, disliked)
	if perr != nil {
		s.finish(ctx, requestID, req, 0, degraded, started, string(perr.Kind))
		return nil, perr
	}

	candidates, err := s.resolver.Resolve(ctx, req.UserContext, degraded)
	if err != nil {
		s.finish(ctx, requestID, req, 0, degraded, started, "internal")
		return nil, NewPlanError(ErrKindInternal, "candidate resolution failed", err)
	}
	if len(candidates) == 0 {
		perr := s.noCandidatesError(degraded)
		s.finish(ctx, requestID, req, 0, degraded, started, string(perr.Kind))
		return nil, perr
	}
	candidateCount.Observe(float64(len(candidates)))

	unmatchedAlts := s.searchOnlineAlternatives(ctx, unmatched, degraded)

	scores, err := s.evaluator.EvaluateStores(ctx, candidates, matched, unmatched, unmatchedAlts)
	if err != nil {
		s.finish(ctx, requestID, req, 0, degraded, started, "internal")
		return nil, NewPlanError(ErrKindInternal, "price evaluation failed", err)
	}

	plans := s.ranker.Rank(scores)
	if len(plans) == 0 {
		perr := NewPlanError(ErrKindNoCandidates, "커버리지 조건을 만족하는 매장이 없습니다", nil)
		s.finish(ctx, requestID, req, 0, degraded, started, string(perr.Kind))
		return nil, perr
	}

	weatherNote := s.weatherNote(ctx, req.UserContext, degraded)
	for i := range plans {
		plans[i].Assumptions = assumptions
		plans[i].WeatherNote = weatherNote
	}

	coverageRatio.Observe(plans[0].CoverageRatio)
	recordPlanOutcome("success", s.clock().Sub(started))
	s.finish(ctx, requestID, req, len(plans), degraded, started, "")

	return &PlanResponse{
		Plans: plans,
		Meta: PlanMeta{
			RequestID:         requestID,
			GeneratedAt:       s.clock().UTC(),
			DegradedProviders: degraded.Names(),
		},
	}, nil
}

// loadPreferences is best-effort: a failed profile read never blocks a plan.
func (s *Service) loadPreferences(ctx context.Context, userID string) ([]string, []string) {
	if s.prefs == nil || userID == "" {
		return nil, nil
	}
	preferred, disliked, err := s.prefs.BrandPreferences(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("preference load failed")
		return nil, nil
	}
	return preferred, disliked
}

// matchBasket resolves every basket entry. A no-match is per-item data, not
// a request failure; any other matcher error is.
func (s *Service) matchBasket(ctx context.Context, items []BasketItem, preferred, disliked []string) ([]MatchedProduct, []BasketItem, []matching.Assumption, *PlanError) {
	var matched []MatchedProduct
	var unmatched []BasketItem
	var assumptions []matching.Assumption

	for _, item := range items {
		result, err := s.matcher.Match(ctx, matching.Item{
			Name:     item.ItemName,
			Brand:    item.Brand,
			Size:     item.Size,
			Quantity: item.Quantity,
		}, preferred, disliked)
		if err != nil {
			if errors.Is(err, matching.ErrNoMatch) {
				unmatched = append(unmatched, item)
				continue
			}
			return nil, nil, nil, NewPlanError(ErrKindInternal, fmt.Sprintf("matching %q failed", item.ItemName), err)
		}

		matched = append(matched, MatchedProduct{
			ProductKey:     result.ProductKey,
			NormalizedName: result.NormalizedName,
			Brand:          result.Brand,
			SizeDisplay:    result.SizeDisplay,
			Quantity:       item.Quantity,
			Original:       item,
		})
		assumptions = append(assumptions, result.Assumptions...)
	}
	return matched, unmatched, assumptions, nil
}

// searchOnlineAlternatives finds the best online quote per distinct
// unmatched item, concurrently and best-effort.
func (s *Service) searchOnlineAlternatives(ctx context.Context, unmatched []BasketItem, degraded *DegradedSet) map[string]*Alternative {
	alts := make(map[string]*Alternative)
	if s.shopping == nil || !s.shopping.Configured() || len(unmatched) == 0 {
		return alts
	}

	// One search per distinct item name.
	distinct := make(map[string]BasketItem, len(unmatched))
	for _, item := range unmatched {
		if _, seen := distinct[item.ItemName]; !seen {
			distinct[item.ItemName] = item
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.OnlineConcurrency)

	for _, item := range distinct {
		item := item
		g.Go(func() error {
			quotes, err := s.shopping.SearchPrices(gctx, item)
			if err != nil {
				degraded.Add(classifyProviderError("shopping", err))
				s.logger.Warn().Err(err).Str("item", item.ItemName).Msg("online price search degraded")
				return nil
			}
			if alt := BestQuoteAlternative(quotes, s.evalCfg); alt != nil {
				mu.Lock()
				alts[item.ItemName] = alt
				mu.Unlock()
			}
			return nil
		})
	}
	// Workers swallow their own errors; Wait only propagates ctx cancellation.
	if err := g.Wait(); err != nil {
		degraded.Add("shopping")
	}
	return alts
}

func (s *Service) weatherNote(ctx context.Context, user UserContext, degraded *DegradedSet) string {
	if s.weather == nil || !s.weather.Configured() {
		return ""
	}
	note, err := s.weather.AdvisoryNote(ctx, user.Lat, user.Lng)
	if err != nil {
		degraded.Add("weather")
		s.logger.Debug().Err(err).Msg("weather advisory degraded")
		return ""
	}
	return note
}

// noCandidatesError distinguishes an exhausted call budget and an open
// breaker from a plain empty result.
func (s *Service) noCandidatesError(degraded *DegradedSet) *PlanError {
	for _, name := range degraded.Names() {
		switch name {
		case "budget":
			return NewPlanError(ErrKindBudgetExceeded, "외부 API 호출 예산이 소진되었습니다", nil)
		case "circuit":
			return NewPlanError(ErrKindCircuitOpen, "외부 연동이 일시적으로 차단되었습니다", nil)
		}
	}
	return NewPlanError(ErrKindNoCandidates, "조건에 맞는 후보 매장이 없습니다", nil)
}

// finish records metrics and the execution log. failureReason empty means
// success.
func (s *Service) finish(ctx context.Context, requestID string, req *PlanRequest, planCount int, degraded *DegradedSet, started time.Time, failureReason string) {
	if failureReason != "" {
		recordPlanOutcome(failureReason, s.clock().Sub(started))
	}
	if s.audit == nil {
		return
	}
	rec := ExecutionLog{
		RequestID:     requestID,
		UserID:        req.UserID,
		ItemCount:     len(req.Items),
		PlanCount:     planCount,
		Degraded:      degraded.Names(),
		DurationMs:    s.clock().Sub(started).Milliseconds(),
		FailureReason: failureReason,
	}
	if err := s.audit.LogExecution(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Str("request_id", requestID).Msg("execution log failed")
	}
}

// SelectPlan confirms a plan choice and returns navigation details. An
// external navigation URL must match the domain allow-list.
func (s *Service) SelectPlan(ctx context.Context, req *SelectRequest) (*SelectResponse, *PlanError) {
	if req.RequestID == "" || req.StoreID == "" {
		return nil, NewPlanError(ErrKindInvalidRequest, "request_id and store_id are required", nil)
	}
	switch req.SelectedPlanType {
	case PlanCheapest, PlanNearest, PlanBalanced:
	default:
		return nil, NewPlanError(ErrKindInvalidRequest, "selected_plan_type must be cheapest, nearest or balanced", nil)
	}

	store, err := s.stores.StoreByID(ctx, req.StoreID)
	if err != nil {
		return nil, NewPlanError(ErrKindInvalidRequest, fmt.Sprintf("unknown store %s", req.StoreID), err)
	}

	navURL, ok := s.navigationURL(store)
	if !ok {
		return nil, NewPlanError(ErrKindInvalidRequest, "store link is not on the allowed domain list", nil)
	}

	if s.audit != nil {
		rec := SelectionLog{
			RequestID: req.RequestID,
			PlanType:  string(req.SelectedPlanType),
			StoreID:   req.StoreID,
		}
		if err := s.audit.LogSelection(ctx, rec); err != nil {
			s.logger.Warn().Err(err).Str("request_id", req.RequestID).Msg("selection log failed")
		}
	}

	return &SelectResponse{
		Status:        "selected",
		StoreName:     store.Name,
		StoreAddress:  store.Address,
		NavigationURL: navURL,
		SelectedAt:    s.clock().UTC(),
	}, nil
}

// navigationURL builds a map deep link for physical stores. Online mall
// entries carry their cart URL in the address field and must pass the
// allow-list.
func (s *Service) navigationURL(store *StoreCandidate) (string, bool) {
	if strings.HasPrefix(store.Address, "http://") || strings.HasPrefix(store.Address, "https://") {
		if !s.allowedURL(store.Address) {
			return "", false
		}
		return store.Address, true
	}
	query := url.QueryEscape(strings.TrimSpace(store.Name + " " + store.Address))
	return "https://map.naver.com/v5/search/" + query, true
}

func (s *Service) allowedURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, domain := range s.config.AllowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

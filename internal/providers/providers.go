// Package providers integrates the external place, routing, weather and
// shopping APIs behind the resilience layer: every outbound call passes the
// monthly budget check, the per-provider circuit breaker, and the call log.
package providers

import (
	"context"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/ddokjang/plan-service/internal/catalog"
	"github.com/ddokjang/plan-service/internal/resilience"
)

// CallLogger persists one row per outbound provider call. Satisfied by the
// catalog repository; the budget reads the same table back.
type CallLogger interface {
	InsertProviderCall(ctx context.Context, rec catalog.ProviderCallRecord) error
}

// guard wraps one provider's outbound calls with budget, breaker, metrics and
// call logging. Cache lookups bypass the guard entirely.
type guard struct {
	name    string
	breaker *resilience.Breaker
	budget  *resilience.Budget
	calls   CallLogger
	logger  zerolog.Logger
}

func newGuard(name string, budget *resilience.Budget, calls CallLogger, breakerCfg resilience.BreakerConfig, logger zerolog.Logger) *guard {
	return &guard{
		name:    name,
		breaker: resilience.NewBreaker(name, breakerCfg),
		budget:  budget,
		calls:   calls,
		logger:  logger,
	}
}

// run executes fn under the resilience policy. The returned error is fn's
// error, resilience.ErrCircuitOpen, or a *resilience.BudgetExceededError.
func (g *guard) run(ctx context.Context, endpoint string, fn func(context.Context) error) error {
	if g.budget != nil {
		if _, err := g.budget.Check(ctx); err != nil {
			return err
		}
	}
	if !g.breaker.Allow() {
		return resilience.ErrCircuitOpen
	}

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "error"
		g.breaker.RecordFailure(err)
	} else {
		g.breaker.RecordSuccess()
	}
	resilience.RecordProviderCall(g.name, outcome, elapsed)

	if g.calls != nil {
		rec := catalog.ProviderCallRecord{
			Provider: g.name,
			Endpoint: endpoint,
			Outcome:  outcome,
			Duration: elapsed,
			CalledAt: time.Now(),
		}
		if logErr := g.calls.InsertProviderCall(ctx, rec); logErr != nil {
			g.logger.Warn().Err(logErr).Str("provider", g.name).Msg("failed to log provider call")
		}
	}
	return err
}

// Breaker exposes the provider's circuit breaker for admin reset.
func (g *guard) Breaker() *resilience.Breaker {
	return g.breaker
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

func stripHTML(s string) string {
	return htmlTagRe.ReplaceAllString(s, "")
}

package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// BudgetExceededError is raised when metered provider usage crosses the
// critical ratio of the monthly cap. Calls must be refused, not attempted.
type BudgetExceededError struct {
	Used      int
	Threshold int
	Limit     int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("monthly call budget exceeded: used=%d critical_threshold=%d limit=%d",
		e.Used, e.Threshold, e.Limit)
}

// CallCounter reports how many metered provider calls happened since a point
// in time, typically backed by the persisted provider call log.
type CallCounter interface {
	CountProviderCallsSince(ctx context.Context, since time.Time) (int, error)
}

// BudgetConfig holds the monthly call budget policy.
type BudgetConfig struct {
	MonthlyLimit  int     // 0 disables budget enforcement
	WarningRatio  float64 // usage ratio that surfaces a warning
	CriticalRatio float64 // usage ratio at which calls are refused
}

// DefaultBudgetConfig returns the default budget policy.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		MonthlyLimit:  300000,
		WarningRatio:  0.80,
		CriticalRatio: 0.95,
	}
}

// BudgetStatus is the result of a budget check.
type BudgetStatus struct {
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	IsWarning bool `json:"isWarning"`
}

// Budget enforces the monthly external-call budget from the call log.
type Budget struct {
	counter CallCounter
	config  BudgetConfig
	logger  zerolog.Logger
	clock   func() time.Time
}

// NewBudget creates a budget checker over the given call counter.
func NewBudget(counter CallCounter, config BudgetConfig) *Budget {
	return &Budget{
		counter: counter,
		config:  config,
		logger:  log.With().Str("component", "call_budget").Logger(),
		clock:   time.Now,
	}
}

// Check verifies the current month's usage against the budget. It returns a
// *BudgetExceededError once the critical threshold is crossed; the warning
// threshold is surfaced in the status but never blocks.
func (b *Budget) Check(ctx context.Context) (BudgetStatus, error) {
	limit := b.config.MonthlyLimit
	if limit <= 0 {
		return BudgetStatus{}, nil
	}

	now := b.clock().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	used, err := b.counter.CountProviderCallsSince(ctx, monthStart)
	if err != nil {
		return BudgetStatus{}, fmt.Errorf("count provider calls: %w", err)
	}

	recordBudgetUsage(used, limit)

	status := BudgetStatus{Used: used, Limit: limit}
	critical := int(float64(limit) * b.config.CriticalRatio)
	warning := int(float64(limit) * b.config.WarningRatio)

	if used >= critical {
		return status, &BudgetExceededError{Used: used, Threshold: critical, Limit: limit}
	}
	if used >= warning {
		status.IsWarning = true
		b.logger.Warn().Int("used", used).Int("limit", limit).Msg("call budget warning threshold crossed")
	}
	return status, nil
}

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// CleanupConfig configures retention policies for cleanup jobs
type CleanupConfig struct {
	CallLogRetentionDays   int
	ExecutionRetentionDays int
	SelectionRetentionDays int
}

// DefaultCleanupConfig returns sensible retention defaults. Call-log rows
// older than two full months no longer affect the monthly budget and can go.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		CallLogRetentionDays:   62,
		ExecutionRetentionDays: 90,
		SelectionRetentionDays: 180,
	}
}

// CleanupProviderCalls removes provider call-log rows past retention.
// Returns the number of rows deleted.
func CleanupProviderCalls(ctx context.Context, cfg CleanupConfig) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -cfg.CallLogRetentionDays)

	result, err := getPool().Exec(ctx, `
		DELETE FROM provider_calls
		WHERE called_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup provider calls: %w", err)
	}

	deleted := int(result.RowsAffected())
	log.Info().Int("rows_deleted", deleted).Time("cutoff", cutoff).Msg("cleaned up provider call log")
	return deleted, nil
}

// CleanupExecutionLogs removes plan execution rows past retention.
func CleanupExecutionLogs(ctx context.Context, cfg CleanupConfig) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -cfg.ExecutionRetentionDays)

	result, err := getPool().Exec(ctx, `
		DELETE FROM plan_executions
		WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup execution logs: %w", err)
	}

	deleted := int(result.RowsAffected())
	log.Info().Int("rows_deleted", deleted).Time("cutoff", cutoff).Msg("cleaned up execution log")
	return deleted, nil
}

// CleanupSelectionLogs removes plan selection rows past retention. Selections
// are kept longest since they feed preference analysis.
func CleanupSelectionLogs(ctx context.Context, cfg CleanupConfig) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -cfg.SelectionRetentionDays)

	result, err := getPool().Exec(ctx, `
		DELETE FROM plan_selections
		WHERE selected_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup selection logs: %w", err)
	}

	deleted := int(result.RowsAffected())
	log.Info().Int("rows_deleted", deleted).Time("cutoff", cutoff).Msg("cleaned up selection log")
	return deleted, nil
}

// RunRetention runs every cleanup job once, continuing past individual
// failures.
func RunRetention(ctx context.Context, cfg CleanupConfig) error {
	var firstErr error
	if _, err := CleanupProviderCalls(ctx, cfg); err != nil {
		firstErr = err
	}
	if _, err := CleanupExecutionLogs(ctx, cfg); err != nil && firstErr == nil {
		firstErr = err
	}
	if _, err := CleanupSelectionLogs(ctx, cfg); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// getPool returns the database connection pool
// This is a bridge to the database package to avoid circular dependencies
func getPool() *pgxpool.Pool {
	return dbPoolGetter()
}

// dbPoolGetter is a function that returns the database pool
// This will be set by the database package initialization
var dbPoolGetter func() *pgxpool.Pool

// RegisterDBPoolGetter registers the database pool getter function
// This should be called from the database package initialization
func RegisterDBPoolGetter(getter func() *pgxpool.Pool) {
	dbPoolGetter = getter
}

package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ddokjang/plan-service/internal/matching"
	"github.com/ddokjang/plan-service/internal/planner"
)

// Repository provides catalog reads and audit-log writes over Postgres.
type Repository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewRepository creates a Repository over the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:   pool,
		logger: log.With().Str("component", "catalog_repository").Logger(),
	}
}

// SearchCandidates returns products whose normalized name or aliases contain
// any of the query tokens. Implements the matcher's candidate source.
func (r *Repository) SearchCandidates(ctx context.Context, query string, tokens []string, limit int) ([]matching.Candidate, error) {
	if limit <= 0 {
		limit = 80
	}

	patterns := make([]string, 0, len(tokens)+1)
	if query != "" {
		patterns = append(patterns, "%"+query+"%")
	}
	for _, tok := range tokens {
		patterns = append(patterns, "%"+tok+"%")
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT p.product_key, p.normalized_name, p.brand, p.size_display, p.category,
		       COALESCE(array_agg(pa.alias) FILTER (WHERE pa.alias IS NOT NULL), '{}') AS aliases
		FROM products p
		LEFT JOIN product_aliases pa ON pa.product_key = p.product_key
		WHERE p.normalized_name ILIKE ANY($1)
		   OR EXISTS (
			SELECT 1 FROM product_aliases a
			WHERE a.product_key = p.product_key AND a.alias ILIKE ANY($1)
		   )
		GROUP BY p.product_key, p.normalized_name, p.brand, p.size_display, p.category
		ORDER BY p.product_key
		LIMIT $2
	`, patterns, limit)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// FallbackCandidates returns the most recently updated products, used when a
// token search finds nothing.
func (r *Repository) FallbackCandidates(ctx context.Context, limit int) ([]matching.Candidate, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx, `
		SELECT p.product_key, p.normalized_name, p.brand, p.size_display, p.category,
		       COALESCE(array_agg(pa.alias) FILTER (WHERE pa.alias IS NOT NULL), '{}') AS aliases
		FROM products p
		LEFT JOIN product_aliases pa ON pa.product_key = p.product_key
		GROUP BY p.product_key, p.normalized_name, p.brand, p.size_display, p.category, p.updated_at
		ORDER BY p.updated_at DESC, p.product_key
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fallback candidates: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

func scanCandidates(rows pgx.Rows) ([]matching.Candidate, error) {
	var candidates []matching.Candidate
	for rows.Next() {
		var c matching.Candidate
		if err := rows.Scan(&c.ProductKey, &c.NormalizedName, &c.Brand, &c.SizeDisplay, &c.Category, &c.Aliases); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return candidates, nil
}

// StoresWithinBox returns active stores inside the bounding box, closest-first
// ordering left to the caller who knows the exact user point.
func (r *Repository) StoresWithinBox(ctx context.Context, box planner.BoundingBox, limit int) ([]planner.StoreCandidate, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx, `
		SELECT store_id, name, address, lat, lng, category, source, is_active, updated_at
		FROM stores
		WHERE is_active = TRUE
		  AND lat BETWEEN $1 AND $2
		  AND lng BETWEEN $3 AND $4
		ORDER BY updated_at DESC, store_id
		LIMIT $5
	`, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng, limit)
	if err != nil {
		return nil, fmt.Errorf("stores within box: %w", err)
	}
	defer rows.Close()

	return scanStores(rows)
}

// RecentActiveStores returns the most recently updated active stores. Used as
// the last-resort candidate fallback when geo search finds nothing.
func (r *Repository) RecentActiveStores(ctx context.Context, limit int) ([]planner.StoreCandidate, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := r.pool.Query(ctx, `
		SELECT store_id, name, address, lat, lng, category, source, is_active, updated_at
		FROM stores
		WHERE is_active = TRUE
		ORDER BY updated_at DESC, store_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent active stores: %w", err)
	}
	defer rows.Close()

	return scanStores(rows)
}

func scanStores(rows pgx.Rows) ([]planner.StoreCandidate, error) {
	var stores []planner.StoreCandidate
	for rows.Next() {
		var s planner.StoreCandidate
		if err := rows.Scan(&s.StoreID, &s.Name, &s.Address, &s.Lat, &s.Lng, &s.Category, &s.Source, &s.IsActive, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stores: %w", err)
	}
	return stores, nil
}

// StoreByID returns one store or pgx.ErrNoRows wrapped.
func (r *Repository) StoreByID(ctx context.Context, storeID string) (*planner.StoreCandidate, error) {
	var s planner.StoreCandidate
	err := r.pool.QueryRow(ctx, `
		SELECT store_id, name, address, lat, lng, category, source, is_active, updated_at
		FROM stores
		WHERE store_id = $1
	`, storeID).Scan(&s.StoreID, &s.Name, &s.Address, &s.Lat, &s.Lng, &s.Category, &s.Source, &s.IsActive, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store by id %s: %w", storeID, err)
	}
	return &s, nil
}

// UpsertStores persists provider-discovered stores so future requests can
// serve them without a provider call. Existing rows keep their store_id.
func (r *Repository) UpsertStores(ctx context.Context, stores []planner.StoreCandidate) error {
	if len(stores) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	now := time.Now()
	for _, s := range stores {
		batch.Queue(`
			INSERT INTO stores (store_id, name, address, lat, lng, category, source, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $8)
			ON CONFLICT (store_id) DO UPDATE SET
				name = EXCLUDED.name,
				address = EXCLUDED.address,
				lat = EXCLUDED.lat,
				lng = EXCLUDED.lng,
				category = EXCLUDED.category,
				source = EXCLUDED.source,
				is_active = TRUE,
				updated_at = EXCLUDED.updated_at
		`, s.StoreID, s.Name, s.Address, s.Lat, s.Lng, s.Category, s.Source, now)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range stores {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert store: %w", err)
		}
	}
	return nil
}

// DistinctStoreCategories returns the categories of known stores, used by the
// place provider to fan out one search per category.
func (r *Repository) DistinctStoreCategories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT category FROM stores
		WHERE category <> '' AND is_active = TRUE
		ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("store categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// LatestSnapshots returns, for each (store, product) pair, the single most
// recent price observation. Older snapshots never contribute to totals.
func (r *Repository) LatestSnapshots(ctx context.Context, storeIDs, productKeys []string) ([]planner.PriceSnapshot, error) {
	if len(storeIDs) == 0 || len(productKeys) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (store_id, product_key)
		       store_id, product_key, price, observed_at, source, COALESCE(notice, '')
		FROM price_snapshots
		WHERE store_id = ANY($1) AND product_key = ANY($2)
		ORDER BY store_id, product_key, observed_at DESC
	`, storeIDs, productKeys)
	if err != nil {
		return nil, fmt.Errorf("latest snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []planner.PriceSnapshot
	for rows.Next() {
		var s planner.PriceSnapshot
		if err := rows.Scan(&s.StoreID, &s.ProductKey, &s.Price, &s.ObservedAt, &s.Source, &s.Notice); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// CheapestVariant returns the cheapest in-stock product at the store whose
// normalized name shares the given name, excluding one product key. Used to
// suggest a same-name substitute for a missing exact match.
func (r *Repository) CheapestVariant(ctx context.Context, storeID, normalizedName, excludeKey string) (*planner.Alternative, error) {
	name := strings.TrimSpace(normalizedName)
	if name == "" {
		return nil, nil
	}

	var alt planner.Alternative
	err := r.pool.QueryRow(ctx, `
		SELECT p.display_name, p.brand, s.price
		FROM price_snapshots s
		JOIN products p ON p.product_key = s.product_key
		WHERE s.store_id = $1
		  AND p.normalized_name ILIKE $2
		  AND p.product_key <> $3
		ORDER BY s.observed_at DESC, s.price ASC
		LIMIT 1
	`, storeID, "%"+name+"%", excludeKey).Scan(&alt.ItemName, &alt.Brand, &alt.UnitPrice)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("cheapest variant: %w", err)
	}
	return &alt, nil
}

// CategoryAlternative returns the cheapest product at the store within the
// given category, a weaker substitute when no same-name variant exists.
func (r *Repository) CategoryAlternative(ctx context.Context, storeID, category string) (*planner.Alternative, error) {
	if category == "" {
		return nil, nil
	}

	var alt planner.Alternative
	err := r.pool.QueryRow(ctx, `
		SELECT p.display_name, p.brand, s.price
		FROM price_snapshots s
		JOIN products p ON p.product_key = s.product_key
		WHERE s.store_id = $1 AND p.category = $2
		ORDER BY s.price ASC, s.observed_at DESC
		LIMIT 1
	`, storeID, category).Scan(&alt.ItemName, &alt.Brand, &alt.UnitPrice)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("category alternative: %w", err)
	}
	return &alt, nil
}

// UserPreferences loads a user's brand profile. A missing profile is not an
// error; an empty profile is returned.
func (r *Repository) UserPreferences(ctx context.Context, userID string) (*UserPreferences, error) {
	if userID == "" {
		return &UserPreferences{}, nil
	}

	prefs := UserPreferences{UserID: userID}
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(preferred_brands, '{}'), COALESCE(disliked_brands, '{}')
		FROM user_preferences
		WHERE user_id = $1
	`, userID).Scan(&prefs.PreferredBrands, &prefs.DislikedBrands)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &UserPreferences{UserID: userID}, nil
		}
		return nil, fmt.Errorf("user preferences: %w", err)
	}
	return &prefs, nil
}

// BrandPreferences adapts the preference profile to the shape the matcher
// consumes.
func (r *Repository) BrandPreferences(ctx context.Context, userID string) (preferred, disliked []string, err error) {
	prefs, err := r.UserPreferences(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return prefs.PreferredBrands, prefs.DislikedBrands, nil
}

// LogExecution persists one plan-generation run.
func (r *Repository) LogExecution(ctx context.Context, rec planner.ExecutionLog) error {
	return r.InsertExecution(ctx, ExecutionRecord{
		RequestID:     rec.RequestID,
		UserID:        rec.UserID,
		ItemCount:     rec.ItemCount,
		PlanCount:     rec.PlanCount,
		Degraded:      rec.Degraded,
		Duration:      time.Duration(rec.DurationMs) * time.Millisecond,
		FailureReason: rec.FailureReason,
		CreatedAt:     time.Now().UTC(),
	})
}

// LogSelection persists one confirmed plan choice.
func (r *Repository) LogSelection(ctx context.Context, rec planner.SelectionLog) error {
	return r.InsertSelection(ctx, SelectionRecord{
		RequestID:  rec.RequestID,
		PlanType:   rec.PlanType,
		StoreID:    rec.StoreID,
		SelectedAt: time.Now().UTC(),
	})
}

// InsertExecution logs a completed plan-generation run.
func (r *Repository) InsertExecution(ctx context.Context, rec ExecutionRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO plan_executions (request_id, user_id, item_count, plan_count, degraded, duration_ms, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.RequestID, rec.UserID, rec.ItemCount, rec.PlanCount, rec.Degraded,
		rec.Duration.Milliseconds(), rec.FailureReason, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// InsertSelection logs a confirmed plan choice.
func (r *Repository) InsertSelection(ctx context.Context, rec SelectionRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO plan_selections (request_id, plan_type, store_id, selected_at)
		VALUES ($1, $2, $3, $4)
	`, rec.RequestID, rec.PlanType, rec.StoreID, rec.SelectedAt)
	if err != nil {
		return fmt.Errorf("insert selection: %w", err)
	}
	return nil
}

// InsertProviderCall logs one outbound provider call.
func (r *Repository) InsertProviderCall(ctx context.Context, rec ProviderCallRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_calls (provider, endpoint, outcome, duration_ms, request_id, called_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.Provider, rec.Endpoint, rec.Outcome, rec.Duration.Milliseconds(), rec.RequestID, rec.CalledAt)
	if err != nil {
		return fmt.Errorf("insert provider call: %w", err)
	}
	return nil
}

// CountProviderCallsSince counts outbound calls made at or after since.
// Backs the monthly call budget.
func (r *Repository) CountProviderCallsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM provider_calls WHERE called_at >= $1
	`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count provider calls: %w", err)
	}
	return count, nil
}

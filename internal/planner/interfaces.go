package planner

import (
	"context"

	"github.com/ddokjang/plan-service/internal/matching"
)

// ProductMatcher resolves one free-text basket entry against the catalog.
type ProductMatcher interface {
	Match(ctx context.Context, item matching.Item, preferredBrands, dislikedBrands []string) (*matching.Result, error)
}

// StoreDirectory is the catalog's store surface.
type StoreDirectory interface {
	StoresWithinBox(ctx context.Context, box BoundingBox, limit int) ([]StoreCandidate, error)
	RecentActiveStores(ctx context.Context, limit int) ([]StoreCandidate, error)
	StoreByID(ctx context.Context, storeID string) (*StoreCandidate, error)
	UpsertStores(ctx context.Context, stores []StoreCandidate) error
	DistinctStoreCategories(ctx context.Context) ([]string, error)
}

// PriceReader is the catalog's price-snapshot surface.
type PriceReader interface {
	LatestSnapshots(ctx context.Context, storeIDs, productKeys []string) ([]PriceSnapshot, error)
	CheapestVariant(ctx context.Context, storeID, normalizedName, excludeKey string) (*Alternative, error)
	CategoryAlternative(ctx context.Context, storeID, category string) (*Alternative, error)
}

// PreferenceSource loads a user's brand profile for match scoring.
type PreferenceSource interface {
	BrandPreferences(ctx context.Context, userID string) (preferred, disliked []string, err error)
}

// PlaceSearcher finds stores near a point through an external API.
type PlaceSearcher interface {
	SearchNearbyStores(ctx context.Context, lat, lng float64, categories []string, radiusKm float64) ([]StoreCandidate, error)
	Configured() bool
}

// RouteEstimator returns live car routes. Other modes have no live API and
// always use the geometric fallback.
type RouteEstimator interface {
	DrivingRoute(ctx context.Context, fromLat, fromLng, toLat, toLng float64) (*RouteEstimate, error)
	Configured() bool
}

// WeatherAdvisor returns the informational weather note for a location.
type WeatherAdvisor interface {
	AdvisoryNote(ctx context.Context, lat, lng float64) (string, error)
	Configured() bool
}

// PriceSearcher finds online unit-price quotes for a basket item.
type PriceSearcher interface {
	SearchPrices(ctx context.Context, item BasketItem) ([]PriceQuote, error)
	Configured() bool
}

// ExecutionLog records one plan-generation run.
type ExecutionLog struct {
	RequestID     string
	UserID        string
	ItemCount     int
	PlanCount     int
	Degraded      []string
	DurationMs    int64
	FailureReason string
}

// SelectionLog records one confirmed plan choice.
type SelectionLog struct {
	RequestID string
	PlanType  string
	StoreID   string
}

// AuditLogger persists execution and selection logs.
type AuditLogger interface {
	LogExecution(ctx context.Context, rec ExecutionLog) error
	LogSelection(ctx context.Context, rec SelectionLog) error
}

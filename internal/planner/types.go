package planner

import (
	"fmt"
	"time"

	"github.com/ddokjang/plan-service/internal/matching"
)

// TravelMode is how the user reaches a store.
type TravelMode string

const (
	ModeWalk    TravelMode = "walk"
	ModeTransit TravelMode = "transit"
	ModeCar     TravelMode = "car"
)

// Valid reports whether the mode is one of the supported values.
func (m TravelMode) Valid() bool {
	switch m {
	case ModeWalk, ModeTransit, ModeCar:
		return true
	}
	return false
}

// PlanType identifies one of the three ranked purchase plans.
type PlanType string

const (
	PlanCheapest PlanType = "cheapest"
	PlanNearest  PlanType = "nearest"
	PlanBalanced PlanType = "balanced"
)

// BasketItem is a single free-text basket entry. Immutable pipeline input.
type BasketItem struct {
	ItemName string `json:"itemName"`
	Brand    string `json:"brand,omitempty"`
	Size     string `json:"size,omitempty"`
	Quantity int    `json:"quantity"`
}

// UserContext carries the requester's location and travel constraints.
type UserContext struct {
	Lat              float64    `json:"lat"`
	Lng              float64    `json:"lng"`
	TravelMode       TravelMode `json:"travelMode"`
	MaxTravelMinutes int        `json:"maxTravelMinutes"`
}

// PlanRequest is the plan-generation input.
type PlanRequest struct {
	Items       []BasketItem `json:"items"`
	UserContext UserContext  `json:"userContext"`

	// UserID selects the preference profile (preferred/disliked brands).
	// Empty means no profile.
	UserID string `json:"userId,omitempty"`
}

// Validate checks the request invariants.
func (r *PlanRequest) Validate(maxItems int) error {
	if len(r.Items) < 1 {
		return ErrInvalidRequest{Field: "items", Reason: "must have at least one item"}
	}
	if maxItems > 0 && len(r.Items) > maxItems {
		return ErrInvalidRequest{Field: "items", Reason: "exceeds maximum allowed"}
	}
	for i, item := range r.Items {
		if item.ItemName == "" {
			return ErrInvalidRequest{Field: "items", Reason: fmt.Sprintf("item at index %d has empty name", i)}
		}
		if item.Quantity < 1 {
			return ErrInvalidRequest{Field: "items", Reason: fmt.Sprintf("item at index %d has invalid quantity", i)}
		}
	}
	if r.UserContext.Lat < -90 || r.UserContext.Lat > 90 {
		return ErrInvalidRequest{Field: "userContext.lat", Reason: "must be between -90 and 90"}
	}
	if r.UserContext.Lng < -180 || r.UserContext.Lng > 180 {
		return ErrInvalidRequest{Field: "userContext.lng", Reason: "must be between -180 and 180"}
	}
	if !r.UserContext.TravelMode.Valid() {
		return ErrInvalidRequest{Field: "userContext.travelMode", Reason: "must be walk, transit or car"}
	}
	if r.UserContext.MaxTravelMinutes < 1 {
		return ErrInvalidRequest{Field: "userContext.maxTravelMinutes", Reason: "must be at least 1"}
	}
	return nil
}

// MatchedProduct pairs a basket entry with its resolved catalog product.
type MatchedProduct struct {
	ProductKey     string
	NormalizedName string
	Brand          string
	SizeDisplay    string
	Quantity       int
	Original       BasketItem
}

// StoreCandidate is a store considered for plan generation.
type StoreCandidate struct {
	StoreID   string    `json:"storeId"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Category  string    `json:"category"`
	Source    string    `json:"source"` // "local" or "external"
	IsActive  bool      `json:"isActive"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RouteEstimate is the travel estimate from the user to a store.
type RouteEstimate struct {
	DistanceKm    float64 `json:"distanceKm"`
	TravelMinutes int     `json:"travelMinutes"`

	// IsEstimated is true when a provider call failed (or the mode has no
	// live API) and the geometric fallback was used.
	IsEstimated bool `json:"isEstimated"`
}

// PriceSnapshot is an observed price for a product at a store. Only the most
// recent snapshot per (store, product) pair is authoritative.
type PriceSnapshot struct {
	StoreID    string    `json:"storeId"`
	ProductKey string    `json:"productKey"`
	Price      int64     `json:"price"` // minor currency units (won)
	ObservedAt time.Time `json:"observedAt"`
	Source     string    `json:"source"`
	Notice     string    `json:"notice,omitempty"`
}

// Alternative is a substitute suggestion for an item a store cannot supply.
type Alternative struct {
	ItemName  string `json:"itemName"`
	Brand     string `json:"brand,omitempty"`
	UnitPrice int64  `json:"unitPrice"`
	Tag       string `json:"tag,omitempty"`
}

// MatchedItem is a basket entry a store can supply, priced.
type MatchedItem struct {
	ItemName    string     `json:"itemName"`
	Brand       string     `json:"brand,omitempty"`
	SizeDisplay string     `json:"sizeDisplay,omitempty"`
	Quantity    int        `json:"quantity"`
	UnitPrice   int64      `json:"unitPrice"`
	Subtotal    int64      `json:"subtotal"`
	Tag         string     `json:"tag,omitempty"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty"`
}

// MissingItem is a basket entry a store cannot supply.
type MissingItem struct {
	ItemName    string       `json:"itemName"`
	Reason      string       `json:"reason"`
	Alternative *Alternative `json:"alternative,omitempty"`
}

// StoreScore is the per-store evaluation aggregate fed to the ranking engine.
type StoreScore struct {
	StoreID       string        `json:"storeId"`
	StoreName     string        `json:"storeName"`
	StoreAddress  string        `json:"storeAddress"`
	TotalPrice    int64         `json:"totalPrice"`
	CoverageRatio float64       `json:"coverageRatio"`
	TravelMinutes int           `json:"travelMinutes"`
	DistanceKm    float64       `json:"distanceKm"`
	MatchedItems  []MatchedItem `json:"matchedItems"`
	MissingItems  []MissingItem `json:"missingItems"`
	PriceSource   string        `json:"priceSource"`
	ObservedAt    time.Time     `json:"observedAt"`

	balancedScore float64
}

// Plan is one ranked purchase recommendation.
type Plan struct {
	PlanType      PlanType              `json:"planType"`
	StoreID       string                `json:"storeId"`
	StoreName     string                `json:"storeName"`
	StoreAddress  string                `json:"storeAddress"`
	TotalPrice    int64                 `json:"totalPrice"`
	CoverageRatio float64               `json:"coverageRatio"`
	TravelMinutes int                   `json:"travelMinutes"`
	DistanceKm    float64               `json:"distanceKm"`
	Explanation   string                `json:"explanation"`
	MatchedItems  []MatchedItem         `json:"matchedItems"`
	MissingItems  []MissingItem         `json:"missingItems"`
	Assumptions   []matching.Assumption `json:"assumptions,omitempty"`
	WeatherNote   string                `json:"weatherNote,omitempty"`
	PriceSource   string                `json:"priceSource"`
	ObservedAt    time.Time             `json:"observedAt"`
	PriceNotice   string                `json:"priceNotice,omitempty"`
}

// PlanMeta carries request-level response metadata.
type PlanMeta struct {
	RequestID         string    `json:"requestId"`
	GeneratedAt       time.Time `json:"generatedAt"`
	DegradedProviders []string  `json:"degradedProviders"`
}

// PlanResponse is the plan-generation output.
type PlanResponse struct {
	Plans []Plan   `json:"plans"`
	Meta  PlanMeta `json:"meta"`
}

// SelectRequest confirms the user's plan choice.
type SelectRequest struct {
	RequestID        string   `json:"requestId"`
	SelectedPlanType PlanType `json:"selectedPlanType"`
	StoreID          string   `json:"storeId"`
}

// SelectResponse acknowledges a plan selection with navigation details.
type SelectResponse struct {
	Status        string    `json:"status"`
	StoreName     string    `json:"storeName"`
	StoreAddress  string    `json:"storeAddress"`
	NavigationURL string    `json:"navigationUrl"`
	SelectedAt    time.Time `json:"selectedAt"`
}

// PriceQuote is an externally-sourced unit price candidate for one item,
// subject to the outlier guard before use.
type PriceQuote struct {
	ItemName  string `json:"itemName"`
	Title     string `json:"title"`
	MallName  string `json:"mallName"`
	Brand     string `json:"brand,omitempty"`
	UnitPrice int64  `json:"unitPrice"`
	Link      string `json:"link,omitempty"`
}

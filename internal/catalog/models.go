package catalog

import "time"

// Product is a canonical catalog product.
type Product struct {
	ProductKey     string    `json:"productKey"`
	NormalizedName string    `json:"normalizedName"`
	DisplayName    string    `json:"displayName"`
	Brand          string    `json:"brand,omitempty"`
	SizeDisplay    string    `json:"sizeDisplay,omitempty"`
	Category       string    `json:"category,omitempty"`
	Aliases        []string  `json:"aliases,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Store is a physical store known to the catalog, either seeded locally or
// discovered through a place provider.
type Store struct {
	StoreID   string    `json:"storeId"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Category  string    `json:"category"`
	Source    string    `json:"source"`
	IsActive  bool      `json:"isActive"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserPreferences holds a user's brand affinities used for match scoring.
type UserPreferences struct {
	UserID          string   `json:"userId"`
	PreferredBrands []string `json:"preferredBrands"`
	DislikedBrands  []string `json:"dislikedBrands"`
}

// SelectionRecord logs a confirmed plan choice.
type SelectionRecord struct {
	RequestID  string    `json:"requestId"`
	PlanType   string    `json:"planType"`
	StoreID    string    `json:"storeId"`
	SelectedAt time.Time `json:"selectedAt"`
}

// ExecutionRecord logs one plan-generation run for auditing.
type ExecutionRecord struct {
	RequestID     string        `json:"requestId"`
	UserID        string        `json:"userId,omitempty"`
	ItemCount     int           `json:"itemCount"`
	PlanCount     int           `json:"planCount"`
	Degraded      []string      `json:"degraded,omitempty"`
	Duration      time.Duration `json:"duration"`
	FailureReason string        `json:"failureReason,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// ProviderCallRecord logs one outbound provider call, the basis of the
// monthly call budget.
type ProviderCallRecord struct {
	Provider  string        `json:"provider"`
	Endpoint  string        `json:"endpoint"`
	Outcome   string        `json:"outcome"`
	Duration  time.Duration `json:"duration"`
	CalledAt  time.Time     `json:"calledAt"`
	RequestID string        `json:"requestId,omitempty"`
}

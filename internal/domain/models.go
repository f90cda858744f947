package domain

import "time"

const (
	DefaultLowStockThreshold = 5
	DefaultTargetStockLevel  = 10
)

const (
	ProductStatusAvailable  = "available"
	ProductStatusOutOfStock = "out_of_stock"
)

const (
	AlertStatusActive   = "active"
	AlertStatusResolved = "resolved"
)

const (
	OrderStatusDraft     = "draft"
	OrderStatusConfirmed = "confirmed"
	OrderStatusCancelled = "cancelled"
	OrderStatusReceived  = "received"
)

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

type Kiosk struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID                string     `json:"id"`
	KioskID           string     `json:"kiosk_id,omitempty"`
	Name              string     `json:"name"`
	Category          string     `json:"category,omitempty"`
	PriceCents        int64      `json:"price_cents"`
	DiscountPercent   float64    `json:"discount_percent,omitempty"`
	DiscountStartAt   *time.Time `json:"discount_start_at,omitempty"`
	DiscountEndAt     *time.Time `json:"discount_end_at,omitempty"`
	Quantity          int        `json:"quantity"`
	LowStockThreshold int        `json:"low_stock_threshold"`
	TargetStockLevel  int        `json:"target_stock_level"`
	AutoReorder       bool       `json:"auto_reorder"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// DiscountActiveAt reports whether the product's discount window covers t.
// A missing bound leaves that side of the window open.
func (p Product) DiscountActiveAt(t time.Time) bool {
	if p.DiscountPercent <= 0 {
		return false
	}
	if p.DiscountStartAt != nil && t.Before(*p.DiscountStartAt) {
		return false
	}
	if p.DiscountEndAt != nil && t.After(*p.DiscountEndAt) {
		return false
	}
	return true
}

// EffectiveThreshold returns the stored low-stock threshold, or the default
// when the product was created without one.
func (p Product) EffectiveThreshold() int {
	if p.LowStockThreshold > 0 {
		return p.LowStockThreshold
	}
	return DefaultLowStockThreshold
}

// EffectiveTarget returns the replenishment target, coerced to never sit
// below the alert threshold.
func (p Product) EffectiveTarget() int {
	target := p.TargetStockLevel
	if target <= 0 {
		target = DefaultTargetStockLevel
	}
	if threshold := p.EffectiveThreshold(); target < threshold {
		return threshold
	}
	return target
}

// LowStock reports whether the product is at or below its effective threshold.
func (p Product) LowStock() bool {
	return p.Quantity <= p.EffectiveThreshold()
}

type ProductCreateRequest struct {
	KioskID           string     `json:"kiosk_id,omitempty"`
	Name              string     `json:"name"`
	Category          string     `json:"category,omitempty"`
	PriceCents        int64      `json:"price_cents"`
	DiscountPercent   float64    `json:"discount_percent,omitempty"`
	DiscountStartAt   *time.Time `json:"discount_start_at,omitempty"`
	DiscountEndAt     *time.Time `json:"discount_end_at,omitempty"`
	Quantity          int        `json:"quantity"`
	LowStockThreshold int        `json:"low_stock_threshold,omitempty"`
	TargetStockLevel  int        `json:"target_stock_level,omitempty"`
	AutoReorder       bool       `json:"auto_reorder"`
}

type ProductUpdateRequest struct {
	Name              *string    `json:"name,omitempty"`
	Category          *string    `json:"category,omitempty"`
	PriceCents        *int64     `json:"price_cents,omitempty"`
	DiscountPercent   *float64   `json:"discount_percent,omitempty"`
	DiscountStartAt   *time.Time `json:"discount_start_at,omitempty"`
	DiscountEndAt     *time.Time `json:"discount_end_at,omitempty"`
	LowStockThreshold *int       `json:"low_stock_threshold,omitempty"`
	TargetStockLevel  *int       `json:"target_stock_level,omitempty"`
	AutoReorder       *bool      `json:"auto_reorder,omitempty"`
}

// AdjustStockRequest carries a manual stock correction. Exactly one of
// Quantity (absolute) or Delta (relative) must be set.
type AdjustStockRequest struct {
	Quantity *int `json:"quantity,omitempty"`
	Delta    *int `json:"delta,omitempty"`
}

type Sale struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"product_id"`
	KioskID        string    `json:"kiosk_id,omitempty"`
	SellerID       string    `json:"seller_id"`
	CustomerID     string    `json:"customer_id,omitempty"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	TotalCents     int64     `json:"total_cents"`
	CreatedAt      time.Time `json:"created_at"`

	// Denormalized display fields, filled on creation for the response.
	ProductName string `json:"product_name,omitempty"`
	SellerName  string `json:"seller_name,omitempty"`
	KioskName   string `json:"kiosk_name,omitempty"`
}

type SaleCreateRequest struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	CustomerID string `json:"customer_id,omitempty"`
}

type StockAlert struct {
	ID                string     `json:"id"`
	ProductID         string     `json:"product_id"`
	KioskID           string     `json:"kiosk_id"`
	Status            string     `json:"status"`
	Threshold         int        `json:"threshold"`
	QuantityAtTrigger int        `json:"quantity_at_trigger"`
	TriggeredAt       time.Time  `json:"triggered_at"`
	LastCheckedAt     time.Time  `json:"last_checked_at"`
	LastNotifiedAt    *time.Time `json:"last_notified_at,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
}

type PurchaseOrderItem struct {
	OrderID        string    `json:"order_id"`
	ProductID      string    `json:"product_id"`
	CurrentQty     int       `json:"current_qty"`
	Threshold      int       `json:"threshold"`
	TargetLevel    int       `json:"target_level"`
	RecommendedQty int       `json:"recommended_qty"`
	SyncedAt       time.Time `json:"synced_at"`
}

type PurchaseOrder struct {
	ID            string              `json:"id"`
	KioskID       string              `json:"kiosk_id"`
	Status        string              `json:"status"`
	AutoGenerated bool                `json:"auto_generated"`
	CreatedAt     time.Time           `json:"created_at"`
	ConfirmedAt   *time.Time          `json:"confirmed_at,omitempty"`
	Items         []PurchaseOrderItem `json:"items"`
}

type Customer struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone,omitempty"`
	TotalSpentCents int64      `json:"total_spent_cents"`
	PurchaseCount   int        `json:"purchase_count"`
	LoyaltyPoints   int64      `json:"loyalty_points"`
	LastVisitAt     *time.Time `json:"last_visit_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type SellerAchievement struct {
	ID       string    `json:"id"`
	SellerID string    `json:"seller_id"`
	Code     string    `json:"code"`
	Day      string    `json:"day"`
	EarnedAt time.Time `json:"earned_at"`
}

type LowStockSummary struct {
	KioskID         string `json:"kiosk_id"`
	ActiveAlerts    int    `json:"active_alerts"`
	LowProducts     int    `json:"low_products"`
	DraftOrderLines int    `json:"draft_order_lines"`
	GeneratedAt     string `json:"generated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	KioskID     string `json:"kiosk_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type SellerCreateRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
	KioskID  string `json:"kiosk_id"`
}

type SellerUser struct {
	Username  string    `json:"username"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role"`
	KioskID   string    `json:"kiosk_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Actor struct {
	Username string
	Role     string
	KioskID  string
}

// Privileged reports whether the actor can act across kiosks and on sales
// recorded by other sellers.
func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Name      string
	Password  string
	Role      string
	KioskID   string
	Active    bool
	CreatedAt time.Time
}

package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kiostara/backend/internal/cache"
	"kiostara/backend/internal/cascade"
	"kiostara/backend/internal/domain"
	"kiostara/backend/internal/reconcile"
	"kiostara/backend/internal/store"
	"kiostara/backend/internal/xid"
)

// CancelWindow bounds how long after creation a sale may still be cancelled.
const CancelWindow = 30 * time.Minute

// Sellers earn one loyalty point for the customer per this many cents spent,
// and an achievement once they record this many sales in a single UTC day.
const (
	loyaltyPointStepCents = 1000
	dailySalesTarget      = 10
	dailySalesCode        = "daily_sales_10"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	engine     *reconcile.Engine
	dispatcher *cascade.Dispatcher
	summaries  cache.SummaryCache
	summaryTTL time.Duration
	now        func() time.Time
}

func New(repo store.Repository, engine *reconcile.Engine, dispatcher *cascade.Dispatcher, summaries cache.SummaryCache, summaryTTL time.Duration) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if summaryTTL < 1 {
		summaryTTL = 30 * time.Second
	}

	return &Service{
		repo:       repo,
		engine:     engine,
		dispatcher: dispatcher,
		summaries:  summaries,
		summaryTTL: summaryTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, store.ErrAccessDenied
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.Privileged() {
		return domain.Actor{}, store.ErrAccessDenied
	}
	return actor, nil
}

// scopeKiosk narrows a kiosk filter to the actor's own kiosk for sellers.
// Admins pass their requested filter through unchanged.
func scopeKiosk(actor domain.Actor, requested string) (string, error) {
	if actor.Privileged() {
		return requested, nil
	}
	if requested != "" && requested != actor.KioskID {
		return "", store.ErrAccessDenied
	}
	return actor.KioskID, nil
}

func (s *Service) ListProducts(ctx context.Context, kioskID string, lowOnly bool, limit int) ([]domain.Product, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	kioskID, err = scopeKiosk(actor, kioskID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, kioskID, lowOnly, limit)
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.PriceCents < 1 || req.Quantity < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.LowStockThreshold < 0 || req.TargetStockLevel < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.KioskID != "" {
		if _, err := s.repo.GetKioskByID(ctx, req.KioskID); err != nil {
			return domain.Product{}, err
		}
	}

	product := domain.Product{
		ID:                xid.New("prd"),
		KioskID:           req.KioskID,
		Name:              req.Name,
		Category:          req.Category,
		PriceCents:        req.PriceCents,
		DiscountPercent:   req.DiscountPercent,
		DiscountStartAt:   req.DiscountStartAt,
		DiscountEndAt:     req.DiscountEndAt,
		Quantity:          req.Quantity,
		LowStockThreshold: req.LowStockThreshold,
		TargetStockLevel:  req.TargetStockLevel,
		AutoReorder:       req.AutoReorder,
		CreatedAt:         s.now(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.submitReconcile(created.ID)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	product := *existing
	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		product.Category = strings.TrimSpace(*req.Category)
	}
	if req.PriceCents != nil {
		product.PriceCents = *req.PriceCents
	}
	if req.DiscountPercent != nil {
		product.DiscountPercent = *req.DiscountPercent
	}
	if req.DiscountStartAt != nil {
		product.DiscountStartAt = req.DiscountStartAt
	}
	if req.DiscountEndAt != nil {
		product.DiscountEndAt = req.DiscountEndAt
	}
	if req.LowStockThreshold != nil {
		product.LowStockThreshold = *req.LowStockThreshold
	}
	if req.TargetStockLevel != nil {
		product.TargetStockLevel = *req.TargetStockLevel
	}
	if req.AutoReorder != nil {
		product.AutoReorder = *req.AutoReorder
	}

	if product.Name == "" || product.PriceCents < 1 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if product.DiscountPercent < 0 || product.DiscountPercent > 100 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if product.LowStockThreshold < 0 || product.TargetStockLevel < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	// Threshold or target edits can change what counts as low.
	s.submitReconcile(updated.ID)
	return *updated, nil
}

// AdjustStock applies a manual correction to a product's quantity, either as
// an absolute value or as a signed delta. The resulting quantity may never be
// negative.
func (s *Service) AdjustStock(ctx context.Context, productID string, req domain.AdjustStockRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if (req.Quantity == nil) == (req.Delta == nil) {
		return domain.Product{}, store.ErrInvalidInput
	}

	var updated *domain.Product
	var err error
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated, err = s.repo.SetProductQuantity(ctx, productID, *req.Quantity)
	} else {
		// Relative deltas are resolved in the store against the committed
		// quantity, so a sale landing in between is never overwritten.
		updated, err = s.repo.AdjustProductQuantity(ctx, productID, *req.Delta)
	}
	if err != nil {
		return domain.Product{}, err
	}

	s.submitReconcile(updated.ID)
	return *updated, nil
}

// effectiveUnitPrice computes the per-unit price in cents, applying the
// product's discount when the sale moment falls inside its window. The
// arithmetic runs on exact decimals and rounds half-up once, at the end.
func effectiveUnitPrice(product domain.Product, at time.Time) (int64, error) {
	price := decimal.NewFromInt(product.PriceCents)
	if product.DiscountActiveAt(at) {
		pct := decimal.NewFromFloat(product.DiscountPercent)
		discount := price.Mul(pct).Div(decimal.NewFromInt(100))
		price = price.Sub(discount)
	}
	price = price.Round(0)
	if price.IsNegative() {
		return 0, store.ErrInvalidInput
	}
	return price.IntPart(), nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if req.Quantity < 1 {
		return domain.Sale{}, store.ErrInvalidInput
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return domain.Sale{}, err
	}
	if !actor.Privileged() && product.KioskID != actor.KioskID {
		return domain.Sale{}, store.ErrAccessDenied
	}
	if req.CustomerID != "" {
		if _, err := s.repo.GetCustomerByID(ctx, req.CustomerID); err != nil {
			return domain.Sale{}, err
		}
	}

	now := s.now()
	unitCents, err := effectiveUnitPrice(*product, now)
	if err != nil {
		return domain.Sale{}, err
	}
	totalCents := decimal.NewFromInt(unitCents).Mul(decimal.NewFromInt(int64(req.Quantity))).IntPart()

	sale := domain.Sale{
		ID:             xid.New("sale"),
		ProductID:      product.ID,
		SellerID:       actor.Username,
		CustomerID:     req.CustomerID,
		Quantity:       req.Quantity,
		UnitPriceCents: unitCents,
		TotalCents:     totalCents,
		CreatedAt:      now,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	s.submitReconcile(created.ProductID)
	if created.CustomerID != "" {
		s.submitCustomerStats(*created)
	}
	s.submitAchievementCheck(created.SellerID, created.CreatedAt)

	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if !actor.Privileged() && sale.SellerID != actor.Username {
		return domain.Sale{}, store.ErrAccessDenied
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, kioskID string, sellerID string, limit int) ([]domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	kioskID, err = scopeKiosk(actor, kioskID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, kioskID, sellerID, limit)
}

// CancelSale removes a sale and restores the sold quantity to the product.
// Sellers may cancel only their own sales; nobody may cancel outside the
// window. A cancelled sale is gone, so a second cancel reports not found.
func (s *Service) CancelSale(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if !actor.Privileged() && sale.SellerID != actor.Username {
		return domain.Sale{}, store.ErrAccessDenied
	}
	if s.now().Sub(sale.CreatedAt) > CancelWindow {
		return domain.Sale{}, store.ErrWindowExpired
	}

	deleted, err := s.repo.DeleteSaleRestock(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}

	s.submitReconcile(deleted.ProductID)
	return *deleted, nil
}

// Reconcile runs the low-stock reconciliation for one product synchronously.
func (s *Service) Reconcile(ctx context.Context, productID string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.engine.Reconcile(ctx, productID)
}

func (s *Service) ListAlerts(ctx context.Context, kioskID string, status string, limit int) ([]domain.StockAlert, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	kioskID, err = scopeKiosk(actor, kioskID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAlerts(ctx, kioskID, status, limit)
}

// ResolveAlert manually resolves an active alert without touching the
// product's quantity. The next reconciliation re-raises the alert if the
// product is still low.
func (s *Service) ResolveAlert(ctx context.Context, alertID string) (domain.StockAlert, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.StockAlert{}, err
	}
	resolved, err := s.repo.ResolveAlert(ctx, alertID, s.now())
	if err != nil {
		return domain.StockAlert{}, err
	}
	return *resolved, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.PurchaseOrder, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	order, err := s.repo.GetPurchaseOrderByID(ctx, orderID)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if !actor.Privileged() && order.KioskID != actor.KioskID {
		return domain.PurchaseOrder{}, store.ErrAccessDenied
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, kioskID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	kioskID, err = scopeKiosk(actor, kioskID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPurchaseOrders(ctx, kioskID, status, limit)
}

// ConfirmOrder moves a draft order to confirmed, freezing its line items.
// Reconciliation only ever touches draft auto orders, so a confirmed order
// keeps its lines even when stock recovers afterwards.
func (s *Service) ConfirmOrder(ctx context.Context, orderID string) (domain.PurchaseOrder, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}
	confirmed, err := s.repo.ConfirmPurchaseOrder(ctx, orderID, s.now())
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *confirmed, nil
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Customer{}, err
	}
	customer, err := s.repo.GetCustomerByID(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

// LowStockSummary reports the current replenishment pressure for a kiosk
// (or across all kiosks for admins). Results are cached briefly; a stale
// summary is acceptable, a slow dashboard is not.
func (s *Service) LowStockSummary(ctx context.Context, kioskID string) (domain.LowStockSummary, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.LowStockSummary{}, err
	}
	kioskID, err = scopeKiosk(actor, kioskID)
	if err != nil {
		return domain.LowStockSummary{}, err
	}

	key := summaryCacheKey(kioskID)
	if cached, hit, err := s.summaries.Get(ctx, key); err == nil && hit {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: summary cache read failed: %v", err)
	}

	activeAlerts, err := s.repo.CountActiveAlerts(ctx, kioskID)
	if err != nil {
		return domain.LowStockSummary{}, err
	}
	lowProducts, err := s.repo.ListProducts(ctx, kioskID, true, 0)
	if err != nil {
		return domain.LowStockSummary{}, err
	}
	draftLines, err := s.repo.CountDraftOrderLines(ctx, kioskID)
	if err != nil {
		return domain.LowStockSummary{}, err
	}

	summary := domain.LowStockSummary{
		KioskID:         kioskID,
		ActiveAlerts:    activeAlerts,
		LowProducts:     len(lowProducts),
		DraftOrderLines: draftLines,
		GeneratedAt:     s.now().Format(time.RFC3339),
	}
	if err := s.summaries.Set(ctx, key, &summary, s.summaryTTL); err != nil {
		log.Printf("[service] WARN: summary cache write failed: %v", err)
	}
	return summary, nil
}

func summaryCacheKey(kioskID string) string {
	if kioskID == "" {
		return "lowstock:all"
	}
	return "lowstock:" + kioskID
}

func (s *Service) submitReconcile(productID string) {
	s.dispatcher.Submit("reconcile:"+productID, func(ctx context.Context) error {
		return s.engine.Reconcile(ctx, productID)
	})
}

func (s *Service) submitCustomerStats(sale domain.Sale) {
	points := sale.TotalCents / loyaltyPointStepCents
	s.dispatcher.Submit("customer-stats:"+sale.CustomerID, func(ctx context.Context) error {
		return s.repo.AccumulateCustomerStats(ctx, sale.CustomerID, sale.TotalCents, points, sale.CreatedAt)
	})
}

// submitAchievementCheck awards the daily-sales achievement once the seller
// crosses the target for the sale's UTC day. The (seller, code, day) key in
// the store keeps the award single-shot under concurrent checks.
func (s *Service) submitAchievementCheck(sellerID string, soldAt time.Time) {
	day := soldAt.UTC().Format("2006-01-02")
	from := time.Date(soldAt.UTC().Year(), soldAt.UTC().Month(), soldAt.UTC().Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	s.dispatcher.Submit("achievement:"+sellerID, func(ctx context.Context) error {
		count, err := s.repo.CountSellerSalesBetween(ctx, sellerID, from, to)
		if err != nil {
			return fmt.Errorf("count seller sales: %w", err)
		}
		if count < dailySalesTarget {
			return nil
		}
		awarded, err := s.repo.RecordSellerAchievement(ctx, domain.SellerAchievement{
			SellerID: sellerID,
			Code:     dailySalesCode,
			Day:      day,
			EarnedAt: soldAt,
		})
		if err != nil {
			return fmt.Errorf("record achievement: %w", err)
		}
		if awarded {
			log.Printf("[service] seller %s earned %s for %s", sellerID, dailySalesCode, day)
		}
		return nil
	})
}

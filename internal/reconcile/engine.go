// Package reconcile derives the secondary low-stock state (active alerts and
// draft replenishment order lines) from authoritative product quantities. It
// never mutates quantities itself, and re-running it with no intervening
// quantity change leaves stored state unchanged apart from the per-alert
// last-checked timestamp.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"kiostara/backend/internal/domain"
	"kiostara/backend/internal/store"
	"kiostara/backend/internal/xid"
)

// Store is the slice of the repository the engine needs. The full
// store.Repository satisfies it; tests may pass something narrower.
type Store interface {
	GetProductByID(ctx context.Context, productID string) (*domain.Product, error)
	UpsertActiveAlert(ctx context.Context, alert domain.StockAlert) (*domain.StockAlert, error)
	ResolveActiveAlert(ctx context.Context, productID string, kioskID string, at time.Time) (*domain.StockAlert, error)
	FindLatestDraftAutoOrder(ctx context.Context, kioskID string) (*domain.PurchaseOrder, error)
	CreatePurchaseOrder(ctx context.Context, order domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	UpsertOrderItem(ctx context.Context, item domain.PurchaseOrderItem) error
	RemoveOrderItemByProduct(ctx context.Context, kioskID string, productID string) error
	ListReconcilableProducts(ctx context.Context) ([]domain.Product, error)
}

type Engine struct {
	store Store
	now   func() time.Time
}

func NewEngine(st Store) *Engine {
	return &Engine{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine's clock. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Reconcile brings alert and draft-order state in line with the product's
// current quantity. Products without a kiosk association are skipped.
func (e *Engine) Reconcile(ctx context.Context, productID string) error {
	product, err := e.store.GetProductByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("reconcile %s: load product: %w", productID, err)
	}
	if product.KioskID == "" {
		return nil
	}

	if product.LowStock() {
		return e.markLow(ctx, *product)
	}
	return e.markRecovered(ctx, *product)
}

func (e *Engine) markLow(ctx context.Context, product domain.Product) error {
	now := e.now()
	threshold := product.EffectiveThreshold()
	target := product.EffectiveTarget()

	alert := domain.StockAlert{
		ID:                xid.New("alert"),
		ProductID:         product.ID,
		KioskID:           product.KioskID,
		Status:            domain.AlertStatusActive,
		Threshold:         threshold,
		QuantityAtTrigger: product.Quantity,
		TriggeredAt:       now,
		LastCheckedAt:     now,
		LastNotifiedAt:    &now,
	}
	if _, err := e.store.UpsertActiveAlert(ctx, alert); err != nil {
		return fmt.Errorf("reconcile %s: upsert alert: %w", product.ID, err)
	}

	if !product.AutoReorder {
		return nil
	}

	order, err := e.store.FindLatestDraftAutoOrder(ctx, product.KioskID)
	if errors.Is(err, store.ErrNotFound) {
		order, err = e.store.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
			ID:            xid.New("po"),
			KioskID:       product.KioskID,
			Status:        domain.OrderStatusDraft,
			AutoGenerated: true,
			CreatedAt:     now,
		})
	}
	if err != nil {
		return fmt.Errorf("reconcile %s: draft order: %w", product.ID, err)
	}

	recommended := target - product.Quantity
	if recommended < 0 {
		recommended = 0
	}
	item := domain.PurchaseOrderItem{
		OrderID:        order.ID,
		ProductID:      product.ID,
		CurrentQty:     product.Quantity,
		Threshold:      threshold,
		TargetLevel:    target,
		RecommendedQty: recommended,
		SyncedAt:       now,
	}
	if err := e.store.UpsertOrderItem(ctx, item); err != nil {
		return fmt.Errorf("reconcile %s: sync order item: %w", product.ID, err)
	}
	return nil
}

func (e *Engine) markRecovered(ctx context.Context, product domain.Product) error {
	_, err := e.store.ResolveActiveAlert(ctx, product.ID, product.KioskID, e.now())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("reconcile %s: resolve alert: %w", product.ID, err)
	}
	if err := e.store.RemoveOrderItemByProduct(ctx, product.KioskID, product.ID); err != nil {
		return fmt.Errorf("reconcile %s: remove order item: %w", product.ID, err)
	}
	return nil
}

// Bootstrap re-runs reconciliation for every product whose derived state may
// be stale: currently-low products, products with an active alert, and
// products still present on a draft auto order. Quantity edits made while the
// process was down are picked up here. Per-product failures are logged and
// skipped so one bad row cannot block startup.
func (e *Engine) Bootstrap(ctx context.Context) (int, error) {
	products, err := e.store.ListReconcilableProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("bootstrap reconcile: %w", err)
	}

	reconciled := 0
	for _, product := range products {
		if err := e.Reconcile(ctx, product.ID); err != nil {
			log.Printf("[reconcile] WARN: bootstrap skipped product %s: %v", product.ID, err)
			continue
		}
		reconciled++
	}
	return reconciled, nil
}

package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kiostara/backend/internal/domain"
	"kiostara/backend/internal/store"
	"kiostara/backend/internal/store/memory"
)

func seedProduct(t *testing.T, repo *memory.Store, product domain.Product) {
	t.Helper()
	if _, err := repo.CreateProduct(context.Background(), product); err != nil {
		t.Fatalf("seed product %s: %v", product.ID, err)
	}
}

func newEngine(repo *memory.Store) *Engine {
	return NewEngine(repo)
}

func TestReconcileRaisesAlertAndOrderLine(t *testing.T) {
	repo := memory.NewSeeded()
	seedProduct(t, repo, domain.Product{
		ID: "prd-a", KioskID: "kiosk-1", Name: "Prod A", PriceCents: 1000, Quantity: 3,
		LowStockThreshold: 5, TargetStockLevel: 10, AutoReorder: true,
	})
	engine := newEngine(repo)

	if err := engine.Reconcile(context.Background(), "prd-a"); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	alert, err := repo.GetActiveAlert(context.Background(), "prd-a", "kiosk-1")
	if err != nil {
		t.Fatalf("expected active alert: %v", err)
	}
	if alert.Threshold != 5 || alert.QuantityAtTrigger != 3 {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if alert.LastNotifiedAt == nil {
		t.Fatalf("new alert must carry a notification timestamp")
	}

	order, err := repo.FindLatestDraftAutoOrder(context.Background(), "kiosk-1")
	if err != nil {
		t.Fatalf("expected draft auto order: %v", err)
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected one line, got %d", len(order.Items))
	}
	line := order.Items[0]
	if line.RecommendedQty != 7 {
		t.Fatalf("expected recommended 7 (target 10 - qty 3), got %d", line.RecommendedQty)
	}
	if line.CurrentQty != 3 || line.Threshold != 5 || line.TargetLevel != 10 {
		t.Fatalf("unexpected line %+v", line)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	repo := memory.NewSeeded()
	seedProduct(t, repo, domain.Product{
		ID: "prd-a", KioskID: "kiosk-1", Name: "Prod A", PriceCents: 1000, Quantity: 3,
		LowStockThreshold: 5, TargetStockLevel: 10, AutoReorder: true,
	})
	engine := newEngine(repo)
	ctx := context.Background()

	if err := engine.Reconcile(ctx, "prd-a"); err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	first, err := repo.GetActiveAlert(ctx, "prd-a", "kiosk-1")
	if err != nil {
		t.Fatalf("expected alert: %v", err)
	}

	if err := engine.Reconcile(ctx, "prd-a"); err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}

	second, err := repo.GetActiveAlert(ctx, "prd-a", "kiosk-1")
	if err != nil {
		t.Fatalf("expected alert after rerun: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("rerun must refresh the same alert, got %s then %s", first.ID, second.ID)
	}
	if !second.TriggeredAt.Equal(first.TriggeredAt) {
		t.Fatalf("rerun must not move the trigger time")
	}

	alerts, err := repo.ListAlerts(ctx, "kiosk-1", domain.AlertStatusActive, 0)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	count := 0
	for _, a := range alerts {
		if a.ProductID == "prd-a" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one active alert, got %d", count)
	}

	orders, err := repo.ListPurchaseOrders(ctx, "kiosk-1", domain.OrderStatusDraft, 0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	autoOrders := 0
	for _, o := range orders {
		if o.AutoGenerated {
			autoOrders++
			if len(o.Items) != 1 {
				t.Fatalf("expected one line on rerun, got %d", len(o.Items))
			}
		}
	}
	if autoOrders != 1 {
		t.Fatalf("expected one draft auto order, got %d", autoOrders)
	}
}

func TestReconcileResolvesOnRecovery(t *testing.T) {
	repo := memory.NewSeeded()
	seedProduct(t, repo, domain.Product{
		ID: "prd-a", KioskID: "kiosk-1", Name: "Prod A", PriceCents: 1000, Quantity: 3,
		LowStockThreshold: 5, TargetStockLevel: 10, AutoReorder: true,
	})
	engine := newEngine(repo)
	ctx := context.Background()

	if err := engine.Reconcile(ctx, "prd-a"); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	order, err := repo.FindLatestDraftAutoOrder(ctx, "kiosk-1")
	if err != nil {
		t.Fatalf("expected draft order: %v", err)
	}

	if _, err := repo.SetProductQuantity(ctx, "prd-a", 12); err != nil {
		t.Fatalf("restock: %v", err)
	}
	if err := engine.Reconcile(ctx, "prd-a"); err != nil {
		t.Fatalf("recovery reconcile failed: %v", err)
	}

	if _, err := repo.GetActiveAlert(ctx, "prd-a", "kiosk-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected alert resolved, got %v", err)
	}

	// The draft order itself survives with the line removed.
	kept, err := repo.GetPurchaseOrderByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("draft order should remain: %v", err)
	}
	if len(kept.Items) != 0 {
		t.Fatalf("expected line removed, got %d", len(kept.Items))
	}

	// Recovery reconcile on an already-clean product is a no-op.
	if err := engine.Reconcile(ctx, "prd-a"); err != nil {
		t.Fatalf("repeat recovery failed: %v", err)
	}
}

func TestReconcileFlapping(t *testing.T) {
	repo := memory.NewSeeded()
	seedProduct(t, repo, domain.Product{
		ID: "prd-a", KioskID: "kiosk-1", Name: "Prod A", PriceCents: 1000, Quantity: 5,
		LowStockThreshold: 5, TargetStockLevel: 10, AutoReorder: true,
	})
	engine := newEngine(repo)
	ctx := context.Background()

	// At threshold counts as low.
	if err := engine.Reconcile(ctx, "prd-a"); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if _, err := repo.GetActiveAlert(ctx, "prd-a", "kiosk-1"); err != nil {
		t.Fatalf("expected alert at threshold: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := repo.SetProductQuantity(ctx, "prd-a", 6); err != nil {
			t.Fatalf("restock: %v", err)
		}
		if err := engine.Reconcile(ctx, "prd-a"); err != nil {
			t.Fatalf("recovery reconcile failed: %v", err)
		}
		if _, err := repo.SetProductQuantity(ctx, "prd-a", 5); err != nil {
			t.Fatalf("drop: %v", err)
		}
		if err := engine.Reconcile(ctx, "prd-a"); err != nil {
			t.Fatalf("low reconcile failed: %v", err)
		}
	}

	alerts, err := repo.ListAlerts(ctx, "kiosk-1", domain.AlertStatusActive, 0)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	active := 0
	for _, a := range alerts {
		if a.ProductID == "prd-a" {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("flapping must end with one active alert, got %d", active)
	}

	resolved, err := repo.ListAlerts(ctx, "kiosk-1", domain.AlertStatusResolved, 0)
	if err != nil {
		t.Fatalf("list resolved: %v", err)
	}
	if len(resolved) != 3 {
		t.Fatalf("expected 3 resolved alerts from 3 recoveries, got %d", len(resolved))
	}
}

func TestReconcileRecommendedNeverNegative(t *testing.T) {
	repo := memory.NewSeeded()
	// Target below threshold gets coerced up to the threshold, and a
	// quantity above the target still floors the recommendation at zero.
	seedProduct(t, repo, domain.Product{
		ID: "prd-a", KioskID: "kiosk-1", Name: "Prod A", PriceCents: 1000, Quantity: 7,
		LowStockThreshold: 8, TargetStockLevel: 2, AutoReorder: true,
	})
	engine := newEngine(repo)
	ctx := context.Background()

	if err := engine.Reconcile(ctx, "prd-a"); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	order, err := repo.FindLatestDraftAutoOrder(ctx, "kiosk-1")
	if err != nil {
		t.Fatalf("expected draft order: %v", err)
	}
	line := order.Items[0]
	if line.TargetLevel != 8 {
		t.Fatalf("expected target coerced to threshold 8, got %d", line.TargetLevel)
	}
	if line.RecommendedQty != 1 {
		t.Fatalf("expected recommended 1, got %d", line.RecommendedQty)
	}
	if line.RecommendedQty < 0 {
		t.Fatalf("recommended quantity must never be negative")
	}
}

func TestReconcileSkipsKiosklessProduct(t *testing.T) {
	repo := memory.NewSeeded()
	engine := newEngine(repo)
	ctx := context.Background()

	// prd-gudang is seeded without a kiosk.
	if _, err := repo.SetProductQuantity(ctx, "prd-gudang", 1); err != nil {
		t.Fatalf("drop quantity: %v", err)
	}
	if err := engine.Reconcile(ctx, "prd-gudang"); err != nil {
		t.Fatalf("kioskless reconcile must be a no-op, got %v", err)
	}

	alerts, err := repo.ListAlerts(ctx, "", "", 0)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	for _, a := range alerts {
		if a.ProductID == "prd-gudang" {
			t.Fatalf("kioskless product must not raise alerts")
		}
	}
}

func TestReconcileNoAutoReorderSkipsOrder(t *testing.T) {
	repo := memory.NewSeeded()
	engine := newEngine(repo)
	ctx := context.Background()

	// prd-roti has AutoReorder off.
	if _, err := repo.SetProductQuantity(ctx, "prd-roti", 2); err != nil {
		t.Fatalf("drop quantity: %v", err)
	}
	if err := engine.Reconcile(ctx, "prd-roti"); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if _, err := repo.GetActiveAlert(ctx, "prd-roti", "kiosk-1"); err != nil {
		t.Fatalf("expected alert even without auto-reorder: %v", err)
	}
	if _, err := repo.FindLatestDraftAutoOrder(ctx, "kiosk-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no draft auto order, got %v", err)
	}
}

func TestConcurrentReconcileSingleActiveAlert(t *testing.T) {
	repo := memory.NewSeeded()
	seedProduct(t, repo, domain.Product{
		ID: "prd-a", KioskID: "kiosk-1", Name: "Prod A", PriceCents: 1000, Quantity: 2,
		LowStockThreshold: 5, TargetStockLevel: 10, AutoReorder: true,
	})
	engine := newEngine(repo)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := engine.Reconcile(context.Background(), "prd-a"); err != nil {
				t.Errorf("concurrent reconcile: %v", err)
			}
		}()
	}
	wg.Wait()

	alerts, err := repo.ListAlerts(context.Background(), "kiosk-1", domain.AlertStatusActive, 0)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	active := 0
	for _, a := range alerts {
		if a.ProductID == "prd-a" {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active alert under concurrency, got %d", active)
	}
}

func TestBootstrapSweepsStaleState(t *testing.T) {
	repo := memory.NewSeeded()
	engine := newEngine(repo)
	ctx := context.Background()

	// A product that went low while nothing was reconciling.
	if _, err := repo.SetProductQuantity(ctx, "prd-kopi", 4); err != nil {
		t.Fatalf("drop quantity: %v", err)
	}
	// A product whose alert went stale because stock came back offline.
	seedProduct(t, repo, domain.Product{
		ID: "prd-b", KioskID: "kiosk-1", Name: "Prod B", PriceCents: 1000, Quantity: 2,
		LowStockThreshold: 5, TargetStockLevel: 10, AutoReorder: true,
	})
	if err := engine.Reconcile(ctx, "prd-b"); err != nil {
		t.Fatalf("prime alert: %v", err)
	}
	if _, err := repo.SetProductQuantity(ctx, "prd-b", 50); err != nil {
		t.Fatalf("offline restock: %v", err)
	}

	reconciled, err := engine.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if reconciled < 2 {
		t.Fatalf("expected at least 2 products swept, got %d", reconciled)
	}

	if _, err := repo.GetActiveAlert(ctx, "prd-kopi", "kiosk-1"); err != nil {
		t.Fatalf("expected alert for newly low product: %v", err)
	}
	if _, err := repo.GetActiveAlert(ctx, "prd-b", "kiosk-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected stale alert resolved, got %v", err)
	}
}

func TestEngineClockControlsTimestamps(t *testing.T) {
	repo := memory.NewSeeded()
	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	engine := NewEngine(repo).WithClock(func() time.Time { return fixed })
	ctx := context.Background()

	seedProduct(t, repo, domain.Product{
		ID: "prd-a", KioskID: "kiosk-1", Name: "Prod A", PriceCents: 1000, Quantity: 1,
		LowStockThreshold: 5, TargetStockLevel: 10, AutoReorder: true,
	})
	if err := engine.Reconcile(ctx, "prd-a"); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	alert, err := repo.GetActiveAlert(ctx, "prd-a", "kiosk-1")
	if err != nil {
		t.Fatalf("expected alert: %v", err)
	}
	if !alert.TriggeredAt.Equal(fixed) || !alert.LastCheckedAt.Equal(fixed) {
		t.Fatalf("expected fixed timestamps, got %+v", alert)
	}
}

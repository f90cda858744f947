package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kiostara/backend/internal/domain"
	"kiostara/backend/internal/store"
	"kiostara/backend/internal/xid"
)

type Store struct {
	mu                sync.RWMutex
	kiosksByID        map[string]domain.Kiosk
	productsByID      map[string]domain.Product
	salesByID         map[string]domain.Sale
	alertsByID        map[string]domain.StockAlert
	activeAlertByKey  map[string]string
	ordersByID        map[string]domain.PurchaseOrder
	orderItems        map[string]map[string]domain.PurchaseOrderItem
	customersByID     map[string]domain.Customer
	achievementsByKey map[string]domain.SellerAchievement
	usersByUsername   map[string]domain.UserAccount
}

func alertKey(productID string, kioskID string) string {
	return productID + "|" + kioskID
}

func achievementKey(sellerID string, code string, day string) string {
	return sellerID + "|" + code + "|" + day
}

func New() *Store {
	return &Store{
		kiosksByID:        make(map[string]domain.Kiosk),
		productsByID:      make(map[string]domain.Product),
		salesByID:         make(map[string]domain.Sale),
		alertsByID:        make(map[string]domain.StockAlert),
		activeAlertByKey:  make(map[string]string),
		ordersByID:        make(map[string]domain.PurchaseOrder),
		orderItems:        make(map[string]map[string]domain.PurchaseOrderItem),
		customersByID:     make(map[string]domain.Customer),
		achievementsByKey: make(map[string]domain.SellerAchievement),
		usersByUsername:   seedUsers(),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD; unset
// variables fall back to hardcoded dev defaults with a warning. The in-memory
// store is never used in production (postgres is selected when DATABASE_URL
// is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		name     string
		password string
		role     string
		kioskID  string
	}{
		{"admin", "Back Office", adminPwd, domain.RoleAdmin, ""},
		{"seller", "Kasir Utama", sellerPwd, domain.RoleSeller, "kiosk-1"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Name:      u.name,
			Password:  string(hash),
			Role:      u.role,
			KioskID:   u.kioskID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	kiosks := []domain.Kiosk{
		{ID: "kiosk-1", Name: "Kios Pasar Baru", Location: "Jakarta", CreatedAt: now},
		{ID: "kiosk-2", Name: "Kios Stasiun", Location: "Bandung", CreatedAt: now},
	}
	for _, k := range kiosks {
		s.kiosksByID[k.ID] = k
	}

	discountStart := now.Add(-24 * time.Hour)
	discountEnd := now.Add(24 * time.Hour)
	products := []domain.Product{
		{ID: "prd-mie", KioskID: "kiosk-1", Name: "Mie Goreng Instan", Category: "grocery", PriceCents: 3500, Quantity: 120, LowStockThreshold: 10, TargetStockLevel: 40, AutoReorder: true, Status: domain.ProductStatusAvailable},
		{ID: "prd-kopi", KioskID: "kiosk-1", Name: "Kopi Sachet", Category: "beverage", PriceCents: 2600, Quantity: 80, LowStockThreshold: 15, TargetStockLevel: 60, AutoReorder: true, Status: domain.ProductStatusAvailable},
		{ID: "prd-roti", KioskID: "kiosk-1", Name: "Roti Tawar", Category: "bakery", PriceCents: 17800, DiscountPercent: 10, DiscountStartAt: &discountStart, DiscountEndAt: &discountEnd, Quantity: 25, LowStockThreshold: 5, TargetStockLevel: 20, AutoReorder: false, Status: domain.ProductStatusAvailable},
		{ID: "prd-susu", KioskID: "kiosk-2", Name: "Susu UHT 1L", Category: "dairy", PriceCents: 18900, Quantity: 40, LowStockThreshold: 8, TargetStockLevel: 30, AutoReorder: true, Status: domain.ProductStatusAvailable},
		{ID: "prd-gudang", KioskID: "", Name: "Stok Gudang Gula", Category: "grocery", PriceCents: 17400, Quantity: 500, Status: domain.ProductStatusAvailable},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.productsByID[p.ID] = p
	}

	customers := []domain.Customer{
		{ID: "cust-1", Name: "Ibu Sari", Phone: "0812-0000-0001", CreatedAt: now},
		{ID: "cust-2", Name: "Pak Budi", Phone: "0812-0000-0002", CreatedAt: now},
	}
	for _, c := range customers {
		s.customersByID[c.ID] = c
	}

	return s
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.PriceCents < 1 || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.productsByID[product.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if product.KioskID != "" {
		if _, exists := s.kiosksByID[product.KioskID]; !exists {
			return nil, store.ErrNotFound
		}
	}

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	if product.Status == "" {
		product.Status = domain.ProductStatusAvailable
	}
	if product.Quantity == 0 {
		product.Status = domain.ProductStatusOutOfStock
	}

	s.productsByID[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.productsByID[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	// Quantity is mutated only through CreateSale/DeleteSaleRestock/
	// SetProductQuantity; keep the stored value.
	product.Quantity = existing.Quantity
	product.Status = existing.Status
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.productsByID[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) GetProductByID(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) ListProducts(_ context.Context, kioskID string, lowOnly bool, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if kioskID != "" && p.KioskID != kioskID {
			continue
		}
		if lowOnly && !p.LowStock() {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (s *Store) SetProductQuantity(_ context.Context, productID string, quantity int) (*domain.Product, error) {
	if quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[productID]
	if !exists {
		return nil, store.ErrNotFound
	}

	product.Quantity = quantity
	if quantity == 0 {
		product.Status = domain.ProductStatusOutOfStock
	} else {
		product.Status = domain.ProductStatusAvailable
	}
	product.UpdatedAt = time.Now().UTC()
	s.productsByID[productID] = product

	updated := product
	return &updated, nil
}

// AdjustProductQuantity applies a signed delta under the store lock, so a
// sale committing around the adjustment is never overwritten. A delta that
// would drive the quantity negative is rejected without changing anything.
func (s *Store) AdjustProductQuantity(_ context.Context, productID string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Quantity+delta < 0 {
		return nil, store.ErrInvalidInput
	}

	product.Quantity += delta
	if product.Quantity == 0 {
		product.Status = domain.ProductStatusOutOfStock
	} else {
		product.Status = domain.ProductStatusAvailable
	}
	product.UpdatedAt = time.Now().UTC()
	s.productsByID[productID] = product

	updated := product
	return &updated, nil
}

func (s *Store) ListReconcilableProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flagged := make(map[string]struct{})
	for key, alertID := range s.activeAlertByKey {
		_ = alertID
		flagged[strings.SplitN(key, "|", 2)[0]] = struct{}{}
	}
	for _, order := range s.ordersByID {
		if order.Status != domain.OrderStatusDraft || !order.AutoGenerated {
			continue
		}
		for productID := range s.orderItems[order.ID] {
			flagged[productID] = struct{}{}
		}
	}

	products := make([]domain.Product, 0, 16)
	for id, p := range s.productsByID {
		if p.KioskID == "" {
			continue
		}
		if _, stale := flagged[id]; !stale && !p.LowStock() {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Quantity < 1 || sale.TotalCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[sale.ProductID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Quantity < sale.Quantity {
		return nil, store.ErrInsufficientStock
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, store.ErrInvalidInput
	}

	product.Quantity -= sale.Quantity
	if product.Quantity == 0 {
		product.Status = domain.ProductStatusOutOfStock
	}
	product.UpdatedAt = time.Now().UTC()
	s.productsByID[product.ID] = product

	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.KioskID = product.KioskID
	sale.ProductName = product.Name
	if kiosk, ok := s.kiosksByID[product.KioskID]; ok {
		sale.KioskName = kiosk.Name
	}
	if seller, ok := s.usersByUsername[sale.SellerID]; ok {
		sale.SellerName = seller.Name
	}
	s.salesByID[sale.ID] = sale

	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := sale
	return &copied, nil
}

func (s *Store) DeleteSaleRestock(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}

	product, exists := s.productsByID[sale.ProductID]
	if exists {
		product.Quantity += sale.Quantity
		if product.Status == domain.ProductStatusOutOfStock && product.Quantity > 0 {
			product.Status = domain.ProductStatusAvailable
		}
		product.UpdatedAt = time.Now().UTC()
		s.productsByID[product.ID] = product
	}

	delete(s.salesByID, saleID)
	deleted := sale
	return &deleted, nil
}

func (s *Store) ListSales(_ context.Context, kioskID string, sellerID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if kioskID != "" && sale.KioskID != kioskID {
			continue
		}
		if sellerID != "" && sale.SellerID != sellerID {
			continue
		}
		sales = append(sales, sale)
	}

	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) GetActiveAlert(_ context.Context, productID string, kioskID string) (*domain.StockAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alertID, exists := s.activeAlertByKey[alertKey(productID, kioskID)]
	if !exists {
		return nil, store.ErrNotFound
	}
	alert := s.alertsByID[alertID]
	copied := alert
	return &copied, nil
}

// UpsertActiveAlert refreshes the active alert for the (product, kiosk) pair
// in place, or creates one when none exists. The activeAlertByKey index keeps
// the at-most-one-active invariant under the store mutex.
func (s *Store) UpsertActiveAlert(_ context.Context, alert domain.StockAlert) (*domain.StockAlert, error) {
	if alert.ProductID == "" || alert.KioskID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := alertKey(alert.ProductID, alert.KioskID)
	if existingID, exists := s.activeAlertByKey[key]; exists {
		existing := s.alertsByID[existingID]
		existing.Threshold = alert.Threshold
		existing.QuantityAtTrigger = alert.QuantityAtTrigger
		existing.LastCheckedAt = alert.LastCheckedAt
		s.alertsByID[existingID] = existing
		copied := existing
		return &copied, nil
	}

	if alert.ID == "" {
		alert.ID = xid.New("alert")
	}
	alert.Status = domain.AlertStatusActive
	alert.ResolvedAt = nil
	s.alertsByID[alert.ID] = alert
	s.activeAlertByKey[key] = alert.ID

	copied := alert
	return &copied, nil
}

func (s *Store) ResolveActiveAlert(_ context.Context, productID string, kioskID string, at time.Time) (*domain.StockAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := alertKey(productID, kioskID)
	alertID, exists := s.activeAlertByKey[key]
	if !exists {
		return nil, store.ErrNotFound
	}

	alert := s.alertsByID[alertID]
	alert.Status = domain.AlertStatusResolved
	resolvedAt := at
	alert.ResolvedAt = &resolvedAt
	alert.LastCheckedAt = at
	s.alertsByID[alertID] = alert
	delete(s.activeAlertByKey, key)

	copied := alert
	return &copied, nil
}

func (s *Store) ResolveAlert(_ context.Context, alertID string, at time.Time) (*domain.StockAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, exists := s.alertsByID[alertID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if alert.Status != domain.AlertStatusActive {
		return nil, store.ErrWrongState
	}

	alert.Status = domain.AlertStatusResolved
	resolvedAt := at
	alert.ResolvedAt = &resolvedAt
	alert.LastCheckedAt = at
	s.alertsByID[alertID] = alert
	delete(s.activeAlertByKey, alertKey(alert.ProductID, alert.KioskID))

	copied := alert
	return &copied, nil
}

func (s *Store) ListAlerts(_ context.Context, kioskID string, status string, limit int) ([]domain.StockAlert, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts := make([]domain.StockAlert, 0, len(s.alertsByID))
	for _, alert := range s.alertsByID {
		if kioskID != "" && alert.KioskID != kioskID {
			continue
		}
		if status != "" && alert.Status != status {
			continue
		}
		alerts = append(alerts, alert)
	}

	slices.SortFunc(alerts, func(a, b domain.StockAlert) int {
		return b.TriggeredAt.Compare(a.TriggeredAt)
	})
	if len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func (s *Store) CountActiveAlerts(_ context.Context, kioskID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.activeAlertByKey {
		if kioskID == "" || strings.HasSuffix(key, "|"+kioskID) {
			count++
		}
	}
	return count, nil
}

func (s *Store) FindLatestDraftAutoOrder(_ context.Context, kioskID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.PurchaseOrder
	for id := range s.ordersByID {
		order := s.ordersByID[id]
		if order.KioskID != kioskID || order.Status != domain.OrderStatusDraft || !order.AutoGenerated {
			continue
		}
		if latest == nil || order.CreatedAt.After(latest.CreatedAt) {
			copied := order
			latest = &copied
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	latest.Items = s.orderItemsLocked(latest.ID)
	return latest, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, order domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if order.KioskID == "" {
		return nil, store.ErrInvalidInput
	}
	if order.ID == "" {
		order.ID = xid.New("po")
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusDraft
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	order.Items = nil
	s.ordersByID[order.ID] = order
	s.orderItems[order.ID] = make(map[string]domain.PurchaseOrderItem)

	created := order
	return &created, nil
}

func (s *Store) UpsertOrderItem(_ context.Context, item domain.PurchaseOrderItem) error {
	if item.OrderID == "" || item.ProductID == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ordersByID[item.OrderID]; !exists {
		return store.ErrNotFound
	}
	items := s.orderItems[item.OrderID]
	if items == nil {
		items = make(map[string]domain.PurchaseOrderItem)
		s.orderItems[item.OrderID] = items
	}
	items[item.ProductID] = item
	return nil
}

func (s *Store) RemoveOrderItemByProduct(_ context.Context, kioskID string, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for orderID, order := range s.ordersByID {
		if order.KioskID != kioskID || order.Status != domain.OrderStatusDraft || !order.AutoGenerated {
			continue
		}
		delete(s.orderItems[orderID], productID)
	}
	return nil
}

func (s *Store) GetPurchaseOrderByID(_ context.Context, orderID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.ordersByID[orderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := order
	copied.Items = s.orderItemsLocked(orderID)
	return &copied, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, kioskID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.PurchaseOrder, 0, len(s.ordersByID))
	for id, order := range s.ordersByID {
		if kioskID != "" && order.KioskID != kioskID {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		copied := order
		copied.Items = s.orderItemsLocked(id)
		orders = append(orders, copied)
	}

	slices.SortFunc(orders, func(a, b domain.PurchaseOrder) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) ConfirmPurchaseOrder(_ context.Context, orderID string, at time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[orderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.OrderStatusDraft {
		return nil, store.ErrWrongState
	}

	order.Status = domain.OrderStatusConfirmed
	confirmedAt := at
	order.ConfirmedAt = &confirmedAt
	s.ordersByID[orderID] = order

	copied := order
	copied.Items = s.orderItemsLocked(orderID)
	return &copied, nil
}

func (s *Store) CountDraftOrderLines(_ context.Context, kioskID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for orderID, order := range s.ordersByID {
		if order.Status != domain.OrderStatusDraft || !order.AutoGenerated {
			continue
		}
		if kioskID != "" && order.KioskID != kioskID {
			continue
		}
		count += len(s.orderItems[orderID])
	}
	return count, nil
}

// orderItemsLocked returns a sorted copy of an order's line items. Callers
// must hold at least the read lock.
func (s *Store) orderItemsLocked(orderID string) []domain.PurchaseOrderItem {
	itemMap := s.orderItems[orderID]
	items := make([]domain.PurchaseOrderItem, 0, len(itemMap))
	for _, item := range itemMap {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.PurchaseOrderItem) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return items
}

func (s *Store) GetKioskByID(_ context.Context, kioskID string) (*domain.Kiosk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kiosk, exists := s.kiosksByID[kioskID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := kiosk
	return &copied, nil
}

func (s *Store) GetCustomerByID(_ context.Context, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[customerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := customer
	return &copied, nil
}

func (s *Store) AccumulateCustomerStats(_ context.Context, customerID string, amountCents int64, points int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customersByID[customerID]
	if !exists {
		return store.ErrNotFound
	}

	customer.TotalSpentCents += amountCents
	customer.PurchaseCount++
	customer.LoyaltyPoints += points
	visitAt := at
	customer.LastVisitAt = &visitAt
	s.customersByID[customerID] = customer
	return nil
}

func (s *Store) CountSellerSalesBetween(_ context.Context, sellerID string, from time.Time, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sale := range s.salesByID {
		if sale.SellerID != sellerID {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *Store) RecordSellerAchievement(_ context.Context, achievement domain.SellerAchievement) (bool, error) {
	if achievement.SellerID == "" || achievement.Code == "" || achievement.Day == "" {
		return false, store.ErrInvalidInput
	}
	if achievement.ID == "" {
		achievement.ID = xid.New("ach")
	}
	if achievement.EarnedAt.IsZero() {
		achievement.EarnedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := achievementKey(achievement.SellerID, achievement.Code, achievement.Day)
	if _, exists := s.achievementsByKey[key]; exists {
		return false, nil
	}
	s.achievementsByKey[key] = achievement
	return true, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

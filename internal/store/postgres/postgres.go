package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kiostara/backend/internal/domain"
	"kiostara/backend/internal/store"
	"kiostara/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `
	id, kiosk_id, name, category, price_cents, discount_percent,
	discount_start_at, discount_end_at, quantity, low_stock_threshold,
	target_stock_level, auto_reorder, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var kioskID, category sql.NullString
	var discountStart, discountEnd sql.NullTime
	err := row.Scan(
		&p.ID,
		&kioskID,
		&p.Name,
		&category,
		&p.PriceCents,
		&p.DiscountPercent,
		&discountStart,
		&discountEnd,
		&p.Quantity,
		&p.LowStockThreshold,
		&p.TargetStockLevel,
		&p.AutoReorder,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.KioskID = kioskID.String
	p.Category = category.String
	if discountStart.Valid {
		at := discountStart.Time.UTC()
		p.DiscountStartAt = &at
	}
	if discountEnd.Valid {
		at := discountEnd.Time.UTC()
		p.DiscountEndAt = &at
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.PriceCents < 1 || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.UpdatedAt = product.CreatedAt
	if product.Status == "" {
		product.Status = domain.ProductStatusAvailable
	}
	if product.Quantity == 0 {
		product.Status = domain.ProductStatusOutOfStock
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, kiosk_id, name, category, price_cents, discount_percent,
			discount_start_at, discount_end_at, quantity, low_stock_threshold,
			target_stock_level, auto_reorder, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, product.ID, nullIfEmpty(product.KioskID), product.Name, nullIfEmpty(product.Category),
		product.PriceCents, product.DiscountPercent, nullTime(product.DiscountStartAt),
		nullTime(product.DiscountEndAt), product.Quantity, product.LowStockThreshold,
		product.TargetStockLevel, product.AutoReorder, product.Status, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	// Quantity and status are mutated only through the stock paths.
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_cents = $4, discount_percent = $5,
			discount_start_at = $6, discount_end_at = $7, low_stock_threshold = $8,
			target_stock_level = $9, auto_reorder = $10, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns+`
	`, product.ID, product.Name, nullIfEmpty(product.Category), product.PriceCents,
		product.DiscountPercent, nullTime(product.DiscountStartAt), nullTime(product.DiscountEndAt),
		product.LowStockThreshold, product.TargetStockLevel, product.AutoReorder)

	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) GetProductByID(ctx context.Context, productID string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, productID)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) ListProducts(ctx context.Context, kioskID string, lowOnly bool, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 = '' OR kiosk_id = $1)
			AND ($2 = false OR quantity <= CASE WHEN low_stock_threshold > 0 THEN low_stock_threshold ELSE $3 END)
		ORDER BY name ASC
		LIMIT $4
	`, kioskID, lowOnly, domain.DefaultLowStockThreshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) SetProductQuantity(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	if quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET quantity = $2,
			status = CASE WHEN $2 = 0 THEN 'out_of_stock' ELSE 'available' END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns+`
	`, productID, quantity)

	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

// AdjustProductQuantity applies a signed delta in a single guarded update,
// so the arithmetic happens on the row's committed value rather than one the
// caller read earlier. Zero rows affected on an existing product means the
// delta would have driven the quantity negative.
func (s *Store) AdjustProductQuantity(ctx context.Context, productID string, delta int) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET quantity = quantity + $2,
			status = CASE WHEN quantity + $2 = 0 THEN 'out_of_stock' ELSE 'available' END,
			updated_at = now()
		WHERE id = $1 AND quantity + $2 >= 0
		RETURNING `+productColumns+`
	`, productID, delta)

	updated, err := scanProduct(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, store.ErrInvalidInput
	}
	return nil, store.ErrNotFound
}

// ListReconcilableProducts returns kiosk-assigned products that are either
// low on stock, carry an active alert, or still sit on a draft auto order.
// The superset lets a startup sweep resolve state that went stale while the
// service was down.
func (s *Store) ListReconcilableProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE kiosk_id IS NOT NULL
			AND (
				quantity <= CASE WHEN low_stock_threshold > 0 THEN low_stock_threshold ELSE $1 END
				OR id IN (SELECT product_id FROM stock_alerts WHERE status = 'active')
				OR id IN (
					SELECT i.product_id
					FROM purchase_order_items i
					JOIN purchase_orders o ON o.id = i.order_id
					WHERE o.status = 'draft' AND o.auto_generated = true
				)
			)
		ORDER BY id ASC
	`, domain.DefaultLowStockThreshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Quantity < 1 || sale.TotalCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var kioskID sql.NullString
	var productName string
	var available int
	err = tx.QueryRowContext(ctx, `
		SELECT kiosk_id, name, quantity
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, sale.ProductID).Scan(&kioskID, &productName, &available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if available < sale.Quantity {
		return nil, store.ErrInsufficientStock
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - $2,
			status = CASE WHEN quantity - $2 = 0 THEN 'out_of_stock' ELSE status END,
			updated_at = now()
		WHERE id = $1 AND quantity >= $2
	`, sale.ProductID, sale.Quantity)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrInsufficientStock
	}

	sale.KioskID = kioskID.String
	sale.ProductName = productName
	if sale.KioskID != "" {
		var kioskName string
		err = tx.QueryRowContext(ctx, `SELECT name FROM kiosks WHERE id = $1`, sale.KioskID).Scan(&kioskName)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		sale.KioskName = kioskName
	}
	var sellerName sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT name FROM users WHERE username = $1`, sale.SellerID).Scan(&sellerName)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	sale.SellerName = sellerName.String

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, product_id, kiosk_id, seller_id, customer_id, quantity,
			unit_price_cents, total_cents, product_name, seller_name, kiosk_name, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.ProductID, nullIfEmpty(sale.KioskID), sale.SellerID, nullIfEmpty(sale.CustomerID),
		sale.Quantity, sale.UnitPriceCents, sale.TotalCents, sale.ProductName, sale.SellerName,
		sale.KioskName, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, kiosk_id, seller_id, customer_id, quantity,
			unit_price_cents, total_cents, product_name, seller_name, kiosk_name, created_at
		FROM sales
		WHERE id = $1
	`, saleID)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var kioskID, customerID sql.NullString
	err := row.Scan(
		&sale.ID,
		&sale.ProductID,
		&kioskID,
		&sale.SellerID,
		&customerID,
		&sale.Quantity,
		&sale.UnitPriceCents,
		&sale.TotalCents,
		&sale.ProductName,
		&sale.SellerName,
		&sale.KioskName,
		&sale.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	sale.KioskID = kioskID.String
	sale.CustomerID = customerID.String
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

func (s *Store) DeleteSaleRestock(ctx context.Context, saleID string) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := scanSale(tx.QueryRowContext(ctx, `
		SELECT id, product_id, kiosk_id, seller_id, customer_id, quantity,
			unit_price_cents, total_cents, product_name, seller_name, kiosk_name, created_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, saleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	// The product may have been deleted since the sale; restock is best effort.
	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + $2,
			status = CASE WHEN status = 'out_of_stock' AND quantity + $2 > 0 THEN 'available' ELSE status END,
			updated_at = now()
		WHERE id = $1
	`, sale.ProductID, sale.Quantity)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, kioskID string, sellerID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, kiosk_id, seller_id, customer_id, quantity,
			unit_price_cents, total_cents, product_name, seller_name, kiosk_name, created_at
		FROM sales
		WHERE ($1 = '' OR kiosk_id = $1)
			AND ($2 = '' OR seller_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, kioskID, sellerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

const alertColumns = `
	id, product_id, kiosk_id, status, threshold, quantity_at_trigger,
	triggered_at, last_checked_at, last_notified_at, resolved_at`

func scanAlert(row rowScanner) (*domain.StockAlert, error) {
	var alert domain.StockAlert
	var lastNotified, resolvedAt sql.NullTime
	err := row.Scan(
		&alert.ID,
		&alert.ProductID,
		&alert.KioskID,
		&alert.Status,
		&alert.Threshold,
		&alert.QuantityAtTrigger,
		&alert.TriggeredAt,
		&alert.LastCheckedAt,
		&lastNotified,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	alert.TriggeredAt = alert.TriggeredAt.UTC()
	alert.LastCheckedAt = alert.LastCheckedAt.UTC()
	if lastNotified.Valid {
		at := lastNotified.Time.UTC()
		alert.LastNotifiedAt = &at
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time.UTC()
		alert.ResolvedAt = &at
	}
	return &alert, nil
}

func (s *Store) GetActiveAlert(ctx context.Context, productID string, kioskID string) (*domain.StockAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+`
		FROM stock_alerts
		WHERE product_id = $1 AND kiosk_id = $2 AND status = 'active'
	`, productID, kioskID)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return alert, nil
}

// UpsertActiveAlert refreshes the active alert for the (product, kiosk) pair
// or creates one when none is active. Both sides run inside one transaction
// that locks the existing row, so concurrent reconciliations for the same
// product converge on a single active alert. A unique violation from a racing
// insert is retried as a refresh.
func (s *Store) UpsertActiveAlert(ctx context.Context, alert domain.StockAlert) (*domain.StockAlert, error) {
	if alert.ProductID == "" || alert.KioskID == "" {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanAlert(tx.QueryRowContext(ctx, `
		SELECT `+alertColumns+`
		FROM stock_alerts
		WHERE product_id = $1 AND kiosk_id = $2 AND status = 'active'
		FOR UPDATE
	`, alert.ProductID, alert.KioskID))
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE stock_alerts
			SET threshold = $2, quantity_at_trigger = $3, last_checked_at = $4
			WHERE id = $1
		`, existing.ID, alert.Threshold, alert.QuantityAtTrigger, alert.LastCheckedAt)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		existing.Threshold = alert.Threshold
		existing.QuantityAtTrigger = alert.QuantityAtTrigger
		existing.LastCheckedAt = alert.LastCheckedAt
		return existing, nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, err
	}

	if alert.ID == "" {
		alert.ID = xid.New("alert")
	}
	alert.Status = domain.AlertStatusActive
	alert.ResolvedAt = nil
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_alerts (id, product_id, kiosk_id, status, threshold,
			quantity_at_trigger, triggered_at, last_checked_at, last_notified_at, resolved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULL)
	`, alert.ID, alert.ProductID, alert.KioskID, alert.Status, alert.Threshold,
		alert.QuantityAtTrigger, alert.TriggeredAt, alert.LastCheckedAt, nullTime(alert.LastNotifiedAt))
	if err != nil {
		if isUniqueViolation(err) {
			_ = tx.Rollback()
			return s.refreshActiveAlert(ctx, alert)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := alert
	return &created, nil
}

func (s *Store) refreshActiveAlert(ctx context.Context, alert domain.StockAlert) (*domain.StockAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE stock_alerts
		SET threshold = $3, quantity_at_trigger = $4, last_checked_at = $5
		WHERE product_id = $1 AND kiosk_id = $2 AND status = 'active'
		RETURNING `+alertColumns+`
	`, alert.ProductID, alert.KioskID, alert.Threshold, alert.QuantityAtTrigger, alert.LastCheckedAt)
	refreshed, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return refreshed, nil
}

func (s *Store) ResolveActiveAlert(ctx context.Context, productID string, kioskID string, at time.Time) (*domain.StockAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE stock_alerts
		SET status = 'resolved', resolved_at = $3, last_checked_at = $3
		WHERE product_id = $1 AND kiosk_id = $2 AND status = 'active'
		RETURNING `+alertColumns+`
	`, productID, kioskID, at)
	resolved, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return resolved, nil
}

func (s *Store) ResolveAlert(ctx context.Context, alertID string, at time.Time) (*domain.StockAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE stock_alerts
		SET status = 'resolved', resolved_at = $2, last_checked_at = $2
		WHERE id = $1 AND status = 'active'
		RETURNING `+alertColumns+`
	`, alertID, at)
	resolved, err := scanAlert(row)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM stock_alerts WHERE id = $1`, alertID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return nil, store.ErrWrongState
}

func (s *Store) ListAlerts(ctx context.Context, kioskID string, status string, limit int) ([]domain.StockAlert, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+`
		FROM stock_alerts
		WHERE ($1 = '' OR kiosk_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY triggered_at DESC
		LIMIT $3
	`, kioskID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]domain.StockAlert, 0, limit)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (s *Store) CountActiveAlerts(ctx context.Context, kioskID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM stock_alerts
		WHERE status = 'active' AND ($1 = '' OR kiosk_id = $1)
	`, kioskID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) FindLatestDraftAutoOrder(ctx context.Context, kioskID string) (*domain.PurchaseOrder, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `
		SELECT id, kiosk_id, status, auto_generated, created_at, confirmed_at
		FROM purchase_orders
		WHERE kiosk_id = $1 AND status = 'draft' AND auto_generated = true
		ORDER BY created_at DESC
		LIMIT 1
	`, kioskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := s.attachOrderItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func scanOrder(row rowScanner) (*domain.PurchaseOrder, error) {
	var order domain.PurchaseOrder
	var confirmedAt sql.NullTime
	err := row.Scan(
		&order.ID,
		&order.KioskID,
		&order.Status,
		&order.AutoGenerated,
		&order.CreatedAt,
		&confirmedAt,
	)
	if err != nil {
		return nil, err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	if confirmedAt.Valid {
		at := confirmedAt.Time.UTC()
		order.ConfirmedAt = &at
	}
	return &order, nil
}

func (s *Store) attachOrderItems(ctx context.Context, order *domain.PurchaseOrder) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, product_id, current_qty, threshold, target_level, recommended_qty, synced_at
		FROM purchase_order_items
		WHERE order_id = $1
		ORDER BY product_id ASC
	`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	items := make([]domain.PurchaseOrderItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.CurrentQty, &item.Threshold,
			&item.TargetLevel, &item.RecommendedQty, &item.SyncedAt); err != nil {
			return err
		}
		item.SyncedAt = item.SyncedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	order.Items = items
	return nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, order domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, kiosk_id, status, auto_generated, created_at, confirmed_at)
		VALUES ($1,$2,$3,$4,$5,NULL)
	`, order.ID, order.KioskID, order.Status, order.AutoGenerated, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	order.Items = nil
	created := order
	return &created, nil
}

func (s *Store) UpsertOrderItem(ctx context.Context, item domain.PurchaseOrderItem) error {
	if item.OrderID == "" || item.ProductID == "" {
		return store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchase_order_items (order_id, product_id, current_qty, threshold,
			target_level, recommended_qty, synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (order_id, product_id)
		DO UPDATE SET current_qty = EXCLUDED.current_qty, threshold = EXCLUDED.threshold,
			target_level = EXCLUDED.target_level, recommended_qty = EXCLUDED.recommended_qty,
			synced_at = EXCLUDED.synced_at
	`, item.OrderID, item.ProductID, item.CurrentQty, item.Threshold, item.TargetLevel,
		item.RecommendedQty, item.SyncedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) RemoveOrderItemByProduct(ctx context.Context, kioskID string, productID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM purchase_order_items
		WHERE product_id = $2
			AND order_id IN (
				SELECT id FROM purchase_orders
				WHERE kiosk_id = $1 AND status = 'draft' AND auto_generated = true
			)
	`, kioskID, productID)
	return err
}

func (s *Store) GetPurchaseOrderByID(ctx context.Context, orderID string) (*domain.PurchaseOrder, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `
		SELECT id, kiosk_id, status, auto_generated, created_at, confirmed_at
		FROM purchase_orders
		WHERE id = $1
	`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := s.attachOrderItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, kioskID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kiosk_id, status, auto_generated, created_at, confirmed_at
		FROM purchase_orders
		WHERE ($1 = '' OR kiosk_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, kioskID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.PurchaseOrder, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return orders, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT order_id, product_id, current_qty, threshold, target_level, recommended_qty, synced_at
		FROM purchase_order_items
		WHERE order_id = ANY($1)
		ORDER BY product_id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	itemMap := make(map[string][]domain.PurchaseOrderItem, len(ids))
	for itemRows.Next() {
		var item domain.PurchaseOrderItem
		if err := itemRows.Scan(&item.OrderID, &item.ProductID, &item.CurrentQty, &item.Threshold,
			&item.TargetLevel, &item.RecommendedQty, &item.SyncedAt); err != nil {
			return nil, err
		}
		item.SyncedAt = item.SyncedAt.UTC()
		itemMap[item.OrderID] = append(itemMap[item.OrderID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		orders[i].Items = itemMap[orders[i].ID]
	}
	return orders, nil
}

func (s *Store) ConfirmPurchaseOrder(ctx context.Context, orderID string, at time.Time) (*domain.PurchaseOrder, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `
		UPDATE purchase_orders
		SET status = 'confirmed', confirmed_at = $2
		WHERE id = $1 AND status = 'draft'
		RETURNING id, kiosk_id, status, auto_generated, created_at, confirmed_at
	`, orderID, at))
	if err == nil {
		if err := s.attachOrderItems(ctx, order); err != nil {
			return nil, err
		}
		return order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM purchase_orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return nil, store.ErrWrongState
}

func (s *Store) CountDraftOrderLines(ctx context.Context, kioskID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM purchase_order_items i
		JOIN purchase_orders o ON o.id = i.order_id
		WHERE o.status = 'draft' AND o.auto_generated = true
			AND ($1 = '' OR o.kiosk_id = $1)
	`, kioskID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) GetKioskByID(ctx context.Context, kioskID string) (*domain.Kiosk, error) {
	var kiosk domain.Kiosk
	var location sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, location, created_at
		FROM kiosks
		WHERE id = $1
	`, kioskID).Scan(&kiosk.ID, &kiosk.Name, &location, &kiosk.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	kiosk.Location = location.String
	kiosk.CreatedAt = kiosk.CreatedAt.UTC()
	return &kiosk, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, customerID string) (*domain.Customer, error) {
	var customer domain.Customer
	var phone sql.NullString
	var lastVisit sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, total_spent_cents, purchase_count, loyalty_points, last_visit_at, created_at
		FROM customers
		WHERE id = $1
	`, customerID).Scan(&customer.ID, &customer.Name, &phone, &customer.TotalSpentCents,
		&customer.PurchaseCount, &customer.LoyaltyPoints, &lastVisit, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	customer.Phone = phone.String
	if lastVisit.Valid {
		at := lastVisit.Time.UTC()
		customer.LastVisitAt = &at
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func (s *Store) AccumulateCustomerStats(ctx context.Context, customerID string, amountCents int64, points int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET total_spent_cents = total_spent_cents + $2,
			purchase_count = purchase_count + 1,
			loyalty_points = loyalty_points + $3,
			last_visit_at = $4
		WHERE id = $1
	`, customerID, amountCents, points, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountSellerSalesBetween(ctx context.Context, sellerID string, from time.Time, to time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM sales
		WHERE seller_id = $1 AND created_at >= $2 AND created_at < $3
	`, sellerID, from, to).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) RecordSellerAchievement(ctx context.Context, achievement domain.SellerAchievement) (bool, error) {
	if achievement.SellerID == "" || achievement.Code == "" || achievement.Day == "" {
		return false, store.ErrInvalidInput
	}
	if achievement.ID == "" {
		achievement.ID = xid.New("ach")
	}
	if achievement.EarnedAt.IsZero() {
		achievement.EarnedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO seller_achievements (id, seller_id, code, day, earned_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (seller_id, code, day) DO NOTHING
	`, achievement.ID, achievement.SellerID, achievement.Code, achievement.Day, achievement.EarnedAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, name, password, role, kiosk_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.Username, user.Name, user.Password, user.Role, nullIfEmpty(user.KioskID), user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, name, password, role, kiosk_id, active, created_at
		FROM users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		var kioskID sql.NullString
		if err := rows.Scan(&user.Username, &user.Name, &user.Password, &user.Role,
			&kioskID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.KioskID = kioskID.String
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

package store

import (
	"context"
	"errors"
	"time"

	"kiostara/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAccessDenied      = errors.New("access denied")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrWindowExpired     = errors.New("cancellation window expired")
	ErrWrongState        = errors.New("wrong state for transition")
)

type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, productID string) (*domain.Product, error)
	ListProducts(ctx context.Context, kioskID string, lowOnly bool, limit int) ([]domain.Product, error)
	SetProductQuantity(ctx context.Context, productID string, quantity int) (*domain.Product, error)
	AdjustProductQuantity(ctx context.Context, productID string, delta int) (*domain.Product, error)
	ListReconcilableProducts(ctx context.Context) ([]domain.Product, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error)
	DeleteSaleRestock(ctx context.Context, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, kioskID string, sellerID string, limit int) ([]domain.Sale, error)

	GetActiveAlert(ctx context.Context, productID string, kioskID string) (*domain.StockAlert, error)
	UpsertActiveAlert(ctx context.Context, alert domain.StockAlert) (*domain.StockAlert, error)
	ResolveActiveAlert(ctx context.Context, productID string, kioskID string, at time.Time) (*domain.StockAlert, error)
	ResolveAlert(ctx context.Context, alertID string, at time.Time) (*domain.StockAlert, error)
	ListAlerts(ctx context.Context, kioskID string, status string, limit int) ([]domain.StockAlert, error)
	CountActiveAlerts(ctx context.Context, kioskID string) (int, error)

	FindLatestDraftAutoOrder(ctx context.Context, kioskID string) (*domain.PurchaseOrder, error)
	CreatePurchaseOrder(ctx context.Context, order domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	UpsertOrderItem(ctx context.Context, item domain.PurchaseOrderItem) error
	RemoveOrderItemByProduct(ctx context.Context, kioskID string, productID string) error
	GetPurchaseOrderByID(ctx context.Context, orderID string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, kioskID string, status string, limit int) ([]domain.PurchaseOrder, error)
	ConfirmPurchaseOrder(ctx context.Context, orderID string, at time.Time) (*domain.PurchaseOrder, error)
	CountDraftOrderLines(ctx context.Context, kioskID string) (int, error)

	GetKioskByID(ctx context.Context, kioskID string) (*domain.Kiosk, error)

	GetCustomerByID(ctx context.Context, customerID string) (*domain.Customer, error)
	AccumulateCustomerStats(ctx context.Context, customerID string, amountCents int64, points int64, at time.Time) error

	CountSellerSalesBetween(ctx context.Context, sellerID string, from time.Time, to time.Time) (int, error)
	RecordSellerAchievement(ctx context.Context, achievement domain.SellerAchievement) (bool, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

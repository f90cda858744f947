package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kiostara/backend/internal/cache"
	"kiostara/backend/internal/cascade"
	"kiostara/backend/internal/domain"
	"kiostara/backend/internal/reconcile"
	"kiostara/backend/internal/service"
	"kiostara/backend/internal/store/memory"
)

type apiEnv struct {
	handler     http.Handler
	dispatcher  *cascade.Dispatcher
	adminToken  string
	sellerToken string
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	repo := memory.NewSeeded()
	engine := reconcile.NewEngine(repo)
	dispatcher := cascade.NewDispatcher(2*time.Second, 0)
	svc := service.New(repo, engine, dispatcher, cache.NoopSummaryCache{}, 30*time.Second)
	auth := NewAuthManager("test-secret-0123456789-0123456789", time.Hour, repo)
	api := New(svc, auth, "http://localhost:5173")

	env := &apiEnv{handler: api.Handler(), dispatcher: dispatcher}
	env.adminToken = env.login(t, "admin", "admin123")
	env.sellerToken = env.login(t, "seller", "seller123")
	return env
}

func (e *apiEnv) login(t *testing.T, username, password string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: username,
		Password: password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:51234"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode response %s: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpointIsPublic(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/products", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d", rec.Code)
	}
}

func TestSaleFlowThroughAPI(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sales", env.sellerToken, domain.SaleCreateRequest{
		ProductID: "prd-mie",
		Quantity:  5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: status %d body %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	decodeBody(t, rec, &created)
	if created.Sale.ID == "" || created.Sale.TotalCents != 5*3500 {
		t.Fatalf("unexpected sale %+v", created.Sale)
	}
	env.dispatcher.Wait()

	rec = env.do(t, http.MethodGet, "/api/v1/products/prd-mie", env.sellerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get product: status %d", rec.Code)
	}
	var got struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, rec, &got)
	if got.Product.Quantity != 115 {
		t.Fatalf("expected quantity 115, got %d", got.Product.Quantity)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/sales/"+created.Sale.ID, env.sellerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel sale: status %d body %s", rec.Code, rec.Body.String())
	}
	env.dispatcher.Wait()

	rec = env.do(t, http.MethodGet, "/api/v1/products/prd-mie", env.sellerToken, nil)
	decodeBody(t, rec, &got)
	if got.Product.Quantity != 120 {
		t.Fatalf("expected quantity restored to 120, got %d", got.Product.Quantity)
	}
}

func TestSaleErrorsMapToStatuses(t *testing.T) {
	env := newAPIEnv(t)

	// Unknown product.
	rec := env.do(t, http.MethodPost, "/api/v1/sales", env.sellerToken, domain.SaleCreateRequest{
		ProductID: "prd-missing",
		Quantity:  1,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown product: status %d", rec.Code)
	}

	// More than in stock.
	rec = env.do(t, http.MethodPost, "/api/v1/sales", env.sellerToken, domain.SaleCreateRequest{
		ProductID: "prd-roti",
		Quantity:  26,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("oversell: status %d", rec.Code)
	}

	// Another kiosk's product as seller.
	rec = env.do(t, http.MethodPost, "/api/v1/sales", env.sellerToken, domain.SaleCreateRequest{
		ProductID: "prd-susu",
		Quantity:  1,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign kiosk: status %d", rec.Code)
	}

	// Zero quantity.
	rec = env.do(t, http.MethodPost, "/api/v1/sales", env.sellerToken, domain.SaleCreateRequest{
		ProductID: "prd-mie",
		Quantity:  0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero quantity: status %d", rec.Code)
	}
}

func TestAdminOnlyRoutesRejectSellers(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/products", env.sellerToken, domain.ProductCreateRequest{
		KioskID:    "kiosk-1",
		Name:       "Teh Botol",
		PriceCents: 4000,
		Quantity:   10,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("seller product create: status %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/users/sellers", env.sellerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("seller listing sellers: status %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/alerts/alert-x/resolve", env.sellerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("seller resolving alert: status %d", rec.Code)
	}
}

func TestAdjustStockAndAlertLifecycle(t *testing.T) {
	env := newAPIEnv(t)

	qty := 4
	rec := env.do(t, http.MethodPost, "/api/v1/products/prd-mie/stock", env.adminToken, domain.AdjustStockRequest{
		Quantity: &qty,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust stock: status %d body %s", rec.Code, rec.Body.String())
	}
	env.dispatcher.Wait()

	rec = env.do(t, http.MethodGet, "/api/v1/alerts?status=active&kiosk_id=kiosk-1", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list alerts: status %d", rec.Code)
	}
	var alerts struct {
		Alerts []domain.StockAlert `json:"alerts"`
	}
	decodeBody(t, rec, &alerts)
	if len(alerts.Alerts) != 1 {
		t.Fatalf("expected one active alert, got %d", len(alerts.Alerts))
	}
	alert := alerts.Alerts[0]
	if alert.ProductID != "prd-mie" || alert.QuantityAtTrigger != 4 {
		t.Fatalf("unexpected alert %+v", alert)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/resolve", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve alert: status %d body %s", rec.Code, rec.Body.String())
	}

	// Resolving again is a conflict, not a repeat success.
	rec = env.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/resolve", env.adminToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double resolve: status %d", rec.Code)
	}
}

func TestOrderConfirmThroughAPI(t *testing.T) {
	env := newAPIEnv(t)

	qty := 2
	rec := env.do(t, http.MethodPost, "/api/v1/products/prd-mie/stock", env.adminToken, domain.AdjustStockRequest{
		Quantity: &qty,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust stock: status %d", rec.Code)
	}
	env.dispatcher.Wait()

	rec = env.do(t, http.MethodGet, "/api/v1/orders?status=draft&kiosk_id=kiosk-1", env.adminToken, nil)
	var orders struct {
		Orders []domain.PurchaseOrder `json:"orders"`
	}
	decodeBody(t, rec, &orders)
	if len(orders.Orders) != 1 {
		t.Fatalf("expected one draft order, got %d", len(orders.Orders))
	}
	orderID := orders.Orders[0].ID

	rec = env.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/confirm", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: status %d body %s", rec.Code, rec.Body.String())
	}
	var confirmed struct {
		Order domain.PurchaseOrder `json:"order"`
	}
	decodeBody(t, rec, &confirmed)
	if confirmed.Order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed order, got %s", confirmed.Order.Status)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/confirm", env.adminToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double confirm: status %d", rec.Code)
	}

	// Confirm is admin-only even though the route admits sellers for reads.
	rec = env.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/confirm", env.sellerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("seller confirm: status %d", rec.Code)
	}
}

func TestLowStockSummaryEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/summary/low-stock", env.sellerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: status %d body %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Summary domain.LowStockSummary `json:"summary"`
	}
	decodeBody(t, rec, &got)
	if got.Summary.GeneratedAt == "" {
		t.Fatalf("summary missing timestamp: %+v", got.Summary)
	}

	// Sellers cannot read another kiosk's summary.
	rec = env.do(t, http.MethodGet, "/api/v1/summary/low-stock?kiosk_id=kiosk-2", env.sellerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign kiosk summary: status %d", rec.Code)
	}
}

func TestSellerManagementEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/users/sellers", env.adminToken, domain.SellerCreateRequest{
		Username: "kasirtiga",
		Name:     "Kasir Tiga",
		Password: "rahasia1",
		KioskID:  "kiosk-2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create seller: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/users/sellers", env.adminToken, nil)
	var got struct {
		Sellers []domain.SellerUser `json:"sellers"`
	}
	decodeBody(t, rec, &got)
	if len(got.Sellers) != 2 {
		t.Fatalf("expected 2 sellers, got %d", len(got.Sellers))
	}

	// The new seller can log in and only sees their kiosk.
	token := env.login(t, "kasirtiga", "rahasia1")
	rec = env.do(t, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("new seller products: status %d", rec.Code)
	}
	var products struct {
		Products []domain.Product `json:"products"`
	}
	decodeBody(t, rec, &products)
	for _, p := range products.Products {
		if p.KioskID != "kiosk-2" {
			t.Fatalf("seller must only see kiosk-2, saw %s", p.KioskID)
		}
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader([]byte(`{"product_id":"prd-mie","quantity":1,"surprise":true}`)))
	req.RemoteAddr = "192.0.2.10:51234"
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+env.sellerToken)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: status %d", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newAPIEnv(t)

	// Two login slots are already spent by newAPIEnv.
	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
			Username: "admin",
			Password: fmt.Sprintf("wrong-%d", i),
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status %d", i, rec.Code)
		}
	}

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", rec.Code)
	}
}

func TestSecurityHeadersAndCORS(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: status %d", rec.Code)
	}
	if !bytes.Contains([]byte(rec.Header().Get("Access-Control-Allow-Methods")), []byte("DELETE")) {
		t.Fatalf("preflight must allow DELETE, got %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}

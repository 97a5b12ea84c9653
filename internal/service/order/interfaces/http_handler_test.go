package interfaces_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"

	"lensmart/internal/pkg/auth"
	"lensmart/internal/pkg/database"
	"lensmart/internal/pkg/dbtest"
	"lensmart/internal/pkg/httpapi"
	identitydomain "lensmart/internal/service/identity/domain"
	identityinfra "lensmart/internal/service/identity/infrastructure"
	inventorydomain "lensmart/internal/service/inventory/domain"
	inventoryinfra "lensmart/internal/service/inventory/infrastructure"
	loyaltyinfra "lensmart/internal/service/loyalty/infrastructure"
	"lensmart/internal/service/loyalty/policy"
	"lensmart/internal/service/order/application"
	"lensmart/internal/service/order/infrastructure"
	"lensmart/internal/service/order/interfaces"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	db := dbtest.Open(t)
	ctx := context.Background()

	directory := identityinfra.NewGormDirectory(db)
	if err := directory.Upsert(ctx, &identitydomain.User{ID: "opt-1", Role: auth.RoleOptician}); err != nil {
		t.Fatal(err)
	}
	products := inventoryinfra.NewGormInventoryLedger(db)
	if err := products.Create(ctx, &inventorydomain.Product{ID: "lens-1", Name: "Lens", Price: decimal.NewFromInt(20), StockQty: 1, LoyaltyPointsReward: 10}); err != nil {
		t.Fatal(err)
	}
	accrual, err := policy.NewCELAccrualPolicy(policy.DefaultAccrualRule)
	if err != nil {
		t.Fatal(err)
	}

	svc := application.NewOrderApplicationService(application.Deps{
		Orders:    infrastructure.NewGormOrderRepository(db),
		Inventory: products,
		Points:    loyaltyinfra.NewGormPointsLedger(db),
		Accrual:   accrual,
		Directory: directory,
		Tx:        database.NewTransactor(db),
		Retry:     database.RetryPolicy{MaxAttempts: 1},
		Tracer:    noop.NewTracerProvider().Tracer("test"),
	})
	mux := http.NewServeMux()
	interfaces.NewOrderHandler(svc).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, userID, role, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if userID != "" {
		req.Header.Set(auth.HeaderUserID, userID)
		req.Header.Set(auth.HeaderUserRole, role)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, raw
}

func decodeError(t *testing.T, raw []byte) httpapi.ErrorBody {
	t.Helper()
	var body httpapi.ErrorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode error body %q: %v", raw, err)
	}
	return body
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	srv := newServer(t)

	resp, raw := do(t, srv, http.MethodPost, "/orders", "opt-1", "OPTICIAN",
		`{"opticianId":"opt-1","items":[{"productId":"lens-1","quantity":1}]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d: %s", resp.StatusCode, raw)
	}
	var submitted application.SubmitOrderResponse
	if err := json.Unmarshal(raw, &submitted); err != nil {
		t.Fatal(err)
	}
	itemID := submitted.Order.Items[0].ID

	resp, raw = do(t, srv, http.MethodPost, "/order-items/"+itemID, "admin-1", "ADMIN", `{"action":"confirm"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm status = %d: %s", resp.StatusCode, raw)
	}
	var result application.ItemResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatal(err)
	}
	if result.PointsCredited != 10 || result.Balance != 10 {
		t.Errorf("result = %+v", result)
	}

	resp, raw = do(t, srv, http.MethodPost, "/order-items/"+itemID+"/confirm", "admin-1", "ADMIN", "")
	if resp.StatusCode != http.StatusConflict || decodeError(t, raw).Code != "ALREADY_RESOLVED" {
		t.Errorf("second confirm = %d: %s", resp.StatusCode, raw)
	}

	resp, raw = do(t, srv, http.MethodGet, "/orders?opticianId=opt-1", "opt-1", "OPTICIAN", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), `"FULLY_PROCESSED"`) {
		t.Errorf("list = %d: %s", resp.StatusCode, raw)
	}
}

func TestInsufficientStockCarriesShortfall(t *testing.T) {
	srv := newServer(t)
	resp, raw := do(t, srv, http.MethodPost, "/orders", "opt-1", "OPTICIAN",
		`{"opticianId":"opt-1","items":[{"productId":"lens-1","quantity":3}]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit = %d: %s", resp.StatusCode, raw)
	}
	var submitted application.SubmitOrderResponse
	_ = json.Unmarshal(raw, &submitted)

	resp, raw = do(t, srv, http.MethodPost, "/order-items/"+submitted.Order.Items[0].ID+"/confirm", "admin-1", "ADMIN", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}
	body := decodeError(t, raw)
	if body.Code != "INSUFFICIENT_STOCK" || body.Details["shortfall"] != float64(2) {
		t.Errorf("body = %+v", body)
	}
}

func TestRequestRejections(t *testing.T) {
	srv := newServer(t)
	cases := []struct {
		name         string
		method, path string
		user, role   string
		body         string
		status       int
		code         string
	}{
		{"no identity", http.MethodGet, "/orders?opticianId=opt-1", "", "", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown field", http.MethodPost, "/orders", "opt-1", "OPTICIAN", `{"opticianId":"opt-1","items":[],"discount":5}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"foreign optician", http.MethodPost, "/orders", "opt-2", "OPTICIAN", `{"opticianId":"opt-1","items":[{"productId":"lens-1","quantity":1}]}`, http.StatusForbidden, "UNAUTHORIZED"},
		{"optician confirms", http.MethodPost, "/order-items/x/confirm", "opt-1", "OPTICIAN", "", http.StatusForbidden, "UNAUTHORIZED"},
		{"unknown action", http.MethodPost, "/order-items/x", "admin-1", "ADMIN", `{"action":"refund"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing item", http.MethodPost, "/order-items/x/cancel", "admin-1", "ADMIN", "", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := do(t, srv, tc.method, tc.path, tc.user, tc.role, tc.body)
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tc.status, raw)
			}
			if got := decodeError(t, raw).Code; string(got) != tc.code {
				t.Errorf("code = %s, want %s", got, tc.code)
			}
		})
	}
}

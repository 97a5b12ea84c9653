package interfaces_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"

	"lensmart/internal/pkg/auth"
	"lensmart/internal/pkg/database"
	"lensmart/internal/pkg/dbtest"
	"lensmart/internal/pkg/httpapi"
	identitydomain "lensmart/internal/service/identity/domain"
	identityinfra "lensmart/internal/service/identity/infrastructure"
	inventoryinfra "lensmart/internal/service/inventory/infrastructure"
	loyaltydomain "lensmart/internal/service/loyalty/domain"
	loyaltyinfra "lensmart/internal/service/loyalty/infrastructure"
	"lensmart/internal/service/redemption/application"
	"lensmart/internal/service/redemption/infrastructure"
	"lensmart/internal/service/redemption/interfaces"
)

// newServer 预置 lp-cloth 自身库存 5、50 分一件；opt-1 余额 60
func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	db := dbtest.Open(t)
	ctx := context.Background()

	directory := identityinfra.NewGormDirectory(db)
	for _, u := range []*identitydomain.User{
		{ID: "opt-1", Role: auth.RoleOptician},
		{ID: "opt-2", Role: auth.RoleOptician},
	} {
		if err := directory.Upsert(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	catalog := loyaltyinfra.NewGormLoyaltyCatalog(db)
	if err := catalog.Create(ctx, &loyaltydomain.LoyaltyProduct{ID: "lp-cloth", Name: "Cloth", PointsCost: 50, IsActive: true, StockQty: 5}); err != nil {
		t.Fatal(err)
	}
	points := loyaltyinfra.NewGormPointsLedger(db)
	if _, err := points.Credit(ctx, "opt-1", 60, loyaltydomain.ReasonOrderItemConfirmed, "seed"); err != nil {
		t.Fatal(err)
	}

	svc := application.NewRedemptionApplicationService(application.Deps{
		Redemptions: infrastructure.NewGormRedemptionRepository(db),
		Catalog:     catalog,
		Inventory:   inventoryinfra.NewGormInventoryLedger(db),
		Points:      points,
		Directory:   directory,
		Tx:          database.NewTransactor(db),
		Retry:       database.RetryPolicy{MaxAttempts: 1},
		Tracer:      noop.NewTracerProvider().Tracer("test"),
	})
	mux := http.NewServeMux()
	interfaces.NewRedemptionHandler(svc).RegisterRoutes(mux)
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

func submit(t *testing.T, srv *httptest.Server, quantity string) application.SubmitRedemptionResponse {
	t.Helper()
	resp, raw := do(t, srv, http.MethodPost, "/redemptions", "opt-1", "OPTICIAN",
		`{"opticianId":"opt-1","items":[{"loyaltyProductId":"lp-cloth","quantity":`+quantity+`}]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d: %s", resp.StatusCode, raw)
	}
	var submitted application.SubmitRedemptionResponse
	if err := json.Unmarshal(raw, &submitted); err != nil {
		t.Fatal(err)
	}
	return submitted
}

func TestRedemptionApproveOverHTTP(t *testing.T) {
	srv := newServer(t)
	submitted := submit(t, srv, "1")
	if submitted.TotalPoints != 50 || !submitted.SufficientBalance || submitted.Balance != 60 {
		t.Errorf("submit = %+v", submitted)
	}

	resp, raw := do(t, srv, http.MethodPost, "/redemptions/"+submitted.RedemptionID+"/status", "admin-1", "ADMIN", `{"status":"approve"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d: %s", resp.StatusCode, raw)
	}
	var result application.TransitionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatal(err)
	}
	if result.Balance != 10 || result.Redemption.Status != "APPROVED" {
		t.Errorf("result = %+v", result)
	}

	resp, raw = do(t, srv, http.MethodPost, "/redemptions/"+submitted.RedemptionID+"/reject", "admin-1", "ADMIN", "")
	if resp.StatusCode != http.StatusConflict || decodeError(t, raw).Code != "ALREADY_RESOLVED" {
		t.Errorf("reject approved = %d: %s", resp.StatusCode, raw)
	}
}

func TestInsufficientPointsCarriesShortfall(t *testing.T) {
	srv := newServer(t)
	submitted := submit(t, srv, "2")
	if submitted.SufficientBalance {
		t.Errorf("100 points against a balance of 60 should not look sufficient")
	}

	resp, raw := do(t, srv, http.MethodPost, "/redemptions/"+submitted.RedemptionID+"/approve", "admin-1", "ADMIN", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}
	body := decodeError(t, raw)
	if body.Code != "INSUFFICIENT_POINTS" || body.Details["needed"] != float64(100) || body.Details["shortfall"] != float64(40) {
		t.Errorf("body = %+v", body)
	}

	// 失败后仍为 PENDING，申请人可以撤销
	resp, raw = do(t, srv, http.MethodPost, "/redemptions/"+submitted.RedemptionID+"/cancel", "opt-1", "OPTICIAN", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), `"CANCELLED"`) {
		t.Errorf("cancel = %d: %s", resp.StatusCode, raw)
	}
}

func TestRedemptionRequestRejections(t *testing.T) {
	srv := newServer(t)
	cases := []struct {
		name         string
		method, path string
		user, role   string
		body         string
		status       int
		code         string
	}{
		{"no identity", http.MethodGet, "/redemptions?opticianId=opt-1", "", "", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"malformed status body", http.MethodPost, "/redemptions/x/status", "admin-1", "ADMIN", `{"status":`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", http.MethodPost, "/redemptions/x/status", "admin-1", "ADMIN", `{"status":"approve","note":"rush"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"status name as command", http.MethodPost, "/redemptions/x/status", "admin-1", "ADMIN", `{"status":"APPROVED"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"optician approves", http.MethodPost, "/redemptions/x/approve", "opt-1", "OPTICIAN", "", http.StatusForbidden, "UNAUTHORIZED"},
		{"foreign submit", http.MethodPost, "/redemptions", "opt-2", "OPTICIAN", `{"opticianId":"opt-1","items":[{"loyaltyProductId":"lp-cloth","quantity":1}]}`, http.StatusForbidden, "UNAUTHORIZED"},
		{"huge quantity", http.MethodPost, "/redemptions", "opt-1", "OPTICIAN", `{"opticianId":"opt-1","items":[{"loyaltyProductId":"lp-cloth","quantity":4611686018427387905}]}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing redemption", http.MethodGet, "/redemptions/x", "admin-1", "ADMIN", "", http.StatusNotFound, "NOT_FOUND"},
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

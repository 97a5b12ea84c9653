package httpapi_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/auth"
	"lensmart/internal/pkg/httpapi"
)

func TestWriteErrorIncludesShortfall(t *testing.T) {
	rec := httptest.NewRecorder()
	httpapi.WriteError(t.Context(), rec, &apperr.InsufficientStockError{ProductID: "p1", Requested: 3, Available: 2})

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var body httpapi.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != apperr.CodeInsufficientStock {
		t.Errorf("code = %s", body.Code)
	}
	if body.Details["shortfall"].(float64) != 1 {
		t.Errorf("shortfall = %v, want 1", body.Details["shortfall"])
	}
}

func TestStatusOf(t *testing.T) {
	tests := map[apperr.Code]int{
		apperr.CodeValidation:         400,
		apperr.CodeUnauthorized:       401,
		apperr.CodeNotFound:           404,
		apperr.CodeAlreadyResolved:    409,
		apperr.CodeInsufficientPoints: 409,
		apperr.CodeConflict:           409,
		apperr.CodeRetryExhausted:     503,
		apperr.CodeInternal:           500,
	}
	for code, want := range tests {
		if got := httpapi.StatusOf(code); got != want {
			t.Errorf("StatusOf(%s) = %d, want %d", code, got, want)
		}
	}
}

func TestInternalErrorsAreMasked(t *testing.T) {
	rec := httptest.NewRecorder()
	httpapi.WriteError(t.Context(), rec, errors.New("dial tcp 10.0.0.1:3306: refused"))
	if rec.Code != 500 || strings.Contains(rec.Body.String(), "10.0.0.1") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestDecodeStrict(t *testing.T) {
	type command struct {
		Action string `json:"action"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "ok", body: `{"action":"confirm"}`},
		{name: "unknown field", body: `{"action":"confirm","force":true}`, wantErr: true},
		{name: "trailing object", body: `{"action":"confirm"}{"action":"cancel"}`, wantErr: true},
		{name: "wrong type", body: `{"action":1}`, wantErr: true},
		{name: "empty", body: ``, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			var c command
			err := httpapi.DecodeStrict(r, &c)
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("err = %v, want validation", err)
			}
		})
	}
}

func TestAdminOnly(t *testing.T) {
	h := httpapi.AdminOnly(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	do := func(id, role string) int {
		r := httptest.NewRequest("GET", "/", nil)
		if id != "" {
			r.Header.Set(auth.HeaderUserID, id)
			r.Header.Set(auth.HeaderUserRole, role)
		}
		rec := httptest.NewRecorder()
		h(rec, r)
		return rec.Code
	}
	if got := do("", ""); got != http.StatusUnauthorized {
		t.Errorf("anonymous = %d, want 401", got)
	}
	if got := do("opt-1", "OPTICIAN"); got != http.StatusForbidden {
		t.Errorf("optician = %d, want 403", got)
	}
	if got := do("adm", "ADMIN"); got != http.StatusNoContent {
		t.Errorf("admin = %d, want 204", got)
	}
}

// internal/service/loyalty/interfaces/http_handler.go
package interfaces

import (
	"net/http"
	"strconv"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/auth"
	"lensmart/internal/pkg/httpapi"
	"lensmart/internal/service/loyalty/application"
)

type LoyaltyHandler struct {
	service *application.LoyaltyApplicationService
}

func NewLoyaltyHandler(service *application.LoyaltyApplicationService) *LoyaltyHandler {
	return &LoyaltyHandler{service: service}
}

func (h *LoyaltyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /opticians/{id}/points", httpapi.Authenticated(h.balance))
	mux.HandleFunc("GET /opticians/{id}/points/history", httpapi.Authenticated(h.history))
	mux.HandleFunc("GET /opticians/{id}/points/audit", httpapi.AdminOnly(h.audit))
	mux.HandleFunc("GET /loyalty-products/{id}", httpapi.Authenticated(h.loyaltyProduct))
}

func (h *LoyaltyHandler) balance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.FromContext(ctx)
	resp, err := h.service.Balance(ctx, actor, r.PathValue("id"))
	if err != nil {
		httpapi.WriteError(ctx, w, err)
		return
	}
	httpapi.WriteJSON(ctx, w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) history(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.FromContext(ctx)

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpapi.WriteError(ctx, w, apperr.Validation("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	resp, err := h.service.History(ctx, actor, r.PathValue("id"), limit)
	if err != nil {
		httpapi.WriteError(ctx, w, err)
		return
	}
	httpapi.WriteJSON(ctx, w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) audit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.FromContext(ctx)
	resp, err := h.service.Audit(ctx, actor, r.PathValue("id"))
	if err != nil {
		httpapi.WriteError(ctx, w, err)
		return
	}
	httpapi.WriteJSON(ctx, w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) loyaltyProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lp, err := h.service.LoyaltyProduct(ctx, r.PathValue("id"))
	if err != nil {
		httpapi.WriteError(ctx, w, err)
		return
	}
	httpapi.WriteJSON(ctx, w, http.StatusOK, lp)
}

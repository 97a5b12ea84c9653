// internal/service/redemption/interfaces/http_handler.go
package interfaces

import (
	"net/http"

	"lensmart/internal/pkg/auth"
	"lensmart/internal/pkg/httpapi"
	"lensmart/internal/service/redemption/application"
)

type RedemptionHandler struct {
	service *application.RedemptionApplicationService
}

func NewRedemptionHandler(service *application.RedemptionApplicationService) *RedemptionHandler {
	return &RedemptionHandler{service: service}
}

func (h *RedemptionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /redemptions", httpapi.Authenticated(h.submit))
	mux.HandleFunc("GET /redemptions", httpapi.Authenticated(h.list))
	mux.HandleFunc("GET /redemptions/{id}", httpapi.Authenticated(h.get))
	mux.HandleFunc("POST /redemptions/{id}/status", httpapi.Authenticated(h.statusCommand))
	mux.HandleFunc("POST /redemptions/{id}/approve", httpapi.Authenticated(h.statusAction("approve")))
	mux.HandleFunc("POST /redemptions/{id}/reject", httpapi.Authenticated(h.statusAction("reject")))
	mux.HandleFunc("POST /redemptions/{id}/cancel", httpapi.Authenticated(h.statusAction("cancel")))
}

func (h *RedemptionHandler) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.FromContext(ctx)

	var req application.SubmitRedemptionRequest
	if err := httpapi.DecodeStrict(r, &req); err != nil {
		httpapi.WriteError(ctx, w, err)
		return
	}
	resp, err := h.service.Submit(ctx, actor, r.Header.Get("Idempotency-Key"), &req)
	if err != nil {
		httpapi.WriteError(ctx, w, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	httpapi.WriteJSON(ctx, w, status, resp)
}

func (h *RedemptionHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.FromContext(ctx)
	view, err := h.service.Get(ctx, actor, r.PathValue("id"))
	if err != nil {
		httpapi.WriteError(ctx, w, err)
		return
	}
	httpapi.WriteJSON(ctx, w, http.StatusOK, view)
}

func (h *RedemptionHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.FromContext(ctx)
	views, err := h.service.List(ctx, actor, r.URL.Query().Get("opticianId"))
	if err != nil {
		httpapi.WriteError(ctx, w, err)
		return
	}
	httpapi.WriteJSON(ctx, w, http.StatusOK, map[string]any{"redemptions": views})
}

func (h *RedemptionHandler) statusCommand(w http.ResponseWriter, r *http.Request) {
	var cmd application.StatusCommand
	if err := httpapi.DecodeStrict(r, &cmd); err != nil {
		httpapi.WriteError(r.Context(), w, err)
		return
	}
	h.apply(w, r, &cmd)
}

func (h *RedemptionHandler) statusAction(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.apply(w, r, &application.StatusCommand{Status: status})
	}
}

func (h *RedemptionHandler) apply(w http.ResponseWriter, r *http.Request, cmd *application.StatusCommand) {
	ctx := r.Context()
	actor, _ := auth.FromContext(ctx)
	result, err := h.service.ApplyStatusCommand(ctx, actor, r.PathValue("id"), cmd)
	if err != nil {
		httpapi.WriteError(ctx, w, err)
		return
	}
	httpapi.WriteJSON(ctx, w, http.StatusOK, result)
}

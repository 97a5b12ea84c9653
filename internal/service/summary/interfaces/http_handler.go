// internal/service/summary/interfaces/http_handler.go
package interfaces

import (
	"net/http"

	"lensmart/internal/pkg/auth"
	"lensmart/internal/pkg/httpapi"
	"lensmart/internal/service/summary/application"
)

type SummaryHandler struct {
	service *application.SummaryApplicationService
}

func NewSummaryHandler(service *application.SummaryApplicationService) *SummaryHandler {
	return &SummaryHandler{service: service}
}

func (h *SummaryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/summary", httpapi.AdminOnly(h.adminSummary))
	mux.HandleFunc("GET /opticians/{id}/summary", httpapi.Authenticated(h.opticianSummary))
}

// adminSummary 支持 ?opticianId= 过滤
func (h *SummaryHandler) adminSummary(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, r.URL.Query().Get("opticianId"))
}

func (h *SummaryHandler) opticianSummary(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, r.PathValue("id"))
}

func (h *SummaryHandler) write(w http.ResponseWriter, r *http.Request, opticianID string) {
	ctx := r.Context()
	actor, _ := auth.FromContext(ctx)
	summary, err := h.service.Summary(ctx, actor, opticianID)
	if err != nil {
		httpapi.WriteError(ctx, w, err)
		return
	}
	httpapi.WriteJSON(ctx, w, http.StatusOK, summary)
}

// internal/service/order/interfaces/http_handler.go
package interfaces

import (
	"net/http"

	"lensmart/internal/pkg/auth"
	"lensmart/internal/pkg/httpapi"
	"lensmart/internal/service/order/application"
)

const idempotencyHeader = "Idempotency-Key"

// OrderHandler 封装了订单相关的 HTTP 处理器
type OrderHandler struct {
	service *application.OrderApplicationService
}

func NewOrderHandler(service *application.OrderApplicationService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", httpapi.Authenticated(h.submitOrder))
	mux.HandleFunc("GET /orders", httpapi.Authenticated(h.listOrders))
	mux.HandleFunc("GET /orders/{id}", httpapi.Authenticated(h.getOrder))
	mux.HandleFunc("POST /order-items/{itemId}", httpapi.Authenticated(h.itemCommand))
	mux.HandleFunc("POST /order-items/{itemId}/confirm", httpapi.Authenticated(h.itemAction("confirm")))
	mux.HandleFunc("POST /order-items/{itemId}/cancel", httpapi.Authenticated(h.itemAction("cancel")))
}

func (h *OrderHandler) submitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.FromContext(ctx)

	var req application.SubmitOrderRequest
	if err := httpapi.DecodeStrict(r, &req); err != nil {
		httpapi.WriteError(ctx, w, err)
		return
	}
	resp, err := h.service.SubmitOrder(ctx, actor, r.Header.Get(idempotencyHeader), &req)
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

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.FromContext(ctx)
	view, err := h.service.GetOrder(ctx, actor, r.PathValue("id"))
	if err != nil {
		httpapi.WriteError(ctx, w, err)
		return
	}
	httpapi.WriteJSON(ctx, w, http.StatusOK, view)
}

func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.FromContext(ctx)
	views, err := h.service.ListOrders(ctx, actor, r.URL.Query().Get("opticianId"))
	if err != nil {
		httpapi.WriteError(ctx, w, err)
		return
	}
	httpapi.WriteJSON(ctx, w, http.StatusOK, map[string]any{"orders": views})
}

// itemCommand 处理 {"action":"confirm"|"cancel"}
func (h *OrderHandler) itemCommand(w http.ResponseWriter, r *http.Request) {
	var cmd application.ItemCommand
	if err := httpapi.DecodeStrict(r, &cmd); err != nil {
		httpapi.WriteError(r.Context(), w, err)
		return
	}
	h.applyItemCommand(w, r, &cmd)
}

// itemAction 处理路径后缀形式，请求体可以为空
func (h *OrderHandler) itemAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.applyItemCommand(w, r, &application.ItemCommand{Action: action})
	}
}

func (h *OrderHandler) applyItemCommand(w http.ResponseWriter, r *http.Request, cmd *application.ItemCommand) {
	ctx := r.Context()
	actor, _ := auth.FromContext(ctx)
	result, err := h.service.ApplyItemAction(ctx, actor, r.PathValue("itemId"), cmd)
	if err != nil {
		httpapi.WriteError(ctx, w, err)
		return
	}
	httpapi.WriteJSON(ctx, w, http.StatusOK, result)
}

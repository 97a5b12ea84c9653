// internal/service/order/application/dto.go
package application

import (
	"time"

	"github.com/shopspring/decimal"

	"lensmart/internal/service/order/domain"
)

// SubmitOrderRequest 是提交订单用例的输入数据
type SubmitOrderRequest struct {
	OpticianID string             `json:"opticianId"`
	Items      []OrderLineRequest `json:"items"`
}

type OrderLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type SubmitOrderResponse struct {
	OrderID string     `json:"orderId"`
	Order   *OrderView `json:"order"`
	// Replayed 表示命中了幂等键，返回的是第一次创建的订单
	Replayed bool `json:"replayed,omitempty"`
}

// ItemCommand 是订单行操作的带标签请求体
type ItemCommand struct {
	Action string `json:"action"`
}

type OrderView struct {
	ID         string                 `json:"id"`
	OpticianID string                 `json:"opticianId"`
	CreatedAt  time.Time              `json:"createdAt"`
	Status     domain.AggregateStatus `json:"status"`
	Counts     domain.ItemCounts      `json:"itemCounts"`
	Total      decimal.Decimal        `json:"total"`
	Items      []ItemView             `json:"items"`
}

type ItemView struct {
	ID         string            `json:"id"`
	OrderID    string            `json:"orderId"`
	ProductID  string            `json:"productId"`
	Quantity   int               `json:"quantity"`
	UnitPrice  decimal.Decimal   `json:"unitPrice"`
	LineTotal  decimal.Decimal   `json:"lineTotal"`
	Status     domain.ItemStatus `json:"status"`
	ResolvedAt *time.Time        `json:"resolvedAt,omitempty"`
	ResolvedBy string            `json:"resolvedBy,omitempty"`
}

// ItemResult 是确认或取消后的权威状态，客户端据此刷新缓存
type ItemResult struct {
	Item           ItemView               `json:"item"`
	OrderStatus    domain.AggregateStatus `json:"orderStatus"`
	StockRemaining *int                   `json:"stockRemaining,omitempty"`
	PointsCredited int64                  `json:"pointsCredited"`
	Balance        int64                  `json:"balance"`
}

func toItemView(it *domain.OrderItem) ItemView {
	return ItemView{
		ID:         it.ID,
		OrderID:    it.OrderID,
		ProductID:  it.ProductID,
		Quantity:   it.Quantity,
		UnitPrice:  it.UnitPrice,
		LineTotal:  it.LineTotal(),
		Status:     it.Status,
		ResolvedAt: it.ResolvedAt,
		ResolvedBy: it.ResolvedBy,
	}
}

func toOrderView(o *domain.Order) *OrderView {
	v := &OrderView{
		ID:         o.ID,
		OpticianID: o.OpticianID,
		CreatedAt:  o.CreatedAt,
		Status:     o.Status(),
		Counts:     o.Counts(),
		Total:      o.Total(),
		Items:      make([]ItemView, 0, len(o.Items)),
	}
	for i := range o.Items {
		v.Items = append(v.Items, toItemView(&o.Items[i]))
	}
	return v
}

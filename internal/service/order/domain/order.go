// internal/service/order/domain/order.go
package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lensmart/internal/pkg/apperr"
)

// Order 是订单聚合的根实体
type Order struct {
	ID         string
	OpticianID string
	CreatedAt  time.Time
	Items      []OrderItem
}

// OrderItem 的 UnitPrice 在提交时锁定
type OrderItem struct {
	ID         string
	OrderID    string
	ProductID  string
	Quantity   int
	UnitPrice  decimal.Decimal
	Status     ItemStatus
	ResolvedAt *time.Time
	ResolvedBy string
}

// Line 是提交时的一行购物篮
type Line struct {
	ProductID string
	Quantity  int
}

// MaxQuantity 单行订购数量上限
const MaxQuantity = 100000

// ItemCounts 按状态统计的订单行数
type ItemCounts struct {
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Cancelled int `json:"cancelled"`
}

// NewOrder 校验购物篮并以当前价格快照生成订单，所有行初始为 PENDING。
// prices 中不存在的商品视为校验错误。
func NewOrder(opticianID string, lines []Line, prices map[string]decimal.Decimal, now time.Time) (*Order, error) {
	if opticianID == "" {
		return nil, apperr.Validation("opticianId is required")
	}
	if len(lines) == 0 {
		return nil, apperr.Validation("order must contain at least one item")
	}
	o := &Order{ID: uuid.NewString(), OpticianID: opticianID, CreatedAt: now}
	for i, l := range lines {
		if l.ProductID == "" {
			return nil, apperr.Validation("items[%d].productId is required", i)
		}
		if l.Quantity <= 0 {
			return nil, apperr.Validation("items[%d].quantity must be positive, got %d", i, l.Quantity)
		}
		if l.Quantity > MaxQuantity {
			return nil, apperr.Validation("items[%d].quantity must not exceed %d, got %d", i, MaxQuantity, l.Quantity)
		}
		price, ok := prices[l.ProductID]
		if !ok {
			return nil, apperr.Validation("items[%d]: unknown product %s", i, l.ProductID)
		}
		o.Items = append(o.Items, OrderItem{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: price,
			Status:    ItemPending,
		})
	}
	return o, nil
}

// RewardPoints 计算确认一行应发放的积分，乘积溢出时返回校验错误
func (it OrderItem) RewardPoints(reward int) (int64, error) {
	if reward <= 0 || it.Quantity <= 0 {
		return 0, nil
	}
	if int64(reward) > math.MaxInt64/int64(it.Quantity) {
		return 0, apperr.Validation("reward %d x quantity %d overflows", reward, it.Quantity)
	}
	return int64(it.Quantity) * int64(reward), nil
}

// Counts 统计各状态的订单行
func (o *Order) Counts() ItemCounts {
	var c ItemCounts
	for _, it := range o.Items {
		switch it.Status {
		case ItemPending:
			c.Pending++
		case ItemConfirmed:
			c.Confirmed++
		case ItemCancelled:
			c.Cancelled++
		}
	}
	return c
}

// Status 所有行都到达终态时为 FULLY_PROCESSED
func (o *Order) Status() AggregateStatus {
	for _, it := range o.Items {
		if !it.Status.Terminal() {
			return OrderPending
		}
	}
	return OrderFullyProcessed
}

// Total 按提交时的价格快照计算全部行的金额
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

func (it *OrderItem) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

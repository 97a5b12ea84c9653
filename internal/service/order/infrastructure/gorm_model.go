// internal/service/order/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderModel 对应 orders 表，订单聚合状态不落库
type OrderModel struct {
	ID         string           `gorm:"primaryKey;size:36"`
	OpticianID string           `gorm:"size:64;not null;index"`
	CreatedAt  time.Time        `gorm:"not null"`
	Items      []OrderItemModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string { return "orders" }

// OrderItemModel 对应 order_items 表，status 是确认与取消的 CAS 列
type OrderItemModel struct {
	ID         string          `gorm:"primaryKey;size:36"`
	OrderID    string          `gorm:"size:36;not null;index"`
	ProductID  string          `gorm:"size:64;not null;index"`
	Quantity   int             `gorm:"not null;check:chk_order_items_quantity,quantity > 0"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status     string          `gorm:"size:16;not null;index"`
	Position   int             `gorm:"not null"`
	ResolvedAt *time.Time
	ResolvedBy string `gorm:"size:64"`
}

func (OrderItemModel) TableName() string { return "order_items" }

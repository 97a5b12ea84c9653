// internal/service/inventory/domain/product.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product 是库存台账中的一行，StockQty 只能通过条件扣减和补货变更
type Product struct {
	ID                  string
	Name                string
	Price               decimal.Decimal
	StockQty            int
	LoyaltyPointsReward int
	UpdatedAt           time.Time
}

// RestockRequest 来自目录系统的补货指令，ProductID 与 LoyaltyProductID 二选一
type RestockRequest struct {
	ProductID        string `json:"productId,omitempty"`
	LoyaltyProductID string `json:"loyaltyProductId,omitempty"`
	Quantity         int    `json:"quantity"`
}

// internal/service/loyalty/domain/loyalty_product.go
package domain

// LoyaltyProduct 是积分兑换目录中的条目。
// 关联了实体商品时 StockQty 是 products 表库存的投影，否则为自身库存。
type LoyaltyProduct struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ProductID  *string `json:"productId,omitempty"`
	PointsCost int64   `json:"pointsCost"`
	IsActive   bool    `json:"isActive"`
	StockQty   int     `json:"stockQty"`
}

func (p *LoyaltyProduct) Linked() bool { return p.ProductID != nil && *p.ProductID != "" }

// internal/service/inventory/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"

	"lensmart/internal/service/inventory/domain"
)

// ProductModel 对应 products 表
type ProductModel struct {
	ID                  string          `gorm:"primaryKey;size:64"`
	Name                string          `gorm:"size:255;not null"`
	Price               decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	StockQty            int             `gorm:"not null;default:0;check:chk_products_stock,stock_qty >= 0"`
	LoyaltyPointsReward int             `gorm:"not null;default:0;check:chk_products_reward,loyalty_points_reward >= 0"`
	UpdatedAt           time.Time
}

func (ProductModel) TableName() string { return "products" }

func toDomainProduct(m *ProductModel) *domain.Product {
	return &domain.Product{
		ID:                  m.ID,
		Name:                m.Name,
		Price:               m.Price,
		StockQty:            m.StockQty,
		LoyaltyPointsReward: m.LoyaltyPointsReward,
		UpdatedAt:           m.UpdatedAt,
	}
}

func fromDomainProduct(p *domain.Product) *ProductModel {
	return &ProductModel{
		ID:                  p.ID,
		Name:                p.Name,
		Price:               p.Price,
		StockQty:            p.StockQty,
		LoyaltyPointsReward: p.LoyaltyPointsReward,
	}
}

// internal/service/loyalty/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"lensmart/internal/service/loyalty/domain"
)

// LoyaltyAccountModel 对应 loyalty_accounts 表，balance 是条件扣减的 CAS 列
type LoyaltyAccountModel struct {
	OpticianID string `gorm:"primaryKey;size:64"`
	Balance    int64  `gorm:"not null;default:0;check:chk_loyalty_accounts_balance,balance >= 0"`
	UpdatedAt  time.Time
}

func (LoyaltyAccountModel) TableName() string { return "loyalty_accounts" }

// PointsLedgerEntryModel 对应 points_ledger_entries 表，只插入不更新
type PointsLedgerEntryModel struct {
	ID             string `gorm:"primaryKey;size:36"`
	AccountID      string `gorm:"size:64;not null;index:idx_points_ledger_account"`
	Delta          int64  `gorm:"not null"`
	Reason         string `gorm:"size:32;not null"`
	ReferenceID    string `gorm:"size:64;not null"`
	IdempotencyKey string `gorm:"size:128;not null;uniqueIndex"`
	CreatedAt      time.Time
}

func (PointsLedgerEntryModel) TableName() string { return "points_ledger_entries" }

// LoyaltyProductModel 对应 loyalty_products 表。
// stock_qty 只对未关联实体商品的条目有意义，关联条目的库存通过联表计算。
type LoyaltyProductModel struct {
	ID         string  `gorm:"primaryKey;size:64"`
	Name       string  `gorm:"size:255;not null"`
	ProductID  *string `gorm:"size:64;index"`
	PointsCost int64   `gorm:"not null;check:chk_loyalty_products_cost,points_cost > 0"`
	IsActive   bool    `gorm:"not null"`
	StockQty   int     `gorm:"not null;default:0;check:chk_loyalty_products_stock,stock_qty >= 0"`
	UpdatedAt  time.Time
}

func (LoyaltyProductModel) TableName() string { return "loyalty_products" }

func toDomainEntry(m *PointsLedgerEntryModel) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:             m.ID,
		AccountID:      m.AccountID,
		Delta:          m.Delta,
		Reason:         domain.Reason(m.Reason),
		ReferenceID:    m.ReferenceID,
		IdempotencyKey: m.IdempotencyKey,
		CreatedAt:      m.CreatedAt,
	}
}

// internal/service/redemption/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"lensmart/internal/service/redemption/domain"
)

// RedemptionModel 对应 redemptions 表，status 是审批的 CAS 列
type RedemptionModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	OpticianID  string    `gorm:"size:64;not null;index"`
	Status      string    `gorm:"size:16;not null;index"`
	TotalPoints int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	ResolvedAt  *time.Time
	ResolvedBy  string                `gorm:"size:64"`
	Items       []RedemptionItemModel `gorm:"foreignKey:RedemptionID"`
}

func (RedemptionModel) TableName() string { return "redemptions" }

type RedemptionItemModel struct {
	ID               string `gorm:"primaryKey;size:36"`
	RedemptionID     string `gorm:"size:36;not null;index"`
	LoyaltyProductID string `gorm:"size:64;not null;index"`
	Quantity         int    `gorm:"not null;check:chk_redemption_items_quantity,quantity > 0"`
	PointsCost       int64  `gorm:"not null"`
	TotalPoints      int64  `gorm:"not null"`
	Position         int    `gorm:"not null"`
}

func (RedemptionItemModel) TableName() string { return "redemption_items" }

func toRedemptionModel(r *domain.Redemption) *RedemptionModel {
	m := &RedemptionModel{
		ID:          r.ID,
		OpticianID:  r.OpticianID,
		Status:      string(r.Status),
		TotalPoints: r.TotalPoints,
		CreatedAt:   r.CreatedAt,
		ResolvedAt:  r.ResolvedAt,
		ResolvedBy:  r.ResolvedBy,
	}
	for i, it := range r.Items {
		m.Items = append(m.Items, RedemptionItemModel{
			ID:               it.ID,
			RedemptionID:     r.ID,
			LoyaltyProductID: it.LoyaltyProductID,
			Quantity:         it.Quantity,
			PointsCost:       it.PointsCost,
			TotalPoints:      it.TotalPoints,
			Position:         i,
		})
	}
	return m
}

func toDomainRedemption(m *RedemptionModel) *domain.Redemption {
	r := &domain.Redemption{
		ID:          m.ID,
		OpticianID:  m.OpticianID,
		Status:      domain.Status(m.Status),
		TotalPoints: m.TotalPoints,
		CreatedAt:   m.CreatedAt,
		ResolvedAt:  m.ResolvedAt,
		ResolvedBy:  m.ResolvedBy,
	}
	for _, it := range m.Items {
		r.Items = append(r.Items, domain.Item{
			ID:               it.ID,
			RedemptionID:     it.RedemptionID,
			LoyaltyProductID: it.LoyaltyProductID,
			Quantity:         it.Quantity,
			PointsCost:       it.PointsCost,
			TotalPoints:      it.TotalPoints,
		})
	}
	return r
}

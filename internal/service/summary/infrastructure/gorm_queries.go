// internal/service/summary/infrastructure/gorm_queries.go
package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"lensmart/internal/service/summary/domain"
)

// GormSummaryQueries 直接在订单、兑换单与积分流水上聚合，不维护任何缓存
type GormSummaryQueries struct {
	db *gorm.DB
}

func NewGormSummaryQueries(db *gorm.DB) *GormSummaryQueries {
	return &GormSummaryQueries{db: db}
}

// ItemStats opticianID 为空时统计全部眼镜店
func (q *GormSummaryQueries) ItemStats(ctx context.Context, opticianID string) ([]domain.ItemStat, error) {
	tx := q.db.WithContext(ctx).
		Table("order_items AS oi").
		Select("o.optician_id AS optician_id, oi.status AS status, COUNT(*) AS items, COALESCE(SUM(oi.quantity * oi.unit_price), 0) AS line_value").
		Joins("JOIN orders AS o ON o.id = oi.order_id").
		Group("o.optician_id, oi.status")
	if opticianID != "" {
		tx = tx.Where("o.optician_id = ?", opticianID)
	}
	var rows []domain.ItemStat
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "aggregate order items")
	}
	return rows, nil
}

func (q *GormSummaryQueries) RedemptionStats(ctx context.Context, opticianID string) ([]domain.RedemptionStat, error) {
	tx := q.db.WithContext(ctx).
		Table("redemptions").
		Select("optician_id, status, COUNT(*) AS total").
		Group("optician_id, status")
	if opticianID != "" {
		tx = tx.Where("optician_id = ?", opticianID)
	}
	var rows []domain.RedemptionStat
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "aggregate redemptions")
	}
	return rows, nil
}

// PointsStats 入账与扣减分别汇总正负流水
func (q *GormSummaryQueries) PointsStats(ctx context.Context, opticianID string) ([]domain.PointsStat, error) {
	tx := q.db.WithContext(ctx).
		Table("points_ledger_entries").
		Select(`account_id AS optician_id,
			COALESCE(SUM(CASE WHEN delta > 0 THEN delta ELSE 0 END), 0) AS issued,
			COALESCE(SUM(CASE WHEN delta < 0 THEN -delta ELSE 0 END), 0) AS redeemed`).
		Group("account_id")
	if opticianID != "" {
		tx = tx.Where("account_id = ?", opticianID)
	}
	var rows []domain.PointsStat
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "aggregate points ledger")
	}
	return rows, nil
}

// internal/service/loyalty/infrastructure/gorm_catalog.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/database"
	"lensmart/internal/service/loyalty/domain"
)

// 关联条目的库存取自 products 表，未关联条目取自身 stock_qty
const projectionColumns = `lp.id, lp.name, lp.product_id, lp.points_cost, lp.is_active,
	CASE WHEN lp.product_id IS NULL THEN lp.stock_qty ELSE COALESCE(p.stock_qty, 0) END AS stock_qty`

type projectionRow struct {
	ID         string
	Name       string
	ProductID  *string
	PointsCost int64
	IsActive   bool
	StockQty   int
}

// GormLoyaltyCatalog 读取积分兑换目录，并维护未关联条目的自身库存
type GormLoyaltyCatalog struct {
	db *gorm.DB
}

func NewGormLoyaltyCatalog(db *gorm.DB) *GormLoyaltyCatalog {
	return &GormLoyaltyCatalog{db: db}
}

func (c *GormLoyaltyCatalog) projection(ctx context.Context) *gorm.DB {
	return database.Conn(ctx, c.db).
		Table("loyalty_products AS lp").
		Select(projectionColumns).
		Joins("LEFT JOIN products AS p ON p.id = lp.product_id")
}

// Get 返回带库存投影的兑换条目
func (c *GormLoyaltyCatalog) Get(ctx context.Context, id string) (*domain.LoyaltyProduct, error) {
	var rows []projectionRow
	if err := c.projection(ctx).Where("lp.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "load loyalty product %s", id)
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("loyalty product", id)
	}
	return toDomainLoyaltyProduct(&rows[0]), nil
}

// GetMany 批量读取，不存在的 id 不出现在结果中
func (c *GormLoyaltyCatalog) GetMany(ctx context.Context, ids []string) (map[string]*domain.LoyaltyProduct, error) {
	out := make(map[string]*domain.LoyaltyProduct, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []projectionRow
	if err := c.projection(ctx).Where("lp.id IN ?", ids).Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load loyalty products")
	}
	for i := range rows {
		out[rows[i].ID] = toDomainLoyaltyProduct(&rows[i])
	}
	return out, nil
}

// TryDecrementOwnStock 条件扣减未关联条目的自身库存，返回扣减后的库存
func (c *GormLoyaltyCatalog) TryDecrementOwnStock(ctx context.Context, id string, qty int) (int, error) {
	if qty <= 0 {
		return 0, apperr.Validation("quantity must be positive, got %d", qty)
	}
	db := database.Conn(ctx, c.db)
	res := db.Model(&LoyaltyProductModel{}).
		Where("id = ? AND product_id IS NULL AND stock_qty >= ?", id, qty).
		Updates(map[string]interface{}{
			"stock_qty":  gorm.Expr("stock_qty - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, database.Classify(errors.Wrapf(res.Error, "decrement stock of loyalty product %s", id))
	}

	m, err := c.ownRow(db, id)
	if err != nil {
		return 0, err
	}
	if res.RowsAffected == 1 {
		return m.StockQty, nil
	}
	if m.ProductID != nil {
		return 0, apperr.Validation("loyalty product %s is linked to product %s, decrement the product instead", id, *m.ProductID)
	}
	if m.StockQty >= qty {
		return 0, apperr.Conflict(errors.Errorf("stock of loyalty product %s changed during decrement", id))
	}
	return 0, &apperr.InsufficientStockError{ProductID: id, Requested: qty, Available: m.StockQty}
}

// IncrementOwnStock 补货未关联条目；关联条目的库存只能通过实体商品补货
func (c *GormLoyaltyCatalog) IncrementOwnStock(ctx context.Context, id string, qty int) (int, error) {
	if qty <= 0 {
		return 0, apperr.Validation("quantity must be positive, got %d", qty)
	}
	db := database.Conn(ctx, c.db)
	m, err := c.ownRow(db, id)
	if err != nil {
		return 0, err
	}
	if m.ProductID != nil {
		return 0, apperr.Validation("loyalty product %s is linked to product %s, restock the product instead", id, *m.ProductID)
	}
	res := db.Model(&LoyaltyProductModel{}).
		Where("id = ? AND product_id IS NULL", id).
		Updates(map[string]interface{}{
			"stock_qty":  gorm.Expr("stock_qty + ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, database.Classify(errors.Wrapf(res.Error, "increment stock of loyalty product %s", id))
	}
	m, err = c.ownRow(db, id)
	if err != nil {
		return 0, err
	}
	return m.StockQty, nil
}

// Create 写入兑换条目。关联条目的自身库存恒为 0。
func (c *GormLoyaltyCatalog) Create(ctx context.Context, p *domain.LoyaltyProduct) error {
	if p.PointsCost <= 0 {
		return apperr.Validation("points cost must be positive")
	}
	m := &LoyaltyProductModel{
		ID:         p.ID,
		Name:       p.Name,
		PointsCost: p.PointsCost,
		IsActive:   p.IsActive,
	}
	if p.Linked() {
		m.ProductID = p.ProductID
	} else {
		m.StockQty = p.StockQty
	}
	if err := database.Conn(ctx, c.db).Create(m).Error; err != nil {
		return errors.Wrapf(err, "create loyalty product %s", p.ID)
	}
	return nil
}

// SetActive 上下架，不影响已提交的兑换单
func (c *GormLoyaltyCatalog) SetActive(ctx context.Context, id string, active bool) error {
	res := database.Conn(ctx, c.db).Model(&LoyaltyProductModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update loyalty product %s", id)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("loyalty product", id)
	}
	return nil
}

func (c *GormLoyaltyCatalog) ownRow(db *gorm.DB, id string) (*LoyaltyProductModel, error) {
	var m LoyaltyProductModel
	err := db.Select("id", "product_id", "stock_qty").Where("id = ?", id).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("loyalty product", id)
		}
		return nil, database.Classify(errors.Wrapf(err, "read loyalty product %s", id))
	}
	return &m, nil
}

func toDomainLoyaltyProduct(r *projectionRow) *domain.LoyaltyProduct {
	return &domain.LoyaltyProduct{
		ID:         r.ID,
		Name:       r.Name,
		ProductID:  r.ProductID,
		PointsCost: r.PointsCost,
		IsActive:   r.IsActive,
		StockQty:   r.StockQty,
	}
}

// internal/service/inventory/infrastructure/gorm_ledger.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/database"
	"lensmart/internal/service/inventory/domain"
)

// GormInventoryLedger 是库存台账的 GORM 实现。
// 所有写操作都通过 database.Conn 参与调用方的事务。
type GormInventoryLedger struct {
	db *gorm.DB
}

func NewGormInventoryLedger(db *gorm.DB) *GormInventoryLedger {
	return &GormInventoryLedger{db: db}
}

// TryDecrement 单条条件更新扣减库存，返回扣减后的库存。
// 条件不满足时不做任何修改，返回带准确缺口的 InsufficientStockError。
func (l *GormInventoryLedger) TryDecrement(ctx context.Context, productID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, apperr.Validation("quantity must be positive, got %d", qty)
	}
	db := database.Conn(ctx, l.db)
	res := db.Model(&ProductModel{}).
		Where("id = ? AND stock_qty >= ?", productID, qty).
		Updates(map[string]interface{}{
			"stock_qty":  gorm.Expr("stock_qty - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, database.Classify(errors.Wrapf(res.Error, "decrement stock of product %s", productID))
	}

	stock, err := l.stockOf(db, productID)
	if err != nil {
		return 0, err
	}
	if res.RowsAffected == 1 {
		return stock, nil
	}
	if stock >= qty {
		// 守卫失败后库存又被补足，交给重试重新判断
		return 0, apperr.Conflict(errors.Errorf("stock of product %s changed during decrement", productID))
	}
	return 0, &apperr.InsufficientStockError{ProductID: productID, Requested: qty, Available: stock}
}

// Increment 补货，是库存增加的唯一路径
func (l *GormInventoryLedger) Increment(ctx context.Context, productID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, apperr.Validation("quantity must be positive, got %d", qty)
	}
	db := database.Conn(ctx, l.db)
	res := db.Model(&ProductModel{}).
		Where("id = ?", productID).
		Updates(map[string]interface{}{
			"stock_qty":  gorm.Expr("stock_qty + ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, database.Classify(errors.Wrapf(res.Error, "increment stock of product %s", productID))
	}
	if res.RowsAffected == 0 {
		return 0, apperr.NotFound("product", productID)
	}
	return l.stockOf(db, productID)
}

// Get 读取商品当前快照
func (l *GormInventoryLedger) Get(ctx context.Context, productID string) (*domain.Product, error) {
	var m ProductModel
	err := database.Conn(ctx, l.db).Where("id = ?", productID).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("product", productID)
		}
		return nil, errors.Wrapf(err, "load product %s", productID)
	}
	return toDomainProduct(&m), nil
}

// GetMany 批量读取，结果以 id 为键，不存在的 id 不出现在结果中
func (l *GormInventoryLedger) GetMany(ctx context.Context, productIDs []string) (map[string]*domain.Product, error) {
	var models []ProductModel
	if len(productIDs) > 0 {
		if err := database.Conn(ctx, l.db).Where("id IN ?", productIDs).Find(&models).Error; err != nil {
			return nil, errors.Wrap(err, "load products")
		}
	}
	out := make(map[string]*domain.Product, len(models))
	for i := range models {
		out[models[i].ID] = toDomainProduct(&models[i])
	}
	return out, nil
}

// Create 写入商品目录行，目录维护由外部系统负责，这里用于初始化数据
func (l *GormInventoryLedger) Create(ctx context.Context, p *domain.Product) error {
	if p.StockQty < 0 || p.LoyaltyPointsReward < 0 {
		return apperr.Validation("stock and reward must not be negative")
	}
	if err := database.Conn(ctx, l.db).Create(fromDomainProduct(p)).Error; err != nil {
		return errors.Wrapf(err, "create product %s", p.ID)
	}
	return nil
}

func (l *GormInventoryLedger) stockOf(db *gorm.DB, productID string) (int, error) {
	var m ProductModel
	err := db.Select("stock_qty").Where("id = ?", productID).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.NotFound("product", productID)
		}
		return 0, database.Classify(errors.Wrapf(err, "read stock of product %s", productID))
	}
	return m.StockQty, nil
}

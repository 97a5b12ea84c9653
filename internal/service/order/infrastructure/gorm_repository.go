// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/database"
	"lensmart/internal/service/order/domain"
)

// GormOrderRepository 是 OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if err := database.Conn(ctx, r.db).Create(toOrderModel(order)).Error; err != nil {
		return database.Classify(errors.Wrapf(err, "create order %s", order.ID))
	}
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var m OrderModel
	err := database.Conn(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order", id)
		}
		return nil, errors.Wrapf(err, "load order %s", id)
	}
	return toDomainOrder(&m), nil
}

// ListByOptician 按创建时间倒序返回该眼镜店的全部订单
func (r *GormOrderRepository) ListByOptician(ctx context.Context, opticianID string) ([]*domain.Order, error) {
	var models []OrderModel
	err := database.Conn(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("optician_id = ?", opticianID).
		Order("created_at DESC, id DESC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list orders of optician %s", opticianID)
	}
	out := make([]*domain.Order, 0, len(models))
	for i := range models {
		out = append(out, toDomainOrder(&models[i]))
	}
	return out, nil
}

func (r *GormOrderRepository) FindItem(ctx context.Context, itemID string) (*domain.OrderItem, error) {
	var m OrderItemModel
	err := database.Conn(ctx, r.db).Where("id = ?", itemID).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order item", itemID)
		}
		return nil, database.Classify(errors.Wrapf(err, "load order item %s", itemID))
	}
	item := toDomainItem(&m)
	return &item, nil
}

// ResolveItem 以 status = 'PENDING' 作为守卫写入终态。
// 影响行数为 0 时重新读取，区分不存在与已被处理。
func (r *GormOrderRepository) ResolveItem(ctx context.Context, itemID string, to domain.ItemStatus, by string, at time.Time) error {
	if !to.Terminal() {
		return apperr.Validation("cannot resolve order item to %s", to)
	}
	db := database.Conn(ctx, r.db)
	res := db.Model(&OrderItemModel{}).
		Where("id = ? AND status = ?", itemID, string(domain.ItemPending)).
		Updates(map[string]interface{}{
			"status":      string(to),
			"resolved_at": at,
			"resolved_by": by,
		})
	if res.Error != nil {
		return database.Classify(errors.Wrapf(res.Error, "resolve order item %s", itemID))
	}
	if res.RowsAffected == 1 {
		return nil
	}
	current, err := r.FindItem(ctx, itemID)
	if err != nil {
		return err
	}
	if current.Status == domain.ItemPending {
		return apperr.Conflict(errors.Errorf("order item %s changed during update", itemID))
	}
	return apperr.AlreadyResolved("order item", itemID, string(current.Status))
}

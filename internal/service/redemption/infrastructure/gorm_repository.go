// internal/service/redemption/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/database"
	"lensmart/internal/service/redemption/domain"
)

type GormRedemptionRepository struct {
	db *gorm.DB
}

func NewGormRedemptionRepository(db *gorm.DB) *GormRedemptionRepository {
	return &GormRedemptionRepository{db: db}
}

func itemsInOrder(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }

func (r *GormRedemptionRepository) Create(ctx context.Context, red *domain.Redemption) error {
	if err := database.Conn(ctx, r.db).Create(toRedemptionModel(red)).Error; err != nil {
		return database.Classify(errors.Wrapf(err, "create redemption %s", red.ID))
	}
	return nil
}

func (r *GormRedemptionRepository) FindByID(ctx context.Context, id string) (*domain.Redemption, error) {
	var m RedemptionModel
	err := database.Conn(ctx, r.db).Preload("Items", itemsInOrder).Where("id = ?", id).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("redemption", id)
		}
		return nil, database.Classify(errors.Wrapf(err, "load redemption %s", id))
	}
	return toDomainRedemption(&m), nil
}

func (r *GormRedemptionRepository) ListByOptician(ctx context.Context, opticianID string) ([]*domain.Redemption, error) {
	var models []RedemptionModel
	err := database.Conn(ctx, r.db).
		Preload("Items", itemsInOrder).
		Where("optician_id = ?", opticianID).
		Order("created_at DESC, id DESC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list redemptions of optician %s", opticianID)
	}
	out := make([]*domain.Redemption, 0, len(models))
	for i := range models {
		out = append(out, toDomainRedemption(&models[i]))
	}
	return out, nil
}

// Resolve 以 status = 'PENDING' 作为守卫写入终态
func (r *GormRedemptionRepository) Resolve(ctx context.Context, id string, to domain.Status, by string, at time.Time) error {
	if !to.Terminal() {
		return apperr.Validation("cannot resolve redemption to %s", to)
	}
	db := database.Conn(ctx, r.db)
	res := db.Model(&RedemptionModel{}).
		Where("id = ? AND status = ?", id, string(domain.StatusPending)).
		Updates(map[string]interface{}{
			"status":      string(to),
			"resolved_at": at,
			"resolved_by": by,
		})
	if res.Error != nil {
		return database.Classify(errors.Wrapf(res.Error, "resolve redemption %s", id))
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var m RedemptionModel
	if err := db.Select("id", "status").Where("id = ?", id).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("redemption", id)
		}
		return database.Classify(errors.Wrapf(err, "reload redemption %s", id))
	}
	if domain.Status(m.Status) == domain.StatusPending {
		return apperr.Conflict(errors.Errorf("redemption %s changed during update", id))
	}
	return apperr.AlreadyResolved("redemption", id, m.Status)
}

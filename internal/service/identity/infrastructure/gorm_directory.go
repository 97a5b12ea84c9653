// internal/service/identity/infrastructure/gorm_directory.go
package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/auth"
	"lensmart/internal/pkg/database"
	"lensmart/internal/service/identity/domain"
)

// UserModel 对应 users 表
type UserModel struct {
	ID   string `gorm:"primaryKey;size:64"`
	Name string `gorm:"size:255"`
	Role string `gorm:"size:16;not null;index"`
}

func (UserModel) TableName() string { return "users" }

type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// Lookup 查找用户，不存在返回 NotFound
func (d *GormDirectory) Lookup(ctx context.Context, userID string) (*domain.User, error) {
	var m UserModel
	err := database.Conn(ctx, d.db).Where("id = ?", userID).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user", userID)
		}
		return nil, errors.Wrapf(err, "load user %s", userID)
	}
	return &domain.User{ID: m.ID, Name: m.Name, Role: auth.Role(m.Role)}, nil
}

// Upsert 写入或更新目录条目，由身份同步任务与初始化数据使用
func (d *GormDirectory) Upsert(ctx context.Context, u *domain.User) error {
	if !u.Role.Valid() {
		return apperr.Validation("invalid role %q", u.Role)
	}
	m := &UserModel{ID: u.ID, Name: u.Name, Role: string(u.Role)}
	if err := database.Conn(ctx, d.db).Save(m).Error; err != nil {
		return errors.Wrapf(err, "save user %s", u.ID)
	}
	return nil
}

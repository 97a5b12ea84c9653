// internal/migrate/migrate.go
package migrate

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	identityinfra "lensmart/internal/service/identity/infrastructure"
	inventoryinfra "lensmart/internal/service/inventory/infrastructure"
	loyaltyinfra "lensmart/internal/service/loyalty/infrastructure"
	orderinfra "lensmart/internal/service/order/infrastructure"
	redemptioninfra "lensmart/internal/service/redemption/infrastructure"
)

// Models 返回全部持久化模型，顺序即建表顺序
func Models() []interface{} {
	return []interface{}{
		&identityinfra.UserModel{},
		&inventoryinfra.ProductModel{},
		&loyaltyinfra.LoyaltyProductModel{},
		&loyaltyinfra.LoyaltyAccountModel{},
		&loyaltyinfra.PointsLedgerEntryModel{},
		&orderinfra.OrderModel{},
		&orderinfra.OrderItemModel{},
		&redemptioninfra.RedemptionModel{},
		&redemptioninfra.RedemptionItemModel{},
	}
}

func Run(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return errors.Wrap(err, "auto migrate")
	}
	return nil
}

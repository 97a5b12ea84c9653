// internal/service/redemption/domain/port/ports.go
package port

import (
	"context"

	identitydomain "lensmart/internal/service/identity/domain"
	loyaltydomain "lensmart/internal/service/loyalty/domain"
	"lensmart/internal/service/events"
)

// LoyaltyCatalog 提供带库存投影的兑换目录，以及未关联条目的自身库存扣减
type LoyaltyCatalog interface {
	Get(ctx context.Context, id string) (*loyaltydomain.LoyaltyProduct, error)
	GetMany(ctx context.Context, ids []string) (map[string]*loyaltydomain.LoyaltyProduct, error)
	TryDecrementOwnStock(ctx context.Context, id string, qty int) (int, error)
}

// Inventory 扣减关联实体商品的库存
type Inventory interface {
	TryDecrement(ctx context.Context, productID string, qty int) (int, error)
}

type PointsLedger interface {
	TryDebit(ctx context.Context, accountID string, amount int64, reason loyaltydomain.Reason, referenceID string) (int64, error)
	Balance(ctx context.Context, accountID string) (int64, error)
}

type Directory interface {
	Lookup(ctx context.Context, userID string) (*identitydomain.User, error)
}

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventPublisher interface {
	Publish(ctx context.Context, e events.Envelope) error
}

type Idempotency interface {
	Claim(ctx context.Context, scope, key string) (string, error)
	Complete(ctx context.Context, scope, key, resourceID string) error
	Release(ctx context.Context, scope, key string) error
}

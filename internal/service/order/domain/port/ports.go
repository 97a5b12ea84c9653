// internal/service/order/domain/port/ports.go
package port

import (
	"context"

	identitydomain "lensmart/internal/service/identity/domain"
	inventorydomain "lensmart/internal/service/inventory/domain"
	loyaltydomain "lensmart/internal/service/loyalty/domain"
	"lensmart/internal/service/events"
	"lensmart/internal/service/loyalty/policy"
)

// Inventory 是确认流程依赖的库存台账
type Inventory interface {
	Get(ctx context.Context, productID string) (*inventorydomain.Product, error)
	GetMany(ctx context.Context, productIDs []string) (map[string]*inventorydomain.Product, error)
	TryDecrement(ctx context.Context, productID string, qty int) (int, error)
}

// PointsLedger 是确认流程依赖的积分台账
type PointsLedger interface {
	Credit(ctx context.Context, accountID string, amount int64, reason loyaltydomain.Reason, referenceID string) (int64, error)
	Balance(ctx context.Context, accountID string) (int64, error)
}

// AccrualPolicy 判断一次确认是否累积积分
type AccrualPolicy interface {
	Eligible(ctx context.Context, fact policy.AccrualFact) (bool, error)
}

type Directory interface {
	Lookup(ctx context.Context, userID string) (*identitydomain.User, error)
}

// Transactor 在一个数据库事务中执行 fn
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventPublisher interface {
	Publish(ctx context.Context, e events.Envelope) error
}

// Idempotency 对提交请求去重。Claim 返回已创建资源的 id，
// 首次请求返回空串；同一 key 仍在处理中时返回 Conflict。
type Idempotency interface {
	Claim(ctx context.Context, scope, key string) (string, error)
	Complete(ctx context.Context, scope, key, resourceID string) error
	Release(ctx context.Context, scope, key string) error
}

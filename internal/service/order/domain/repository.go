// internal/service/order/domain/repository.go
package domain

import (
	"context"
	"time"
)

// OrderRepository 定义了订单聚合的持久化接口。
// 它位于领域层，但由基础设施层实现。
type OrderRepository interface {
	// Create 保存新订单及其全部订单行
	Create(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	ListByOptician(ctx context.Context, opticianID string) ([]*Order, error)
	FindItem(ctx context.Context, itemID string) (*OrderItem, error)
	// ResolveItem 仅当订单行仍为 PENDING 时写入终态，否则返回 AlreadyResolved
	ResolveItem(ctx context.Context, itemID string, to ItemStatus, by string, at time.Time) error
}

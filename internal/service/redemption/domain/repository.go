// internal/service/redemption/domain/repository.go
package domain

import (
	"context"
	"time"
)

type RedemptionRepository interface {
	Create(ctx context.Context, r *Redemption) error
	FindByID(ctx context.Context, id string) (*Redemption, error)
	ListByOptician(ctx context.Context, opticianID string) ([]*Redemption, error)
	// Resolve 仅当兑换单仍为 PENDING 时写入终态，否则返回 AlreadyResolved
	Resolve(ctx context.Context, id string, to Status, by string, at time.Time) error
}

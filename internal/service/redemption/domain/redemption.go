// internal/service/redemption/domain/redemption.go
package domain

import (
	"math"
	"time"

	"github.com/google/uuid"

	"lensmart/internal/pkg/apperr"
	loyaltydomain "lensmart/internal/service/loyalty/domain"
)

// Status 是兑换单的生命周期状态
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Terminal() bool { return s == StatusApproved || s == StatusRejected || s == StatusCancelled }

// ParseStatusCommand 把 approve/reject/cancel 映射到目标状态
func ParseStatusCommand(s string) (Status, bool) {
	switch s {
	case "approve":
		return StatusApproved, true
	case "reject":
		return StatusRejected, true
	case "cancel":
		return StatusCancelled, true
	}
	return "", false
}

// Redemption 是兑换单聚合根，积分只在审批通过时扣减
type Redemption struct {
	ID          string
	OpticianID  string
	Status      Status
	TotalPoints int64
	CreatedAt   time.Time
	ResolvedAt  *time.Time
	ResolvedBy  string
	Items       []Item
}

// Item 的 PointsCost 与 TotalPoints 在提交时快照
type Item struct {
	ID               string
	RedemptionID     string
	LoyaltyProductID string
	Quantity         int
	PointsCost       int64
	TotalPoints      int64
}

type Line struct {
	LoyaltyProductID string
	Quantity         int
}

// MaxQuantity 单行兑换数量上限
const MaxQuantity = 100000

// NewRedemption 校验并快照积分价格。未知或已下架的条目视为校验错误。
func NewRedemption(opticianID string, lines []Line, catalog map[string]*loyaltydomain.LoyaltyProduct, now time.Time) (*Redemption, error) {
	if opticianID == "" {
		return nil, apperr.Validation("opticianId is required")
	}
	if len(lines) == 0 {
		return nil, apperr.Validation("redemption must contain at least one item")
	}
	r := &Redemption{ID: uuid.NewString(), OpticianID: opticianID, Status: StatusPending, CreatedAt: now}
	for i, l := range lines {
		if l.LoyaltyProductID == "" {
			return nil, apperr.Validation("items[%d].loyaltyProductId is required", i)
		}
		if l.Quantity <= 0 {
			return nil, apperr.Validation("items[%d].quantity must be positive, got %d", i, l.Quantity)
		}
		if l.Quantity > MaxQuantity {
			return nil, apperr.Validation("items[%d].quantity must not exceed %d, got %d", i, MaxQuantity, l.Quantity)
		}
		lp, ok := catalog[l.LoyaltyProductID]
		if !ok {
			return nil, apperr.Validation("items[%d]: unknown loyalty product %s", i, l.LoyaltyProductID)
		}
		if !lp.IsActive {
			return nil, apperr.Validation("items[%d]: loyalty product %s is not active", i, l.LoyaltyProductID)
		}
		if lp.PointsCost > math.MaxInt64/int64(l.Quantity) {
			return nil, apperr.Validation("items[%d]: points total overflows", i)
		}
		total := lp.PointsCost * int64(l.Quantity)
		if r.TotalPoints > math.MaxInt64-total {
			return nil, apperr.Validation("redemption points total overflows")
		}
		r.Items = append(r.Items, Item{
			ID:               uuid.NewString(),
			RedemptionID:     r.ID,
			LoyaltyProductID: l.LoyaltyProductID,
			Quantity:         l.Quantity,
			PointsCost:       lp.PointsCost,
			TotalPoints:      total,
		})
		r.TotalPoints += total
	}
	return r, nil
}

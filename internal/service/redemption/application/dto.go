// internal/service/redemption/application/dto.go
package application

import (
	"time"

	"lensmart/internal/service/redemption/domain"
)

type SubmitRedemptionRequest struct {
	OpticianID string                  `json:"opticianId"`
	Items      []RedemptionLineRequest `json:"items"`
}

type RedemptionLineRequest struct {
	LoyaltyProductID string `json:"loyaltyProductId"`
	Quantity         int    `json:"quantity"`
}

// SubmitRedemptionResponse 中的余额只是提示，审批时才做权威校验
type SubmitRedemptionResponse struct {
	RedemptionID      string          `json:"redemptionId"`
	TotalPoints       int64           `json:"totalPoints"`
	Balance           int64           `json:"balance"`
	SufficientBalance bool            `json:"sufficientBalance"`
	Redemption        *RedemptionView `json:"redemption"`
	Replayed          bool            `json:"replayed,omitempty"`
}

// StatusCommand 是兑换单操作的带标签请求体
type StatusCommand struct {
	Status string `json:"status"`
}

type RedemptionView struct {
	ID          string        `json:"id"`
	OpticianID  string        `json:"opticianId"`
	Status      domain.Status `json:"status"`
	TotalPoints int64         `json:"totalPoints"`
	CreatedAt   time.Time     `json:"createdAt"`
	ResolvedAt  *time.Time    `json:"resolvedAt,omitempty"`
	ResolvedBy  string        `json:"resolvedBy,omitempty"`
	Items       []ItemView    `json:"items"`
}

type ItemView struct {
	ID               string `json:"id"`
	LoyaltyProductID string `json:"loyaltyProductId"`
	Quantity         int    `json:"quantity"`
	PointsCost       int64  `json:"pointsCost"`
	TotalPoints      int64  `json:"totalPoints"`
}

// TransitionResult 是操作后的权威状态
type TransitionResult struct {
	Redemption *RedemptionView `json:"redemption"`
	Balance    int64           `json:"balance"`
	// StockRemaining 以兑换条目 id 为键，只在审批通过时返回
	StockRemaining map[string]int `json:"stockRemaining,omitempty"`
}

func toView(r *domain.Redemption) *RedemptionView {
	v := &RedemptionView{
		ID:          r.ID,
		OpticianID:  r.OpticianID,
		Status:      r.Status,
		TotalPoints: r.TotalPoints,
		CreatedAt:   r.CreatedAt,
		ResolvedAt:  r.ResolvedAt,
		ResolvedBy:  r.ResolvedBy,
		Items:       make([]ItemView, 0, len(r.Items)),
	}
	for _, it := range r.Items {
		v.Items = append(v.Items, ItemView{
			ID:               it.ID,
			LoyaltyProductID: it.LoyaltyProductID,
			Quantity:         it.Quantity,
			PointsCost:       it.PointsCost,
			TotalPoints:      it.TotalPoints,
		})
	}
	return v
}

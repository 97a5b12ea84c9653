// internal/service/summary/domain/summary.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemCounts struct {
	Pending   int64 `json:"pending"`
	Confirmed int64 `json:"confirmed"`
	Cancelled int64 `json:"cancelled"`
}

type RedemptionCounts struct {
	Pending   int64 `json:"pending"`
	Approved  int64 `json:"approved"`
	Rejected  int64 `json:"rejected"`
	Cancelled int64 `json:"cancelled"`
}

// OrderValue 按提交时的价格快照汇总，已取消的订单行不计入
type OrderValue struct {
	Confirmed decimal.Decimal `json:"confirmed"`
	Pending   decimal.Decimal `json:"pending"`
}

// Figures 是一组从源数据即时计算出的统计
type Figures struct {
	OrderItems     ItemCounts       `json:"orderItems"`
	Redemptions    RedemptionCounts `json:"redemptions"`
	PointsIssued   int64            `json:"pointsIssued"`
	PointsRedeemed int64            `json:"pointsRedeemed"`
	OrderValue     OrderValue       `json:"orderValue"`
}

type OpticianFigures struct {
	OpticianID string `json:"opticianId"`
	Figures
}

type Summary struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Global      Figures           `json:"global"`
	ByOptician  []OpticianFigures `json:"byOptician"`
}

// 查询行，按眼镜店与状态分组
type ItemStat struct {
	OpticianID string
	Status     string
	Items      int64
	LineValue  decimal.Decimal
}

type RedemptionStat struct {
	OpticianID string
	Status     string
	Total      int64
}

type PointsStat struct {
	OpticianID string
	Issued     int64
	Redeemed   int64
}

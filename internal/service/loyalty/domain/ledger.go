// internal/service/loyalty/domain/ledger.go
package domain

import (
	"fmt"
	"time"
)

// Reason 说明一条积分流水产生的业务原因
type Reason string

const (
	ReasonOrderItemConfirmed Reason = "ORDER_ITEM_CONFIRMED"
	ReasonRedemptionApproved Reason = "REDEMPTION_APPROVED"
)

// Account 是眼镜店的积分账户，Balance 恒等于流水 Delta 之和
type Account struct {
	OpticianID string
	Balance    int64
	UpdatedAt  time.Time
}

// LedgerEntry 是一条只追加的积分流水，正数为入账，负数为扣减
type LedgerEntry struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"accountId"`
	Delta          int64     `json:"delta"`
	Reason         Reason    `json:"reason"`
	ReferenceID    string    `json:"referenceId"`
	IdempotencyKey string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

// IdempotencyKey 同一业务事件只能产生一条流水
func IdempotencyKey(reason Reason, referenceID string) string {
	return fmt.Sprintf("%s:%s", reason, referenceID)
}

// Audit 对比账户余额列与流水汇总
type Audit struct {
	AccountID     string `json:"accountId"`
	ColumnBalance int64  `json:"columnBalance"`
	LedgerBalance int64  `json:"ledgerBalance"`
	Entries       int64  `json:"entries"`
}

func (a Audit) Consistent() bool { return a.ColumnBalance == a.LedgerBalance }

// internal/service/order/domain/state.go
package domain

// ItemStatus 是订单行的生命周期状态，只能从 PENDING 流转一次到终态
type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemConfirmed ItemStatus = "CONFIRMED"
	ItemCancelled ItemStatus = "CANCELLED"
)

func (s ItemStatus) Terminal() bool { return s == ItemConfirmed || s == ItemCancelled }

// AggregateStatus 由订单行推导，从不持久化
type AggregateStatus string

const (
	OrderPending        AggregateStatus = "PENDING"
	OrderFullyProcessed AggregateStatus = "FULLY_PROCESSED"
)

// ItemAction 是对单个订单行的管理操作
type ItemAction string

const (
	ActionConfirm ItemAction = "confirm"
	ActionCancel  ItemAction = "cancel"
)

// ParseItemAction 只接受已知的操作
func ParseItemAction(s string) (ItemAction, bool) {
	switch a := ItemAction(s); a {
	case ActionConfirm, ActionCancel:
		return a, true
	}
	return "", false
}

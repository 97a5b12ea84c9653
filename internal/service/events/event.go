// internal/service/events/event.go
package events

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	OrderSubmitted      Type = "order.submitted"
	OrderItemConfirmed  Type = "order_item.confirmed"
	OrderItemCancelled  Type = "order_item.cancelled"
	RedemptionSubmitted Type = "redemption.submitted"
	RedemptionApproved  Type = "redemption.approved"
	RedemptionRejected  Type = "redemption.rejected"
	RedemptionCancelled Type = "redemption.cancelled"
)

// Envelope 是发布到 marketplace-events 的统一消息体，Key 为 AggregateID
type Envelope struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	OccurredAt  time.Time `json:"occurredAt"`
	AggregateID string    `json:"aggregateId"`
	OpticianID  string    `json:"opticianId"`
	ActorID     string    `json:"actorId,omitempty"`
	Payload     any       `json:"payload,omitempty"`
}

func New(t Type, aggregateID, opticianID, actorID string, payload any) Envelope {
	return Envelope{
		ID:          uuid.NewString(),
		Type:        t,
		OccurredAt:  time.Now().UTC(),
		AggregateID: aggregateID,
		OpticianID:  opticianID,
		ActorID:     actorID,
		Payload:     payload,
	}
}

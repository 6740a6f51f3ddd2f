package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/pkg/enums"
)

// NotificationRequestedEvent asks the notification service to render and
// deliver a message. Metadata keys depend on Type.
type NotificationRequestedEvent struct {
	Type           enums.NotificationType `json:"type"`
	UserID         uuid.UUID              `json:"userId"`
	SubscriptionID *uuid.UUID             `json:"subscriptionId,omitempty"`
	DedupeKey      string                 `json:"dedupeKey"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
}

// SubscriptionStatusChangedEvent is emitted whenever the local status moves.
type SubscriptionStatusChangedEvent struct {
	SubscriptionID uuid.UUID                `json:"subscriptionId"`
	UserID         uuid.UUID                `json:"userId"`
	From           enums.SubscriptionStatus `json:"from"`
	To             enums.SubscriptionStatus `json:"to"`
	Source         string                   `json:"source"`
	GatewayEventID string                   `json:"gatewayEventId,omitempty"`
	ChangedAt      time.Time                `json:"changedAt"`
}

// SubscriptionPlanChangedEvent is emitted after a committed plan change.
type SubscriptionPlanChangedEvent struct {
	SubscriptionID   uuid.UUID          `json:"subscriptionId"`
	UserID           uuid.UUID          `json:"userId"`
	ChangeID         uuid.UUID          `json:"changeId"`
	ChangeType       enums.ChangeType   `json:"changeType"`
	PreviousPlanID   *uuid.UUID         `json:"previousPlanId,omitempty"`
	NewPlanID        uuid.UUID          `json:"newPlanId"`
	BillingCycle     enums.BillingCycle `json:"billingCycle"`
	AdminForced      bool               `json:"adminForced"`
	BypassedCooldown bool               `json:"bypassedCooldown"`
	ChangedAt        time.Time          `json:"changedAt"`
}

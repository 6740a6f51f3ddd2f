package payloads

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var errMissingID = errors.New("missing id")

func requireID(field string, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%s: %w", field, errMissingID)
	}
	return nil
}

func (e *NotificationRequestedEvent) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("unknown notification type %q", e.Type)
	}
	if e.DedupeKey == "" {
		return errors.New("dedupeKey is required")
	}
	return requireID("userId", e.UserID)
}

func (e *SubscriptionStatusChangedEvent) Validate() error {
	if !e.From.IsValid() || !e.To.IsValid() {
		return fmt.Errorf("invalid transition %q -> %q", e.From, e.To)
	}
	return errors.Join(requireID("subscriptionId", e.SubscriptionID), requireID("userId", e.UserID))
}

func (e *SubscriptionPlanChangedEvent) Validate() error {
	if !e.ChangeType.IsValid() {
		return fmt.Errorf("unknown change type %q", e.ChangeType)
	}
	return errors.Join(
		requireID("subscriptionId", e.SubscriptionID),
		requireID("changeId", e.ChangeID),
		requireID("newPlanId", e.NewPlanID),
	)
}

package subscriptions

import (
	"fmt"

	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

// transitions lists the statuses reachable from each status. Self transitions
// are always allowed and never listed.
var transitions = map[enums.SubscriptionStatus][]enums.SubscriptionStatus{
	enums.SubscriptionStatusIncomplete: {
		enums.SubscriptionStatusActive,
		enums.SubscriptionStatusTrialing,
		enums.SubscriptionStatusPastDue,
		enums.SubscriptionStatusIncompleteExpired,
		enums.SubscriptionStatusCanceled,
	},
	enums.SubscriptionStatusTrialing: {
		enums.SubscriptionStatusActive,
		enums.SubscriptionStatusPastDue,
		enums.SubscriptionStatusSuspended,
		enums.SubscriptionStatusCanceled,
		enums.SubscriptionStatusIncomplete,
	},
	// Stripe reports unpaid or paused directly when its own retry schedule
	// ends, without a past_due event we have seen.
	enums.SubscriptionStatusActive: {
		enums.SubscriptionStatusPastDue,
		enums.SubscriptionStatusSuspended,
		enums.SubscriptionStatusCanceled,
	},
	enums.SubscriptionStatusPastDue: {
		enums.SubscriptionStatusActive,
		enums.SubscriptionStatusSuspended,
		enums.SubscriptionStatusCanceled,
	},
	enums.SubscriptionStatusSuspended: {
		enums.SubscriptionStatusActive,
		enums.SubscriptionStatusCanceled,
	},
	enums.SubscriptionStatusCanceled:          nil,
	enums.SubscriptionStatusIncompleteExpired: nil,
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to enums.SubscriptionStatus) bool {
	if from == to {
		return from.IsValid()
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns STATE_CONFLICT for a transition outside the table.
func ValidateTransition(from, to enums.SubscriptionStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("subscription cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

package notifications

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Dedupe keys shared by every path that can observe the same transition, so
// the webhook and the synchronous flow queue one request between them.

func CanceledKey(subscriptionID uuid.UUID) string {
	return fmt.Sprintf("subscription:%s:canceled", subscriptionID)
}

func SuspendedKey(subscriptionID uuid.UUID, pastDueSince time.Time) string {
	return fmt.Sprintf("subscription:%s:suspended:%d", subscriptionID, pastDueSince.Unix())
}

// ReminderKey identifies one graduated payment reminder within one dunning
// episode.
func ReminderKey(subscriptionID uuid.UUID, pastDueSince time.Time, stage int) string {
	return fmt.Sprintf("subscription:%s:dunning:%d:day_%d", subscriptionID, pastDueSince.Unix(), stage)
}

// InvoiceKey ties invoice driven notifications to the gateway invoice.
func InvoiceKey(invoiceID string) string {
	return "invoice:" + invoiceID
}

func RecoveredKey(subscriptionID uuid.UUID, pastDueSince time.Time) string {
	return fmt.Sprintf("subscription:%s:recovered:%d", subscriptionID, pastDueSince.Unix())
}

func TrialExpiredKey(subscriptionID uuid.UUID) string {
	return fmt.Sprintf("subscription:%s:trial_expired", subscriptionID)
}

package enums

import "fmt"

// NotificationType is the discriminant of a notification request. Rendering
// and delivery belong to the notification service.
type NotificationType string

const (
	NotificationTrialStarted          NotificationType = "trial_started"
	NotificationTrialExpired          NotificationType = "trial_expired"
	NotificationUpgradeConfirmed      NotificationType = "upgrade_confirmed"
	NotificationDowngradeConfirmed    NotificationType = "downgrade_confirmed"
	NotificationCycleChangeConfirmed  NotificationType = "cycle_change_confirmed"
	NotificationCancellationScheduled NotificationType = "cancellation_scheduled"
	NotificationRenewalSuccess        NotificationType = "renewal_success"
	NotificationPaymentFailed         NotificationType = "payment_failed"
	NotificationPaymentFailedDay3     NotificationType = "payment_failed_day_3"
	NotificationPaymentFailedDay5     NotificationType = "payment_failed_day_5"
	NotificationPaymentFailedDay7     NotificationType = "payment_failed_day_7"
	NotificationPaymentRecovered      NotificationType = "payment_recovered"
	NotificationSubscriptionSuspended NotificationType = "subscription_suspended"
	NotificationSubscriptionCanceled  NotificationType = "subscription_canceled"
)

var validNotificationTypes = []NotificationType{
	NotificationTrialStarted,
	NotificationTrialExpired,
	NotificationUpgradeConfirmed,
	NotificationDowngradeConfirmed,
	NotificationCycleChangeConfirmed,
	NotificationCancellationScheduled,
	NotificationRenewalSuccess,
	NotificationPaymentFailed,
	NotificationPaymentFailedDay3,
	NotificationPaymentFailedDay5,
	NotificationPaymentFailedDay7,
	NotificationPaymentRecovered,
	NotificationSubscriptionSuspended,
	NotificationSubscriptionCanceled,
}

// IsValid checks whether the given type is known.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// PaymentReminderType returns the graduated reminder for a dunning day.
func PaymentReminderType(day int) (NotificationType, bool) {
	switch day {
	case 3:
		return NotificationPaymentFailedDay3, true
	case 5:
		return NotificationPaymentFailedDay5, true
	case 7:
		return NotificationPaymentFailedDay7, true
	default:
		return "", false
	}
}

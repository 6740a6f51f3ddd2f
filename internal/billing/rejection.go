package billing

// Business rejection codes. They travel as values in a result, never as
// errors, and render as successful responses.
const (
	RejectCooldownActive            = "COOLDOWN_ACTIVE"
	RejectExceedsPropertyLimit      = "EXCEEDS_PROPERTY_LIMIT"
	RejectSubscriptionCanceled      = "SUBSCRIPTION_CANCELED"
	RejectDowngradeWithCancellation = "DOWNGRADE_WITH_CANCELLATION"
	RejectTrialAlreadyUsed          = "TRIAL_ALREADY_USED"
	RejectAlreadySubscribed         = "ALREADY_SUBSCRIBED"
)

// Rejection is an expected, user-actionable refusal.
type Rejection struct {
	Code    string
	Message string
	Details map[string]any
}

func reject(code, message string, details map[string]any) *Rejection {
	return &Rejection{Code: code, Message: message, Details: details}
}

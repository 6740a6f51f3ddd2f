package enums

// PropertyStatus mirrors the listing states persisted by the marketplace.
type PropertyStatus string

const (
	PropertyStatusActive          PropertyStatus = "activa"
	PropertyStatusPaused          PropertyStatus = "pausada"
	PropertyStatusPendingApproval PropertyStatus = "pendiente_aprobacion"
	PropertyStatusSold            PropertyStatus = "vendida"
	PropertyStatusRented          PropertyStatus = "rentada"
)

// PauseReason records why billing paused a listing so it can be resumed
// selectively.
type PauseReason string

const (
	PauseReasonDowngrade    PauseReason = "downgrade"
	PauseReasonSuspension   PauseReason = "suspension"
	PauseReasonTrialExpired PauseReason = "trial_expired"
	PauseReasonUser         PauseReason = "user"
)

// FeaturedStatus is the lifecycle of a featured slot.
type FeaturedStatus string

const (
	FeaturedStatusActive           FeaturedStatus = "active"
	FeaturedStatusCanceled         FeaturedStatus = "canceled"
	FeaturedStatusExpired          FeaturedStatus = "expired"
	FeaturedStatusRemovedDowngrade FeaturedStatus = "removed_downgrade"
)

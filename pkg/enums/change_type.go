package enums

// ChangeType classifies a subscription_changes audit row.
type ChangeType string

const (
	ChangeTypeUpgrade      ChangeType = "upgrade"
	ChangeTypeDowngrade    ChangeType = "downgrade"
	ChangeTypeCycleChange  ChangeType = "cycle_change"
	ChangeTypeCancellation ChangeType = "cancellation"
)

func (c ChangeType) String() string {
	return string(c)
}

func (c ChangeType) IsValid() bool {
	switch c {
	case ChangeTypeUpgrade, ChangeTypeDowngrade, ChangeTypeCycleChange, ChangeTypeCancellation:
		return true
	default:
		return false
	}
}

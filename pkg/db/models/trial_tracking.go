package models

import (
	"time"

	"github.com/google/uuid"
)

// TrialTracking records one trial activation, keyed for abuse checks by IP and
// device fingerprint across accounts.
type TrialTracking struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	IPAddress         *string   `gorm:"column:ip_address"`
	DeviceFingerprint *string   `gorm:"column:device_fingerprint"`
	TrialStartedAt    time.Time `gorm:"column:trial_started_at;not null"`
}

func (TrialTracking) TableName() string { return "trial_tracking" }

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/pkg/enums"
)

// SubscriptionChange is an append-only audit row. The newest row per user
// drives the plan change cooldown.
type SubscriptionChange struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID               uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	SubscriptionID       uuid.UUID           `gorm:"column:subscription_id;type:uuid;not null"`
	PreviousPlanID       *uuid.UUID          `gorm:"column:previous_plan_id;type:uuid"`
	NewPlanID            *uuid.UUID          `gorm:"column:new_plan_id;type:uuid"`
	PreviousBillingCycle *enums.BillingCycle `gorm:"column:previous_billing_cycle"`
	NewBillingCycle      *enums.BillingCycle `gorm:"column:new_billing_cycle"`
	ChangeType           enums.ChangeType    `gorm:"column:change_type;not null"`
	AdminForced          bool                `gorm:"column:admin_forced;not null;default:false"`
	BypassedCooldown     bool                `gorm:"column:bypassed_cooldown;not null;default:false"`
	ChangedBy            *uuid.UUID          `gorm:"column:changed_by;type:uuid"`
	Metadata             json.RawMessage     `gorm:"column:metadata;type:jsonb"`
	ChangedAt            time.Time           `gorm:"column:changed_at;not null"`
}

func (SubscriptionChange) TableName() string { return "subscription_changes" }

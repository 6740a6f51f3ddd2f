package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/pkg/enums"
)

// Subscription is a user's billing relationship, mirrored from Stripe.
type Subscription struct {
	ID                     uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	UserID                 uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	PlanID                 uuid.UUID                `gorm:"column:plan_id;type:uuid;not null"`
	BillingCycle           enums.BillingCycle       `gorm:"column:billing_cycle;not null;default:'monthly'"`
	Status                 enums.SubscriptionStatus `gorm:"column:status;not null"`
	CurrentPeriodStart     time.Time                `gorm:"column:current_period_start;not null"`
	CurrentPeriodEnd       time.Time                `gorm:"column:current_period_end;not null"`
	CancelAtPeriodEnd      bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	StripeCustomerID       *string                  `gorm:"column:stripe_customer_id"`
	StripeSubscriptionID   *string                  `gorm:"column:stripe_subscription_id;unique"`
	FeaturedUsedThisMonth  int                      `gorm:"column:featured_used_this_month;not null;default:0"`
	FeaturedCounterResetAt *time.Time               `gorm:"column:featured_counter_reset_at"`
	PastDueSince           *time.Time               `gorm:"column:past_due_since"`
	DunningStage           int                      `gorm:"column:dunning_stage;not null;default:0"`
	SuspendedAt            *time.Time               `gorm:"column:suspended_at"`
	CanceledAt             *time.Time               `gorm:"column:canceled_at"`
	LastEventAt            *time.Time               `gorm:"column:last_event_at"`
	CreatedAt              time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (Subscription) TableName() string { return "subscriptions" }

// GatewaySubscriptionID returns the Stripe subscription id or "" during trial.
func (s Subscription) GatewaySubscriptionID() string {
	if s.StripeSubscriptionID == nil {
		return ""
	}
	return *s.StripeSubscriptionID
}

// GatewayCustomerID returns the Stripe customer id or "".
func (s Subscription) GatewayCustomerID() string {
	if s.StripeCustomerID == nil {
		return ""
	}
	return *s.StripeCustomerID
}

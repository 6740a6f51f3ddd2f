package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/kentramx/kentramx-sub001/pkg/enums"
)

// UnlimitedLimit marks a plan feature without a cap.
const UnlimitedLimit = -1

// SubscriptionPlan is a catalog entry. Catalog administration owns these rows.
type SubscriptionPlan struct {
	ID                   uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name                 string          `gorm:"column:name;not null;uniqueIndex"`
	DisplayName          string          `gorm:"column:display_name;not null"`
	PriceMonthly         decimal.Decimal `gorm:"column:price_monthly;type:numeric(12,2);not null"`
	PriceYearly          decimal.Decimal `gorm:"column:price_yearly;type:numeric(12,2);not null"`
	Currency             string          `gorm:"column:currency;not null;default:'mxn'"`
	StripePriceIDMonthly *string         `gorm:"column:stripe_price_id_monthly"`
	StripePriceIDYearly  *string         `gorm:"column:stripe_price_id_yearly"`
	MaxProperties        int             `gorm:"column:max_properties;not null"`
	FeaturedListings     int             `gorm:"column:featured_listings;not null;default:0"`
	MaxAgents            int             `gorm:"column:max_agents;not null;default:1"`
	Highlights           pq.StringArray  `gorm:"column:highlights;type:text[]"`
	IsActive             bool            `gorm:"column:is_active;not null;default:true"`
	SortOrder            int             `gorm:"column:sort_order;not null;default:0"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (SubscriptionPlan) TableName() string { return "subscription_plans" }

// PriceFor returns the list price for the cycle.
func (p SubscriptionPlan) PriceFor(cycle enums.BillingCycle) decimal.Decimal {
	if cycle == enums.BillingCycleYearly {
		return p.PriceYearly
	}
	return p.PriceMonthly
}

// PriceIDFor returns the Stripe price id configured for the cycle, or "".
func (p SubscriptionPlan) PriceIDFor(cycle enums.BillingCycle) string {
	ref := p.StripePriceIDMonthly
	if cycle == enums.BillingCycleYearly {
		ref = p.StripePriceIDYearly
	}
	if ref == nil {
		return ""
	}
	return *ref
}

// ExceedsPropertyLimit reports whether count listings overflow the plan.
func (p SubscriptionPlan) ExceedsPropertyLimit(count int) bool {
	return p.MaxProperties != UnlimitedLimit && count > p.MaxProperties
}

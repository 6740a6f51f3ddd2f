package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/pkg/enums"
)

// Property holds the listing columns billing reads and writes. The rest of the
// listing lives with the marketplace CRUD surface.
type Property struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	AgentID      uuid.UUID            `gorm:"column:agent_id;type:uuid;not null;index"`
	Title        string               `gorm:"column:title;not null"`
	Status       enums.PropertyStatus `gorm:"column:status;not null"`
	PausedReason *enums.PauseReason   `gorm:"column:paused_reason"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (Property) TableName() string { return "properties" }

// FeaturedProperty is a paid featured slot for a listing.
type FeaturedProperty struct {
	ID         uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	PropertyID uuid.UUID            `gorm:"column:property_id;type:uuid;not null"`
	AgentID    uuid.UUID            `gorm:"column:agent_id;type:uuid;not null;index"`
	Status     enums.FeaturedStatus `gorm:"column:status;not null"`
	StartDate  time.Time            `gorm:"column:start_date;not null"`
	EndDate    time.Time            `gorm:"column:end_date;not null"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (FeaturedProperty) TableName() string { return "featured_properties" }

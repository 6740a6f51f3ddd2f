package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/pkg/enums"
)

// UserRole grants a functional role to an externally authenticated user.
type UserRole struct {
	UserID    uuid.UUID      `gorm:"column:user_id;type:uuid;primaryKey"`
	Role      enums.UserRole `gorm:"column:role;primaryKey"`
	GrantedAt time.Time      `gorm:"column:granted_at;not null"`
}

func (UserRole) TableName() string { return "user_roles" }

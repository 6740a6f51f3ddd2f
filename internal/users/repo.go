package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kentramx/kentramx-sub001/internal/repo"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

// Repository manages functional role grants. Identities live in the external
// provider; only the user id is stored here.
type Repository struct {
	base repo.Base
	now  func() time.Time
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db), now: time.Now}
}

// WithTx rebinds the repository to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{base: r.base.Tx(tx), now: r.now}
}

// GrantRole adds role to the user. Granting an existing role is a no-op; the
// result reports whether a row was written.
func (r *Repository) GrantRole(ctx context.Context, userID uuid.UUID, role enums.UserRole) (bool, error) {
	if userID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !role.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "invalid role "+string(role))
	}
	grant := models.UserRole{UserID: userID, Role: role, GrantedAt: r.now().UTC()}
	res := r.base.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&grant)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// HasRole reports whether the user holds role.
func (r *Repository) HasRole(ctx context.Context, userID uuid.UUID, role enums.UserRole) (bool, error) {
	var count int64
	if err := r.base.DB(ctx).
		Model(&models.UserRole{}).
		Where("user_id = ? AND role = ?", userID, role).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListRoles returns the user's roles ordered by grant time.
func (r *Repository) ListRoles(ctx context.Context, userID uuid.UUID) ([]enums.UserRole, error) {
	var roles []enums.UserRole
	if err := r.base.DB(ctx).
		Model(&models.UserRole{}).
		Where("user_id = ?", userID).
		Order("granted_at ASC").
		Pluck("role", &roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

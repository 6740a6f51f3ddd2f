package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/repo"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/pagination"
)

// ChangeLog is the append-only plan change audit. The newest row per user
// drives the cooldown.
type ChangeLog interface {
	WithTx(tx *gorm.DB) ChangeLog
	AppendChange(ctx context.Context, change *models.SubscriptionChange) error
	LatestChange(ctx context.Context, userID uuid.UUID, types ...enums.ChangeType) (*models.SubscriptionChange, error)
	ListChanges(ctx context.Context, userID uuid.UUID, page pagination.Params) (pagination.Page[models.SubscriptionChange], error)
}

type changeLog struct {
	base repo.Base
}

func NewChangeLog(conn *gorm.DB) ChangeLog {
	return &changeLog{base: repo.NewBase(conn)}
}

func (c *changeLog) WithTx(tx *gorm.DB) ChangeLog {
	if tx == nil {
		return c
	}
	return &changeLog{base: c.base.Tx(tx)}
}

func (c *changeLog) AppendChange(ctx context.Context, change *models.SubscriptionChange) error {
	if change == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "change required")
	}
	if !change.ChangeType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid change type")
	}
	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now().UTC()
	}
	return c.base.DB(ctx).Create(change).Error
}

// LatestChange returns the newest row for the user, optionally restricted to
// the given change types.
func (c *changeLog) LatestChange(ctx context.Context, userID uuid.UUID, types ...enums.ChangeType) (*models.SubscriptionChange, error) {
	query := c.base.DB(ctx).Where("user_id = ?", userID)
	if len(types) > 0 {
		query = query.Where("change_type IN ?", types)
	}
	return repo.FirstOrNil[models.SubscriptionChange](query.Order("changed_at DESC"))
}

// ListChanges pages through a user's audit newest first. The cursor is the
// (changed_at, id) of the last row on the previous page.
func (c *changeLog) ListChanges(ctx context.Context, userID uuid.UUID, page pagination.Params) (pagination.Page[models.SubscriptionChange], error) {
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return pagination.Page[models.SubscriptionChange]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := c.base.DB(ctx).Where("user_id = ?", userID)
	if cursor != nil {
		query = query.Where("changed_at < ? OR (changed_at = ? AND id < ?)", cursor.At, cursor.At, cursor.ID)
	}
	var changes []models.SubscriptionChange
	if err := query.
		Order("changed_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(page.Limit)).
		Find(&changes).Error; err != nil {
		return pagination.Page[models.SubscriptionChange]{}, err
	}
	return pagination.Trim(changes, page.Limit, func(ch models.SubscriptionChange) pagination.Cursor {
		return pagination.Cursor{At: ch.ChangedAt, ID: ch.ID}
	}), nil
}

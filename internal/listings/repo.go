package listings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/repo"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
)

// Repository exposes the listing columns billing reads and writes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CountActive(ctx context.Context, agentID uuid.UUID) (int, error)
	ListActive(ctx context.Context, agentID uuid.UUID) ([]models.Property, error)
	Pause(ctx context.Context, ids []uuid.UUID, reason enums.PauseReason) (int, error)
	PauseAllActive(ctx context.Context, agentID uuid.UUID, reason enums.PauseReason) (int, error)
	ListPaused(ctx context.Context, agentID uuid.UUID, reason enums.PauseReason) ([]models.Property, error)
	Resume(ctx context.Context, ids []uuid.UUID) (int, error)
	ListActiveFeatured(ctx context.Context, agentID uuid.UUID, now time.Time) ([]models.FeaturedProperty, error)
	SetFeaturedStatus(ctx context.Context, ids []uuid.UUID, status enums.FeaturedStatus) (int, error)
}

type repository struct {
	base repo.Base
	now  func() time.Time
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db), now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Tx(tx), now: r.now}
}

func (r *repository) CountActive(ctx context.Context, agentID uuid.UUID) (int, error) {
	var count int64
	if err := r.base.DB(ctx).
		Model(&models.Property{}).
		Where("agent_id = ? AND status = ?", agentID, enums.PropertyStatusActive).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// ListActive returns active listings newest first.
func (r *repository) ListActive(ctx context.Context, agentID uuid.UUID) ([]models.Property, error) {
	var props []models.Property
	if err := r.base.DB(ctx).
		Where("agent_id = ? AND status = ?", agentID, enums.PropertyStatusActive).
		Order("created_at DESC, id DESC").
		Find(&props).Error; err != nil {
		return nil, err
	}
	return props, nil
}

// Pause moves the given active listings to paused. Listings no longer active
// are skipped.
func (r *repository) Pause(ctx context.Context, ids []uuid.UUID, reason enums.PauseReason) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.base.DB(ctx).
		Model(&models.Property{}).
		Where("id IN ? AND status = ?", ids, enums.PropertyStatusActive).
		Updates(map[string]any{
			"status":        enums.PropertyStatusPaused,
			"paused_reason": reason,
			"updated_at":    r.now().UTC(),
		})
	return int(res.RowsAffected), res.Error
}

func (r *repository) PauseAllActive(ctx context.Context, agentID uuid.UUID, reason enums.PauseReason) (int, error) {
	res := r.base.DB(ctx).
		Model(&models.Property{}).
		Where("agent_id = ? AND status = ?", agentID, enums.PropertyStatusActive).
		Updates(map[string]any{
			"status":        enums.PropertyStatusPaused,
			"paused_reason": reason,
			"updated_at":    r.now().UTC(),
		})
	return int(res.RowsAffected), res.Error
}

// ListPaused returns listings billing paused for reason, newest first.
func (r *repository) ListPaused(ctx context.Context, agentID uuid.UUID, reason enums.PauseReason) ([]models.Property, error) {
	var props []models.Property
	if err := r.base.DB(ctx).
		Where("agent_id = ? AND status = ? AND paused_reason = ?", agentID, enums.PropertyStatusPaused, reason).
		Order("created_at DESC, id DESC").
		Find(&props).Error; err != nil {
		return nil, err
	}
	return props, nil
}

func (r *repository) Resume(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.base.DB(ctx).
		Model(&models.Property{}).
		Where("id IN ? AND status = ?", ids, enums.PropertyStatusPaused).
		Updates(map[string]any{
			"status":        enums.PropertyStatusActive,
			"paused_reason": nil,
			"updated_at":    r.now().UTC(),
		})
	return int(res.RowsAffected), res.Error
}

// ListActiveFeatured returns unexpired active featured slots, oldest start
// first.
func (r *repository) ListActiveFeatured(ctx context.Context, agentID uuid.UUID, now time.Time) ([]models.FeaturedProperty, error) {
	var slots []models.FeaturedProperty
	if err := r.base.DB(ctx).
		Where("agent_id = ? AND status = ? AND end_date > ?", agentID, enums.FeaturedStatusActive, now.UTC()).
		Order("start_date ASC, id ASC").
		Find(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *repository) SetFeaturedStatus(ctx context.Context, ids []uuid.UUID, status enums.FeaturedStatus) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.base.DB(ctx).
		Model(&models.FeaturedProperty{}).
		Where("id IN ? AND status = ?", ids, enums.FeaturedStatusActive).
		Updates(map[string]any{
			"status":     status,
			"updated_at": r.now().UTC(),
		})
	return int(res.RowsAffected), res.Error
}

package plans

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/repo"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
)

// Repository reads the plan catalog. Catalog administration owns the writes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
	FindByName(ctx context.Context, name string) (*models.SubscriptionPlan, error)
	FindByPriceID(ctx context.Context, priceID string) (*models.SubscriptionPlan, error)
	ListActive(ctx context.Context) ([]models.SubscriptionPlan, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns a plan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Tx(tx)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	return repo.FirstOrNil[models.SubscriptionPlan](r.base.DB(ctx).Where("id = ?", id))
}

func (r *repository) FindByName(ctx context.Context, name string) (*models.SubscriptionPlan, error) {
	return repo.FirstOrNil[models.SubscriptionPlan](r.base.DB(ctx).Where("name = ?", name))
}

// FindByPriceID matches either cycle's price. Retired plans still resolve so
// subscribers on them keep reconciling.
func (r *repository) FindByPriceID(ctx context.Context, priceID string) (*models.SubscriptionPlan, error) {
	return repo.FirstOrNil[models.SubscriptionPlan](r.base.DB(ctx).
		Where("(stripe_price_id_monthly = ? OR stripe_price_id_yearly = ?)", priceID, priceID).
		Order("is_active DESC"))
}

func (r *repository) ListActive(ctx context.Context) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	if err := r.base.DB(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, price_monthly ASC").
		Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

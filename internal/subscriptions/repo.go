package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kentramx/kentramx-sub001/internal/repo"
	"github.com/kentramx/kentramx-sub001/pkg/db"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

const defaultListLimit = 250

// Repository is the durable subscription record. Writes are optimistic: they
// match on id, user id and the status the caller read, and report
// STATE_CONFLICT when another writer got there first.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindLiveByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	FindLatestByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	FindByGatewayID(ctx context.Context, gatewaySubscriptionID string) (*models.Subscription, error)
	Create(ctx context.Context, sub *models.Subscription) error
	Transition(ctx context.Context, sub *models.Subscription, to enums.SubscriptionStatus, mutate func(*models.Subscription)) error
	ApplyPlanChange(ctx context.Context, sub *models.Subscription, change PlanChange) error
	Save(ctx context.Context, sub *models.Subscription, expected enums.SubscriptionStatus) error
	ClampFeaturedUsage(ctx context.Context, userID uuid.UUID, limit int) (bool, error)
	ListPastDue(ctx context.Context, limit int) ([]models.Subscription, error)
	ListExpiredTrials(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	ListForReconciliation(ctx context.Context, limit int) ([]models.Subscription, error)
	ResetMonthlyCounters(ctx context.Context, monthStart time.Time) (int64, error)
}

// PlanChange is the committed result of a plan change.
type PlanChange struct {
	PlanID             uuid.UUID
	BillingCycle       enums.BillingCycle
	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

type repository struct {
	base repo.Base
	now  func() time.Time
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{base: repo.NewBase(conn), now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Tx(tx), now: r.now}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return repo.FirstOrNil[models.Subscription](r.base.DB(ctx).Where("id = ?", id))
}

// LockByID reads the row inside the caller's transaction and holds it until
// commit on postgres, so the plan flow and the webhook serialize on it.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	query := r.base.DB(ctx).Where("id = ?", id)
	if query.Dialector != nil && query.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return repo.FirstOrNil[models.Subscription](query)
}

// FindLiveByUser returns the user's active or trialing subscription.
func (r *repository) FindLiveByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return repo.FirstOrNil[models.Subscription](r.base.DB(ctx).
		Where("user_id = ? AND status IN ?", userID, enums.LiveSubscriptionStatuses).
		Order("created_at DESC"))
}

func (r *repository) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return repo.FirstOrNil[models.Subscription](r.base.DB(ctx).
		Where("user_id = ? AND status = ?", userID, enums.SubscriptionStatusActive).
		Order("created_at DESC"))
}

// FindLatestByUser returns the newest subscription in any status.
func (r *repository) FindLatestByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return repo.FirstOrNil[models.Subscription](r.base.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC"))
}

func (r *repository) FindByGatewayID(ctx context.Context, gatewaySubscriptionID string) (*models.Subscription, error) {
	return repo.FirstOrNil[models.Subscription](r.base.DB(ctx).
		Where("stripe_subscription_id = ?", gatewaySubscriptionID))
}

// Create inserts sub. A second live subscription for the user is a CONFLICT.
func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if !sub.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid subscription status")
	}
	if err := r.base.DB(ctx).Create(sub).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "user already has a live subscription")
		}
		return err
	}
	return nil
}

// Transition moves sub to the target status after checking the transition
// table. mutate may adjust other fields in the same write.
func (r *repository) Transition(ctx context.Context, sub *models.Subscription, to enums.SubscriptionStatus, mutate func(*models.Subscription)) error {
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "subscription required")
	}
	if err := ValidateTransition(sub.Status, to); err != nil {
		return err
	}
	next := *sub
	next.Status = to
	if mutate != nil {
		mutate(&next)
	}
	if err := r.update(ctx, &next, sub.Status); err != nil {
		return err
	}
	*sub = next
	return nil
}

// ApplyPlanChange writes the new plan for an active subscription.
func (r *repository) ApplyPlanChange(ctx context.Context, sub *models.Subscription, change PlanChange) error {
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "subscription required")
	}
	next := *sub
	next.PlanID = change.PlanID
	next.BillingCycle = change.BillingCycle
	next.CancelAtPeriodEnd = change.CancelAtPeriodEnd
	if !change.CurrentPeriodStart.IsZero() {
		next.CurrentPeriodStart = change.CurrentPeriodStart.UTC()
	}
	if !change.CurrentPeriodEnd.IsZero() {
		next.CurrentPeriodEnd = change.CurrentPeriodEnd.UTC()
	}
	if err := r.update(ctx, &next, enums.SubscriptionStatusActive); err != nil {
		return err
	}
	*sub = next
	return nil
}

// Save writes every mutable column, guarded by the status the caller read.
func (r *repository) Save(ctx context.Context, sub *models.Subscription, expected enums.SubscriptionStatus) error {
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "subscription required")
	}
	return r.update(ctx, sub, expected)
}

func (r *repository) update(ctx context.Context, sub *models.Subscription, expected enums.SubscriptionStatus) error {
	sub.UpdatedAt = r.now().UTC()
	res := r.base.DB(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND user_id = ? AND status = ?", sub.ID, sub.UserID, expected).
		Updates(mutableColumns(sub))
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, res.Error, "user already has a live subscription")
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription changed concurrently").
			WithDetails(map[string]any{"subscriptionId": sub.ID, "expectedStatus": expected})
	}
	return nil
}

func mutableColumns(sub *models.Subscription) map[string]any {
	return map[string]any{
		"plan_id":                   sub.PlanID,
		"billing_cycle":             sub.BillingCycle,
		"status":                    sub.Status,
		"current_period_start":      sub.CurrentPeriodStart,
		"current_period_end":        sub.CurrentPeriodEnd,
		"cancel_at_period_end":      sub.CancelAtPeriodEnd,
		"stripe_customer_id":        sub.StripeCustomerID,
		"stripe_subscription_id":    sub.StripeSubscriptionID,
		"featured_used_this_month":  sub.FeaturedUsedThisMonth,
		"featured_counter_reset_at": sub.FeaturedCounterResetAt,
		"past_due_since":            sub.PastDueSince,
		"dunning_stage":             sub.DunningStage,
		"suspended_at":              sub.SuspendedAt,
		"canceled_at":               sub.CanceledAt,
		"last_event_at":             sub.LastEventAt,
		"updated_at":                sub.UpdatedAt,
	}
}

// ClampFeaturedUsage lowers the monthly featured counter of the user's
// non-terminal subscriptions to limit. It reports whether a row changed.
func (r *repository) ClampFeaturedUsage(ctx context.Context, userID uuid.UUID, limit int) (bool, error) {
	if limit < 0 {
		return false, nil
	}
	res := r.base.DB(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ? AND status NOT IN ? AND featured_used_this_month > ?", userID, terminalStatuses(), limit).
		Updates(map[string]any{
			"featured_used_this_month": limit,
			"updated_at":               r.now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListPastDue returns subscriptions in dunning, oldest first.
func (r *repository) ListPastDue(ctx context.Context, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.base.DB(ctx).
		Where("status = ? AND past_due_since IS NOT NULL", enums.SubscriptionStatusPastDue).
		Order("past_due_since ASC").
		Limit(normalizeLimit(limit)).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// ListExpiredTrials returns trials past their end that never converted.
func (r *repository) ListExpiredTrials(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.base.DB(ctx).
		Where("status = ? AND stripe_subscription_id IS NULL AND current_period_end <= ?", enums.SubscriptionStatusTrialing, now.UTC()).
		Order("current_period_end ASC").
		Limit(normalizeLimit(limit)).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// ListForReconciliation returns gateway-backed, non-terminal subscriptions,
// least recently touched first.
func (r *repository) ListForReconciliation(ctx context.Context, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.base.DB(ctx).
		Where("stripe_subscription_id IS NOT NULL AND status NOT IN ?", terminalStatuses()).
		Order("updated_at ASC").
		Limit(normalizeLimit(limit)).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// ResetMonthlyCounters zeroes featured usage for rows not yet reset this
// month. Running it twice in a month is a no-op.
func (r *repository) ResetMonthlyCounters(ctx context.Context, monthStart time.Time) (int64, error) {
	monthStart = monthStart.UTC()
	res := r.base.DB(ctx).
		Model(&models.Subscription{}).
		Where("status NOT IN ?", terminalStatuses()).
		Where("(featured_counter_reset_at IS NULL OR featured_counter_reset_at < ?)", monthStart).
		Updates(map[string]any{
			"featured_used_this_month":  0,
			"featured_counter_reset_at": monthStart,
			"updated_at":                r.now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func terminalStatuses() []enums.SubscriptionStatus {
	return []enums.SubscriptionStatus{
		enums.SubscriptionStatusCanceled,
		enums.SubscriptionStatusIncompleteExpired,
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

package billing

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/notifications"
	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	"github.com/kentramx/kentramx-sub001/pkg/config"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
)

type listingPauser interface {
	PauseAll(ctx context.Context, tx *gorm.DB, userID uuid.UUID, reason enums.PauseReason) (int, error)
	ResumeSuspended(ctx context.Context, tx *gorm.DB, userID uuid.UUID, reason enums.PauseReason, plan *models.SubscriptionPlan) (int, error)
}

type DunningParams struct {
	Subscriptions subscriptions.Repository
	Listings      listingPauser
	Notifier      notifier
	Events        lifecycleEvents
	Config        config.BillingConfig
	Logger        *logger.Logger
	Now           func() time.Time
}

type DunningOutcome struct {
	DaysPastDue    int
	ReminderStage  int
	Suspended      bool
	ListingsPaused int
}

// Dunning walks a past-due subscription through graduated reminders and
// suspends it once the grace window is over. Evaluate recomputes everything
// from past_due_since, so repeated runs converge.
type Dunning struct {
	subs      subscriptions.Repository
	listings  listingPauser
	notifier  notifier
	events    lifecycleEvents
	reminders []int
	grace     int
	logg      *logger.Logger
	now       func() time.Time
}

func NewDunning(params DunningParams) (*Dunning, error) {
	switch {
	case params.Subscriptions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repository required")
	case params.Listings == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "listings required")
	case params.Notifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	case params.Events == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "lifecycle events required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Config.GraceDays <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "grace days must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	reminders := slices.Clone(params.Config.ReminderDays)
	slices.Sort(reminders)
	return &Dunning{
		subs:      params.Subscriptions,
		listings:  params.Listings,
		notifier:  params.Notifier,
		events:    params.Events,
		reminders: reminders,
		grace:     params.Config.GraceDays,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// BeginDunning opens an episode on sub unless one is already running.
func BeginDunning(sub *models.Subscription, at time.Time) {
	if sub.PastDueSince != nil {
		return
	}
	at = at.UTC()
	sub.PastDueSince = &at
	sub.DunningStage = 0
}

// EndDunning clears the episode fields.
func EndDunning(sub *models.Subscription) {
	sub.PastDueSince = nil
	sub.DunningStage = 0
	sub.SuspendedAt = nil
}

// Evaluate sends the highest reminder reached and not yet sent, then
// suspends when the subscription is past the grace window. Skipped stages
// are not sent late. sub is updated in place on success.
func (d *Dunning) Evaluate(ctx context.Context, tx *gorm.DB, sub *models.Subscription) (DunningOutcome, error) {
	var outcome DunningOutcome
	if sub == nil || sub.Status != enums.SubscriptionStatusPastDue || sub.PastDueSince == nil {
		return outcome, nil
	}
	since := *sub.PastDueSince
	outcome.DaysPastDue = int(d.now().Sub(since) / day)
	ctx = d.logg.WithFields(ctx, map[string]any{
		"subscription_id": sub.ID.String(),
		"days_past_due":   outcome.DaysPastDue,
	})
	subs := d.subs.WithTx(tx)

	if stage := d.pendingStage(outcome.DaysPastDue, sub.DunningStage); stage > 0 {
		if reminder, ok := enums.PaymentReminderType(stage); ok {
			if _, err := d.notifier.Dispatch(ctx, tx, notifications.Request{
				Type:           reminder,
				UserID:         sub.UserID,
				SubscriptionID: &sub.ID,
				DedupeKey:      notifications.ReminderKey(sub.ID, since, stage),
				Metadata: map[string]any{
					"daysPastDue":  outcome.DaysPastDue,
					"pastDueSince": since,
					"suspendsAt":   since.Add(time.Duration(d.grace+1) * day),
				},
			}); err != nil {
				return outcome, err
			}
		}
		next := *sub
		next.DunningStage = stage
		if err := subs.Save(ctx, &next, enums.SubscriptionStatusPastDue); err != nil {
			return outcome, err
		}
		*sub = next
		outcome.ReminderStage = stage
		d.logg.Info(ctx, "billing.dunning.reminder")
	}

	if outcome.DaysPastDue <= d.grace {
		return outcome, nil
	}

	suspendedAt := d.now().UTC()
	if err := subs.Transition(ctx, sub, enums.SubscriptionStatusSuspended, func(next *models.Subscription) {
		next.SuspendedAt = &suspendedAt
	}); err != nil {
		return outcome, err
	}
	if err := d.events.StatusChanged(ctx, tx, sub, enums.SubscriptionStatusPastDue, subscriptions.SourceDunning, since.UTC().Format(time.RFC3339)); err != nil {
		return outcome, err
	}
	paused, err := d.suspend(ctx, tx, sub, since, outcome.DaysPastDue)
	if err != nil {
		return outcome, err
	}
	outcome.Suspended = true
	outcome.ListingsPaused = paused
	d.logg.Warn(ctx, "billing.dunning.suspended")
	return outcome, nil
}

// Suspended applies the suspension side effects after the gateway itself
// reported the subscription as unpaid or paused. The caller has already
// written the new status and opened the episode.
func (d *Dunning) Suspended(ctx context.Context, tx *gorm.DB, sub *models.Subscription) (int, error) {
	if sub == nil || sub.Status != enums.SubscriptionStatusSuspended || sub.PastDueSince == nil {
		return 0, nil
	}
	since := *sub.PastDueSince
	paused, err := d.suspend(ctx, tx, sub, since, int(d.now().Sub(since)/day))
	if err != nil {
		return 0, err
	}
	d.logg.Warn(d.logg.WithField(ctx, "subscription_id", sub.ID.String()), "billing.dunning.gateway_suspended")
	return paused, nil
}

func (d *Dunning) suspend(ctx context.Context, tx *gorm.DB, sub *models.Subscription, since time.Time, daysPastDue int) (int, error) {
	paused, err := d.listings.PauseAll(ctx, tx, sub.UserID, enums.PauseReasonSuspension)
	if err != nil {
		return 0, err
	}
	if _, err := d.notifier.Dispatch(ctx, tx, notifications.Request{
		Type:           enums.NotificationSubscriptionSuspended,
		UserID:         sub.UserID,
		SubscriptionID: &sub.ID,
		DedupeKey:      notifications.SuspendedKey(sub.ID, since),
		Metadata: map[string]any{
			"daysPastDue":      daysPastDue,
			"propertiesPaused": paused,
		},
	}); err != nil {
		return paused, err
	}
	return paused, nil
}

// Recover closes an episode after the gateway reports payment. The caller
// has already written the new status; listings paused by the suspension come
// back within the plan's limit.
func (d *Dunning) Recover(ctx context.Context, tx *gorm.DB, sub *models.Subscription, plan *models.SubscriptionPlan, episode time.Time, wasSuspended bool) (int, error) {
	resumed := 0
	if wasSuspended {
		n, err := d.listings.ResumeSuspended(ctx, tx, sub.UserID, enums.PauseReasonSuspension, plan)
		if err != nil {
			return 0, err
		}
		resumed = n
	}
	if _, err := d.notifier.Dispatch(ctx, tx, notifications.Request{
		Type:           enums.NotificationPaymentRecovered,
		UserID:         sub.UserID,
		SubscriptionID: &sub.ID,
		DedupeKey:      notifications.RecoveredKey(sub.ID, episode),
		Metadata: map[string]any{
			"listingsResumed": resumed,
			"wasSuspended":    wasSuspended,
		},
	}); err != nil {
		return resumed, err
	}
	return resumed, nil
}

func (d *Dunning) pendingStage(daysPastDue, sent int) int {
	stage := 0
	for _, candidate := range d.reminders {
		if candidate <= daysPastDue && candidate > sent {
			stage = candidate
		}
	}
	return stage
}

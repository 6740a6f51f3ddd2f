package subscriptions

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/outbox"
	"github.com/kentramx/kentramx-sub001/pkg/outbox/payloads"
)

// Sources of a status change.
const (
	SourceWebhook   = "webhook"
	SourcePlanFlow  = "plan_change"
	SourceDunning   = "dunning"
	SourceTrial     = "trial"
	SourceReconcile = "reconcile"
)

type eventEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

// Events publishes subscription lifecycle events through the outbox.
type Events struct {
	outbox eventEmitter
	now    func() time.Time
}

func NewEvents(out eventEmitter) (*Events, error) {
	if out == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox required")
	}
	return &Events{outbox: out, now: time.Now}, nil
}

// StatusChanged records a status move. occurrence distinguishes repeats of
// the same from/to pair, usually the gateway event id.
func (e *Events) StatusChanged(ctx context.Context, tx *gorm.DB, sub *models.Subscription, from enums.SubscriptionStatus, source, occurrence string) error {
	if sub == nil || from == sub.Status {
		return nil
	}
	gatewayEventID := ""
	if source == SourceWebhook {
		gatewayEventID = occurrence
	}
	_, err := e.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionStatusChanged,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   outbox.DeterministicID(sub.ID.String(), string(from), string(sub.Status), occurrence),
		Actor:         outbox.SystemActor(source),
		Data: payloads.SubscriptionStatusChangedEvent{
			SubscriptionID: sub.ID,
			UserID:         sub.UserID,
			From:           from,
			To:             sub.Status,
			Source:         source,
			GatewayEventID: gatewayEventID,
			ChangedAt:      e.now().UTC(),
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue status change")
	}
	return nil
}

// PlanChanged records a committed change row.
func (e *Events) PlanChanged(ctx context.Context, tx *gorm.DB, sub *models.Subscription, change *models.SubscriptionChange) error {
	if sub == nil || change == nil || change.NewPlanID == nil {
		return nil
	}
	_, err := e.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionPlanChanged,
		AggregateType: enums.AggregateSubscriptionChange,
		AggregateID:   change.ID,
		Actor:         changeActor(change),
		Data: payloads.SubscriptionPlanChangedEvent{
			SubscriptionID:   sub.ID,
			UserID:           sub.UserID,
			ChangeID:         change.ID,
			ChangeType:       change.ChangeType,
			PreviousPlanID:   change.PreviousPlanID,
			NewPlanID:        *change.NewPlanID,
			BillingCycle:     sub.BillingCycle,
			AdminForced:      change.AdminForced,
			BypassedCooldown: change.BypassedCooldown,
			ChangedAt:        change.ChangedAt,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue plan change")
	}
	return nil
}

func changeActor(change *models.SubscriptionChange) *outbox.ActorRef {
	if change.ChangedBy == nil {
		return outbox.SystemActor(SourceWebhook)
	}
	role := enums.UserRoleAgent
	if change.AdminForced {
		role = enums.UserRoleAdmin
	}
	return outbox.UserActor(*change.ChangedBy, string(role))
}

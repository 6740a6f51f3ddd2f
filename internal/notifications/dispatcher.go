package notifications

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
	"github.com/kentramx/kentramx-sub001/pkg/outbox"
	"github.com/kentramx/kentramx-sub001/pkg/outbox/payloads"
)

type emitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

// Request is a typed notification for the external notification service.
// DedupeKey identifies the triggering transition; one request is queued per
// (Type, DedupeKey).
type Request struct {
	Type           enums.NotificationType
	UserID         uuid.UUID
	SubscriptionID *uuid.UUID
	DedupeKey      string
	Metadata       map[string]any
}

// Dispatcher queues notification requests in the caller's transaction.
type Dispatcher struct {
	outbox emitter
	logg   *logger.Logger
}

func NewDispatcher(out emitter, logg *logger.Logger) (*Dispatcher, error) {
	if out == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Dispatcher{outbox: out, logg: logg}, nil
}

// Dispatch writes the request unless the same transition already produced
// one. It reports whether a new request was queued.
func (d *Dispatcher) Dispatch(ctx context.Context, tx *gorm.DB, req Request) (bool, error) {
	if !req.Type.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "unknown notification type "+string(req.Type))
	}
	if req.UserID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "notification user required")
	}
	key := strings.TrimSpace(req.DedupeKey)
	if key == "" {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "notification dedupe key required")
	}

	created, err := d.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   AggregateID(req.Type, key),
		Data: payloads.NotificationRequestedEvent{
			Type:           req.Type,
			UserID:         req.UserID,
			SubscriptionID: req.SubscriptionID,
			DedupeKey:      key,
			Metadata:       req.Metadata,
		},
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue notification")
	}
	if !created {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"notification_type": string(req.Type),
			"dedupe_key":        key,
		})
		d.logg.Debug(logCtx, "notification.duplicate_skipped")
	}
	return created, nil
}

// AggregateID is the outbox aggregate id of a notification request.
func AggregateID(notificationType enums.NotificationType, dedupeKey string) uuid.UUID {
	return outbox.DeterministicID(string(notificationType), dedupeKey)
}

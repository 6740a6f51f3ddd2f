package subscriptions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/repo/repotest"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
	"github.com/kentramx/kentramx-sub001/pkg/outbox"
)

func TestStatusChangedDedupesPerOccurrence(t *testing.T) {
	db := repotest.Open(t)
	events, err := NewEvents(outbox.NewService(outbox.NewRepository(db), logger.Nop()))
	require.NoError(t, err)
	sub := newSubscription(uuid.New(), enums.SubscriptionStatusPastDue)
	sub.ID = uuid.New()

	emit := func(occurrence string) {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return events.StatusChanged(context.Background(), tx, sub, enums.SubscriptionStatusActive, SourceWebhook, occurrence)
		}))
	}
	emit("evt_1")
	emit("evt_1")
	emit("evt_2")

	// Same status on both sides is not a change.
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return events.StatusChanged(context.Background(), tx, sub, enums.SubscriptionStatusPastDue, SourceWebhook, "evt_3")
	}))

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventSubscriptionStatusChanged).
		Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var row models.OutboxEvent
	require.NoError(t, db.Where("event_type = ?", enums.EventSubscriptionStatusChanged).First(&row).Error)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, SourceWebhook, envelope.Actor.Source)
	assert.Nil(t, envelope.Actor.UserID)
}

func TestPlanChangedUsesChangeRowID(t *testing.T) {
	db := repotest.Open(t)
	events, err := NewEvents(outbox.NewService(outbox.NewRepository(db), logger.Nop()))
	require.NoError(t, err)
	sub := newSubscription(uuid.New(), enums.SubscriptionStatusActive)
	newPlan := uuid.New()
	admin := uuid.New()
	change := &models.SubscriptionChange{ID: uuid.New(), ChangeType: enums.ChangeTypeUpgrade, NewPlanID: &newPlan, ChangedAt: baseTime, ChangedBy: &admin, AdminForced: true}

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return events.PlanChanged(context.Background(), tx, sub, change)
	}))

	var row models.OutboxEvent
	require.NoError(t, db.Where("event_type = ?", enums.EventSubscriptionPlanChanged).First(&row).Error)
	assert.Equal(t, change.ID, row.AggregateID)
	assert.Equal(t, enums.AggregateSubscriptionChange, row.AggregateType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	require.NotNil(t, envelope.Actor)
	require.NotNil(t, envelope.Actor.UserID)
	assert.Equal(t, admin, *envelope.Actor.UserID)
	assert.Equal(t, "admin", envelope.Actor.Role)
}

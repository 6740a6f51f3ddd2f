package notifications

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
	"github.com/kentramx/kentramx-sub001/pkg/outbox/payloads"
)

func newDispatcher(t *testing.T) (*Dispatcher, *gorm.DB) {
	t.Helper()
	db := repotest.Open(t)
	d, err := NewDispatcher(outbox.NewService(outbox.NewRepository(db), logger.Nop()), logger.Nop())
	require.NoError(t, err)
	return d, db
}

func TestDispatchQueuesOncePerTransition(t *testing.T) {
	d, db := newDispatcher(t)
	userID := uuid.New()
	req := Request{
		Type:      enums.NotificationUpgradeConfirmed,
		UserID:    userID,
		DedupeKey: "change:123",
		Metadata:  map[string]any{"newPlan": "pro"},
	}

	for i, want := range []bool{true, false} {
		err := db.Transaction(func(tx *gorm.DB) error {
			created, err := d.Dispatch(context.Background(), tx, req)
			require.NoError(t, err)
			assert.Equal(t, want, created, "dispatch %d", i)
			return nil
		})
		require.NoError(t, err)
	}

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventNotificationRequested, rows[0].EventType)
	assert.Equal(t, AggregateID(req.Type, req.DedupeKey), rows[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	var payload payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, userID, payload.UserID)
	assert.Equal(t, "pro", payload.Metadata["newPlan"])
}

func TestDispatchDistinctKeysQueueSeparately(t *testing.T) {
	d, db := newDispatcher(t)
	userID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, key := range []string{"sub:1:day:3", "sub:1:day:5"} {
			created, err := d.Dispatch(context.Background(), tx, Request{
				Type:      enums.NotificationPaymentFailed,
				UserID:    userID,
				DedupeKey: key,
			})
			require.NoError(t, err)
			assert.True(t, created)
		}
		return nil
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestDispatchValidatesRequest(t *testing.T) {
	d, db := newDispatcher(t)
	cases := []Request{
		{Type: "bogus", UserID: uuid.New(), DedupeKey: "k"},
		{Type: enums.NotificationTrialStarted, DedupeKey: "k"},
		{Type: enums.NotificationTrialStarted, UserID: uuid.New(), DedupeKey: "  "},
	}
	for _, req := range cases {
		_, err := d.Dispatch(context.Background(), db, req)
		assert.Error(t, err)
	}
}

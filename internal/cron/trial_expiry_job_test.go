package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/listings"
	"github.com/kentramx/kentramx-sub001/internal/notifications"
	"github.com/kentramx/kentramx-sub001/internal/repo/repotest"
	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
	"github.com/kentramx/kentramx-sub001/pkg/outbox"
)

var expiryNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

type gormTx struct{ db *gorm.DB }

func (g gormTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

func newTrialExpiryJob(t *testing.T, db *gorm.DB) *trialExpiryJob {
	t.Helper()
	logg := logger.Nop()
	subs := subscriptions.NewRepository(db)
	reclaimer, err := listings.NewReclaimer(listings.ReclaimerParams{
		Listings:      listings.NewRepository(db),
		Subscriptions: subs,
		Logger:        logg,
		Now:           func() time.Time { return expiryNow },
	})
	require.NoError(t, err)
	out := outbox.NewService(outbox.NewRepository(db), logg)
	dispatcher, err := notifications.NewDispatcher(out, logg)
	require.NoError(t, err)
	events, err := subscriptions.NewEvents(out)
	require.NoError(t, err)

	jobIface, err := NewTrialExpiryJob(TrialExpiryJobParams{
		Logger:        logg,
		DB:            gormTx{db: db},
		Subscriptions: subs,
		Listings:      reclaimer,
		Notifier:      dispatcher,
		Events:        events,
	})
	require.NoError(t, err)
	job := jobIface.(*trialExpiryJob)
	job.now = func() time.Time { return expiryNow }
	return job
}

func seedTrial(t *testing.T, db *gorm.DB, planID uuid.UUID, end time.Time) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		ID:                 uuid.New(),
		UserID:             uuid.New(),
		PlanID:             planID,
		BillingCycle:       enums.BillingCycleMonthly,
		Status:             enums.SubscriptionStatusTrialing,
		CurrentPeriodStart: end.AddDate(0, 0, -14),
		CurrentPeriodEnd:   end,
	}
	require.NoError(t, db.Create(sub).Error)
	for i := 0; i < 2; i++ {
		require.NoError(t, db.Create(&models.Property{
			ID:        uuid.New(),
			AgentID:   sub.UserID,
			Title:     "casa",
			Status:    enums.PropertyStatusActive,
			CreatedAt: expiryNow.Add(-time.Duration(i) * time.Hour),
		}).Error)
	}
	return sub
}

func TestTrialExpiryCancelsLapsedTrials(t *testing.T) {
	db := repotest.Open(t)
	plan := models.SubscriptionPlan{
		ID:            uuid.New(),
		Name:          "agente_trial",
		DisplayName:   "Prueba",
		PriceMonthly:  decimal.Zero,
		PriceYearly:   decimal.Zero,
		Currency:      "mxn",
		MaxProperties: 3,
		IsActive:      true,
	}
	require.NoError(t, db.Create(&plan).Error)
	lapsed := seedTrial(t, db, plan.ID, expiryNow.Add(-time.Hour))
	running := seedTrial(t, db, plan.ID, expiryNow.AddDate(0, 0, 3))

	job := newTrialExpiryJob(t, db)
	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()), "second run finds nothing")

	var stored models.Subscription
	require.NoError(t, db.Where("id = ?", lapsed.ID).First(&stored).Error)
	assert.Equal(t, enums.SubscriptionStatusCanceled, stored.Status)
	require.NotNil(t, stored.CanceledAt)
	assert.True(t, stored.CanceledAt.Equal(expiryNow))

	require.NoError(t, db.Where("id = ?", running.ID).First(&stored).Error)
	assert.Equal(t, enums.SubscriptionStatusTrialing, stored.Status)

	var paused []models.Property
	require.NoError(t, db.Where("agent_id = ? AND status = ?", lapsed.UserID, enums.PropertyStatusPaused).Find(&paused).Error)
	require.Len(t, paused, 2)
	for _, p := range paused {
		require.NotNil(t, p.PausedReason)
		assert.Equal(t, enums.PauseReasonTrialExpired, *p.PausedReason)
	}

	var notices int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventNotificationRequested).Count(&notices).Error)
	assert.Equal(t, int64(1), notices)
	var statusEvents int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventSubscriptionStatusChanged).Count(&statusEvents).Error)
	assert.Equal(t, int64(1), statusEvents)
}

func TestNewTrialExpiryJobRequiresDependencies(t *testing.T) {
	if _, err := NewTrialExpiryJob(TrialExpiryJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected missing dependencies to fail")
	}
}

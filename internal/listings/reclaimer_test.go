package listings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/repo/repotest"
	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func seedListings(t *testing.T, db *gorm.DB, agentID uuid.UUID, n int) []models.Property {
	t.Helper()
	props := make([]models.Property, 0, n)
	for i := 0; i < n; i++ {
		prop := models.Property{
			ID:        uuid.New(),
			AgentID:   agentID,
			Title:     "listing",
			Status:    enums.PropertyStatusActive,
			CreatedAt: now.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, db.Create(&prop).Error)
		props = append(props, prop)
	}
	return props
}

func seedFeatured(t *testing.T, db *gorm.DB, agentID uuid.UUID, n int) []models.FeaturedProperty {
	t.Helper()
	slots := make([]models.FeaturedProperty, 0, n)
	for i := 0; i < n; i++ {
		slot := models.FeaturedProperty{
			ID:         uuid.New(),
			PropertyID: uuid.New(),
			AgentID:    agentID,
			Status:     enums.FeaturedStatusActive,
			StartDate:  now.Add(-time.Duration(n-i) * 24 * time.Hour),
			EndDate:    now.Add(30 * 24 * time.Hour),
		}
		require.NoError(t, db.Create(&slot).Error)
		slots = append(slots, slot)
	}
	return slots
}

func newReclaimer(t *testing.T, db *gorm.DB) *Reclaimer {
	t.Helper()
	r, err := NewReclaimer(ReclaimerParams{
		Listings:      NewRepository(db),
		Subscriptions: subscriptions.NewRepository(db),
		Logger:        logger.Nop(),
		Now:           func() time.Time { return now },
	})
	require.NoError(t, err)
	return r
}

func TestReclaimPausesOldestExcessAndIsIdempotent(t *testing.T) {
	db := repotest.Open(t)
	agentID := uuid.New()
	props := seedListings(t, db, agentID, 8)
	slots := seedFeatured(t, db, agentID, 3)
	sub := models.Subscription{
		ID:                    uuid.New(),
		UserID:                agentID,
		PlanID:                uuid.New(),
		BillingCycle:          enums.BillingCycleMonthly,
		Status:                enums.SubscriptionStatusActive,
		CurrentPeriodStart:    now,
		CurrentPeriodEnd:      now.AddDate(0, 1, 0),
		FeaturedUsedThisMonth: 3,
	}
	require.NoError(t, db.Create(&sub).Error)
	plan := &models.SubscriptionPlan{Name: "basico", MaxProperties: 5, FeaturedListings: 1}
	reclaimer := newReclaimer(t, db)

	result, err := reclaimer.Reclaim(context.Background(), nil, agentID, plan)
	require.NoError(t, err)
	assert.Equal(t, 3, result.PropertiesRemoved)
	assert.Equal(t, 2, result.FeaturedRemoved)
	assert.True(t, result.CounterClamped)

	// The three oldest listings are paused with the downgrade reason.
	for i, prop := range props {
		var stored models.Property
		require.NoError(t, db.First(&stored, "id = ?", prop.ID).Error)
		if i < 3 {
			assert.Equal(t, enums.PropertyStatusPaused, stored.Status, "listing %d", i)
			require.NotNil(t, stored.PausedReason)
			assert.Equal(t, enums.PauseReasonDowngrade, *stored.PausedReason)
		} else {
			assert.Equal(t, enums.PropertyStatusActive, stored.Status, "listing %d", i)
		}
	}

	// The oldest featured slots go first.
	var newest models.FeaturedProperty
	require.NoError(t, db.First(&newest, "id = ?", slots[2].ID).Error)
	assert.Equal(t, enums.FeaturedStatusActive, newest.Status)
	var oldest models.FeaturedProperty
	require.NoError(t, db.First(&oldest, "id = ?", slots[0].ID).Error)
	assert.Equal(t, enums.FeaturedStatusRemovedDowngrade, oldest.Status)

	var storedSub models.Subscription
	require.NoError(t, db.First(&storedSub, "id = ?", sub.ID).Error)
	assert.Equal(t, 1, storedSub.FeaturedUsedThisMonth)

	second, err := reclaimer.Reclaim(context.Background(), nil, agentID, plan)
	require.NoError(t, err)
	assert.Equal(t, ReclaimResult{}, second)
}

func TestReclaimUnlimitedPlanKeepsEverything(t *testing.T) {
	db := repotest.Open(t)
	agentID := uuid.New()
	seedListings(t, db, agentID, 4)
	seedFeatured(t, db, agentID, 2)
	reclaimer := newReclaimer(t, db)

	result, err := reclaimer.Reclaim(context.Background(), nil, agentID, &models.SubscriptionPlan{
		MaxProperties:    models.UnlimitedLimit,
		FeaturedListings: models.UnlimitedLimit,
	})
	require.NoError(t, err)
	assert.Equal(t, ReclaimResult{}, result)
}

func TestReclaimWithinTransaction(t *testing.T) {
	db := repotest.Open(t)
	agentID := uuid.New()
	seedListings(t, db, agentID, 3)
	reclaimer := newReclaimer(t, db)
	plan := &models.SubscriptionPlan{MaxProperties: 1, FeaturedListings: models.UnlimitedLimit}

	err := db.Transaction(func(tx *gorm.DB) error {
		result, err := reclaimer.Reclaim(context.Background(), tx, agentID, plan)
		require.NoError(t, err)
		assert.Equal(t, 2, result.PropertiesRemoved)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	count, err := NewRepository(db).CountActive(context.Background(), agentID)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "rollback restores the listings")
}

func TestPauseAllAndResumeSuspended(t *testing.T) {
	db := repotest.Open(t)
	agentID := uuid.New()
	seedListings(t, db, agentID, 4)
	reclaimer := newReclaimer(t, db)

	paused, err := reclaimer.PauseAll(context.Background(), nil, agentID, enums.PauseReasonSuspension)
	require.NoError(t, err)
	assert.Equal(t, 4, paused)

	resumed, err := reclaimer.ResumeSuspended(context.Background(), nil, agentID, enums.PauseReasonSuspension,
		&models.SubscriptionPlan{MaxProperties: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, resumed)

	resumed, err = reclaimer.ResumeSuspended(context.Background(), nil, agentID, enums.PauseReasonSuspension,
		&models.SubscriptionPlan{MaxProperties: 3})
	require.NoError(t, err)
	assert.Equal(t, 0, resumed, "plan is full")

	// Listings paused for a downgrade are not resumed by payment recovery.
	other := uuid.New()
	seedListings(t, db, other, 2)
	_, err = NewRepository(db).PauseAllActive(context.Background(), other, enums.PauseReasonDowngrade)
	require.NoError(t, err)
	resumed, err = reclaimer.ResumeSuspended(context.Background(), nil, other, enums.PauseReasonSuspension, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, resumed)
}

func TestExcessIDs(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	get := func(i int) uuid.UUID { return ids[i] }

	assert.Nil(t, excessIDs(3, 3, get))
	assert.Equal(t, ids[1:], excessIDs(3, 1, get))
	assert.Equal(t, ids, excessIDs(3, 0, get))
}

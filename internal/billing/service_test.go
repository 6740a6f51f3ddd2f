package billing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/gateway"
	"github.com/kentramx/kentramx-sub001/internal/listings"
	"github.com/kentramx/kentramx-sub001/internal/notifications"
	"github.com/kentramx/kentramx-sub001/internal/plans"
	"github.com/kentramx/kentramx-sub001/internal/repo/repotest"
	"github.com/kentramx/kentramx-sub001/internal/subscriptions"
	"github.com/kentramx/kentramx-sub001/internal/users"
	"github.com/kentramx/kentramx-sub001/pkg/config"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
	"github.com/kentramx/kentramx-sub001/pkg/pagination"
	"github.com/kentramx/kentramx-sub001/pkg/outbox"
	"github.com/kentramx/kentramx-sub001/pkg/outbox/payloads"
)

var testNow = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

const gatewaySubID = "sub_live_1"

type gormTx struct{ db *gorm.DB }

func (g gormTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type stubGateway struct {
	sub        *gateway.Subscription
	getErr     error
	updateErr  error
	previewErr error
	preview    *gateway.InvoicePreview
	price      *gateway.Price
	updates    []gateway.UpdateParams
	previews   []gateway.PreviewParams
	customers  []gateway.CustomerParams
	sessions   []gateway.CheckoutParams
	// afterUpdate runs once the update succeeds, standing in for a webhook
	// that lands before the local commit.
	afterUpdate func(updated gateway.Subscription)
}

func (g *stubGateway) CreateCustomer(_ context.Context, params gateway.CustomerParams) (string, error) {
	g.customers = append(g.customers, params)
	return "cus_new", nil
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, params gateway.CheckoutParams) (*gateway.CheckoutSession, error) {
	g.sessions = append(g.sessions, params)
	return &gateway.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
}

func (g *stubGateway) GetSubscription(_ context.Context, id string) (*gateway.Subscription, error) {
	if g.getErr != nil {
		return nil, g.getErr
	}
	if g.sub == nil || g.sub.ID != id {
		return nil, &gateway.Error{Op: "get_subscription", HTTPStatus: 404, Message: "No such subscription"}
	}
	copied := *g.sub
	return &copied, nil
}

func (g *stubGateway) UpdateSubscription(_ context.Context, id string, params gateway.UpdateParams) (*gateway.Subscription, error) {
	g.updates = append(g.updates, params)
	if g.updateErr != nil {
		return nil, g.updateErr
	}
	next := *g.sub
	if params.PriceID != "" {
		next.PriceID = params.PriceID
	}
	if params.CancelAtPeriodEnd != nil {
		next.CancelAtPeriodEnd = *params.CancelAtPeriodEnd
	}
	g.sub = &next
	if g.afterUpdate != nil {
		g.afterUpdate(next)
	}
	copied := next
	return &copied, nil
}

func (g *stubGateway) PreviewInvoice(_ context.Context, params gateway.PreviewParams) (*gateway.InvoicePreview, error) {
	g.previews = append(g.previews, params)
	if g.previewErr != nil {
		return nil, g.previewErr
	}
	return g.preview, nil
}

func (g *stubGateway) GetPrice(_ context.Context, id string) (*gateway.Price, error) {
	if g.price == nil {
		return &gateway.Price{ID: id, Active: true, Currency: "mxn"}, nil
	}
	return g.price, nil
}

type fixture struct {
	db      *gorm.DB
	svc     *Service
	gw      *stubGateway
	starter models.SubscriptionPlan
	basic   models.SubscriptionPlan
	pro     models.SubscriptionPlan
	trial   models.SubscriptionPlan
}

func strPtr(v string) *string { return &v }

func seedPlan(t *testing.T, db *gorm.DB, name string, monthly int64, maxProperties, featured int, priced bool) models.SubscriptionPlan {
	t.Helper()
	plan := models.SubscriptionPlan{
		ID:               uuid.New(),
		Name:             name,
		DisplayName:      "Plan " + name,
		PriceMonthly:     decimal.NewFromInt(monthly),
		PriceYearly:      decimal.NewFromInt(monthly * 10),
		Currency:         "mxn",
		MaxProperties:    maxProperties,
		FeaturedListings: featured,
		MaxAgents:        1,
		IsActive:         true,
		SortOrder:        int(monthly),
	}
	if priced {
		plan.StripePriceIDMonthly = strPtr("price_" + name + "_m")
		plan.StripePriceIDYearly = strPtr("price_" + name + "_y")
	}
	require.NoError(t, db.Create(&plan).Error)
	return plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := repotest.Open(t)
	logg := logger.Nop()
	f := &fixture{
		db:      db,
		gw:      &stubGateway{},
		starter: seedPlan(t, db, "inicio", 99, 5, 1, true),
		basic:   seedPlan(t, db, "basico", 199, 10, 3, true),
		pro:     seedPlan(t, db, "pro", 399, 20, 5, true),
		trial:   seedPlan(t, db, "agente_trial", 0, 3, 0, false),
	}

	catalog, err := plans.NewCatalog(plans.CatalogParams{
		Repo:   plans.NewRepository(db),
		Config: config.PlanCacheConfig{Size: 8, TTL: time.Minute},
		Logger: logg,
	})
	require.NoError(t, err)

	subs := subscriptions.NewRepository(db)
	listingRepo := listings.NewRepository(db)
	reclaimer, err := listings.NewReclaimer(listings.ReclaimerParams{
		Listings:      listingRepo,
		Subscriptions: subs,
		Logger:        logg,
		Now:           func() time.Time { return testNow },
	})
	require.NoError(t, err)

	out := outbox.NewService(outbox.NewRepository(db), logg)
	dispatcher, err := notifications.NewDispatcher(out, logg)
	require.NoError(t, err)
	events, err := subscriptions.NewEvents(out)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Tx:            gormTx{db: db},
		Subscriptions: subs,
		Changes:       subscriptions.NewChangeLog(db),
		Trials:        NewTrialRepository(db),
		Roles:         users.NewRepository(db),
		Listings:      listingRepo,
		Reclaimer:     reclaimer,
		Catalog:       catalog,
		Gateway:       f.gw,
		Notifier:      dispatcher,
		Events:        events,
		Billing: config.BillingConfig{
			CooldownDays:  30,
			TrialDays:     14,
			TrialPlanName: "agente_trial",
			TrialRole:     "agent",
			GraceDays:     7,
			ReminderDays:  []int{3, 5, 7},
		},
		Stripe: config.StripeConfig{
			SuccessURL: "https://kentra.test/ok",
			CancelURL:  "https://kentra.test/cancel",
		},
		Logger: logg,
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	svc.cooldown.now = svc.now
	f.svc = svc
	return f
}

func (f *fixture) seedActive(t *testing.T, userID uuid.UUID, plan models.SubscriptionPlan, cancelAtPeriodEnd bool) *models.Subscription {
	t.Helper()
	start := testNow.AddDate(0, 0, -10)
	end := testNow.AddDate(0, 0, 20)
	sub := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		PlanID:               plan.ID,
		BillingCycle:         enums.BillingCycleMonthly,
		Status:               enums.SubscriptionStatusActive,
		CurrentPeriodStart:   start,
		CurrentPeriodEnd:     end,
		CancelAtPeriodEnd:    cancelAtPeriodEnd,
		StripeCustomerID:     strPtr("cus_1"),
		StripeSubscriptionID: strPtr(gatewaySubID),
	}
	require.NoError(t, f.db.Create(sub).Error)
	f.gw.sub = &gateway.Subscription{
		ID:                 gatewaySubID,
		CustomerID:         "cus_1",
		Status:             gateway.StatusActive,
		ItemID:             "si_1",
		PriceID:            plan.PriceIDFor(enums.BillingCycleMonthly),
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		CancelAtPeriodEnd:  cancelAtPeriodEnd,
	}
	return sub
}

func (f *fixture) seedChange(t *testing.T, userID uuid.UUID, at time.Time) {
	t.Helper()
	require.NoError(t, subscriptions.NewChangeLog(f.db).AppendChange(context.Background(), &models.SubscriptionChange{
		UserID:         userID,
		SubscriptionID: uuid.New(),
		ChangeType:     enums.ChangeTypeUpgrade,
		ChangedAt:      at,
	}))
}

func (f *fixture) seedListings(t *testing.T, userID uuid.UUID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.db.Create(&models.Property{
			ID:        uuid.New(),
			AgentID:   userID,
			Title:     "casa",
			Status:    enums.PropertyStatusActive,
			CreatedAt: testNow.Add(-time.Duration(i) * time.Hour),
		}).Error)
	}
}

func (f *fixture) notifications(t *testing.T) []payloads.NotificationRequestedEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.db.Where("event_type = ?", enums.EventNotificationRequested).Order("rowid ASC").Find(&rows).Error)
	out := make([]payloads.NotificationRequestedEvent, 0, len(rows))
	for _, row := range rows {
		var envelope outbox.PayloadEnvelope
		require.NoError(t, json.Unmarshal(row.Payload, &envelope))
		var payload payloads.NotificationRequestedEvent
		require.NoError(t, json.Unmarshal(envelope.Data, &payload))
		out = append(out, payload)
	}
	return out
}

func (f *fixture) changes(t *testing.T, userID uuid.UUID) []models.SubscriptionChange {
	t.Helper()
	page, err := subscriptions.NewChangeLog(f.db).ListChanges(context.Background(), userID, pagination.Params{Limit: pagination.MaxLimit})
	require.NoError(t, err)
	return page.Items
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, f.db.Where("id = ?", id).First(&sub).Error)
	return &sub
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected missing dependencies to fail")
	}
}

func TestChangePlanUpgrade(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	sub := f.seedActive(t, userID, f.basic, false)

	res, err := f.svc.ChangePlan(context.Background(), ChangePlanInput{
		UserID:       userID,
		NewPlanID:    f.pro.ID,
		BillingCycle: enums.BillingCycleMonthly,
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
	require.NotNil(t, res.Change)

	require.Len(t, f.gw.updates, 1)
	assert.Equal(t, "price_pro_m", f.gw.updates[0].PriceID)
	assert.Equal(t, "si_1", f.gw.updates[0].ItemID)
	assert.Equal(t, gateway.ProrationCreate, f.gw.updates[0].ProrationBehavior)
	assert.Nil(t, f.gw.updates[0].CancelAtPeriodEnd)
	assert.NotEmpty(t, f.gw.updates[0].IdempotencyKey)

	stored := f.reload(t, sub.ID)
	assert.Equal(t, enums.SubscriptionStatusActive, stored.Status)
	assert.Equal(t, f.pro.ID, stored.PlanID)

	changes := f.changes(t, userID)
	require.Len(t, changes, 1)
	assert.Equal(t, enums.ChangeTypeUpgrade, changes[0].ChangeType)
	assert.False(t, changes[0].BypassedCooldown)

	sent := f.notifications(t)
	require.Len(t, sent, 1)
	assert.Equal(t, enums.NotificationUpgradeConfirmed, sent[0].Type)
	assert.Equal(t, "Plan pro", sent[0].Metadata["newPlan"])

	var planEvents int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventSubscriptionPlanChanged).Count(&planEvents).Error)
	assert.Equal(t, int64(1), planEvents)
}

func TestChangePlanAfterWebhookAlreadyReconciled(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	sub := f.seedActive(t, userID, f.basic, false)

	webhookChange := uuid.New()
	f.gw.afterUpdate = func(updated gateway.Subscription) {
		require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Subscription{}).Where("id = ?", sub.ID).Update("plan_id", f.pro.ID).Error; err != nil {
				return err
			}
			return subscriptions.NewChangeLog(f.db).WithTx(tx).AppendChange(context.Background(), &models.SubscriptionChange{
				ID:             webhookChange,
				UserID:         userID,
				SubscriptionID: sub.ID,
				ChangeType:     enums.ChangeTypeUpgrade,
				ChangedAt:      testNow,
			})
		}))
	}

	res, err := f.svc.ChangePlan(context.Background(), ChangePlanInput{
		UserID:       userID,
		NewPlanID:    f.pro.ID,
		BillingCycle: enums.BillingCycleMonthly,
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
	require.NotNil(t, res.Change)
	assert.Equal(t, webhookChange, res.Change.ID)
	assert.Equal(t, f.pro.ID, res.Subscription.PlanID)

	assert.Len(t, f.changes(t, userID), 1, "the webhook row is the only change row")
	assert.Empty(t, f.notifications(t), "the webhook already sent the confirmation")
	assert.Equal(t, f.pro.ID, f.reload(t, sub.ID).PlanID)
}

func TestChangePlanDowngradeOverListingLimit(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	sub := f.seedActive(t, userID, f.basic, false)
	f.seedListings(t, userID, 8)

	res, err := f.svc.ChangePlan(context.Background(), ChangePlanInput{
		UserID:       userID,
		NewPlanID:    f.starter.ID,
		BillingCycle: enums.BillingCycleMonthly,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, RejectExceedsPropertyLimit, res.Rejection.Code)
	assert.Equal(t, 8, res.Rejection.Details["currentCount"])
	assert.Equal(t, 5, res.Rejection.Details["newLimit"])
	assert.Equal(t, 3, res.Rejection.Details["excess"])

	assert.Empty(t, f.gw.updates, "no gateway call")
	assert.Equal(t, f.basic.ID, f.reload(t, sub.ID).PlanID)
	assert.Empty(t, f.changes(t, userID))
	assert.Empty(t, f.notifications(t))
}

func TestChangePlanDowngradeReclaimsFeatured(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.seedActive(t, userID, f.pro, false)
	f.seedListings(t, userID, 4)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.db.Create(&models.FeaturedProperty{
			ID:         uuid.New(),
			PropertyID: uuid.New(),
			AgentID:    userID,
			Status:     enums.FeaturedStatusActive,
			StartDate:  testNow.AddDate(0, 0, -3+i),
			EndDate:    testNow.AddDate(0, 0, 10),
		}).Error)
	}

	res, err := f.svc.ChangePlan(context.Background(), ChangePlanInput{
		UserID:       userID,
		NewPlanID:    f.starter.ID,
		BillingCycle: enums.BillingCycleMonthly,
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
	require.NotNil(t, res.Reclaimed)
	assert.Equal(t, 0, res.Reclaimed.PropertiesRemoved)
	assert.Equal(t, 2, res.Reclaimed.FeaturedRemoved)
	assert.Equal(t, enums.ChangeTypeDowngrade, res.Change.ChangeType)

	sent := f.notifications(t)
	require.Len(t, sent, 1)
	assert.Equal(t, enums.NotificationDowngradeConfirmed, sent[0].Type)
}

func TestChangePlanCooldown(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.seedActive(t, userID, f.basic, false)
	last := testNow.Add(-(12*24*time.Hour + 5*time.Hour))
	f.seedChange(t, userID, last)

	res, err := f.svc.ChangePlan(context.Background(), ChangePlanInput{
		UserID:       userID,
		NewPlanID:    f.pro.ID,
		BillingCycle: enums.BillingCycleMonthly,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, RejectCooldownActive, res.Rejection.Code)
	assert.Equal(t, 18, res.Rejection.Details["daysRemaining"])
	next, ok := res.Rejection.Details["nextChangeDate"].(*time.Time)
	require.True(t, ok)
	assert.True(t, next.Equal(last.Add(30*24*time.Hour)))
	assert.Empty(t, f.gw.updates)
}

func TestChangePlanBypassRecordsAudit(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	adminID := uuid.New()
	f.seedActive(t, userID, f.basic, false)
	f.seedChange(t, userID, testNow.Add(-24*time.Hour))

	res, err := f.svc.ChangePlan(context.Background(), ChangePlanInput{
		UserID:       userID,
		NewPlanID:    f.pro.ID,
		BillingCycle: enums.BillingCycleMonthly,
		AdminForced:  true,
		ActorID:      &adminID,
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
	assert.True(t, res.Change.AdminForced)
	assert.True(t, res.Change.BypassedCooldown)
	require.NotNil(t, res.Change.ChangedBy)
	assert.Equal(t, adminID, *res.Change.ChangedBy)
}

func TestChangePlanPreviewDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	sub := f.seedActive(t, userID, f.basic, false)
	f.seedChange(t, userID, testNow.Add(-time.Hour))
	f.gw.preview = &gateway.InvoicePreview{
		Total:     decimal.RequireFromString("133.33"),
		AmountDue: decimal.RequireFromString("133.33"),
		Currency:  "mxn",
	}

	res, err := f.svc.ChangePlan(context.Background(), ChangePlanInput{
		UserID:       userID,
		NewPlanID:    f.pro.ID,
		BillingCycle: enums.BillingCycleMonthly,
		PreviewOnly:  true,
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection, "cooldown does not gate previews")
	require.NotNil(t, res.Preview)
	assert.True(t, res.Preview.IsUpgrade)
	assert.False(t, res.Preview.IsDowngrade)
	assert.Equal(t, "133.33", res.Preview.ProratedAmount.StringFixed(2))
	assert.True(t, res.Preview.NextBillingDate.Equal(sub.CurrentPeriodEnd))

	require.Len(t, f.gw.previews, 1)
	assert.Equal(t, "price_pro_m", f.gw.previews[0].PriceID)
	assert.Empty(t, f.gw.updates)
	assert.Equal(t, f.basic.ID, f.reload(t, sub.ID).PlanID)
	assert.Len(t, f.changes(t, userID), 1)
}

func TestChangePlanPreviewShowsDowngradeCredit(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.seedActive(t, userID, f.pro, false)
	f.gw.preview = &gateway.InvoicePreview{
		Total:     decimal.RequireFromString("-133.33"),
		AmountDue: decimal.Zero,
		Currency:  "mxn",
	}

	res, err := f.svc.ChangePlan(context.Background(), ChangePlanInput{
		UserID:       userID,
		NewPlanID:    f.basic.ID,
		BillingCycle: enums.BillingCycleMonthly,
		PreviewOnly:  true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Preview)
	assert.True(t, res.Preview.IsDowngrade)
	assert.Equal(t, "-133.33", res.Preview.ProratedAmount.StringFixed(2))
	assert.True(t, res.Preview.AmountDue.IsZero())
}

func TestChangePlanPreviewFailure(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.seedActive(t, userID, f.basic, false)
	f.gw.previewErr = pkgerrors.New(pkgerrors.CodeCircuitOpen, "circuit open")

	_, err := f.svc.ChangePlan(context.Background(), ChangePlanInput{
		UserID:       userID,
		NewPlanID:    f.pro.ID,
		BillingCycle: enums.BillingCycleMonthly,
		PreviewOnly:  true,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCircuitOpen))
	assert.Equal(t, previewFailedMessage, pkgerrors.As(err).Message())
	assert.True(t, pkgerrors.As(err).ShowsMessage(), "the retry message reaches the client")
}

func TestChangePlanReactivatesViaUpgrade(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	sub := f.seedActive(t, userID, f.basic, true)

	res, err := f.svc.ChangePlan(context.Background(), ChangePlanInput{
		UserID:       userID,
		NewPlanID:    f.pro.ID,
		BillingCycle: enums.BillingCycleMonthly,
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection)

	require.Len(t, f.gw.updates, 1)
	require.NotNil(t, f.gw.updates[0].CancelAtPeriodEnd)
	assert.False(t, *f.gw.updates[0].CancelAtPeriodEnd)
	assert.False(t, f.reload(t, sub.ID).CancelAtPeriodEnd)
	assert.Equal(t, enums.ChangeTypeUpgrade, res.Change.ChangeType)
}

func TestChangePlanDowngradeUnderPendingCancellation(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.seedActive(t, userID, f.pro, true)

	for _, target := range []struct {
		plan  models.SubscriptionPlan
		cycle enums.BillingCycle
	}{
		{f.basic, enums.BillingCycleMonthly},
		{f.pro, enums.BillingCycleYearly},
	} {
		res, err := f.svc.ChangePlan(context.Background(), ChangePlanInput{
			UserID:       userID,
			NewPlanID:    target.plan.ID,
			BillingCycle: target.cycle,
		})
		require.NoError(t, err)
		require.NotNil(t, res.Rejection)
		assert.Equal(t, RejectDowngradeWithCancellation, res.Rejection.Code)
	}
	assert.Empty(t, f.gw.updates)
}

func TestChangePlanGatewayCanceledResyncs(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	sub := f.seedActive(t, userID, f.basic, false)
	f.gw.sub.Status = gateway.StatusCanceled

	res, err := f.svc.ChangePlan(context.Background(), ChangePlanInput{
		UserID:       userID,
		NewPlanID:    f.pro.ID,
		BillingCycle: enums.BillingCycleMonthly,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, RejectSubscriptionCanceled, res.Rejection.Code)
	assert.Empty(t, f.gw.updates, "dead subscriptions are never mutated")

	stored := f.reload(t, sub.ID)
	assert.Equal(t, enums.SubscriptionStatusCanceled, stored.Status)
	assert.NotNil(t, stored.CanceledAt)

	sent := f.notifications(t)
	require.Len(t, sent, 1)
	assert.Equal(t, enums.NotificationSubscriptionCanceled, sent[0].Type)

	changes := f.changes(t, userID)
	require.Len(t, changes, 1, "the gateway cancellation is audited")
	assert.Equal(t, enums.ChangeTypeCancellation, changes[0].ChangeType)
	require.NotNil(t, changes[0].PreviousPlanID)
	assert.Equal(t, f.basic.ID, *changes[0].PreviousPlanID)
	assert.Nil(t, changes[0].NewPlanID)
	assert.Contains(t, string(changes[0].Metadata), gateway.StatusCanceled)
}

func TestChangePlanErrors(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	_, err := f.svc.ChangePlan(context.Background(), ChangePlanInput{UserID: userID, NewPlanID: f.pro.ID, BillingCycle: "weekly"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidInput))

	_, err = f.svc.ChangePlan(context.Background(), ChangePlanInput{UserID: userID, NewPlanID: f.pro.ID, BillingCycle: enums.BillingCycleMonthly})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "no active subscription")

	f.seedActive(t, userID, f.basic, false)
	_, err = f.svc.ChangePlan(context.Background(), ChangePlanInput{UserID: userID, NewPlanID: uuid.New(), BillingCycle: enums.BillingCycleMonthly})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "unknown plan")

	f.gw.updateErr = pkgerrors.New(pkgerrors.CodeDependency, "gateway down")
	_, err = f.svc.ChangePlan(context.Background(), ChangePlanInput{UserID: userID, NewPlanID: f.pro.ID, BillingCycle: enums.BillingCycleMonthly})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Empty(t, f.changes(t, userID), "failed commits leave no audit row")
}

func TestChangePlanCycleChange(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.seedActive(t, userID, f.basic, false)

	res, err := f.svc.ChangePlan(context.Background(), ChangePlanInput{
		UserID:       userID,
		NewPlanID:    f.basic.ID,
		BillingCycle: enums.BillingCycleYearly,
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
	assert.Equal(t, enums.ChangeTypeCycleChange, res.Change.ChangeType)
	assert.Equal(t, "price_basico_y", f.gw.updates[0].PriceID)

	sent := f.notifications(t)
	require.Len(t, sent, 1)
	assert.Equal(t, enums.NotificationCycleChangeConfirmed, sent[0].Type)
}

func TestStartTrial(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	res, err := f.svc.StartTrial(context.Background(), TrialInput{
		UserID:            userID,
		IPAddress:         "201.1.1.1",
		DeviceFingerprint: "fp-1",
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
	require.NotNil(t, res.Subscription)
	assert.Equal(t, enums.SubscriptionStatusTrialing, res.Subscription.Status)
	assert.Equal(t, f.trial.ID, res.Subscription.PlanID)
	assert.True(t, res.Subscription.CurrentPeriodEnd.Equal(testNow.Add(14*24*time.Hour)))

	has, err := users.NewRepository(f.db).HasRole(context.Background(), userID, enums.UserRoleAgent)
	require.NoError(t, err)
	assert.True(t, has)

	var tracked int64
	require.NoError(t, f.db.Model(&models.TrialTracking{}).Count(&tracked).Error)
	assert.Equal(t, int64(1), tracked)

	sent := f.notifications(t)
	require.Len(t, sent, 1)
	assert.Equal(t, enums.NotificationTrialStarted, sent[0].Type)

	again, err := f.svc.StartTrial(context.Background(), TrialInput{UserID: userID, DeviceFingerprint: "fp-other"})
	require.NoError(t, err)
	require.NotNil(t, again.Rejection)
	assert.Equal(t, RejectAlreadySubscribed, again.Rejection.Code)
}

func TestStartTrialSameFingerprintOtherUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartTrial(context.Background(), TrialInput{UserID: uuid.New(), IPAddress: "201.1.1.1", DeviceFingerprint: "fp-1"})
	require.NoError(t, err)

	res, err := f.svc.StartTrial(context.Background(), TrialInput{UserID: uuid.New(), IPAddress: "187.2.2.2", DeviceFingerprint: "fp-1"})
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, RejectTrialAlreadyUsed, res.Rejection.Code)
	assert.Equal(t, int64(1), res.Rejection.Details["previousTrialCount"])

	shared, err := f.svc.StartTrial(context.Background(), TrialInput{UserID: uuid.New(), IPAddress: "201.1.1.1", DeviceFingerprint: "fp-2"})
	require.NoError(t, err)
	require.NotNil(t, shared.Rejection, "a matching ip alone denies")
	assert.Equal(t, RejectTrialAlreadyUsed, shared.Rejection.Code)
}

func TestStartTrialRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartTrial(context.Background(), TrialInput{UserID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidInput))
}

func TestStartCheckout(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	res, err := f.svc.StartCheckout(context.Background(), CheckoutInput{
		UserID:       userID,
		Email:        "agente@kentra.test",
		PlanID:       f.pro.ID,
		BillingCycle: enums.BillingCycleYearly,
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", res.URL)

	require.Len(t, f.gw.customers, 1)
	require.Len(t, f.gw.sessions, 1)
	session := f.gw.sessions[0]
	assert.Equal(t, "cus_new", session.CustomerID)
	assert.Equal(t, "price_pro_y", session.PriceID)
	assert.Equal(t, userID.String(), session.Metadata[subscriptions.MetadataUserID])
	assert.Equal(t, f.pro.ID.String(), session.Metadata[subscriptions.MetadataPlanID])
	assert.Equal(t, "yearly", session.Metadata[subscriptions.MetadataBillingCycle])
}

func TestStartCheckoutRejectsActiveSubscriber(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.seedActive(t, userID, f.basic, false)

	res, err := f.svc.StartCheckout(context.Background(), CheckoutInput{UserID: userID, PlanID: f.pro.ID, BillingCycle: enums.BillingCycleMonthly})
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, RejectAlreadySubscribed, res.Rejection.Code)
	assert.Empty(t, f.gw.sessions)
}

func TestStartCheckoutInactivePrice(t *testing.T) {
	f := newFixture(t)
	f.gw.price = &gateway.Price{ID: "price_pro_m", Active: false}

	_, err := f.svc.StartCheckout(context.Background(), CheckoutInput{UserID: uuid.New(), Email: "a@b.c", PlanID: f.pro.ID, BillingCycle: enums.BillingCycleMonthly})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Empty(t, f.gw.sessions)

	_, err = f.svc.StartCheckout(context.Background(), CheckoutInput{UserID: uuid.New(), Email: "a@b.c", PlanID: f.trial.ID, BillingCycle: enums.BillingCycleMonthly})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidInput), "trial plan has no price")
}

func TestCancelAtPeriodEnd(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	sub := f.seedActive(t, userID, f.basic, false)

	res, err := f.svc.CancelAtPeriodEnd(context.Background(), userID, nil)
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
	require.NotNil(t, res.Change)
	assert.Equal(t, enums.ChangeTypeCancellation, res.Change.ChangeType)

	require.Len(t, f.gw.updates, 1)
	require.NotNil(t, f.gw.updates[0].CancelAtPeriodEnd)
	assert.True(t, *f.gw.updates[0].CancelAtPeriodEnd)
	assert.True(t, f.reload(t, sub.ID).CancelAtPeriodEnd)

	again, err := f.svc.CancelAtPeriodEnd(context.Background(), userID, nil)
	require.NoError(t, err)
	assert.Nil(t, again.Change)
	assert.Len(t, f.gw.updates, 1, "already scheduled")

	sent := f.notifications(t)
	require.Len(t, sent, 1)
	assert.Equal(t, enums.NotificationCancellationScheduled, sent[0].Type)

	cooldown, err := f.svc.cooldown.Check(context.Background(), userID, CooldownOptions{})
	require.NoError(t, err)
	assert.False(t, cooldown.Allowed, "a scheduled cancellation starts the cooldown like any other change")
	assert.Equal(t, 30, cooldown.DaysRemaining)
}

func TestGetSubscriptionFallsBackToLatest(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	_, err := f.svc.GetSubscription(context.Background(), userID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	sub := f.seedActive(t, userID, f.basic, false)
	require.NoError(t, f.db.Model(&models.Subscription{}).Where("id = ?", sub.ID).Update("status", enums.SubscriptionStatusCanceled).Error)

	view, err := f.svc.GetSubscription(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, view.Subscription.ID)
	assert.Equal(t, f.basic.ID, view.Plan.ID)
}

func TestGatewayErrorsPropagate(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.seedActive(t, userID, f.basic, false)
	f.gw.getErr = errors.New("boom")

	_, err := f.svc.CancelAtPeriodEnd(context.Background(), userID, nil)
	require.Error(t, err)
	assert.Empty(t, f.changes(t, userID))
}

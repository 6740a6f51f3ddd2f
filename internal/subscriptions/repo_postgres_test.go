package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/pkg/db/models"
	"github.com/kentramx/kentramx-sub001/pkg/enums"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

const guardedUpdate = `UPDATE "subscriptions" SET .+ WHERE \(?id = \$\d+ AND user_id = \$\d+ AND status = \$\d+`

func newPostgresMock(t *testing.T) (*repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	r := NewRepository(conn).(*repository)
	r.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }
	return r, mock
}

func mockSubscription() *models.Subscription {
	return &models.Subscription{
		ID:                 uuid.New(),
		UserID:             uuid.New(),
		PlanID:             uuid.New(),
		BillingCycle:       enums.BillingCycleMonthly,
		Status:             enums.SubscriptionStatusActive,
		CurrentPeriodStart: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		CurrentPeriodEnd:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSaveGuardsOnReadStatus(t *testing.T) {
	r, mock := newPostgresMock(t)
	sub := mockSubscription()

	mock.ExpectExec(guardedUpdate).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Save(context.Background(), sub, enums.SubscriptionStatusActive))
	assert.True(t, sub.UpdatedAt.Equal(r.now()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReportsStateConflictWhenNoRowMatches(t *testing.T) {
	r, mock := newPostgresMock(t)
	sub := mockSubscription()

	mock.ExpectExec(guardedUpdate).WillReturnResult(sqlmock.NewResult(0, 0))

	err := r.Save(context.Background(), sub, enums.SubscriptionStatusPastDue)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMapsUniqueViolationToConflict(t *testing.T) {
	r, mock := newPostgresMock(t)
	sub := mockSubscription()

	mock.ExpectExec(guardedUpdate).WillReturnError(&pgconn.PgError{
		Code:           "23505",
		ConstraintName: "uq_subscriptions_live_user",
		Message:        "duplicate key value violates unique constraint",
	})

	err := r.Save(context.Background(), sub, enums.SubscriptionStatusActive)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetMonthlyCountersSkipsTerminalRows(t *testing.T) {
	r, mock := newPostgresMock(t)

	mock.ExpectExec(`UPDATE "subscriptions" SET .+ WHERE status NOT IN \(.+\) AND .*featured_counter_reset_at IS NULL OR featured_counter_reset_at < \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := r.ResetMonthlyCounters(context.Background(), time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

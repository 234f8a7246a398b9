package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/liquidgold/wallet/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestNotificationService_Push(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	service := NewNotificationService(db, redisClient)

	t.Run("persists and enqueues", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO notifications").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		redisMock.Regexp().ExpectRPush(notificationQueue, `.*`).SetVal(1)

		err := service.Push(context.Background(), 1, "💰 Deposit Successful", "₹500.00 added", models.NotifySuccess)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("queue failure does not surface", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO notifications").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
		redisMock.Regexp().ExpectRPush(notificationQueue, `.*`).SetErr(assert.AnError)

		err := service.Push(context.Background(), 1, "title", "message", models.NotifyInfo)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNotificationService_PushEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewNotificationService(db, nil)

	t.Run("untitled events carry no notification", func(t *testing.T) {
		service.PushEvent(context.Background(), models.Event{Kind: models.EventFundsDeposited, AccountID: 1})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("titled event defaults to info", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO notifications").
			WithArgs(int64(1), "📅 Scheduled Payment Set", "details", models.NotifyInfo, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

		service.PushEvent(context.Background(), models.Event{
			AccountID: 1,
			Title:     "📅 Scheduled Payment Set",
			Message:   "details",
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNotificationService_MarkRead(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewNotificationService(db, nil)

	t.Run("marks an owned notification", func(t *testing.T) {
		mock.ExpectExec("UPDATE notifications SET read = TRUE").
			WithArgs(int64(5), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.MarkRead(context.Background(), 1, 5))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("someone else's notification is not found", func(t *testing.T) {
		mock.ExpectExec("UPDATE notifications SET read = TRUE").
			WithArgs(int64(5), int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, service.MarkRead(context.Background(), 2, 5), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNotificationService_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewNotificationService(db, nil)

	mock.ExpectQuery("SELECT id, account_id, title, message, kind, read, created_at FROM notifications").
		WithArgs(int64(1), 30).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "title", "message", "kind", "read", "created_at"}).
			AddRow(2, 1, "💸 Money Received!", "You received ₹200.00", models.NotifySuccess, false, time.Now()).
			AddRow(1, 1, "🎉 Welcome to Liquid Gold!", "Your wallet is ready.", models.NotifySuccess, true, time.Now().Add(-time.Hour)))

	notifications, err := service.List(context.Background(), 1, 30)
	assert.NoError(t, err)
	assert.Len(t, notifications, 2)
	assert.False(t, notifications[0].Read)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/liquidgold/wallet/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTransactionService_History(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db)
	source := int64(1)
	destination := int64(2)

	t.Run("returns one page with total", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

		mock.ExpectQuery("SELECT id, reference, source_id, destination_id, amount, fee, kind, leg, category, description, balance_after, created_at FROM transactions").
			WithArgs(int64(1), historyPageSize, 20).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "reference", "source_id", "destination_id", "amount", "fee", "kind", "leg",
				"category", "description", "balance_after", "created_at"}).
				AddRow(30, "TXN1A2B3C4D5E6F", source, destination, 200_000, 200, models.TxnTransfer,
					models.LegDebit, "Food & Dining", "dinner", 799_800, time.Now()))

		transactions, total, err := service.History(context.Background(), 1, 2)
		assert.NoError(t, err)
		assert.Equal(t, 42, total)
		assert.Len(t, transactions, 1)
		assert.Equal(t, int64(200), transactions[0].Fee)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("page defaults to one", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery("SELECT id, reference, source_id, destination_id, amount, fee, kind, leg, category, description, balance_after, created_at FROM transactions").
			WithArgs(int64(1), historyPageSize, 0).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		transactions, total, err := service.History(context.Background(), 1, 0)
		assert.NoError(t, err)
		assert.Equal(t, 0, total)
		assert.Empty(t, transactions)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionService_DailySeries(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db)
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT DATE\\(created_at\\) AS day").
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"day", "sent", "received"}).
			AddRow(time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC), 50_000, 0).
			AddRow(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), 0, 200_000))

	series, err := service.DailySeries(context.Background(), 1, 30, now)
	assert.NoError(t, err)
	assert.Len(t, series, 2)
	assert.Equal(t, "2026-08-23", series[0].Date)
	assert.Equal(t, int64(200_000), series[1].Received)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionService_MonthCategories(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db)
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	monthStart := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT category, COALESCE\\(SUM\\(amount\\), 0\\) AS total FROM transactions").
		WithArgs(int64(1), monthStart).
		WillReturnRows(sqlmock.NewRows([]string{"category", "total"}).
			AddRow("Food & Dining", 120_000).
			AddRow("Transport", 40_000))

	totals, err := service.MonthCategories(context.Background(), 1, now)
	assert.NoError(t, err)
	assert.Len(t, totals, 2)
	assert.Equal(t, "Food & Dining", totals[0].Category)
	assert.Equal(t, int64(120_000), totals[0].Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

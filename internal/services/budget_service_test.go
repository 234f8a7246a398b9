package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestBudgetService_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewBudgetService(db)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	monthStart := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT b.id, b.account_id, b.name, b.emoji, b.color, b.monthly_limit, b.created_at").
		WithArgs(int64(1), monthStart).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "name", "emoji", "color", "monthly_limit", "created_at", "spent"}).
			AddRow(1, 1, "Food & Dining", "🍔", "#e74c3c", 50_000, time.Now(), 25_000).
			AddRow(2, 1, "Transport", "🚗", "#3498db", 30_000, time.Now(), 45_000).
			AddRow(3, 1, "Health", "💊", "#2ecc71", 0, time.Now(), 0))

	budgets, err := service.List(context.Background(), 1, now)
	assert.NoError(t, err)
	assert.Len(t, budgets, 3)
	assert.Equal(t, float64(50), budgets[0].Pct)
	// Overspent categories cap at 100.
	assert.Equal(t, float64(100), budgets[1].Pct)
	assert.Equal(t, float64(0), budgets[2].Pct)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBudgetService_UpdateLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewBudgetService(db)

	t.Run("updates an owned category", func(t *testing.T) {
		mock.ExpectExec("UPDATE budget_categories SET monthly_limit = \\$1").
			WithArgs(int64(75_000), int64(2), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.UpdateLimit(context.Background(), 1, 2, 75_000))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("someone else's category is not found", func(t *testing.T) {
		mock.ExpectExec("UPDATE budget_categories SET monthly_limit = \\$1").
			WithArgs(int64(75_000), int64(2), int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, service.UpdateLimit(context.Background(), 9, 2, 75_000), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("negative limit rejected", func(t *testing.T) {
		assert.ErrorIs(t, service.UpdateLimit(context.Background(), 1, 2, -1), ErrInvalidAmount)
	})
}

func TestSeedDefaultBudgetsTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	tx, _ := db.Begin()

	for _, b := range defaultBudgets {
		mock.ExpectExec("INSERT INTO budget_categories").
			WithArgs(int64(1), b.Name, b.Emoji, b.Color, b.MonthlyLimit, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}

	assert.NoError(t, SeedDefaultBudgetsTx(tx, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

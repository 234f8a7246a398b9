package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func newTestSavings(t *testing.T) (*SavingsService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	cfg := testWalletConfig()
	gamification := NewGamificationService(db)
	ledger := NewLedgerService(db, cfg, gamification, NewAuditRecorder(nil), NewDispatcher(nil, nil))
	service := NewSavingsService(db, cfg, ledger, gamification, NewDispatcher(nil, nil))
	return service, mock, func() { db.Close() }
}

func expectLockGoal(mock sqlmock.Sqlmock, goalID, accountID, target, saved int64, completed bool) {
	mock.ExpectQuery("SELECT id, account_id, name, emoji, target, saved, deadline, completed, created_at FROM savings_goals WHERE id = \\$1 AND account_id = \\$2 FOR UPDATE").
		WithArgs(goalID, accountID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "name", "emoji", "target", "saved", "deadline", "completed", "created_at"}).
			AddRow(goalID, accountID, "Goa Trip", "🏖️", target, saved, "2026-12-31", completed, time.Now()))
}

func TestSavingsService_CreateGoal(t *testing.T) {
	service, mock, cleanup := newTestSavings(t)
	defer cleanup()

	t.Run("creates goal and awards xp", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO savings_goals").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectExec("UPDATE accounts SET xp = xp \\+ \\$1").
			WithArgs(int64(20), sqlmock.AnyArg(), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		goal, err := service.CreateGoal(context.Background(), 1, "Goa Trip", "", 500_000, "2026-12-31")
		assert.NoError(t, err)
		assert.Equal(t, int64(7), goal.ID)
		assert.Equal(t, "🎯", goal.Emoji)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero target rejected", func(t *testing.T) {
		_, err := service.CreateGoal(context.Background(), 1, "Nope", "", 0, "")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestSavingsService_DepositToGoal(t *testing.T) {
	service, mock, cleanup := newTestSavings(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("moves balance into goal", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockGoal(mock, 7, 1, 500_000, 100_000, false)
		expectLockAccount(mock, 1, 300_000, 1)
		expectInsertTransaction(mock, 40)
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, total_sent = total_sent \\+ \\$2").
			WithArgs(int64(250_000), int64(50_000), int64(0), 1, sqlmock.AnyArg(), int64(1), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE savings_goals SET saved = \\$1, completed = \\$2").
			WithArgs(int64(150_000), false, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE accounts SET xp = xp \\+ \\$1").
			WithArgs(int64(10), sqlmock.AnyArg(), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		goal, err := service.DepositToGoal(ctx, 1, 7, 50_000)
		assert.NoError(t, err)
		assert.Equal(t, int64(150_000), goal.Saved)
		assert.False(t, goal.Completed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reaching target completes the goal once", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockGoal(mock, 7, 1, 500_000, 450_000, false)
		expectLockAccount(mock, 1, 100_000, 1)
		expectInsertTransaction(mock, 41)
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, total_sent = total_sent \\+ \\$2").
			WithArgs(int64(50_000), int64(50_000), int64(0), 1, sqlmock.AnyArg(), int64(1), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE savings_goals SET saved = \\$1, completed = \\$2").
			WithArgs(int64(500_000), true, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE accounts SET xp = xp \\+ \\$1").
			WithArgs(int64(10), sqlmock.AnyArg(), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE accounts SET xp = xp \\+ \\$1").
			WithArgs(int64(100), sqlmock.AnyArg(), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		goal, err := service.DepositToGoal(ctx, 1, 7, 50_000)
		assert.NoError(t, err)
		assert.True(t, goal.Completed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overshooting the target is rejected", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockGoal(mock, 7, 1, 500_000, 450_000, false)
		mock.ExpectRollback()

		_, err := service.DepositToGoal(ctx, 1, 7, 60_000)
		assert.ErrorIs(t, err, ErrOverTarget)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockGoal(mock, 7, 1, 500_000, 0, false)
		expectLockAccount(mock, 1, 10_000, 1)
		mock.ExpectRollback()

		_, err := service.DepositToGoal(ctx, 1, 7, 50_000)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown goal", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, account_id, name, emoji, target, saved, deadline, completed, created_at FROM savings_goals").
			WithArgs(int64(99), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, err := service.DepositToGoal(ctx, 1, 99, 50_000)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSavingsService_WithdrawFromGoal(t *testing.T) {
	service, mock, cleanup := newTestSavings(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("moves goal money back to balance", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockGoal(mock, 7, 1, 500_000, 200_000, false)
		expectLockAccount(mock, 1, 50_000, 1)
		expectInsertTransaction(mock, 42)
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, total_sent = total_sent \\+ \\$2").
			WithArgs(int64(130_000), int64(0), int64(80_000), 1, sqlmock.AnyArg(), int64(1), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE savings_goals SET saved = \\$1").
			WithArgs(int64(120_000), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		goal, err := service.WithdrawFromGoal(ctx, 1, 7, 80_000)
		assert.NoError(t, err)
		assert.Equal(t, int64(120_000), goal.Saved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cannot withdraw more than saved", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockGoal(mock, 7, 1, 500_000, 30_000, false)
		mock.ExpectRollback()

		_, err := service.WithdrawFromGoal(ctx, 1, 7, 80_000)
		assert.ErrorIs(t, err, ErrInsufficientGoalFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("completed goal stays completed when drained", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockGoal(mock, 7, 1, 500_000, 500_000, true)
		expectLockAccount(mock, 1, 0, 1)
		expectInsertTransaction(mock, 43)
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, total_sent = total_sent \\+ \\$2").
			WithArgs(int64(500_000), int64(0), int64(500_000), 1, sqlmock.AnyArg(), int64(1), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE savings_goals SET saved = \\$1").
			WithArgs(int64(0), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		goal, err := service.WithdrawFromGoal(ctx, 1, 7, 500_000)
		assert.NoError(t, err)
		assert.True(t, goal.Completed)
		assert.Equal(t, int64(0), goal.Saved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSavingsService_DeleteGoal(t *testing.T) {
	service, mock, cleanup := newTestSavings(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("refunds remaining savings before deleting", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockGoal(mock, 7, 1, 500_000, 150_000, false)
		expectLockAccount(mock, 1, 20_000, 1)
		expectInsertTransaction(mock, 44)
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, total_sent = total_sent \\+ \\$2").
			WithArgs(int64(170_000), int64(0), int64(150_000), 1, sqlmock.AnyArg(), int64(1), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM savings_goals WHERE id = \\$1").
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, service.DeleteGoal(ctx, 1, 7))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty goal deletes without a refund", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockGoal(mock, 7, 1, 500_000, 0, false)
		mock.ExpectExec("DELETE FROM savings_goals WHERE id = \\$1").
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, service.DeleteGoal(ctx, 1, 7))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

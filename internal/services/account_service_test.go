package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func newTestAccounts(t *testing.T) (*AccountService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	cfg := testWalletConfig()
	cfg.JWTSecret = "test-secret"
	gamification := NewGamificationService(db)
	ledger := NewLedgerService(db, cfg, gamification, NewAuditRecorder(nil), NewDispatcher(nil, nil))
	service := NewAccountService(db, cfg, ledger, gamification, NewDispatcher(nil, nil))
	return service, mock, func() { db.Close() }
}

func expectGetAccount(mock sqlmock.Sqlmock, id int64, balance, xp int64, streak int) {
	mock.ExpectQuery("SELECT id, wallet_number, email, username, balance, xp, streak, last_login").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "wallet_number", "email", "username", "balance", "xp", "streak", "last_login",
			"status", "total_sent", "total_received", "txn_count", "version", "created_at", "updated_at"}).
			AddRow(id, "LG000001ABCDEF", "asha@example.com", "asha", balance, xp, streak, time.Now(),
				"ACTIVE", 0, balance, 1, 2, time.Now(), time.Now()))
}

func TestAccountService_EnsureAccount(t *testing.T) {
	service, mock, cleanup := newTestAccounts(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("first login provisions wallet with bonus and budgets", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, streak, last_login FROM accounts WHERE email = \\$1").
			WithArgs("asha@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery("INSERT INTO accounts").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		for range defaultBudgets {
			mock.ExpectExec("INSERT INTO budget_categories").
				WillReturnResult(sqlmock.NewResult(1, 1))
		}

		// Signup bonus rides the normal deposit path.
		expectLockAccount(mock, 1, 0, 1)
		expectInsertTransaction(mock, 1)
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, total_sent = total_sent \\+ \\$2").
			WithArgs(int64(100_000), int64(0), int64(100_000), 1, sqlmock.AnyArg(), int64(1), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		// First login starts the streak.
		mock.ExpectExec("UPDATE accounts SET streak = \\$1, last_login = \\$2").
			WithArgs(1, sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectExec("UPDATE accounts SET xp = xp \\+ \\$1").
			WithArgs(int64(100), sqlmock.AnyArg(), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE accounts SET xp = xp \\+ \\$1").
			WithArgs(int64(10), sqlmock.AnyArg(), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		expectGetAccount(mock, 1, 100_000, 110, 1)

		account, err := service.EnsureAccount(ctx, "asha@example.com", "asha")
		assert.NoError(t, err)
		assert.Equal(t, int64(100_000), account.Balance)
		assert.Equal(t, int64(110), account.XP)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("same-day repeat login changes nothing", func(t *testing.T) {
		today := time.Now().UTC().Truncate(24 * time.Hour)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, streak, last_login FROM accounts WHERE email = \\$1").
			WithArgs("asha@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "streak", "last_login"}).
				AddRow(1, 3, today))
		mock.ExpectCommit()

		expectGetAccount(mock, 1, 100_000, 110, 3)

		_, err := service.EnsureAccount(ctx, "asha@example.com", "asha")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("next-day login extends the streak", func(t *testing.T) {
		yesterday := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, streak, last_login FROM accounts WHERE email = \\$1").
			WithArgs("asha@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "streak", "last_login"}).
				AddRow(1, 3, yesterday))
		mock.ExpectExec("UPDATE accounts SET streak = \\$1, last_login = \\$2").
			WithArgs(4, sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE accounts SET xp = xp \\+ \\$1").
			WithArgs(int64(10), sqlmock.AnyArg(), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		expectGetAccount(mock, 1, 100_000, 120, 4)

		account, err := service.EnsureAccount(ctx, "asha@example.com", "asha")
		assert.NoError(t, err)
		assert.Equal(t, 4, account.Streak)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGenWalletNumber(t *testing.T) {
	number := genWalletNumber()
	assert.Len(t, number, 14)
	assert.Equal(t, "LG", number[:2])

	other := genWalletNumber()
	assert.NotEqual(t, number, other)
}

func TestAccountService_MintToken(t *testing.T) {
	service, _, cleanup := newTestAccounts(t)
	defer cleanup()

	token, err := service.mintToken(42)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
}

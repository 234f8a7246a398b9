package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/liquidgold/wallet/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		xp   int64
		want string
	}{
		{0, TierBronze},
		{199, TierBronze},
		{200, TierSilver},
		{799, TierSilver},
		{800, TierGold},
		{1999, TierGold},
		{2000, TierPlatinum},
		{4999, TierPlatinum},
		{5000, TierDiamond},
		{1_000_000, TierDiamond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.xp), "xp=%d", tt.xp)
	}
}

func TestLoginEvents(t *testing.T) {
	day := func(n int) time.Time {
		return time.Date(2026, 3, n, 0, 0, 0, 0, time.UTC)
	}

	t.Run("seven consecutive days earn 120 XP", func(t *testing.T) {
		var total int64
		streak := 0
		var last *time.Time

		for n := 1; n <= 7; n++ {
			newStreak, events := LoginEvents(1, streak, last, day(n))
			assert.Equal(t, n, newStreak)
			for _, e := range events {
				total += e.Kind.XP()
			}
			streak = newStreak
			d := day(n)
			last = &d
		}

		// 7 daily logins at 10 plus the 7-day bonus of 50.
		assert.Equal(t, int64(120), total)
	})

	t.Run("same day repeat login is a no-op", func(t *testing.T) {
		d := day(5)
		newStreak, events := LoginEvents(1, 3, &d, day(5))
		assert.Equal(t, 3, newStreak)
		assert.Empty(t, events)
	})

	t.Run("gap resets streak to one but still earns daily XP", func(t *testing.T) {
		d := day(1)
		newStreak, events := LoginEvents(1, 6, &d, day(4))
		assert.Equal(t, 1, newStreak)
		assert.Len(t, events, 1)
		assert.Equal(t, models.EventDailyLogin, events[0].Kind)
	})

	t.Run("streak bonus fires on every seventh day", func(t *testing.T) {
		d := day(13)
		newStreak, events := LoginEvents(1, 13, &d, day(14))
		assert.Equal(t, 14, newStreak)
		assert.Len(t, events, 2)
		assert.Equal(t, models.EventStreakBonus, events[1].Kind)
	})

	t.Run("first ever login starts streak at one", func(t *testing.T) {
		newStreak, events := LoginEvents(1, 0, nil, day(1))
		assert.Equal(t, 1, newStreak)
		assert.Len(t, events, 1)
	})
}

func TestGamificationService_ApplyTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewGamificationService(db)

	t.Run("credits xp per rewarding event", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec("UPDATE accounts SET xp = xp \\+ \\$1").
			WithArgs(int64(15), sqlmock.AnyArg(), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		events := []models.Event{
			{Kind: models.EventTransferSent, AccountID: 1},
			{Kind: models.EventTransferReceived, AccountID: 2}, // no reward
		}
		assert.NoError(t, service.ApplyTx(tx, events))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips events without an account", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		assert.NoError(t, service.ApplyTx(tx, []models.Event{{Kind: models.EventDailyLogin}}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGamificationService_Leaderboard(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewGamificationService(db)

	mock.ExpectQuery("SELECT id, username, xp FROM accounts WHERE status = \\$1 ORDER BY xp DESC, created_at ASC LIMIT \\$2").
		WithArgs(models.AccountActive, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "xp"}).
			AddRow(3, "asha", 2400).
			AddRow(1, "ravi", 950).
			AddRow(2, "meera", 950))

	entries, err := service.Leaderboard(context.Background(), 5)
	assert.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, TierPlatinum, entries[0].Tier)
	assert.Equal(t, TierGold, entries[1].Tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

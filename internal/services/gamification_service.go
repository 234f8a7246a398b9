package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/liquidgold/wallet/internal/models"
)

// Tiers in ascending order. Tier is a pure function of cumulative XP and is
// never stored, so it cannot drift from the XP that produced it.
const (
	TierBronze   = "bronze"
	TierSilver   = "silver"
	TierGold     = "gold"
	TierPlatinum = "platinum"
	TierDiamond  = "diamond"
)

var tierThresholds = []struct {
	name string
	min  int64
}{
	{TierDiamond, 5000},
	{TierPlatinum, 2000},
	{TierGold, 800},
	{TierSilver, 200},
}

// TierFor maps cumulative XP to a tier.
func TierFor(xp int64) string {
	for _, t := range tierThresholds {
		if xp >= t.min {
			return t.name
		}
	}
	return TierBronze
}

// streakBonusEvery is the consecutive-day count that earns the streak bonus.
const streakBonusEvery = 7

// GamificationService applies XP deltas and streak transitions. It is a
// stateless per-event processor: all reward state lives on the account row
// and is mutated inside the same DB transaction as the event that earned it.
type GamificationService struct {
	db *sql.DB
}

func NewGamificationService(db *sql.DB) *GamificationService {
	return &GamificationService{db: db}
}

// ApplyTx credits the XP deltas of an ordered event list inside the caller's
// transaction. Callers hold the affected account rows locked, so the additive
// update cannot race.
func (g *GamificationService) ApplyTx(tx *sql.Tx, events []models.Event) error {
	for _, e := range events {
		delta := e.Kind.XP()
		if delta == 0 || e.AccountID == 0 {
			continue
		}
		if _, err := tx.Exec(`
			UPDATE accounts SET xp = xp + $1, updated_at = $2 WHERE id = $3`,
			delta, time.Now().UTC(), e.AccountID); err != nil {
			return err
		}
	}
	return nil
}

// LoginEvents runs the streak state machine for one login. It is pure: the
// caller persists newStreak and the login date and feeds the events through
// ApplyTx in its own transaction.
//
// Same-day repeat logins are a no-op. A login exactly one day after the last
// increments the streak; any longer gap resets it to 1. Either way the first
// login of a day earns the daily XP, and every 7th consecutive day adds the
// streak bonus.
func LoginEvents(accountID int64, streak int, lastLogin *time.Time, today time.Time) (newStreak int, events []models.Event) {
	today = today.Truncate(24 * time.Hour)

	if lastLogin != nil && lastLogin.Truncate(24*time.Hour).Equal(today) {
		return streak, nil
	}

	yesterday := today.AddDate(0, 0, -1)
	if lastLogin != nil && lastLogin.Truncate(24*time.Hour).Equal(yesterday) {
		newStreak = streak + 1
	} else {
		newStreak = 1
	}

	events = append(events, models.Event{
		Kind:      models.EventDailyLogin,
		AccountID: accountID,
		Action:    "Login",
		Details:   fmt.Sprintf("streak %d", newStreak),
	})

	if newStreak%streakBonusEvery == 0 {
		events = append(events, models.Event{
			Kind:       models.EventStreakBonus,
			AccountID:  accountID,
			Action:     "Streak Bonus",
			Details:    fmt.Sprintf("%d-day streak", newStreak),
			Title:      fmt.Sprintf("🔥 %d-Day Streak!", newStreak),
			Message:    fmt.Sprintf("You've logged in %d days in a row! Bonus XP!", newStreak),
			NotifyKind: models.NotifySuccess,
		})
	}

	return newStreak, events
}

// LeaderboardEntry is one row of the read-only XP projection.
type LeaderboardEntry struct {
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
	XP        int64  `json:"xp"`
	Tier      string `json:"tier"`
}

// Leaderboard returns the top accounts by XP, ties broken by earlier account
// creation. It is recomputed on every read; no rank is ever stored.
func (g *GamificationService) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	rows, err := g.db.Query(`
		SELECT id, username, xp
		FROM accounts
		WHERE status = $1
		ORDER BY xp DESC, created_at ASC
		LIMIT $2`, models.AccountActive, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []LeaderboardEntry{}
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.AccountID, &e.Username, &e.XP); err != nil {
			return nil, err
		}
		e.Tier = TierFor(e.XP)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLeaderboard returns the top 5 accounts by XP
// @Summary Leaderboard
// @Tags gamification
// @Produce json
// @Success 200 {array} LeaderboardEntry
// @Router /leaderboard [get]
func (g *GamificationService) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := g.Leaderboard(r.Context(), 5)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch leaderboard", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

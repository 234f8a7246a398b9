package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/liquidgold/wallet/internal/middleware"
	"github.com/liquidgold/wallet/internal/models"
)

// AuditRecorder writes append-only activity records. It is fire-after-commit:
// a recording failure is logged and never propagated as a ledger error, so it
// cannot roll back a committed financial mutation.
type AuditRecorder struct {
	db *sql.DB
}

func NewAuditRecorder(db *sql.DB) *AuditRecorder {
	return &AuditRecorder{db: db}
}

// Record persists one activity entry and mirrors it to the process log as
// JSON.
func (a *AuditRecorder) Record(accountID int64, action, details, origin, outcome string) {
	entry := models.ActivityLogEntry{
		AccountID: accountID,
		Action:    action,
		Details:   details,
		Origin:    origin,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}

	if a.db != nil {
		_, err := a.db.Exec(`
			INSERT INTO activity_log (account_id, action, details, origin, outcome, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			entry.AccountID, entry.Action, entry.Details, entry.Origin, entry.Outcome, entry.CreatedAt)
		if err != nil {
			log.Printf("[AUDIT] failed to persist activity entry: %v", err)
		}
	}

	data, _ := json.Marshal(entry)
	log.Printf("AUDIT: %s", string(data))
}

// RecordEvent records a committed domain event.
func (a *AuditRecorder) RecordEvent(e models.Event, origin string) {
	outcome := e.Outcome
	if outcome == "" {
		outcome = models.OutcomeSuccess
	}
	a.Record(e.AccountID, e.Action, e.Details, origin, outcome)
}

// RecordFailure records a rejected state-changing attempt. Failed attempts
// relevant to security, such as limit violations, land here.
func (a *AuditRecorder) RecordFailure(accountID int64, action, origin string, err error) {
	a.Record(accountID, action, err.Error(), origin, models.OutcomeFailed)
}

// List returns the account's recent activity, newest first.
func (a *AuditRecorder) List(ctx context.Context, accountID int64, limit int) ([]models.ActivityLogEntry, error) {
	rows, err := a.db.Query(`
		SELECT id, account_id, action, details, origin, outcome, created_at
		FROM activity_log
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.ActivityLogEntry{}
	for rows.Next() {
		var e models.ActivityLogEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Action, &e.Details, &e.Origin, &e.Outcome, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetActivity returns the caller's recent activity log
// @Summary Activity log
// @Tags accounts
// @Produce json
// @Success 200 {array} models.ActivityLogEntry
// @Router /activity [get]
func (a *AuditRecorder) GetActivity(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	entries, err := a.List(r.Context(), accountID, 50)
	if err != nil {
		log.Printf("[AUDIT] list failed for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch activity", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

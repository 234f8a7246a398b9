package models

import "time"

// Activity outcomes.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailed  = "FAILED"
)

// ActivityLogEntry is an append-only audit record. One entry is written per
// attempted state-changing action, including failures relevant to security
// such as limit violations.
type ActivityLogEntry struct {
	ID        int64     `json:"id" db:"id"`
	AccountID int64     `json:"account_id" db:"account_id"`
	Action    string    `json:"action" db:"action"`
	Details   string    `json:"details" db:"details"`
	Origin    string    `json:"origin" db:"origin"` // network address
	Outcome   string    `json:"outcome" db:"outcome"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

package models

import "time"

// Account statuses. Accounts referenced by historical transactions are
// soft-deactivated, never hard-deleted.
const (
	AccountActive      = "ACTIVE"
	AccountDeactivated = "DEACTIVATED"
)

// Account is a wallet account. Balance, XP and streak are mutated only
// through the ledger and gamification services; tier is never stored, it is
// recomputed from XP on every read.
type Account struct {
	ID            int64      `json:"id" db:"id"`
	WalletNumber  string     `json:"wallet_number" db:"wallet_number"`
	Email         string     `json:"email" db:"email"`
	Username      string     `json:"username" db:"username"`
	Balance       int64      `json:"balance" db:"balance"` // paise
	XP            int64      `json:"xp" db:"xp"`
	Streak        int        `json:"streak" db:"streak"`
	LastLogin     *time.Time `json:"last_login" db:"last_login"` // date, UTC midnight
	Status        string     `json:"status" db:"status"`
	TotalSent     int64      `json:"total_sent" db:"total_sent"`
	TotalReceived int64      `json:"total_received" db:"total_received"`
	TxnCount      int        `json:"txn_count" db:"txn_count"`
	Version       int        `json:"-" db:"version"` // optimistic locking
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

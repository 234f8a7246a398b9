package models

import "time"

// Transaction kinds.
const (
	TxnDeposit    = "deposit"
	TxnWithdrawal = "withdrawal"
	TxnTransfer   = "transfer"
	TxnSavings    = "savings"
	TxnSplit      = "split"
	TxnScheduled  = "scheduled"
)

// Transaction legs. A transfer produces a DEBIT and a CREDIT row sharing one
// reference; deposits and withdrawals produce a single row.
const (
	LegDebit  = "DEBIT"
	LegCredit = "CREDIT"
)

// Transaction is an immutable ledger record. Rows are append-only and are the
// source of truth for analytics and budget spend; they are never mutated or
// deleted once committed.
type Transaction struct {
	ID            int64     `json:"id" db:"id"`
	Reference     string    `json:"reference" db:"reference"` // correlation id shared by both legs
	SourceID      *int64    `json:"source_id" db:"source_id"`           // nil for deposits
	DestinationID *int64    `json:"destination_id" db:"destination_id"` // nil for withdrawals
	Amount        int64     `json:"amount" db:"amount"` // paise
	Fee           int64     `json:"fee" db:"fee"`       // paise, debit leg only
	Kind          string    `json:"kind" db:"kind"`
	Leg           string    `json:"leg" db:"leg"`
	Category      string    `json:"category" db:"category"`
	Description   string    `json:"description" db:"description"`
	BalanceAfter  int64     `json:"balance_after" db:"balance_after"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

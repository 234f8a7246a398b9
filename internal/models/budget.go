package models

import "time"

// BudgetCategory holds a monthly spending limit for one category. Spend is
// always recomputed from the transaction log for the current month, never
// stored, so it cannot drift.
type BudgetCategory struct {
	ID           int64     `json:"id" db:"id"`
	AccountID    int64     `json:"account_id" db:"account_id"`
	Name         string    `json:"name" db:"name"`
	Emoji        string    `json:"emoji" db:"emoji"`
	Color        string    `json:"color" db:"color"`
	MonthlyLimit int64     `json:"monthly_limit" db:"monthly_limit"` // paise
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// BudgetStatus is a BudgetCategory joined with its computed month-to-date
// spend.
type BudgetStatus struct {
	BudgetCategory
	Spent int64   `json:"spent"` // paise
	Pct   float64 `json:"pct"`
}

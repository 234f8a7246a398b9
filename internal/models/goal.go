package models

import "time"

// SavingsGoal is a named sub-balance of an account. Invariant:
// 0 <= Saved <= Target. Completed flips exactly once when Saved reaches
// Target and never flips back.
type SavingsGoal struct {
	ID        int64     `json:"id" db:"id"`
	AccountID int64     `json:"account_id" db:"account_id"`
	Name      string    `json:"name" db:"name"`
	Emoji     string    `json:"emoji" db:"emoji"`
	Target    int64     `json:"target" db:"target"` // paise
	Saved     int64     `json:"saved" db:"saved"`   // paise
	Deadline  string    `json:"deadline" db:"deadline"`
	Completed bool      `json:"completed" db:"completed"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Pct returns goal progress as a percentage capped at 100.
func (g *SavingsGoal) Pct() float64 {
	if g.Target <= 0 {
		return 0
	}
	pct := float64(g.Saved) / float64(g.Target) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

package models

import "time"

// Recurrence intervals for scheduled payments.
const (
	IntervalWeekly    = "weekly"
	IntervalMonthly   = "monthly"
	IntervalQuarterly = "quarterly"
)

// ScheduledPayment is a recurring transfer definition. Cancellation is
// terminal; a failed execution leaves the payment active so it is retried on
// the next evaluation tick.
type ScheduledPayment struct {
	ID          int64     `json:"id" db:"id"`
	AccountID   int64     `json:"account_id" db:"account_id"`
	RecipientID int64     `json:"recipient_id" db:"recipient_id"`
	Amount      int64     `json:"amount" db:"amount"` // paise
	Description string    `json:"description" db:"description"`
	Interval    string    `json:"interval" db:"interval"`
	NextDue     time.Time `json:"next_due" db:"next_due"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// NextAfter advances a due date by one interval. The new date is computed
// from the previous due date, not from now, so late evaluation runs do not
// accumulate drift.
func NextAfter(due time.Time, interval string) time.Time {
	switch interval {
	case IntervalWeekly:
		return due.AddDate(0, 0, 7)
	case IntervalQuarterly:
		return due.AddDate(0, 3, 0)
	default:
		return due.AddDate(0, 1, 0)
	}
}

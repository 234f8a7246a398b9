package models

import "time"

// SplitBill is a group bill. It is created atomically with all member shares
// and completes exactly once, when the last unpaid share is settled.
type SplitBill struct {
	ID          int64     `json:"id" db:"id"`
	CreatorID   int64     `json:"creator_id" db:"creator_id"`
	Title       string    `json:"title" db:"title"`
	TotalAmount int64     `json:"total_amount" db:"total_amount"` // paise
	Description string    `json:"description" db:"description"`
	Completed   bool      `json:"completed" db:"completed"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`

	Members []SplitBillMember `json:"members,omitempty"`
}

// SplitBillMember is one member's fixed share of a bill. Shares are not
// partial-payable. The creator is recorded as a zero-share member already
// marked paid.
type SplitBillMember struct {
	ID        int64      `json:"id" db:"id"`
	BillID    int64      `json:"bill_id" db:"bill_id"`
	AccountID int64      `json:"account_id" db:"account_id"`
	Share     int64      `json:"share" db:"share"` // paise
	Paid      bool       `json:"paid" db:"paid"`
	PaidAt    *time.Time `json:"paid_at" db:"paid_at"`
}

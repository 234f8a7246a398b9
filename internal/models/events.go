package models

// EventKind identifies a domain event emitted by a completed primitive.
type EventKind string

const (
	EventAccountCreated     EventKind = "account_created"
	EventFundsDeposited     EventKind = "funds_deposited"
	EventFundsWithdrawn     EventKind = "funds_withdrawn"
	EventTransferSent       EventKind = "transfer_sent"
	EventTransferReceived   EventKind = "transfer_received"
	EventGoalCreated        EventKind = "goal_created"
	EventGoalDeposit        EventKind = "goal_deposit"
	EventGoalCompleted      EventKind = "goal_completed"
	EventDailyLogin         EventKind = "daily_login"
	EventStreakBonus        EventKind = "streak_bonus"
	EventScheduledCreated   EventKind = "scheduled_payment_created"
	EventScheduledExecuted  EventKind = "scheduled_payment_executed"
	EventScheduledFailed    EventKind = "scheduled_payment_failed"
	EventSplitBillCreated   EventKind = "split_bill_created"
	EventSplitSharePaid     EventKind = "split_share_paid"
	EventSplitBillSettled   EventKind = "split_bill_settled"
)

// xpTable fixes the XP delta per event kind. Tier is derived from cumulative
// XP, so these deltas are the only gamification inputs the system stores.
var xpTable = map[EventKind]int64{
	EventAccountCreated:   100,
	EventFundsDeposited:   5,
	EventTransferSent:     15,
	EventGoalCreated:      20,
	EventGoalDeposit:      10,
	EventGoalCompleted:    100,
	EventDailyLogin:       10,
	EventStreakBonus:      50,
	EventScheduledCreated: 10,
	EventSplitBillCreated: 15,
}

// XP returns the fixed XP delta for an event kind, zero for kinds that carry
// no reward.
func (k EventKind) XP() int64 {
	return xpTable[k]
}

// Event is one entry of the ordered event list a primitive emits. The
// gamification engine consumes events synchronously inside the primitive's
// transaction; the audit recorder and notification emitter consume them after
// commit.
type Event struct {
	Kind      EventKind `json:"kind"`
	AccountID int64     `json:"account_id"`
	Amount    int64     `json:"amount,omitempty"` // paise
	Reference string    `json:"reference,omitempty"`
	Action    string    `json:"action"`  // audit action label
	Details   string    `json:"details"` // audit detail line
	Outcome   string    `json:"outcome"`

	// Notification payload; Title empty means no user-facing message.
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	NotifyKind string `json:"notify_kind,omitempty"`
}

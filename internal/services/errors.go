package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is a stable, machine-checkable failure code surfaced to callers.
type ErrorKind string

const (
	KindInvalidAmount         ErrorKind = "invalid_amount"
	KindInsufficientFunds     ErrorKind = "insufficient_funds"
	KindInsufficientGoalFunds ErrorKind = "insufficient_goal_funds"
	KindTransferLimitExceeded ErrorKind = "transfer_limit_exceeded"
	KindRecipientNotFound     ErrorKind = "recipient_not_found"
	KindSelfTransfer          ErrorKind = "self_transfer"
	KindOverTarget            ErrorKind = "over_target"
	KindShareMismatch         ErrorKind = "share_mismatch"
	KindWrongAmount           ErrorKind = "wrong_amount"
	KindAlreadyPaid           ErrorKind = "already_paid"
	KindConcurrencyConflict   ErrorKind = "concurrency_conflict"
	KindNotFound              ErrorKind = "not_found"
)

// WalletError pairs an ErrorKind with a human-readable message. All expected,
// recoverable conditions are WalletErrors; anything else is treated as a
// fatal persistence failure and rolled back.
type WalletError struct {
	Kind    ErrorKind
	Message string
}

func (e *WalletError) Error() string { return e.Message }

// Is matches any WalletError of the same kind, so sentinels below work with
// errors.Is even when the message differs.
func (e *WalletError) Is(target error) bool {
	var we *WalletError
	if !errors.As(target, &we) {
		return false
	}
	return we.Kind == e.Kind
}

func walletErr(kind ErrorKind, format string, args ...any) *WalletError {
	return &WalletError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidAmount         = &WalletError{KindInvalidAmount, "amount must be positive"}
	ErrInsufficientFunds     = &WalletError{KindInsufficientFunds, "insufficient balance"}
	ErrInsufficientGoalFunds = &WalletError{KindInsufficientGoalFunds, "insufficient savings"}
	ErrTransferLimitExceeded = &WalletError{KindTransferLimitExceeded, "single transfer limit exceeded"}
	ErrRecipientNotFound     = &WalletError{KindRecipientNotFound, "no account found with that email or wallet number"}
	ErrSelfTransfer          = &WalletError{KindSelfTransfer, "cannot transfer to yourself"}
	ErrOverTarget            = &WalletError{KindOverTarget, "deposit would exceed the goal target"}
	ErrShareMismatch         = &WalletError{KindShareMismatch, "member shares do not sum to the bill total"}
	ErrWrongAmount           = &WalletError{KindWrongAmount, "payment must equal the assigned share"}
	ErrAlreadyPaid           = &WalletError{KindAlreadyPaid, "share already paid"}
	ErrConcurrencyConflict   = &WalletError{KindConcurrencyConflict, "concurrent update detected, retry the operation"}
	ErrNotFound              = &WalletError{KindNotFound, "not found"}
)

// retryConflicts re-runs fn after a ConcurrencyConflict, up to attempts
// times, before surfacing the conflict. Any other error returns immediately.
func retryConflicts(attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
	}
	return err
}

// statusForKind maps error kinds to HTTP status codes.
func statusForKind(kind ErrorKind) int {
	switch kind {
	case KindRecipientNotFound, KindNotFound:
		return http.StatusNotFound
	case KindConcurrencyConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

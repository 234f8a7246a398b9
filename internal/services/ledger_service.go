package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liquidgold/wallet/internal/config"
	"github.com/liquidgold/wallet/internal/middleware"
	"github.com/liquidgold/wallet/internal/models"
)

// LedgerService is the exclusive owner of account balances. Every balance
// mutation in the system goes through its primitives; other services compose
// the Tx variants inside their own transactions instead of touching balance
// columns directly.
//
// Serialization discipline: each primitive locks the account rows it touches
// with FOR UPDATE in ascending ID order, then writes balances through a
// version CAS. A CAS miss surfaces as ConcurrencyConflict and the whole
// primitive is retried a bounded number of times.
type LedgerService struct {
	db           *sql.DB
	cfg          *config.WalletConfig
	gamification *GamificationService
	audit        *AuditRecorder
	dispatcher   *Dispatcher
	validator    *ValidationHelper
}

func NewLedgerService(db *sql.DB, cfg *config.WalletConfig, gamification *GamificationService, audit *AuditRecorder, dispatcher *Dispatcher) *LedgerService {
	return &LedgerService{
		db:           db,
		cfg:          cfg,
		gamification: gamification,
		audit:        audit,
		dispatcher:   dispatcher,
		validator:    NewValidationHelper(),
	}
}

// recordFailure audits a rejected attempt. Only expected wallet errors are
// recorded; infrastructure failures are the caller's to log.
func (s *LedgerService) recordFailure(ctx context.Context, accountID int64, action string, err error) {
	var we *WalletError
	if s.audit != nil && errors.As(err, &we) {
		s.audit.RecordFailure(accountID, action, OriginFrom(ctx), err)
	}
}

// GenReference produces a transaction correlation reference. A transfer's
// debit and credit legs share one reference.
func GenReference() string {
	return "TXN" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// lockAccount loads an account row under FOR UPDATE.
func (s *LedgerService) lockAccount(tx *sql.Tx, accountID int64) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRow(`
		SELECT id, wallet_number, username, balance, xp, version
		FROM accounts
		WHERE id = $1 AND status = 'ACTIVE'
		FOR UPDATE`, accountID).
		Scan(&account.ID, &account.WalletNumber, &account.Username, &account.Balance, &account.XP, &account.Version)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// lockPair locks the source and destination rows in ascending ID order to
// prevent deadlock between opposing concurrent transfers, then returns them
// in caller order. A missing destination surfaces as RecipientNotFound; a
// missing source (deactivated mid-flight) stays NotFound so the caller does
// not blame the recipient.
func (s *LedgerService) lockPair(tx *sql.Tx, sourceID, destinationID int64) (*models.Account, *models.Account, error) {
	lockFirst, lockSecond := sourceID, destinationID
	if lockFirst > lockSecond {
		lockFirst, lockSecond = lockSecond, lockFirst
	}

	missing := func(id int64, err error) error {
		if errors.Is(err, ErrNotFound) && id == destinationID {
			return ErrRecipientNotFound
		}
		return err
	}

	a, err := s.lockAccount(tx, lockFirst)
	if err != nil {
		return nil, nil, missing(lockFirst, err)
	}
	b, err := s.lockAccount(tx, lockSecond)
	if err != nil {
		return nil, nil, missing(lockSecond, err)
	}

	if lockFirst != sourceID {
		a, b = b, a
	}
	return a, b, nil
}

// updateBalance writes a locked account's new balance and rolling aggregates
// through a version CAS. Zero rows affected means another writer got there
// first; the caller retries the whole primitive.
func (s *LedgerService) updateBalance(tx *sql.Tx, account *models.Account, newBalance, sentDelta, receivedDelta int64, txnDelta int) error {
	result, err := tx.Exec(`
		UPDATE accounts
		SET balance = $1, total_sent = total_sent + $2, total_received = total_received + $3,
		    txn_count = txn_count + $4, version = version + 1, updated_at = $5
		WHERE id = $6 AND version = $7`,
		newBalance, sentDelta, receivedDelta, txnDelta, time.Now().UTC(), account.ID, account.Version)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConcurrencyConflict
	}
	return nil
}

func (s *LedgerService) insertTransaction(tx *sql.Tx, t *models.Transaction) error {
	t.CreatedAt = time.Now().UTC()
	return tx.QueryRow(`
		INSERT INTO transactions (reference, source_id, destination_id, amount, fee, kind, leg, category, description, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		t.Reference, t.SourceID, t.DestinationID, t.Amount, t.Fee, t.Kind, t.Leg,
		t.Category, t.Description, t.BalanceAfter, t.CreatedAt).Scan(&t.ID)
}

// withRetry re-runs a primitive after a ConcurrencyConflict, up to the
// configured attempt count, before surfacing the conflict to the caller.
func (s *LedgerService) withRetry(fn func() error) error {
	return retryConflicts(s.cfg.MaxRetries, fn)
}

// Fee computes the transfer fee: FeeBasisPoints of the amount, rounded
// half-up to the nearest paisa, charged only above the fee threshold.
func (s *LedgerService) Fee(amount int64) int64 {
	if amount <= s.cfg.FeeThreshold {
		return 0
	}
	return roundHalfUpFee(amount, s.cfg.FeeBasisPoints)
}

// ResolveRecipient maps an email address or wallet number to an active
// account.
func (s *LedgerService) ResolveRecipient(ctx context.Context, identifier string) (*models.Account, error) {
	var account models.Account
	err := s.db.QueryRow(`
		SELECT id, wallet_number, email, username
		FROM accounts
		WHERE (email = $1 OR wallet_number = $1) AND status = 'ACTIVE'
		LIMIT 1`, identifier).
		Scan(&account.ID, &account.WalletNumber, &account.Email, &account.Username)
	if err == sql.ErrNoRows {
		return nil, ErrRecipientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// DepositTx credits an account inside the caller's transaction and returns
// the transaction record and its events. Validation of external deposit
// ceilings happens in Deposit; internal movements (goal refunds) reuse this
// without the ceiling.
func (s *LedgerService) DepositTx(tx *sql.Tx, accountID, amount int64, kind, category, description string) (*models.Transaction, []models.Event, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	account, err := s.lockAccount(tx, accountID)
	if err != nil {
		return nil, nil, err
	}

	newBalance := account.Balance + amount
	txn := &models.Transaction{
		Reference:     GenReference(),
		DestinationID: &account.ID,
		Amount:        amount,
		Kind:          kind,
		Leg:           models.LegCredit,
		Category:      category,
		Description:   description,
		BalanceAfter:  newBalance,
	}
	if err := s.insertTransaction(tx, txn); err != nil {
		return nil, nil, err
	}
	if err := s.updateBalance(tx, account, newBalance, 0, amount, 1); err != nil {
		return nil, nil, err
	}

	events := []models.Event{{
		Kind:      models.EventFundsDeposited,
		AccountID: account.ID,
		Amount:    amount,
		Reference: txn.Reference,
		Action:    "Deposit",
		Details:   fmt.Sprintf("%s %s", Rupees(amount), description),
	}}
	return txn, events, nil
}

// WithdrawTx debits an account inside the caller's transaction.
func (s *LedgerService) WithdrawTx(tx *sql.Tx, accountID, amount int64, kind, category, description string) (*models.Transaction, []models.Event, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	account, err := s.lockAccount(tx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if account.Balance < amount {
		return nil, nil, walletErr(KindInsufficientFunds, "insufficient balance: have %s, need %s",
			Rupees(account.Balance), Rupees(amount))
	}

	newBalance := account.Balance - amount
	txn := &models.Transaction{
		Reference:    GenReference(),
		SourceID:     &account.ID,
		Amount:       amount,
		Kind:         kind,
		Leg:          models.LegDebit,
		Category:     category,
		Description:  description,
		BalanceAfter: newBalance,
	}
	if err := s.insertTransaction(tx, txn); err != nil {
		return nil, nil, err
	}
	if err := s.updateBalance(tx, account, newBalance, amount, 0, 1); err != nil {
		return nil, nil, err
	}

	events := []models.Event{{
		Kind:      models.EventFundsWithdrawn,
		AccountID: account.ID,
		Amount:    amount,
		Reference: txn.Reference,
		Action:    "Withdrawal",
		Details:   fmt.Sprintf("%s %s", Rupees(amount), description),
	}}
	return txn, events, nil
}

// Deposit adds external funds to an account. Amount must be positive and
// within the configured deposit ceiling.
func (s *LedgerService) Deposit(ctx context.Context, accountID, amount int64, method string) (*models.Transaction, error) {
	if amount <= 0 || amount > s.cfg.DepositMax {
		err := walletErr(KindInvalidAmount, "amount must be between %s and %s",
			Rupees(1), Rupees(s.cfg.DepositMax))
		s.recordFailure(ctx, accountID, "Deposit", err)
		return nil, err
	}

	var txn *models.Transaction
	var events []models.Event
	err := s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		t, evts, err := s.DepositTx(tx, accountID, amount, models.TxnDeposit, "other", "Deposit via "+method)
		if err != nil {
			return err
		}

		evts[0].Title = "💰 Deposit Successful"
		evts[0].Message = fmt.Sprintf("%s added to your wallet. Ref: %s", Rupees(amount), t.Reference)
		evts[0].NotifyKind = models.NotifySuccess

		if err := s.gamification.ApplyTx(tx, evts); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		txn, events = t, evts
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.Publish(ctx, events)
	return txn, nil
}

// Withdraw removes funds from an account to the outside world.
func (s *LedgerService) Withdraw(ctx context.Context, accountID, amount int64, method string) (*models.Transaction, error) {
	var txn *models.Transaction
	var events []models.Event
	err := s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		t, evts, err := s.WithdrawTx(tx, accountID, amount, models.TxnWithdrawal, "other", "Withdrawal to "+method)
		if err != nil {
			return err
		}

		evts[0].Title = "🏦 Withdrawal Initiated"
		evts[0].Message = fmt.Sprintf("%s will reach your bank in 2-3 days. Ref: %s", Rupees(amount), t.Reference)
		evts[0].NotifyKind = models.NotifyInfo

		if err := s.gamification.ApplyTx(tx, evts); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		txn, events = t, evts
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, accountID, "Withdrawal", err)
		return nil, err
	}

	s.dispatcher.Publish(ctx, events)
	return txn, nil
}

// TransferResult describes a completed transfer.
type TransferResult struct {
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
	Fee           int64  `json:"fee"`
	SourceBalance int64  `json:"source_balance"`
	RecipientID   int64  `json:"recipient_id"`
	RecipientName string `json:"recipient_name"`
}

// TransferTx moves funds between two accounts inside the caller's
// transaction: a debit leg and a credit leg sharing one reference, committed
// together or not at all. The fee, when due, is debited from the source on
// top of the amount and credited to the system fee account so the ledger
// stays zero-sum.
func (s *LedgerService) TransferTx(tx *sql.Tx, sourceID, destinationID, amount int64, kind, category, description string) (*TransferResult, []models.Event, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if amount > s.cfg.TransferLimit {
		return nil, nil, walletErr(KindTransferLimitExceeded, "single transfer limit is %s", Rupees(s.cfg.TransferLimit))
	}
	if sourceID == destinationID {
		return nil, nil, ErrSelfTransfer
	}

	source, destination, err := s.lockPair(tx, sourceID, destinationID)
	if err != nil {
		return nil, nil, err
	}

	fee := s.Fee(amount)
	totalDebit := amount + fee
	if source.Balance < totalDebit {
		return nil, nil, walletErr(KindInsufficientFunds, "insufficient balance: need %s (incl. %s fee)",
			Rupees(totalDebit), Rupees(fee))
	}

	reference := GenReference()
	sourceBalance := source.Balance - totalDebit
	destinationBalance := destination.Balance + amount

	debit := &models.Transaction{
		Reference:     reference,
		SourceID:      &source.ID,
		DestinationID: &destination.ID,
		Amount:        amount,
		Fee:           fee,
		Kind:          kind,
		Leg:           models.LegDebit,
		Category:      category,
		Description:   description,
		BalanceAfter:  sourceBalance,
	}
	credit := &models.Transaction{
		Reference:     reference,
		SourceID:      &source.ID,
		DestinationID: &destination.ID,
		Amount:        amount,
		Kind:          kind,
		Leg:           models.LegCredit,
		Category:      category,
		Description:   description,
		BalanceAfter:  destinationBalance,
	}
	if err := s.insertTransaction(tx, debit); err != nil {
		return nil, nil, err
	}
	if err := s.insertTransaction(tx, credit); err != nil {
		return nil, nil, err
	}

	if err := s.updateBalance(tx, source, sourceBalance, amount, 0, 1); err != nil {
		return nil, nil, err
	}
	if err := s.updateBalance(tx, destination, destinationBalance, 0, amount, 1); err != nil {
		return nil, nil, err
	}

	if fee > 0 {
		// The fee must land somewhere: a missing sink row would debit the
		// sender without crediting anyone, so the transfer fails instead.
		result, err := tx.Exec(`
			UPDATE accounts
			SET balance = balance + $1, version = version + 1, updated_at = $2
			WHERE wallet_number = $3`,
			fee, time.Now().UTC(), s.cfg.SystemFeeAccount)
		if err != nil {
			return nil, nil, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, nil, err
		}
		if affected == 0 {
			return nil, nil, fmt.Errorf("fee account %s missing, cannot credit %s fee", s.cfg.SystemFeeAccount, Rupees(fee))
		}
	}

	events := []models.Event{
		{
			Kind:       models.EventTransferSent,
			AccountID:  source.ID,
			Amount:     amount,
			Reference:  reference,
			Action:     "Transfer Sent",
			Details:    fmt.Sprintf("%s to %s (fee %s)", Rupees(amount), destination.Username, Rupees(fee)),
			Title:      "✅ Transfer Successful",
			Message:    fmt.Sprintf("%s sent to %s. Ref: %s", Rupees(amount), destination.Username, reference),
			NotifyKind: models.NotifySuccess,
		},
		{
			Kind:       models.EventTransferReceived,
			AccountID:  destination.ID,
			Amount:     amount,
			Reference:  reference,
			Title:      "💸 Money Received!",
			Message:    fmt.Sprintf("You received %s from %s. Ref: %s", Rupees(amount), source.Username, reference),
			NotifyKind: models.NotifySuccess,
		},
	}

	result := &TransferResult{
		Reference:     reference,
		Amount:        amount,
		Fee:           fee,
		SourceBalance: sourceBalance,
		RecipientID:   destination.ID,
		RecipientName: destination.Username,
	}
	return result, events, nil
}

// Transfer resolves the recipient by email or wallet number and executes the
// transfer as one atomic primitive.
func (s *LedgerService) Transfer(ctx context.Context, sourceID int64, identifier string, amount int64, category, description string) (*TransferResult, error) {
	recipient, err := s.ResolveRecipient(ctx, identifier)
	if err != nil {
		s.recordFailure(ctx, sourceID, "Transfer", err)
		return nil, err
	}
	return s.TransferToAccount(ctx, sourceID, recipient.ID, amount, models.TxnTransfer, category, description)
}

// TransferToAccount executes a transfer to an already-resolved account. The
// scheduler and split-bill settlement use this directly.
func (s *LedgerService) TransferToAccount(ctx context.Context, sourceID, destinationID, amount int64, kind, category, description string) (*TransferResult, error) {
	var result *TransferResult
	var events []models.Event
	err := s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		res, evts, err := s.TransferTx(tx, sourceID, destinationID, amount, kind, category, description)
		if err != nil {
			return err
		}
		if err := s.gamification.ApplyTx(tx, evts); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		result, events = res, evts
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, sourceID, "Transfer", err)
		return nil, err
	}

	s.dispatcher.Publish(ctx, events)
	return result, nil
}

// HTTP handlers

type depositRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Method string `json:"method" validate:"omitempty,max=30"`
}

type withdrawRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Method string `json:"method" validate:"omitempty,max=30"`
}

type transferRequest struct {
	Identifier  string `json:"identifier" validate:"required,max=320"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Category    string `json:"category" validate:"omitempty,max=50"`
	Description string `json:"description" validate:"omitempty,max=200"`
}

// DepositFunds handles wallet top-ups
// @Summary Deposit funds
// @Tags ledger
// @Accept json
// @Produce json
// @Param deposit body depositRequest true "Deposit data"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /deposit [post]
func (s *LedgerService) DepositFunds(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req depositRequest
	if err := decodeJSON(w, r, &req, s.validator); err != nil {
		return
	}
	if req.Method == "" {
		req.Method = "UPI"
	}

	ctx := WithOrigin(r.Context(), middleware.ClientIP(r))
	txn, err := s.Deposit(ctx, accountID, req.Amount, req.Method)
	if err != nil {
		log.Printf("[LEDGER] deposit failed for account %d: %v", accountID, err)
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"balance":   txn.BalanceAfter,
		"reference": txn.Reference,
	})
}

// WithdrawFunds handles withdrawals to an external bank
// @Summary Withdraw funds
// @Tags ledger
// @Accept json
// @Produce json
// @Param withdraw body withdrawRequest true "Withdrawal data"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /withdraw [post]
func (s *LedgerService) WithdrawFunds(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req withdrawRequest
	if err := decodeJSON(w, r, &req, s.validator); err != nil {
		return
	}
	if req.Method == "" {
		req.Method = "bank"
	}

	ctx := WithOrigin(r.Context(), middleware.ClientIP(r))
	txn, err := s.Withdraw(ctx, accountID, req.Amount, req.Method)
	if err != nil {
		log.Printf("[LEDGER] withdrawal failed for account %d: %v", accountID, err)
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"balance":   txn.BalanceAfter,
		"reference": txn.Reference,
	})
}

// TransferFunds handles wallet-to-wallet transfers
// @Summary Transfer funds
// @Tags ledger
// @Accept json
// @Produce json
// @Param transfer body transferRequest true "Transfer data"
// @Success 200 {object} TransferResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /transfer [post]
func (s *LedgerService) TransferFunds(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req transferRequest
	if err := decodeJSON(w, r, &req, s.validator); err != nil {
		return
	}
	if req.Category == "" {
		req.Category = "Other"
	}

	ctx := WithOrigin(r.Context(), middleware.ClientIP(r))
	result, err := s.Transfer(ctx, accountID, req.Identifier, req.Amount, req.Category, req.Description)
	if err != nil {
		log.Printf("[LEDGER] transfer failed for account %d: %v", accountID, err)
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":       true,
		"reference":     result.Reference,
		"fee":           result.Fee,
		"balance":       result.SourceBalance,
		"receiver_name": result.RecipientName,
	})
}

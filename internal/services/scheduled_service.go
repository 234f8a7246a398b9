package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/liquidgold/wallet/internal/config"
	"github.com/liquidgold/wallet/internal/middleware"
	"github.com/liquidgold/wallet/internal/models"
	"github.com/robfig/cron/v3"
)

// ScheduledService manages recurring transfers. Execution reuses the ledger
// transfer primitive unchanged, so a scheduled run obeys the same limits,
// fees and atomicity as a manual transfer. A failed run leaves the payment
// due; the next evaluation tick retries it, indefinitely, until it succeeds
// or the payment is cancelled.
type ScheduledService struct {
	db           *sql.DB
	cfg          *config.WalletConfig
	ledger       *LedgerService
	gamification *GamificationService
	dispatcher   *Dispatcher
	validator    *ValidationHelper
}

func NewScheduledService(db *sql.DB, cfg *config.WalletConfig, ledger *LedgerService, gamification *GamificationService, dispatcher *Dispatcher) *ScheduledService {
	return &ScheduledService{
		db:           db,
		cfg:          cfg,
		ledger:       ledger,
		gamification: gamification,
		dispatcher:   dispatcher,
		validator:    NewValidationHelper(),
	}
}

func validInterval(interval string) bool {
	switch interval {
	case models.IntervalWeekly, models.IntervalMonthly, models.IntervalQuarterly:
		return true
	}
	return false
}

// Create registers a recurring transfer. The recipient is resolved like a
// manual transfer; the first due date comes from the caller.
func (s *ScheduledService) Create(ctx context.Context, accountID int64, identifier string, amount int64, description, interval string, firstDue time.Time) (*models.ScheduledPayment, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !validInterval(interval) {
		return nil, walletErr(KindInvalidAmount, "interval must be weekly, monthly or quarterly")
	}

	recipient, err := s.ledger.ResolveRecipient(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if recipient.ID == accountID {
		return nil, ErrSelfTransfer
	}

	payment := &models.ScheduledPayment{
		AccountID:   accountID,
		RecipientID: recipient.ID,
		Amount:      amount,
		Description: description,
		Interval:    interval,
		NextDue:     firstDue.UTC(),
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := tx.QueryRow(`
		INSERT INTO scheduled_payments (account_id, recipient_id, amount, description, interval, next_due, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		RETURNING id`,
		payment.AccountID, payment.RecipientID, payment.Amount, payment.Description,
		payment.Interval, payment.NextDue, payment.CreatedAt).
		Scan(&payment.ID); err != nil {
		return nil, err
	}

	events := []models.Event{{
		Kind:       models.EventScheduledCreated,
		AccountID:  accountID,
		Amount:     amount,
		Action:     "Scheduled Payment Created",
		Details:    fmt.Sprintf("%s %s to %s", interval, Rupees(amount), recipient.Username),
		Title:      "📅 Scheduled Payment Set",
		Message:    fmt.Sprintf("%s will be sent to %s %s starting %s.", Rupees(amount), recipient.Username, interval, payment.NextDue.Format("02 Jan 2006")),
		NotifyKind: models.NotifyInfo,
	}}
	if err := s.gamification.ApplyTx(tx, events); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.dispatcher.Publish(ctx, events)
	return payment, nil
}

// Cancel deactivates a payment. Cancellation is terminal and idempotent.
func (s *ScheduledService) Cancel(ctx context.Context, accountID, paymentID int64) error {
	result, err := s.db.Exec(`
		UPDATE scheduled_payments SET active = FALSE
		WHERE id = $1 AND account_id = $2`, paymentID, accountID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns the account's payments, active first, soonest due first.
func (s *ScheduledService) List(ctx context.Context, accountID int64) ([]models.ScheduledPayment, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, recipient_id, amount, description, interval, next_due, active, created_at
		FROM scheduled_payments
		WHERE account_id = $1
		ORDER BY active DESC, next_due ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []models.ScheduledPayment{}
	for rows.Next() {
		var p models.ScheduledPayment
		if err := rows.Scan(&p.ID, &p.AccountID, &p.RecipientID, &p.Amount, &p.Description,
			&p.Interval, &p.NextDue, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// EvaluateDue executes every active payment whose due date has passed. Each
// payment is attempted independently: a success advances next_due one
// interval from the previous due date; a failure emits a notification and
// leaves the payment due for the next tick. A payment that fell several
// intervals behind catches up one execution per tick.
func (s *ScheduledService) EvaluateDue(ctx context.Context, now time.Time) {
	rows, err := s.db.Query(`
		SELECT id, account_id, recipient_id, amount, description, interval, next_due
		FROM scheduled_payments
		WHERE active = TRUE AND next_due <= $1
		ORDER BY next_due ASC`, now)
	if err != nil {
		log.Printf("[SCHEDULER] failed to load due payments: %v", err)
		return
	}

	due := []models.ScheduledPayment{}
	for rows.Next() {
		var p models.ScheduledPayment
		if err := rows.Scan(&p.ID, &p.AccountID, &p.RecipientID, &p.Amount,
			&p.Description, &p.Interval, &p.NextDue); err != nil {
			rows.Close()
			log.Printf("[SCHEDULER] failed to scan due payment: %v", err)
			return
		}
		due = append(due, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		log.Printf("[SCHEDULER] failed to read due payments: %v", err)
		return
	}

	for _, p := range due {
		s.execute(ctx, p)
	}
}

// execute runs one due payment. The transfer and the next_due advance commit
// in a single transaction: either both land or neither does, so a crash
// between ticks can never pay the same due date twice.
func (s *ScheduledService) execute(ctx context.Context, p models.ScheduledPayment) {
	description := p.Description
	if description == "" {
		description = "Scheduled payment"
	}
	nextDue := models.NextAfter(p.NextDue, p.Interval)

	var result *TransferResult
	var events []models.Event
	err := retryConflicts(s.cfg.MaxRetries, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		res, evts, err := s.ledger.TransferTx(tx, p.AccountID, p.RecipientID, p.Amount,
			models.TxnScheduled, "scheduled", description)
		if err != nil {
			return err
		}
		if err := s.gamification.ApplyTx(tx, evts); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			UPDATE scheduled_payments SET next_due = $1
			WHERE id = $2`, nextDue, p.ID); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		result, events = res, evts
		return nil
	})
	if err != nil {
		log.Printf("[SCHEDULER] payment %d failed: %v", p.ID, err)
		s.dispatcher.Publish(ctx, []models.Event{{
			Kind:       models.EventScheduledFailed,
			AccountID:  p.AccountID,
			Amount:     p.Amount,
			Action:     "Scheduled Payment Failed",
			Details:    fmt.Sprintf("%s: %v", description, err),
			Outcome:    models.OutcomeFailed,
			Title:      "⚠️ Scheduled Payment Failed",
			Message:    fmt.Sprintf("%s could not be sent (%v). We'll retry automatically.", Rupees(p.Amount), err),
			NotifyKind: models.NotifyWarning,
		}})
		return
	}

	events = append(events, models.Event{
		Kind:      models.EventScheduledExecuted,
		AccountID: p.AccountID,
		Amount:    p.Amount,
		Reference: result.Reference,
		Action:    "Scheduled Payment Executed",
		Details:   fmt.Sprintf("%s, next due %s", description, nextDue.Format("02 Jan 2006")),
	})
	s.dispatcher.Publish(ctx, events)
	log.Printf("[SCHEDULER] payment %d executed, ref %s, next due %s", p.ID, result.Reference, nextDue.Format(time.RFC3339))
}

// Scheduler drives EvaluateDue on a cron spec.
type Scheduler struct {
	cron    *cron.Cron
	service *ScheduledService
}

func NewScheduler(service *ScheduledService) *Scheduler {
	return &Scheduler{cron: cron.New(), service: service}
}

// Start registers the evaluation job and starts the cron loop.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.service.EvaluateDue(context.Background(), time.Now().UTC())
	})
	if err != nil {
		return fmt.Errorf("invalid scheduler spec %q: %w", spec, err)
	}
	s.cron.Start()
	log.Printf("[SCHEDULER] started with spec %q", spec)
	return nil
}

// Stop halts the cron loop and waits for a running evaluation to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("[SCHEDULER] stopped")
}

// HTTP handlers

type createScheduledRequest struct {
	Identifier  string `json:"identifier" validate:"required,max=320"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"omitempty,max=200"`
	Interval    string `json:"interval" validate:"required,oneof=weekly monthly quarterly"`
	FirstDue    string `json:"first_due" validate:"required,datetime=2006-01-02"`
}

// CreateScheduledPayment registers a recurring transfer
// @Summary Create scheduled payment
// @Tags scheduled
// @Accept json
// @Produce json
// @Param payment body createScheduledRequest true "Payment data"
// @Success 201 {object} models.ScheduledPayment
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /scheduled [post]
func (s *ScheduledService) CreateScheduledPayment(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req createScheduledRequest
	if err := decodeJSON(w, r, &req, s.validator); err != nil {
		return
	}

	firstDue, err := time.Parse("2006-01-02", req.FirstDue)
	if err != nil {
		SendErrorResponse(w, "Invalid first_due date", http.StatusBadRequest, nil)
		return
	}

	ctx := WithOrigin(r.Context(), middleware.ClientIP(r))
	payment, err := s.Create(ctx, accountID, req.Identifier, req.Amount, req.Description, req.Interval, firstDue)
	if err != nil {
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(payment)
}

// ListScheduledPayments returns the caller's scheduled payments
// @Summary List scheduled payments
// @Tags scheduled
// @Produce json
// @Success 200 {array} models.ScheduledPayment
// @Router /scheduled [get]
func (s *ScheduledService) ListScheduledPayments(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	payments, err := s.List(r.Context(), accountID)
	if err != nil {
		log.Printf("[SCHEDULER] list failed for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch scheduled payments", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payments)
}

// CancelScheduledPayment deactivates a scheduled payment
// @Summary Cancel scheduled payment
// @Tags scheduled
// @Produce json
// @Param id path int true "Payment ID"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} ErrorResponse
// @Router /scheduled/{id} [delete]
func (s *ScheduledService) CancelScheduledPayment(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	paymentID, err := parseIDParam(r, "id")
	if err != nil {
		SendErrorResponse(w, "Invalid payment id", http.StatusBadRequest, nil)
		return
	}

	if err := s.Cancel(r.Context(), accountID, paymentID); err != nil {
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

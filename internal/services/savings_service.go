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
)

// SavingsService manages named sub-balances. Goal money is real money: a
// goal deposit debits the account through the ledger and the goal's saved
// counter moves in the same DB transaction, so the two can never disagree.
type SavingsService struct {
	db           *sql.DB
	cfg          *config.WalletConfig
	ledger       *LedgerService
	gamification *GamificationService
	dispatcher   *Dispatcher
	validator    *ValidationHelper
}

func NewSavingsService(db *sql.DB, cfg *config.WalletConfig, ledger *LedgerService, gamification *GamificationService, dispatcher *Dispatcher) *SavingsService {
	return &SavingsService{
		db:           db,
		cfg:          cfg,
		ledger:       ledger,
		gamification: gamification,
		dispatcher:   dispatcher,
		validator:    NewValidationHelper(),
	}
}

// lockGoal loads a goal owned by the account under FOR UPDATE.
func (s *SavingsService) lockGoal(tx *sql.Tx, accountID, goalID int64) (*models.SavingsGoal, error) {
	var g models.SavingsGoal
	err := tx.QueryRow(`
		SELECT id, account_id, name, emoji, target, saved, deadline, completed, created_at
		FROM savings_goals
		WHERE id = $1 AND account_id = $2
		FOR UPDATE`, goalID, accountID).
		Scan(&g.ID, &g.AccountID, &g.Name, &g.Emoji, &g.Target, &g.Saved,
			&g.Deadline, &g.Completed, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateGoal creates an empty goal.
func (s *SavingsService) CreateGoal(ctx context.Context, accountID int64, name, emoji string, target int64, deadline string) (*models.SavingsGoal, error) {
	if target <= 0 {
		return nil, ErrInvalidAmount
	}
	if emoji == "" {
		emoji = "🎯"
	}

	goal := &models.SavingsGoal{
		AccountID: accountID,
		Name:      name,
		Emoji:     emoji,
		Target:    target,
		Deadline:  deadline,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := tx.QueryRow(`
		INSERT INTO savings_goals (account_id, name, emoji, target, saved, deadline, completed, created_at)
		VALUES ($1, $2, $3, $4, 0, $5, FALSE, $6)
		RETURNING id`,
		goal.AccountID, goal.Name, goal.Emoji, goal.Target, goal.Deadline, goal.CreatedAt).
		Scan(&goal.ID); err != nil {
		return nil, err
	}

	events := []models.Event{{
		Kind:       models.EventGoalCreated,
		AccountID:  accountID,
		Action:     "Goal Created",
		Details:    fmt.Sprintf("%s target %s", goal.Name, Rupees(goal.Target)),
		Title:      fmt.Sprintf("%s Goal Created!", goal.Emoji),
		Message:    fmt.Sprintf("Start saving towards %s of %s.", goal.Name, Rupees(goal.Target)),
		NotifyKind: models.NotifyInfo,
	}}
	if err := s.gamification.ApplyTx(tx, events); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.dispatcher.Publish(ctx, events)
	return goal, nil
}

// DepositToGoal moves paise from the account balance into a goal. The amount
// may never push saved past target; exactly reaching it completes the goal
// once.
func (s *SavingsService) DepositToGoal(ctx context.Context, accountID, goalID, amount int64) (*models.SavingsGoal, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var goal *models.SavingsGoal
	var events []models.Event
	err := retryConflicts(s.cfg.MaxRetries, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		g, err := s.lockGoal(tx, accountID, goalID)
		if err != nil {
			return err
		}
		if g.Saved+amount > g.Target {
			return walletErr(KindOverTarget, "deposit of %s would exceed target %s (saved %s)",
				Rupees(amount), Rupees(g.Target), Rupees(g.Saved))
		}

		if _, _, err := s.ledger.WithdrawTx(tx, accountID, amount, models.TxnSavings, "savings",
			"Goal deposit: "+g.Name); err != nil {
			return err
		}

		g.Saved += amount
		completedNow := !g.Completed && g.Saved == g.Target
		if completedNow {
			g.Completed = true
		}
		if _, err := tx.Exec(`
			UPDATE savings_goals SET saved = $1, completed = $2
			WHERE id = $3`, g.Saved, g.Completed, g.ID); err != nil {
			return err
		}

		evts := []models.Event{{
			Kind:      models.EventGoalDeposit,
			AccountID: accountID,
			Amount:    amount,
			Action:    "Goal Deposit",
			Details:   fmt.Sprintf("%s into %s", Rupees(amount), g.Name),
		}}
		if completedNow {
			evts = append(evts, models.Event{
				Kind:       models.EventGoalCompleted,
				AccountID:  accountID,
				Action:     "Goal Completed",
				Details:    g.Name,
				Title:      fmt.Sprintf("🏆 %s Complete!", g.Name),
				Message:    fmt.Sprintf("You reached your %s goal of %s!", g.Name, Rupees(g.Target)),
				NotifyKind: models.NotifySuccess,
			})
		}

		if err := s.gamification.ApplyTx(tx, evts); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		goal, events = g, evts
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.Publish(ctx, events)
	return goal, nil
}

// WithdrawFromGoal moves paise back from a goal to the account balance. A
// completed goal stays completed even when drained afterwards.
func (s *SavingsService) WithdrawFromGoal(ctx context.Context, accountID, goalID, amount int64) (*models.SavingsGoal, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var goal *models.SavingsGoal
	var events []models.Event
	err := retryConflicts(s.cfg.MaxRetries, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		g, err := s.lockGoal(tx, accountID, goalID)
		if err != nil {
			return err
		}
		if amount > g.Saved {
			return walletErr(KindInsufficientGoalFunds, "goal holds %s, cannot withdraw %s",
				Rupees(g.Saved), Rupees(amount))
		}

		if _, _, err := s.ledger.DepositTx(tx, accountID, amount, models.TxnSavings, "savings",
			"Goal withdrawal: "+g.Name); err != nil {
			return err
		}

		g.Saved -= amount
		if _, err := tx.Exec(`
			UPDATE savings_goals SET saved = $1
			WHERE id = $2`, g.Saved, g.ID); err != nil {
			return err
		}

		// Goal withdrawals log activity but carry no reward kind.
		evts := []models.Event{{
			AccountID: accountID,
			Amount:    amount,
			Action:    "Goal Withdrawal",
			Details:   fmt.Sprintf("%s out of %s", Rupees(amount), g.Name),
		}}

		if err := tx.Commit(); err != nil {
			return err
		}
		goal, events = g, evts
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.Publish(ctx, events)
	return goal, nil
}

// DeleteGoal removes a goal, refunding any remaining saved paise to the
// account first. Refund and deletion commit together.
func (s *SavingsService) DeleteGoal(ctx context.Context, accountID, goalID int64) error {
	var events []models.Event
	err := retryConflicts(s.cfg.MaxRetries, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		g, err := s.lockGoal(tx, accountID, goalID)
		if err != nil {
			return err
		}

		if g.Saved > 0 {
			if _, _, err := s.ledger.DepositTx(tx, accountID, g.Saved, models.TxnSavings, "savings",
				"Goal refund: "+g.Name); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(`DELETE FROM savings_goals WHERE id = $1`, g.ID); err != nil {
			return err
		}

		evts := []models.Event{{
			AccountID: accountID,
			Action:    "Goal Deleted",
			Details:   fmt.Sprintf("%s, %s refunded", g.Name, Rupees(g.Saved)),
		}}
		if g.Saved > 0 {
			evts[0].Title = "🗑️ Goal Deleted"
			evts[0].Message = fmt.Sprintf("%s was deleted and %s returned to your balance.", g.Name, Rupees(g.Saved))
			evts[0].NotifyKind = models.NotifyInfo
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		events = evts
		return nil
	})
	if err != nil {
		return err
	}

	s.dispatcher.Publish(ctx, events)
	return nil
}

// ListGoals returns the account's goals, newest first.
func (s *SavingsService) ListGoals(ctx context.Context, accountID int64) ([]models.SavingsGoal, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, name, emoji, target, saved, deadline, completed, created_at
		FROM savings_goals
		WHERE account_id = $1
		ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	goals := []models.SavingsGoal{}
	for rows.Next() {
		var g models.SavingsGoal
		if err := rows.Scan(&g.ID, &g.AccountID, &g.Name, &g.Emoji, &g.Target, &g.Saved,
			&g.Deadline, &g.Completed, &g.CreatedAt); err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// HTTP handlers

type createGoalRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=80"`
	Emoji    string `json:"emoji" validate:"omitempty,max=8"`
	Target   int64  `json:"target" validate:"required,gt=0"`
	Deadline string `json:"deadline" validate:"omitempty,datetime=2006-01-02"`
}

type goalAmountRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// CreateSavingsGoal creates a new goal
// @Summary Create savings goal
// @Tags savings
// @Accept json
// @Produce json
// @Param goal body createGoalRequest true "Goal data"
// @Success 201 {object} models.SavingsGoal
// @Failure 400 {object} ErrorResponse
// @Router /savings [post]
func (s *SavingsService) CreateSavingsGoal(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req createGoalRequest
	if err := decodeJSON(w, r, &req, s.validator); err != nil {
		return
	}

	ctx := WithOrigin(r.Context(), middleware.ClientIP(r))
	goal, err := s.CreateGoal(ctx, accountID, req.Name, req.Emoji, req.Target, req.Deadline)
	if err != nil {
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(goal)
}

// ListSavingsGoals returns the caller's goals
// @Summary List savings goals
// @Tags savings
// @Produce json
// @Success 200 {array} models.SavingsGoal
// @Router /savings [get]
func (s *SavingsService) ListSavingsGoals(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	goals, err := s.ListGoals(r.Context(), accountID)
	if err != nil {
		log.Printf("[SAVINGS] list failed for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch goals", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(goals)
}

// DepositToSavingsGoal moves balance into a goal
// @Summary Deposit to goal
// @Tags savings
// @Accept json
// @Produce json
// @Param id path int true "Goal ID"
// @Param deposit body goalAmountRequest true "Amount"
// @Success 200 {object} models.SavingsGoal
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /savings/{id}/deposit [post]
func (s *SavingsService) DepositToSavingsGoal(w http.ResponseWriter, r *http.Request) {
	s.goalAmountOp(w, r, s.DepositToGoal)
}

// WithdrawFromSavingsGoal moves goal money back to the balance
// @Summary Withdraw from goal
// @Tags savings
// @Accept json
// @Produce json
// @Param id path int true "Goal ID"
// @Param withdrawal body goalAmountRequest true "Amount"
// @Success 200 {object} models.SavingsGoal
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /savings/{id}/withdraw [post]
func (s *SavingsService) WithdrawFromSavingsGoal(w http.ResponseWriter, r *http.Request) {
	s.goalAmountOp(w, r, s.WithdrawFromGoal)
}

func (s *SavingsService) goalAmountOp(w http.ResponseWriter, r *http.Request, op func(context.Context, int64, int64, int64) (*models.SavingsGoal, error)) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	goalID, err := parseIDParam(r, "id")
	if err != nil {
		SendErrorResponse(w, "Invalid goal id", http.StatusBadRequest, nil)
		return
	}

	var req goalAmountRequest
	if err := decodeJSON(w, r, &req, s.validator); err != nil {
		return
	}

	ctx := WithOrigin(r.Context(), middleware.ClientIP(r))
	goal, err := op(ctx, accountID, goalID, req.Amount)
	if err != nil {
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(goal)
}

// DeleteSavingsGoal deletes a goal, refunding its balance
// @Summary Delete savings goal
// @Tags savings
// @Produce json
// @Param id path int true "Goal ID"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} ErrorResponse
// @Router /savings/{id} [delete]
func (s *SavingsService) DeleteSavingsGoal(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	goalID, err := parseIDParam(r, "id")
	if err != nil {
		SendErrorResponse(w, "Invalid goal id", http.StatusBadRequest, nil)
		return
	}

	ctx := WithOrigin(r.Context(), middleware.ClientIP(r))
	if err := s.DeleteGoal(ctx, accountID, goalID); err != nil {
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

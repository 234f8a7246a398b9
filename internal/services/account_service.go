package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/liquidgold/wallet/internal/config"
	"github.com/liquidgold/wallet/internal/middleware"
	"github.com/liquidgold/wallet/internal/models"
)

// AccountService provisions wallet accounts at the auth boundary and serves
// profile reads. Identity verification happens upstream; by the time
// EnsureAccount runs, the email is trusted.
type AccountService struct {
	db           *sql.DB
	cfg          *config.WalletConfig
	ledger       *LedgerService
	gamification *GamificationService
	dispatcher   *Dispatcher
	validator    *ValidationHelper
}

func NewAccountService(db *sql.DB, cfg *config.WalletConfig, ledger *LedgerService, gamification *GamificationService, dispatcher *Dispatcher) *AccountService {
	return &AccountService{
		db:           db,
		cfg:          cfg,
		ledger:       ledger,
		gamification: gamification,
		dispatcher:   dispatcher,
		validator:    NewValidationHelper(),
	}
}

// genWalletNumber builds an LG wallet number from the epoch tail plus random
// hex. Collisions are caught by the unique index on wallet_number.
func genWalletNumber() string {
	tail := time.Now().Unix() % 1_000_000
	random := strings.ToUpper(uuid.NewString()[:6])
	return fmt.Sprintf("LG%06d%s", tail, random)
}

// EnsureAccount resolves a trusted email to a wallet account, creating it on
// first login. Creation seeds the default budgets and credits the signup
// bonus as a real ledger deposit so the opening balance has a transaction
// trail. Every login runs the streak machine.
func (s *AccountService) EnsureAccount(ctx context.Context, email, username string) (*models.Account, error) {
	now := time.Now().UTC()
	var accountID int64
	var events []models.Event

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var streak int
	var lastLogin *time.Time
	err = tx.QueryRow(`
		SELECT id, streak, last_login
		FROM accounts
		WHERE email = $1 AND status = 'ACTIVE'
		FOR UPDATE`, email).Scan(&accountID, &streak, &lastLogin)

	switch {
	case err == sql.ErrNoRows:
		if err := tx.QueryRow(`
			INSERT INTO accounts (wallet_number, email, username, balance, xp, streak, status, total_sent, total_received, txn_count, version, created_at, updated_at)
			VALUES ($1, $2, $3, 0, 0, 0, 'ACTIVE', 0, 0, 0, 1, $4, $4)
			RETURNING id`,
			genWalletNumber(), email, username, now).Scan(&accountID); err != nil {
			return nil, err
		}
		if err := SeedDefaultBudgetsTx(tx, accountID); err != nil {
			return nil, err
		}

		events = append(events, models.Event{
			Kind:       models.EventAccountCreated,
			AccountID:  accountID,
			Action:     "Account Created",
			Details:    "wallet " + email,
			Title:      "🎉 Welcome to Liquid Gold!",
			Message:    fmt.Sprintf("Your wallet is ready. We've added a %s signup bonus to get you started.", Rupees(s.cfg.SignupBonus)),
			NotifyKind: models.NotifySuccess,
		})

		// The bonus rides the normal deposit path for its transaction row but
		// carries no separate reward; the welcome notification covers it.
		if _, _, err := s.ledger.DepositTx(tx, accountID, s.cfg.SignupBonus, models.TxnDeposit, "other", "Signup bonus"); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	newStreak, loginEvents := LoginEvents(accountID, streak, lastLogin, now)
	events = append(events, loginEvents...)

	if len(loginEvents) > 0 {
		if _, err := tx.Exec(`
			UPDATE accounts SET streak = $1, last_login = $2, updated_at = $3
			WHERE id = $4`, newStreak, now.Truncate(24*time.Hour), now, accountID); err != nil {
			return nil, err
		}
	}

	if err := s.gamification.ApplyTx(tx, events); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.dispatcher.Publish(ctx, events)
	return s.Get(ctx, accountID)
}

// Get loads a full account row by ID.
func (s *AccountService) Get(ctx context.Context, accountID int64) (*models.Account, error) {
	var a models.Account
	err := s.db.QueryRow(`
		SELECT id, wallet_number, email, username, balance, xp, streak, last_login,
		       status, total_sent, total_received, txn_count, version, created_at, updated_at
		FROM accounts
		WHERE id = $1`, accountID).
		Scan(&a.ID, &a.WalletNumber, &a.Email, &a.Username, &a.Balance, &a.XP, &a.Streak,
			&a.LastLogin, &a.Status, &a.TotalSent, &a.TotalReceived, &a.TxnCount,
			&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Deactivate soft-deletes an account. Rows referenced by transactions are
// never removed; a deactivated account stops resolving as a recipient and
// cannot move money. Idempotent.
func (s *AccountService) Deactivate(ctx context.Context, accountID int64) error {
	_, err := s.db.Exec(`
		UPDATE accounts SET status = $1, updated_at = $2
		WHERE id = $3`, models.AccountDeactivated, time.Now().UTC(), accountID)
	return err
}

func (s *AccountService) mintToken(accountID int64) (string, error) {
	claims := jwt.MapClaims{
		"account_id": accountID,
		"iat":        time.Now().Unix(),
		"exp":        time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// HTTP handlers

type sessionRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=2,max=50"`
}

type profileResponse struct {
	ID           int64  `json:"id"`
	WalletNumber string `json:"wallet_number"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	Balance      int64  `json:"balance"`
	XP           int64  `json:"xp"`
	Tier         string `json:"tier"`
	Streak       int    `json:"streak"`
	Status       string `json:"status"`
}

func toProfile(a *models.Account) profileResponse {
	return profileResponse{
		ID:           a.ID,
		WalletNumber: a.WalletNumber,
		Email:        a.Email,
		Username:     a.Username,
		Balance:      a.Balance,
		XP:           a.XP,
		Tier:         TierFor(a.XP),
		Streak:       a.Streak,
		Status:       a.Status,
	}
}

// CreateSession exchanges a verified identity for a wallet session token
// @Summary Create session
// @Tags accounts
// @Accept json
// @Produce json
// @Param session body sessionRequest true "Verified identity"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /session [post]
func (s *AccountService) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req, s.validator); err != nil {
		return
	}

	ctx := WithOrigin(r.Context(), middleware.ClientIP(r))
	account, err := s.EnsureAccount(ctx, req.Email, req.Username)
	if err != nil {
		log.Printf("[ACCOUNT] ensure failed for %s: %v", req.Email, err)
		SendWalletError(w, err)
		return
	}

	token, err := s.mintToken(account.ID)
	if err != nil {
		SendErrorResponse(w, "Failed to create session", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"token":   token,
		"profile": toProfile(account),
	})
}

// GetProfile returns the caller's account
// @Summary Get profile
// @Tags accounts
// @Produce json
// @Success 200 {object} profileResponse
// @Router /me [get]
func (s *AccountService) GetProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, err := s.Get(r.Context(), accountID)
	if err != nil {
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProfile(account))
}

// GetBalance returns the caller's balance
// @Summary Get balance
// @Tags accounts
// @Produce json
// @Success 200 {object} map[string]int64
// @Router /balance [get]
func (s *AccountService) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, err := s.Get(r.Context(), accountID)
	if err != nil {
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"balance": account.Balance})
}

// LookupRecipient resolves an email or wallet number to a display identity
// @Summary Lookup recipient
// @Tags accounts
// @Produce json
// @Param identifier query string true "Email or wallet number"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /lookup [get]
func (s *AccountService) LookupRecipient(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		SendErrorResponse(w, "identifier query parameter required", http.StatusBadRequest, nil)
		return
	}

	account, err := s.ledger.ResolveRecipient(r.Context(), identifier)
	if err != nil {
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"username":      account.Username,
		"wallet_number": account.WalletNumber,
	})
}

// DeactivateAccount soft-deletes the caller's account
// @Summary Deactivate account
// @Tags accounts
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /account [delete]
func (s *AccountService) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if err := s.Deactivate(r.Context(), accountID); err != nil {
		log.Printf("[ACCOUNT] deactivate failed for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to deactivate account", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

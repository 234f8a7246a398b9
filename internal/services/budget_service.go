package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/liquidgold/wallet/internal/middleware"
	"github.com/liquidgold/wallet/internal/models"
)

// defaultBudgets is seeded for every new account. Limits are paise.
var defaultBudgets = []models.BudgetCategory{
	{Name: "Food & Dining", Emoji: "🍔", Color: "#e74c3c", MonthlyLimit: 50_000},
	{Name: "Transport", Emoji: "🚗", Color: "#3498db", MonthlyLimit: 30_000},
	{Name: "Shopping", Emoji: "🛍️", Color: "#9b59b6", MonthlyLimit: 80_000},
	{Name: "Entertainment", Emoji: "🎬", Color: "#f39c12", MonthlyLimit: 40_000},
	{Name: "Health", Emoji: "💊", Color: "#2ecc71", MonthlyLimit: 30_000},
	{Name: "Other", Emoji: "💰", Color: "#D4AF37", MonthlyLimit: 50_000},
}

// SeedDefaultBudgetsTx inserts the default category set for a new account
// inside the caller's transaction.
func SeedDefaultBudgetsTx(tx *sql.Tx, accountID int64) error {
	now := time.Now().UTC()
	for _, b := range defaultBudgets {
		if _, err := tx.Exec(`
			INSERT INTO budget_categories (account_id, name, emoji, color, monthly_limit, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			accountID, b.Name, b.Emoji, b.Color, b.MonthlyLimit, now); err != nil {
			return err
		}
	}
	return nil
}

// BudgetService reads category limits and derives month-to-date spend from
// the transaction log. Spend is never stored.
type BudgetService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewBudgetService(db *sql.DB) *BudgetService {
	return &BudgetService{db: db, validator: NewValidationHelper()}
}

// List returns every category of the account with its current-month spend,
// computed from the account's debit legs in the current calendar month.
func (s *BudgetService) List(ctx context.Context, accountID int64, now time.Time) ([]models.BudgetStatus, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	rows, err := s.db.Query(`
		SELECT b.id, b.account_id, b.name, b.emoji, b.color, b.monthly_limit, b.created_at,
		       COALESCE(SUM(t.amount), 0) AS spent
		FROM budget_categories b
		LEFT JOIN transactions t
		  ON t.source_id = b.account_id
		 AND t.leg = 'DEBIT'
		 AND LOWER(t.category) = LOWER(b.name)
		 AND t.created_at >= $2
		WHERE b.account_id = $1
		GROUP BY b.id, b.account_id, b.name, b.emoji, b.color, b.monthly_limit, b.created_at
		ORDER BY b.id`, accountID, monthStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	budgets := []models.BudgetStatus{}
	for rows.Next() {
		var b models.BudgetStatus
		if err := rows.Scan(&b.ID, &b.AccountID, &b.Name, &b.Emoji, &b.Color,
			&b.MonthlyLimit, &b.CreatedAt, &b.Spent); err != nil {
			return nil, err
		}
		if b.MonthlyLimit > 0 {
			b.Pct = float64(b.Spent) / float64(b.MonthlyLimit) * 100
			if b.Pct > 100 {
				b.Pct = 100
			}
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

// UpdateLimit sets a new monthly limit on a category owned by the account.
func (s *BudgetService) UpdateLimit(ctx context.Context, accountID, categoryID, limit int64) error {
	if limit < 0 {
		return ErrInvalidAmount
	}
	result, err := s.db.Exec(`
		UPDATE budget_categories SET monthly_limit = $1
		WHERE id = $2 AND account_id = $3`, limit, categoryID, accountID)
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

// HTTP handlers

type updateBudgetRequest struct {
	MonthlyLimit int64 `json:"monthly_limit" validate:"gte=0"`
}

// ListBudgets returns the caller's budgets with month-to-date spend
// @Summary List budgets
// @Tags budgets
// @Produce json
// @Success 200 {array} models.BudgetStatus
// @Router /budgets [get]
func (s *BudgetService) ListBudgets(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	budgets, err := s.List(r.Context(), accountID, time.Now().UTC())
	if err != nil {
		log.Printf("[BUDGET] list failed for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch budgets", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(budgets)
}

// UpdateBudget changes the monthly limit of one category
// @Summary Update budget limit
// @Tags budgets
// @Accept json
// @Produce json
// @Param id path int true "Category ID"
// @Param budget body updateBudgetRequest true "New limit"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} ErrorResponse
// @Router /budgets/{id} [put]
func (s *BudgetService) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	categoryID, err := parseIDParam(r, "id")
	if err != nil {
		SendErrorResponse(w, "Invalid category id", http.StatusBadRequest, nil)
		return
	}

	var req updateBudgetRequest
	if err := decodeJSON(w, r, &req, s.validator); err != nil {
		return
	}

	if err := s.UpdateLimit(r.Context(), accountID, categoryID, req.MonthlyLimit); err != nil {
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/liquidgold/wallet/internal/middleware"
	"github.com/liquidgold/wallet/internal/models"
)

const historyPageSize = 20

// TransactionService serves read-only projections of the transaction log.
// History, daily series and category totals are all reconstructed from
// transaction rows on every read; nothing here is cached or stored.
type TransactionService struct {
	db *sql.DB
}

func NewTransactionService(db *sql.DB) *TransactionService {
	return &TransactionService{db: db}
}

// History returns one page of the account's transactions, newest first. An
// account sees its own legs only: debits it sent and credits it received.
func (s *TransactionService) History(ctx context.Context, accountID int64, page int) ([]models.Transaction, int, error) {
	if page < 1 {
		page = 1
	}

	var total int
	if err := s.db.QueryRow(`
		SELECT COUNT(*) FROM transactions
		WHERE (source_id = $1 AND leg = 'DEBIT') OR (destination_id = $1 AND leg = 'CREDIT')`,
		accountID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT id, reference, source_id, destination_id, amount, fee, kind, leg, category, description, balance_after, created_at
		FROM transactions
		WHERE (source_id = $1 AND leg = 'DEBIT') OR (destination_id = $1 AND leg = 'CREDIT')
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, accountID, historyPageSize, (page-1)*historyPageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.Reference, &t.SourceID, &t.DestinationID, &t.Amount,
			&t.Fee, &t.Kind, &t.Leg, &t.Category, &t.Description, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, t)
	}
	return transactions, total, rows.Err()
}

// DailyPoint is one day of the spending series.
type DailyPoint struct {
	Date     string `json:"date"`
	Sent     int64  `json:"sent"`     // paise
	Received int64  `json:"received"` // paise
}

// CategoryTotal is one category's total debit volume.
type CategoryTotal struct {
	Category string `json:"category"`
	Total    int64  `json:"total"` // paise
}

// DailySeries returns per-day sent/received totals for the trailing window.
func (s *TransactionService) DailySeries(ctx context.Context, accountID int64, days int, now time.Time) ([]DailyPoint, error) {
	since := now.AddDate(0, 0, -days).Truncate(24 * time.Hour)

	rows, err := s.db.Query(`
		SELECT DATE(created_at) AS day,
		       COALESCE(SUM(amount) FILTER (WHERE source_id = $1 AND leg = 'DEBIT'), 0) AS sent,
		       COALESCE(SUM(amount) FILTER (WHERE destination_id = $1 AND leg = 'CREDIT'), 0) AS received
		FROM transactions
		WHERE ((source_id = $1 AND leg = 'DEBIT') OR (destination_id = $1 AND leg = 'CREDIT'))
		  AND created_at >= $2
		GROUP BY day
		ORDER BY day`, accountID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	series := []DailyPoint{}
	for rows.Next() {
		var p DailyPoint
		var day time.Time
		if err := rows.Scan(&day, &p.Sent, &p.Received); err != nil {
			return nil, err
		}
		p.Date = day.Format("2006-01-02")
		series = append(series, p)
	}
	return series, rows.Err()
}

// MonthCategories returns the current calendar month's debit totals per
// category.
func (s *TransactionService) MonthCategories(ctx context.Context, accountID int64, now time.Time) ([]CategoryTotal, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	rows, err := s.db.Query(`
		SELECT category, COALESCE(SUM(amount), 0) AS total
		FROM transactions
		WHERE source_id = $1 AND leg = 'DEBIT' AND created_at >= $2
		GROUP BY category
		ORDER BY total DESC`, accountID, monthStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := []CategoryTotal{}
	for rows.Next() {
		var c CategoryTotal
		if err := rows.Scan(&c.Category, &c.Total); err != nil {
			return nil, err
		}
		totals = append(totals, c)
	}
	return totals, rows.Err()
}

// HTTP handlers

// GetTransactions returns one page of the caller's transaction history
// @Summary Transaction history
// @Tags transactions
// @Produce json
// @Param page query int false "Page number"
// @Success 200 {object} map[string]interface{}
// @Router /transactions [get]
func (s *TransactionService) GetTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	transactions, total, err := s.History(r.Context(), accountID, page)
	if err != nil {
		log.Printf("[TXN] history failed for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"total":        total,
		"page":         max(page, 1),
		"per_page":     historyPageSize,
	})
}

// GetAnalytics returns the 30-day series and current-month category totals
// @Summary Spending analytics
// @Tags transactions
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /analytics [get]
func (s *TransactionService) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	now := time.Now().UTC()
	series, err := s.DailySeries(r.Context(), accountID, 30, now)
	if err != nil {
		log.Printf("[TXN] daily series failed for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to compute analytics", http.StatusInternalServerError, nil)
		return
	}

	categories, err := s.MonthCategories(r.Context(), accountID, now)
	if err != nil {
		log.Printf("[TXN] category totals failed for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to compute analytics", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"daily":      series,
		"categories": categories,
	})
}

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

// SplitBillService creates group bills and settles member shares. A bill and
// all its member rows are created in one transaction; each share settles
// through a real ledger transfer to the creator; completion flips exactly
// once when the last share is paid.
type SplitBillService struct {
	db           *sql.DB
	cfg          *config.WalletConfig
	ledger       *LedgerService
	gamification *GamificationService
	dispatcher   *Dispatcher
	validator    *ValidationHelper
}

func NewSplitBillService(db *sql.DB, cfg *config.WalletConfig, ledger *LedgerService, gamification *GamificationService, dispatcher *Dispatcher) *SplitBillService {
	return &SplitBillService{
		db:           db,
		cfg:          cfg,
		ledger:       ledger,
		gamification: gamification,
		dispatcher:   dispatcher,
		validator:    NewValidationHelper(),
	}
}

// MemberShare pairs a resolved account with its assigned share.
type MemberShare struct {
	AccountID int64
	Username  string
	Share     int64
}

// CreateBill creates a bill with its full member set. Shares must each be
// positive and sum exactly to the total. The creator is stored as a
// zero-share member already marked paid so settlement only ever waits on
// debtors.
func (s *SplitBillService) CreateBill(ctx context.Context, creatorID int64, title, description string, total int64, members []MemberShare) (*models.SplitBill, error) {
	if total <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(members) == 0 {
		return nil, walletErr(KindShareMismatch, "a split bill needs at least one member")
	}

	var sum int64
	seen := map[int64]bool{creatorID: true}
	for _, m := range members {
		if m.Share <= 0 {
			return nil, ErrInvalidAmount
		}
		if seen[m.AccountID] {
			return nil, walletErr(KindShareMismatch, "duplicate or creator member in share list")
		}
		seen[m.AccountID] = true
		sum += m.Share
	}
	if sum != total {
		return nil, walletErr(KindShareMismatch, "shares sum to %s, bill total is %s",
			Rupees(sum), Rupees(total))
	}

	now := time.Now().UTC()
	bill := &models.SplitBill{
		CreatorID:   creatorID,
		Title:       title,
		TotalAmount: total,
		Description: description,
		CreatedAt:   now,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := tx.QueryRow(`
		INSERT INTO split_bills (creator_id, title, total_amount, description, completed, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		RETURNING id`,
		bill.CreatorID, bill.Title, bill.TotalAmount, bill.Description, bill.CreatedAt).
		Scan(&bill.ID); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`
		INSERT INTO split_bill_members (bill_id, account_id, share, paid, paid_at)
		VALUES ($1, $2, 0, TRUE, $3)`, bill.ID, creatorID, now); err != nil {
		return nil, err
	}
	bill.Members = append(bill.Members, models.SplitBillMember{
		BillID: bill.ID, AccountID: creatorID, Paid: true, PaidAt: &now,
	})

	events := []models.Event{{
		Kind:      models.EventSplitBillCreated,
		AccountID: creatorID,
		Amount:    total,
		Action:    "Split Bill Created",
		Details:   fmt.Sprintf("%s %s across %d members", bill.Title, Rupees(total), len(members)),
	}}

	for _, m := range members {
		if _, err := tx.Exec(`
			INSERT INTO split_bill_members (bill_id, account_id, share, paid, paid_at)
			VALUES ($1, $2, $3, FALSE, NULL)`, bill.ID, m.AccountID, m.Share); err != nil {
			return nil, err
		}
		bill.Members = append(bill.Members, models.SplitBillMember{
			BillID: bill.ID, AccountID: m.AccountID, Share: m.Share,
		})
		events = append(events, models.Event{
			AccountID:  m.AccountID,
			Amount:     m.Share,
			Title:      "💸 Split Bill Request",
			Message:    fmt.Sprintf("Your share of %q is %s.", bill.Title, Rupees(m.Share)),
			NotifyKind: models.NotifyWarning,
		})
	}

	if err := s.gamification.ApplyTx(tx, events); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.dispatcher.Publish(ctx, events)
	return bill, nil
}

// PayShare settles the caller's share of a bill with a ledger transfer to
// the creator. The paid amount must equal the assigned share exactly; shares
// are not partial-payable. The last share to settle completes the bill.
func (s *SplitBillService) PayShare(ctx context.Context, payerID, billID, amount int64) (*models.SplitBill, error) {
	var bill *models.SplitBill
	var events []models.Event
	err := retryConflicts(s.cfg.MaxRetries, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var b models.SplitBill
		err = tx.QueryRow(`
			SELECT id, creator_id, title, total_amount, description, completed, created_at
			FROM split_bills
			WHERE id = $1
			FOR UPDATE`, billID).
			Scan(&b.ID, &b.CreatorID, &b.Title, &b.TotalAmount, &b.Description, &b.Completed, &b.CreatedAt)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var member models.SplitBillMember
		err = tx.QueryRow(`
			SELECT id, bill_id, account_id, share, paid, paid_at
			FROM split_bill_members
			WHERE bill_id = $1 AND account_id = $2
			FOR UPDATE`, billID, payerID).
			Scan(&member.ID, &member.BillID, &member.AccountID, &member.Share, &member.Paid, &member.PaidAt)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if member.Paid {
			return ErrAlreadyPaid
		}
		if amount != member.Share {
			return walletErr(KindWrongAmount, "your share is exactly %s", Rupees(member.Share))
		}

		_, transferEvents, err := s.ledger.TransferTx(tx, payerID, b.CreatorID, amount,
			models.TxnSplit, "split", "Split: "+b.Title)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.Exec(`
			UPDATE split_bill_members SET paid = TRUE, paid_at = $1
			WHERE id = $2`, now, member.ID); err != nil {
			return err
		}

		evts := []models.Event{{
			Kind:      models.EventSplitSharePaid,
			AccountID: payerID,
			Amount:    amount,
			Action:    "Split Share Paid",
			Details:   fmt.Sprintf("%s for %s", Rupees(amount), b.Title),
		}}
		// Keep the transfer's recipient-side notification, drop its generic
		// sent notification in favour of the split-specific audit entry.
		for _, e := range transferEvents {
			if e.Kind == models.EventTransferReceived {
				e.Title = "💸 Share Received"
				e.Message = fmt.Sprintf("A member paid their %s share of %q.", Rupees(amount), b.Title)
				evts = append(evts, e)
			}
		}

		var unpaid int
		if err := tx.QueryRow(`
			SELECT COUNT(*) FROM split_bill_members
			WHERE bill_id = $1 AND paid = FALSE`, billID).Scan(&unpaid); err != nil {
			return err
		}

		if unpaid == 0 {
			result, err := tx.Exec(`
				UPDATE split_bills SET completed = TRUE
				WHERE id = $1 AND completed = FALSE`, billID)
			if err != nil {
				return err
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 1 {
				b.Completed = true
				memberIDs, err := s.memberAccountIDsTx(tx, billID)
				if err != nil {
					return err
				}
				for _, id := range memberIDs {
					evts = append(evts, models.Event{
						Kind:       models.EventSplitBillSettled,
						AccountID:  id,
						Title:      "🎊 Bill Settled!",
						Message:    fmt.Sprintf("%q is fully settled. Thanks everyone!", b.Title),
						NotifyKind: models.NotifySuccess,
					})
				}
			}
		}

		if err := s.gamification.ApplyTx(tx, evts); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		bill, events = &b, evts
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.Publish(ctx, events)
	return bill, nil
}

func (s *SplitBillService) memberAccountIDsTx(tx *sql.Tx, billID int64) ([]int64, error) {
	rows, err := tx.Query(`
		SELECT account_id FROM split_bill_members WHERE bill_id = $1`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListBills returns every bill the account created or participates in,
// members included, newest first.
func (s *SplitBillService) ListBills(ctx context.Context, accountID int64) ([]models.SplitBill, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT b.id, b.creator_id, b.title, b.total_amount, b.description, b.completed, b.created_at
		FROM split_bills b
		JOIN split_bill_members m ON m.bill_id = b.id
		WHERE m.account_id = $1
		ORDER BY b.created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bills := []models.SplitBill{}
	for rows.Next() {
		var b models.SplitBill
		if err := rows.Scan(&b.ID, &b.CreatorID, &b.Title, &b.TotalAmount,
			&b.Description, &b.Completed, &b.CreatedAt); err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range bills {
		members, err := s.billMembers(ctx, bills[i].ID)
		if err != nil {
			return nil, err
		}
		bills[i].Members = members
	}
	return bills, nil
}

func (s *SplitBillService) billMembers(ctx context.Context, billID int64) ([]models.SplitBillMember, error) {
	rows, err := s.db.Query(`
		SELECT id, bill_id, account_id, share, paid, paid_at
		FROM split_bill_members
		WHERE bill_id = $1
		ORDER BY id`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.SplitBillMember{}
	for rows.Next() {
		var m models.SplitBillMember
		if err := rows.Scan(&m.ID, &m.BillID, &m.AccountID, &m.Share, &m.Paid, &m.PaidAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// HTTP handlers

type splitMemberRequest struct {
	Identifier string `json:"identifier" validate:"required,max=320"`
	Share      int64  `json:"share" validate:"required,gt=0"`
}

type createSplitRequest struct {
	Title       string               `json:"title" validate:"required,min=1,max=120"`
	Description string               `json:"description" validate:"omitempty,max=200"`
	TotalAmount int64                `json:"total_amount" validate:"required,gt=0"`
	Members     []splitMemberRequest `json:"members" validate:"required,min=1,max=20,dive"`
}

type paySplitRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// CreateSplitBill creates a bill with all member shares
// @Summary Create split bill
// @Tags split
// @Accept json
// @Produce json
// @Param bill body createSplitRequest true "Bill data"
// @Success 201 {object} models.SplitBill
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /split [post]
func (s *SplitBillService) CreateSplitBill(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req createSplitRequest
	if err := decodeJSON(w, r, &req, s.validator); err != nil {
		return
	}

	members := make([]MemberShare, 0, len(req.Members))
	for _, m := range req.Members {
		account, err := s.ledger.ResolveRecipient(r.Context(), m.Identifier)
		if err != nil {
			SendWalletError(w, err)
			return
		}
		members = append(members, MemberShare{
			AccountID: account.ID,
			Username:  account.Username,
			Share:     m.Share,
		})
	}

	ctx := WithOrigin(r.Context(), middleware.ClientIP(r))
	bill, err := s.CreateBill(ctx, creatorID, req.Title, req.Description, req.TotalAmount, members)
	if err != nil {
		log.Printf("[SPLIT] create failed for account %d: %v", creatorID, err)
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(bill)
}

// PaySplitShare settles the caller's share of a bill
// @Summary Pay split share
// @Tags split
// @Accept json
// @Produce json
// @Param id path int true "Bill ID"
// @Param payment body paySplitRequest true "Payment"
// @Success 200 {object} models.SplitBill
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /split/{id}/pay [post]
func (s *SplitBillService) PaySplitShare(w http.ResponseWriter, r *http.Request) {
	payerID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	billID, err := parseIDParam(r, "id")
	if err != nil {
		SendErrorResponse(w, "Invalid bill id", http.StatusBadRequest, nil)
		return
	}

	var req paySplitRequest
	if err := decodeJSON(w, r, &req, s.validator); err != nil {
		return
	}

	ctx := WithOrigin(r.Context(), middleware.ClientIP(r))
	bill, err := s.PayShare(ctx, payerID, billID, req.Amount)
	if err != nil {
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bill)
}

// ListSplitBills returns the caller's bills
// @Summary List split bills
// @Tags split
// @Produce json
// @Success 200 {array} models.SplitBill
// @Router /split [get]
func (s *SplitBillService) ListSplitBills(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	bills, err := s.ListBills(r.Context(), accountID)
	if err != nil {
		log.Printf("[SPLIT] list failed for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch split bills", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bills)
}

package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/liquidgold/wallet/internal/middleware"
	"github.com/liquidgold/wallet/internal/models"
)

const notificationQueue = "notification_queue"

// NotificationService stores user-facing notifications and hands them to the
// delivery transport via a Redis queue. Emission is fire-after-commit; a
// delivery failure is logged, never surfaced to the ledger.
type NotificationService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewNotificationService(db *sql.DB, redisClient *redis.Client) *NotificationService {
	return &NotificationService{db: db, redis: redisClient}
}

// Push persists a notification row and enqueues it for delivery.
func (s *NotificationService) Push(ctx context.Context, accountID int64, title, message, kind string) error {
	n := models.Notification{
		AccountID: accountID,
		Title:     title,
		Message:   message,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.QueryRow(`
		INSERT INTO notifications (account_id, title, message, kind, read, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		RETURNING id`,
		n.AccountID, n.Title, n.Message, n.Kind, n.CreatedAt).Scan(&n.ID)
	if err != nil {
		return err
	}

	if s.redis != nil {
		data, _ := json.Marshal(n)
		if err := s.redis.RPush(ctx, notificationQueue, data).Err(); err != nil {
			log.Printf("[NOTIFY] failed to enqueue notification %d: %v", n.ID, err)
		}
	}

	return nil
}

// PushEvent delivers the user-facing side of a committed domain event.
// Events without a title carry no notification.
func (s *NotificationService) PushEvent(ctx context.Context, e models.Event) {
	if e.Title == "" {
		return
	}
	kind := e.NotifyKind
	if kind == "" {
		kind = models.NotifyInfo
	}
	if err := s.Push(ctx, e.AccountID, e.Title, e.Message, kind); err != nil {
		log.Printf("[NOTIFY] failed to push %s notification for account %d: %v", e.Kind, e.AccountID, err)
	}
}

// List returns recent notifications for an account, newest first.
func (s *NotificationService) List(ctx context.Context, accountID int64, limit int) ([]models.Notification, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, title, message, kind, read, created_at
		FROM notifications
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.AccountID, &n.Title, &n.Message, &n.Kind, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkRead sets the read flag on one notification owned by the account.
func (s *NotificationService) MarkRead(ctx context.Context, accountID, notificationID int64) error {
	result, err := s.db.Exec(`
		UPDATE notifications SET read = TRUE
		WHERE id = $1 AND account_id = $2`, notificationID, accountID)
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

// MarkAllRead sets the read flag on every unread notification of the account.
func (s *NotificationService) MarkAllRead(ctx context.Context, accountID int64) error {
	_, err := s.db.Exec(`
		UPDATE notifications SET read = TRUE
		WHERE account_id = $1 AND read = FALSE`, accountID)
	return err
}

// HTTP handlers

// ListNotifications returns the caller's recent notifications
// @Summary List notifications
// @Tags notifications
// @Produce json
// @Success 200 {array} models.Notification
// @Router /notifications [get]
func (s *NotificationService) ListNotifications(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	notifications, err := s.List(r.Context(), accountID, 30)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch notifications", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notifications)
}

// MarkNotificationRead marks a single notification read
// @Summary Mark one notification read
// @Tags notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} ErrorResponse
// @Router /notifications/{id}/read [post]
func (s *NotificationService) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	notificationID, err := parseIDParam(r, "id")
	if err != nil {
		SendErrorResponse(w, "Invalid notification ID", http.StatusBadRequest, nil)
		return
	}

	if err := s.MarkRead(r.Context(), accountID, notificationID); err != nil {
		SendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// MarkNotificationsRead marks all of the caller's notifications read
// @Summary Mark all notifications read
// @Tags notifications
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /notifications/read [post]
func (s *NotificationService) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if err := s.MarkAllRead(r.Context(), accountID); err != nil {
		SendErrorResponse(w, "Failed to mark notifications read", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

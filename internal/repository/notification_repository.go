package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/requestdesk/internal/domain"
)

type PostgresNotificationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresNotificationRepository(db *sql.DB, logger *slog.Logger) *PostgresNotificationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresNotificationRepository{db: db, logger: logger}
}

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("failed to encode notification data: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, data, read, read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, FALSE, NULL, $7)`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, string(data), n.CreatedAt)
	if err != nil {
		r.logger.Error("failed to create notification",
			slog.String("user_id", n.UserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *PostgresNotificationRepository) List(ctx context.Context, userID string, limit, skip int, unreadOnly bool) ([]*domain.Notification, error) {
	query := `
		SELECT id, user_id, type, title, message, data, read, read_at, created_at
		FROM notifications
		WHERE user_id = $1 AND ($2 = FALSE OR read = FALSE)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.QueryContext(ctx, query, userID, unreadOnly, limit, skip)
	if err != nil {
		r.logger.Error("failed to list notifications", slog.String("user_id", userID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := []*domain.Notification{}
	for rows.Next() {
		var (
			n      domain.Notification
			typ    string
			data   []byte
			readAt sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &data, &n.Read, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = domain.NotificationType(typ)
		n.ReadAt = timePtr(readAt)
		n.Data = map[string]any{}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &n.Data); err != nil {
				return nil, fmt.Errorf("failed to decode notification data: %w", err)
			}
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// MarkRead leaves read_at untouched when the notification is already read.
func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		WITH target AS (
			SELECT id FROM notifications WHERE id = $1 AND user_id = $2
		), updated AS (
			UPDATE notifications SET read = TRUE, read_at = $3
			WHERE id IN (SELECT id FROM target) AND read = FALSE
		)
		SELECT EXISTS (SELECT 1 FROM target)`,
		id, userID, at).Scan(&exists)
	if err != nil {
		r.logger.Error("failed to mark notification read", slog.String("id", id), slog.String("error", err.Error()))
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return exists, nil
}

func (r *PostgresNotificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE, read_at = $2 WHERE user_id = $1 AND read = FALSE`, userID, at)
	if err != nil {
		r.logger.Error("failed to mark notifications read", slog.String("user_id", userID), slog.String("error", err.Error()))
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return int(n), nil
}

func (r *PostgresNotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

func (r *PostgresNotificationRepository) Stats(ctx context.Context, userID string) (*domain.NotificationStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT type, COUNT(*), COUNT(*) FILTER (WHERE read)
		FROM notifications WHERE user_id = $1
		GROUP BY type`, userID)
	if err != nil {
		r.logger.Error("failed to compute notification stats", slog.String("user_id", userID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to compute notification stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.NotificationStats{ByType: map[string]int{}}
	for rows.Next() {
		var (
			typ         string
			total, read int
		)
		if err := rows.Scan(&typ, &total, &read); err != nil {
			return nil, fmt.Errorf("failed to scan notification stats: %w", err)
		}
		stats.ByType[typ] = total
		stats.Total += total
		stats.Read += read
	}
	stats.Unread = stats.Total - stats.Read
	return stats, rows.Err()
}

func (r *PostgresNotificationRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete notification: %w", err)
	}
	return n > 0, nil
}

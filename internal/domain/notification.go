package domain

import (
	"context"
	"time"
)

type NotificationType string

const (
	NotificationRequestCreated NotificationType = "request_created"
	NotificationStatusUpdated  NotificationType = "status_updated"
	NotificationCommentAdded   NotificationType = "comment_added"
	NotificationFileUploaded   NotificationType = "file_uploaded"
)

// Notification is the durable record behind every live push.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data"`
	Read      bool             `json:"read"`
	ReadAt    *time.Time       `json:"read_at"`
	CreatedAt time.Time        `json:"created_at"`
}

type NotificationStats struct {
	Total  int            `json:"total"`
	Read   int            `json:"read"`
	Unread int            `json:"unread"`
	ByType map[string]int `json:"by_type"`
}

type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	// List returns the user's notifications newest first.
	List(ctx context.Context, userID string, limit, skip int, unreadOnly bool) ([]*Notification, error)
	// MarkRead sets read_at only if the notification is unread. found is false when
	// no notification with id belongs to userID.
	MarkRead(ctx context.Context, id, userID string, at time.Time) (found bool, err error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	Stats(ctx context.Context, userID string) (*NotificationStats, error)
	Delete(ctx context.Context, id, userID string) (bool, error)
}

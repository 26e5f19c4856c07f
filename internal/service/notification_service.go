package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/domain"
	"github.com/aryan0dhankhar/requestdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/requestdesk/internal/observability/tracing"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// LiveNotifier pushes payloads to connected users. *notify.Registry satisfies it.
type LiveNotifier interface {
	SendTo(userID string, payload any) bool
	Connected() []string
}

// NotificationStatus reports the live delivery subsystem.
type NotificationStatus struct {
	ServiceStatus       string   `json:"service_status"`
	ConnectedUsersCount int      `json:"connected_users_count"`
	ConnectedUsers      []string `json:"connected_users"`
}

// NotificationService persists notifications and pushes them to live channels.
// The persisted record always comes first; a failed push never undoes it.
type NotificationService struct {
	notifications domain.NotificationRepository
	users         domain.UserRepository
	live          LiveNotifier
	logger        *slog.Logger
	now           func() time.Time
}

func NewNotificationService(
	notifications domain.NotificationRepository,
	users domain.UserRepository,
	live LiveNotifier,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{
		notifications: notifications,
		users:         users,
		live:          live,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a notification. An unknown recipient is logged, not rejected.
func (s *NotificationService) Create(
	ctx context.Context,
	userID string,
	kind domain.NotificationType,
	title, message string,
	data map[string]any,
) (*domain.Notification, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Internal("failed to resolve recipient", err)
		}
		s.logger.Warn("creating notification for unknown user",
			slog.String("user_id", userID),
			slog.String("type", string(kind)),
		)
	}
	if data == nil {
		data = map[string]any{}
	}

	n := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: s.now(),
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		metrics.ObserveNotificationCreated(string(kind), "error")
		return nil, apperr.Internal("failed to create notification", err)
	}
	metrics.ObserveNotificationCreated(string(kind), "ok")
	return n, nil
}

// Notify persists then pushes. Errors are logged; the return value only
// reports whether a live channel accepted the push.
func (s *NotificationService) Notify(
	ctx context.Context,
	userID string,
	kind domain.NotificationType,
	title, message string,
	data map[string]any,
) bool {
	ctx, span := tracing.Tracer().Start(ctx, "NotificationService.Notify")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("notification.type", string(kind)))

	n, err := s.Create(ctx, userID, kind, title, message, data)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("notification not persisted",
			slog.String("user_id", userID),
			slog.String("type", string(kind)),
			slog.String("error", err.Error()),
		)
		return false
	}
	delivered := s.live.SendTo(userID, n)
	span.SetAttributes(attribute.Bool("notification.delivered", delivered))
	return delivered
}

// NotifyAdmins fans out to every admin except excludeUserID. It returns how
// many records were persisted.
func (s *NotificationService) NotifyAdmins(
	ctx context.Context,
	excludeUserID string,
	kind domain.NotificationType,
	title, message string,
	data map[string]any,
) int {
	admins, err := s.users.ListByRole(ctx, domain.RoleAdmin)
	if err != nil {
		s.logger.Error("failed to list admins for notification",
			slog.String("type", string(kind)),
			slog.String("error", err.Error()),
		)
		return 0
	}
	created := 0
	for _, admin := range admins {
		if admin.ID == excludeUserID {
			continue
		}
		n, err := s.Create(ctx, admin.ID, kind, title, message, data)
		if err != nil {
			s.logger.Warn("admin notification failed",
				slog.String("user_id", admin.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		created++
		s.live.SendTo(admin.ID, n)
	}
	return created
}

// List returns the user's notifications newest first. limit defaults to 20
// and is clamped to 1..100.
func (s *NotificationService) List(ctx context.Context, userID string, limit, skip int, unreadOnly bool) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	limit = min(limit, maxNotificationLimit)
	skip = max(skip, 0)
	items, err := s.notifications.List(ctx, userID, limit, skip, unreadOnly)
	if err != nil {
		return nil, apperr.Internal("failed to list notifications", err)
	}
	if items == nil {
		items = []*domain.Notification{}
	}
	return items, nil
}

// MarkRead is idempotent: an already-read notification reports true and keeps
// its original read_at. Ids that do not belong to userID report false.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	if err := validateID(id, "notification"); err != nil {
		return false, err
	}
	found, err := s.notifications.MarkRead(ctx, id, userID, s.now())
	if err != nil {
		return false, apperr.Internal("failed to mark notification read", err)
	}
	return found, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	n, err := s.notifications.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, apperr.Internal("failed to mark notifications read", err)
	}
	return n, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := s.notifications.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperr.Internal("failed to count notifications", err)
	}
	return n, nil
}

func (s *NotificationService) Stats(ctx context.Context, userID string) (*domain.NotificationStats, error) {
	st, err := s.notifications.Stats(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("failed to compute notification stats", err)
	}
	if st.ByType == nil {
		st.ByType = map[string]int{}
	}
	return st, nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	if err := validateID(id, "notification"); err != nil {
		return err
	}
	found, err := s.notifications.Delete(ctx, id, userID)
	if err != nil {
		return apperr.Internal("failed to delete notification", err)
	}
	if !found {
		return apperr.NotFound("notification not found")
	}
	return nil
}

func (s *NotificationService) Status() NotificationStatus {
	users := s.live.Connected()
	if users == nil {
		users = []string{}
	}
	return NotificationStatus{
		ServiceStatus:       "active",
		ConnectedUsersCount: len(users),
		ConnectedUsers:      users,
	}
}

// SendTest pushes an unpersisted test frame. It reports whether the user was connected.
func (s *NotificationService) SendTest(userID, senderEmail string) bool {
	return s.live.SendTo(userID, map[string]any{
		"type":      "test_notification",
		"title":     "Notificación de prueba",
		"message":   "Esta es una notificación de prueba enviada por " + senderEmail,
		"timestamp": s.now().Format(time.RFC3339),
	})
}

package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/aryan0dhankhar/requestdesk/internal/domain"
	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/storage"
	"github.com/aryan0dhankhar/requestdesk/internal/notify"
	"github.com/aryan0dhankhar/requestdesk/internal/repository/memory"
	"github.com/aryan0dhankhar/requestdesk/internal/security"
	"github.com/aryan0dhankhar/requestdesk/internal/security/audit"
)

// recordingChannel stands in for a websocket connection.
type recordingChannel struct {
	mu   sync.Mutex
	sent []any
	fail error
}

func (c *recordingChannel) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.sent = append(c.sent, v)
	return nil
}

func (c *recordingChannel) Close() error { return nil }

func (c *recordingChannel) messages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.sent...)
}

type fixture struct {
	users         *memory.UserRepository
	requests      *memory.RequestRepository
	receipts      *memory.ReceiptRepository
	notifications *memory.NotificationRepository
	registry      *notify.Registry
	blobs         *storage.LocalStore

	notifier   *NotificationService
	requestSvc *RequestService
	receiptSvc *ReceiptService

	client, other, admin, admin2 *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Discard()
	blobs, err := storage.NewLocalStore(t.TempDir(), "/uploads", log)
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	f := &fixture{
		users:         memory.NewUserRepository(),
		requests:      memory.NewRequestRepository(),
		receipts:      memory.NewReceiptRepository(),
		notifications: memory.NewNotificationRepository(),
		registry:      notify.NewRegistry(log),
		blobs:         blobs,
	}
	auditLog := audit.NewLogger(log)
	f.notifier = NewNotificationService(f.notifications, f.users, f.registry, log)
	f.requestSvc = NewRequestService(f.requests, f.users, f.notifier, f.blobs,
		security.NewAuthorizationService(log), auditLog, 1<<20, log)
	f.receiptSvc = NewReceiptService(f.receipts, f.blobs, auditLog, 1<<20, log)

	f.client = f.mkUser(t, "client@example.com", domain.RoleClient)
	f.other = f.mkUser(t, "other@example.com", domain.RoleClient)
	f.admin = f.mkUser(t, "admin@example.com", domain.RoleAdmin)
	f.admin2 = f.mkUser(t, "admin2@example.com", domain.RoleAdmin)
	return f
}

func (f *fixture) mkUser(t *testing.T, email string, role domain.Role) *domain.User {
	t.Helper()
	name := strings.Split(email, "@")[0]
	u := &domain.User{
		FirstName:     strings.ToUpper(name[:1]) + name[1:],
		LastName:      "Test",
		Email:         email,
		PasswordHash:  "x",
		Role:          role,
		EmailVerified: true,
	}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func (f *fixture) createRequest(t *testing.T, owner *domain.User, title string) *domain.Request {
	t.Helper()
	req, err := f.requestSvc.Create(context.Background(), owner, CreateRequestInput{
		Title:       title,
		Description: "Need a new site for the company",
		ProjectType: "web_app",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func (f *fixture) notificationsOf(t *testing.T, userID string, kind domain.NotificationType) []*domain.Notification {
	t.Helper()
	items, err := f.notifier.List(context.Background(), userID, 100, 0, false)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	var out []*domain.Notification
	for _, n := range items {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

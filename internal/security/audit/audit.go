package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/logger"
)

// Outcome values.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusDenied    = "denied"
	StatusInitiated = "initiated"
)

type Logger struct {
	logger *slog.Logger
}

func NewLogger(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{logger: l}
}

func (al *Logger) LogAction(ctx context.Context, userID, action, resource, resourceID, status, details string) {
	if al == nil {
		return
	}
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", logger.RequestID(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

// LogLogin records a login attempt. userID may be empty when the email was unknown.
func (al *Logger) LogLogin(ctx context.Context, userID, email string, ok bool) {
	status := StatusSuccess
	if !ok {
		status = StatusFailed
	}
	al.LogAction(ctx, userID, "login", "user", userID, status, email)
}

func (al *Logger) LogPasswordChange(ctx context.Context, userID, via string) {
	al.LogAction(ctx, userID, "password_change", "user", userID, StatusSuccess, via)
}

func (al *Logger) LogStatusChange(ctx context.Context, userID, requestID, from, to string) {
	al.LogAction(ctx, userID, "status_change", "request", requestID, StatusSuccess, from+" -> "+to)
}

func (al *Logger) LogDeletion(ctx context.Context, userID, resource, resourceID string) {
	al.LogAction(ctx, userID, "delete", resource, resourceID, StatusSuccess, "")
}

func (al *Logger) LogDenied(ctx context.Context, userID, reason string) {
	al.LogAction(ctx, userID, "access_denied", "api", "", StatusDenied, reason)
}

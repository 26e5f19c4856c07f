package featureflags

import (
	"os"
	"strings"
)

const (
	// RequireEmailVerification blocks login for unverified accounts.
	RequireEmailVerification = "require_email_verification"
	// WSAckMessages acknowledges inbound websocket frames.
	WSAckMessages = "ws_ack_messages"
	// NotificationTestEndpoint exposes POST /api/notifications/test/{userID}.
	NotificationTestEndpoint = "notification_test_endpoint"
)

var defaults = map[string]bool{
	RequireEmailVerification: true,
	WSAckMessages:            true,
	NotificationTestEndpoint: false,
}

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive).
// Unset flags fall back to their default.
func Enabled(name string) bool {
	v, ok := os.LookupEnv("FLAG_" + strings.ToUpper(name))
	if !ok || strings.TrimSpace(v) == "" {
		return defaults[name]
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

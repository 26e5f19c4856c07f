package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/featureflags"
	"github.com/aryan0dhankhar/requestdesk/internal/notify"
	"github.com/aryan0dhankhar/requestdesk/internal/security/auth"
	"github.com/aryan0dhankhar/requestdesk/internal/security/middleware"
)

const (
	pingPeriod = 30 * time.Second
	pongWait   = 2 * pingPeriod
	writeWait  = 10 * time.Second
	maxInbound = 4096
)

// NotificationSocket upgrades /api/notifications/ws/{userID} into the user's
// live notification channel.
type NotificationSocket struct {
	tokens         *auth.TokenManager
	users          middleware.UserLookup
	registry       *notify.Registry
	allowedOrigins []string
	logger         *slog.Logger
}

func NewNotificationSocket(
	tokens *auth.TokenManager,
	users middleware.UserLookup,
	registry *notify.Registry,
	allowedOrigins []string,
	logger *slog.Logger,
) *NotificationSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationSocket{
		tokens:         tokens,
		users:          users,
		registry:       registry,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// upgrader is initialized per-request to use instance's allowed origins
func (h *NotificationSocket) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients send no origin.
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if allowed == "*" || origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP authenticates before upgrading: a bad token is 401, a token for
// another user (or a deleted one) is 403.
func (h *NotificationSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, r, h.logger, apperr.Unauthorized("missing token"))
		return
	}
	subject, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		writeError(w, r, h.logger, apperr.Unauthorized("invalid or expired token"))
		return
	}
	if subject != userID {
		h.logger.Warn("websocket token mismatch", slog.String("user_id", userID), slog.String("subject", subject))
		writeError(w, r, h.logger, apperr.Forbidden("token does not match user"))
		return
	}
	if _, err := h.users.GetByID(r.Context(), userID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, r, h.logger, apperr.Forbidden("user no longer exists"))
			return
		}
		writeError(w, r, h.logger, err)
		return
	}

	upgrader := h.upgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	conn := &wsConn{ws: ws}
	h.registry.Connect(userID, conn)
	defer h.registry.DisconnectChannel(userID, conn)

	if err := conn.WriteJSON(map[string]any{
		"type":      "connection_established",
		"message":   "Conexión WebSocket establecida para notificaciones",
		"user_id":   userID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		h.logger.Warn("websocket greeting failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		return
	}

	done := make(chan struct{})
	defer close(done)
	go conn.keepAlive(done)

	h.readLoop(conn, userID)
}

// readLoop blocks until the client goes away. Inbound frames carry no
// commands; they are only acknowledged.
func (h *NotificationSocket) readLoop(conn *wsConn, userID string) {
	ws := conn.ws
	ws.SetReadLimit(maxInbound)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, _, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", slog.String("user_id", userID), slog.String("reason", err.Error()))
			}
			return
		}
		if msgType != websocket.TextMessage || !featureflags.Enabled(featureflags.WSAckMessages) {
			continue
		}
		if err := conn.WriteJSON(map[string]string{
			"type":    "message_received",
			"message": "Mensaje procesado correctamente",
		}); err != nil {
			return
		}
	}
}

// wsConn is a notify.Channel over a gorilla connection. gorilla allows one
// concurrent writer, so writes are serialised here.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/featureflags"
	"github.com/aryan0dhankhar/requestdesk/internal/service"
)

// NotificationHandler serves /api/notifications.
type NotificationHandler struct {
	notifications *service.NotificationService
	logger        *slog.Logger
}

func NewNotificationHandler(notifications *service.NotificationService, logger *slog.Logger) *NotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{notifications: notifications, logger: logger}
}

type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

type MarkAllReadResponse struct {
	Success    bool   `json:"success"`
	MarkedRead int    `json:"marked_read"`
	Message    string `json:"message"`
}

// List handles GET /api/notifications?skip=&limit=&unread_only=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items, err := h.notifications.List(r.Context(), user.ID, limit, skip, queryBool(r, "unread_only"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// UnreadCount handles GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := h.notifications.UnreadCount(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, UnreadCountResponse{UnreadCount: n})
}

// Stats handles GET /api/notifications/stats
func (h *NotificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	st, err := h.notifications.Stats(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Action handles POST /api/notifications/{id}/read and
// POST /api/notifications/test/{userID}.
func (h *NotificationHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.PathValue("action") == "read":
		h.MarkRead(w, r, r.PathValue("id"))
	case r.PathValue("id") == "test":
		h.SendTest(w, r, r.PathValue("action"))
	default:
		writeError(w, r, h.logger, apperr.NotFound("not found"))
	}
}

// MarkRead marks one notification read. Marking an already-read notification
// succeeds; a foreign or unknown id reports success=false.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request, id string) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok, err := h.notifications.MarkRead(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, MessageResponse{Success: false, Message: "No se pudo marcar la notificación como leída"})
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Notificación marcada como leída"})
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := h.notifications.MarkAllRead(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MarkAllReadResponse{
		Success:    true,
		MarkedRead: n,
		Message:    "Se marcaron las notificaciones como leídas",
	})
}

// Delete handles DELETE /api/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.notifications.Delete(r.Context(), user.ID, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Notificación eliminada"})
}

// Status handles GET /api/notifications/status (admin)
func (h *NotificationHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.notifications.Status())
}

// SendTest pushes a test frame to target. Admin only; it answers 404 while
// the feature flag is off.
func (h *NotificationHandler) SendTest(w http.ResponseWriter, r *http.Request, target string) {
	if !featureflags.Enabled(featureflags.NotificationTestEndpoint) {
		writeError(w, r, h.logger, apperr.NotFound("not found"))
		return
	}
	user, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !user.IsAdmin() {
		writeError(w, r, h.logger, apperr.Forbidden("insufficient permissions"))
		return
	}
	if h.notifications.SendTest(target, user.Email) {
		writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Notificación de prueba enviada a usuario " + target})
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: false, Message: "Usuario " + target + " no está conectado"})
}

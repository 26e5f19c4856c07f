package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/requestdesk/internal/domain"
	"github.com/aryan0dhankhar/requestdesk/internal/notify"
	"github.com/aryan0dhankhar/requestdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/requestdesk/internal/security/audit"
	"github.com/aryan0dhankhar/requestdesk/internal/security/auth"
	"github.com/aryan0dhankhar/requestdesk/internal/security/middleware"
	"github.com/aryan0dhankhar/requestdesk/internal/security/ratelimit"
	"github.com/aryan0dhankhar/requestdesk/internal/service"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Auth          *service.AuthService
	Requests      *service.RequestService
	Receipts      *service.ReceiptService
	Notifications *service.NotificationService
	Registry      *notify.Registry

	Tokens  *auth.TokenManager
	Users   middleware.UserLookup
	Limiter *ratelimit.Limiter
	Audit   *audit.Logger

	AllowedOrigins         []string
	AuthRateLimitPerMinute int
	MaxUploadBytes         int64

	// UploadDir is served under /uploads/ when set (local blob backend).
	UploadDir string
	// HealthChecks feed /readyz.
	HealthChecks map[string]Pinger

	Logger *slog.Logger
}

// NewRouter builds the mux and wraps it as
// requestID → sanitize → otelhttp → metrics → cors → mux.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	authH := NewAuthHandler(cfg.Auth, log)
	requestH := NewRequestHandler(cfg.Requests, cfg.MaxUploadBytes, log)
	receiptH := NewReceiptHandler(cfg.Receipts, cfg.MaxUploadBytes, log)
	notificationH := NewNotificationHandler(cfg.Notifications, log)
	socket := NewNotificationSocket(cfg.Tokens, cfg.Users, cfg.Registry, cfg.AllowedOrigins, log)
	health := NewHealthHandler(cfg.HealthChecks, log)

	perMinute := cfg.AuthRateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	public := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, httprate.LimitByIP(perMinute, time.Minute))
	}

	authenticated := func(h http.HandlerFunc, roles ...domain.Role) http.Handler {
		mws := []func(http.Handler) http.Handler{
			middleware.Authenticate(cfg.Tokens, cfg.Users, log),
			middleware.RateLimit(cfg.Limiter, log),
		}
		if len(roles) > 0 {
			mws = append(mws, middleware.RequireRole(cfg.Audit, roles...))
		}
		mws = append(mws, middleware.Audit(cfg.Audit))
		return middleware.Chain(h, mws...)
	}
	jsonBody := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.Chain(h, middleware.LimitBody(maxJSONBody), middleware.ValidateJSONContentType(log)).ServeHTTP
	}

	mux := http.NewServeMux()

	// Auth
	mux.Handle("POST /api/auth/register", public(jsonBody(authH.Register)))
	mux.Handle("POST /api/auth/login", public(jsonBody(authH.Login)))
	mux.Handle("POST /api/auth/forgot-password", public(jsonBody(authH.ForgotPassword)))
	mux.Handle("POST /api/auth/forgotpassword", public(jsonBody(authH.ForgotPassword)))
	mux.Handle("POST /api/auth/reset-password/{token}", public(jsonBody(authH.ResetPassword)))
	mux.Handle("PUT /api/auth/resetpassword/{token}", public(jsonBody(authH.ResetPassword)))
	mux.Handle("GET /api/auth/verify-email/{token}", http.HandlerFunc(authH.VerifyEmail))
	mux.Handle("POST /api/auth/resend-verification", public(jsonBody(authH.ResendVerification)))
	mux.Handle("GET /api/auth/me", authenticated(authH.Me))
	mux.Handle("PUT /api/auth/me", authenticated(jsonBody(authH.UpdateMe)))
	mux.Handle("POST /api/auth/change-password", authenticated(jsonBody(authH.ChangePassword)))

	// Requests
	mux.Handle("POST /api/requests", authenticated(jsonBody(requestH.Create), domain.RoleClient))
	mux.Handle("GET /api/requests", authenticated(requestH.List))
	mux.Handle("GET /api/requests/{id}", authenticated(requestH.Get))
	mux.Handle("PUT /api/requests/{id}", authenticated(jsonBody(requestH.Update)))
	mux.Handle("DELETE /api/requests/{id}", authenticated(requestH.Delete))
	mux.Handle("PATCH /api/requests/{id}/status", authenticated(jsonBody(requestH.ChangeStatus), domain.RoleAdmin))
	mux.Handle("POST /api/requests/{id}/comments", authenticated(jsonBody(requestH.AddComment)))
	mux.Handle("POST /api/requests/{id}/submit", authenticated(requestH.Submit, domain.RoleClient))
	mux.Handle("POST /api/requests/{id}/files", authenticated(requestH.UploadFile))
	mux.Handle("GET /api/requests/{id}/files/{fileID}", authenticated(requestH.DownloadFile))

	// Receipts
	mux.Handle("POST /api/receipts", authenticated(receiptH.Create))
	mux.Handle("GET /api/receipts", authenticated(receiptH.List))
	mux.Handle("GET /api/receipts/stats", authenticated(receiptH.Stats))
	mux.Handle("GET /api/receipts/{id}", authenticated(receiptH.Get))
	mux.Handle("PUT /api/receipts/{id}", authenticated(receiptH.Update))
	mux.Handle("PATCH /api/receipts/{id}/status", authenticated(jsonBody(receiptH.UpdateStatus)))
	mux.Handle("DELETE /api/receipts/{id}", authenticated(receiptH.Delete))

	// Notifications
	mux.Handle("GET /api/notifications", authenticated(notificationH.List))
	mux.Handle("GET /api/notifications/unread-count", authenticated(notificationH.UnreadCount))
	mux.Handle("GET /api/notifications/stats", authenticated(notificationH.Stats))
	// {id}/read and test/{userID} overlap as patterns, so one route dispatches both.
	mux.Handle("POST /api/notifications/{id}/{action}", authenticated(notificationH.Action))
	mux.Handle("POST /api/notifications/read-all", authenticated(notificationH.MarkAllRead))
	mux.Handle("DELETE /api/notifications/{id}", authenticated(notificationH.Delete))
	mux.Handle("GET /api/notifications/status", authenticated(notificationH.Status, domain.RoleAdmin))
	mux.Handle("GET /api/notifications/ws/{userID}", socket)
	mux.Handle("GET /api/notifications/ws/notifications/{userID}", socket)

	// Operations
	mux.HandleFunc("GET /healthz", health.Health)
	mux.HandleFunc("GET /readyz", health.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())
	if cfg.UploadDir != "" {
		mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	return middleware.Chain(mux,
		middleware.RequestID(log),
		middleware.SanitizeInputs(log),
		func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, "requestdesk") },
		metrics.HTTPMetricsMiddleware,
		corsHandler,
	)
}

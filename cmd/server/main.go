package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aryan0dhankhar/requestdesk/internal/domain"
	"github.com/aryan0dhankhar/requestdesk/internal/handler"
	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/mail"
	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/storage"
	"github.com/aryan0dhankhar/requestdesk/internal/notify"
	"github.com/aryan0dhankhar/requestdesk/internal/observability/tracing"
	"github.com/aryan0dhankhar/requestdesk/internal/repository"
	"github.com/aryan0dhankhar/requestdesk/internal/repository/memory"
	"github.com/aryan0dhankhar/requestdesk/internal/security"
	"github.com/aryan0dhankhar/requestdesk/internal/security/audit"
	"github.com/aryan0dhankhar/requestdesk/internal/security/auth"
	"github.com/aryan0dhankhar/requestdesk/internal/security/ratelimit"
	"github.com/aryan0dhankhar/requestdesk/internal/service"
	"github.com/aryan0dhankhar/requestdesk/pkg/config"
	"github.com/aryan0dhankhar/requestdesk/pkg/database"
)

type repositories struct {
	users         domain.UserRepository
	requests      domain.RequestRepository
	receipts      domain.ReceiptRepository
	notifications domain.NotificationRepository
}

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting requestdesk server",
		slog.String("environment", cfg.Environment),
		slog.String("storage", cfg.StorageBackend),
	)
	if cfg.UsingDevSecret() {
		log.Warn("JWT_SECRET not set, using development secret")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		ServiceName: "requestdesk",
		Environment: cfg.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// 3. Persistence
	checks := map[string]handler.Pinger{"database": nil, "redis": nil}
	var repos repositories
	switch cfg.StorageBackend {
	case "postgres":
		pool, err := database.NewConnectionPool(ctx, cfg.Database, log)
		if err != nil {
			log.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Migrate(ctx); err != nil {
			log.Error("failed to migrate database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		db := pool.GetDB()
		repos = repositories{
			users:         repository.NewPostgresUserRepository(db, log),
			requests:      repository.NewPostgresRequestRepository(db, log),
			receipts:      repository.NewPostgresReceiptRepository(db, log),
			notifications: repository.NewPostgresNotificationRepository(db, log),
		}
		checks["database"] = handler.PingFunc(pool.Health)
	default:
		log.Warn("using in-memory storage, data is lost on restart")
		repos = repositories{
			users:         memory.NewUserRepository(),
			requests:      memory.NewRequestRepository(),
			receipts:      memory.NewReceiptRepository(),
			notifications: memory.NewNotificationRepository(),
		}
	}

	// 4. Single-use token ledger
	var ledger auth.Ledger = auth.NewMemoryLedger()
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(cfg.RedisURL, log)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		ledger = auth.NewRedisLedger(redisClient)
		checks["redis"] = handler.PingFunc(redisClient.Ping)
	}

	// 5. Mail and blobs
	mailer, err := mail.NewMailer(newMailSender(cfg.Mail, log), cfg.Mail.From, log)
	if err != nil {
		log.Error("failed to initialize mailer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var blobs storage.Store
	uploadDir := ""
	switch cfg.Blob.Backend {
	case "s3":
		blobs, err = storage.NewS3Store(storage.S3Config{
			Bucket:    cfg.Blob.S3Bucket,
			Region:    cfg.Blob.S3Region,
			Endpoint:  cfg.Blob.S3Endpoint,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
		}, log)
	default:
		var local *storage.LocalStore
		local, err = storage.NewLocalStore(cfg.Blob.UploadDir, "/uploads", log)
		if err == nil {
			blobs = local
			uploadDir = local.Dir()
		}
	}
	if err != nil {
		log.Error("failed to initialize blob storage", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Security components and services
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	auditLogger := audit.NewLogger(log)
	registry := notify.NewRegistry(log)

	notifications := service.NewNotificationService(repos.notifications, repos.users, registry, log)
	requests := service.NewRequestService(repos.requests, repos.users, notifications, blobs,
		security.NewAuthorizationService(log), auditLogger, cfg.MaxUploadBytes, log)
	receipts := service.NewReceiptService(repos.receipts, blobs, auditLogger, cfg.MaxUploadBytes, log)
	authService := service.NewAuthService(repos.users, tokenManager, ledger, mailer, auditLogger, cfg.ClientURL, log)

	// 7. HTTP surface
	router := handler.NewRouter(handler.RouterConfig{
		Auth:                   authService,
		Requests:               requests,
		Receipts:               receipts,
		Notifications:          notifications,
		Registry:               registry,
		Tokens:                 tokenManager,
		Users:                  repos.users,
		Limiter:                rateLimiter,
		Audit:                  auditLogger,
		AllowedOrigins:         cfg.CORSAllowedOrigins,
		AuthRateLimitPerMinute: cfg.AuthRateLimitPerMinute,
		MaxUploadBytes:         cfg.MaxUploadBytes,
		UploadDir:              uploadDir,
		HealthChecks:           checks,
		Logger:                 log,
	})

	// WriteTimeout stays at zero: websocket connections are long-lived and
	// set their own write deadlines.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("blob_backend", cfg.Blob.Backend),
		slog.String("mail_provider", cfg.Mail.Provider),
		slog.Float64("rate_limit_rps", cfg.RateLimitRPS),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-sigChan:
		log.Info("shutdown signal received")
	case err := <-serverErr:
		log.Error("server error", slog.String("error", err.Error()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	for _, userID := range registry.Connected() {
		registry.Disconnect(userID)
	}
	log.Info("server stopped")
}

func newMailSender(cfg config.MailConfig, log *slog.Logger) mail.Sender {
	switch cfg.Provider {
	case "smtp":
		return mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			SSL:      cfg.SMTPSSL,
		})
	case "resend":
		return mail.NewResendSender(cfg.ResendAPIKey, "")
	default:
		return mail.NewLogSender(log)
	}
}

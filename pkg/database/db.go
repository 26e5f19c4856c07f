package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/aryan0dhankhar/requestdesk/internal/reliability/retry"
)

// Config holds database configuration
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the config as a postgres:// URL. Credentials are escaped, so
// passwords may contain any character.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// ConnectionPool owns the *sql.DB shared by every repository.
type ConnectionPool struct {
	db     *sql.DB
	logger *slog.Logger
}

// startupRetry gives a database that is still booting (compose, k8s) about
// half a minute before the server gives up.
var startupRetry = &retry.Config{
	MaxAttempts:       6,
	InitialBackoff:    time.Second,
	MaxBackoff:        10 * time.Second,
	BackoffMultiplier: 2,
}

// NewConnectionPool opens the pool, applies the limits and waits until the
// server answers a ping.
func NewConnectionPool(ctx context.Context, config *Config, logger *slog.Logger) (*ConnectionPool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(orDefault(config.MaxOpenConns, 25))
	db.SetMaxIdleConns(orDefault(config.MaxIdleConns, 5))
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pool := &ConnectionPool{db: db, logger: logger}
	_, err = retry.Do(ctx, startupRetry, logger, "database ping", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, pool.Health(ctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connected",
		slog.String("host", config.Host),
		slog.String("database", config.Database),
		slog.Int("max_open_conns", orDefault(config.MaxOpenConns, 25)),
	)
	return pool, nil
}

// GetDB returns the underlying sql.DB connection
func (cp *ConnectionPool) GetDB() *sql.DB {
	return cp.db
}

func (cp *ConnectionPool) Close() error {
	if cp.db == nil {
		return nil
	}
	return cp.db.Close()
}

// Health pings the server with a short timeout. It backs /readyz.
func (cp *ConnectionPool) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return cp.db.PingContext(ctx)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

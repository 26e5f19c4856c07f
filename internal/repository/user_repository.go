package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/domain"
)

// PostgresUserRepository implements domain.UserRepository using PostgreSQL
type PostgresUserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sql.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `id, first_name, last_name, email, password_hash, role, email_verified,
	verification_token, verification_expires, reset_token, reset_expires, created_at, updated_at`

// Create creates a new user
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = domain.RoleClient
	}

	query := `
		INSERT INTO users (id, first_name, last_name, email, password_hash, role, email_verified,
			verification_token, verification_expires, reset_token, reset_expires)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.EmailVerified,
		nullString(user.VerificationToken),
		nullTime(user.VerificationExpires),
		nullString(user.ResetToken),
		nullTime(user.ResetExpires),
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("email already registered")
		}
		r.logger.Error("failed to create user",
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return r.scanOne(row, "id", id)
}

// GetByEmail retrieves a user by email
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return r.scanOne(row, "email", email)
}

// GetMany resolves ids with a single ANY($1) query.
func (r *PostgresUserRepository) GetMany(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	out := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`, pq.Array(ids))
	if err != nil {
		r.logger.Error("failed to load users", slog.Int("count", len(ids)), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

// ListByRole returns every user holding role
func (r *PostgresUserRepository) ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY created_at`, string(role))
	if err != nil {
		r.logger.Error("failed to list users", slog.String("role", string(role)), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Update writes every mutable column of user
func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET first_name = $2, last_name = $3, email = $4, password_hash = $5, role = $6,
			email_verified = $7, verification_token = $8, verification_expires = $9,
			reset_token = $10, reset_expires = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.EmailVerified,
		nullString(user.VerificationToken),
		nullTime(user.VerificationExpires),
		nullString(user.ResetToken),
		nullTime(user.ResetExpires),
	).Scan(&user.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("user not found")
		}
		if isUniqueViolation(err) {
			return apperr.Conflict("email already registered")
		}
		r.logger.Error("failed to update user",
			slog.String("id", user.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}

func (r *PostgresUserRepository) scanOne(row *sql.Row, field, value string) (*domain.User, error) {
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		r.logger.Error("failed to get user",
			slog.String(field, value),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// scanUser normalises nullable columns and legacy roles into a domain.User.
func scanUser(s rowScanner) (*domain.User, error) {
	var (
		u                           domain.User
		role                        string
		verifyToken, resetToken     sql.NullString
		verifyExpires, resetExpires sql.NullTime
	)
	if err := s.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.PasswordHash,
		&role,
		&u.EmailVerified,
		&verifyToken,
		&verifyExpires,
		&resetToken,
		&resetExpires,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	if !u.Role.Valid() {
		u.Role = domain.RoleClient
	}
	u.VerificationToken = verifyToken.String
	u.VerificationExpires = timePtr(verifyExpires)
	u.ResetToken = resetToken.String
	u.ResetExpires = timePtr(resetExpires)
	return &u, nil
}

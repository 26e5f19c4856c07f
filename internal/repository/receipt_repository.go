package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/domain"
)

// PostgresReceiptRepository conjoins every query with user_id so foreign
// receipts look missing.
type PostgresReceiptRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresReceiptRepository(db *sql.DB, logger *slog.Logger) *PostgresReceiptRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresReceiptRepository{db: db, logger: logger}
}

const receiptColumns = `id, user_id, company_name, folio_number, receipt_date, description,
	total_amount, image_url, image_key, status, created_at, updated_at`

func (r *PostgresReceiptRepository) Create(ctx context.Context, rc *domain.Receipt) error {
	if rc.ID == "" {
		rc.ID = uuid.NewString()
	}
	query := `
		INSERT INTO receipts (id, user_id, company_name, folio_number, receipt_date, description,
			total_amount, image_url, image_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		rc.ID,
		rc.UserID,
		rc.CompanyName,
		rc.FolioNumber,
		rc.Date,
		rc.Description,
		rc.TotalAmount,
		nullStringPtr(rc.ImageURL),
		rc.ImageKey,
		string(rc.Status),
	).Scan(&rc.CreatedAt, &rc.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to create receipt",
			slog.String("user_id", rc.UserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create receipt: %w", err)
	}
	return nil
}

func (r *PostgresReceiptRepository) Get(ctx context.Context, id, ownerID string) (*domain.Receipt, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+receiptColumns+` FROM receipts WHERE id = $1 AND user_id = $2`, id, ownerID)
	rc, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("receipt not found")
		}
		r.logger.Error("failed to get receipt", slog.String("id", id), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return rc, nil
}

func (r *PostgresReceiptRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Receipt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+receiptColumns+` FROM receipts WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		r.logger.Error("failed to list receipts", slog.String("user_id", ownerID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	out := []*domain.Receipt{}
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *PostgresReceiptRepository) Update(ctx context.Context, rc *domain.Receipt) error {
	query := `
		UPDATE receipts
		SET company_name = $3, folio_number = $4, receipt_date = $5, description = $6,
			total_amount = $7, image_url = $8, image_key = $9, status = $10, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		rc.ID,
		rc.UserID,
		rc.CompanyName,
		rc.FolioNumber,
		rc.Date,
		rc.Description,
		rc.TotalAmount,
		nullStringPtr(rc.ImageURL),
		rc.ImageKey,
		string(rc.Status),
	).Scan(&rc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("receipt not found")
		}
		r.logger.Error("failed to update receipt", slog.String("id", rc.ID), slog.String("error", err.Error()))
		return fmt.Errorf("failed to update receipt: %w", err)
	}
	return nil
}

func (r *PostgresReceiptRepository) Delete(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM receipts WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		r.logger.Error("failed to delete receipt", slog.String("id", id), slog.String("error", err.Error()))
		return fmt.Errorf("failed to delete receipt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("receipt not found")
	}
	return nil
}

func (r *PostgresReceiptRepository) Stats(ctx context.Context, ownerID string) (*domain.ReceiptStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'en_revision'),
			COUNT(*) FILTER (WHERE status = 'aceptada'),
			COUNT(*) FILTER (WHERE status = 'rechazada'),
			COALESCE(SUM(total_amount) FILTER (WHERE status = 'aceptada'), 0)
		FROM receipts
		WHERE user_id = $1
	`
	var s domain.ReceiptStats
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(
		&s.TotalReceipts, &s.EnRevision, &s.Aceptadas, &s.Rechazadas, &s.TotalAmount)
	if err != nil {
		r.logger.Error("failed to compute receipt stats", slog.String("user_id", ownerID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to compute receipt stats: %w", err)
	}
	return &s, nil
}

func scanReceipt(s rowScanner) (*domain.Receipt, error) {
	var (
		rc       domain.Receipt
		imageURL sql.NullString
		status   string
	)
	if err := s.Scan(
		&rc.ID,
		&rc.UserID,
		&rc.CompanyName,
		&rc.FolioNumber,
		&rc.Date,
		&rc.Description,
		&rc.TotalAmount,
		&imageURL,
		&rc.ImageKey,
		&status,
		&rc.CreatedAt,
		&rc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rc.ImageURL = stringPtr(imageURL)
	rc.Status = domain.ReceiptStatus(status)
	if !rc.Status.Valid() {
		rc.Status = domain.ReceiptInReview
	}
	return &rc, nil
}

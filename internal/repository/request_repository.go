package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/domain"
)

// PostgresRequestRepository stores requests with comments, files and status
// history embedded as JSONB arrays. Appends use jsonb concatenation in a single
// UPDATE so concurrent writers never lose entries.
type PostgresRequestRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresRequestRepository(db *sql.DB, logger *slog.Logger) *PostgresRequestRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRequestRepository{db: db, logger: logger}
}

const requestColumns = `id, title, description, project_type, priority, budget, timeframe,
	business_goals, target_audience, additional_info, status, client_id, assigned_to, progress,
	comments, files, status_history, created_at, updated_at`

func (r *PostgresRequestRepository) Create(ctx context.Context, req *domain.Request) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	history, err := json.Marshal(req.StatusHistory)
	if err != nil {
		return fmt.Errorf("failed to encode status history: %w", err)
	}

	query := `
		INSERT INTO requests (id, title, description, project_type, priority, budget, timeframe,
			business_goals, target_audience, additional_info, status, client_id, assigned_to, progress,
			comments, files, status_history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			'[]'::jsonb, '[]'::jsonb, $15::jsonb, $16, $16)
	`
	_, err = r.db.ExecContext(ctx, query,
		req.ID,
		req.Title,
		req.Description,
		req.ProjectType,
		req.Priority,
		nullFloat(req.Budget),
		req.Timeframe,
		req.BusinessGoals,
		req.TargetAudience,
		req.AdditionalInfo,
		string(req.Status),
		req.ClientID,
		nullStringPtr(req.AssignedTo),
		req.Progress,
		string(history),
		req.CreatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create request",
			slog.String("client_id", req.ClientID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (r *PostgresRequestRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("request not found")
		}
		r.logger.Error("failed to get request", slog.String("id", id), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

func (r *PostgresRequestRepository) List(ctx context.Context, f domain.RequestFilter) ([]*domain.Request, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.ClientID != "" {
		add("client_id = $%d", f.ClientID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + escapeLikePattern(s) + "%"
		args = append(args, pattern)
		n := len(args)
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", n, n))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests`+cond, args...).Scan(&total); err != nil {
		r.logger.Error("failed to count requests", slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	args = append(args, f.Limit, f.Skip)
	query := fmt.Sprintf(`SELECT %s FROM requests%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		requestColumns, cond, len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list requests", slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var out []*domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, req)
	}
	return out, total, rows.Err()
}

func (r *PostgresRequestRepository) Update(ctx context.Context, id string, p domain.RequestPatch, change *domain.StatusChange, at time.Time) error {
	var (
		sets []string
		args = []any{id}
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Title != nil {
		set("title", *p.Title)
	}
	if p.Description != nil {
		set("description", *p.Description)
	}
	if p.ProjectType != nil {
		set("project_type", *p.ProjectType)
	}
	if p.Priority != nil {
		set("priority", *p.Priority)
	}
	if p.Budget != nil {
		set("budget", *p.Budget)
	}
	if p.Timeframe != nil {
		set("timeframe", *p.Timeframe)
	}
	if p.BusinessGoals != nil {
		set("business_goals", *p.BusinessGoals)
	}
	if p.TargetAudience != nil {
		set("target_audience", *p.TargetAudience)
	}
	if p.AdditionalInfo != nil {
		set("additional_info", *p.AdditionalInfo)
	}
	if p.Progress != nil {
		set("progress", *p.Progress)
	}
	if p.AssignedTo != nil {
		set("assigned_to", nullString(*p.AssignedTo))
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if change != nil {
		entry, err := json.Marshal([]domain.StatusChange{*change})
		if err != nil {
			return fmt.Errorf("failed to encode status change: %w", err)
		}
		args = append(args, string(entry))
		sets = append(sets, fmt.Sprintf("status_history = status_history || $%d::jsonb", len(args)))
	}
	set("updated_at", at)

	return r.exec(ctx, "update", id, `UPDATE requests SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
}

func (r *PostgresRequestRepository) AppendStatus(ctx context.Context, id string, change domain.StatusChange) error {
	entry, err := json.Marshal([]domain.StatusChange{change})
	if err != nil {
		return fmt.Errorf("failed to encode status change: %w", err)
	}
	return r.exec(ctx, "append status", id, `
		UPDATE requests
		SET status = $2, status_history = status_history || $3::jsonb, updated_at = $4
		WHERE id = $1`,
		id, string(change.ToStatus), string(entry), change.ChangedAt)
}

func (r *PostgresRequestRepository) AppendComment(ctx context.Context, id string, c domain.Comment) error {
	entry, err := json.Marshal([]domain.Comment{c})
	if err != nil {
		return fmt.Errorf("failed to encode comment: %w", err)
	}
	return r.exec(ctx, "append comment", id, `
		UPDATE requests SET comments = comments || $2::jsonb, updated_at = $3 WHERE id = $1`,
		id, string(entry), c.CreatedAt)
}

func (r *PostgresRequestRepository) AppendFile(ctx context.Context, id string, f domain.AttachedFile) error {
	entry, err := json.Marshal([]domain.AttachedFile{f})
	if err != nil {
		return fmt.Errorf("failed to encode file: %w", err)
	}
	return r.exec(ctx, "append file", id, `
		UPDATE requests SET files = files || $2::jsonb, updated_at = $3 WHERE id = $1`,
		id, string(entry), f.UploadedAt)
}

func (r *PostgresRequestRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "delete", id, `DELETE FROM requests WHERE id = $1`, id)
}

// exec runs a single-row statement and maps zero affected rows to NotFound.
func (r *PostgresRequestRepository) exec(ctx context.Context, op, id, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("request "+op+" failed", slog.String("id", id), slog.String("error", err.Error()))
		return fmt.Errorf("failed to %s request: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s request: %w", op, err)
	}
	if n == 0 {
		return apperr.NotFound("request not found")
	}
	return nil
}

func scanRequest(s rowScanner) (*domain.Request, error) {
	var (
		req                      domain.Request
		status                   string
		budget                   sql.NullFloat64
		assigned                 sql.NullString
		comments, files, history []byte
	)
	if err := s.Scan(
		&req.ID,
		&req.Title,
		&req.Description,
		&req.ProjectType,
		&req.Priority,
		&budget,
		&req.Timeframe,
		&req.BusinessGoals,
		&req.TargetAudience,
		&req.AdditionalInfo,
		&status,
		&req.ClientID,
		&assigned,
		&req.Progress,
		&comments,
		&files,
		&history,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	req.Status = domain.Status(status)
	if budget.Valid {
		b := budget.Float64
		req.Budget = &b
	}
	req.AssignedTo = stringPtr(assigned)
	if err := decodeArray(comments, &req.Comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	if err := decodeArray(files, &req.Files); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	if err := decodeArray(history, &req.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode status history: %w", err)
	}
	return &req, nil
}

func decodeArray[T any](raw []byte, dst *[]T) error {
	if len(raw) == 0 {
		*dst = []T{}
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	if *dst == nil {
		*dst = []T{}
	}
	return nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return nullString(*s)
}

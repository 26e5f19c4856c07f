package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/domain"
	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/storage"
	"github.com/aryan0dhankhar/requestdesk/internal/security/audit"
)

// ReceiptInput holds receipt fields. On create every field is required; on
// update nil means unchanged.
type ReceiptInput struct {
	CompanyName *string
	FolioNumber *string
	Date        *string
	Description *string
	TotalAmount *float64
}

// Attachment is an uploaded image.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ReceiptService manages expense receipts. Every query is scoped to the owner,
// so foreign ids are indistinguishable from missing ones.
type ReceiptService struct {
	receipts       domain.ReceiptRepository
	blobs          storage.Store
	audit          *audit.Logger
	logger         *slog.Logger
	maxUploadBytes int64
}

func NewReceiptService(
	receipts domain.ReceiptRepository,
	blobs storage.Store,
	auditLog *audit.Logger,
	maxUploadBytes int64,
	logger *slog.Logger,
) *ReceiptService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptService{
		receipts:       receipts,
		blobs:          blobs,
		audit:          auditLog,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

func (s *ReceiptService) Create(ctx context.Context, ownerID string, in ReceiptInput, image *Attachment) (*domain.Receipt, error) {
	if in.CompanyName == nil || in.FolioNumber == nil || in.Date == nil || in.Description == nil || in.TotalAmount == nil {
		return nil, apperr.Validation("companyName, folioNumber, date, description and totalAmount are required")
	}
	rc := &domain.Receipt{
		ID:     uuid.NewString(),
		UserID: ownerID,
		Status: domain.ReceiptInReview,
	}
	if err := applyReceiptInput(rc, in); err != nil {
		return nil, err
	}

	if image != nil {
		if err := s.storeImage(ctx, rc, image); err != nil {
			return nil, err
		}
	}

	if err := s.receipts.Create(ctx, rc); err != nil {
		s.removeBlob(ctx, rc.ImageKey)
		return nil, apperr.Internal("failed to create receipt", err)
	}
	s.logger.Info("receipt created", slog.String("receipt_id", rc.ID), slog.String("user_id", ownerID))
	return rc, nil
}

func (s *ReceiptService) List(ctx context.Context, ownerID string) ([]*domain.Receipt, error) {
	items, err := s.receipts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperr.Internal("failed to list receipts", err)
	}
	if items == nil {
		items = []*domain.Receipt{}
	}
	return items, nil
}

func (s *ReceiptService) Get(ctx context.Context, ownerID, id string) (*domain.Receipt, error) {
	if err := validateID(id, "receipt"); err != nil {
		return nil, err
	}
	rc, err := s.receipts.Get(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("receipt not found")
		}
		return nil, apperr.Internal("failed to load receipt", err)
	}
	return rc, nil
}

// Update patches fields and, when image is given, replaces the stored image.
// The previous blob is removed only after the record points at the new one.
func (s *ReceiptService) Update(ctx context.Context, ownerID, id string, in ReceiptInput, image *Attachment) (*domain.Receipt, error) {
	rc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := applyReceiptInput(rc, in); err != nil {
		return nil, err
	}

	oldKey := rc.ImageKey
	if image != nil {
		if err := s.storeImage(ctx, rc, image); err != nil {
			return nil, err
		}
	}

	if err := s.receipts.Update(ctx, rc); err != nil {
		if image != nil {
			s.removeBlob(ctx, rc.ImageKey)
		}
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("receipt not found")
		}
		return nil, apperr.Internal("failed to update receipt", err)
	}
	if image != nil && oldKey != "" && oldKey != rc.ImageKey {
		s.removeBlob(ctx, oldKey)
	}
	return rc, nil
}

func (s *ReceiptService) UpdateStatus(ctx context.Context, ownerID, id, status string) (*domain.Receipt, error) {
	st := domain.ReceiptStatus(strings.TrimSpace(status))
	if !st.Valid() {
		return nil, apperr.Validation("status must be one of en_revision, aceptada, rechazada")
	}
	rc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	rc.Status = st
	if err := s.receipts.Update(ctx, rc); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("receipt not found")
		}
		return nil, apperr.Internal("failed to update receipt status", err)
	}
	return rc, nil
}

// Delete removes the record, then its image.
func (s *ReceiptService) Delete(ctx context.Context, ownerID, id string) error {
	rc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.receipts.Delete(ctx, id, ownerID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.NotFound("receipt not found")
		}
		return apperr.Internal("failed to delete receipt", err)
	}
	s.removeBlob(ctx, rc.ImageKey)
	s.audit.LogDeletion(ctx, ownerID, "receipt", id)
	return nil
}

func (s *ReceiptService) Stats(ctx context.Context, ownerID string) (*domain.ReceiptStats, error) {
	st, err := s.receipts.Stats(ctx, ownerID)
	if err != nil {
		return nil, apperr.Internal("failed to compute receipt stats", err)
	}
	return st, nil
}

func (s *ReceiptService) storeImage(ctx context.Context, rc *domain.Receipt, image *Attachment) error {
	if s.maxUploadBytes > 0 && image.Size > s.maxUploadBytes {
		return apperr.Validationf("image exceeds the %d MB limit", s.maxUploadBytes>>20)
	}
	blob, err := s.blobs.Put(ctx, storage.NewKey("", image.Filename), image.Body, image.ContentType)
	if err != nil {
		return apperr.Internal("failed to store image", err)
	}
	rc.ImageKey = blob.Key
	rc.ImageURL = &blob.URL
	return nil
}

func (s *ReceiptService) removeBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to remove receipt image",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func applyReceiptInput(rc *domain.Receipt, in ReceiptInput) error {
	if v := trimPtr(in.CompanyName); v != nil {
		if *v == "" {
			return apperr.Validation("companyName is required")
		}
		rc.CompanyName = *v
	}
	if v := trimPtr(in.FolioNumber); v != nil {
		if *v == "" {
			return apperr.Validation("folioNumber is required")
		}
		rc.FolioNumber = *v
	}
	if v := trimPtr(in.Description); v != nil {
		if *v == "" {
			return apperr.Validation("description is required")
		}
		rc.Description = *v
	}
	if in.Date != nil {
		d, err := parseReceiptDate(*in.Date)
		if err != nil {
			return err
		}
		rc.Date = d
	}
	if in.TotalAmount != nil {
		if *in.TotalAmount < 0 {
			return apperr.Validation("totalAmount must be greater than or equal to 0")
		}
		rc.TotalAmount = *in.TotalAmount
	}
	return nil
}

// parseReceiptDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseReceiptDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperr.Validation("date must be RFC 3339 or YYYY-MM-DD")
}

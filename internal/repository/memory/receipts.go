package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/domain"
)

type ReceiptRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.Receipt
}

func NewReceiptRepository() *ReceiptRepository {
	return &ReceiptRepository{byID: map[string]*domain.Receipt{}}
}

func cloneReceipt(rc *domain.Receipt) *domain.Receipt {
	cp := *rc
	if rc.ImageURL != nil {
		u := *rc.ImageURL
		cp.ImageURL = &u
	}
	return &cp
}

func (r *ReceiptRepository) Create(_ context.Context, rc *domain.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rc.ID == "" {
		rc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rc.CreatedAt, rc.UpdatedAt = now, now
	r.byID[rc.ID] = cloneReceipt(rc)
	return nil
}

// owned returns the stored receipt only when ownerID matches. Caller holds the lock.
func (r *ReceiptRepository) owned(id, ownerID string) (*domain.Receipt, error) {
	rc, ok := r.byID[id]
	if !ok || rc.UserID != ownerID {
		return nil, apperr.NotFound("receipt not found")
	}
	return rc, nil
}

func (r *ReceiptRepository) Get(_ context.Context, id, ownerID string) (*domain.Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rc, err := r.owned(id, ownerID)
	if err != nil {
		return nil, err
	}
	return cloneReceipt(rc), nil
}

func (r *ReceiptRepository) ListByOwner(_ context.Context, ownerID string) ([]*domain.Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*domain.Receipt{}
	for _, rc := range r.byID {
		if rc.UserID == ownerID {
			out = append(out, cloneReceipt(rc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *ReceiptRepository) Update(_ context.Context, rc *domain.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, err := r.owned(rc.ID, rc.UserID)
	if err != nil {
		return err
	}
	rc.CreatedAt = old.CreatedAt
	rc.UpdatedAt = time.Now().UTC()
	r.byID[rc.ID] = cloneReceipt(rc)
	return nil
}

func (r *ReceiptRepository) Delete(_ context.Context, id, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.owned(id, ownerID); err != nil {
		return err
	}
	delete(r.byID, id)
	return nil
}

func (r *ReceiptRepository) Stats(_ context.Context, ownerID string) (*domain.ReceiptStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := &domain.ReceiptStats{}
	for _, rc := range r.byID {
		if rc.UserID != ownerID {
			continue
		}
		s.TotalReceipts++
		switch rc.Status {
		case domain.ReceiptInReview:
			s.EnRevision++
		case domain.ReceiptAccepted:
			s.Aceptadas++
			s.TotalAmount += rc.TotalAmount
		case domain.ReceiptRejected:
			s.Rechazadas++
		}
	}
	return s, nil
}

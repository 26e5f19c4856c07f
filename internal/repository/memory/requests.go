package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/domain"
)

type RequestRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.Request
}

func NewRequestRepository() *RequestRepository {
	return &RequestRepository{byID: map[string]*domain.Request{}}
}

func cloneRequest(r *domain.Request) *domain.Request {
	cp := *r
	cp.Comments = append([]domain.Comment{}, r.Comments...)
	cp.Files = append([]domain.AttachedFile{}, r.Files...)
	cp.StatusHistory = append([]domain.StatusChange{}, r.StatusHistory...)
	return &cp
}

func (r *RequestRepository) Create(_ context.Context, req *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.UpdatedAt = req.CreatedAt
	r.byID[req.ID] = cloneRequest(req)
	return nil
}

func (r *RequestRepository) GetByID(_ context.Context, id string) (*domain.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.byID[id]
	if !ok {
		return nil, apperr.NotFound("request not found")
	}
	return cloneRequest(req), nil
}

func (r *RequestRepository) List(_ context.Context, f domain.RequestFilter) ([]*domain.Request, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []*domain.Request
	for _, req := range r.byID {
		if f.ClientID != "" && req.ClientID != f.ClientID {
			continue
		}
		if f.Status != "" && req.Status != f.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(req.Title), search) &&
			!strings.Contains(strings.ToLower(req.Description), search) {
			continue
		}
		matched = append(matched, req)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := min(f.Skip, total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	out := make([]*domain.Request, 0, end-start)
	for _, req := range matched[start:end] {
		out = append(out, cloneRequest(req))
	}
	return out, total, nil
}

func (r *RequestRepository) Update(_ context.Context, id string, p domain.RequestPatch, change *domain.StatusChange, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.byID[id]
	if !ok {
		return apperr.NotFound("request not found")
	}
	if p.Title != nil {
		req.Title = *p.Title
	}
	if p.Description != nil {
		req.Description = *p.Description
	}
	if p.ProjectType != nil {
		req.ProjectType = *p.ProjectType
	}
	if p.Priority != nil {
		req.Priority = *p.Priority
	}
	if p.Budget != nil {
		b := *p.Budget
		req.Budget = &b
	}
	if p.Timeframe != nil {
		req.Timeframe = *p.Timeframe
	}
	if p.BusinessGoals != nil {
		req.BusinessGoals = *p.BusinessGoals
	}
	if p.TargetAudience != nil {
		req.TargetAudience = *p.TargetAudience
	}
	if p.AdditionalInfo != nil {
		req.AdditionalInfo = *p.AdditionalInfo
	}
	if p.Progress != nil {
		req.Progress = *p.Progress
	}
	if p.AssignedTo != nil {
		if *p.AssignedTo == "" {
			req.AssignedTo = nil
		} else {
			a := *p.AssignedTo
			req.AssignedTo = &a
		}
	}
	if p.Status != nil {
		req.Status = *p.Status
	}
	if change != nil {
		req.StatusHistory = append(req.StatusHistory, *change)
	}
	req.UpdatedAt = at
	return nil
}

func (r *RequestRepository) AppendStatus(_ context.Context, id string, change domain.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.byID[id]
	if !ok {
		return apperr.NotFound("request not found")
	}
	req.Status = change.ToStatus
	req.StatusHistory = append(req.StatusHistory, change)
	req.UpdatedAt = change.ChangedAt
	return nil
}

func (r *RequestRepository) AppendComment(_ context.Context, id string, c domain.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.byID[id]
	if !ok {
		return apperr.NotFound("request not found")
	}
	req.Comments = append(req.Comments, c)
	req.UpdatedAt = c.CreatedAt
	return nil
}

func (r *RequestRepository) AppendFile(_ context.Context, id string, f domain.AttachedFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.byID[id]
	if !ok {
		return apperr.NotFound("request not found")
	}
	req.Files = append(req.Files, f)
	req.UpdatedAt = f.UploadedAt
	return nil
}

func (r *RequestRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return apperr.NotFound("request not found")
	}
	delete(r.byID, id)
	return nil
}

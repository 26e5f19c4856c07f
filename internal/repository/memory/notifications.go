package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/requestdesk/internal/domain"
)

type NotificationRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.Notification
	// seq breaks created_at ties so newest-first is stable.
	seq   map[string]int64
	next  int64
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{items: map[string]*domain.Notification{}, seq: map[string]int64{}}
}

func cloneNotification(n *domain.Notification) *domain.Notification {
	cp := *n
	cp.Data = make(map[string]any, len(n.Data))
	for k, v := range n.Data {
		cp.Data[k] = v
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		cp.ReadAt = &t
	}
	return &cp
}

func (r *NotificationRepository) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	r.next++
	r.seq[n.ID] = r.next
	r.items[n.ID] = cloneNotification(n)
	return nil
}

func (r *NotificationRepository) List(_ context.Context, userID string, limit, skip int, unreadOnly bool) ([]*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*domain.Notification
	for _, n := range r.items {
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		matched = append(matched, n)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return r.seq[matched[i].ID] > r.seq[matched[j].ID]
	})
	start := min(skip, len(matched))
	end := min(start+limit, len(matched))
	out := make([]*domain.Notification, 0, end-start)
	for _, n := range matched[start:end] {
		out = append(out, cloneNotification(n))
	}
	return out, nil
}

func (r *NotificationRepository) MarkRead(_ context.Context, id, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok || n.UserID != userID {
		return false, nil
	}
	if !n.Read {
		n.Read = true
		t := at
		n.ReadAt = &t
	}
	return true, nil
}

func (r *NotificationRepository) MarkAllRead(_ context.Context, userID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.items {
		if n.UserID == userID && !n.Read {
			n.Read = true
			t := at
			n.ReadAt = &t
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) CountUnread(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, n := range r.items {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) Stats(_ context.Context, userID string) (*domain.NotificationStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := &domain.NotificationStats{ByType: map[string]int{}}
	for _, n := range r.items {
		if n.UserID != userID {
			continue
		}
		s.Total++
		if n.Read {
			s.Read++
		} else {
			s.Unread++
		}
		s.ByType[string(n.Type)]++
	}
	return s, nil
}

func (r *NotificationRepository) Delete(_ context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok || n.UserID != userID {
		return false, nil
	}
	delete(r.items, id)
	delete(r.seq, id)
	return true, nil
}

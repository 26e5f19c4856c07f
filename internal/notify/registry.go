// Package notify keeps the process-local map of users to their live channel.
package notify

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aryan0dhankhar/requestdesk/internal/observability/metrics"
)

// Channel is a live, bidirectional connection to one client. Implementations
// must serialise their own writes.
type Channel interface {
	WriteJSON(v any) error
	Close() error
}

// Registry maps a user to at most one live channel. It is safe for concurrent use.
// Delivery is best effort: nothing is queued for offline users.
type Registry struct {
	mu       sync.Mutex
	channels map[string]Channel
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{channels: map[string]Channel{}, logger: logger}
}

// Connect registers ch for userID. A previous channel for the same user is closed.
func (r *Registry) Connect(userID string, ch Channel) {
	r.mu.Lock()
	prev := r.channels[userID]
	r.channels[userID] = ch
	n := len(r.channels)
	r.mu.Unlock()

	metrics.SetLiveConnections(n)
	if prev != nil && prev != ch {
		_ = prev.Close()
		r.logger.Info("live channel replaced", slog.String("user_id", userID))
		return
	}
	r.logger.Info("live channel connected", slog.String("user_id", userID))
}

// Disconnect removes the user's channel. Calling it for an absent user is a no-op.
func (r *Registry) Disconnect(userID string) {
	r.mu.Lock()
	ch, ok := r.channels[userID]
	delete(r.channels, userID)
	n := len(r.channels)
	r.mu.Unlock()

	if ok {
		metrics.SetLiveConnections(n)
		_ = ch.Close()
		r.logger.Info("live channel disconnected", slog.String("user_id", userID))
	}
}

// DisconnectChannel removes userID only while ch is still its registered
// channel, so a replaced connection cannot evict its successor.
func (r *Registry) DisconnectChannel(userID string, ch Channel) {
	r.mu.Lock()
	current, ok := r.channels[userID]
	if !ok || current != ch {
		r.mu.Unlock()
		return
	}
	delete(r.channels, userID)
	n := len(r.channels)
	r.mu.Unlock()

	metrics.SetLiveConnections(n)
	_ = ch.Close()
	r.logger.Info("live channel disconnected", slog.String("user_id", userID))
}

// SendTo pushes payload to userID. It reports false when the user is offline or
// the write fails; a failing channel is dropped.
func (r *Registry) SendTo(userID string, payload any) bool {
	r.mu.Lock()
	ch, ok := r.channels[userID]
	r.mu.Unlock()
	if !ok {
		metrics.ObservePush("offline")
		return false
	}
	if err := safeWrite(ch, payload); err != nil {
		r.logger.Warn("live push failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		metrics.ObservePush("failed")
		r.DisconnectChannel(userID, ch)
		return false
	}
	metrics.ObservePush("delivered")
	return true
}

// Broadcast pushes payload to every live channel except excludeUserID and
// returns how many deliveries succeeded.
func (r *Registry) Broadcast(payload any, excludeUserID string) int {
	r.mu.Lock()
	targets := make(map[string]Channel, len(r.channels))
	for id, ch := range r.channels {
		if id != excludeUserID {
			targets[id] = ch
		}
	}
	r.mu.Unlock()

	delivered := 0
	for id, ch := range targets {
		if err := safeWrite(ch, payload); err != nil {
			r.logger.Warn("broadcast push failed",
				slog.String("user_id", id),
				slog.String("error", err.Error()),
			)
			metrics.ObservePush("failed")
			r.DisconnectChannel(id, ch)
			continue
		}
		metrics.ObservePush("delivered")
		delivered++
	}
	return delivered
}

// Connected lists users with a live channel, sorted.
func (r *Registry) Connected() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.channels))
	for id := range r.channels {
		out = append(out, id)
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}

// IsConnected reports whether userID holds a live channel.
func (r *Registry) IsConnected(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.channels[userID]
	return ok
}

// safeWrite converts a panicking channel into an error.
func safeWrite(ch Channel, payload any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError{rec}
		}
	}()
	return ch.WriteJSON(payload)
}

type panicError struct{ v any }

func (p panicError) Error() string {
	return fmt.Sprintf("channel write panicked: %v", p.v)
}

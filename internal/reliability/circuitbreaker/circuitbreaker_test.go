package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerTripsAndRecovers(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var transitions []string
	cb := New(Settings{
		Name:             "mail_smtp",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
		OnStateChange: func(name string, from, to State) {
			if name != "mail_smtp" {
				t.Errorf("callback name = %q", name)
			}
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	cb.now = func() time.Time { return now }

	fail := func(context.Context) error { return errors.New("smtp down") }
	ok := func(context.Context) error { return nil }
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatalf("expected open after 2 failures, got %v", cb.State())
	}
	if err := cb.Execute(ctx, ok); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Execute(ctx, ok); err != nil {
		t.Fatalf("expected half-open trial to pass, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got %v", cb.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("unexpected transitions %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transition %d: got %s want %s", i, transitions[i], want[i])
		}
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New(Settings{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Second})
	cb.now = func() time.Time { return now }
	ctx := context.Background()
	boom := errors.New("boom")

	_ = cb.Execute(ctx, func(context.Context) error { return boom })
	now = now.Add(2 * time.Second)
	if err := cb.Execute(ctx, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("trial call should run, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("failed trial should reopen, got %v", cb.State())
	}
	if err := cb.Execute(ctx, func(context.Context) error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("reopened breaker should reject, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New(Settings{FailureThreshold: 2, OpenTimeout: time.Minute})
	ctx := context.Background()
	fail := func(context.Context) error { return errors.New("x") }

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, func(context.Context) error { return nil })
	_ = cb.Execute(ctx, fail)
	if cb.State() != StateClosed {
		t.Fatalf("non-consecutive failures should not trip, got %v", cb.State())
	}
}

func TestCancellationDoesNotTrip(t *testing.T) {
	cb := New(Settings{FailureThreshold: 1, OpenTimeout: time.Minute})
	_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	if cb.State() != StateClosed {
		t.Fatalf("cancellation should not open the breaker")
	}
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() *Config {
	return &Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffMultiplier: 2}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(), nil, "flaky", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("temporary")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("expected ok, got %q %v", got, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	bad := errors.New("422 unprocessable")
	_, err := Do(context.Background(), fastConfig(), nil, "send", func(context.Context) (int, error) {
		calls++
		return 0, Permanent(bad)
	})
	if !errors.Is(err, bad) {
		t.Fatalf("expected underlying error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent error retried %d times", calls)
	}
}

func TestDoGivesUp(t *testing.T) {
	boom := errors.New("boom")
	_, err := Do(context.Background(), fastConfig(), nil, "send", func(context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, fastConfig(), nil, "send", func(context.Context) (int, error) {
		t.Fatal("fn must not run")
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDelayGrowsAndCaps(t *testing.T) {
	cfg := &Config{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, BackoffMultiplier: 2}
	if got := cfg.delay(0); got != time.Second {
		t.Fatalf("first wait = %v", got)
	}
	if got := cfg.delay(1); got != 2*time.Second {
		t.Fatalf("second wait = %v", got)
	}
	if got := cfg.delay(5); got != 3*time.Second {
		t.Fatalf("expected cap, got %v", got)
	}
}

func TestDelayJitterStaysInBand(t *testing.T) {
	cfg := &Config{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2, Jitter: 0.5}
	for i := 0; i < 50; i++ {
		got := cfg.delay(1)
		if got < 100*time.Millisecond || got > 300*time.Millisecond {
			t.Fatalf("jittered wait %v outside [100ms,300ms]", got)
		}
	}
}

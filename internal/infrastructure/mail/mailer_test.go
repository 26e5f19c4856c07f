package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/requestdesk/internal/reliability/retry"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []Message
	errs []error
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func fastMailer(t *testing.T, s Sender) *Mailer {
	t.Helper()
	m, err := NewMailer(s, "no-reply@example.com", logger.Discard())
	if err != nil {
		t.Fatalf("new mailer: %v", err)
	}
	m.retry = &retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	return m
}

func TestSendVerificationRendersLink(t *testing.T) {
	s := &recordingSender{}
	m := fastMailer(t, s)
	link := "http://localhost:5173/verify-email/abc.def"
	if err := m.SendVerification(context.Background(), "ana@example.com", "Ana", link); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(s.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(s.msgs))
	}
	msg := s.msgs[0]
	if msg.To != "ana@example.com" || msg.From != "no-reply@example.com" {
		t.Errorf("unexpected envelope %+v", msg)
	}
	if !strings.Contains(msg.HTML, link) || !strings.Contains(msg.Text, link) {
		t.Errorf("link missing from body")
	}
	if !strings.Contains(msg.HTML, "24 horas") {
		t.Errorf("expected ttl in html")
	}
}

func TestSendRetriesTransientFailures(t *testing.T) {
	s := &recordingSender{errs: []error{errors.New("421 try later")}}
	m := fastMailer(t, s)
	if err := m.SendPasswordReset(context.Background(), "ana@example.com", "Ana", "http://x/reset"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(s.msgs) != 1 {
		t.Fatalf("expected delivery after retry")
	}
}

func TestResendSenderPostsPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" || r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1"}`))
	}))
	defer srv.Close()

	s := NewResendSender("key", srv.URL)
	err := s.Send(context.Background(), Message{From: "a@x", To: "b@x", Subject: "hi", HTML: "<p>hi</p>", Text: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["subject"] != "hi" || got["text"] != "hi" {
		t.Fatalf("unexpected payload %v", got)
	}
}

func TestResendClientErrorIsPermanent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"message":"invalid from"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	m := fastMailer(t, NewResendSender("key", srv.URL))
	if err := m.SendVerification(context.Background(), "b@x", "B", "http://x"); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("4xx should not be retried, got %d calls", calls)
	}
}

func TestBuildMIMEHasBothParts(t *testing.T) {
	raw := string(buildMIME(Message{From: "a@x", To: "b@x", Subject: "Restablece tu contraseña", HTML: "<b>x</b>", Text: "x"}))
	if !strings.Contains(raw, "text/plain") || !strings.Contains(raw, "text/html") {
		t.Fatalf("missing parts:\n%s", raw)
	}
	if strings.Contains(raw, "Subject: Restablece tu contraseña") {
		t.Fatalf("non-ascii subject must be encoded")
	}
}

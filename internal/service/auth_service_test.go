package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/requestdesk/internal/repository/memory"
	"github.com/aryan0dhankhar/requestdesk/internal/security/audit"
	"github.com/aryan0dhankhar/requestdesk/internal/security/auth"
)

const testClientURL = "http://localhost:5173"

type sentMail struct {
	kind, to, link string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) SendVerification(_ context.Context, to, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{"verify", to, link})
	return nil
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, to, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{"reset", to, link})
	return nil
}

// lastToken returns the token from the most recent mail of kind.
func (m *recordingMailer) lastToken(t *testing.T, kind string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			link := m.sent[i].link
			return link[strings.LastIndex(link, "/")+1:]
		}
	}
	t.Fatalf("no %s mail sent", kind)
	return ""
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func newAuthService(t *testing.T) (*AuthService, *recordingMailer, *auth.TokenManager) {
	t.Helper()
	tokens := auth.NewTokenManager("test-secret", "requestdesk")
	mailer := &recordingMailer{}
	log := logger.Discard()
	svc := NewAuthService(memory.NewUserRepository(), tokens, auth.NewMemoryLedger(), mailer, audit.NewLogger(log), testClientURL, log)
	return svc, mailer, tokens
}

func register(t *testing.T, svc *AuthService, email, password string) *RegisterResult {
	t.Helper()
	res, err := svc.Register(context.Background(), RegisterInput{
		FirstName: "Ana", LastName: "García", Email: email, Password: password,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return res
}

func TestRegisterVerifyLogin(t *testing.T) {
	svc, mailer, tokens := newAuthService(t)
	ctx := context.Background()

	res := register(t, svc, "  Ana@Example.com ", "Password123")
	if !res.RequiresVerification || res.User.Email != "ana@example.com" || res.User.Role != "client" {
		t.Fatalf("unexpected register result %+v", res)
	}

	_, err := svc.Login(ctx, "ana@example.com", "Password123")
	var unverified *UnverifiedEmailError
	if !errors.As(err, &unverified) || !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected unverified error, got %v", err)
	}
	if !strings.HasPrefix(unverified.VerificationURL, testClientURL+"/verify-email/") {
		t.Fatalf("unexpected verification url %q", unverified.VerificationURL)
	}

	token := mailer.lastToken(t, "verify")
	v, err := svc.VerifyEmail(ctx, token)
	if err != nil || v.AccessToken == "" {
		t.Fatalf("verify: %+v %v", v, err)
	}
	again, err := svc.VerifyEmail(ctx, token)
	if err != nil || again.Message != "Email already verified" {
		t.Fatalf("second verify: %+v %v", again, err)
	}

	login, err := svc.Login(ctx, "ANA@example.com", "Password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	sub, err := tokens.ValidateAccessToken(login.User.Token)
	if err != nil || sub != login.User.ID {
		t.Fatalf("access token subject %q, err %v", sub, err)
	}
}

func TestLoginWithoutVerificationWhenFlagOff(t *testing.T) {
	t.Setenv("FLAG_REQUIRE_EMAIL_VERIFICATION", "false")
	svc, _, _ := newAuthService(t)
	register(t, svc, "bob@example.com", "Password123")
	if _, err := svc.Login(context.Background(), "bob@example.com", "Password123"); err != nil {
		t.Fatalf("login should succeed with verification disabled: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newAuthService(t)
	register(t, svc, "taken@example.com", "Password123")

	cases := []RegisterInput{
		{FirstName: "A", LastName: "B", Email: "taken@example.com", Password: "Password123"},
		{FirstName: "A", LastName: "B", Email: "not-an-email", Password: "Password123"},
		{FirstName: "A", LastName: "B", Email: "short@example.com", Password: "short"},
		{FirstName: "", LastName: "B", Email: "noname@example.com", Password: "Password123"},
	}
	for _, in := range cases {
		if _, err := svc.Register(context.Background(), in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%+v: expected validation error, got %v", in, err)
		}
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newAuthService(t)
	register(t, svc, "carl@example.com", "Password123")

	for _, tc := range [][2]string{{"carl@example.com", "wrong-password"}, {"ghost@example.com", "Password123"}} {
		_, err := svc.Login(context.Background(), tc[0], tc[1])
		if !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("%s: expected unauthorized, got %v", tc[0], err)
		}
	}
}

func TestForgotPasswordUnknownEmailSucceeds(t *testing.T) {
	svc, mailer, _ := newAuthService(t)
	if err := svc.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	if err := svc.ResendVerification(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("resend verification: %v", err)
	}
	if mailer.count() != 0 {
		t.Fatalf("no mail should be sent for unknown emails")
	}
}

func TestResetPasswordIsSingleUse(t *testing.T) {
	t.Setenv("FLAG_REQUIRE_EMAIL_VERIFICATION", "false")
	svc, mailer, _ := newAuthService(t)
	ctx := context.Background()
	register(t, svc, "dana@example.com", "Password123")

	if err := svc.ForgotPassword(ctx, "dana@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	token := mailer.lastToken(t, "reset")

	// Race two resets with the same token: exactly one may win.
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ResetPassword(ctx, token, "NewPassword456"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("unexpected error kind: %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("expected exactly one successful reset, got %d", successes)
	}

	if _, err := svc.ResetPassword(ctx, token, "Another789"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("reused token should be rejected, got %v", err)
	}
	if _, err := svc.Login(ctx, "dana@example.com", "NewPassword456"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestResetPasswordRejectsVerificationToken(t *testing.T) {
	svc, mailer, _ := newAuthService(t)
	register(t, svc, "eve@example.com", "Password123")
	verify := mailer.lastToken(t, "verify")
	if _, err := svc.ResetPassword(context.Background(), verify, "NewPassword456"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestChangePasswordAndProfile(t *testing.T) {
	t.Setenv("FLAG_REQUIRE_EMAIL_VERIFICATION", "false")
	svc, _, _ := newAuthService(t)
	ctx := context.Background()
	res := register(t, svc, "fay@example.com", "Password123")

	if err := svc.ChangePassword(ctx, res.User.ID, "wrong", "NewPassword456"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for wrong old password, got %v", err)
	}
	if err := svc.ChangePassword(ctx, res.User.ID, "Password123", "NewPassword456"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Login(ctx, "fay@example.com", "NewPassword456"); err != nil {
		t.Fatalf("login after change: %v", err)
	}

	me, err := svc.UpdateProfile(ctx, res.User.ID, ProfilePatch{FirstName: ptr("  Fabiola ")})
	if err != nil || me.FirstName != "Fabiola" || me.LastName != "García" {
		t.Fatalf("update profile: %+v %v", me, err)
	}
	if _, err := svc.UpdateProfile(ctx, res.User.ID, ProfilePatch{LastName: ptr(" ")}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("blank last name should be rejected, got %v", err)
	}
}

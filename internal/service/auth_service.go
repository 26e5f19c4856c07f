package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/domain"
	"github.com/aryan0dhankhar/requestdesk/internal/featureflags"
	"github.com/aryan0dhankhar/requestdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/requestdesk/internal/security/audit"
	"github.com/aryan0dhankhar/requestdesk/internal/security/auth"
)

// Mailer delivers account emails. *mail.Mailer satisfies it.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, link string) error
	SendPasswordReset(ctx context.Context, to, name, link string) error
}

// AuthService handles registration, login and the single-use token flows.
type AuthService struct {
	users     domain.UserRepository
	tokens    *auth.TokenManager
	ledger    auth.Ledger
	mailer    Mailer
	audit     *audit.Logger
	clientURL string
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuthService(
	users domain.UserRepository,
	tokens *auth.TokenManager,
	ledger auth.Ledger,
	mailer Mailer,
	auditLog *audit.Logger,
	clientURL string,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		ledger:    ledger,
		mailer:    mailer,
		audit:     auditLog,
		clientURL: strings.TrimRight(clientURL, "/"),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AuthenticatedUser is the user summary plus a bearer token.
type AuthenticatedUser struct {
	domain.UserSummary
	EmailVerified bool   `json:"emailVerified"`
	Token         string `json:"token"`
}

type RegisterResult struct {
	Success              bool               `json:"success"`
	Message              string             `json:"message"`
	RequiresVerification bool               `json:"requiresVerification"`
	User                 domain.UserSummary `json:"user"`
}

type LoginResult struct {
	Success bool              `json:"success"`
	User    AuthenticatedUser `json:"user"`
}

type VerifyResult struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message"`
	AccessToken string              `json:"accessToken,omitempty"`
	User        *domain.UserSummary `json:"user,omitempty"`
}

type ResetResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
}

// UnverifiedEmailError is returned by Login while the account is unverified.
// It matches apperr.ErrForbidden.
type UnverifiedEmailError struct {
	Email           string
	VerificationURL string
}

func (e *UnverifiedEmailError) Error() string { return "Email not verified. Check your inbox." }
func (e *UnverifiedEmailError) Unwrap() error { return apperr.ErrForbidden }

// RegisterInput carries the registration form.
type RegisterInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Register creates an unverified client account and mails the verification link.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if firstName == "" || lastName == "" {
		return nil, apperr.Validation("firstName and lastName are required")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, apperr.Validationf("password must be at least %d characters", auth.MinPasswordLength)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperr.Validation("email already registered")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Internal("failed to check email", err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal("failed to register user", err)
	}

	user := &domain.User{
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleClient,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Validation("email already registered")
		}
		return nil, apperr.Internal("failed to register user", err)
	}

	// The verification token embeds the user id, so it is issued after insert.
	link, err := s.refreshVerificationToken(ctx, user)
	if err != nil {
		s.logger.Error("failed to issue verification token",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		s.sendVerification(ctx, user, link)
	}

	metrics.ObserveAuth("register", "ok")
	s.logger.Info("user registered", slog.String("user_id", user.ID))

	return &RegisterResult{
		Success:              true,
		Message:              "User registered successfully. Please check your e-mail.",
		RequiresVerification: true,
		User:                 user.Summary(),
	}, nil
}

// Login checks credentials and returns an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Internal("failed to load user", err)
	}
	if user == nil || !auth.CheckPassword(password, user.PasswordHash) {
		userID := ""
		if user != nil {
			userID = user.ID
		}
		s.audit.LogLogin(ctx, userID, email, false)
		metrics.ObserveAuth("login", "invalid_credentials")
		return nil, apperr.Unauthorized("Incorrect email or password")
	}

	if !user.EmailVerified && featureflags.Enabled(featureflags.RequireEmailVerification) {
		link, err := s.currentVerificationLink(ctx, user)
		if err != nil {
			return nil, apperr.Internal("failed to refresh verification token", err)
		}
		metrics.ObserveAuth("login", "unverified")
		return nil, &UnverifiedEmailError{Email: user.Email, VerificationURL: link}
	}

	token, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, apperr.Internal("failed to issue token", err)
	}

	s.audit.LogLogin(ctx, user.ID, email, true)
	metrics.ObserveAuth("login", "ok")
	return &LoginResult{
		Success: true,
		User: AuthenticatedUser{
			UserSummary:   user.Summary(),
			EmailVerified: user.EmailVerified,
			Token:         token,
		},
	}, nil
}

// ForgotPassword always succeeds so callers cannot probe for accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, ok := s.lookupQuietly(ctx, email)
	if !ok {
		return nil
	}

	token, err := s.tokens.IssueSingleUseToken(user.ID, auth.PurposeResetPassword, auth.ResetTokenTTL)
	if err != nil {
		s.logger.Error("failed to issue reset token", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return nil
	}
	expires := s.now().Add(auth.ResetTokenTTL)
	user.ResetToken = token
	user.ResetExpires = &expires
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Error("failed to store reset token", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return nil
	}

	link := s.clientURL + "/reset-password/" + token
	if err := s.mailer.SendPasswordReset(ctx, user.Email, fullName(user), link); err != nil {
		s.logger.Warn("password reset email not sent",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	metrics.ObserveAuth("forgot_password", "ok")
	return nil
}

// ResetPassword spends a reset token and sets a new password.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (*ResetResult, error) {
	if len(newPassword) < auth.MinPasswordLength {
		return nil, apperr.Validationf("password must be at least %d characters", auth.MinPasswordLength)
	}
	invalid := apperr.Validation("Invalid or expired token")

	claims, err := s.tokens.ValidateToken(token, auth.PurposeResetPassword)
	if err != nil {
		metrics.ObserveAuth("reset_password", "invalid_token")
		return nil, invalid
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, invalid
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	if user.ResetToken != token || user.ResetExpires == nil || !s.now().Before(*user.ResetExpires) {
		metrics.ObserveAuth("reset_password", "invalid_token")
		return nil, invalid
	}

	fresh, err := s.ledger.Consume(ctx, claims.ID, auth.ResetTokenTTL)
	if err != nil {
		return nil, apperr.Internal("failed to consume token", err)
	}
	if !fresh {
		metrics.ObserveAuth("reset_password", "replayed")
		return nil, invalid
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return nil, apperr.Internal("failed to hash password", err)
	}
	user.PasswordHash = hash
	user.ResetToken = ""
	user.ResetExpires = nil
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperr.Internal("failed to update password", err)
	}

	access, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, apperr.Internal("failed to issue token", err)
	}
	s.audit.LogPasswordChange(ctx, user.ID, "reset")
	metrics.ObserveAuth("reset_password", "ok")
	return &ResetResult{Success: true, Message: "Password updated successfully", Token: access}, nil
}

// VerifyEmail marks the account verified when token matches the stored one.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*VerifyResult, error) {
	invalid := apperr.Validation("Invalid or expired token")

	claims, err := s.tokens.ValidateToken(token, auth.PurposeEmailVerification)
	if err != nil {
		metrics.ObserveAuth("verify_email", "invalid_token")
		return nil, invalid
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, invalid
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	if user.EmailVerified {
		return &VerifyResult{Success: true, Message: "Email already verified"}, nil
	}
	if user.VerificationToken != token {
		metrics.ObserveAuth("verify_email", "invalid_token")
		return nil, invalid
	}

	user.EmailVerified = true
	user.VerificationToken = ""
	user.VerificationExpires = nil
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperr.Internal("failed to verify email", err)
	}

	access, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, apperr.Internal("failed to issue token", err)
	}
	summary := user.Summary()
	metrics.ObserveAuth("verify_email", "ok")
	return &VerifyResult{
		Success:     true,
		Message:     "Email successfully verified",
		AccessToken: access,
		User:        &summary,
	}, nil
}

// ResendVerification always succeeds. Unverified accounts get a fresh link.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	user, ok := s.lookupQuietly(ctx, email)
	if !ok || user.EmailVerified {
		return nil
	}
	link, err := s.refreshVerificationToken(ctx, user)
	if err != nil {
		s.logger.Error("failed to refresh verification token",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	s.sendVerification(ctx, user, link)
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*domain.UserSummary, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := user.Summary()
	return &summary, nil
}

// ProfilePatch holds the editable profile fields. Nil means unchanged.
type ProfilePatch struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (*domain.UserSummary, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if v := trimPtr(patch.FirstName); v != nil {
		if *v == "" {
			return nil, apperr.Validation("firstName cannot be empty")
		}
		user.FirstName = *v
	}
	if v := trimPtr(patch.LastName); v != nil {
		if *v == "" {
			return nil, apperr.Validation("lastName cannot be empty")
		}
		user.LastName = *v
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperr.Internal("failed to update profile", err)
	}
	summary := user.Summary()
	return &summary, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if len(newPassword) < auth.MinPasswordLength {
		return apperr.Validationf("password must be at least %d characters", auth.MinPasswordLength)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(oldPassword, user.PasswordHash) {
		return apperr.Validation("current password is incorrect")
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return apperr.Internal("failed to hash password", err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperr.Internal("failed to update password", err)
	}
	s.audit.LogPasswordChange(ctx, user.ID, "change")
	return nil
}

// currentVerificationLink reuses the stored token while it is still valid.
func (s *AuthService) currentVerificationLink(ctx context.Context, user *domain.User) (string, error) {
	if user.VerificationToken != "" && user.VerificationExpires != nil && s.now().Before(*user.VerificationExpires) {
		return s.clientURL + "/verify-email/" + user.VerificationToken, nil
	}
	return s.refreshVerificationToken(ctx, user)
}

func (s *AuthService) refreshVerificationToken(ctx context.Context, user *domain.User) (string, error) {
	token, err := s.tokens.IssueSingleUseToken(user.ID, auth.PurposeEmailVerification, auth.VerificationTokenTTL)
	if err != nil {
		return "", err
	}
	expires := s.now().Add(auth.VerificationTokenTTL)
	user.VerificationToken = token
	user.VerificationExpires = &expires
	if err := s.users.Update(ctx, user); err != nil {
		return "", fmt.Errorf("store verification token: %w", err)
	}
	return s.clientURL + "/verify-email/" + token, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *domain.User, link string) {
	if err := s.mailer.SendVerification(ctx, user.Email, fullName(user), link); err != nil {
		s.logger.Warn("verification email not sent",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

// lookupQuietly finds a user by email, logging rather than returning failures.
func (s *AuthService) lookupQuietly(ctx context.Context, email string) (*domain.User, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, false
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.logger.Error("user lookup failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	return user, true
}

func fullName(u *domain.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

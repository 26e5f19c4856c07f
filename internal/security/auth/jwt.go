package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token purposes. Access tokens authenticate API calls; the others are single-use.
const (
	PurposeAccess            = "access"
	PurposeResetPassword     = "reset_password"
	PurposeEmailVerification = "email_verification"
)

// Lifetimes for each purpose.
const (
	AccessTokenTTL       = 30 * 24 * time.Hour
	ResetTokenTTL        = 30 * time.Minute
	VerificationTokenTTL = 24 * time.Hour
)

// ErrInvalidToken covers bad signatures, expiry and purpose mismatches alike.
var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates HS256 tokens. The secret is fixed at construction.
type TokenManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenManager(secret, issuer string) *TokenManager {
	if secret == "" {
		secret = "change-me-in-production"
	}
	if issuer == "" {
		issuer = "requestdesk"
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// IssueAccessToken returns a bearer token for userID valid for 30 days.
func (tm *TokenManager) IssueAccessToken(userID string) (string, error) {
	return tm.issue(userID, PurposeAccess, AccessTokenTTL, "")
}

// IssueSingleUseToken returns a token bound to purpose with a unique jti.
func (tm *TokenManager) IssueSingleUseToken(subject, purpose string, ttl time.Duration) (string, error) {
	if purpose == "" || purpose == PurposeAccess {
		return "", fmt.Errorf("single-use token needs a dedicated purpose")
	}
	jti, err := randomID()
	if err != nil {
		return "", err
	}
	return tm.issue(subject, purpose, ttl, jti)
}

func (tm *TokenManager) issue(subject, purpose string, ttl time.Duration, jti string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("subject required")
	}
	now := tm.now()
	claims := Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tm.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// ValidateToken checks signature, expiry and purpose. Any failure is ErrInvalidToken.
func (tm *TokenManager) ValidateToken(tokenString, purpose string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(tm.issuer), jwt.WithTimeFunc(tm.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: purpose %q, want %q", ErrInvalidToken, claims.Purpose, purpose)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// ValidateAccessToken returns the subject of a valid access token.
func (tm *TokenManager) ValidateAccessToken(tokenString string) (string, error) {
	claims, err := tm.ValidateToken(tokenString, PurposeAccess)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func ExtractToken(authHeader string) (string, error) {
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return parts[1], nil
}

func randomID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

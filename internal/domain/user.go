package domain

import (
	"context"
	"time"
)

// Role gates what a user may do.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleAdmin
}

// User represents an account holder
type User struct {
	ID                  string // UUID
	FirstName           string
	LastName            string
	Email               string // Unique, lower case
	PasswordHash        string // Bcrypt hashed password (not returned in API)
	Role                Role
	EmailVerified       bool
	VerificationToken   string
	VerificationExpires *time.Time
	ResetToken          string
	ResetExpires        *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Summary returns the public projection of the user.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// UserSummary is the shape embedded in request details and auth responses.
type UserSummary struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserRepository defines data access for users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// GetMany resolves several users in one round trip. Unknown ids are absent from the map.
	GetMany(ctx context.Context, ids []string) (map[string]*User, error)
	ListByRole(ctx context.Context, role Role) ([]*User, error)
	Update(ctx context.Context, user *User) error
}

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/myinner/pkg/contextkeys"
)

var (
	// ErrInvalidToken indicates a token that is malformed, unknown, revoked or expired
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrUserNotFound indicates the referenced user does not exist
	ErrUserNotFound = errors.New("user not found")
)

// User represents an authenticated account
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	IsStaff   bool       `json:"is_staff"`
	IsActive  bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// APIToken represents a bearer token issued to a user
type APIToken struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	TokenHash   string     `json:"-"` // Never expose hash
	TokenPrefix string     `json:"token_prefix"`
	Name        string     `json:"name"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Expired reports whether the token is past its expiry at now
func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// Revoked reports whether the token has been revoked
func (t *APIToken) Revoked() bool {
	return t.RevokedAt != nil
}

// UserLookup resolves user accounts by ID
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*User, error)
}

// WithUser attaches the authenticated user to ctx
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, contextkeys.UserKey, user)
}

// UserFromContext returns the authenticated user, or nil for anonymous requests
func UserFromContext(ctx context.Context) *User {
	if user, ok := ctx.Value(contextkeys.UserKey).(*User); ok {
		return user
	}
	return nil
}

package auth

import (
	"context"
	"testing"
	"time"
)

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	if got := UserFromContext(ctx); got != nil {
		t.Errorf("UserFromContext() on empty context = %v, want nil", got)
	}

	user := &User{ID: 1, Username: "admin", IsStaff: true}
	ctx = WithUser(ctx, user)
	if got := UserFromContext(ctx); got != user {
		t.Errorf("UserFromContext() = %v, want %v", got, user)
	}
}

func TestAPIToken_State(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name        string
		token       APIToken
		wantExpired bool
		wantRevoked bool
	}{
		{name: "no expiry", token: APIToken{}},
		{name: "future expiry", token: APIToken{ExpiresAt: &future}},
		{name: "past expiry", token: APIToken{ExpiresAt: &past}, wantExpired: true},
		{name: "expires now", token: APIToken{ExpiresAt: &now}, wantExpired: true},
		{name: "revoked", token: APIToken{RevokedAt: &past}, wantRevoked: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.Expired(now); got != tt.wantExpired {
				t.Errorf("Expired() = %v, want %v", got, tt.wantExpired)
			}
			if got := tt.token.Revoked(); got != tt.wantRevoked {
				t.Errorf("Revoked() = %v, want %v", got, tt.wantRevoked)
			}
		})
	}
}

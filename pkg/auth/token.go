package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// TokenPrefix identifies MyInner tokens
	TokenPrefix = "myinner_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token
// Format: myinner_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	// First 8 chars after the prefix identify the token in listings
	prefix := TokenPrefix
	if len(encodedToken) >= 8 {
		prefix = TokenPrefix + encodedToken[:8]
	}

	return fullToken, tg.HashToken(fullToken), prefix, nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// TokenManager keeps issued tokens in memory, indexed by hash
type TokenManager struct {
	generator *TokenGenerator

	mu     sync.Mutex
	byHash map[string]*APIToken
	nextID int64
	now    func() time.Time
}

// NewTokenManager creates a new token manager
func NewTokenManager() *TokenManager {
	return &TokenManager{
		generator: NewTokenGenerator(),
		byHash:    make(map[string]*APIToken),
		nextID:    1,
		now:       time.Now,
	}
}

// CreateToken issues a token for the user. The plaintext token is returned once and never stored.
func (tm *TokenManager) CreateToken(userID int64, name string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	apiToken := &APIToken{
		ID:          tm.nextID,
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		ExpiresAt:   expiresAt,
		CreatedAt:   tm.now(),
	}
	tm.nextID++
	tm.byHash[tokenHash] = apiToken

	issued := *apiToken
	return &issued, token, nil
}

// ValidateToken returns the token record for a live token and stamps its last use
func (tm *TokenManager) ValidateToken(token string) (*APIToken, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	tokenHash := tm.generator.HashToken(token)

	tm.mu.Lock()
	defer tm.mu.Unlock()

	apiToken, ok := tm.byHash[tokenHash]
	if !ok || apiToken.Revoked() {
		return nil, ErrInvalidToken
	}

	now := tm.now()
	if apiToken.Expired(now) {
		return nil, ErrInvalidToken
	}
	apiToken.LastUsedAt = &now

	validated := *apiToken
	return &validated, nil
}

// RevokeToken revokes a token by ID
func (tm *TokenManager) RevokeToken(tokenID int64) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for _, apiToken := range tm.byHash {
		if apiToken.ID == tokenID {
			now := tm.now()
			apiToken.RevokedAt = &now
			return nil
		}
	}
	return fmt.Errorf("token %d not found", tokenID)
}

// ListUserTokens lists a user's tokens, newest first
func (tm *TokenManager) ListUserTokens(userID int64) []*APIToken {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tokens := make([]*APIToken, 0)
	for _, apiToken := range tm.byHash {
		if apiToken.UserID == userID {
			copied := *apiToken
			tokens = append(tokens, &copied)
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID > tokens[j].ID })
	return tokens
}

// CleanupExpiredTokens drops expired and revoked tokens and returns how many were removed
func (tm *TokenManager) CleanupExpiredTokens() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := tm.now()
	removed := 0
	for hash, apiToken := range tm.byHash {
		if apiToken.Revoked() || apiToken.Expired(now) {
			delete(tm.byHash, hash)
			removed++
		}
	}
	return removed
}

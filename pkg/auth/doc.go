// Package auth provides users, bearer tokens and the authenticated-user context for MyInner.
//
// # Tokens
//
// Tokens have the form myinner_<base64url(32 random bytes)>. Only the SHA256 hash is kept by
// the TokenManager; the plaintext is returned once by CreateToken.
//
//	tm := auth.NewTokenManager()
//	_, token, err := tm.CreateToken(user.ID, "cli", nil)
//	apiToken, err := tm.ValidateToken(token)
//
// # Context
//
// The authentication middleware resolves the token owner through a UserLookup and attaches it
// with WithUser. Handlers and services read it back with UserFromContext; a nil user means the
// request is anonymous. Staff users (IsStaff) are the administrators allowed to read audit data.
package auth

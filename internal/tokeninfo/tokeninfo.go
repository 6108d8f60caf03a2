// Package tokeninfo peeks at the bearer token a client sends as its IRC
// PASS without validating it. The backend is the one system of record for
// authentication; this package exists only so the gateway can log a useful
// warning when a token looks expired or close to expiry before handing it
// to the backend's own login call. A token that does not parse produces no
// warning.
//
// Adapted from the teacher's auth.MockValidator.ValidateToken, which
// base64-decoded a JWT payload by hand to read its claims in development
// mode. That approach is replaced here with golang-jwt/jwt/v5's
// ParseUnverified, which does the same non-verifying decode through the
// library instead of a hand-rolled base64/json split.
package tokeninfo

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Info is what the gateway can learn about a bearer token without a
// signing key. Zero values mean the claim was absent.
type Info struct {
	Subject   string
	ExpiresAt time.Time
	HasExpiry bool
}

// Peek decodes the token's claims without verifying its signature. A
// parse failure is not fatal to the caller: it simply means nothing useful
// could be logged, so callers should treat a non-nil error as "skip the
// warning", not as a login failure.
func Peek(tokenString string) (Info, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return Info{}, fmt.Errorf("tokeninfo: parse unverified: %w", err)
	}

	info := Info{}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
		info.HasExpiry = true
	}
	return info, nil
}

// NearExpiry reports whether the token's exp claim is within window of now,
// or has already passed. A token with no exp claim is never near expiry.
func (i Info) NearExpiry(now time.Time, window time.Duration) bool {
	if !i.HasExpiry {
		return false
	}
	return !i.ExpiresAt.After(now.Add(window))
}

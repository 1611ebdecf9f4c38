package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what the service can read from a bearer token. Signatures
// are verified by the backend on every call, so nothing here is trusted
// for authorisation; it only drives expiry prompts and log fields.
type TokenInfo struct {
	JWT       bool
	Subject   string
	Issuer    string
	ExpiresAt *time.Time
}

// Inspect parses token claims without verifying the signature. Opaque
// (non-JWT) tokens yield a zero TokenInfo.
func Inspect(token string) TokenInfo {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}
	}
	info := TokenInfo{JWT: true, Subject: claims.Subject, Issuer: claims.Issuer}
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time.UTC()
		info.ExpiresAt = &t
	}
	return info
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

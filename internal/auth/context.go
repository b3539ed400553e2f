package auth

import (
	"context"
	"slices"
)

type contextKey int

const claimsKey contextKey = iota

// WithClaims returns a context carrying claims.
func WithClaims(ctx context.Context, claims *KindeClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// Claims returns the Kinde claims from context, or nil if not authenticated.
func Claims(ctx context.Context) *KindeClaims {
	claims, _ := ctx.Value(claimsKey).(*KindeClaims)
	return claims
}

// UserID returns the Kinde subject, or "" if not authenticated.
func UserID(ctx context.Context) string {
	if c := Claims(ctx); c != nil {
		return c.Subject
	}
	return ""
}

// Email returns the user's email, or "" if not available.
func Email(ctx context.Context) string {
	if c := Claims(ctx); c != nil {
		return c.Email
	}
	return ""
}

// HasPermission reports whether the token grants permission.
func HasPermission(ctx context.Context, permission string) bool {
	c := Claims(ctx)
	return c != nil && slices.Contains(c.Permissions, permission)
}

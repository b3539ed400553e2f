// Package auth verifies Kinde-issued bearer tokens.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Config identifies the Kinde tenant.
type Config struct {
	Domain   string // e.g. "https://yourapp.kinde.com"
	Audience string // API audience identifier, optional
}

// KindeClaims are the JWT claims the service reads.
type KindeClaims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	Verify(token string) (*KindeClaims, error)
}

// ErrMissingToken means the request carried no bearer token.
var ErrMissingToken = errors.New("missing token")

// Verifier checks RS256 tokens against the tenant's JWKS.
type Verifier struct {
	keyfunc  jwt.Keyfunc
	issuer   string
	audience string
}

// NewVerifier fetches and caches the tenant's JWKS until ctx is done.
func NewVerifier(ctx context.Context, cfg Config) (*Verifier, error) {
	if cfg.Domain == "" {
		return nil, errors.New("kinde domain is required")
	}
	issuer := strings.TrimSuffix(cfg.Domain, "/")

	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{issuer + "/.well-known/jwks.json"})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS keyfunc: %w", err)
	}
	return NewVerifierWithKeyfunc(jwks.Keyfunc, cfg), nil
}

// NewVerifierWithKeyfunc builds a verifier around an existing key source.
func NewVerifierWithKeyfunc(kf jwt.Keyfunc, cfg Config) *Verifier {
	return &Verifier{
		keyfunc:  kf,
		issuer:   strings.TrimSuffix(cfg.Domain, "/"),
		audience: cfg.Audience,
	}
}

// Verify validates signature, issuer, expiry and, when configured, audience.
func (v *Verifier) Verify(tokenString string) (*KindeClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &KindeClaims{}, v.keyfunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*KindeClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token with 401 and
// attaches the claims to the request context.
func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := Authenticate(verifier, r)
			if err != nil {
				unauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// Authenticate verifies the request's bearer token.
func Authenticate(verifier TokenVerifier, r *http.Request) (*KindeClaims, error) {
	token := extractBearerToken(r)
	if token == "" {
		return nil, ErrMissingToken
	}
	return verifier.Verify(token)
}

func unauthorized(w http.ResponseWriter, err error) {
	msg := "Unauthorized: invalid token"
	if errors.Is(err, ErrMissingToken) {
		msg = "Unauthorized: missing token"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func extractBearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

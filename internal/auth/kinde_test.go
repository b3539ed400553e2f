package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://acme.kinde.com"

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func sign(t *testing.T, key *rsa.PrivateKey, method jwt.SigningMethod, claims KindeClaims) string {
	t.Helper()
	var signingKey any = key
	if method == jwt.SigningMethodHS256 {
		signingKey = []byte("secret")
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString(signingKey)
	require.NoError(t, err)
	return s
}

func validClaims() KindeClaims {
	return KindeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "kp_123",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{"commentguard-api"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:       "a@example.com",
		Permissions: []string{"manage:ai-config"},
	}
}

func TestVerifier_Verify(t *testing.T) {
	key := testKey(t)
	v := NewVerifierWithKeyfunc(func(*jwt.Token) (any, error) { return &key.PublicKey, nil },
		Config{Domain: testIssuer + "/", Audience: "commentguard-api"})

	t.Run("valid", func(t *testing.T) {
		claims, err := v.Verify(sign(t, key, jwt.SigningMethodRS256, validClaims()))
		require.NoError(t, err)
		assert.Equal(t, "kp_123", claims.Subject)
		assert.Equal(t, "a@example.com", claims.Email)
	})

	rejected := map[string]func(*KindeClaims){
		"expired":        func(c *KindeClaims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute)) },
		"no expiry":      func(c *KindeClaims) { c.ExpiresAt = nil },
		"wrong issuer":   func(c *KindeClaims) { c.Issuer = "https://evil.example.com" },
		"wrong audience": func(c *KindeClaims) { c.Audience = jwt.ClaimStrings{"other"} },
		"no subject":     func(c *KindeClaims) { c.Subject = "" },
	}
	for name, edit := range rejected {
		t.Run(name, func(t *testing.T) {
			c := validClaims()
			edit(&c)
			_, err := v.Verify(sign(t, key, jwt.SigningMethodRS256, c))
			assert.Error(t, err)
		})
	}

	t.Run("wrong algorithm", func(t *testing.T) {
		_, err := v.Verify(sign(t, key, jwt.SigningMethodHS256, validClaims()))
		assert.Error(t, err)
	})

	t.Run("other key", func(t *testing.T) {
		_, err := v.Verify(sign(t, testKey(t), jwt.SigningMethodRS256, validClaims()))
		assert.Error(t, err)
	})
}

func TestNewVerifier_RequiresDomain(t *testing.T) {
	_, err := NewVerifier(t.Context(), Config{})
	assert.Error(t, err)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		want       string
	}{
		{"empty header", "", ""},
		{"valid bearer token", "Bearer eyJhbGciOiJSUzI1NiJ9.test", "eyJhbGciOiJSUzI1NiJ9.test"},
		{"lowercase bearer", "bearer token123", "token123"},
		{"no space", "Bearertoken123", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz", ""},
		{"empty token after bearer", "Bearer ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			assert.Equal(t, tt.want, extractBearerToken(req))
		})
	}
}

type stubVerifier struct {
	claims *KindeClaims
	err    error
}

func (s stubVerifier) Verify(string) (*KindeClaims, error) { return s.claims, s.err }

func TestMiddleware(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Middleware(stubVerifier{})(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error": "Unauthorized: missing token"}`, rec.Body.String())
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		Middleware(stubVerifier{err: assert.AnError})(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid token")
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer ok")
		rec := httptest.NewRecorder()
		claims := &KindeClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "kp_9"}}
		Middleware(stubVerifier{claims: claims})(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "kp_9", seen)
	})
}

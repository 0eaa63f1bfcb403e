package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/genfoo/backend/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": "user_1",
		"iss": "https://clerk.genfoo.example",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(identity))
	})
}

func serveWithToken(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticator_HS256(t *testing.T) {
	auth, err := NewAuthenticator(config.AuthConfig{JWTSecret: testSecret, Issuer: "https://clerk.genfoo.example"}, nil)
	require.NoError(t, err)
	h := auth.Middleware(identityEcho())

	t.Run("valid token", func(t *testing.T) {
		rec := serveWithToken(h, "Bearer "+signHS256(t, testSecret, validClaims()))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user_1", rec.Body.String())
	})

	tests := []struct {
		name   string
		header func(t *testing.T) string
	}{
		{"missing header", func(t *testing.T) string { return "" }},
		{"wrong scheme", func(t *testing.T) string { return "Basic " + signHS256(t, testSecret, validClaims()) }},
		{"empty token", func(t *testing.T) string { return "Bearer " }},
		{"wrong secret", func(t *testing.T) string { return "Bearer " + signHS256(t, "other", validClaims()) }},
		{"expired", func(t *testing.T) string {
			claims := validClaims()
			claims["exp"] = time.Now().Add(-time.Minute).Unix()
			return "Bearer " + signHS256(t, testSecret, claims)
		}},
		{"no expiry", func(t *testing.T) string {
			claims := validClaims()
			delete(claims, "exp")
			return "Bearer " + signHS256(t, testSecret, claims)
		}},
		{"no subject", func(t *testing.T) string {
			claims := validClaims()
			delete(claims, "sub")
			return "Bearer " + signHS256(t, testSecret, claims)
		}},
		{"wrong issuer", func(t *testing.T) string {
			claims := validClaims()
			claims["iss"] = "https://evil.example"
			return "Bearer " + signHS256(t, testSecret, claims)
		}},
		{"unsigned token", func(t *testing.T) string {
			token, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)
			return "Bearer " + token
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveWithToken(h, tt.header(t))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestAuthenticator_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	auth, err := NewAuthenticator(config.AuthConfig{JWTPublicKey: string(publicPEM)}, nil)
	require.NoError(t, err)
	h := auth.Middleware(identityEcho())

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims()).SignedString(key)
	require.NoError(t, err)
	rec := serveWithToken(h, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user_1", rec.Body.String())

	// An HS256 token must not be accepted by an RS256 verifier.
	rec = serveWithToken(h, "Bearer "+signHS256(t, string(publicPEM), validClaims()))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewAuthenticatorErrors(t *testing.T) {
	_, err := NewAuthenticator(config.AuthConfig{}, nil)
	assert.Error(t, err)

	_, err = NewAuthenticator(config.AuthConfig{JWTPublicKey: "not a pem"}, nil)
	assert.Error(t, err)
}

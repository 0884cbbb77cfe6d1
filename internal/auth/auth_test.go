package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/upskiller-xyz/lux-gateway/internal/config"
	"github.com/upskiller-xyz/lux-gateway/internal/gwerrors"
)

func TestAuthenticator_NoneAllowsAll(t *testing.T) {
	a := New(&config.Config{AuthType: config.AuthNone})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := a.Authenticate(req); err != nil {
		t.Fatalf("expected no error for auth_type=none, got %v", err)
	}
}

func TestAuthenticator_TokenMode(t *testing.T) {
	a := New(&config.Config{AuthType: config.AuthToken, APIToken: "secret-token"})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		err := a.Authenticate(req)
		if err == nil || err.Kind != gwerrors.KindMissingAuth {
			t.Fatalf("expected MissingAuth, got %v", err)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic xyz")
		err := a.Authenticate(req)
		if err == nil || err.Kind != gwerrors.KindInvalidAuthFmt {
			t.Fatalf("expected InvalidAuthFormat, got %v", err)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		err := a.Authenticate(req)
		if err == nil || err.Kind != gwerrors.KindInvalidToken {
			t.Fatalf("expected InvalidToken, got %v", err)
		}
	})

	t.Run("correct token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer secret-token")
		if err := a.Authenticate(req); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})
}

func TestAuthenticator_Auth0Mode(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	const domain = "test.example-tenant.auth0.com"
	const audience = "https://luxgw.example/api"
	const kid = "test-key-1"

	// Seed the verifier's JWKS fetcher cache directly rather than serving an
	// HTTP JWKS document, since the verifier always derives its endpoint
	// from the configured domain.
	verifier := newAuth0Verifier(domain, audience, nil)
	verifier.jwks.cache.Set(kid, &priv.PublicKey)

	a := &Authenticator{authType: config.AuthAuth0, verifier: verifier}

	makeToken := func(claims jwt.RegisteredClaims) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, &Claims{RegisteredClaims: claims})
		token.Header["kid"] = kid
		signed, err := token.SignedString(priv)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return signed
	}

	t.Run("valid token", func(t *testing.T) {
		tok := makeToken(jwt.RegisteredClaims{
			Issuer:    "https://" + domain + "/",
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		if err := a.Authenticate(req); err != nil {
			t.Fatalf("expected valid token to pass, got %v", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		tok := makeToken(jwt.RegisteredClaims{
			Issuer:    "https://" + domain + "/",
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		err := a.Authenticate(req)
		if err == nil || err.Kind != gwerrors.KindExpiredJWT {
			t.Fatalf("expected ExpiredJWT, got %v", err)
		}
	})

	t.Run("wrong audience", func(t *testing.T) {
		tok := makeToken(jwt.RegisteredClaims{
			Issuer:    "https://" + domain + "/",
			Audience:  jwt.ClaimStrings{"https://someone-else.example/api"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		err := a.Authenticate(req)
		if err == nil || err.Kind != gwerrors.KindInvalidToken {
			t.Fatalf("expected InvalidToken for wrong audience, got %v", err)
		}
	})
}

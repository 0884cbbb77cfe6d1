package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuth0Verifier_MissingKid(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	const domain = "no-kid.auth0.example.com"
	v := newAuth0Verifier(domain, "aud", nil)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://" + domain + "/",
			Audience:  jwt.ClaimStrings{"aud"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := v.Verify(signed); err == nil {
		t.Fatal("expected error for token with no kid header")
	}
}

func TestAuth0Verifier_WrongIssuer(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	const domain = "expected.auth0.example.com"
	const kid = "kid-1"
	v := newAuth0Verifier(domain, "aud", nil)
	v.jwks.cache.Set(kid, &priv.PublicKey)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://attacker.example.com/",
			Audience:  jwt.ClaimStrings{"aud"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token.Header["kid"] = kid
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := v.Verify(signed); err == nil {
		t.Fatal("expected error for mismatched issuer")
	}
}

func TestAuth0Verifier_DefaultAlgorithms(t *testing.T) {
	v := newAuth0Verifier("d.example.com", "aud", nil)
	if len(v.algorithms) != 1 || v.algorithms[0] != "RS256" {
		t.Fatalf("expected default [RS256], got %v", v.algorithms)
	}

	v2 := newAuth0Verifier("d.example.com", "aud", []string{"RS384"})
	if len(v2.algorithms) != 1 || v2.algorithms[0] != "RS384" {
		t.Fatalf("expected configured [RS384], got %v", v2.algorithms)
	}
}

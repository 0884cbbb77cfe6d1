package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/upskiller-xyz/lux-gateway/internal/cache"
)

// jwk is a single JSON Web Key from an Auth0 JWKS document (RFC 7517),
// restricted to the RSA fields this gateway needs.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// jwksFetcher fetches and caches RSA public keys from an Auth0 tenant's
// JWKS endpoint, keyed by `kid`. Keys are cached in-process since Auth0
// rotates signing keys infrequently and verification is on the hot path of
// every authenticated request.
type jwksFetcher struct {
	jwksURL string
	client  *http.Client
	cache   *cache.Memory[*rsa.PublicKey]
}

func newJWKSFetcher(domain string) *jwksFetcher {
	return &jwksFetcher{
		jwksURL: fmt.Sprintf("https://%s/.well-known/jwks.json", domain),
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   cache.NewMemory[*rsa.PublicKey](32, time.Hour),
	}
}

// PublicKey returns the RSA public key for the given kid, fetching and
// parsing the JWKS document on a cache miss.
func (f *jwksFetcher) PublicKey(kid string) (*rsa.PublicKey, error) {
	if key, ok := f.cache.Get(kid); ok {
		return key, nil
	}

	resp, err := f.client.Get(f.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch JWKS: unexpected status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode JWKS: %w", err)
	}

	var found *rsa.PublicKey
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaPublicKeyFromJWK(k)
		if err != nil {
			continue
		}
		f.cache.Set(k.Kid, pub)
		if k.Kid == kid {
			found = pub
		}
	}

	if found == nil {
		return nil, fmt.Errorf("no matching JWKS key for kid %q", kid)
	}
	return found, nil
}

func rsaPublicKeyFromJWK(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode JWK modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode JWK exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

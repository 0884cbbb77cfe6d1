package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of an Auth0 access-token's registered claims the
// gateway cares about.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// auth0Verifier verifies Auth0-issued RS256 JWTs against the tenant's JWKS.
type auth0Verifier struct {
	domain     string
	audience   string
	algorithms []string
	jwks       *jwksFetcher
}

func newAuth0Verifier(domain, audience string, algorithms []string) *auth0Verifier {
	if len(algorithms) == 0 {
		algorithms = []string{"RS256"}
	}
	return &auth0Verifier{
		domain:     domain,
		audience:   audience,
		algorithms: algorithms,
		jwks:       newJWKSFetcher(domain),
	}
}

// Verify parses and verifies tokenString, checking signature, issuer,
// audience, and expiry. Returns the parsed claims on success.
func (v *auth0Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	issuer := fmt.Sprintf("https://%s/", v.domain)

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token header missing kid")
		}
		return v.jwks.PublicKey(kid)
	},
		jwt.WithValidMethods(v.algorithms),
		jwt.WithAudience(v.audience),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, err
	}

	return claims, nil
}

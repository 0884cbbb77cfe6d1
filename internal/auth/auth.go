// Package auth implements the gateway's inbound authentication pre-filter
// (spec §6 "Auth header"): opaque bearer-token comparison or Auth0 JWT
// verification against the tenant's JWKS, depending on internal/config's
// AuthType. If no auth is configured, every request passes.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/upskiller-xyz/lux-gateway/internal/config"
	"github.com/upskiller-xyz/lux-gateway/internal/gwerrors"
)

// Authenticator validates the Authorization header of inbound requests.
type Authenticator struct {
	authType config.AuthType
	token    string
	verifier *auth0Verifier
}

// New builds an Authenticator from the gateway configuration.
func New(cfg *config.Config) *Authenticator {
	a := &Authenticator{authType: cfg.AuthType}
	switch cfg.AuthType {
	case config.AuthToken:
		a.token = cfg.APIToken
	case config.AuthAuth0:
		a.verifier = newAuth0Verifier(cfg.Auth0Domain, cfg.Auth0Audience, cfg.Auth0Algorithms)
	}
	return a
}

// Authenticate checks the Authorization header, returning a *gwerrors.Error
// on failure. A nil return means the request may proceed.
func (a *Authenticator) Authenticate(r *http.Request) *gwerrors.Error {
	if a.authType == config.AuthNone {
		return nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return gwerrors.New(gwerrors.KindMissingAuth, "missing Authorization header")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return gwerrors.New(gwerrors.KindInvalidAuthFmt, "Authorization header must be of the form 'Bearer <token>'")
	}

	switch a.authType {
	case config.AuthToken:
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			return gwerrors.New(gwerrors.KindInvalidToken, "invalid bearer token")
		}
		return nil
	case config.AuthAuth0:
		if _, err := a.verifier.Verify(token); err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return gwerrors.Wrap(gwerrors.KindExpiredJWT, "", err)
			}
			return gwerrors.Wrap(gwerrors.KindInvalidToken, "", err)
		}
		return nil
	default:
		return gwerrors.New(gwerrors.KindInternal, "unknown auth type")
	}
}

// Middleware returns a chi-compatible middleware enforcing Authenticate on
// every request, writing the gateway's standard error body on failure.
func (a *Authenticator) Middleware(mode gwerrors.DeploymentMode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := a.Authenticate(r); err != nil {
				err.WriteJSON(w, mode)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

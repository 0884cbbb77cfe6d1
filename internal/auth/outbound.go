package auth

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OutboundCredentials configures the OAuth2 client-credentials grant used to
// mint bearer tokens for calls to the downstream daylight-simulation
// services, for deployments that front those services with an OAuth2-aware
// gateway of their own instead of accepting a single static shared secret
// (config.Config.OutboundToken).
type OutboundCredentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// TokenSource builds a self-refreshing oauth2.TokenSource bound to ctx.
func (c OutboundCredentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
	return cfg.TokenSource(ctx)
}

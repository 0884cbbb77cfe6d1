// Package config loads the gateway's deployment configuration: service
// registry seeds, auth settings, and inbound server settings. Supports JSON
// and YAML config files, the way the source gateway config loader does,
// generalized from per-provider routing config to per-service registry
// config.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/upskiller-xyz/lux-gateway/internal/registry"
)

// AuthType is the closed set of inbound authentication modes.
type AuthType string

// AuthType constants for AUTH_TYPE.
const (
	AuthNone  AuthType = "none"
	AuthToken AuthType = "token"
	AuthAuth0 AuthType = "auth0"
)

// Config holds the gateway's deployment configuration (spec §6 "Environment
// variables" table).
type Config struct {
	DeploymentMode registry.Mode           `json:"deployment_mode" yaml:"deployment_mode"`
	ServiceURLs    map[registry.Name]string `json:"service_urls,omitempty" yaml:"service_urls,omitempty"`
	AuthType       AuthType                `json:"auth_type" yaml:"auth_type"`
	APIToken       string                  `json:"api_token,omitempty" yaml:"api_token,omitempty"`
	Auth0Domain    string                  `json:"auth0_domain,omitempty" yaml:"auth0_domain,omitempty"`
	Auth0Audience  string                  `json:"auth0_audience,omitempty" yaml:"auth0_audience,omitempty"`
	Auth0Algorithms []string               `json:"auth0_algorithms,omitempty" yaml:"auth0_algorithms,omitempty"`
	Port           string                  `json:"port" yaml:"port"`
	OutboundToken  string                  `json:"outbound_token,omitempty" yaml:"outbound_token,omitempty"`

	// OutboundClientID/Secret/TokenURL configure an OAuth2 client-credentials
	// grant for outbound service calls, used instead of OutboundToken when
	// set. See internal/auth.OutboundCredentials.
	OutboundClientID     string   `json:"outbound_client_id,omitempty" yaml:"outbound_client_id,omitempty"`
	OutboundClientSecret string   `json:"outbound_client_secret,omitempty" yaml:"outbound_client_secret,omitempty"`
	OutboundTokenURL     string   `json:"outbound_token_url,omitempty" yaml:"outbound_token_url,omitempty"`
	OutboundScopes       []string `json:"outbound_scopes,omitempty" yaml:"outbound_scopes,omitempty"`

	Plugins        []PluginConfig          `json:"plugins,omitempty" yaml:"plugins,omitempty"`
}

// PluginConfig names one guardrail/transform plugin to load at startup, the
// lifecycle stages to attach it to, and its init-time settings. A plugin is
// instantiated exactly once and the same instance is registered at every
// listed stage, so plugins that carry state across stages of one invocation
// (the result cache, the request logger) see a consistent view.
type PluginConfig struct {
	Name    string                 `json:"name" yaml:"name"`
	Stages  []string               `json:"stages" yaml:"stages"`
	Enabled bool                   `json:"enabled" yaml:"enabled"`
	Config  map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// DefaultPlugins is the built-in guardrail/transform chain wired when a
// deployment supplies no explicit plugin list: mesh-size cap and model-type
// denylist run before the pipeline executor, the rate limiter guards it, and
// the result cache and request logger wrap the full invocation.
func DefaultPlugins() []PluginConfig {
	return []PluginConfig{
		{Name: "mesh-cap", Stages: []string{"before_request"}, Enabled: true},
		{Name: "model-denylist", Stages: []string{"before_request"}, Enabled: true},
		{Name: "rate-limit", Stages: []string{"before_request"}, Enabled: true, Config: map[string]interface{}{"requests_per_second": 10.0, "burst": 20.0}},
		{Name: "result-cache", Stages: []string{"before_request", "after_request"}, Enabled: true},
		{Name: "request-logger", Stages: []string{"before_request", "after_request", "on_error"}, Enabled: true},
	}
}


// LoadFile reads and parses a config file from the given path. Supported
// formats: JSON (.json), YAML (.yaml, .yml).
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// FromEnv builds a Config from the closed set of environment variables
// (spec §6), used when no config file is supplied.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DeploymentMode:       registry.Mode(os.Getenv("DEPLOYMENT_MODE")),
		AuthType:             AuthType(os.Getenv("AUTH_TYPE")),
		APIToken:             os.Getenv("API_TOKEN"),
		Auth0Domain:          os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience:        os.Getenv("AUTH0_AUDIENCE"),
		Port:                 os.Getenv("PORT"),
		OutboundToken:        os.Getenv("OUTBOUND_TOKEN"),
		OutboundClientID:     os.Getenv("OUTBOUND_CLIENT_ID"),
		OutboundClientSecret: os.Getenv("OUTBOUND_CLIENT_SECRET"),
		OutboundTokenURL:     os.Getenv("OUTBOUND_TOKEN_URL"),
	}
	if algs := os.Getenv("AUTH0_ALGORITHMS"); algs != "" {
		cfg.Auth0Algorithms = strings.Split(algs, ",")
	}
	if scopes := os.Getenv("OUTBOUND_SCOPES"); scopes != "" {
		cfg.OutboundScopes = strings.Split(scopes, ",")
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DeploymentMode == "" {
		c.DeploymentMode = registry.ModeLocal
	}
	if c.AuthType == "" {
		c.AuthType = AuthNone
	}
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.Plugins == nil {
		c.Plugins = DefaultPlugins()
	}
}

// Validate checks a Config for internal consistency (spec §6's closed enum
// constraints plus the auth-mode-specific required fields).
func Validate(cfg *Config) error {
	switch cfg.DeploymentMode {
	case registry.ModeLocal, registry.ModeProduction:
	default:
		return fmt.Errorf("unknown deployment_mode: %q", cfg.DeploymentMode)
	}

	switch cfg.AuthType {
	case AuthNone:
	case AuthToken:
		if cfg.APIToken == "" {
			return fmt.Errorf("auth_type %q requires api_token", AuthToken)
		}
	case AuthAuth0:
		if cfg.Auth0Domain == "" || cfg.Auth0Audience == "" {
			return fmt.Errorf("auth_type %q requires auth0_domain and auth0_audience", AuthAuth0)
		}
	default:
		return fmt.Errorf("unknown auth_type: %q", cfg.AuthType)
	}

	if cfg.DeploymentMode == registry.ModeProduction {
		for _, n := range registry.All {
			if cfg.ServiceURLs[n] == "" {
				return fmt.Errorf("production deployment_mode requires service_urls[%s]", n)
			}
		}
	}

	return nil
}

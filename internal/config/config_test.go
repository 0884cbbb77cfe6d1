package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/upskiller-xyz/lux-gateway/internal/registry"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestLoadFile_ValidJSON(t *testing.T) {
	path := writeTempFile(t, "config.json", `{
		"deployment_mode": "local",
		"auth_type": "none"
	}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DeploymentMode != registry.ModeLocal {
		t.Errorf("expected mode %q, got %q", registry.ModeLocal, cfg.DeploymentMode)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
}

func TestLoadFile_ValidYAML(t *testing.T) {
	path := writeTempFile(t, "config.yaml", "deployment_mode: production\nauth_type: token\napi_token: secret\nservice_urls:\n  obstruction: http://obstruction.internal\n  encoder: http://encoder.internal\n  model: http://model.internal\n  merger: http://merger.internal\n  stats: http://stats.internal\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestLoadFile_NonExistentFile(t *testing.T) {
	_, err := LoadFile("/tmp/does-not-exist-lux-config-12345.json")
	if err == nil {
		t.Fatal("expected error for non-existent file")
	}
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	path := writeTempFile(t, "config.toml", "deployment_mode = \"local\"")
	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestValidate_TokenAuthRequiresToken(t *testing.T) {
	cfg := &Config{DeploymentMode: registry.ModeLocal, AuthType: AuthToken}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for missing api_token")
	}
}

func TestValidate_Auth0RequiresDomainAndAudience(t *testing.T) {
	cfg := &Config{DeploymentMode: registry.ModeLocal, AuthType: AuthAuth0}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for missing auth0 settings")
	}
}

func TestValidate_ProductionRequiresAllServiceURLs(t *testing.T) {
	cfg := &Config{
		DeploymentMode: registry.ModeProduction,
		AuthType:       AuthNone,
		ServiceURLs:    map[registry.Name]string{registry.Obstruction: "http://o"},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for incomplete service_urls in production mode")
	}
}

func TestValidate_UnknownDeploymentMode(t *testing.T) {
	cfg := &Config{DeploymentMode: "staging", AuthType: AuthNone}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown deployment_mode")
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleTOML = `
log_level = 3

[endpoints.a]
port = 7000
type = "tunnel"
direction = "inbound"
secret = "s"

[endpoints.b]
host = "127.0.0.1"
port = 9000
type = "direct"
direction = "outbound"

[[routes]]
endpoints = ["a", "b"]
size = 2
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "veloxid.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_And_Validate_HappyPath(t *testing.T) {
	path := writeTemp(t, sampleTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	warnings, err := cfg.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if cfg.LogLevel != 3 {
		t.Fatalf("LogLevel: got %d want 3", cfg.LogLevel)
	}
}

func TestValidate_RouteToSelf(t *testing.T) {
	cfg := &Config{
		Endpoints: map[string]Endpoint{"a": {Port: 1, Type: "direct", Direction: "outbound"}},
		Routes:    []Route{{Endpoints: [2]string{"a", "a"}, Size: 1}},
	}
	_, err := cfg.Validate()
	if !errors.Is(err, ErrRouteToSelf) {
		t.Fatalf("expected ErrRouteToSelf, got %v", err)
	}
}

func TestValidate_EndpointNotFound(t *testing.T) {
	cfg := &Config{
		Endpoints: map[string]Endpoint{"a": {Host: "127.0.0.1", Port: 1, Type: "direct", Direction: "outbound"}},
		Routes:    []Route{{Endpoints: [2]string{"a", "missing"}, Size: 1}},
	}
	_, err := cfg.Validate()
	if !errors.Is(err, ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound, got %v", err)
	}
}

func TestValidate_NoSecret(t *testing.T) {
	cfg := &Config{
		Endpoints: map[string]Endpoint{
			"a": {Port: 1, Type: "tunnel", Direction: "inbound"},
			"b": {Port: 2, Type: "direct", Direction: "outbound"},
		},
		Routes: []Route{{Endpoints: [2]string{"a", "b"}, Size: 1}},
	}
	_, err := cfg.Validate()
	if !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}

func TestValidate_NoOutboundHost(t *testing.T) {
	cfg := &Config{
		Endpoints: map[string]Endpoint{
			"a": {Port: 1, Type: "direct", Direction: "inbound"},
			"b": {Port: 2, Type: "direct", Direction: "outbound"},
		},
		Routes: []Route{{Endpoints: [2]string{"a", "b"}, Size: 1}},
	}
	_, err := cfg.Validate()
	if !errors.Is(err, ErrNoOutboundHost) {
		t.Fatalf("expected ErrNoOutboundHost, got %v", err)
	}
}

func TestValidate_UnreferencedEndpointWarns(t *testing.T) {
	cfg := &Config{
		Endpoints: map[string]Endpoint{
			"a":      {Host: "127.0.0.1", Port: 1, Type: "direct", Direction: "outbound"},
			"b":      {Port: 2, Type: "direct", Direction: "inbound"},
			"unused": {Port: 3, Type: "direct", Direction: "outbound"},
		},
		Routes: []Route{{Endpoints: [2]string{"a", "b"}, Size: 1}},
	}
	warnings, err := cfg.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
}

func TestEnvOverlay_OverridesSecret(t *testing.T) {
	cfg := &Config{Endpoints: map[string]Endpoint{"my-edge": {Secret: "file-secret"}}}
	cfg.applyEnvOverlay([]string{"VELOXID_SECRET_MY_EDGE=env-secret"})
	if cfg.Endpoints["my-edge"].Secret != "env-secret" {
		t.Fatalf("env overlay did not apply: got %q", cfg.Endpoints["my-edge"].Secret)
	}
}

func TestEnvSecretKey_Normalizes(t *testing.T) {
	if got := envSecretKey("edge-1.example"); got != "VELOXID_SECRET_EDGE_1_EXAMPLE" {
		t.Fatalf("got %q", got)
	}
}

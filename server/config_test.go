package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validYAML = `server:
  public_url: http://idp.test:44366
  dev_listen_addr: 127.0.0.1:44366
  dev_mode: true

token_lifetime: 120

users:
  alice:
    sub: "1001"
    name: Alice Example
    given_name: Alice
    family_name: Example
    roles: [admin]
    password: pw1

clients:
  - client_id: c1
    client_secret: s1
    signing_alg: HS256

signing_keys:
  c1: shhh
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, validYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.PublicURL != "http://idp.test:44366" {
		t.Errorf("unexpected public_url: %q", cfg.Server.PublicURL)
	}
	if cfg.TokenLifetime != 120 {
		t.Errorf("unexpected token_lifetime: %d", cfg.TokenLifetime)
	}
	user, ok := cfg.Users["alice"]
	if !ok {
		t.Fatalf("user alice missing")
	}
	if user.Sub != "1001" || user.Password != "pw1" {
		t.Errorf("unexpected user record: %+v", user)
	}
	if len(cfg.Clients) != 1 || cfg.Clients[0].SigningAlg != AlgHS256 {
		t.Errorf("unexpected clients: %+v", cfg.Clients)
	}
}

func TestLoadConfigDefaultsTokenLifetime(t *testing.T) {
	content := strings.Replace(validYAML, "token_lifetime: 120\n", "", 1)
	cfg, err := LoadConfig(writeConfigFile(t, content))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TokenLifetime != DefaultTokenLifetime {
		t.Errorf("expected default lifetime %d, got %d", DefaultTokenLifetime, cfg.TokenLifetime)
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	content := validYAML + "\nunknown_section:\n  x: 1\n"
	if _, err := LoadConfig(writeConfigFile(t, content)); err == nil {
		t.Fatalf("expected unknown field to fail strict decoding")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("MOCKIDP_SERVER_PUBLIC_URL", "http://override.test")
	cfg, err := LoadConfig(writeConfigFile(t, validYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.PublicURL != "http://override.test" {
		t.Errorf("env override not applied: %q", cfg.Server.PublicURL)
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing public_url", func(c *Config) { c.Server.PublicURL = "" }},
		{"bad public_url scheme", func(c *Config) { c.Server.PublicURL = "ftp://idp.test" }},
		{"zero token_lifetime", func(c *Config) { c.TokenLifetime = 0 }},
		{"no users", func(c *Config) { c.Users = nil }},
		{"user missing sub", func(c *Config) {
			c.Users["alice"] = UserConfig{Password: "pw1"}
		}},
		{"user missing password", func(c *Config) {
			c.Users["alice"] = UserConfig{Sub: "1001"}
		}},
		{"duplicate sub", func(c *Config) {
			c.Users["bob"] = UserConfig{Sub: "1001", Password: "pw2"}
		}},
		{"no clients", func(c *Config) { c.Clients = nil }},
		{"client missing secret", func(c *Config) { c.Clients[0].ClientSecret = "" }},
		{"unknown signing_alg", func(c *Config) { c.Clients[0].SigningAlg = "ES256" }},
		{"client without key", func(c *Config) { delete(c.SigningKeys, "c1") }},
		{"key without client", func(c *Config) { c.SigningKeys["ghost"] = "x" }},
		{"duplicate client_id", func(c *Config) {
			c.Clients = append(c.Clients, Client{ClientID: "c1", ClientSecret: "x", SigningAlg: AlgHS256})
		}},
		{"prod without tls domains", func(c *Config) {
			c.Server.DevMode = false
			c.Server.TLS.Domains = nil
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Users = map[string]UserConfig{"alice": {Sub: "1001", Password: "pw1"}}
			cfg.Clients = []Client{{ClientID: "c1", ClientSecret: "s1", SigningAlg: AlgHS256}}
			cfg.SigningKeys = map[string]string{"c1": "shhh"}

			tc.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation to fail")
			}
		})
	}
}

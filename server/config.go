package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTokenLifetime is the advertised expires_in when the config does not
// set one. It matches the historical settings.json default.
const DefaultTokenLifetime = 3600

// Supported signing algorithms.
const (
	AlgHS256 = "HS256"
	AlgRS256 = "RS256"
)

// Config captures the full application configuration loaded from YAML and
// environment variables: the listener settings plus the static credential
// dataset (users, clients, signing keys).
type Config struct {
	Server ServerConfig `yaml:"server"`

	// TokenLifetime is the expires_in value reported by the token endpoint,
	// in seconds. Token exp claims use a separate fixed one-hour lifetime;
	// the two values are sourced independently and may disagree.
	TokenLifetime int64 `yaml:"token_lifetime"`

	// Users is keyed by login handle.
	Users map[string]UserConfig `yaml:"users"`

	Clients []Client `yaml:"clients"`

	// SigningKeys maps client_id to signing material: a shared secret for
	// HS256 clients, a PEM-encoded RSA private key for RS256 clients.
	SigningKeys map[string]string `yaml:"signing_keys"`
}

// ServerConfig controls listener, TLS, and HTTP concerns.
type ServerConfig struct {
	PublicURL       string    `yaml:"public_url"`
	DevListenAddr   string    `yaml:"dev_listen_addr"`
	HTTPListenAddr  string    `yaml:"http_listen_addr"`
	HTTPSListenAddr string    `yaml:"https_listen_addr"`
	DevMode         bool      `yaml:"dev_mode"`
	SecretsPath     string    `yaml:"secrets_path"`
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig defines autocert behaviour and TLS constraints.
type TLSConfig struct {
	Domains    []string `yaml:"domains"`
	Email      string   `yaml:"email"`
	MinVersion string   `yaml:"min_version"`
}

// UserConfig is the on-disk shape of a user record. The map key in
// Config.Users is the login handle; the login claim defaults to it.
type UserConfig struct {
	Sub        string   `yaml:"sub"`
	Name       string   `yaml:"name"`
	GivenName  string   `yaml:"given_name"`
	FamilyName string   `yaml:"family_name"`
	Login      string   `yaml:"login"`
	Roles      []string `yaml:"roles"`
	Password   string   `yaml:"password"`
}

// LoadConfig reads the YAML config file and merges environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}

		// Strict unmarshaling so typos in credential data fail loudly.
		decoder := yaml.NewDecoder(bytes.NewReader(b))
		decoder.KnownFields(true)

		if err := decoder.Decode(&cfg); err != nil {
			slog.Error("failed to parse configuration", "error", err, "file", path)
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("configuration validation failed", "error", err)
		return Config{}, err
	}

	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			PublicURL:       "http://127.0.0.1:44366",
			DevListenAddr:   "127.0.0.1:44366",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			SecretsPath:     ".secrets",
			TLS: TLSConfig{
				Domains:    []string{"localhost"},
				MinVersion: "1.2",
			},
		},
		TokenLifetime: DefaultTokenLifetime,
	}
}

// DefaultConfig returns the default configuration template.
func DefaultConfig() Config {
	return defaultConfig()
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"MOCKIDP_SERVER_PUBLIC_URL":        func(v string) { cfg.Server.PublicURL = v },
		"MOCKIDP_SERVER_DEV_LISTEN_ADDR":   func(v string) { cfg.Server.DevListenAddr = v },
		"MOCKIDP_SERVER_HTTP_LISTEN_ADDR":  func(v string) { cfg.Server.HTTPListenAddr = v },
		"MOCKIDP_SERVER_HTTPS_LISTEN_ADDR": func(v string) { cfg.Server.HTTPSListenAddr = v },
		"MOCKIDP_SERVER_DEV_MODE":          func(v string) { cfg.Server.DevMode = parseBool(v, cfg.Server.DevMode) },
		"MOCKIDP_SERVER_TLS_DOMAINS":       func(v string) { cfg.Server.TLS.Domains = splitAndTrim(v) },
		"MOCKIDP_SERVER_TLS_EMAIL":         func(v string) { cfg.Server.TLS.Email = v },
		"MOCKIDP_SERVER_SECRETS_PATH":      func(v string) { cfg.Server.SecretsPath = v },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate performs sanity checks on the config. The credential dataset is
// checked for internal consistency here; key material itself is parsed when
// the credential store is built.
func (c Config) Validate() error {
	if c.Server.PublicURL == "" {
		return errors.New("server.public_url is required")
	}
	if !strings.HasPrefix(c.Server.PublicURL, "http://") && !strings.HasPrefix(c.Server.PublicURL, "https://") {
		return fmt.Errorf("server.public_url must start with http:// or https://, got: %s", c.Server.PublicURL)
	}

	if !c.Server.DevMode && len(c.Server.TLS.Domains) == 0 {
		return errors.New("server.tls.domains must be provided in production")
	}
	if c.Server.TLS.MinVersion != "" {
		validVersions := map[string]bool{"1.2": true, "1.3": true}
		if !validVersions[c.Server.TLS.MinVersion] {
			return fmt.Errorf("server.tls.min_version must be '1.2' or '1.3', got: %s", c.Server.TLS.MinVersion)
		}
	}

	if c.TokenLifetime <= 0 {
		return fmt.Errorf("token_lifetime must be positive, got: %d", c.TokenLifetime)
	}

	if len(c.Users) == 0 {
		return errors.New("at least one user must be configured")
	}
	subjects := make(map[string]string, len(c.Users))
	for login, u := range c.Users {
		if u.Sub == "" {
			return fmt.Errorf("users.%s: sub is required", login)
		}
		if u.Password == "" {
			return fmt.Errorf("users.%s: password is required", login)
		}
		if prior, ok := subjects[u.Sub]; ok {
			return fmt.Errorf("users.%s: sub %q already used by users.%s", login, u.Sub, prior)
		}
		subjects[u.Sub] = login
	}

	if len(c.Clients) == 0 {
		return errors.New("at least one client must be configured")
	}
	seen := make(map[string]bool, len(c.Clients))
	for i, client := range c.Clients {
		if client.ClientID == "" {
			return fmt.Errorf("clients[%d]: client_id is required", i)
		}
		if seen[client.ClientID] {
			return fmt.Errorf("clients[%d]: duplicate client_id %q", i, client.ClientID)
		}
		seen[client.ClientID] = true
		if client.ClientSecret == "" {
			return fmt.Errorf("clients[%d] (%s): client_secret is required", i, client.ClientID)
		}
		switch client.SigningAlg {
		case AlgHS256, AlgRS256:
		default:
			return fmt.Errorf("clients[%d] (%s): signing_alg must be %s or %s, got: %q",
				i, client.ClientID, AlgHS256, AlgRS256, client.SigningAlg)
		}
		if _, ok := c.SigningKeys[client.ClientID]; !ok {
			return fmt.Errorf("clients[%d] (%s): no signing key configured", i, client.ClientID)
		}
	}

	for clientID := range c.SigningKeys {
		if !seen[clientID] {
			return fmt.Errorf("signing_keys.%s: no such client", clientID)
		}
	}

	return nil
}

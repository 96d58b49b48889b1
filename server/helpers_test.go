package server

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// rsaKeyPEM generates a throwaway RSA private key in the PEM form the config
// loader expects.
func rsaKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	return string(pem.EncodeToMemory(block))
}

// testConfig builds a config with one user and both a symmetric and an
// asymmetric client, the dataset most tests run against.
func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Users = map[string]UserConfig{
		"alice": {
			Sub:        "1001",
			Name:       "Alice Example",
			GivenName:  "Alice",
			FamilyName: "Example",
			Roles:      []string{"admin", "user"},
			Password:   "pw1",
		},
		"bob": {
			Sub:      "1002",
			Name:     "Bob Example",
			Password: "pw2",
		},
	}
	cfg.Clients = []Client{
		{ClientID: "c1", ClientSecret: "s1", SigningAlg: AlgHS256},
		{ClientID: "c2", ClientSecret: "s2", SigningAlg: AlgRS256},
	}
	cfg.SigningKeys = map[string]string{
		"c1": "integration-test-shared-secret",
		"c2": rsaKeyPEM(t),
	}
	return cfg
}

func testStore(t *testing.T, cfg Config) *CredentialStore {
	t.Helper()
	store, err := NewCredentialStore(cfg)
	if err != nil {
		t.Fatalf("NewCredentialStore: %v", err)
	}
	return store
}

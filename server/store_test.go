package server

import (
	"crypto/rsa"
	"testing"
)

func TestCredentialStoreLookups(t *testing.T) {
	store := testStore(t, testConfig(t))

	user, ok := store.FindUserByLogin("alice")
	if !ok {
		t.Fatalf("alice not found by login")
	}
	if user.Subject != "1001" {
		t.Errorf("unexpected subject: %q", user.Subject)
	}
	if user.Login != "alice" {
		t.Errorf("login claim should default to the map key, got %q", user.Login)
	}

	if same, ok := store.FindUserBySubject("1001"); !ok || same != user {
		t.Errorf("subject lookup should return the same record")
	}

	if _, ok := store.FindUserByLogin("nobody"); ok {
		t.Errorf("unexpected user for unknown login")
	}
	if _, ok := store.FindUserBySubject("9999"); ok {
		t.Errorf("unexpected user for unknown subject")
	}

	if _, ok := store.FindClient("c1"); !ok {
		t.Errorf("client c1 not found")
	}
	if _, ok := store.FindClient("cx"); ok {
		t.Errorf("unexpected client for unknown id")
	}
}

func TestAuthenticateClient(t *testing.T) {
	store := testStore(t, testConfig(t))

	if _, ok := store.AuthenticateClient("c1", "s1"); !ok {
		t.Errorf("expected c1/s1 to authenticate")
	}
	if _, ok := store.AuthenticateClient("c1", "wrong"); ok {
		t.Errorf("wrong secret must not authenticate")
	}
	if _, ok := store.AuthenticateClient("cx", "s1"); ok {
		t.Errorf("unknown client must not authenticate")
	}
}

func TestSigningKeyMaterial(t *testing.T) {
	store := testStore(t, testConfig(t))

	hs, ok := store.KeyFor("c1")
	if !ok {
		t.Fatalf("no key for c1")
	}
	sign, ok := hs.Sign.([]byte)
	if !ok {
		t.Fatalf("HS256 sign key should be a byte secret, got %T", hs.Sign)
	}
	if string(sign) != "integration-test-shared-secret" {
		t.Errorf("unexpected secret: %q", sign)
	}
	if _, ok := hs.Verify.([]byte); !ok {
		t.Errorf("HS256 verify key should be a byte secret, got %T", hs.Verify)
	}

	rs, ok := store.KeyFor("c2")
	if !ok {
		t.Fatalf("no key for c2")
	}
	priv, ok := rs.Sign.(*rsa.PrivateKey)
	if !ok {
		t.Fatalf("RS256 sign key should be a private key, got %T", rs.Sign)
	}
	pub, ok := rs.Verify.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("RS256 verify key should be a public key, got %T", rs.Verify)
	}
	if pub.N.Cmp(priv.N) != 0 {
		t.Errorf("verify key should be the public half of the sign key")
	}
}

func TestNewCredentialStoreRejectsBadPEM(t *testing.T) {
	cfg := testConfig(t)
	cfg.SigningKeys["c2"] = "not a pem"
	if _, err := NewCredentialStore(cfg); err == nil {
		t.Fatalf("expected bad PEM to fail store construction")
	}
}

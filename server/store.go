package server

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialStore is the in-memory registry of users, clients, and signing
// keys. It is built once from configuration and never written afterwards, so
// lookups are safe under concurrent request handling without locking.
type CredentialStore struct {
	usersByLogin   map[string]*User
	usersBySubject map[string]*User
	clients        map[string]*Client
	keys           map[string]*SigningKey
}

// NewCredentialStore indexes the configured dataset and parses key material.
// Any inconsistency is a startup failure; the process must not serve with a
// partial registry.
func NewCredentialStore(cfg Config) (*CredentialStore, error) {
	s := &CredentialStore{
		usersByLogin:   make(map[string]*User, len(cfg.Users)),
		usersBySubject: make(map[string]*User, len(cfg.Users)),
		clients:        make(map[string]*Client, len(cfg.Clients)),
		keys:           make(map[string]*SigningKey, len(cfg.SigningKeys)),
	}

	for login, uc := range cfg.Users {
		user := &User{
			Subject:    uc.Sub,
			Name:       uc.Name,
			GivenName:  uc.GivenName,
			FamilyName: uc.FamilyName,
			Login:      uc.Login,
			Roles:      uc.Roles,
			Password:   uc.Password,
		}
		if user.Login == "" {
			user.Login = login
		}
		// Authentication is keyed by the config map key, the login handle.
		s.usersByLogin[login] = user
		s.usersBySubject[user.Subject] = user
	}

	for i := range cfg.Clients {
		client := cfg.Clients[i]
		s.clients[client.ClientID] = &client

		raw, ok := cfg.SigningKeys[client.ClientID]
		if !ok {
			return nil, fmt.Errorf("client %s: no signing key configured", client.ClientID)
		}
		key, err := buildSigningKey(client.ClientID, client.SigningAlg, raw)
		if err != nil {
			return nil, fmt.Errorf("client %s: %w", client.ClientID, err)
		}
		s.keys[client.ClientID] = key
	}

	return s, nil
}

// buildSigningKey parses configured material into usable sign/verify keys.
// Both sides come from the same configured value; see SigningKey.
func buildSigningKey(clientID, alg, raw string) (*SigningKey, error) {
	key := &SigningKey{ClientID: clientID, Alg: alg, Raw: raw}
	switch alg {
	case AlgHS256:
		secret := []byte(raw)
		key.Sign = secret
		key.Verify = secret
	case AlgRS256:
		priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("parse RSA private key: %w", err)
		}
		key.Sign = priv
		key.Verify = &priv.PublicKey
	default:
		return nil, fmt.Errorf("unsupported signing_alg %q", alg)
	}
	return key, nil
}

// FindUserByLogin returns the user registered under the given login handle.
func (s *CredentialStore) FindUserByLogin(login string) (*User, bool) {
	user, ok := s.usersByLogin[login]
	return user, ok
}

// FindUserBySubject returns the user owning the given sub claim.
func (s *CredentialStore) FindUserBySubject(sub string) (*User, bool) {
	user, ok := s.usersBySubject[sub]
	return user, ok
}

// FindClient returns the client registered under client_id.
func (s *CredentialStore) FindClient(clientID string) (*Client, bool) {
	client, ok := s.clients[clientID]
	return client, ok
}

// AuthenticateClient resolves a client by id and secret. Secrets are compared
// in plaintext, matching the test-only credential model.
func (s *CredentialStore) AuthenticateClient(clientID, clientSecret string) (*Client, bool) {
	client, ok := s.clients[clientID]
	if !ok || client.ClientSecret != clientSecret {
		return nil, false
	}
	return client, true
}

// KeyFor returns the signing key bound to a client_id. Every registered
// client has exactly one key; the store cannot be built otherwise.
func (s *CredentialStore) KeyFor(clientID string) (*SigningKey, bool) {
	key, ok := s.keys[clientID]
	return key, ok
}

// Keys returns all signing keys for JWKS reflection.
func (s *CredentialStore) Keys() []*SigningKey {
	out := make([]*SigningKey, 0, len(s.keys))
	for _, key := range s.keys {
		out = append(out, key)
	}
	return out
}

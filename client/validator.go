// Package client validates tokens minted by a mockidp server from the
// relying-party side, using the server's published JWKS. It is meant for
// services under integration test that want to check bearer tokens without
// talking to the userinfo endpoint on every request.
package client

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ValidatorConfig configures the token validator.
type ValidatorConfig struct {
	// JWKSURL is the mock server's JWKS endpoint. Keys there are keyed by
	// client_id and carry the algorithm each client signs with.
	JWKSURL    string
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

// Validator verifies mockidp-signed JWT tokens.
type Validator struct {
	cfg    ValidatorConfig
	client *http.Client
	mu     sync.RWMutex
	set    jose.JSONWebKeySet
	raw    map[string]json.RawMessage
	expiry time.Time
}

// Claims is a simplified view of validated token claims.
type Claims struct {
	Subject    string
	Name       string
	GivenName  string
	FamilyName string
	Login      string
	Roles      []string
	ClientID   string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

type tokenClaims struct {
	Name       string   `json:"name"`
	GivenName  string   `json:"given_name"`
	FamilyName string   `json:"family_name"`
	Login      string   `json:"login"`
	Roles      []string `json:"roles"`
	ClientID   string   `json:"client_id"`
	jwt.RegisteredClaims
}

// NewValidator creates a validator with sane defaults.
func NewValidator(cfg ValidatorConfig) *Validator {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Validator{cfg: cfg, client: client}
}

// Validate downloads the JWKS if necessary and validates the token. The
// token's client_id claim selects the key, mirroring the server's own
// verification, and the accepted method is pinned to the key's algorithm.
func (v *Validator) Validate(ctx context.Context, rawToken string) (*Claims, error) {
	if rawToken == "" {
		return nil, errors.New("token required")
	}

	unverified := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, unverified); err != nil {
		return nil, fmt.Errorf("malformed token: %w", err)
	}

	key, alg, err := v.keyFor(ctx, unverified.ClientID)
	if err != nil {
		return nil, err
	}

	claims := &tokenClaims{}
	_, err = jwt.ParseWithClaims(rawToken, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{alg}),
	)
	if err != nil {
		return nil, err
	}

	out := &Claims{
		Subject:    claims.Subject,
		Name:       claims.Name,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		Login:      claims.Login,
		Roles:      claims.Roles,
		ClientID:   claims.ClientID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// HasRoles ensures the claims include the required roles.
func (v *Validator) HasRoles(claims *Claims, required ...string) error {
	for _, need := range required {
		if !slices.Contains(claims.Roles, need) {
			return fmt.Errorf("missing role %s", need)
		}
	}
	return nil
}

// keyFor resolves the verification key and algorithm for a client_id,
// refreshing the cached JWKS on miss or expiry.
func (v *Validator) keyFor(ctx context.Context, clientID string) (any, string, error) {
	v.mu.RLock()
	jwk, ok := findKey(v.set, clientID)
	fresh := time.Now().Before(v.expiry)
	v.mu.RUnlock()

	if !ok || !fresh {
		if err := v.refresh(ctx); err != nil {
			return nil, "", err
		}
		v.mu.RLock()
		jwk, ok = findKey(v.set, clientID)
		v.mu.RUnlock()
	}
	if !ok {
		return nil, "", fmt.Errorf("no signing key for client %s", clientID)
	}

	switch key := jwk.Key.(type) {
	case *rsa.PrivateKey:
		// The mock publishes private RSA material; verify with its public half.
		return &key.PublicKey, jwk.Algorithm, nil
	case *rsa.PublicKey:
		return key, jwk.Algorithm, nil
	case []byte:
		return key, jwk.Algorithm, nil
	default:
		return nil, "", fmt.Errorf("unsupported key type for client %s", clientID)
	}
}

func (v *Validator) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
	if err != nil {
		return fmt.Errorf("create jwks request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read jwks: %w", err)
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("parse jwks: %w", err)
	}

	v.mu.Lock()
	v.set = set
	v.expiry = time.Now().Add(v.cfg.CacheTTL)
	v.mu.Unlock()
	return nil
}

func findKey(set jose.JSONWebKeySet, kid string) (jose.JSONWebKey, bool) {
	for _, key := range set.Keys {
		if key.KeyID == kid {
			return key, true
		}
	}
	return jose.JSONWebKey{}, false
}

// RequireAuth is middleware that validates bearer tokens and injects claims
// into the request context.
func RequireAuth(v *Validator, requiredRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := v.Validate(r.Context(), raw)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if err := v.HasRoles(claims, requiredRoles...); err != nil {
				http.Error(w, err.Error(), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

type claimsKey struct{}

// WithClaims stores validated claims on a context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext retrieves claims stored by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failure taxonomy. The error text doubles as the wire error
// code returned by the userinfo endpoint.
var (
	ErrMissingAuthorization = errors.New("missing_authorization")
	ErrTokenExpired         = errors.New("token_expired")
	ErrInvalidToken         = errors.New("invalid_token")
	ErrUserNotFound         = errors.New("user_not_found")
)

// tokenExpiry is the exp claim lifetime. It is fixed at one hour and is NOT
// derived from the configured token_lifetime that the token endpoint
// advertises as expires_in; the two values have always been independent in
// this server and relying-party tests depend on the advertised one.
const tokenExpiry = time.Hour

// TokenClaims is the single claim set minted into both the access and the ID
// token. Profile claims are omitted when no user record backs the subject,
// which happens for the client_credentials grant.
type TokenClaims struct {
	Name       string   `json:"name,omitempty"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	Login      string   `json:"login,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	ClientID   string   `json:"client_id"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies per-client signed tokens.
type TokenService struct {
	store    *CredentialStore
	lifetime int64
	logger   *slog.Logger
}

// NewTokenService constructs a TokenService.
func NewTokenService(cfg Config, store *CredentialStore, logger *slog.Logger) *TokenService {
	return &TokenService{
		store:    store,
		lifetime: cfg.TokenLifetime,
		logger:   logger,
	}
}

// Issue builds one claim set from the user profile and signs it twice with
// the client's algorithm and key. The two resulting tokens are identical;
// they differ only in the role they play in the response. user may be nil.
func (ts *TokenService) Issue(user *User, clientID, alg string, key *SigningKey) (TokenResponse, error) {
	now := time.Now()
	claims := TokenClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenExpiry)),
		},
	}
	if user != nil {
		claims.Subject = user.Subject
		claims.Name = user.Name
		claims.GivenName = user.GivenName
		claims.FamilyName = user.FamilyName
		claims.Login = user.Login
		claims.Roles = user.Roles
	}

	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return TokenResponse{}, errors.New("unsupported signing algorithm")
	}

	accessToken, err := jwt.NewWithClaims(method, claims).SignedString(key.Sign)
	if err != nil {
		return TokenResponse{}, err
	}
	idToken, err := jwt.NewWithClaims(method, claims).SignedString(key.Sign)
	if err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken: accessToken,
		IDToken:     idToken,
		TokenType:   "Bearer",
		ExpiresIn:   ts.lifetime,
	}, nil
}

// Verify validates a bearer token and resolves it to a stored user.
//
// The two-phase structure is deliberate and must keep its order: the token is
// first parsed WITHOUT signature verification, purely to read the claimed
// client_id and pick the verification key; nothing from that parse is trusted.
// Only then is the token parsed again with the resolved key, with accepted
// methods pinned to the algorithm registered for that client so a forged
// header cannot downgrade the check.
func (ts *TokenService) Verify(raw string) (*User, error) {
	unverified := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, unverified); err != nil {
		return nil, ErrInvalidToken
	}

	client, ok := ts.store.FindClient(unverified.ClientID)
	if !ok {
		ts.logger.Warn("no signing key for claimed client", "client_id", unverified.ClientID)
		return nil, ErrInvalidToken
	}
	key, ok := ts.store.KeyFor(client.ClientID)
	if !ok {
		return nil, ErrInvalidToken
	}

	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return key.Verify, nil },
		jwt.WithValidMethods([]string{client.SigningAlg}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	user, ok := ts.store.FindUserBySubject(claims.Subject)
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

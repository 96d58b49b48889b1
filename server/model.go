package server

// User is an identity record loaded at startup. Records are immutable for
// the life of the process; the userinfo endpoint reflects the whole record,
// password included, because this server is a test double.
type User struct {
	Subject    string   `json:"sub" yaml:"sub"`
	Name       string   `json:"name" yaml:"name"`
	GivenName  string   `json:"given_name" yaml:"given_name"`
	FamilyName string   `json:"family_name" yaml:"family_name"`
	Login      string   `json:"login" yaml:"login"`
	Roles      []string `json:"roles" yaml:"roles"`
	Password   string   `json:"password" yaml:"password"`
}

// Client is a registered relying party.
type Client struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	SigningAlg   string `yaml:"signing_alg"`
}

// SigningKey holds the material used to sign and verify one client's tokens.
// Sign and Verify are kept as distinct fields even though the loader fills
// both from the same configured value (HS256: the shared secret twice; RS256:
// the private key and its embedded public key). A real deployment would load
// them from separate material; only the loader needs to change for that.
type SigningKey struct {
	ClientID string
	Alg      string
	Sign     any
	Verify   any

	// Raw is the configured key value, reflected by the JWKS endpoint. For
	// RS256 this is a private-key PEM: the server exposes its signing
	// material on purpose so test harnesses can mint their own tokens.
	// Unsuitable for anything but testing.
	Raw string
}

// AuthTransaction is the per-session state accumulated across /authorize and
// /login and read by /token for the authorization_code grant. The four request
// fields are stored verbatim; Username and Code are filled in by /login.
// A redeemed code is not removed from the transaction, so it stays valid for
// the rest of the session.
type AuthTransaction struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	State        string
	Username     string
	Code         string
}

// TokenResponse matches the OAuth token endpoint payload. The access and ID
// tokens carry an identical claim set and differ only in intended usage.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// OAuthError is the single-field error body every endpoint returns on failure.
type OAuthError struct {
	Error string `json:"error"`
}

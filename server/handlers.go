package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// App bundles runtime dependencies for the HTTP service.
type App struct {
	Config       Config
	Logger       *slog.Logger
	Store        *CredentialStore
	Sessions     *SessionManager
	Transactions TransactionStore
	Tokens       *TokenService
}

// NewApp wires together the application state from configuration.
func NewApp(cfg Config, logger *slog.Logger) (*App, error) {
	store, err := NewCredentialStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("build credential store: %w", err)
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		Store:        store,
		Sessions:     NewSessionManager(cfg),
		Transactions: NewInMemoryTransactionStore(),
		Tokens:       NewTokenService(cfg, store, logger),
	}, nil
}

func (a *App) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, BuildDiscoveryDocument(a.Config))
}

func (a *App) handleJWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, BuildJWKS(a.Store))
}

// handleAuthorize opens an authorization transaction for the caller's session
// and presents the credential form. The redirect_uri is stored verbatim; this
// server keeps the historical behaviour of not checking it against an
// allow-list, so tests can point it anywhere.
func (a *App) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")

	if _, ok := a.Store.FindClient(clientID); !ok {
		a.Logger.Warn("authorize unknown client", "client_id", clientID)
		writeOAuthError(w, http.StatusBadRequest, "invalid_client")
		return
	}

	sid := a.Sessions.Ensure(w, r)
	a.Transactions.Put(sid, AuthTransaction{
		ClientID:     clientID,
		RedirectURI:  q.Get("redirect_uri"),
		ResponseType: q.Get("response_type"),
		State:        q.Get("state"),
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, loginFormHTML)
}

const loginFormHTML = `<form action="/login" method="post">` +
	`<input name="username">` +
	`<input type="password" name="password">` +
	`<button type="submit">Login</button>` +
	`</form>`

// handleLogin authenticates the resource owner and redirects back to the
// relying party with a fresh authorization code. The redirect target and
// state come only from the stored transaction, never from this request, so a
// tampered login POST cannot turn the endpoint into an open redirect.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")

	user, ok := a.Store.FindUserByLogin(username)
	if !ok || user.Password != password {
		a.Logger.Warn("login failed", "username", username)
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
		return
	}

	sid := a.Sessions.Ensure(w, r)
	txn, _ := a.Transactions.Get(sid)
	txn.Username = username
	txn.Code = uuid.NewString()
	a.Transactions.Put(sid, txn)

	redirect, err := url.Parse(txn.RedirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
		return
	}
	values := redirect.Query()
	values.Set("code", txn.Code)
	values.Set("state", txn.State)
	redirect.RawQuery = values.Encode()

	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

// handleToken is the multi-grant token endpoint. Client resolution failures
// and grant-specific failures surface as exactly invalid_client and
// invalid_grant; no further detail leaks to the caller.
func (a *App) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client")
		return
	}

	client, ok := a.Store.AuthenticateClient(r.FormValue("client_id"), r.FormValue("client_secret"))
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client")
		return
	}

	key, ok := a.Store.KeyFor(client.ClientID)
	if !ok {
		// Unreachable for a store that passed validation.
		writeOAuthError(w, http.StatusBadRequest, "invalid_client")
		return
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		a.exchangeAuthorizationCode(w, r, client, key)
	case "password":
		a.exchangePassword(w, r, client, key)
	case "client_credentials":
		a.exchangeClientCredentials(w, r, client, key)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type")
	}
}

// exchangeAuthorizationCode redeems a code against the session's transaction.
// The transaction is read, not cleared: the code stays redeemable for the
// rest of the session, which relying-party test suites rely on.
func (a *App) exchangeAuthorizationCode(w http.ResponseWriter, r *http.Request, client *Client, key *SigningKey) {
	txn, ok := a.Transactions.Get(a.Sessions.SessionID(r))
	if !ok || txn.Code == "" || r.FormValue("code") != txn.Code {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
		return
	}

	user, _ := a.Store.FindUserByLogin(txn.Username)
	a.issueTokens(w, user, client, key)
}

func (a *App) exchangePassword(w http.ResponseWriter, r *http.Request, client *Client, key *SigningKey) {
	user, ok := a.Store.FindUserByLogin(r.FormValue("username"))
	if !ok || user.Password != r.FormValue("password") {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
		return
	}
	a.issueTokens(w, user, client, key)
}

// exchangeClientCredentials issues tokens with the client_id standing in as
// the username. The user lookup almost always misses because clients and
// users are distinct identity spaces; the claim set then degrades to the
// client_id and timestamps. See DESIGN.md for the reasoning.
func (a *App) exchangeClientCredentials(w http.ResponseWriter, r *http.Request, client *Client, key *SigningKey) {
	user, _ := a.Store.FindUserByLogin(client.ClientID)
	a.issueTokens(w, user, client, key)
}

func (a *App) issueTokens(w http.ResponseWriter, user *User, client *Client, key *SigningKey) {
	resp, err := a.Tokens.Issue(user, client.ClientID, client.SigningAlg, key)
	if err != nil {
		a.Logger.Error("issue tokens", "client_id", client.ClientID, "error", err)
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
		return
	}
	writeJSON(w, resp)
}

// handleUserInfo validates the bearer token and returns the full stored user
// record, not merely the token's claim subset.
func (a *App) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	raw := extractBearerToken(r.Header.Get("Authorization"))
	if raw == "" {
		writeOAuthError(w, http.StatusUnauthorized, ErrMissingAuthorization.Error())
		return
	}

	user, err := a.Tokens.Verify(raw)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, ErrUserNotFound) {
			status = http.StatusNotFound
		}
		writeOAuthError(w, status, err.Error())
		return
	}

	writeJSON(w, user)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeOAuthError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(OAuthError{Error: code})
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

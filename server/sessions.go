package server

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
)

const sessionCookieName = "mockidp_session"

// TransactionStore holds the in-flight authorization transaction for each
// browser session. It is an explicit abstraction rather than ambient global
// state so tests and alternate deployments can swap the backing store.
type TransactionStore interface {
	Get(sessionID string) (AuthTransaction, bool)
	Put(sessionID string, txn AuthTransaction)
	Delete(sessionID string)
}

// InMemoryTransactionStore is the default TransactionStore. Transactions are
// scoped per session, so the mutex only guards the map itself.
type InMemoryTransactionStore struct {
	mu   sync.RWMutex
	txns map[string]AuthTransaction
}

// NewInMemoryTransactionStore constructs the store.
func NewInMemoryTransactionStore() *InMemoryTransactionStore {
	return &InMemoryTransactionStore{txns: make(map[string]AuthTransaction)}
}

// Get retrieves the transaction for a session.
func (s *InMemoryTransactionStore) Get(sessionID string) (AuthTransaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txn, ok := s.txns[sessionID]
	return txn, ok
}

// Put stores or replaces the transaction for a session.
func (s *InMemoryTransactionStore) Put(sessionID string, txn AuthTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns[sessionID] = txn
}

// Delete removes a session's transaction.
func (s *InMemoryTransactionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.txns, sessionID)
}

// SessionManager binds browser sessions to a cookie.
type SessionManager struct {
	secure bool
}

// NewSessionManager constructs a session manager honouring config.
func NewSessionManager(cfg Config) *SessionManager {
	return &SessionManager{secure: !cfg.Server.DevMode}
}

// SessionID returns the session identifier carried by the request cookie, or
// "" when the caller has no session yet.
func (sm *SessionManager) SessionID(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Ensure returns the request's session identifier, establishing a new session
// and setting the cookie when none exists.
func (sm *SessionManager) Ensure(w http.ResponseWriter, r *http.Request) string {
	if id := sm.SessionID(r); id != "" {
		return id
	}
	id := newSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte("fallbacksession"))
	}
	return hex.EncodeToString(buf)
}

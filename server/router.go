package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes constructs the HTTP router with all OAuth/OIDC endpoints.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(a.Logger))
	r.Use(RecoveryMiddleware(a.Logger))

	r.Get("/.well-known/openid-configuration", a.handleDiscovery)
	r.Get("/.well-known/jwks", a.handleJWKS)

	r.Get("/authorize", a.handleAuthorize)
	r.Post("/login", a.handleLogin)
	r.Post("/token", a.handleToken)
	r.Get("/userinfo", a.handleUserInfo)

	return r
}

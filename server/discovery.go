package server

import "strings"

// DiscoveryDocument is a simple alias for discovery metadata.
type DiscoveryDocument map[string]any

// BuildDiscoveryDocument constructs the OIDC discovery document. The values
// are pure reflections of configuration; the implicit entries advertise what
// the historical server advertised, not flows this server implements.
func BuildDiscoveryDocument(cfg Config) DiscoveryDocument {
	issuer := strings.TrimSuffix(cfg.Server.PublicURL, "/")
	return DiscoveryDocument{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/authorize",
		"token_endpoint":                        issuer + "/token",
		"userinfo_endpoint":                     issuer + "/userinfo",
		"jwks_uri":                              issuer + "/.well-known/jwks",
		"response_types_supported":              []string{"code", "token", "id_token"},
		"grant_types_supported":                 []string{"authorization_code", "implicit", "password", "client_credentials"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{AlgRS256, AlgHS256},
	}
}

package server

import (
	"sort"

	"github.com/go-jose/go-jose/v3"
)

// BuildJWKS renders every client's signing key as a JWK, keyed by client_id.
// Symmetric secrets become oct keys and RSA keys are serialized with their
// private parts: the endpoint hands out raw signing material so test harnesses
// can mint their own tokens. Never expose this outside a test environment.
func BuildJWKS(store *CredentialStore) jose.JSONWebKeySet {
	keys := store.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].ClientID < keys[j].ClientID })

	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(keys))}
	for _, key := range keys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       key.Sign,
			KeyID:     key.ClientID,
			Algorithm: key.Alg,
			Use:       "sig",
		})
	}
	return set
}

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Scope controls what an API key is allowed to do. ReadOnly keys are
// rejected by require_admin_auth.
type Scope string

const (
	ScopeReadOnly Scope = "read_only"
	ScopeFull     Scope = "full"
)

// APIKey is one stored key record. The plaintext is never retained
// past generation.
type APIKey struct {
	KeyHash   string
	Name      string
	Scope     Scope
	CreatedAt time.Time
	Revoked   bool
}

// APIKeyStore is an in-memory list of issued keys, hashed with SHA-256.
// Validation compares the caller's hash against every stored hash
// using constant-time equality: the original ported here used a plain
// `==`, which leaks comparison timing proportional to the matching
// prefix length; every candidate is compared at fixed cost here
// instead.
type APIKeyStore struct {
	mu   sync.Mutex
	keys []APIKey
}

func NewAPIKeyStore() *APIKeyStore {
	return &APIKeyStore{}
}

// Generate mints a new key, returning the plaintext (shown to the
// caller once) and recording only its hash.
func (s *APIKeyStore) Generate(name string, scope Scope) (plaintext string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	plaintext = base64.RawURLEncoding.EncodeToString(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, APIKey{
		KeyHash:   hashKey(plaintext),
		Name:      name,
		Scope:     scope,
		CreatedAt: time.Now(),
	})
	return plaintext, nil
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Validate reports whether plaintext matches a non-revoked stored key,
// returning that key's record on success.
func (s *APIKeyStore) Validate(plaintext string) (APIKey, bool) {
	hash := []byte(hashKey(plaintext))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.Revoked {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(k.KeyHash), hash) == 1 {
			return k, true
		}
	}
	return APIKey{}, false
}

// Revoke marks every key with the given name as revoked.
func (s *APIKeyStore) Revoke(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.keys {
		if s.keys[i].Name == name && !s.keys[i].Revoked {
			s.keys[i].Revoked = true
			n++
		}
	}
	return n
}

// RevokeByHash marks the single key identified by its stored hash as
// revoked, matching the DELETE /api/keys/<hash> addressing scheme.
func (s *APIKeyStore) RevokeByHash(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.keys {
		if s.keys[i].KeyHash == hash && !s.keys[i].Revoked {
			s.keys[i].Revoked = true
			return true
		}
	}
	return false
}

// List returns a snapshot of every stored key record (hashes only,
// never plaintext).
func (s *APIKeyStore) List() []APIKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]APIKey, len(s.keys))
	copy(out, s.keys)
	return out
}

// CleanupRevoked compacts the list, dropping revoked keys for good.
func (s *APIKeyStore) CleanupRevoked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.keys[:0]
	for _, k := range s.keys {
		if !k.Revoked {
			kept = append(kept, k)
		}
	}
	s.keys = kept
}

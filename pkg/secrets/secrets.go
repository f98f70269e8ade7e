// Package secrets provides the credential store boundary. The core never
// persists secrets; it consults the store at each use. Retrieval order is
// platform keychain → environment → configured default → nil, expressed as a
// Chain over Store implementations.
package secrets

import (
	"os"
	"strings"
	"sync"
)

// Store is the credential store interface. Get returns ("", false) when the
// key is absent.
type Store interface {
	GetSecret(key string) (string, bool)
	SetSecret(key, value string) error
	DeleteSecret(key string) error
}

// Key namespaces a secret key per account: "<accountID>/<name>".
func Key(accountID, name string) string {
	return accountID + "/" + name
}

// EnvStore resolves secrets from environment variables. Keys are upper-cased
// with path separators and dashes mapped to underscores, so
// "default/imap-password" becomes "DEFAULT_IMAP_PASSWORD".
type EnvStore struct {
	// Prefix is prepended to every variable name (e.g. "CORTEX_").
	Prefix string
}

// envName converts a namespaced key to an environment variable name.
func (s *EnvStore) envName(key string) string {
	name := strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(key)
	return s.Prefix + strings.ToUpper(name)
}

// GetSecret reads the secret from the environment.
func (s *EnvStore) GetSecret(key string) (string, bool) {
	v, ok := os.LookupEnv(s.envName(key))
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// SetSecret sets the environment variable for the current process only.
func (s *EnvStore) SetSecret(key, value string) error {
	return os.Setenv(s.envName(key), value)
}

// DeleteSecret unsets the environment variable for the current process only.
func (s *EnvStore) DeleteSecret(key string) error {
	return os.Unsetenv(s.envName(key))
}

// StaticStore serves configured default values. Writes mutate only the
// in-memory map; nothing is persisted.
type StaticStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewStaticStore creates a store over the given defaults (may be nil).
func NewStaticStore(values map[string]string) *StaticStore {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &StaticStore{values: copied}
}

// GetSecret returns the configured default for the key.
func (s *StaticStore) GetSecret(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok && v != ""
}

// SetSecret stores the value in memory.
func (s *StaticStore) SetSecret(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// DeleteSecret removes the value from memory.
func (s *StaticStore) DeleteSecret(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Chain consults stores in order; the first hit wins. Writes go to the first
// store that accepts them; deletes are applied to every store.
type Chain struct {
	stores []Store
}

// NewChain builds a chain over the given stores, consulted in order.
func NewChain(stores ...Store) *Chain {
	return &Chain{stores: stores}
}

// GetSecret returns the first value found across the chain.
func (c *Chain) GetSecret(key string) (string, bool) {
	for _, s := range c.stores {
		if v, ok := s.GetSecret(key); ok {
			return v, true
		}
	}
	return "", false
}

// SetSecret writes to the first store that accepts the value.
func (c *Chain) SetSecret(key, value string) error {
	var lastErr error
	for _, s := range c.stores {
		if err := s.SetSecret(key, value); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// DeleteSecret removes the key from every store in the chain.
func (c *Chain) DeleteSecret(key string) error {
	var lastErr error
	for _, s := range c.stores {
		if err := s.DeleteSecret(key); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Package keysmanager implements the "keys manager" collaborator spec.md
// §3 and §6 describe but leave external: a directory that maps names (and
// other identifiers) to keys. It is grounded on
// internal/keymanager/memory.go's InMemoryKeyManager in the teacher repo —
// same mutex-guarded map, same namespaced lookup shape — generalized from
// "create or fetch a signing key" to "find an existing key by name".
package keysmanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/alechenninger/keyinfo/internal/keydata"
)

// Manager resolves names to keys on behalf of the KeyName handler
// (spec.md §4.2). Implementations are treated as read-only by the core
// and may be shared across concurrent KeyInfoContexts by reference
// (spec.md §5 "Shared resources").
type Manager interface {
	// FindKeyByName looks up a key by the name read from a <KeyName>
	// element. Returns (nil, nil) if no key is registered under name —
	// that is not an error, it is the "manager returns nothing" case in
	// spec.md §4.2 that causes the core to record the attempt and
	// continue rather than fail.
	FindKeyByName(ctx context.Context, name string, req *keydata.KeyReq) (*keydata.Key, error)
}

// InMemory is a Manager backed by a plain map, suitable for tests, the
// example CLI, and any deployment where keys are provisioned out of band
// (e.g. loaded once at startup from a config-referenced keystore).
type InMemory struct {
	mu   sync.RWMutex
	keys map[string]*keydata.Key
}

// NewInMemory creates an empty in-memory keys manager.
func NewInMemory() *InMemory {
	return &InMemory{keys: make(map[string]*keydata.Key)}
}

// Register adds or replaces the key available under name.
func (m *InMemory) Register(name string, key *keydata.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[name] = key
}

// Remove deletes the key registered under name, if any.
func (m *InMemory) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, name)
}

// FindKeyByName implements Manager.
func (m *InMemory) FindKeyByName(ctx context.Context, name string, req *keydata.KeyReq) (*keydata.Key, error) {
	m.mu.RLock()
	k, ok := m.keys[name]
	m.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if req != nil && !k.Matches(req) {
		return nil, nil
	}
	return k, nil
}

// ErrNotFound is returned by Manager implementations that distinguish
// "lookup failed" from "not present" at the transport level (e.g. a
// remote keystore); the keyinfo core only ever treats a (nil, nil)
// result as "not found" per spec.md §4.2, so implementations that can
// fail at the network layer should fold ErrNotFound into (nil, nil)
// before returning from FindKeyByName and reserve a non-nil error for
// genuine failures.
var ErrNotFound = fmt.Errorf("keysmanager: key not found")

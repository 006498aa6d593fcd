// Package keydata implements the handler registry described in spec.md
// §3 (KeyDataDescriptor) and §6 (descriptor registry interface). It is
// grounded on the registry shape used throughout the teacher repo
// (internal/keys/registry.go's SignerRegistry, internal/issuer/registry.go's
// SimpleRegistry): a mutex-guarded map plus a handful of lookup methods,
// rather than anything etree- or XML-Sig specific.
package keydata

import (
	"fmt"
	"sync"

	"github.com/beevik/etree"
)

// Usage is a bitset describing the directions and contexts in which a
// descriptor may be dispatched (spec.md §3, §4.1, §4.3).
type Usage uint32

const (
	UsageReadFromKeyInfo Usage = 1 << iota
	UsageWriteToKeyInfo
	UsageReadFromKeyValue
	UsageWriteKeyValue
	UsageRetrievalMethod
	UsageRetrievalMethodNodeXml
)

// Has reports whether all bits in want are set in u.
func (u Usage) Has(want Usage) bool {
	return u&want == want
}

// Any reports whether any bit in want is set in u.
func (u Usage) Any(want Usage) bool {
	return u&want != 0
}

// KeyType identifies the cryptographic shape of key material, mirroring
// internal/keymanager.KeyType in the teacher repo.
type KeyType string

const (
	KeyTypeAny    KeyType = ""
	KeyTypeRSA    KeyType = "RSA"
	KeyTypeEC     KeyType = "EC"
	KeyTypeHMAC   KeyType = "HMAC"
	KeyTypeAES    KeyType = "AES"
	KeyTypeDSA    KeyType = "DSA"
	KeyTypeX509   KeyType = "X509"
	KeyTypeRawOct KeyType = "OCT" // raw octet string, as produced by EncryptedKey/DerivedKey binary readers
)

// Context is the minimal slice of *keyinfo.Context a key-data descriptor's
// callback needs. It exists to avoid an import cycle between keydata
// (which keyinfo depends on for dispatch) and keyinfo (which owns the
// full context) — the same ownership-direction fix spec.md §9 prescribes
// for the encryption-context cycle.
type Context interface {
	// Requirement is the key requirement candidate keys are matched
	// against (spec.md §3 keyReq).
	Requirement() *KeyReq

	// EnabledContains reports whether enabledKeyData is empty (meaning
	// "no restriction") or contains id.
	EnabledContains(id string) bool

	// UserDataValue is the opaque pointer threaded through from the caller.
	UserDataValue() any
}

// Value is a typed key-data instance: the primary or auxiliary material
// carried by a Key (spec.md §3 Key). Concrete implementations (RSAKeyValue,
// X509Data bodies, raw octet strings, ...) are out of the core's scope
// per spec.md §1; internal/keydatatypes provides illustrative ones.
type Value interface {
	// DescriptorID identifies which registered Descriptor produced/
	// consumes this value.
	DescriptorID() string

	// Type reports the key's cryptographic shape.
	Type() KeyType

	// Size reports the key size in bits, used for keyReq.MinKeySize
	// matching; 0 if not meaningful for this value.
	Size() int

	// IsValid reports whether the value carries usable key material.
	IsValid() bool

	// Material exposes the underlying crypto material (a crypto.PublicKey,
	// crypto.PrivateKey, crypto.Signer, or raw []byte secret, depending on
	// DescriptorID) for collaborators that must perform actual
	// cryptographic operations on it, such as internal/enccontext.
	// Returns nil if this value has none (e.g. a bare KeyName match with
	// no embedded key material).
	Material() any
}

// Descriptor is the immutable registration record for one recognized
// KeyInfo child element (spec.md §3 KeyDataDescriptor).
type Descriptor struct {
	// ID uniquely identifies this descriptor in a registry.
	ID string

	// Name is a display name for debugging/logging.
	Name string

	// Usage declares which dispatch contexts this descriptor participates in.
	Usage Usage

	// Href is the URI identifier used by RetrievalMethod's Type attribute
	// lookup (spec.md §4.4), empty if this descriptor has none.
	Href string

	// ElementName/ElementNamespace identify the element this descriptor
	// reads and, on write, the element it creates.
	ElementName      string
	ElementNamespace string

	// ReadXML parses node's content into key. Required.
	ReadXML func(key *Key, node *etree.Element, ctx Context) error

	// WriteXML serializes key's value into node, which has already been
	// created with ElementName/ElementNamespace by the caller. Required
	// for descriptors with UsageWriteKeyValue.
	WriteXML func(key *Key, node *etree.Element, ctx Context) error

	// ReadBinary interprets raw bytes (e.g. from a binary RetrievalMethod
	// result or a decrypted EncryptedKey payload) as this descriptor's
	// key material. Optional.
	ReadBinary func(key *Key, buf []byte, ctx Context) error

	// WriteBinary serializes key's value to raw bytes, used when wrapping
	// a key for transport (EncryptedKey write, spec.md §4.6). Optional.
	WriteBinary func(key *Key, ctx Context) ([]byte, error)
}

// Registry is a mutex-guarded set of descriptors, queried by (name,
// namespace, usage) or by (href, usage), per spec.md §6.
type Registry struct {
	mu       sync.RWMutex
	byNode   map[nodeKey][]*Descriptor
	byHref   map[hrefKey][]*Descriptor
	byID     map[string]*Descriptor
	ordered  []*Descriptor
}

type nodeKey struct {
	name, ns string
}

type hrefKey struct {
	href string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byNode: make(map[nodeKey][]*Descriptor),
		byHref: make(map[hrefKey][]*Descriptor),
		byID:   make(map[string]*Descriptor),
	}
}

// Register adds d to the registry. Returns an error if a descriptor with
// the same ID is already present.
func (r *Registry) Register(d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[d.ID]; exists {
		return fmt.Errorf("keydata: descriptor %q already registered", d.ID)
	}

	r.byID[d.ID] = d
	r.ordered = append(r.ordered, d)

	if d.ElementName != "" {
		nk := nodeKey{d.ElementName, d.ElementNamespace}
		r.byNode[nk] = append(r.byNode[nk], d)
	}
	if d.Href != "" {
		hk := hrefKey{d.Href}
		r.byHref[hk] = append(r.byHref[hk], d)
	}

	return nil
}

// FindByNode resolves a descriptor by element identity and usage
// (spec.md §4.1 step 1).
func (r *Registry) FindByNode(name, ns string, usage Usage) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.byNode[nodeKey{name, ns}] {
		if d.Usage.Any(usage) {
			return d, true
		}
	}
	return nil, false
}

// FindByID resolves a descriptor directly by its registered ID,
// honoring usage the same way FindByNode/FindByHref do. Used by the
// KeyValue write path, which already knows which descriptor produced
// the key's current value (spec.md §4.3 write).
func (r *Registry) FindByID(id string, usage Usage) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	if !ok || !d.Usage.Any(usage) {
		return nil, false
	}
	return d, true
}

// FindByHref resolves a descriptor by its href/Type identifier and usage
// (spec.md §4.4 step 2).
func (r *Registry) FindByHref(href string, usage Usage) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.byHref[hrefKey{href}] {
		if d.Usage.Any(usage) {
			return d, true
		}
	}
	return nil, false
}

// Contains reports whether id names a descriptor registered here
// (spec.md §6 contains).
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// Descriptors returns all registered descriptors in registration order.
func (r *Registry) Descriptors() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

var global = NewRegistry()

// GlobalRegistry returns the process-wide default registry (spec.md §6
// globalRegistry()).
func GlobalRegistry() *Registry {
	return global
}

// EnabledSet is an ordered, filterable set of descriptor IDs (spec.md §3
// enabledKeyData). Its zero value means "no restriction" per the
// registry-driven lookup in spec.md §4.1.
type EnabledSet struct {
	ids []string
	set map[string]struct{}
}

// NewEnabledSet builds an EnabledSet from a registry and a list of
// descriptor IDs. Every id must already be registered (spec.md §3
// invariant: "entries come from the registry").
func NewEnabledSet(reg *Registry, ids ...string) (*EnabledSet, error) {
	es := &EnabledSet{
		ids: append([]string(nil), ids...),
		set: make(map[string]struct{}, len(ids)),
	}
	for _, id := range ids {
		if !reg.Contains(id) {
			return nil, fmt.Errorf("keydata: enabled key data id %q is not in the registry", id)
		}
		es.set[id] = struct{}{}
	}
	return es, nil
}

// Empty reports whether the set has no restriction (spec.md §3: "If
// non-empty, dispatch is restricted to this set; otherwise the global
// registry is used").
func (es *EnabledSet) Empty() bool {
	return es == nil || len(es.ids) == 0
}

// Contains reports whether id is a member.
func (es *EnabledSet) Contains(id string) bool {
	if es == nil {
		return false
	}
	_, ok := es.set[id]
	return ok
}

// Copy returns an independent deep copy (spec.md §3 copyUserPref:
// "deep-copies enabledKeyData").
func (es *EnabledSet) Copy() *EnabledSet {
	if es == nil {
		return nil
	}
	out := &EnabledSet{
		ids: append([]string(nil), es.ids...),
		set: make(map[string]struct{}, len(es.set)),
	}
	for k := range es.set {
		out.set[k] = struct{}{}
	}
	return out
}

// IDs returns the member IDs in insertion order.
func (es *EnabledSet) IDs() []string {
	if es == nil {
		return nil
	}
	return append([]string(nil), es.ids...)
}

// FindByNode resolves a descriptor honoring an EnabledSet restriction:
// if es is non-empty, only descriptors in the set are considered
// (falling back to reg otherwise), mirroring spec.md §4.1 step 1.
func FindByNode(reg *Registry, es *EnabledSet, name, ns string, usage Usage) (*Descriptor, bool) {
	d, ok := reg.FindByNode(name, ns, usage)
	if !ok {
		return nil, false
	}
	if !es.Empty() && !es.Contains(d.ID) {
		return nil, false
	}
	return d, true
}

// FindByHref resolves a descriptor by href honoring an EnabledSet
// restriction, mirroring spec.md §4.4 step 2.
func FindByHref(reg *Registry, es *EnabledSet, href string, usage Usage) (*Descriptor, bool) {
	d, ok := reg.FindByHref(href, usage)
	if !ok {
		return nil, false
	}
	if !es.Empty() && !es.Contains(d.ID) {
		return nil, false
	}
	return d, true
}

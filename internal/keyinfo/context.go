// Package keyinfo is the dispatching and recursion engine described in
// spec.md: a registry-driven read/write driver over the children of a
// KeyInfo element, plus the seven built-in handlers (KeyName, KeyValue,
// RetrievalMethod, KeyInfoReference, EncryptedKey, DerivedKey,
// AgreementMethod).
//
// It is grounded on the dispatch/registry shape of
// internal/trust/validator.go and internal/issuer/registry.go in the
// teacher repo (credential-type/token-type keyed lookup into a small
// interface), generalized to the KeyInfo child-element dispatch problem,
// and on internal/keymanager/rotating.go for the scoped-counter,
// mutex-guarded context lifecycle pattern.
package keyinfo

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/etree"

	"github.com/alechenninger/keyinfo/internal/clock"
	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/keysmanager"
	"github.com/alechenninger/keyinfo/internal/xform"
)

// Mode is the operation direction a Context is driven in (spec.md §3).
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

func (m Mode) String() string {
	if m == ModeWrite {
		return "write"
	}
	return "read"
}

// Operation is the surrounding cryptographic operation a KeyInfo is
// being processed on behalf of (spec.md §3 operation).
type Operation int

const (
	OperationNone Operation = iota
	OperationSign
	OperationVerify
	OperationEncrypt
	OperationDecrypt
)

// Flags control strictness, per spec.md §6.
type Flags uint32

const (
	// FlagDontStopOnKeyFound disables the read loop's early-termination
	// rule (spec.md §4.1 step 4).
	FlagDontStopOnKeyFound Flags = 1 << iota

	// FlagStopOnUnknownChild makes an unrecognized top-level KeyInfo
	// child fatal instead of ignored.
	FlagStopOnUnknownChild

	// FlagKeyValueStopOnUnknownChild makes an unrecognized KeyValue
	// child, or an unrecognized XML retrieval result, fatal.
	FlagKeyValueStopOnUnknownChild

	// FlagRetrMethodStopOnUnknownHref makes an unresolved Type= on
	// RetrievalMethod fatal.
	FlagRetrMethodStopOnUnknownHref

	// FlagRetrMethodStopOnMismatchHref requires a dereferenced result's
	// root element to match the advertised Type.
	FlagRetrMethodStopOnMismatchHref

	// FlagEncKeyDontStopOnFailedDecryption makes a failing
	// EncryptedKey/DerivedKey/AgreementMethod be swallowed so sibling
	// candidates can be tried; when clear, the failure aborts the read.
	FlagEncKeyDontStopOnFailedDecryption
)

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// EncryptionContext is the "encryption context" collaborator spec.md §6
// describes: construction bound to a keys manager, decrypt/derive/agree
// operations, and ownership of inner read/write sub-contexts. It is
// declared here (not in a package enccontext that keyinfo would import)
// so that package enccontext can import keyinfo for the *Context type of
// its inner sub-contexts without creating an import cycle — the
// ownership-direction fix spec.md §9 describes, applied at the package
// level: keyinfo never imports enccontext, enccontext imports keyinfo.
type EncryptionContext interface {
	// Reset clears per-run state ahead of a new EncryptedKey/DerivedKey/
	// AgreementMethod node (spec.md §4.6 step 2 "If it already exists,
	// reset it").
	Reset()

	// SyncUserPref propagates outer's user preferences into this
	// context's inner read/write KeyInfoContexts (spec.md §4.6 step 3).
	SyncUserPref(outer *Context)

	// DecryptToBuffer decrypts an <EncryptedKey> node's ciphertext
	// (spec.md §4.6 step 4).
	DecryptToBuffer(ctx context.Context, node *etree.Element, outer *Context) ([]byte, error)

	// DeriveKey derives a key described by a <DerivedKey> node
	// (spec.md §4.7).
	DeriveKey(ctx context.Context, node *etree.Element, outer *Context) (*keydata.Key, error)

	// AgreementMethodGenerate performs key agreement described by an
	// <AgreementMethod> node (spec.md §4.8 read).
	AgreementMethodGenerate(ctx context.Context, node *etree.Element, outer *Context) (*keydata.Key, error)

	// AgreementMethodXMLWrite populates an <AgreementMethod> node for
	// write (spec.md §4.8 write).
	AgreementMethodXMLWrite(ctx context.Context, node *etree.Element, outer *Context) error

	// BinaryEncrypt serializes plaintext into an <EncryptedKey> template
	// (spec.md §4.6 write step 3).
	BinaryEncrypt(ctx context.Context, node *etree.Element, plaintext []byte, outer *Context) error
}

// EncryptionContextFactory lazily constructs an EncryptionContext bound
// to keysMngr and operation (spec.md §4.6 step 2).
type EncryptionContextFactory func(keysMngr keysmanager.Manager, operation Operation) EncryptionContext

// Default recursion caps and verification depth, spec.md §6.
const (
	DefaultMaxRetrievalMethodLevel  = 1
	DefaultMaxKeyInfoReferenceLevel = 1
	DefaultMaxEncryptedKeyLevel     = 1
	DefaultCertsVerificationDepth   = 9
)

// Context is KeyInfoContext from spec.md §3: user preferences plus
// per-run state for one walk of a KeyInfo element's children.
type Context struct {
	// Mode is set by the caller before driving (spec.md §3).
	Mode Mode

	// Operation is the surrounding cryptographic operation, propagated
	// into sub-contexts.
	Operation Operation

	// KeysMngr resolves names to keys for KeyName (spec.md §4.2) and is
	// passed through to the lazily-created EncryptionContext.
	KeysMngr keysmanager.Manager

	Flags  Flags
	Flags2 Flags

	// Registry is consulted when EnabledKeyData is empty.
	Registry *keydata.Registry

	// EnabledKeyData restricts dispatch to a subset of Registry's
	// descriptors when non-empty (spec.md §3 invariant).
	EnabledKeyData *keydata.EnabledSet

	// KeyReq is the requirement read keys are matched against.
	KeyReq *keydata.KeyReq

	// Base64LineSize is a formatting hint for encoded output.
	Base64LineSize int

	// CertsVerificationTime and CertsVerificationDepth bound X.509 chain
	// validation performed by collaborators this context hands
	// certificate material to; the core itself does not validate chains.
	// A zero CertsVerificationTime means "now", resolved through Clock so
	// tests can pin it with clock.FixtureClock instead of racing
	// time.Now().
	CertsVerificationTime  time.Time
	CertsVerificationDepth int

	// Clock supplies "now" for EffectiveCertsVerificationTime. Defaults
	// to clock.NewSystemClock(); tests substitute a clock.FixtureClock.
	Clock clock.Clock

	// UserData is an opaque pointer threaded through to handlers.
	UserData any

	// Fetcher backs lazily-created retrieval/reference pipelines.
	Fetcher xform.Fetcher

	// EncContextFactory lazily constructs EncCtx on first use by
	// EncryptedKey, DerivedKey, or AgreementMethod.
	EncContextFactory EncryptionContextFactory

	retrievalMethodCtx      *xform.Pipeline
	curRetrievalMethodLevel int
	maxRetrievalMethodLevel int

	keyInfoReferenceCtx      *xform.Pipeline
	curKeyInfoReferenceLevel int
	maxKeyInfoReferenceLevel int

	encCtx               EncryptionContext
	curEncryptedKeyLevel int
	maxEncryptedKeyLevel int

	// goCtx is the stdlib context.Context for the in-flight Read/Write
	// call. The core is single-threaded and synchronous (spec.md §5), so
	// stashing it here for the duration of one call is safe and avoids
	// threading context.Context through the keydata.Descriptor callback
	// signature, which external registrants do not need.
	goCtx context.Context
}

// NewContext creates a Context with spec.md §6 defaults. reg may be nil,
// in which case the global registry is used.
func NewContext(reg *keydata.Registry) *Context {
	if reg == nil {
		reg = keydata.GlobalRegistry()
	}
	return &Context{
		Registry:                 reg,
		CertsVerificationDepth:   DefaultCertsVerificationDepth,
		Clock:                    clock.NewSystemClock(),
		maxRetrievalMethodLevel:  DefaultMaxRetrievalMethodLevel,
		maxKeyInfoReferenceLevel: DefaultMaxKeyInfoReferenceLevel,
		maxEncryptedKeyLevel:     DefaultMaxEncryptedKeyLevel,
	}
}

// EffectiveCertsVerificationTime returns CertsVerificationTime, or the
// current time from Clock if it is unset.
func (c *Context) EffectiveCertsVerificationTime() time.Time {
	if !c.CertsVerificationTime.IsZero() {
		return c.CertsVerificationTime
	}
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock.Now()
}

// MaxRetrievalMethodLevel, MaxKeyInfoReferenceLevel, and
// MaxEncryptedKeyLevel expose the recursion caps for inspection and
// configuration; callers set them through SetMaxRetrievalMethodLevel
// etc., which clamp a negative value to 0. A cap of 0 rejects every
// descent.

func (c *Context) SetMaxRetrievalMethodLevel(n int) {
	if n < 0 {
		n = 0
	}
	c.maxRetrievalMethodLevel = n
}

func (c *Context) SetMaxKeyInfoReferenceLevel(n int) {
	if n < 0 {
		n = 0
	}
	c.maxKeyInfoReferenceLevel = n
}

func (c *Context) SetMaxEncryptedKeyLevel(n int) {
	if n < 0 {
		n = 0
	}
	c.maxEncryptedKeyLevel = n
}

func (c *Context) MaxRetrievalMethodLevel() int  { return c.maxRetrievalMethodLevel }
func (c *Context) MaxKeyInfoReferenceLevel() int { return c.maxKeyInfoReferenceLevel }
func (c *Context) MaxEncryptedKeyLevel() int     { return c.maxEncryptedKeyLevel }

func (c *Context) CurRetrievalMethodLevel() int  { return c.curRetrievalMethodLevel }
func (c *Context) CurKeyInfoReferenceLevel() int { return c.curKeyInfoReferenceLevel }
func (c *Context) CurEncryptedKeyLevel() int     { return c.curEncryptedKeyLevel }

// GoContext returns the stdlib context.Context for the in-flight call,
// or context.Background() if none is set (e.g. a handler invoked
// outside of Read/Write, such as in a unit test).
func (c *Context) GoContext() context.Context {
	if c.goCtx == nil {
		return context.Background()
	}
	return c.goCtx
}

// Requirement implements keydata.Context.
func (c *Context) Requirement() *keydata.KeyReq { return c.KeyReq }

// EnabledContains implements keydata.Context.
func (c *Context) EnabledContains(id string) bool {
	return c.EnabledKeyData.Empty() || c.EnabledKeyData.Contains(id)
}

// UserDataValue implements keydata.Context. Named to avoid colliding
// with the UserData field.
func (c *Context) UserDataValue() any { return c.UserData }

var _ keydata.Context = (*Context)(nil)

// resolve looks up a descriptor honoring EnabledKeyData (spec.md §4.1
// step 1).
func (c *Context) resolve(name, ns string, usage keydata.Usage) (*keydata.Descriptor, bool) {
	return keydata.FindByNode(c.Registry, c.EnabledKeyData, name, ns, usage)
}

func (c *Context) resolveByHref(href string, usage keydata.Usage) (*keydata.Descriptor, bool) {
	return keydata.FindByHref(c.Registry, c.EnabledKeyData, href, usage)
}

// retrievalPipeline lazily creates and returns the retrieval-method
// transform context (spec.md §3 retrievalMethodCtx).
func (c *Context) retrievalPipeline() *xform.Pipeline {
	if c.retrievalMethodCtx == nil {
		c.retrievalMethodCtx = xform.NewPipeline(c.Fetcher)
	}
	return c.retrievalMethodCtx
}

// referencePipeline lazily creates and returns the KeyInfoReference
// transform context (spec.md §3 keyInfoReferenceCtx).
func (c *Context) referencePipeline() *xform.Pipeline {
	if c.keyInfoReferenceCtx == nil {
		c.keyInfoReferenceCtx = xform.NewPipeline(c.Fetcher)
	}
	return c.keyInfoReferenceCtx
}

// encryptionContext lazily creates (or resets an existing) encryption
// context, per spec.md §4.6 step 2, and syncs user prefs into its inner
// sub-contexts (step 3).
func (c *Context) encryptionContext() (EncryptionContext, error) {
	if c.EncContextFactory == nil {
		return nil, fmt.Errorf("%w: no EncryptionContextFactory configured", ErrDisabled)
	}

	if c.encCtx == nil {
		c.encCtx = c.EncContextFactory(c.KeysMngr, c.Operation)
	} else {
		c.encCtx.Reset()
	}
	c.encCtx.SyncUserPref(c)
	return c.encCtx, nil
}

// enterLevel increments *cur if doing so would not exceed max, returning
// a release function that must be deferred immediately so the counter is
// decremented on every exit path including error (spec.md §9 "Bounded
// recursion... scoped acquisition of the counter to guarantee symmetric
// release").
func enterLevel(cur *int, max int) (func(), error) {
	if *cur >= max {
		return func() {}, ErrMaxLevelExceeded
	}
	*cur++
	return func() { *cur-- }, nil
}

// Reset clears per-run state while preserving user preferences (spec.md
// §3 lifecycle). Sub-pipeline contexts are reset, not discarded, so
// their configured fetcher/keysMngr survive.
func (c *Context) Reset() {
	c.curRetrievalMethodLevel = 0
	c.curKeyInfoReferenceLevel = 0
	c.curEncryptedKeyLevel = 0

	if c.retrievalMethodCtx != nil {
		c.retrievalMethodCtx.Reset()
	}
	if c.keyInfoReferenceCtx != nil {
		c.keyInfoReferenceCtx.Reset()
	}
	if c.encCtx != nil {
		c.encCtx.Reset()
	}
}

// Finalize releases resources held by the context. There are no
// unmanaged resources at this layer (spec.md §5 "Resource discipline" is
// handled per-handler), so Finalize only clears references to let the
// garbage collector reclaim them promptly.
func (c *Context) Finalize() {
	c.retrievalMethodCtx = nil
	c.keyInfoReferenceCtx = nil
	c.encCtx = nil
	c.goCtx = nil
}

// CopyUserPref copies everything from src to dst except dst's own
// per-run counters (spec.md §3 copyUserPref). EnabledKeyData is
// deep-copied; sub-pipeline preferences are propagated recursively via
// their own copy helpers rather than by aliasing the sub-contexts
// themselves, so dst keeps independently-owned, independently-reset
// per-run state (spec.md §5 "Sub-pipeline contexts ... are owned by the
// context").
func CopyUserPref(dst, src *Context) {
	dst.Operation = src.Operation
	dst.KeysMngr = src.KeysMngr
	dst.Flags = src.Flags
	dst.Flags2 = src.Flags2
	dst.Registry = src.Registry
	dst.EnabledKeyData = src.EnabledKeyData.Copy()
	dst.KeyReq = src.KeyReq
	dst.Base64LineSize = src.Base64LineSize
	dst.CertsVerificationTime = src.CertsVerificationTime
	dst.CertsVerificationDepth = src.CertsVerificationDepth
	dst.Clock = src.Clock
	dst.UserData = src.UserData
	dst.Fetcher = src.Fetcher
	dst.EncContextFactory = src.EncContextFactory

	dst.maxRetrievalMethodLevel = src.maxRetrievalMethodLevel
	dst.maxKeyInfoReferenceLevel = src.maxKeyInfoReferenceLevel
	dst.maxEncryptedKeyLevel = src.maxEncryptedKeyLevel

	xform.CopyUserPref(dst.retrievalPipeline(), src.retrievalPipeline())
	xform.CopyUserPref(dst.referencePipeline(), src.referencePipeline())
}

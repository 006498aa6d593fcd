// Package xform implements the transform/dereference pipeline spec.md §6
// lists as a consumed collaborator: it resolves a RetrievalMethod's or
// KeyInfoReference's URI and runs any declared <Transforms> over the
// result. The canonicalization/XPath-filter transform algorithms
// themselves are out of this module's scope (spec.md §1) — this package
// only has to produce the resulting byte buffer the core dispatches on.
//
// Caching is grounded on internal/datasource/datasource.go's
// groupcache.Group usage in the teacher repo: repeated dereferences of
// the same URI (a RetrievalMethod revisited during recursive resolution,
// or two sibling elements pointing at the same fragment) are served from
// cache instead of re-fetched.
package xform

import (
	"context"
	"fmt"
	"sync"

	"github.com/beevik/etree"
	"github.com/golang/groupcache"
)

// Fetcher resolves a URI to raw bytes. Implementations decide what URI
// schemes they support. This package provides FetcherFunc, MapFetcher and
// CachingFetcher; it has no built-in fragment ("#id") or HTTP(S) resolver.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// FetcherFunc adapts a function to a Fetcher.
type FetcherFunc func(ctx context.Context, uri string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, uri string) ([]byte, error) {
	return f(ctx, uri)
}

// MapFetcher resolves URIs from a static map, primarily for tests and
// same-document fragment references pre-extracted by the caller.
type MapFetcher map[string][]byte

func (m MapFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	buf, ok := m[uri]
	if !ok {
		return nil, fmt.Errorf("xform: no content registered for URI %q", uri)
	}
	return buf, nil
}

// CachingFetcher wraps a Fetcher with a groupcache.Group so repeated
// dereferences of the same URI within a process are served from memory.
type CachingFetcher struct {
	inner Fetcher
	group *groupcache.Group
}

// NewCachingFetcher wraps inner with a named, size-bounded groupcache
// group. name must be unique per process (groupcache panics on
// duplicate group names), the same constraint internal/datasource works
// around by keying groups off data source name.
func NewCachingFetcher(name string, cacheBytes int64, inner Fetcher) *CachingFetcher {
	cf := &CachingFetcher{inner: inner}
	cf.group = groupcache.NewGroup(name, cacheBytes, groupcache.GetterFunc(
		func(ctx context.Context, uri string, dest groupcache.Sink) error {
			buf, err := inner.Fetch(ctx, uri)
			if err != nil {
				return err
			}
			return dest.SetBytes(buf)
		}))
	return cf
}

func (cf *CachingFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	var buf []byte
	if err := cf.group.Get(ctx, uri, groupcache.AllocatingByteSliceSink(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Transform is one step declared inside a <Transforms> element. Only the
// algorithm identifier is retained; applying canonicalization/XPath
// filter semantics is out of scope (spec.md §1) so Pipeline treats every
// transform as identity.
type Transform struct {
	Algorithm string
}

// Pipeline is the concrete transform/dereference context behind
// KeyInfoContext's retrievalMethodCtx and keyInfoReferenceCtx (spec.md
// §3). A fresh Pipeline (or a Reset one) must be used per dereference,
// matching spec.md §4.4 step 3 ("Reset retrievalMethodCtx").
type Pipeline struct {
	mu sync.Mutex

	fetcher Fetcher

	uri        string
	node       *etree.Element
	transforms []Transform
}

// NewPipeline creates a pipeline bound to fetcher. fetcher is a user
// preference copied by CopyUserPref, not per-run state.
func NewPipeline(fetcher Fetcher) *Pipeline {
	return &Pipeline{fetcher: fetcher}
}

// Reset clears per-run state, keeping the configured fetcher (spec.md
// §4.4 step 3, §4.5 step 3).
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uri = ""
	p.node = nil
	p.transforms = nil
}

// SetURI installs the URI to dereference and the node it was read from
// (spec.md §6 setUri(uri, node)). node is retained only for error
// messages; it is not mutated.
func (p *Pipeline) SetURI(uri string, node *etree.Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uri = uri
	p.node = node
}

// URI returns the currently installed URI, or "" if none.
func (p *Pipeline) URI() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uri
}

// ParseTransforms reads the child <Transform> elements of a <Transforms>
// node (spec.md §4.4 step 4). It only validates shape (each child must
// carry an Algorithm attribute) — it never fails on an unrecognized
// algorithm, since applying or restricting particular algorithms is a
// policy decision left to a real canonicalization/XPath layer this
// module does not implement.
func (p *Pipeline) ParseTransforms(transformsNode *etree.Element) error {
	var transforms []Transform
	for _, child := range transformsNode.ChildElements() {
		alg := child.SelectAttrValue("Algorithm", "")
		if alg == "" {
			return fmt.Errorf("xform: Transform element missing required Algorithm attribute")
		}
		transforms = append(transforms, Transform{Algorithm: alg})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.transforms = transforms
	return nil
}

// Execute dereferences the installed URI and returns the resulting
// buffer (spec.md §4.4 step 5, §4.5 step 3). Declared transforms are
// recorded but applied as identity, per the package doc comment.
func (p *Pipeline) Execute(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	uri, fetcher := p.uri, p.fetcher
	p.mu.Unlock()

	if uri == "" {
		return nil, fmt.Errorf("xform: no URI installed to execute")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("xform: pipeline has no fetcher configured")
	}

	buf, err := fetcher.Fetch(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("xform: dereferencing %q: %w", uri, err)
	}
	return buf, nil
}

// CopyUserPref copies dst's user preferences (the fetcher) from src,
// without disturbing either's per-run state (spec.md §6 copyUserPref).
func CopyUserPref(dst, src *Pipeline) {
	src.mu.Lock()
	fetcher := src.fetcher
	src.mu.Unlock()

	dst.mu.Lock()
	dst.fetcher = fetcher
	dst.mu.Unlock()
}

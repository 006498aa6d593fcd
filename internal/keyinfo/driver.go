package keyinfo

import (
	"context"
	"fmt"

	"github.com/beevik/etree"

	"github.com/alechenninger/keyinfo/internal/keydata"
)

// Read walks keyInfoNode's element children in document order and
// dispatches each to its registered handler (spec.md §4.1 read).
func Read(ctx context.Context, keyInfoNode *etree.Element, key *keydata.Key, kictx *Context) error {
	if kictx.Mode != ModeRead {
		return fmt.Errorf("%w: Read called with mode %s", ErrWrongMode, kictx.Mode)
	}

	prevGoCtx := kictx.goCtx
	kictx.goCtx = ctx
	defer func() { kictx.goCtx = prevGoCtx }()

	for _, child := range keyInfoNode.ChildElements() {
		desc, ok := kictx.resolve(child.Tag, child.NamespaceURI(), keydata.UsageReadFromKeyInfo)
		if !ok {
			if kictx.Flags.Has(FlagStopOnUnknownChild) {
				return fmt.Errorf("%w: unrecognized KeyInfo child <%s>", ErrUnexpectedNode, child.Tag)
			}
			continue
		}

		if err := desc.ReadXML(key, child, kictx); err != nil {
			return fmt.Errorf("keyinfo: reading <%s>: %w", child.Tag, err)
		}

		if shouldStopOnKeyFound(kictx, key) {
			return nil
		}
	}

	return nil
}

// shouldStopOnKeyFound is the single named predicate spec.md §9 asks
// for: continue only while DontStopOnKeyFound is set, or the key is
// still invalid, or the key does not yet match the requirement.
func shouldStopOnKeyFound(kictx *Context, key *keydata.Key) bool {
	if kictx.Flags.Has(FlagDontStopOnKeyFound) {
		return false
	}
	return key.Matches(kictx.KeyReq)
}

// Write walks keyInfoNode's existing element children — a caller-built
// template — and dispatches each to its registered handler for filling
// in (spec.md §4.1 write). There is no early-termination rule and no
// STOP_ON_UNKNOWN_CHILD equivalent: an element the write-usage registry
// doesn't recognize is simply left as the caller built it.
func Write(ctx context.Context, keyInfoNode *etree.Element, key *keydata.Key, kictx *Context) error {
	if kictx.Mode != ModeWrite {
		return fmt.Errorf("%w: Write called with mode %s", ErrWrongMode, kictx.Mode)
	}

	prevGoCtx := kictx.goCtx
	kictx.goCtx = ctx
	defer func() { kictx.goCtx = prevGoCtx }()

	for _, child := range keyInfoNode.ChildElements() {
		desc, ok := kictx.resolve(child.Tag, child.NamespaceURI(), keydata.UsageWriteToKeyInfo)
		if !ok {
			continue
		}

		if err := desc.WriteXML(key, child, kictx); err != nil {
			return fmt.Errorf("keyinfo: writing <%s>: %w", child.Tag, err)
		}
	}

	return nil
}

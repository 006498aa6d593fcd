package keyinfo

import "errors"

// Sentinel error kinds, spec.md §7. Handlers wrap these with fmt.Errorf's
// %w verb so callers can match with errors.Is while still getting a
// node-specific message, the way internal/trust/validator.go and
// internal/validator/validator.go declare ErrInvalidToken/ErrExpiredToken
// as package-level sentinels in the teacher repo.
var (
	// ErrInvalidNode is returned when an element's name or namespace
	// does not match what the caller expected at that position.
	ErrInvalidNode = errors.New("keyinfo: invalid node")

	// ErrInvalidAttribute is returned for a missing or malformed
	// required attribute (URI, Type).
	ErrInvalidAttribute = errors.New("keyinfo: invalid attribute")

	// ErrInvalidContent is returned for empty required text content.
	ErrInvalidContent = errors.New("keyinfo: invalid content")

	// ErrInvalidKeyData is returned on a semantic contradiction, such as
	// two different names claimed for the same key.
	ErrInvalidKeyData = errors.New("keyinfo: invalid key data")

	// ErrUnexpectedNode is returned for a sibling element where none is
	// permitted.
	ErrUnexpectedNode = errors.New("keyinfo: unexpected node")

	// ErrMaxLevelExceeded is returned when a recursion cap (retrieval
	// method, KeyInfoReference, or encrypted-key level) would be
	// exceeded.
	ErrMaxLevelExceeded = errors.New("keyinfo: max recursion level exceeded")

	// ErrTypeMismatch is returned when a RetrievalMethod's advertised
	// Type does not match the descriptor resolved from its dereferenced
	// result, under RETRMETHOD_STOP_ON_MISMATCH_HREF.
	ErrTypeMismatch = errors.New("keyinfo: retrieval type mismatch")

	// ErrInternal wraps a failure surfaced by a lower-layer collaborator
	// (transform pipeline, registry, encryption context).
	ErrInternal = errors.New("keyinfo: internal collaborator failure")

	// ErrDisabled is returned when a feature required to process a node
	// is not available, e.g. no encryption context factory configured.
	ErrDisabled = errors.New("keyinfo: feature disabled")

	// ErrWrongMode is a programmer error: a handler for one direction
	// was invoked against a context set up for the other (spec.md §3
	// invariant: "mode must match the direction of the handler being
	// called").
	ErrWrongMode = errors.New("keyinfo: context mode does not match handler direction")
)

package keyinfo

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/xmltree"
)

// KeyNameDescriptorID is the registry ID for the built-in KeyName
// handler (spec.md §4.2).
const KeyNameDescriptorID = "KeyName"

// KeyNameDescriptor returns the built-in <KeyName> handler.
func KeyNameDescriptor() *keydata.Descriptor {
	return &keydata.Descriptor{
		ID:               KeyNameDescriptorID,
		Name:             "KeyName",
		Usage:            keydata.UsageReadFromKeyInfo | keydata.UsageWriteToKeyInfo,
		ElementName:      xmltree.ElemKeyName,
		ElementNamespace: xmltree.NsDSig,
		ReadXML: func(key *keydata.Key, node *etree.Element, kctx keydata.Context) error {
			return readKeyName(node, key, kctx.(*Context))
		},
		WriteXML: func(key *keydata.Key, node *etree.Element, kctx keydata.Context) error {
			_, err := writeKeyName(node, key)
			return err
		},
	}
}

// readKeyName implements spec.md §4.2 read.
func readKeyName(node *etree.Element, key *keydata.Key, kictx *Context) error {
	name := xmltree.TrimmedText(node)
	if name == "" {
		return fmt.Errorf("%w: <KeyName> has empty content", ErrInvalidContent)
	}

	if key.Value() == nil && kictx.KeysMngr != nil {
		found, err := kictx.KeysMngr.FindKeyByName(kictx.GoContext(), name, kictx.KeyReq)
		if err != nil {
			return fmt.Errorf("%w: keys manager lookup for %q: %v", ErrInternal, name, err)
		}

		if found != nil {
			key.Empty()
			key.CopyFrom(found)
			key.SetName(name)
			return nil
		}

		key.RecordNameTried(name)
		return nil
	}

	if key.Value() != nil {
		if existing := key.Name(); existing != "" && existing != name {
			return fmt.Errorf("%w: KeyName %q contradicts existing name %q", ErrInvalidKeyData, name, existing)
		}
	}

	key.SetName(name)
	return nil
}

// WriteResult is the explicit three-valued outcome of a write handler
// that may have nothing to write, replacing the "WroteNothing" magic
// positive return code spec.md §9 calls out.
type WriteResult int

const (
	Wrote WriteResult = iota
	Skipped
	WriteErr
)

// writeKeyName implements spec.md §4.2 write.
func writeKeyName(node *etree.Element, key *keydata.Key) (WriteResult, error) {
	name := key.Name()
	if name == "" {
		return Skipped, nil
	}

	if xmltree.TrimmedText(node) != "" {
		return Skipped, nil
	}

	node.SetText(name)
	return Wrote, nil
}

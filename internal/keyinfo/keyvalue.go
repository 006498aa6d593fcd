package keyinfo

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/xmltree"
)

// KeyValueDescriptorID is the registry ID for the built-in KeyValue
// handler (spec.md §4.3).
const KeyValueDescriptorID = "KeyValue"

// KeyValueDescriptor returns the built-in <KeyValue> handler.
func KeyValueDescriptor() *keydata.Descriptor {
	return &keydata.Descriptor{
		ID:               KeyValueDescriptorID,
		Name:             "KeyValue",
		Usage:            keydata.UsageReadFromKeyInfo | keydata.UsageWriteToKeyInfo,
		ElementName:      xmltree.ElemKeyValue,
		ElementNamespace: xmltree.NsDSig,
		ReadXML: func(key *keydata.Key, node *etree.Element, kctx keydata.Context) error {
			return readKeyValue(node, key, kctx.(*Context))
		},
		WriteXML: func(key *keydata.Key, node *etree.Element, kctx keydata.Context) error {
			return writeKeyValue(node, key, kctx.(*Context))
		},
	}
}

// readKeyValue implements spec.md §4.3 read.
func readKeyValue(node *etree.Element, key *keydata.Key, kictx *Context) error {
	children := node.ChildElements()
	if len(children) == 0 {
		return nil
	}

	first := children[0]
	desc, ok := kictx.resolve(first.Tag, first.NamespaceURI(), keydata.UsageReadFromKeyValue)
	if !ok {
		if kictx.Flags.Has(FlagKeyValueStopOnUnknownChild) {
			return fmt.Errorf("%w: unrecognized KeyValue child <%s>", ErrUnexpectedNode, first.Tag)
		}
		return nil
	}

	if err := desc.ReadXML(key, first, kictx); err != nil {
		return err
	}

	if len(children) > 1 {
		return fmt.Errorf("%w: <KeyValue> has extra sibling <%s> after <%s>", ErrUnexpectedNode, children[1].Tag, first.Tag)
	}

	return nil
}

// writeKeyValue implements spec.md §4.3 write.
func writeKeyValue(node *etree.Element, key *keydata.Key, kictx *Context) error {
	value := key.Value()
	if value == nil || !value.IsValid() {
		return nil
	}

	desc, ok := kictx.Registry.FindByID(value.DescriptorID(), keydata.UsageWriteKeyValue)
	if !ok {
		return nil
	}

	if !kictx.EnabledContains(desc.ID) {
		return nil
	}

	if !key.Matches(kictx.KeyReq) {
		return nil
	}

	node.Child = nil
	child := node.CreateElement(desc.ElementName)
	if desc.ElementNamespace != "" {
		child.Space = ""
		child.CreateAttr("xmlns", desc.ElementNamespace)
	}

	if desc.WriteXML == nil {
		return fmt.Errorf("%w: key-value descriptor %q has no XML writer", ErrInternal, desc.ID)
	}

	return desc.WriteXML(key, child, kictx)
}

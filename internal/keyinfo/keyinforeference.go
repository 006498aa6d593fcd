package keyinfo

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/xmltree"
)

// KeyInfoReferenceDescriptorID is the registry ID for the built-in
// KeyInfoReference handler (spec.md §4.5, DSig 1.1).
const KeyInfoReferenceDescriptorID = "KeyInfoReference"

// KeyInfoReferenceDescriptor returns the built-in <KeyInfoReference>
// handler. Its write side is a no-op per spec.md §4.5.
func KeyInfoReferenceDescriptor() *keydata.Descriptor {
	return &keydata.Descriptor{
		ID:               KeyInfoReferenceDescriptorID,
		Name:             "KeyInfoReference",
		Usage:            keydata.UsageReadFromKeyInfo | keydata.UsageWriteToKeyInfo,
		ElementName:      xmltree.ElemKeyInfoReference,
		ElementNamespace: xmltree.NsDSig11,
		ReadXML: func(key *keydata.Key, node *etree.Element, kctx keydata.Context) error {
			return readKeyInfoReference(node, key, kctx.(*Context))
		},
		WriteXML: func(key *keydata.Key, node *etree.Element, kctx keydata.Context) error {
			return nil
		},
	}
}

// readKeyInfoReference implements spec.md §4.5 read.
func readKeyInfoReference(node *etree.Element, key *keydata.Key, kictx *Context) error {
	release, err := enterLevel(&kictx.curKeyInfoReferenceLevel, kictx.maxKeyInfoReferenceLevel)
	if err != nil {
		return fmt.Errorf("key info reference: %w", err)
	}
	defer release()

	uri := node.SelectAttrValue("URI", "")
	if uri == "" {
		return fmt.Errorf("%w: <KeyInfoReference> missing required URI attribute", ErrInvalidAttribute)
	}

	if len(node.ChildElements()) > 0 {
		return fmt.Errorf("%w: <KeyInfoReference> must have no element children", ErrUnexpectedNode)
	}

	pipeline := kictx.referencePipeline()
	pipeline.Reset()
	pipeline.SetURI(uri, node)

	buf, err := pipeline.Execute(kictx.GoContext())
	if err != nil {
		return fmt.Errorf("key info reference: %w", err)
	}
	if len(buf) == 0 {
		return fmt.Errorf("%w: KeyInfoReference dereference produced an empty buffer", ErrInvalidContent)
	}

	doc, err := xmltree.ParseLenient(buf)
	if err != nil {
		return fmt.Errorf("%w: parsing KeyInfoReference result: %v", ErrInvalidContent, err)
	}

	root := doc.Root()
	if root == nil || root.Tag != xmltree.ElemKeyInfo || root.NamespaceURI() != xmltree.NsDSig {
		return fmt.Errorf("%w: KeyInfoReference result root must be <KeyInfo> in the DSig namespace", ErrInvalidNode)
	}

	return Read(kictx.GoContext(), root, key, kictx)
}

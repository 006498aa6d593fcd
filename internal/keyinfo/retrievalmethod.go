package keyinfo

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/xmltree"
)

// RetrievalMethodDescriptorID is the registry ID for the built-in
// RetrievalMethod handler (spec.md §4.4).
const RetrievalMethodDescriptorID = "RetrievalMethod"

// RetrievalMethodDescriptor returns the built-in <RetrievalMethod>
// handler. Its write side is a no-op per spec.md §4.4.
func RetrievalMethodDescriptor() *keydata.Descriptor {
	return &keydata.Descriptor{
		ID:               RetrievalMethodDescriptorID,
		Name:             "RetrievalMethod",
		Usage:            keydata.UsageReadFromKeyInfo | keydata.UsageWriteToKeyInfo,
		ElementName:      xmltree.ElemRetrievalMethod,
		ElementNamespace: xmltree.NsDSig,
		ReadXML: func(key *keydata.Key, node *etree.Element, kctx keydata.Context) error {
			return readRetrievalMethod(node, key, kctx.(*Context))
		},
		WriteXML: func(key *keydata.Key, node *etree.Element, kctx keydata.Context) error {
			return nil
		},
	}
}

// readRetrievalMethod implements spec.md §4.4 read.
func readRetrievalMethod(node *etree.Element, key *keydata.Key, kictx *Context) error {
	release, err := enterLevel(&kictx.curRetrievalMethodLevel, kictx.maxRetrievalMethodLevel)
	if err != nil {
		return fmt.Errorf("retrieval method: %w", err)
	}
	defer release()

	var expected *keydata.Descriptor
	typeAttr := node.SelectAttrValue("Type", "")
	if typeAttr != "" {
		found, ok := kictx.resolveByHref(typeAttr, keydata.UsageRetrievalMethod)
		if !ok {
			if kictx.Flags.Has(FlagRetrMethodStopOnUnknownHref) {
				return fmt.Errorf("%w: RetrievalMethod Type %q not resolved", ErrInvalidAttribute, typeAttr)
			}
			return nil
		}
		expected = found
	}

	pipeline := kictx.retrievalPipeline()
	pipeline.Reset()

	uri := node.SelectAttrValue("URI", "")
	pipeline.SetURI(uri, node)

	children := node.ChildElements()
	if len(children) > 0 {
		if len(children) > 1 || children[0].Tag != xmltree.ElemTransforms {
			return fmt.Errorf("%w: <RetrievalMethod> has unexpected child <%s>", ErrUnexpectedNode, children[0].Tag)
		}
		if err := pipeline.ParseTransforms(children[0]); err != nil {
			return fmt.Errorf("retrieval method: %w", err)
		}
	}

	buf, err := pipeline.Execute(kictx.GoContext())
	if err != nil {
		return fmt.Errorf("retrieval method: %w", err)
	}
	if len(buf) == 0 {
		return fmt.Errorf("%w: RetrievalMethod dereference produced an empty buffer", ErrInvalidContent)
	}

	if expected == nil || expected.Usage.Any(keydata.UsageRetrievalMethodNodeXml) {
		doc, err := xmltree.ParseLenient(buf)
		if err != nil {
			return fmt.Errorf("%w: parsing RetrievalMethod result: %v", ErrInvalidContent, err)
		}
		root := doc.Root()
		if root == nil {
			return fmt.Errorf("%w: RetrievalMethod result has no root element", ErrInvalidContent)
		}

		resolved, ok := kictx.resolve(root.Tag, root.NamespaceURI(), keydata.UsageRetrievalMethodNodeXml)
		if !ok {
			if kictx.Flags.Has(FlagKeyValueStopOnUnknownChild) {
				return fmt.Errorf("%w: unrecognized RetrievalMethod result element <%s>", ErrUnexpectedNode, root.Tag)
			}
			return nil
		}

		if expected != nil && kictx.Flags.Has(FlagRetrMethodStopOnMismatchHref) && resolved.ID != expected.ID {
			return fmt.Errorf("%w: RetrievalMethod result element <%s> does not match declared Type", ErrTypeMismatch, root.Tag)
		}

		return resolved.ReadXML(key, root, kictx)
	}

	if expected.ReadBinary == nil {
		return fmt.Errorf("%w: descriptor %q has no binary reader", ErrInternal, expected.ID)
	}
	return expected.ReadBinary(key, buf, kictx)
}

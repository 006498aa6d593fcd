package keyinfo

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/xmltree"
)

// DerivedKeyDescriptorID is the registry ID for the built-in DerivedKey
// handler (spec.md §4.7, xmlenc 1.1 namespace).
const DerivedKeyDescriptorID = "DerivedKey"

// DerivedKeyDescriptor returns the built-in <DerivedKey> handler. Its
// write side is a no-op per spec.md §4.7 ("the template is assumed to
// carry sufficient parameters").
func DerivedKeyDescriptor() *keydata.Descriptor {
	return &keydata.Descriptor{
		ID:               DerivedKeyDescriptorID,
		Name:             "DerivedKey",
		Usage:            keydata.UsageReadFromKeyInfo | keydata.UsageWriteToKeyInfo,
		ElementName:      xmltree.ElemDerivedKey,
		ElementNamespace: xmltree.NsXMLEnc11,
		ReadXML: func(key *keydata.Key, node *etree.Element, kctx keydata.Context) error {
			return readDerivedKey(node, key, kctx.(*Context))
		},
		WriteXML: func(key *keydata.Key, node *etree.Element, kctx keydata.Context) error {
			return nil
		},
	}
}

// readDerivedKey implements spec.md §4.7 read. It shares
// curEncryptedKeyLevel with EncryptedKey.
func readDerivedKey(node *etree.Element, key *keydata.Key, kictx *Context) error {
	encCtx, err := kictx.encryptionContext()
	if err != nil {
		return fmt.Errorf("derived key: %w", err)
	}

	release, err := enterLevel(&kictx.curEncryptedKeyLevel, kictx.maxEncryptedKeyLevel)
	if err != nil {
		return fmt.Errorf("derived key: %w", err)
	}
	derived, derErr := encCtx.DeriveKey(kictx.GoContext(), node, kictx)
	release()

	if derErr != nil {
		if kictx.Flags.Has(FlagEncKeyDontStopOnFailedDecryption) {
			return nil
		}
		return fmt.Errorf("derived key: derive: %w", derErr)
	}

	if derived == nil || !derived.Matches(kictx.KeyReq) {
		return nil
	}

	key.CopyFrom(derived)
	return nil
}

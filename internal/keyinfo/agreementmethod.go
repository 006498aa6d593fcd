package keyinfo

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/xmltree"
)

// AgreementMethodDescriptorID is the registry ID for the built-in
// AgreementMethod handler (spec.md §4.8, xmlenc 1.1 namespace).
const AgreementMethodDescriptorID = "AgreementMethod"

// AgreementMethodDescriptor returns the built-in <AgreementMethod>
// handler. Unlike DerivedKey/EncryptedKey, its write side actively
// populates the node (spec.md §4.8 write).
func AgreementMethodDescriptor() *keydata.Descriptor {
	return &keydata.Descriptor{
		ID:               AgreementMethodDescriptorID,
		Name:             "AgreementMethod",
		Usage:            keydata.UsageReadFromKeyInfo | keydata.UsageWriteToKeyInfo,
		ElementName:      xmltree.ElemAgreementMethod,
		ElementNamespace: xmltree.NsXMLEnc11,
		ReadXML: func(key *keydata.Key, node *etree.Element, kctx keydata.Context) error {
			return readAgreementMethod(node, key, kctx.(*Context))
		},
		WriteXML: func(key *keydata.Key, node *etree.Element, kctx keydata.Context) error {
			return writeAgreementMethod(node, key, kctx.(*Context))
		},
	}
}

// readAgreementMethod implements spec.md §4.8 read: same preamble and
// key-match policy as DerivedKey, invoking key-agreement generate
// instead of derive.
func readAgreementMethod(node *etree.Element, key *keydata.Key, kictx *Context) error {
	encCtx, err := kictx.encryptionContext()
	if err != nil {
		return fmt.Errorf("agreement method: %w", err)
	}

	release, err := enterLevel(&kictx.curEncryptedKeyLevel, kictx.maxEncryptedKeyLevel)
	if err != nil {
		return fmt.Errorf("agreement method: %w", err)
	}
	agreed, agErr := encCtx.AgreementMethodGenerate(kictx.GoContext(), node, kictx)
	release()

	if agErr != nil {
		if kictx.Flags.Has(FlagEncKeyDontStopOnFailedDecryption) {
			return nil
		}
		return fmt.Errorf("agreement method: generate: %w", agErr)
	}

	if agreed == nil || !agreed.Matches(kictx.KeyReq) {
		return nil
	}

	key.CopyFrom(agreed)
	return nil
}

// writeAgreementMethod implements spec.md §4.8 write.
func writeAgreementMethod(node *etree.Element, key *keydata.Key, kictx *Context) error {
	encCtx, err := kictx.encryptionContext()
	if err != nil {
		return fmt.Errorf("agreement method: %w", err)
	}

	release, err := enterLevel(&kictx.curEncryptedKeyLevel, kictx.maxEncryptedKeyLevel)
	if err != nil {
		return fmt.Errorf("agreement method: %w", err)
	}
	defer release()

	if err := encCtx.AgreementMethodXMLWrite(kictx.GoContext(), node, kictx); err != nil {
		return fmt.Errorf("agreement method: %w", err)
	}
	return nil
}

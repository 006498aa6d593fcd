// Package enccontext implements the encryption-context collaborator
// keyinfo.EncryptionContext describes: decrypting EncryptedKey payloads,
// deriving DerivedKey material, and performing AgreementMethod key
// agreement, plus the inverse operations needed to write them back out.
//
// It owns a pair of inner, fully independent *keyinfo.Context values (one
// read, one write) used to drive the OriginatorKeyInfo/RecipientKeyInfo
// sub-KeyInfo elements nested inside AgreementMethod and EncryptedKey —
// the mutually-recursive relationship between the dispatch engine and its
// encryption context is resolved by ownership direction: this package
// imports keyinfo, keyinfo never imports this package.
//
// Ciphertext is carried as a JWE compact-serialization token (via
// github.com/lestrrat-go/jwx/v2/jwe) inside CipherData/CipherValue — a
// deliberate internal convention, since the algorithm/wire-format choice
// for EncryptedKey's ciphertext is explicitly left open. It generalizes
// the teacher repo's jwx-based, WithKey-option signing/verification style
// (internal/issuer/signing_txn_token.go, internal/trust/jwt_validator.go)
// to jwx's sibling jwe package.
package enccontext

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/beevik/etree"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
	"golang.org/x/crypto/hkdf"

	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/keyinfo"
	"github.com/alechenninger/keyinfo/internal/keysmanager"
	"github.com/alechenninger/keyinfo/internal/xmltree"
)

// Default algorithm choices, used when a node does not declare its own
// via EncryptionMethod/Algorithm. Real deployments are expected to read
// the declared algorithm and select accordingly; this module's
// EncryptionMethod parsing is intentionally minimal since algorithm
// negotiation policy is outside the dispatch engine's scope.
const (
	DefaultKeyEncryptionAlgorithm     = jwa.RSA_OAEP_256
	DefaultContentEncryptionAlgorithm = jwa.A256GCM
	DefaultDerivedKeySize             = 32 // bytes
)

// RawOctetDescriptorID names the registry descriptor expected to hold raw
// symmetric key bytes produced by decrypt/derive/agree operations. A
// deployment wiring this package registers a descriptor under this ID
// with keydata.KeyTypeAES or keydata.KeyTypeRawOct semantics.
const RawOctetDescriptorID = "RawOctetKeyValue"

// Ctx is the concrete keyinfo.EncryptionContext implementation.
type Ctx struct {
	keysMngr  keysmanager.Manager
	operation keyinfo.Operation
	registry  *keydata.Registry

	readCtx  *keyinfo.Context
	writeCtx *keyinfo.Context
}

// NewFactory returns a keyinfo.EncryptionContextFactory that constructs
// Ctx values bound to reg's descriptor registry (spec.md §4.6 step 2).
func NewFactory(reg *keydata.Registry) keyinfo.EncryptionContextFactory {
	return func(keysMngr keysmanager.Manager, operation keyinfo.Operation) keyinfo.EncryptionContext {
		return &Ctx{
			keysMngr:  keysMngr,
			operation: operation,
			registry:  reg,
			readCtx:   keyinfo.NewContext(reg),
			writeCtx:  keyinfo.NewContext(reg),
		}
	}
}

// Reset implements keyinfo.EncryptionContext.
func (c *Ctx) Reset() {
	c.readCtx.Reset()
	c.writeCtx.Reset()
}

// SyncUserPref implements keyinfo.EncryptionContext (spec.md §4.6 step 3:
// "re-copy user prefs into the encryption context's inner read/write
// KeyInfo contexts, they may have diverged since creation").
func (c *Ctx) SyncUserPref(outer *keyinfo.Context) {
	c.readCtx.Mode = keyinfo.ModeRead
	c.readCtx.KeysMngr = c.keysMngr
	c.readCtx.Operation = outer.Operation
	keyinfo.CopyUserPref(c.readCtx, outer)
	c.readCtx.Mode = keyinfo.ModeRead

	c.writeCtx.Mode = keyinfo.ModeWrite
	c.writeCtx.KeysMngr = c.keysMngr
	c.writeCtx.Operation = outer.Operation
	keyinfo.CopyUserPref(c.writeCtx, outer)
	c.writeCtx.Mode = keyinfo.ModeWrite
}

// DecryptToBuffer implements keyinfo.EncryptionContext (spec.md §4.6
// step 4).
func (c *Ctx) DecryptToBuffer(ctx context.Context, node *etree.Element, outer *keyinfo.Context) ([]byte, error) {
	recipient := keydata.NewKey()
	if kiNode := findChildKeyInfo(node); kiNode != nil {
		if err := keyinfo.Read(ctx, kiNode, recipient, c.readCtx); err != nil {
			return nil, fmt.Errorf("enccontext: resolving recipient key: %w", err)
		}
	}

	token, err := readCipherValue(node)
	if err != nil {
		return nil, err
	}

	material := privateKeyMaterial(recipient)
	if material == nil {
		return nil, fmt.Errorf("enccontext: no recipient private key available to decrypt EncryptedKey")
	}

	alg := keyEncryptionAlgorithm(node)
	plaintext, err := jwe.Decrypt(token, jwe.WithKey(alg, material))
	if err != nil {
		return nil, fmt.Errorf("enccontext: jwe decrypt: %w", err)
	}
	return plaintext, nil
}

// BinaryEncrypt implements keyinfo.EncryptionContext (spec.md §4.6 write
// step 3).
func (c *Ctx) BinaryEncrypt(ctx context.Context, node *etree.Element, plaintext []byte, outer *keyinfo.Context) error {
	recipient := keydata.NewKey()
	kiNode := findChildKeyInfo(node)
	if kiNode == nil {
		return fmt.Errorf("enccontext: EncryptedKey template has no recipient <KeyInfo>")
	}
	if err := keyinfo.Read(ctx, kiNode, recipient, c.readCtx); err != nil {
		return fmt.Errorf("enccontext: resolving recipient key: %w", err)
	}

	material := publicKeyMaterial(recipient)
	if material == nil {
		return fmt.Errorf("enccontext: no recipient public key available to encrypt EncryptedKey")
	}

	alg := keyEncryptionAlgorithm(node)
	token, err := jwe.Encrypt(plaintext,
		jwe.WithKey(alg, material),
		jwe.WithContentEncryption(DefaultContentEncryptionAlgorithm))
	if err != nil {
		return fmt.Errorf("enccontext: jwe encrypt: %w", err)
	}

	writeCipherValue(node, token)
	return nil
}

// DeriveKey implements keyinfo.EncryptionContext (spec.md §4.7).
func (c *Ctx) DeriveKey(ctx context.Context, node *etree.Element, outer *keyinfo.Context) (*keydata.Key, error) {
	secretKey := keydata.NewKey()
	if kiNode := findChildKeyInfo(node); kiNode != nil {
		if err := keyinfo.Read(ctx, kiNode, secretKey, c.readCtx); err != nil {
			return nil, fmt.Errorf("enccontext: resolving derivation master key: %w", err)
		}
	} else {
		return nil, fmt.Errorf("enccontext: <DerivedKey> has no master key <KeyInfo>")
	}

	secret := rawSecretMaterial(secretKey)
	if secret == nil {
		return nil, fmt.Errorf("enccontext: derivation master key has no raw secret material")
	}

	salt, info, size := parseKDFParams(node)
	derived, err := hkdfDerive(secret, salt, info, size)
	if err != nil {
		return nil, fmt.Errorf("enccontext: hkdf derive: %w", err)
	}

	out := keydata.NewKey()
	out.SetValue(rawOctetValue(derived))
	return out, nil
}

// AgreementMethodGenerate implements keyinfo.EncryptionContext (spec.md
// §4.8 read).
func (c *Ctx) AgreementMethodGenerate(ctx context.Context, node *etree.Element, outer *keyinfo.Context) (*keydata.Key, error) {
	originatorNode := findChildByTag(node, "OriginatorKeyInfo")
	recipientNode := findChildByTag(node, "RecipientKeyInfo")
	if originatorNode == nil || recipientNode == nil {
		return nil, fmt.Errorf("enccontext: <AgreementMethod> requires OriginatorKeyInfo and RecipientKeyInfo")
	}

	originatorKey := keydata.NewKey()
	if err := keyinfo.Read(ctx, originatorNode, originatorKey, c.readCtx); err != nil {
		return nil, fmt.Errorf("enccontext: resolving originator key: %w", err)
	}
	recipientKey := keydata.NewKey()
	if err := keyinfo.Read(ctx, recipientNode, recipientKey, c.readCtx); err != nil {
		return nil, fmt.Errorf("enccontext: resolving recipient key: %w", err)
	}

	originatorPub := ecdhPublicKeyMaterial(originatorKey)
	recipientPriv := ecdhPrivateKeyMaterial(recipientKey)
	if originatorPub == nil || recipientPriv == nil {
		return nil, fmt.Errorf("enccontext: agreement requires an originator public key and a recipient private key")
	}

	shared, err := recipientPriv.ECDH(originatorPub)
	if err != nil {
		return nil, fmt.Errorf("enccontext: ecdh: %w", err)
	}

	_, info, size := parseKDFParams(node)
	derived, err := hkdfDerive(shared, nil, info, size)
	if err != nil {
		return nil, fmt.Errorf("enccontext: hkdf derive: %w", err)
	}

	out := keydata.NewKey()
	out.SetValue(rawOctetValue(derived))
	return out, nil
}

// AgreementMethodXMLWrite implements keyinfo.EncryptionContext (spec.md
// §4.8 write).
func (c *Ctx) AgreementMethodXMLWrite(ctx context.Context, node *etree.Element, outer *keyinfo.Context) error {
	recipientNode := findChildByTag(node, "RecipientKeyInfo")
	if recipientNode == nil {
		return fmt.Errorf("enccontext: <AgreementMethod> write template has no RecipientKeyInfo")
	}

	recipientKey := keydata.NewKey()
	if err := keyinfo.Read(ctx, recipientNode, recipientKey, c.readCtx); err != nil {
		return fmt.Errorf("enccontext: resolving recipient key: %w", err)
	}
	recipientPub := ecdhPublicKeyMaterial(recipientKey)
	if recipientPub == nil {
		return fmt.Errorf("enccontext: RecipientKeyInfo has no usable public key")
	}

	ephemeral, err := recipientPub.Curve().GenerateKey(rand())
	if err != nil {
		return fmt.Errorf("enccontext: generating ephemeral originator key: %w", err)
	}

	originatorNode := findChildByTag(node, "OriginatorKeyInfo")
	if originatorNode == nil {
		originatorNode = node.CreateElement("OriginatorKeyInfo")
	}

	originatorKey := keydata.NewKey()
	originatorKey.SetValue(ecdhPublicValue(ephemeral.PublicKey()))
	if err := keyinfo.Write(ctx, originatorNode, originatorKey, c.writeCtx); err != nil {
		return fmt.Errorf("enccontext: writing originator key info: %w", err)
	}

	return nil
}

func findChildKeyInfo(node *etree.Element) *etree.Element {
	return findChildByTag(node, xmltree.ElemKeyInfo)
}

func findChildByTag(node *etree.Element, tag string) *etree.Element {
	for _, child := range node.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

func readCipherValue(node *etree.Element) ([]byte, error) {
	cipherData := findChildByTag(node, "CipherData")
	if cipherData == nil {
		return nil, fmt.Errorf("enccontext: EncryptedKey missing CipherData")
	}
	cipherValue := findChildByTag(cipherData, "CipherValue")
	if cipherValue == nil {
		return nil, fmt.Errorf("enccontext: CipherData missing CipherValue")
	}

	text := xmltree.TrimmedText(cipherValue)
	decoded, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: CipherValue is not valid base64: %v", keyinfo.ErrInvalidContent, err)
	}
	return decoded, nil
}

func writeCipherValue(node *etree.Element, token []byte) {
	cipherData := findChildByTag(node, "CipherData")
	if cipherData == nil {
		cipherData = node.CreateElement("CipherData")
	}
	cipherData.Child = nil
	cipherValue := cipherData.CreateElement("CipherValue")
	cipherValue.SetText(base64.StdEncoding.EncodeToString(token))
}

func keyEncryptionAlgorithm(node *etree.Element) jwa.KeyEncryptionAlgorithm {
	method := findChildByTag(node, "EncryptionMethod")
	if method == nil {
		return DefaultKeyEncryptionAlgorithm
	}
	alg := method.SelectAttrValue("Algorithm", "")
	switch alg {
	case "http://www.w3.org/2009/xmlenc11#rsa-oaep":
		return jwa.RSA_OAEP_256
	default:
		return DefaultKeyEncryptionAlgorithm
	}
}

// parseKDFParams reads the HKDF info from a <DerivedKey> or
// <AgreementMethod>'s nested KeyDerivationMethod/ConcatKDFParams: the
// base64-decoded AlgorithmID attribute. No salt or key size is read from
// the node: salt is always nil and size is always DefaultDerivedKeySize.
// Other ConcatKDFParams fields are ignored.
func parseKDFParams(node *etree.Element) (salt, info []byte, size int) {
	size = DefaultDerivedKeySize
	kdf := findChildByTag(node, "KeyDerivationMethod")
	if kdf == nil {
		return nil, nil, size
	}
	params := findChildByTag(kdf, "ConcatKDFParams")
	if params == nil {
		return nil, nil, size
	}
	if v := params.SelectAttrValue("AlgorithmID", ""); v != "" {
		if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
			info = decoded
		}
	}
	return salt, info, size
}

func hkdfDerive(secret, salt, info []byte, size int) ([]byte, error) {
	reader := hkdf.New(newSHA256, secret, salt, info)
	out := make([]byte, size)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

func privateKeyMaterial(key *keydata.Key) any {
	v := key.Value()
	if v == nil {
		return nil
	}
	switch m := v.Material().(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey:
		return m
	default:
		return nil
	}
}

func publicKeyMaterial(key *keydata.Key) any {
	v := key.Value()
	if v == nil {
		return nil
	}
	switch m := v.Material().(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
		return m
	default:
		return nil
	}
}

func rawSecretMaterial(key *keydata.Key) []byte {
	v := key.Value()
	if v == nil {
		return nil
	}
	if b, ok := v.Material().([]byte); ok {
		return b
	}
	return nil
}

package enccontext

import (
	"context"
	"crypto/ecdh"
	crand "crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/keyinfo"
	"github.com/alechenninger/keyinfo/internal/keysmanager"
)

type fakeRSAPrivateValue struct{ priv *rsa.PrivateKey }

func (v *fakeRSAPrivateValue) DescriptorID() string  { return "RSAPrivateKey" }
func (v *fakeRSAPrivateValue) Type() keydata.KeyType { return keydata.KeyTypeRSA }
func (v *fakeRSAPrivateValue) Size() int             { return v.priv.Size() * 8 }
func (v *fakeRSAPrivateValue) IsValid() bool         { return v.priv != nil }
func (v *fakeRSAPrivateValue) Material() any         { return v.priv }

type fakeRSAPublicValue struct{ pub *rsa.PublicKey }

func (v *fakeRSAPublicValue) DescriptorID() string  { return "RSAPublicKey" }
func (v *fakeRSAPublicValue) Type() keydata.KeyType { return keydata.KeyTypeRSA }
func (v *fakeRSAPublicValue) Size() int             { return v.pub.Size() * 8 }
func (v *fakeRSAPublicValue) IsValid() bool         { return v.pub != nil }
func (v *fakeRSAPublicValue) Material() any         { return v.pub }

func parseXML(t *testing.T, xml string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(xml))
	return doc.Root()
}

func newOuterContext(t *testing.T, mngr keysmanager.Manager) *keyinfo.Context {
	t.Helper()
	reg := keydata.NewRegistry()
	require.NoError(t, keyinfo.RegisterDefaults(reg))

	outer := keyinfo.NewContext(reg)
	outer.Mode = keyinfo.ModeRead
	outer.KeysMngr = mngr
	outer.EncContextFactory = NewFactory(reg)
	return outer
}

func TestCtx_DeriveKey_DerivesFromMasterSecret(t *testing.T) {
	mngr := keysmanager.NewInMemory()
	master := keydata.NewKey()
	master.SetValue(rawOctetValue([]byte("a shared master secret of decent length")))
	mngr.Register("master", master)

	outer := newOuterContext(t, mngr)
	factory := NewFactory(outer.Registry)
	ctx := factory(mngr, keyinfo.OperationDecrypt)
	ctx.SyncUserPref(outer)

	node := parseXML(t, `<DerivedKey><KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#"><KeyName>master</KeyName></KeyInfo></DerivedKey>`)

	derived, err := ctx.DeriveKey(context.Background(), node, outer)
	require.NoError(t, err)
	require.NotNil(t, derived)
	assert.True(t, derived.IsValid())
	assert.Equal(t, DefaultDerivedKeySize*8, derived.Value().Size())
}

func TestCtx_AgreementMethod_WritePopulatesOriginatorKeyInfo(t *testing.T) {
	mngr := keysmanager.NewInMemory()

	curve := ecdh.P256()
	recipientPriv, err := curve.GenerateKey(crand.Reader)
	require.NoError(t, err)

	publicRecipientKey := keydata.NewKey()
	publicRecipientKey.SetValue(ecdhPublicValue(recipientPriv.PublicKey()))
	mngr.Register("recipient-pub", publicRecipientKey)

	outer := newOuterContext(t, mngr)
	factory := NewFactory(outer.Registry)

	writeCtx := factory(mngr, keyinfo.OperationEncrypt)
	writeCtx.SyncUserPref(outer)

	writeNode := parseXML(t, `<AgreementMethod><RecipientKeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#"><KeyName>recipient-pub</KeyName></RecipientKeyInfo></AgreementMethod>`)
	require.NoError(t, writeCtx.AgreementMethodXMLWrite(context.Background(), writeNode, outer))

	originatorInfo := findChildByTag(writeNode, "OriginatorKeyInfo")
	require.NotNil(t, originatorInfo)
}

func TestCtx_DecryptBinaryEncrypt_RoundTrip(t *testing.T) {
	mngr := keysmanager.NewInMemory()

	priv, err := rsa.GenerateKey(crand.Reader, 2048)
	require.NoError(t, err)

	privKey := keydata.NewKey()
	privKey.SetValue(&fakeRSAPrivateValue{priv: priv})
	mngr.Register("recipient-priv", privKey)

	pubKey := keydata.NewKey()
	pubKey.SetValue(&fakeRSAPublicValue{pub: &priv.PublicKey})
	mngr.Register("recipient-pub", pubKey)

	outer := newOuterContext(t, mngr)
	factory := NewFactory(outer.Registry)

	encryptCtx := factory(mngr, keyinfo.OperationEncrypt)
	encryptCtx.SyncUserPref(outer)

	encNode := parseXML(t, `<EncryptedKey><KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#"><KeyName>recipient-pub</KeyName></KeyInfo></EncryptedKey>`)
	require.NoError(t, encryptCtx.BinaryEncrypt(context.Background(), encNode, []byte("top secret symmetric key"), outer))

	decNode := encNode.Copy()
	decKeyName := findChildByTag(findChildByTag(decNode, "KeyInfo"), "KeyName")
	require.NotNil(t, decKeyName)
	decKeyName.SetText("recipient-priv")

	decryptCtx := factory(mngr, keyinfo.OperationDecrypt)
	decryptCtx.SyncUserPref(outer)

	plaintext, err := decryptCtx.DecryptToBuffer(context.Background(), decNode, outer)
	require.NoError(t, err)
	assert.Equal(t, "top secret symmetric key", string(plaintext))
}

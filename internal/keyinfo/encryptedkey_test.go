package keyinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/keysmanager"
)

func withFakeEncCtx(kictx *Context, fake *fakeEncryptionContext) {
	kictx.EncContextFactory = func(mngr keysmanager.Manager, op Operation) EncryptionContext {
		return fake
	}
}

func TestReadEncryptedKey_DecryptsAndPopulatesKey(t *testing.T) {
	reg := keydata.NewRegistry()
	require.NoError(t, reg.Register(binaryDescriptor("RawOctet", "", keydata.UsageReadFromKeyInfo)))

	kictx := newTestContext(reg)
	kictx.KeyReq = &keydata.KeyReq{KeyID: "RawOctet"}
	withFakeEncCtx(kictx, &fakeEncryptionContext{decryptBuf: []byte("plaintext-secret")})

	node := parseElement(t, `<EncryptedKey/>`)
	key := keydata.NewKey()

	require.NoError(t, readEncryptedKey(node, key, kictx))
	assert.True(t, key.IsValid())
}

func TestReadEncryptedKey_FailedDecryptionPropagatesByDefault(t *testing.T) {
	kictx := newTestContext(keydata.NewRegistry())
	kictx.KeyReq = &keydata.KeyReq{KeyID: "RawOctet"}
	withFakeEncCtx(kictx, &fakeEncryptionContext{decryptErr: assert.AnError})

	node := parseElement(t, `<EncryptedKey/>`)
	err := readEncryptedKey(node, keydata.NewKey(), kictx)
	assert.Error(t, err)
}

func TestReadEncryptedKey_FailedDecryptionSwallowedWithFlag(t *testing.T) {
	kictx := newTestContext(keydata.NewRegistry())
	kictx.Flags |= FlagEncKeyDontStopOnFailedDecryption
	kictx.KeyReq = &keydata.KeyReq{KeyID: "RawOctet"}
	withFakeEncCtx(kictx, &fakeEncryptionContext{decryptErr: assert.AnError})

	node := parseElement(t, `<EncryptedKey/>`)
	key := keydata.NewKey()

	require.NoError(t, readEncryptedKey(node, key, kictx))
	assert.False(t, key.IsValid())
}

func TestReadEncryptedKey_RecursionCapExceeded(t *testing.T) {
	kictx := newTestContext(keydata.NewRegistry())
	kictx.SetMaxEncryptedKeyLevel(1)
	kictx.curEncryptedKeyLevel = 1
	withFakeEncCtx(kictx, &fakeEncryptionContext{})

	node := parseElement(t, `<EncryptedKey/>`)
	err := readEncryptedKey(node, keydata.NewKey(), kictx)
	assert.ErrorIs(t, err, ErrMaxLevelExceeded)
}

func TestWriteEncryptedKey_EncryptsKeyMaterial(t *testing.T) {
	reg := keydata.NewRegistry()
	require.NoError(t, reg.Register(&keydata.Descriptor{
		ID:    "RawOctet",
		Usage: keydata.UsageWriteToKeyInfo,
		WriteBinary: func(key *keydata.Key, ctx keydata.Context) ([]byte, error) {
			return []byte("raw-material"), nil
		},
	}))

	kictx := newTestContext(reg)
	kictx.Mode = ModeWrite
	fake := &fakeEncryptionContext{}
	withFakeEncCtx(kictx, fake)

	key := keydata.NewKey()
	key.SetValue(&fakeValue{id: "RawOctet", valid: true})

	node := parseElement(t, `<EncryptedKey/>`)
	require.NoError(t, writeEncryptedKey(node, key, kictx))
	assert.Equal(t, "raw-material", string(fake.encryptedPlaintext))
}

func TestWriteEncryptedKey_RequiresPopulatedKey(t *testing.T) {
	kictx := newTestContext(keydata.NewRegistry())
	kictx.Mode = ModeWrite

	node := parseElement(t, `<EncryptedKey/>`)
	err := writeEncryptedKey(node, keydata.NewKey(), kictx)
	assert.ErrorIs(t, err, ErrInvalidKeyData)
}

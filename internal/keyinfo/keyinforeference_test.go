package keyinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/xform"
)

func TestReadKeyInfoReference_MissingURIFatal(t *testing.T) {
	kictx := newTestContext(keydata.NewRegistry())
	node := parseElement(t, `<KeyInfoReference/>`)

	err := readKeyInfoReference(node, keydata.NewKey(), kictx)
	assert.ErrorIs(t, err, ErrInvalidAttribute)
}

func TestReadKeyInfoReference_ElementChildrenFatal(t *testing.T) {
	kictx := newTestContext(keydata.NewRegistry())
	node := parseElement(t, `<KeyInfoReference URI="#frag"><Huh/></KeyInfoReference>`)

	err := readKeyInfoReference(node, keydata.NewKey(), kictx)
	assert.ErrorIs(t, err, ErrUnexpectedNode)
}

func TestReadKeyInfoReference_RootMustBeKeyInfo(t *testing.T) {
	kictx := newTestContext(keydata.NewRegistry())
	kictx.Fetcher = xform.MapFetcher{"#frag": []byte(`<NotKeyInfo/>`)}

	node := parseElement(t, `<KeyInfoReference URI="#frag"/>`)
	err := readKeyInfoReference(node, keydata.NewKey(), kictx)
	assert.ErrorIs(t, err, ErrInvalidNode)
}

func TestReadKeyInfoReference_RecursesIntoKeyInfo(t *testing.T) {
	reg := keydata.NewRegistry()
	require.NoError(t, RegisterDefaults(reg))

	kictx := newTestContext(reg)
	kictx.Fetcher = xform.MapFetcher{
		"#frag": []byte(`<KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#"><KeyName>alice</KeyName></KeyInfo>`),
	}

	node := parseElement(t, `<KeyInfoReference URI="#frag"/>`)
	key := keydata.NewKey()

	require.NoError(t, readKeyInfoReference(node, key, kictx))
	assert.Equal(t, "alice", key.Name())
}

func TestReadKeyInfoReference_RecursionCapExceeded(t *testing.T) {
	kictx := newTestContext(keydata.NewRegistry())
	kictx.SetMaxKeyInfoReferenceLevel(1)
	kictx.curKeyInfoReferenceLevel = 1

	node := parseElement(t, `<KeyInfoReference URI="#frag"/>`)
	err := readKeyInfoReference(node, keydata.NewKey(), kictx)
	assert.ErrorIs(t, err, ErrMaxLevelExceeded)
}

func TestWriteKeyInfoReference_IsNoop(t *testing.T) {
	desc := KeyInfoReferenceDescriptor()
	node := parseElement(t, `<KeyInfoReference URI="#frag"/>`)
	kictx := newTestContext(keydata.NewRegistry())
	kictx.Mode = ModeWrite

	require.NoError(t, desc.WriteXML(keydata.NewKey(), node, kictx))
}

package keyinfo

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alechenninger/keyinfo/internal/keydata"
)

func rawValueDescriptor(id string, usage keydata.Usage) *keydata.Descriptor {
	return &keydata.Descriptor{
		ID:               id,
		Usage:            usage,
		ElementName:      id,
		ElementNamespace: "http://example/ns",
		ReadXML: func(key *keydata.Key, node *etree.Element, ctx keydata.Context) error {
			key.SetValue(&fakeValue{id: id, valid: true})
			return nil
		},
		WriteXML: func(key *keydata.Key, node *etree.Element, ctx keydata.Context) error {
			node.SetText("written")
			return nil
		},
	}
}

func TestReadKeyValue_EmptyIsAllowed(t *testing.T) {
	kictx := newTestContext(keydata.NewRegistry())
	node := parseElement(t, `<KeyValue></KeyValue>`)
	key := keydata.NewKey()

	require.NoError(t, readKeyValue(node, key, kictx))
	assert.False(t, key.IsValid())
}

func TestReadKeyValue_ResolvesKnownChild(t *testing.T) {
	reg := keydata.NewRegistry()
	require.NoError(t, reg.Register(rawValueDescriptor("RSAKeyValue", keydata.UsageReadFromKeyValue)))

	kictx := newTestContext(reg)
	node := parseElement(t, `<KeyValue><RSAKeyValue xmlns="http://example/ns"/></KeyValue>`)
	key := keydata.NewKey()

	require.NoError(t, readKeyValue(node, key, kictx))
	assert.True(t, key.IsValid())
}

func TestReadKeyValue_UnknownChildIgnoredByDefault(t *testing.T) {
	kictx := newTestContext(keydata.NewRegistry())
	node := parseElement(t, `<KeyValue><Mystery/></KeyValue>`)
	key := keydata.NewKey()

	require.NoError(t, readKeyValue(node, key, kictx))
	assert.False(t, key.IsValid())
}

func TestReadKeyValue_UnknownChildFatalWithFlag(t *testing.T) {
	kictx := newTestContext(keydata.NewRegistry())
	kictx.Flags |= FlagKeyValueStopOnUnknownChild
	node := parseElement(t, `<KeyValue><Mystery/></KeyValue>`)

	err := readKeyValue(node, keydata.NewKey(), kictx)
	assert.ErrorIs(t, err, ErrUnexpectedNode)
}

func TestReadKeyValue_ExtraSiblingFatal(t *testing.T) {
	reg := keydata.NewRegistry()
	require.NoError(t, reg.Register(rawValueDescriptor("RSAKeyValue", keydata.UsageReadFromKeyValue)))

	kictx := newTestContext(reg)
	node := parseElement(t, `<KeyValue><RSAKeyValue xmlns="http://example/ns"/><DSAKeyValue/></KeyValue>`)

	err := readKeyValue(node, keydata.NewKey(), kictx)
	assert.ErrorIs(t, err, ErrUnexpectedNode)
}

func TestWriteKeyValue_NoValueIsSilentNoop(t *testing.T) {
	kictx := newTestContext(keydata.NewRegistry())
	node := parseElement(t, `<KeyValue></KeyValue>`)

	require.NoError(t, writeKeyValue(node, keydata.NewKey(), kictx))
	assert.Empty(t, node.ChildElements())
}

func TestWriteKeyValue_WritesChildWhenEligible(t *testing.T) {
	reg := keydata.NewRegistry()
	require.NoError(t, reg.Register(rawValueDescriptor("RSAKeyValue", keydata.UsageWriteKeyValue)))

	kictx := newTestContext(reg)
	kictx.Mode = ModeWrite

	key := keydata.NewKey()
	key.SetValue(&fakeValue{id: "RSAKeyValue", valid: true})

	node := parseElement(t, `<KeyValue></KeyValue>`)
	require.NoError(t, writeKeyValue(node, key, kictx))

	children := node.ChildElements()
	require.Len(t, children, 1)
	assert.Equal(t, "RSAKeyValue", children[0].Tag)
	assert.Equal(t, "written", children[0].Text())
}

func TestWriteKeyValue_SkipsWhenDisabledByEnabledSet(t *testing.T) {
	reg := keydata.NewRegistry()
	require.NoError(t, reg.Register(rawValueDescriptor("RSAKeyValue", keydata.UsageWriteKeyValue)))
	require.NoError(t, reg.Register(rawValueDescriptor("ECKeyValue", keydata.UsageWriteKeyValue)))

	es, err := keydata.NewEnabledSet(reg, "ECKeyValue")
	require.NoError(t, err)

	kictx := newTestContext(reg)
	kictx.Mode = ModeWrite
	kictx.EnabledKeyData = es

	key := keydata.NewKey()
	key.SetValue(&fakeValue{id: "RSAKeyValue", valid: true})

	node := parseElement(t, `<KeyValue></KeyValue>`)
	require.NoError(t, writeKeyValue(node, key, kictx))
	assert.Empty(t, node.ChildElements())
}

func TestWriteKeyValue_SkipsWhenKeyDoesNotMatchRequirement(t *testing.T) {
	reg := keydata.NewRegistry()
	require.NoError(t, reg.Register(rawValueDescriptor("RSAKeyValue", keydata.UsageWriteKeyValue)))

	kictx := newTestContext(reg)
	kictx.Mode = ModeWrite
	kictx.KeyReq = &keydata.KeyReq{KeyType: keydata.KeyTypeEC}

	key := keydata.NewKey()
	key.SetValue(&fakeValue{id: "RSAKeyValue", valid: true, typ: keydata.KeyTypeRSA})

	node := parseElement(t, `<KeyValue></KeyValue>`)
	require.NoError(t, writeKeyValue(node, key, kictx))
	assert.Empty(t, node.ChildElements())
}

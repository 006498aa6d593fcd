package keyinfo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alechenninger/keyinfo/internal/keydata"
)

func TestRead_WrongModeErrors(t *testing.T) {
	kictx := NewContext(keydata.NewRegistry())
	kictx.Mode = ModeWrite
	node := parseElement(t, `<KeyInfo></KeyInfo>`)

	err := Read(context.Background(), node, keydata.NewKey(), kictx)
	assert.ErrorIs(t, err, ErrWrongMode)
}

func TestRead_StopsOnKeyFound(t *testing.T) {
	reg := keydata.NewRegistry()
	require.NoError(t, RegisterDefaults(reg))

	kictx := newTestContext(reg)
	node := parseElement(t, `<KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#">
		<KeyName>alice</KeyName>
		<KeyName>bob</KeyName>
	</KeyInfo>`)

	key := keydata.NewKey()
	key.SetValue(&fakeValue{id: "preset", valid: true})

	require.NoError(t, Read(context.Background(), node, key, kictx))
	assert.Equal(t, "alice", key.Name())
}

func TestRead_UnknownChildIgnoredByDefault(t *testing.T) {
	reg := keydata.NewRegistry()
	require.NoError(t, RegisterDefaults(reg))

	kictx := newTestContext(reg)
	node := parseElement(t, `<KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#"><Mystery/></KeyInfo>`)

	require.NoError(t, Read(context.Background(), node, keydata.NewKey(), kictx))
}

func TestRead_UnknownChildFatalWithFlag(t *testing.T) {
	reg := keydata.NewRegistry()
	require.NoError(t, RegisterDefaults(reg))

	kictx := newTestContext(reg)
	kictx.Flags |= FlagStopOnUnknownChild
	node := parseElement(t, `<KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#"><Mystery/></KeyInfo>`)

	err := Read(context.Background(), node, keydata.NewKey(), kictx)
	assert.ErrorIs(t, err, ErrUnexpectedNode)
}

func TestWrite_WrongModeErrors(t *testing.T) {
	kictx := NewContext(keydata.NewRegistry())
	node := parseElement(t, `<KeyInfo></KeyInfo>`)

	err := Write(context.Background(), node, keydata.NewKey(), kictx)
	assert.ErrorIs(t, err, ErrWrongMode)
}

func TestWrite_DispatchesToKnownChildren(t *testing.T) {
	reg := keydata.NewRegistry()
	require.NoError(t, RegisterDefaults(reg))

	kictx := newTestContext(reg)
	kictx.Mode = ModeWrite

	node := parseElement(t, `<KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#"><KeyName></KeyName></KeyInfo>`)
	key := keydata.NewKey()
	key.SetName("frank")

	require.NoError(t, Write(context.Background(), node, key, kictx))
	assert.Equal(t, "frank", node.ChildElements()[0].Text())
}

func TestShouldStopOnKeyFound_RespectsDontStopFlag(t *testing.T) {
	kictx := NewContext(keydata.NewRegistry())
	kictx.Flags |= FlagDontStopOnKeyFound

	key := keydata.NewKey()
	key.SetValue(&fakeValue{id: "x", valid: true})

	assert.False(t, shouldStopOnKeyFound(kictx, key))
}

package keysmanager

import (
	"context"
	"testing"

	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValue struct{ valid bool }

func (f *fakeValue) DescriptorID() string  { return "fake" }
func (f *fakeValue) Type() keydata.KeyType { return keydata.KeyTypeAny }
func (f *fakeValue) Size() int             { return 0 }
func (f *fakeValue) IsValid() bool         { return f.valid }
func (f *fakeValue) Material() any         { return nil }

func TestInMemory_FindKeyByName(t *testing.T) {
	m := NewInMemory()

	k := keydata.NewKey()
	k.SetValue(&fakeValue{valid: true})
	m.Register("alice", k)

	found, err := m.FindKeyByName(context.Background(), "alice", nil)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.IsValid())

	missing, err := m.FindKeyByName(context.Background(), "bob", nil)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInMemory_FindKeyByName_RequirementFilters(t *testing.T) {
	m := NewInMemory()
	k := keydata.NewKey()
	k.SetValue(&fakeValue{valid: true})
	m.Register("alice", k)

	found, err := m.FindKeyByName(context.Background(), "alice", &keydata.KeyReq{KeyID: "other"})
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestInMemory_RemoveForgetsKey(t *testing.T) {
	m := NewInMemory()
	k := keydata.NewKey()
	k.SetValue(&fakeValue{valid: true})
	m.Register("alice", k)
	m.Remove("alice")

	found, err := m.FindKeyByName(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.Nil(t, found)
}

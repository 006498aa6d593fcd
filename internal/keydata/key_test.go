package keydata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValue struct {
	id      string
	keyType KeyType
	size    int
	valid   bool
}

func (f *fakeValue) DescriptorID() string { return f.id }
func (f *fakeValue) Type() KeyType        { return f.keyType }
func (f *fakeValue) Size() int            { return f.size }
func (f *fakeValue) IsValid() bool        { return f.valid }
func (f *fakeValue) Material() any        { return nil }

func TestKey_EmptyAndCopyFrom(t *testing.T) {
	src := NewKey()
	src.SetName("alice")
	src.SetValue(&fakeValue{id: "RSAKeyValue", keyType: KeyTypeRSA, size: 2048, valid: true})
	src.AddAuxValue(&fakeValue{id: "X509Data", valid: true})

	dst := NewKey()
	dst.SetName("stale")
	require.True(t, dst.IsValid() == false)

	dst.Empty()
	dst.CopyFrom(src)

	assert.Equal(t, "alice", dst.Name())
	assert.True(t, dst.IsValid())
	assert.Len(t, dst.AuxValues(), 1)

	// Independent: mutating src afterward must not affect dst.
	src.SetName("changed")
	assert.Equal(t, "alice", dst.Name())
}

func TestKey_Matches(t *testing.T) {
	k := NewKey()
	k.SetValue(&fakeValue{id: "RSAKeyValue", keyType: KeyTypeRSA, size: 2048, valid: true})

	assert.True(t, k.Matches(nil))
	assert.True(t, k.Matches(&KeyReq{KeyType: KeyTypeRSA}))
	assert.False(t, k.Matches(&KeyReq{KeyType: KeyTypeEC}))
	assert.True(t, k.Matches(&KeyReq{MinKeySize: 1024}))
	assert.False(t, k.Matches(&KeyReq{MinKeySize: 4096}))
	assert.False(t, k.Matches(&KeyReq{KeyID: "ECKeyValue"}))
}

func TestKey_MatchesRequiresValid(t *testing.T) {
	k := NewKey()
	assert.False(t, k.Matches(nil))
}

func TestKey_NamesTried(t *testing.T) {
	k := NewKey()
	k.RecordNameTried("bob")
	k.RecordNameTried("carol")
	assert.Equal(t, []string{"bob", "carol"}, k.NamesTried())

	k.Empty()
	assert.Empty(t, k.NamesTried())
}

package enccontext

import (
	"crypto/ecdh"
	crand "crypto/rand"
	"crypto/sha256"
	"hash"
	"io"

	"github.com/alechenninger/keyinfo/internal/keydata"
)

// ECDHPublicDescriptorID and ECDHPrivateDescriptorID name the descriptor
// IDs this package's agreement-method values carry. A deployment does
// not need to register these with the dispatch registry unless it also
// wants them addressable as ordinary KeyValue children; enccontext uses
// them only as internal keydata.Value carriers between Read-populated
// Keys and the stdlib crypto/ecdh API.
const (
	ECDHPublicDescriptorID  = "ECDHPublicKey"
	ECDHPrivateDescriptorID = "ECDHPrivateKey"
)

type ecdhPublicValueImpl struct {
	pub *ecdh.PublicKey
}

func (v *ecdhPublicValueImpl) DescriptorID() string  { return ECDHPublicDescriptorID }
func (v *ecdhPublicValueImpl) Type() keydata.KeyType { return keydata.KeyTypeEC }
func (v *ecdhPublicValueImpl) Size() int             { return len(v.pub.Bytes()) * 8 }
func (v *ecdhPublicValueImpl) IsValid() bool         { return v.pub != nil }
func (v *ecdhPublicValueImpl) Material() any         { return v.pub }

type ecdhPrivateValueImpl struct {
	priv *ecdh.PrivateKey
}

func (v *ecdhPrivateValueImpl) DescriptorID() string  { return ECDHPrivateDescriptorID }
func (v *ecdhPrivateValueImpl) Type() keydata.KeyType { return keydata.KeyTypeEC }
func (v *ecdhPrivateValueImpl) Size() int             { return len(v.priv.Bytes()) * 8 }
func (v *ecdhPrivateValueImpl) IsValid() bool         { return v.priv != nil }
func (v *ecdhPrivateValueImpl) Material() any         { return v.priv }

func ecdhPublicValue(pub *ecdh.PublicKey) keydata.Value {
	return &ecdhPublicValueImpl{pub: pub}
}

func ecdhPrivateValue(priv *ecdh.PrivateKey) keydata.Value {
	return &ecdhPrivateValueImpl{priv: priv}
}

func ecdhPublicKeyMaterial(key *keydata.Key) *ecdh.PublicKey {
	v := key.Value()
	if v == nil {
		return nil
	}
	pub, _ := v.Material().(*ecdh.PublicKey)
	return pub
}

func ecdhPrivateKeyMaterial(key *keydata.Key) *ecdh.PrivateKey {
	v := key.Value()
	if v == nil {
		return nil
	}
	priv, _ := v.Material().(*ecdh.PrivateKey)
	return priv
}

// rawOctetValueImpl carries derived symmetric key material produced by
// HKDF or ECDH agreement (spec.md §4.7, §4.8), registered under
// RawOctetDescriptorID.
type rawOctetValueImpl struct {
	bytes []byte
}

func (v *rawOctetValueImpl) DescriptorID() string  { return RawOctetDescriptorID }
func (v *rawOctetValueImpl) Type() keydata.KeyType { return keydata.KeyTypeRawOct }
func (v *rawOctetValueImpl) Size() int             { return len(v.bytes) * 8 }
func (v *rawOctetValueImpl) IsValid() bool         { return len(v.bytes) > 0 }
func (v *rawOctetValueImpl) Material() any         { return append([]byte(nil), v.bytes...) }

func rawOctetValue(b []byte) keydata.Value {
	return &rawOctetValueImpl{bytes: b}
}

func rand() io.Reader {
	return crand.Reader
}

func newSHA256() hash.Hash {
	return sha256.New()
}

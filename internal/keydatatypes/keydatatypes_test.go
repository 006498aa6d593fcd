package keydatatypes

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alechenninger/keyinfo/internal/keydata"
)

func TestRSAKeyValue_WriteThenReadRoundTrips(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key := keydata.NewKey()
	key.SetValue(rsaPublicValue{pub: &priv.PublicKey})

	node := etree.NewElement("RSAKeyValue")
	require.NoError(t, writeRSAKeyValue(key, node, nil))

	roundTripped := keydata.NewKey()
	require.NoError(t, readRSAKeyValue(roundTripped, node, nil))

	pub, ok := roundTripped.Value().Material().(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, priv.PublicKey.N, pub.N)
	assert.Equal(t, priv.PublicKey.E, pub.E)
}

func TestRSAKeyValue_ReadMissingChildrenErrors(t *testing.T) {
	node := etree.NewElement("RSAKeyValue")
	err := readRSAKeyValue(keydata.NewKey(), node, nil)
	assert.Error(t, err)
}

func TestX509Data_WriteThenReadRoundTrips(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "keyinfo-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	key := keydata.NewKey()
	key.SetValue(x509DataValue{certs: []*x509.Certificate{cert}})

	node := etree.NewElement("X509Data")
	require.NoError(t, writeX509Data(key, node, nil))
	assert.Len(t, node.SelectElements("X509Certificate"), 1)

	roundTripped := keydata.NewKey()
	require.NoError(t, readX509Data(roundTripped, node, nil))

	certs, ok := roundTripped.Value().Material().([]*x509.Certificate)
	require.True(t, ok)
	require.Len(t, certs, 1)
	assert.Equal(t, cert.SerialNumber, certs[0].SerialNumber)
}

func TestX509Data_ReadNoCertificatesLeavesKeyEmpty(t *testing.T) {
	node := etree.NewElement("X509Data")
	key := keydata.NewKey()
	require.NoError(t, readX509Data(key, node, nil))
	assert.False(t, key.IsValid())
}

func TestRegister_AddsBothDescriptors(t *testing.T) {
	reg := keydata.NewRegistry()
	require.NoError(t, Register(reg))

	_, ok := reg.FindByID(RSAKeyValueDescriptorID, keydata.UsageReadFromKeyValue)
	assert.True(t, ok)
	_, ok = reg.FindByID(X509DataDescriptorID, keydata.UsageReadFromKeyInfo)
	assert.True(t, ok)
}

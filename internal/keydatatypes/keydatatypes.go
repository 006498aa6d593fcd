// Package keydatatypes provides illustrative concrete key-data descriptors
// layered on top of internal/keydata and internal/keyinfo: an RSAKeyValue
// KeyValue child and an X509Data KeyInfo child. The core dispatch
// machinery in internal/keyinfo is deliberately agnostic to any specific
// key representation (spec.md §1); these are examples of the kind of
// descriptor an embedder registers on top of it, grounded on the same
// etree-node-in/Key-out shape as internal/keyinfo/keyname.go and
// internal/keyinfo/keyvalue.go.
package keydatatypes

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"github.com/beevik/etree"

	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/xmltree"
)

const (
	RSAKeyValueDescriptorID = "RSAKeyValue"
	X509DataDescriptorID    = "X509Data"
)

// Register adds the descriptors this package provides to reg.
func Register(reg *keydata.Registry) error {
	for _, d := range []*keydata.Descriptor{RSAKeyValueDescriptor(), X509DataDescriptor()} {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// rsaPublicValue wraps an *rsa.PublicKey as a keydata.Value.
type rsaPublicValue struct {
	pub *rsa.PublicKey
}

func (v rsaPublicValue) DescriptorID() string  { return RSAKeyValueDescriptorID }
func (v rsaPublicValue) Type() keydata.KeyType { return keydata.KeyTypeRSA }
func (v rsaPublicValue) Size() int {
	if v.pub == nil {
		return 0
	}
	return v.pub.Size() * 8
}
func (v rsaPublicValue) IsValid() bool { return v.pub != nil }
func (v rsaPublicValue) Material() any { return v.pub }

// RSAKeyValueDescriptor reads/writes the XMLDSig <RSAKeyValue> element
// (Modulus, Exponent children, each base64-encoded big-endian integers)
// as a KeyValue child (spec.md §4.3).
func RSAKeyValueDescriptor() *keydata.Descriptor {
	return &keydata.Descriptor{
		ID:               RSAKeyValueDescriptorID,
		Name:             "RSAKeyValue",
		Usage:            keydata.UsageReadFromKeyValue | keydata.UsageWriteKeyValue,
		ElementName:      "RSAKeyValue",
		ElementNamespace: xmltree.NsDSig,
		ReadXML:          readRSAKeyValue,
		WriteXML:         writeRSAKeyValue,
	}
}

func readRSAKeyValue(key *keydata.Key, node *etree.Element, _ keydata.Context) error {
	modulusEl := node.SelectElement("Modulus")
	exponentEl := node.SelectElement("Exponent")
	if modulusEl == nil || exponentEl == nil {
		return fmt.Errorf("RSAKeyValue missing Modulus or Exponent")
	}

	modulus, err := decodeBigInt(modulusEl.Text())
	if err != nil {
		return fmt.Errorf("RSAKeyValue Modulus: %w", err)
	}
	exponent, err := decodeBigInt(exponentEl.Text())
	if err != nil {
		return fmt.Errorf("RSAKeyValue Exponent: %w", err)
	}

	pub := &rsa.PublicKey{N: modulus, E: int(exponent.Int64())}
	key.SetValue(rsaPublicValue{pub: pub})
	return nil
}

func writeRSAKeyValue(key *keydata.Key, node *etree.Element, _ keydata.Context) error {
	value := key.Value()
	pub, ok := value.Material().(*rsa.PublicKey)
	if !ok || pub == nil {
		return fmt.Errorf("RSAKeyValue write requires an *rsa.PublicKey")
	}

	node.CreateElement("Modulus").SetText(encodeBigInt(pub.N))
	node.CreateElement("Exponent").SetText(encodeBigInt(big.NewInt(int64(pub.E))))
	return nil
}

func decodeBigInt(s string) (*big.Int, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func encodeBigInt(n *big.Int) string {
	return base64.StdEncoding.EncodeToString(n.Bytes())
}

// x509DataValue carries the certificate chain parsed from an X509Data
// element's X509Certificate children, in document order (leaf first by
// convention, but this package does not enforce an order).
type x509DataValue struct {
	certs []*x509.Certificate
}

func (v x509DataValue) DescriptorID() string  { return X509DataDescriptorID }
func (v x509DataValue) Type() keydata.KeyType { return keydata.KeyTypeX509 }
func (v x509DataValue) Size() int {
	if len(v.certs) == 0 {
		return 0
	}
	if pub, ok := v.certs[0].PublicKey.(*rsa.PublicKey); ok {
		return pub.Size() * 8
	}
	return 0
}
func (v x509DataValue) IsValid() bool { return len(v.certs) > 0 }
func (v x509DataValue) Material() any { return v.certs }

// X509DataDescriptor reads/writes the XMLDSig <X509Data> element as a
// KeyInfo child (spec.md §4.1), carrying one or more DER-encoded,
// base64-wrapped certificates in X509Certificate children.
func X509DataDescriptor() *keydata.Descriptor {
	return &keydata.Descriptor{
		ID:               X509DataDescriptorID,
		Name:             "X509Data",
		Usage:            keydata.UsageReadFromKeyInfo | keydata.UsageWriteToKeyInfo,
		ElementName:      "X509Data",
		ElementNamespace: xmltree.NsDSig,
		ReadXML:          readX509Data,
		WriteXML:         writeX509Data,
	}
}

func readX509Data(key *keydata.Key, node *etree.Element, _ keydata.Context) error {
	certEls := node.SelectElements("X509Certificate")
	if len(certEls) == 0 {
		return nil
	}

	certs := make([]*x509.Certificate, 0, len(certEls))
	for _, el := range certEls {
		der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(el.Text()))
		if err != nil {
			return fmt.Errorf("X509Certificate: %w", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return fmt.Errorf("X509Certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	key.SetValue(x509DataValue{certs: certs})
	return nil
}

func writeX509Data(key *keydata.Key, node *etree.Element, _ keydata.Context) error {
	certs, ok := key.Value().Material().([]*x509.Certificate)
	if !ok || len(certs) == 0 {
		return fmt.Errorf("X509Data write requires at least one *x509.Certificate")
	}

	for _, cert := range certs {
		node.CreateElement("X509Certificate").SetText(base64.StdEncoding.EncodeToString(cert.Raw))
	}
	return nil
}

package keyinfo

import (
	"context"

	"github.com/beevik/etree"

	"github.com/alechenninger/keyinfo/internal/keydata"
)

// fakeValue is a minimal keydata.Value test double used across this
// package's tests.
type fakeValue struct {
	id    string
	typ   keydata.KeyType
	size  int
	valid bool
	mat   any
}

func (f *fakeValue) DescriptorID() string    { return f.id }
func (f *fakeValue) Type() keydata.KeyType   { return f.typ }
func (f *fakeValue) Size() int               { return f.size }
func (f *fakeValue) IsValid() bool           { return f.valid }
func (f *fakeValue) Material() any           { return f.mat }

// fakeEncryptionContext is a test double for the EncryptionContext
// collaborator, letting handler tests exercise EncryptedKey/DerivedKey/
// AgreementMethod dispatch without a real crypto implementation.
type fakeEncryptionContext struct {
	resetCalls int

	decryptBuf []byte
	decryptErr error

	derivedKey *keydata.Key
	deriveErr  error

	agreedKey  *keydata.Key
	agreeErr   error

	xmlWriteErr error

	encryptErr error
	encryptedPlaintext []byte
}

func (f *fakeEncryptionContext) Reset() { f.resetCalls++ }

func (f *fakeEncryptionContext) SyncUserPref(outer *Context) {}

func (f *fakeEncryptionContext) DecryptToBuffer(ctx context.Context, node *etree.Element, outer *Context) ([]byte, error) {
	return f.decryptBuf, f.decryptErr
}

func (f *fakeEncryptionContext) DeriveKey(ctx context.Context, node *etree.Element, outer *Context) (*keydata.Key, error) {
	return f.derivedKey, f.deriveErr
}

func (f *fakeEncryptionContext) AgreementMethodGenerate(ctx context.Context, node *etree.Element, outer *Context) (*keydata.Key, error) {
	return f.agreedKey, f.agreeErr
}

func (f *fakeEncryptionContext) AgreementMethodXMLWrite(ctx context.Context, node *etree.Element, outer *Context) error {
	if f.xmlWriteErr != nil {
		return f.xmlWriteErr
	}
	node.CreateElement("AgreedKey")
	return nil
}

func (f *fakeEncryptionContext) BinaryEncrypt(ctx context.Context, node *etree.Element, plaintext []byte, outer *Context) error {
	f.encryptedPlaintext = append([]byte(nil), plaintext...)
	return f.encryptErr
}

func newTestContext(reg *keydata.Registry) *Context {
	ctx := NewContext(reg)
	ctx.Mode = ModeRead
	return ctx
}

func parseElement(t interface{ Helper(); Fatalf(string, ...any) }, xml string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xml); err != nil {
		t.Fatalf("parsing test XML: %v", err)
	}
	return doc.Root()
}

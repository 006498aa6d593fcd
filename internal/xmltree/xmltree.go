// Package xmltree adapts github.com/beevik/etree as the concrete XML tree
// library behind the KeyInfo core. The core itself only ever touches
// *etree.Element directly; this package exists so the namespace
// constants and lenient-parsing behavior the core depends on (spec.md
// §4.4, §9 "Lenient XML parsing") live in one place.
package xmltree

import (
	"fmt"

	"github.com/beevik/etree"
)

// Namespace URIs, treated as opaque identifiers by the core (spec.md §6)
// but needed here as literal strings to recognize elements.
const (
	NsDSig    = "http://www.w3.org/2000/09/xmldsig#"
	NsDSig11  = "http://www.w3.org/2009/xmldsig11#"
	NsXMLEnc  = "http://www.w3.org/2001/04/xmlenc#"
	NsXMLEnc11 = "http://www.w3.org/2009/xmlenc11#"
)

// Element names recognized at the KeyInfo level (spec.md §6).
const (
	ElemKeyName          = "KeyName"
	ElemKeyValue         = "KeyValue"
	ElemRetrievalMethod  = "RetrievalMethod"
	ElemKeyInfoReference = "KeyInfoReference"
	ElemEncryptedKey     = "EncryptedKey"
	ElemDerivedKey       = "DerivedKey"
	ElemAgreementMethod  = "AgreementMethod"
	ElemTransforms       = "Transforms"
	ElemKeyInfo          = "KeyInfo"
)

// ChildElements returns the element children of n in document order,
// skipping text, comment, and processing-instruction nodes.
func ChildElements(n *etree.Element) []*etree.Element {
	return n.ChildElements()
}

// LocalName and Namespace together identify an element the way the
// registry keys descriptors (spec.md §3 KeyDataDescriptor).
func LocalName(e *etree.Element) string {
	return e.Tag
}

func Namespace(e *etree.Element) string {
	return e.NamespaceURI()
}

// TrimmedText returns the element's character content with surrounding
// whitespace removed, as required by KeyName (spec.md §4.2) and other
// simple-text elements.
func TrimmedText(e *etree.Element) string {
	return trimSpace(e.Text())
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// ParseLenient parses buf as an XML document, tolerating the kind of
// minor malformation (stray trailing bytes, missing final newline) that
// fetched retrieval results sometimes carry. This preserves the
// interoperability concession spec.md §9 calls out: a dereferenced
// document should not fail to parse over cosmetic issues a strict
// parser would reject outright.
//
// etree has no built-in recovery mode (unlike the libxml2 backend the
// original implementation used), so the fallback here trims the buffer
// at the last '>' byte and retries once before giving up.
func ParseLenient(buf []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(buf); err == nil {
		return doc, nil
	}

	if idx := lastIndexByte(buf, '>'); idx >= 0 && idx+1 < len(buf) {
		trimmed := buf[:idx+1]
		doc = etree.NewDocument()
		if err := doc.ReadFromBytes(trimmed); err == nil {
			return doc, nil
		}
	}

	return nil, fmt.Errorf("xmltree: failed to parse retrieval result, even leniently")
}

func lastIndexByte(b []byte, c byte) int {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] == c {
			return i
		}
	}
	return -1
}

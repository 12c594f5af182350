// Package datatype describes the wire format of a message: its type name, the
// encoding family it belongs to and the schema bytes needed to decode it.
package datatype

import (
	"bytes"
	"fmt"
)

// Well-known encodings.
const (
	EncodingBase  = "base"
	EncodingProto = "proto"
)

// Wildcard is used as name and descriptor by codecs that accept any type of
// their encoding.
const Wildcard = "*"

// Descriptor identifies a schema. For EncodingProto the Descriptor bytes hold a
// serialized FileDescriptorSet that contains the named message and all of its
// transitive imports, dependency-first.
type Descriptor struct {
	Name       string
	Encoding   string
	Descriptor []byte
}

// Key is the comparable form of a Descriptor.
type Key struct {
	Name       string
	Encoding   string
	Descriptor string
}

// New builds a Descriptor. The schema bytes are copied.
func New(name, encoding string, schema []byte) Descriptor {
	return Descriptor{Name: name, Encoding: encoding, Descriptor: bytes.Clone(schema)}
}

// Equal reports whether both descriptors carry the same name, encoding and
// schema bytes. A nil and an empty schema compare equal.
func (d Descriptor) Equal(other Descriptor) bool {
	return d.Name == other.Name &&
		d.Encoding == other.Encoding &&
		bytes.Equal(d.Descriptor, other.Descriptor)
}

// Key returns a value that can be used as a map key.
func (d Descriptor) Key() Key {
	return Key{Name: d.Name, Encoding: d.Encoding, Descriptor: string(d.Descriptor)}
}

// Unpack converts the key back.
func (k Key) Unpack() Descriptor {
	return Descriptor{Name: k.Name, Encoding: k.Encoding, Descriptor: []byte(k.Descriptor)}
}

// IsZero reports whether no field is set.
func (d Descriptor) IsZero() bool {
	return d.Name == "" && d.Encoding == "" && len(d.Descriptor) == 0
}

// Clone returns a deep copy.
func (d Descriptor) Clone() Descriptor {
	return New(d.Name, d.Encoding, d.Descriptor)
}

// String prints the descriptor without the schema bytes, which are usually
// binary and large.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%s (%d schema bytes)", d.Encoding, d.Name, len(d.Descriptor))
}

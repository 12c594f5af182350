package codec

import (
	"bytes"
	"errors"
	"unicode/utf8"

	"github.com/drblury/protomeas/internal/runtime/datatype"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
)

var errInvalidUTF8 = errors.New("payload is not valid UTF-8")

// String encodes Go strings as their raw UTF-8 bytes.
type String struct{}

// NewString returns the string codec.
func NewString() String { return String{} }

func (String) Kind() Kind { return KindString }

func (String) DataTypeInformation() datatype.Descriptor {
	return datatype.Descriptor{Name: "std::string", Encoding: datatype.EncodingBase}
}

func (String) Serialize(msg string) ([]byte, error) {
	return []byte(msg), nil
}

func (c String) Deserialize(payload []byte, _ datatype.Descriptor) (string, error) {
	if !utf8.Valid(payload) {
		return "", errspkg.NewSerializationError(c.DataTypeInformation(), errInvalidUTF8)
	}
	return string(payload), nil
}

func (c String) AcceptsDataWithType(dt datatype.Descriptor) bool {
	return c.DataTypeInformation().Equal(dt)
}

func (String) sealed() {}

// Binary passes payload bytes through untouched.
type Binary struct{}

// NewBinary returns the binary codec.
func NewBinary() Binary { return Binary{} }

func (Binary) Kind() Kind { return KindBinary }

func (Binary) DataTypeInformation() datatype.Descriptor {
	return datatype.Descriptor{Name: "binary", Encoding: datatype.EncodingBase}
}

func (Binary) Serialize(msg []byte) ([]byte, error) {
	return msg, nil
}

// Deserialize copies the payload; transports may reuse their buffers.
func (Binary) Deserialize(payload []byte, _ datatype.Descriptor) ([]byte, error) {
	return bytes.Clone(payload), nil
}

func (c Binary) AcceptsDataWithType(dt datatype.Descriptor) bool {
	return c.DataTypeInformation().Equal(dt)
}

func (Binary) sealed() {}

var (
	_ Codec[string] = String{}
	_ Codec[[]byte] = Binary{}
)

// Package codec serializes and deserializes payloads for one wire encoding.
//
// The set of codecs is closed: String, Binary, Protobuf[T], DynamicProtobuf and
// DynamicJSON. Every codec reports the descriptor it advertises and decides
// which advertised descriptors it can decode.
package codec

import "github.com/drblury/protomeas/internal/runtime/datatype"

// Kind identifies a codec variant.
type Kind int

const (
	KindString Kind = iota + 1
	KindBinary
	KindProtobuf
	KindDynamicProtobuf
	KindDynamicJSON
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindProtobuf:
		return "protobuf"
	case KindDynamicProtobuf:
		return "dynamic-protobuf"
	case KindDynamicJSON:
		return "dynamic-json"
	default:
		return "unknown"
	}
}

// Serializer turns a typed message into payload bytes.
type Serializer[T any] interface {
	Kind() Kind
	// DataTypeInformation is deterministic for a given codec instance.
	DataTypeInformation() datatype.Descriptor
	Serialize(msg T) ([]byte, error)
	sealed()
}

// Deserializer turns payload bytes back into a typed message. The advertised
// descriptor is the one the producer sent along with the bytes.
type Deserializer[T any] interface {
	Kind() Kind
	DataTypeInformation() datatype.Descriptor
	Deserialize(payload []byte, advertised datatype.Descriptor) (T, error)
	// AcceptsDataWithType reports whether data advertised as dt can be decoded.
	AcceptsDataWithType(dt datatype.Descriptor) bool
	sealed()
}

// Codec pairs both directions.
type Codec[T any] interface {
	Serializer[T]
	Deserializer[T]
}

// MessageTyper is implemented by serializers whose descriptor depends on the
// message being sent.
type MessageTyper[T any] interface {
	DataTypeInformationFor(msg T) (datatype.Descriptor, error)
}

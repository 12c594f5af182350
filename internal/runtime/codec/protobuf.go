package codec

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"

	"github.com/drblury/protomeas/internal/runtime/datatype"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
)

// Protobuf encodes a compile-time known protobuf message type.
type Protobuf[T proto.Message] struct {
	prototype T
	dataType  datatype.Descriptor
}

// NewProtobuf builds the codec for T, which must be a pointer to a generated
// message struct.
func NewProtobuf[T proto.Message]() (*Protobuf[T], error) {
	var zero T
	prototype, err := newPrototype(zero)
	if err != nil {
		return nil, err
	}

	dt, err := DataTypeOf(prototype.ProtoReflect().Descriptor())
	if err != nil {
		return nil, err
	}
	return &Protobuf[T]{prototype: prototype, dataType: dt}, nil
}

// MustProtobuf is NewProtobuf that panics on error.
func MustProtobuf[T proto.Message]() *Protobuf[T] {
	c, err := NewProtobuf[T]()
	if err != nil {
		panic(err)
	}
	return c
}

func (*Protobuf[T]) Kind() Kind { return KindProtobuf }

func (c *Protobuf[T]) DataTypeInformation() datatype.Descriptor {
	return c.dataType.Clone()
}

func (c *Protobuf[T]) Serialize(msg T) ([]byte, error) {
	if isNilMessage(msg) {
		return nil, errspkg.ErrNilMessage
	}
	payload, err := deterministic.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", c.dataType.Name, err)
	}
	return payload, nil
}

func (c *Protobuf[T]) Deserialize(payload []byte, _ datatype.Descriptor) (T, error) {
	msg, ok := c.prototype.ProtoReflect().New().Interface().(T)
	if !ok {
		var zero T
		return zero, errspkg.NewSerializationError(c.dataType, fmt.Errorf("unexpected message type %T", msg))
	}
	if err := proto.Unmarshal(payload, msg); err != nil {
		var zero T
		return zero, errspkg.NewSerializationError(c.dataType, err)
	}
	return msg, nil
}

// AcceptsDataWithType requires the exact descriptor, schema bytes included, so
// producers built from another revision of the schema are rejected.
func (c *Protobuf[T]) AcceptsDataWithType(dt datatype.Descriptor) bool {
	return c.dataType.Equal(dt)
}

func (*Protobuf[T]) sealed() {}

func newPrototype[T proto.Message](candidate T) (T, error) {
	if !isNilMessage(candidate) {
		return candidate, nil
	}

	var zero T
	typ := reflect.TypeOf(candidate)
	if typ == nil {
		return zero, errspkg.ErrNilMessage
	}
	if typ.Kind() != reflect.Ptr {
		return zero, fmt.Errorf("protomeas: message type %s must be a pointer", typ)
	}

	typed, ok := reflect.New(typ.Elem()).Interface().(T)
	if !ok {
		return zero, fmt.Errorf("protomeas: unexpected prototype type %s", typ)
	}
	return typed, nil
}

func isNilMessage[T proto.Message](msg T) bool {
	m := proto.Message(msg)
	if m == nil {
		return true
	}
	val := reflect.ValueOf(m)
	switch val.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

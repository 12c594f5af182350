package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/drblury/protomeas/internal/runtime/datatype"
	"github.com/drblury/protomeas/internal/runtime/dynamic"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
)

var wildcardProto = datatype.Descriptor{
	Name:       datatype.Wildcard,
	Encoding:   datatype.EncodingProto,
	Descriptor: []byte(datatype.Wildcard),
}

// DynamicProtobuf decodes any protobuf payload using the schema advertised
// alongside it. Decoded messages are dynamicpb messages.
type DynamicProtobuf struct {
	resolver *dynamic.Resolver
}

// NewDynamicProtobuf creates the codec together with its own type cache.
func NewDynamicProtobuf(opts ...dynamic.Option) *DynamicProtobuf {
	return &DynamicProtobuf{resolver: dynamic.New(opts...)}
}

func (*DynamicProtobuf) Kind() Kind { return KindDynamicProtobuf }

func (*DynamicProtobuf) DataTypeInformation() datatype.Descriptor {
	return wildcardProto.Clone()
}

// DataTypeInformationFor returns the concrete descriptor for msg, which is
// what a publisher advertises when it sends through this codec.
func (*DynamicProtobuf) DataTypeInformationFor(msg proto.Message) (datatype.Descriptor, error) {
	if msg == nil {
		return datatype.Descriptor{}, errspkg.ErrNilMessage
	}
	return DataTypeOf(msg.ProtoReflect().Descriptor())
}

func (*DynamicProtobuf) Serialize(msg proto.Message) ([]byte, error) {
	if msg == nil || !msg.ProtoReflect().IsValid() {
		return nil, errspkg.ErrNilMessage
	}
	return deterministic.Marshal(msg)
}

func (c *DynamicProtobuf) Deserialize(payload []byte, advertised datatype.Descriptor) (proto.Message, error) {
	msg, err := decodeDynamic(c.resolver, payload, advertised)
	if err != nil {
		return nil, err
	}
	return msg.Interface(), nil
}

// AcceptsDataWithType accepts every protobuf descriptor; whether the schema
// is usable is only known once a payload is decoded.
func (*DynamicProtobuf) AcceptsDataWithType(dt datatype.Descriptor) bool {
	return dt.Encoding == datatype.EncodingProto
}

// Resolver exposes the codec's type cache.
func (c *DynamicProtobuf) Resolver() *dynamic.Resolver { return c.resolver }

func (*DynamicProtobuf) sealed() {}

// DynamicJSON decodes any protobuf payload into its canonical JSON form.
type DynamicJSON struct {
	resolver *dynamic.Resolver
	opts     protojson.MarshalOptions
}

func NewDynamicJSON(opts ...dynamic.Option) *DynamicJSON {
	return &DynamicJSON{
		resolver: dynamic.New(opts...),
		opts:     protojson.MarshalOptions{EmitUnpopulated: true},
	}
}

func (*DynamicJSON) Kind() Kind { return KindDynamicJSON }

func (*DynamicJSON) DataTypeInformation() datatype.Descriptor {
	return wildcardProto.Clone()
}

func (c *DynamicJSON) Deserialize(payload []byte, advertised datatype.Descriptor) (string, error) {
	msg, err := decodeDynamic(c.resolver, payload, advertised)
	if err != nil {
		return "", err
	}
	out, err := c.opts.Marshal(msg.Interface())
	if err != nil {
		return "", errspkg.NewSerializationError(advertised, fmt.Errorf("render json: %w", err))
	}
	return string(out), nil
}

func (*DynamicJSON) AcceptsDataWithType(dt datatype.Descriptor) bool {
	return dt.Encoding == datatype.EncodingProto
}

func (c *DynamicJSON) Resolver() *dynamic.Resolver { return c.resolver }

func (*DynamicJSON) sealed() {}

func decodeDynamic(r *dynamic.Resolver, payload []byte, advertised datatype.Descriptor) (protoreflect.Message, error) {
	mt, err := r.Resolve(advertised)
	if err != nil {
		return nil, errspkg.NewSerializationError(advertised, err)
	}
	msg := mt.New()
	if err := proto.Unmarshal(payload, msg.Interface()); err != nil {
		return nil, errspkg.NewSerializationError(advertised, err)
	}
	return msg, nil
}

var (
	_ Codec[proto.Message]        = (*DynamicProtobuf)(nil)
	_ MessageTyper[proto.Message] = (*DynamicProtobuf)(nil)
	_ Deserializer[string]        = (*DynamicJSON)(nil)
)

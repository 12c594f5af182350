// Package prototest builds protobuf schemas at runtime for tests that need
// types no generated package provides, such as two revisions of one message.
package prototest

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ImuName is the full name of the message built by ImuFile.
const ImuName = "pkg.Imu"

// ImuFile describes
//
//	package pkg;
//	message Imu { double ax = 1; double ay = 2; double az = 3; string frame = 4; }
//
// The frame field is only present when withFrame is set, which yields a second
// schema revision under the same message name.
func ImuFile(withFrame bool) *descriptorpb.FileDescriptorProto {
	fields := []*descriptorpb.FieldDescriptorProto{
		scalar("ax", 1, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
		scalar("ay", 2, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
		scalar("az", 3, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
	}
	if withFrame {
		fields = append(fields, scalar("frame", 4, descriptorpb.FieldDescriptorProto_TYPE_STRING))
	}
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("pkg/imu.proto"),
		Package: proto.String("pkg"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name:  proto.String("Imu"),
			Field: fields,
		}},
	}
}

// ImuType returns the message type of one Imu schema revision.
func ImuType(withFrame bool) protoreflect.MessageType {
	fd, err := protodesc.NewFile(ImuFile(withFrame), nil)
	if err != nil {
		panic(err)
	}
	return dynamicpb.NewMessageType(fd.Messages().ByName("Imu"))
}

// NewImu fills an Imu of type mt.
func NewImu(mt protoreflect.MessageType, ax, ay, az float64) proto.Message {
	msg := mt.New()
	fields := msg.Descriptor().Fields()
	msg.Set(fields.ByName("ax"), protoreflect.ValueOfFloat64(ax))
	msg.Set(fields.ByName("ay"), protoreflect.ValueOfFloat64(ay))
	msg.Set(fields.ByName("az"), protoreflect.ValueOfFloat64(az))
	return msg.Interface()
}

// Float reads a double field by name.
func Float(msg proto.Message, name string) float64 {
	m := msg.ProtoReflect()
	return m.Get(m.Descriptor().Fields().ByName(protoreflect.Name(name))).Float()
}

// DescriptorSet marshals the given files as a FileDescriptorSet.
func DescriptorSet(files ...*descriptorpb.FileDescriptorProto) []byte {
	raw, err := proto.MarshalOptions{Deterministic: true}.Marshal(&descriptorpb.FileDescriptorSet{File: files})
	if err != nil {
		panic(err)
	}
	return raw
}

func scalar(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     typ.Enum(),
		JsonName: proto.String(name),
	}
}

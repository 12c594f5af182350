package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/drblury/protomeas/internal/runtime/datatype"
)

var deterministic = proto.MarshalOptions{Deterministic: true}

// DescriptorSet collects the file declaring md together with every file it
// imports, transitively, ordered so that each file follows its dependencies.
func DescriptorSet(md protoreflect.MessageDescriptor) *descriptorpb.FileDescriptorSet {
	set := &descriptorpb.FileDescriptorSet{}
	seen := make(map[string]struct{})

	var visit func(fd protoreflect.FileDescriptor)
	visit = func(fd protoreflect.FileDescriptor) {
		if fd == nil || fd.IsPlaceholder() {
			return
		}
		if _, ok := seen[fd.Path()]; ok {
			return
		}
		seen[fd.Path()] = struct{}{}

		imports := fd.Imports()
		for i := 0; i < imports.Len(); i++ {
			visit(imports.Get(i).FileDescriptor)
		}
		set.File = append(set.File, protodesc.ToFileDescriptorProto(fd))
	}
	visit(md.ParentFile())

	return set
}

// DataTypeOf builds the proto descriptor advertised for messages of type md.
func DataTypeOf(md protoreflect.MessageDescriptor) (datatype.Descriptor, error) {
	schema, err := deterministic.Marshal(DescriptorSet(md))
	if err != nil {
		return datatype.Descriptor{}, fmt.Errorf("marshal descriptor set for %s: %w", md.FullName(), err)
	}
	return datatype.Descriptor{
		Name:       string(md.FullName()),
		Encoding:   datatype.EncodingProto,
		Descriptor: schema,
	}, nil
}

package dynamic

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/drblury/protomeas/internal/runtime/config"
	"github.com/drblury/protomeas/internal/runtime/datatype"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
	"github.com/drblury/protomeas/internal/runtime/metrics"
	"github.com/drblury/protomeas/internal/runtime/prototest"
)

func imuDescriptor(withFrame bool) datatype.Descriptor {
	return datatype.Descriptor{
		Name:       prototest.ImuName,
		Encoding:   datatype.EncodingProto,
		Descriptor: prototest.DescriptorSet(prototest.ImuFile(withFrame)),
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestResolve_Deterministic(t *testing.T) {
	r := New()

	first, err := r.Resolve(imuDescriptor(false))
	require.NoError(t, err)
	second, err := r.Resolve(imuDescriptor(false))
	require.NoError(t, err)

	assert.True(t, first.Descriptor() == second.Descriptor(), "expected the cached type to be reused")
	assert.Equal(t, protoreflect.FullName(prototest.ImuName), first.Descriptor().FullName())
	assert.Equal(t, 1, r.Len())

	// A separate resolver builds its own type; messages from both encode alike.
	other, err := New().Resolve(imuDescriptor(false))
	require.NoError(t, err)
	assert.False(t, first.Descriptor() == other.Descriptor())

	deterministic := proto.MarshalOptions{Deterministic: true}
	want, err := deterministic.Marshal(prototest.NewImu(first, 1.5, -2, 9.81))
	require.NoError(t, err)
	for _, mt := range []protoreflect.MessageType{second, other} {
		got, err := deterministic.Marshal(prototest.NewImu(mt, 1.5, -2, 9.81))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestResolve_SameNameDifferentSchema(t *testing.T) {
	r := New()

	plain, err := r.Resolve(imuDescriptor(false))
	require.NoError(t, err)
	framed, err := r.Resolve(imuDescriptor(true))
	require.NoError(t, err)

	assert.False(t, plain.Descriptor() == framed.Descriptor(), "revisions must not share a cache entry")
	assert.Nil(t, plain.Descriptor().Fields().ByName("frame"))
	assert.NotNil(t, framed.Descriptor().Fields().ByName("frame"))
	assert.Equal(t, 2, r.Len())

	// A message written with the newer schema still decodes with the older
	// one; the extra field lands in the unknown set.
	msg := prototest.NewImu(prototest.ImuType(true), 1, 2, 3)
	m := msg.ProtoReflect()
	m.Set(m.Descriptor().Fields().ByName("frame"), protoreflect.ValueOfString("base_link"))
	payload, err := proto.Marshal(msg)
	require.NoError(t, err)

	old := plain.New()
	require.NoError(t, proto.Unmarshal(payload, old.Interface()))
	assert.NotEmpty(t, old.GetUnknown())
}

func TestBuild_Errors(t *testing.T) {
	structSet := prototest.DescriptorSet(protodesc.ToFileDescriptorProto(structpb.File_google_protobuf_struct_proto))

	tests := []struct {
		name string
		dt   datatype.Descriptor
	}{
		{"base encoding", datatype.Descriptor{Name: "std::string", Encoding: datatype.EncodingBase}},
		{"empty name", datatype.Descriptor{Encoding: datatype.EncodingProto, Descriptor: structSet}},
		{"empty descriptor", datatype.Descriptor{Name: "google.protobuf.Struct", Encoding: datatype.EncodingProto}},
		{"malformed descriptor", datatype.Descriptor{Name: "google.protobuf.Struct", Encoding: datatype.EncodingProto, Descriptor: []byte{0xff, 0xff}}},
		{"missing import", datatype.Descriptor{Name: prototest.ImuName, Encoding: datatype.EncodingProto, Descriptor: prototest.DescriptorSet(withImport(prototest.ImuFile(false)))}},
		{"unknown name", datatype.Descriptor{Name: "google.protobuf.Missing", Encoding: datatype.EncodingProto, Descriptor: structSet}},
		{"enum name", datatype.Descriptor{Name: "google.protobuf.NullValue", Encoding: datatype.EncodingProto, Descriptor: structSet}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt, err := Build(tt.dt)
			assert.Nil(t, mt)
			var uerr *errspkg.UnsupportedDatatypeError
			require.ErrorAs(t, err, &uerr)
			assert.Equal(t, tt.dt.Name, uerr.TypeName)
		})
	}
}

func TestBuild_Struct(t *testing.T) {
	structSet := prototest.DescriptorSet(protodesc.ToFileDescriptorProto(structpb.File_google_protobuf_struct_proto))
	mt, err := Build(datatype.Descriptor{Name: "google.protobuf.Struct", Encoding: datatype.EncodingProto, Descriptor: structSet})
	require.NoError(t, err)

	// The runtime type is distinct from the generated one.
	generated := (&structpb.Struct{}).ProtoReflect().Descriptor()
	assert.False(t, generated == mt.Descriptor())
	assert.Equal(t, protoreflect.FullName("google.protobuf.Struct"), mt.Descriptor().FullName())
}

func TestResolve_FailuresAreNotCached(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDynamic(reg, "")
	require.NoError(t, m.Register())
	r := New(WithMetrics(m))

	bad := datatype.Descriptor{Name: "pkg.Gps", Encoding: datatype.EncodingProto, Descriptor: imuDescriptor(false).Descriptor}
	_, err := r.Resolve(bad)
	require.Error(t, err)
	_, err = r.Resolve(bad)
	require.Error(t, err)

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 2.0, counterValue(t, reg, "protomeas_dynamic_resolve_failures_total"))
}

func TestResolve_EvictsLeastRecentlyUsed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDynamic(reg, "")
	require.NoError(t, m.Register())
	r := New(WithCacheSize(1), WithMetrics(m))

	_, err := r.Resolve(imuDescriptor(false))
	require.NoError(t, err)
	_, err = r.Resolve(imuDescriptor(true))
	require.NoError(t, err)
	_, err = r.Resolve(imuDescriptor(true))
	require.NoError(t, err)

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1.0, counterValue(t, reg, "protomeas_dynamic_cache_evictions_total"))
	assert.Equal(t, 2.0, counterValue(t, reg, "protomeas_dynamic_cache_misses_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "protomeas_dynamic_cache_hits_total"))
}

func TestResolve_Concurrent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDynamic(reg, "")
	require.NoError(t, m.Register())
	r := New(WithMetrics(m))

	const workers = 32
	results := make([]protoreflect.MessageType, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mt, err := r.Resolve(imuDescriptor(false))
			assert.NoError(t, err)
			results[i] = mt
		}()
	}
	wg.Wait()

	for _, mt := range results {
		assert.True(t, results[0].Descriptor() == mt.Descriptor())
	}
	assert.Equal(t, 1.0, counterValue(t, reg, "protomeas_dynamic_cache_misses_total"))
}

func TestWithConfig(t *testing.T) {
	tests := []struct {
		name string
		conf *config.Config
		want int
	}{
		{"nil config", nil, DefaultCacheSize},
		{"unset size", &config.Config{}, config.DefaultDynamicCacheSize},
		{"configured size", &config.Config{DynamicCacheSize: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(WithConfig(tt.conf)).Cap())
		})
	}

	r := New(WithConfig(&config.Config{DynamicCacheSize: 1}))
	_, err := r.Resolve(imuDescriptor(false))
	require.NoError(t, err)
	_, err = r.Resolve(imuDescriptor(true))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
}

func TestFlightKeyIsUnambiguous(t *testing.T) {
	a := datatype.Key{Name: "ab", Encoding: "c"}
	b := datatype.Key{Name: "a", Encoding: "bc"}
	assert.NotEqual(t, flightKey(a), flightKey(b))
}

func withImport(fd *descriptorpb.FileDescriptorProto) *descriptorpb.FileDescriptorProto {
	fd.Dependency = append(fd.Dependency, "pkg/header.proto")
	return fd
}

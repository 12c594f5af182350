package protomeas

import (
	"context"

	"google.golang.org/protobuf/proto"

	codecpkg "github.com/drblury/protomeas/internal/runtime/codec"
	configpkg "github.com/drblury/protomeas/internal/runtime/config"
	datatypepkg "github.com/drblury/protomeas/internal/runtime/datatype"
	dynamicpkg "github.com/drblury/protomeas/internal/runtime/dynamic"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
	idspkg "github.com/drblury/protomeas/internal/runtime/ids"
	jsoncodec "github.com/drblury/protomeas/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/protomeas/internal/runtime/logging"
	measurementpkg "github.com/drblury/protomeas/internal/runtime/measurement"
	metricspkg "github.com/drblury/protomeas/internal/runtime/metrics"
	pubsubpkg "github.com/drblury/protomeas/internal/runtime/pubsub"
	storagepkg "github.com/drblury/protomeas/internal/runtime/storage"
	transportpkg "github.com/drblury/protomeas/internal/runtime/transport"
	newtransport "github.com/drblury/protomeas/transport"
)

type (
	Config = configpkg.Config

	DataTypeDescriptor = datatypepkg.Descriptor

	CodecKind                      = codecpkg.Kind
	Serializer[T any]              = codecpkg.Serializer[T]
	Deserializer[T any]            = codecpkg.Deserializer[T]
	Codec[T any]                   = codecpkg.Codec[T]
	StringCodec                    = codecpkg.String
	BinaryCodec                    = codecpkg.Binary
	ProtobufCodec[T proto.Message] = codecpkg.Protobuf[T]
	DynamicProtobufCodec           = codecpkg.DynamicProtobuf
	DynamicJSONCodec               = codecpkg.DynamicJSON
	DynamicResolver                = dynamicpkg.Resolver
	DynamicOption                  = dynamicpkg.Option

	Transport          = transportpkg.Transport
	Publication        = transportpkg.Publication
	Subscription       = transportpkg.Subscription
	ReceiveInfo        = transportpkg.ReceiveInfo
	TransportOption    = transportpkg.Option
	WatermillTransport = transportpkg.Watermill

	Publisher[T any]      = pubsubpkg.Publisher[T]
	Subscriber[T any]     = pubsubpkg.Subscriber[T]
	ReceivedRecord[T any] = pubsubpkg.ReceivedRecord[T]
	DataCallback[T any]   = pubsubpkg.DataCallback[T]
	ErrorCallback         = pubsubpkg.ErrorCallback
	PubSubOption          = pubsubpkg.Option

	Measurement            = measurementpkg.Measurement
	MeasurementWriter      = measurementpkg.Writer
	MeasurementOption      = measurementpkg.Option
	Channel[T any]         = measurementpkg.Channel[T]
	Frame[T any]           = measurementpkg.Frame[T]
	ChannelIterator[T any] = measurementpkg.Iterator[T]
	Recorder               = measurementpkg.Recorder
	RecordErrorCallback    = measurementpkg.RecordErrorCallback
	EntryInfo              = storagepkg.EntryInfo
	EntryID                = storagepkg.EntryID
	StorageEngine          = storagepkg.Engine

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	PubSubMetrics      = metricspkg.PubSub
	DynamicMetrics     = metricspkg.Dynamic
	MeasurementMetrics = metricspkg.Measurement

	SerializationError       = errspkg.SerializationError
	UnsupportedDatatypeError = errspkg.UnsupportedDatatypeError
	NotFoundError            = errspkg.NotFoundError
	IOError                  = errspkg.IOError
	ChannelTypeConflictError = errspkg.ChannelTypeConflictError
	ConfigValidationError    = errspkg.ConfigValidationError

	// Modular transport types
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

// Codec kinds.
const (
	KindString          = codecpkg.KindString
	KindBinary          = codecpkg.KindBinary
	KindProtobuf        = codecpkg.KindProtobuf
	KindDynamicProtobuf = codecpkg.KindDynamicProtobuf
	KindDynamicJSON     = codecpkg.KindDynamicJSON
)

// Well-known encodings.
const (
	EncodingBase  = datatypepkg.EncodingBase
	EncodingProto = datatypepkg.EncodingProto
)

var (
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	NewDataTypeDescriptor = datatypepkg.New

	NewStringCodec          = codecpkg.NewString
	NewBinaryCodec          = codecpkg.NewBinary
	NewDynamicProtobufCodec = codecpkg.NewDynamicProtobuf
	NewDynamicJSONCodec     = codecpkg.NewDynamicJSON
	DataTypeOf              = codecpkg.DataTypeOf
	NewDynamicResolver      = dynamicpkg.New
	WithDynamicCacheSize    = dynamicpkg.WithCacheSize
	WithDynamicConfig       = dynamicpkg.WithConfig
	WithDynamicLogger       = dynamicpkg.WithLogger
	WithDynamicMetrics      = dynamicpkg.WithMetrics

	NewInProcessTransport = transportpkg.NewInProcess
	NewWatermillTransport = transportpkg.NewWatermill
	WithTransportLogger   = transportpkg.WithLogger
	WithTransportMetrics  = transportpkg.WithMetrics
	WithProducerCacheSize = transportpkg.WithProducerCacheSize
	WithBackendMetrics    = transportpkg.WithBackendMetrics

	WithLogger         = pubsubpkg.WithLogger
	WithMetrics        = pubsubpkg.WithMetrics
	WithTracerProvider = pubsubpkg.WithTracerProvider

	OpenMeasurement             = measurementpkg.Open
	CreateMeasurement           = measurementpkg.Create
	CreateMeasurementFromConfig = measurementpkg.CreateFromConfig
	NewRecorder                 = measurementpkg.NewRecorder
	BinaryChannel               = measurementpkg.BinaryChannel
	WithMeasurementLogger       = measurementpkg.WithLogger
	WithMeasurementMetrics      = measurementpkg.WithMetrics
	WithMeasurementEngine       = measurementpkg.WithEngine
	WithFileBaseName            = measurementpkg.WithFileBaseName
	WithMaxSizePerFile          = measurementpkg.WithMaxSizePerFile
	WithMeasurementConfig       = measurementpkg.WithConfig

	NewPubSubMetrics      = metricspkg.NewPubSub
	NewDynamicMetrics     = metricspkg.NewDynamic
	NewMeasurementMetrics = metricspkg.NewMeasurement

	// Modular transport registry. Import transport/transports to register
	// every bundled backend, or individual packages such as transport/kafka.
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	GetCapabilities          = newtransport.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrTopicRequired       = errspkg.ErrTopicRequired
	ErrCodecRequired       = errspkg.ErrCodecRequired
	ErrTransportRequired   = errspkg.ErrTransportRequired
	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrNilMessage          = errspkg.ErrNilMessage
	ErrClosed              = errspkg.ErrClosed
	ErrChannelNameRequired = errspkg.ErrChannelNameRequired
	ErrWriterRequired      = errspkg.ErrWriterRequired
	ErrReadOnly            = errspkg.ErrReadOnly
	ErrIndexOutOfRange     = errspkg.ErrIndexOutOfRange
	ErrEntryNotFound       = errspkg.ErrEntryNotFound
	ErrMessageTooLarge     = errspkg.ErrMessageTooLarge

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopLogger              = loggingpkg.NewNopLogger

	CreateULID = idspkg.CreateULID
)

// NewTransport builds the transport selected by conf.PubSubSystem. An empty
// selection yields the in-process transport.
func NewTransport(ctx context.Context, conf *Config, opts ...TransportOption) (*WatermillTransport, error) {
	return transportpkg.New(ctx, conf, opts...)
}

func NewProtobufCodec[T proto.Message]() (*ProtobufCodec[T], error) {
	return codecpkg.NewProtobuf[T]()
}

func MustProtobufCodec[T proto.Message]() *ProtobufCodec[T] {
	return codecpkg.MustProtobuf[T]()
}

func NewPublisher[T any](tr Transport, topic string, s Serializer[T], opts ...PubSubOption) (*Publisher[T], error) {
	return pubsubpkg.NewPublisher(tr, topic, s, opts...)
}

func NewSubscriber[T any](ctx context.Context, tr Transport, topic string, d Deserializer[T], opts ...PubSubOption) (*Subscriber[T], error) {
	return pubsubpkg.NewSubscriber(ctx, tr, topic, d, opts...)
}

// OpenChannel opens a typed view of one measurement channel.
func OpenChannel[T any](m *Measurement, name string, d Deserializer[T]) (*Channel[T], error) {
	return measurementpkg.OpenChannel(m, name, d)
}

// WriteEntry serializes msg and appends it to a measurement channel.
func WriteEntry[T any](w *MeasurementWriter, name string, s Serializer[T], msg T, sndTimestamp, rcvTimestamp int64, counter int32) error {
	return measurementpkg.Write(w, name, s, msg, sndTimestamp, rcvTimestamp, counter)
}

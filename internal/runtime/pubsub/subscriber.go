package pubsub

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/protomeas/internal/runtime/codec"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
	"github.com/drblury/protomeas/internal/runtime/logging"
	"github.com/drblury/protomeas/internal/runtime/transport"
)

// ReceivedRecord is one successfully decoded message.
type ReceivedRecord[T any] struct {
	Message       T
	SendTimestamp int64
	SendClock     int64
	ProducerID    string
	Topic         string
}

// DataCallback receives decoded messages.
type DataCallback[T any] func(rec ReceivedRecord[T])

// ErrorCallback receives payloads that could not be decoded, together with
// what their producer advertised. err is a *errors.SerializationError.
type ErrorCallback func(err error, info transport.ReceiveInfo)

// Subscriber receives messages of type T from one topic.
type Subscriber[T any] struct {
	topic        string
	deserializer codec.Deserializer[T]
	sub          transport.Subscription
	opts         options
	tracer       trace.Tracer

	mu      sync.RWMutex
	onData  DataCallback[T]
	onError ErrorCallback
}

// NewSubscriber subscribes to topic. Producers whose advertised type the
// deserializer does not accept are never delivered. T follows from the
// deserializer.
func NewSubscriber[T any](ctx context.Context, tr transport.Transport, topic string, d codec.Deserializer[T], opts ...Option) (*Subscriber[T], error) {
	if tr == nil {
		return nil, errspkg.ErrTransportRequired
	}
	if d == nil {
		return nil, errspkg.ErrCodecRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}

	o := newOptions("subscriber", opts)
	o.log = o.log.With(logging.LogFields{"topic": topic})
	s := &Subscriber[T]{
		topic:        topic,
		deserializer: d,
		opts:         o,
		tracer:       o.tracer(),
	}
	sub, err := tr.Subscribe(ctx, topic, d.DataTypeInformation(), d.AcceptsDataWithType, s.receive)
	if err != nil {
		return nil, err
	}
	s.sub = sub

	o.log.Info("Subscriber created", logging.LogFields{"codec": d.Kind().String()})
	return s, nil
}

// SetCallback installs the data callback, replacing any previous one.
func (s *Subscriber[T]) SetCallback(cb DataCallback[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = cb
}

func (s *Subscriber[T]) RemoveCallback() { s.SetCallback(nil) }

// SetErrorCallback installs the error callback, replacing any previous one.
func (s *Subscriber[T]) SetErrorCallback(cb ErrorCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = cb
}

func (s *Subscriber[T]) RemoveErrorCallback() { s.SetErrorCallback(nil) }

// Topic returns the subscribed topic.
func (s *Subscriber[T]) Topic() string { return s.topic }

// Close ends the subscription. It waits for an in-flight callback, so it
// must not be called from inside one.
func (s *Subscriber[T]) Close() error {
	s.opts.log.Debug("Subscriber closed", nil)
	return s.sub.Close()
}

func (s *Subscriber[T]) callbacks() (DataCallback[T], ErrorCallback) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onData, s.onError
}

func (s *Subscriber[T]) receive(info transport.ReceiveInfo) {
	_, span := s.tracer.Start(context.Background(), "protomeas.Deliver",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(spanAttributes(s.topic, info.DataType)...),
		trace.WithAttributes(
			attribute.String("protomeas.producer_id", info.ProducerID),
			attribute.Int64("protomeas.send_clock", info.SendClock),
		),
	)
	defer span.End()

	onData, onError := s.callbacks()

	msg, err := s.deserializer.Deserialize(info.Payload, info.DataType)
	if err != nil {
		s.opts.metrics.RecordDeserializeError(s.topic)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.opts.log.Error("Failed to deserialize payload", err, logging.LogFields{
			"producer": info.ProducerID,
			"type":     info.DataType.Name,
		})
		if onError != nil {
			onError(err, info)
		}
		return
	}

	if onData == nil {
		return
	}
	onData(ReceivedRecord[T]{
		Message:       msg,
		SendTimestamp: info.SendTimestamp,
		SendClock:     info.SendClock,
		ProducerID:    info.ProducerID,
		Topic:         s.topic,
	})
	s.opts.metrics.RecordDelivered(s.topic)
}

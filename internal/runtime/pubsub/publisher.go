package pubsub

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/protomeas/internal/runtime/codec"
	"github.com/drblury/protomeas/internal/runtime/datatype"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
	"github.com/drblury/protomeas/internal/runtime/logging"
	"github.com/drblury/protomeas/internal/runtime/transport"
)

// Publisher sends messages of type T on one topic.
type Publisher[T any] struct {
	topic      string
	serializer codec.Serializer[T]
	typer      codec.MessageTyper[T]
	pub        transport.Publication
	opts       options
	tracer     trace.Tracer
}

// NewPublisher advertises topic with the serializer's data type. T follows
// from the serializer.
func NewPublisher[T any](tr transport.Transport, topic string, s codec.Serializer[T], opts ...Option) (*Publisher[T], error) {
	if tr == nil {
		return nil, errspkg.ErrTransportRequired
	}
	if s == nil {
		return nil, errspkg.ErrCodecRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}

	pub, err := tr.Advertise(topic, s.DataTypeInformation())
	if err != nil {
		return nil, err
	}

	o := newOptions("publisher", opts)
	o.log = o.log.With(logging.LogFields{"topic": topic, "producer": pub.ProducerID()})
	p := &Publisher[T]{
		topic:      topic,
		serializer: s,
		pub:        pub,
		opts:       o,
		tracer:     o.tracer(),
	}
	p.typer, _ = any(s).(codec.MessageTyper[T])

	o.log.Info("Publisher created", logging.LogFields{"codec": s.Kind().String()})
	return p, nil
}

// Send serializes msg and publishes it. A negative timestamp means now, in
// microseconds. It returns false without error when the transport knows
// nobody is subscribed.
func (p *Publisher[T]) Send(ctx context.Context, msg T, timestamp int64) (bool, error) {
	dt := p.pub.DataType()
	if p.typer != nil {
		var err error
		if dt, err = p.typer.DataTypeInformationFor(msg); err != nil {
			p.opts.metrics.RecordSendFailure(p.topic)
			return false, err
		}
	}

	ctx, span := p.tracer.Start(ctx, "protomeas.Send",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(spanAttributes(p.topic, dt)...),
	)
	defer span.End()

	payload, err := p.serializer.Serialize(msg)
	if err != nil {
		p.fail(span, err)
		return false, err
	}
	span.SetAttributes(attribute.Int("messaging.message.body.size", len(payload)))

	var ok bool
	if p.typer != nil {
		ok, err = p.pub.SendAs(ctx, dt, payload, timestamp)
	} else {
		ok, err = p.pub.Send(ctx, payload, timestamp)
	}
	if err != nil {
		p.fail(span, err)
		return false, err
	}
	if !ok {
		p.opts.metrics.RecordNoSubscribers(p.topic)
		span.SetAttributes(attribute.Bool("protomeas.delivered", false))
		return false, nil
	}

	p.opts.metrics.RecordSent(p.topic, len(payload))
	return true, nil
}

func (p *Publisher[T]) fail(span trace.Span, err error) {
	p.opts.metrics.RecordSendFailure(p.topic)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.opts.log.Error("Send failed", err, nil)
}

// Topic returns the advertised topic.
func (p *Publisher[T]) Topic() string { return p.topic }

// ProducerID returns the id subscribers see for this publisher.
func (p *Publisher[T]) ProducerID() string { return p.pub.ProducerID() }

// DataTypeInformation returns the advertised data type.
func (p *Publisher[T]) DataTypeInformation() datatype.Descriptor { return p.pub.DataType() }

// Close withdraws the publication.
func (p *Publisher[T]) Close() error {
	p.opts.log.Debug("Publisher closed", nil)
	return p.pub.Close()
}

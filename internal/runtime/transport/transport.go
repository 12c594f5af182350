// Package transport is the byte-oriented collaborator behind typed
// publishers and subscribers. A Transport advertises topics, carries
// payloads together with the producer's data type and hands them to one
// receive callback per subscription.
package transport

import (
	"context"

	"github.com/drblury/protomeas/internal/runtime/datatype"
)

// ReceiveInfo is everything a subscription learns about one payload.
type ReceiveInfo struct {
	ProducerID    string
	Topic         string
	DataType      datatype.Descriptor
	Payload       []byte
	SendTimestamp int64
	SendClock     int64
}

// ReceiveCallback is invoked on the subscription's delivery goroutine.
// Deliveries on one subscription are sequential.
type ReceiveCallback func(info ReceiveInfo)

// TypeFilter decides whether a producer's advertised type is acceptable.
// It is consulted once per producer, not per message.
type TypeFilter func(advertised datatype.Descriptor) bool

// Transport advertises publications and opens subscriptions on topics.
type Transport interface {
	Advertise(topic string, dt datatype.Descriptor) (Publication, error)
	// Subscribe starts delivery to cb, which is installed before the first
	// message can arrive. A nil cb discards messages until one is set. The
	// subscription ends when ctx is cancelled or Close is called.
	Subscribe(ctx context.Context, topic string, dt datatype.Descriptor, accept TypeFilter, cb ReceiveCallback) (Subscription, error)
	Close() error
}

// Publication sends payloads on one topic under one producer id.
type Publication interface {
	// Send publishes payload under the advertised type. A negative timestamp
	// means now, in microseconds since the epoch. The bool is false when the
	// transport knows nobody is listening.
	Send(ctx context.Context, payload []byte, timestamp int64) (bool, error)
	// SendAs publishes payload under dt instead of the advertised type. It
	// serves codecs whose concrete type is only known per message.
	SendAs(ctx context.Context, dt datatype.Descriptor, payload []byte, timestamp int64) (bool, error)
	DataType() datatype.Descriptor
	ProducerID() string
	Close() error
}

// Subscription delivers accepted payloads of one topic.
type Subscription interface {
	SetReceiveCallback(cb ReceiveCallback)
	RemoveReceiveCallback()
	Close() error
}

// AcceptAll admits every producer.
func AcceptAll(datatype.Descriptor) bool { return true }

package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/protomeas/internal/runtime/datatype"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
	"github.com/drblury/protomeas/internal/runtime/ids"
	"github.com/drblury/protomeas/internal/runtime/logging"
	"github.com/drblury/protomeas/internal/runtime/metadata"
	"github.com/drblury/protomeas/internal/runtime/metrics"
	bus "github.com/drblury/protomeas/transport"
)

// DefaultProducerCacheSize bounds how many producer verdicts a subscription
// remembers.
const DefaultProducerCacheSize = 1024

// Option configures a Watermill transport.
type Option func(*options)

type options struct {
	log               logging.ServiceLogger
	metrics           *metrics.PubSub
	producerCacheSize int

	backendRegisterer prometheus.Registerer
	backendNamespace  string
}

// WithLogger sets the logger used for lifecycle events and dropped messages.
func WithLogger(log logging.ServiceLogger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics records producer rejections.
func WithMetrics(m *metrics.PubSub) Option {
	return func(o *options) { o.metrics = m }
}

// WithBackendMetrics instruments the backend publisher and subscriber with
// Watermill's Prometheus decorators. The backend name is used as subsystem.
func WithBackendMetrics(reg prometheus.Registerer, namespace string) Option {
	return func(o *options) {
		o.backendRegisterer = reg
		o.backendNamespace = namespace
	}
}

// WithProducerCacheSize bounds the per-subscription producer verdict cache.
func WithProducerCacheSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.producerCacheSize = size
		}
	}
}

func newOptions(opts []Option) options {
	o := options{producerCacheSize: DefaultProducerCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = logging.Component(o.log, "transport")
	return o
}

// Watermill implements Transport on top of a Watermill publisher and
// subscriber pair. The data type and send metadata of each payload travel
// as message headers.
type Watermill struct {
	backend bus.Transport
	caps    bus.Capabilities
	opts    options

	mu          sync.Mutex
	closed      bool
	subscribers map[string]int
	open        map[*subscription]struct{}
}

// NewWatermill wraps backend. Capabilities decide whether Send can report a
// missing audience and how large a payload may be.
func NewWatermill(backend bus.Transport, caps bus.Capabilities, opts ...Option) *Watermill {
	o := newOptions(opts)
	o.log = o.log.With(logging.LogFields{"backend": caps.Name})
	return &Watermill{
		backend:     instrument(backend, caps, o),
		caps:        caps,
		opts:        o,
		subscribers: make(map[string]int),
		open:        make(map[*subscription]struct{}),
	}
}

// Capabilities reports what the backend supports.
func (w *Watermill) Capabilities() bus.Capabilities { return w.caps }

func (w *Watermill) Advertise(topic string, dt datatype.Descriptor) (Publication, error) {
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, errspkg.ErrClosed
	}

	p := &publication{
		transport:  w,
		topic:      topic,
		dt:         dt.Clone(),
		producerID: ids.NewProducerID(),
	}
	w.opts.log.Debug("Advertised topic", logging.LogFields{
		"topic":    topic,
		"type":     dt.Name,
		"producer": p.producerID,
	})
	return p, nil
}

func (w *Watermill) Subscribe(ctx context.Context, topic string, dt datatype.Descriptor, accept TypeFilter, cb ReceiveCallback) (Subscription, error) {
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if accept == nil {
		accept = AcceptAll
	}
	producers, err := lru.New[string, verdict](w.opts.producerCacheSize)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, errspkg.ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	messages, err := w.backend.Subscriber.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	s := &subscription{
		transport: w,
		topic:     topic,
		dt:        dt.Clone(),
		accept:    accept,
		producers: producers,
		log:       w.opts.log.With(logging.LogFields{"topic": topic}),
		callback:  cb,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	w.subscribers[topic]++
	w.open[s] = struct{}{}
	go s.run(subCtx, messages)

	s.log.Debug("Subscribed", logging.LogFields{"type": dt.Name})
	return s, nil
}

// Close ends every open subscription and closes the backend.
func (w *Watermill) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	subs := make([]*subscription, 0, len(w.open))
	for s := range w.open {
		subs = append(subs, s)
	}
	w.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	return w.backend.Close()
}

func (w *Watermill) hasSubscribers(topic string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.subscribers[topic] > 0
}

func (w *Watermill) release(s *subscription) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.open[s]; !ok {
		return
	}
	delete(w.open, s)
	if w.subscribers[s.topic]--; w.subscribers[s.topic] <= 0 {
		delete(w.subscribers, s.topic)
	}
}

type publication struct {
	transport  *Watermill
	topic      string
	dt         datatype.Descriptor
	producerID string
	clock      atomic.Int64
	closed     atomic.Bool
}

func (p *publication) DataType() datatype.Descriptor { return p.dt.Clone() }
func (p *publication) ProducerID() string            { return p.producerID }

func (p *publication) Send(ctx context.Context, payload []byte, timestamp int64) (bool, error) {
	return p.SendAs(ctx, p.dt, payload, timestamp)
}

func (p *publication) SendAs(ctx context.Context, dt datatype.Descriptor, payload []byte, timestamp int64) (bool, error) {
	if p.closed.Load() {
		return false, errspkg.ErrClosed
	}
	w := p.transport
	if !w.caps.Fits(len(payload)) {
		return false, fmt.Errorf("%w: %d bytes on %s", errspkg.ErrMessageTooLarge, len(payload), w.caps.Name)
	}
	if w.caps.ReportsSubscribers() && !w.hasSubscribers(p.topic) {
		return false, nil
	}
	if timestamp < 0 {
		timestamp = time.Now().UnixMicro()
	}

	adv := metadata.Advertisement{
		ProducerID:    p.producerID,
		DataType:      dt,
		SendTimestamp: timestamp,
		SendClock:     p.clock.Add(1),
	}
	msg := message.NewMessage(ids.CreateULID(), payload)
	msg.Metadata = metadata.ToWatermill(adv.Encode())
	msg.SetContext(ctx)

	if err := w.backend.Publisher.Publish(p.topic, msg); err != nil {
		return false, fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return true, nil
}

func (p *publication) Close() error {
	p.closed.Store(true)
	return nil
}

type verdict struct {
	key      datatype.Key
	accepted bool
}

type subscription struct {
	transport *Watermill
	topic     string
	dt        datatype.Descriptor
	accept    TypeFilter
	producers *lru.Cache[string, verdict]
	log       logging.ServiceLogger

	mu       sync.RWMutex
	callback ReceiveCallback

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscription) SetReceiveCallback(cb ReceiveCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

func (s *subscription) RemoveReceiveCallback() {
	s.SetReceiveCallback(nil)
}

// Close stops delivery and waits until an in-flight callback returns. It
// must not be called from inside the receive callback.
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.transport.release(s)
		s.log.Debug("Unsubscribed", nil)
	})
	return nil
}

// run delivers until ctx ends or the backend closes the channel. Either way
// the subscription stops counting as an audience for its topic.
func (s *subscription) run(ctx context.Context, messages <-chan *message.Message) {
	defer close(s.done)
	defer s.transport.release(s)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				s.log.Debug("Backend closed the subscription", nil)
				return
			}
			s.handle(msg)
			msg.Ack()
		}
	}
}

func (s *subscription) handle(msg *message.Message) {
	adv, err := metadata.DecodeAdvertisement(metadata.FromWatermill(msg.Metadata))
	if err != nil {
		s.log.Error("Dropping message without a valid advertisement", err, logging.LogFields{"uuid": msg.UUID})
		return
	}
	if !s.admit(adv) {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.callback == nil {
		return
	}
	s.callback(ReceiveInfo{
		ProducerID:    adv.ProducerID,
		Topic:         s.topic,
		DataType:      adv.DataType,
		Payload:       msg.Payload,
		SendTimestamp: adv.SendTimestamp,
		SendClock:     adv.SendClock,
	})
}

// admit matches a producer on first contact and whenever it changes the
// type it advertises.
func (s *subscription) admit(adv metadata.Advertisement) bool {
	key := adv.DataType.Key()
	if v, ok := s.producers.Get(adv.ProducerID); ok && v.key == key {
		return v.accepted
	}

	accepted := s.accept(adv.DataType)
	s.producers.Add(adv.ProducerID, verdict{key: key, accepted: accepted})
	if !accepted {
		s.transport.opts.metrics.RecordRejectedProducer(s.topic)
		fields := logging.LogFields{
			"producer":   adv.ProducerID,
			"advertised": adv.DataType.String(),
			"expected":   s.dt.String(),
		}
		if since, ok := ids.ProducerTime(adv.ProducerID); ok {
			fields["producer_since"] = since
		}
		s.log.Info("Rejected producer with incompatible data type", fields)
	}
	return accepted
}

var _ Transport = (*Watermill)(nil)

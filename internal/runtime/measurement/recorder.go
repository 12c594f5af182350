package measurement

import (
	"context"
	"sync"
	"time"

	"github.com/drblury/protomeas/internal/runtime/datatype"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
	"github.com/drblury/protomeas/internal/runtime/logging"
	"github.com/drblury/protomeas/internal/runtime/transport"
)

// RecordErrorCallback receives messages that could not be written.
type RecordErrorCallback func(err error, info transport.ReceiveInfo)

// Recorder writes every message received on its topics into a Writer. Each
// topic becomes a channel of the same name, typed with the descriptor its
// producers advertise. The payload is stored as received.
type Recorder struct {
	w   *Writer
	tr  transport.Transport
	log logging.ServiceLogger
	now func() int64

	mu      sync.Mutex
	subs    map[string]transport.Subscription
	onError RecordErrorCallback
	closed  bool
}

// NewRecorder records into w from tr. Closing the recorder leaves both open.
func NewRecorder(w *Writer, tr transport.Transport) (*Recorder, error) {
	if w == nil {
		return nil, errspkg.ErrWriterRequired
	}
	if tr == nil {
		return nil, errspkg.ErrTransportRequired
	}
	return &Recorder{
		w:    w,
		tr:   tr,
		log:  w.log.With(logging.LogFields{"role": "recorder"}),
		now:  func() int64 { return time.Now().UnixMicro() },
		subs: make(map[string]transport.Subscription),
	}, nil
}

// SetErrorCallback installs a callback for entries the writer rejected.
func (r *Recorder) SetErrorCallback(cb RecordErrorCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = cb
}

// Record subscribes to topic. Recording a topic twice is a no-op.
func (r *Recorder) Record(ctx context.Context, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errspkg.ErrClosed
	}
	if _, ok := r.subs[topic]; ok {
		return nil
	}

	sub, err := r.tr.Subscribe(ctx, topic, datatype.Descriptor{}, transport.AcceptAll, r.receive)
	if err != nil {
		return err
	}
	r.subs[topic] = sub
	r.log.Info("Recording topic", logging.LogFields{"topic": topic})
	return nil
}

// Topics lists the recorded topics.
func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	topics := make([]string, 0, len(r.subs))
	for topic := range r.subs {
		topics = append(topics, topic)
	}
	return topics
}

// Close ends every subscription. It waits for in-flight writes.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// receive runs on transport goroutines; the writer expects one caller at a
// time.
func (r *Recorder) receive(info transport.ReceiveInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	err := r.w.AddEntryWithType(info.Payload, info.SendTimestamp, r.now(), info.Topic, info.DataType, int32(info.SendClock))
	if err == nil {
		return
	}
	r.log.Error("Failed to record message", err, logging.LogFields{
		"topic":    info.Topic,
		"producer": info.ProducerID,
	})
	if r.onError != nil {
		r.onError(err, info)
	}
}

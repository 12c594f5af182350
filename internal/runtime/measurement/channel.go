package measurement

import (
	"fmt"
	"iter"

	"github.com/drblury/protomeas/internal/runtime/codec"
	"github.com/drblury/protomeas/internal/runtime/datatype"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
	"github.com/drblury/protomeas/internal/runtime/storage"
)

// Frame is one decoded entry of a channel.
type Frame[T any] struct {
	SndTimestamp int64
	RcvTimestamp int64
	Clock        int32
	Message      T
}

type decodeFunc[T any] func(payload []byte, dt datatype.Descriptor) (T, error)

// Channel is a lazy, indexable view of one stored channel. Entry metadata is
// loaded when the view is created; payloads are read and decoded on access.
// A Channel is not safe for concurrent use.
type Channel[T any] struct {
	m       *Measurement
	name    string
	dt      datatype.Descriptor
	decode  decodeFunc[T]
	entries []storage.EntryInfo
}

// OpenChannel creates a view of channel name that decodes entries with d
// against the descriptor the channel was written with.
func OpenChannel[T any](m *Measurement, name string, d codec.Deserializer[T]) (*Channel[T], error) {
	if d == nil {
		return nil, errspkg.ErrCodecRequired
	}
	return newChannel(m, name, d.Deserialize)
}

// BinaryChannel creates a view that returns raw payloads without decoding,
// for channels whose schema is unknown or irrelevant.
func BinaryChannel(m *Measurement, name string) (*Channel[[]byte], error) {
	return newChannel(m, name, func(payload []byte, _ datatype.Descriptor) ([]byte, error) {
		return payload, nil
	})
}

func newChannel[T any](m *Measurement, name string, decode decodeFunc[T]) (*Channel[T], error) {
	if m == nil || m.closed {
		return nil, errspkg.ErrClosed
	}
	if !m.HasChannel(name) {
		return nil, &errspkg.NotFoundError{Channel: name}
	}
	dt, err := m.ChannelType(name)
	if err != nil {
		return nil, err
	}
	entries, err := m.EntriesInfo(name)
	if err != nil {
		return nil, err
	}
	return &Channel[T]{m: m, name: name, dt: dt, decode: decode, entries: entries}, nil
}

func (c *Channel[T]) Name() string { return c.name }

// DataType returns the descriptor the channel was written with.
func (c *Channel[T]) DataType() datatype.Descriptor { return c.dt.Clone() }

func (c *Channel[T]) Len() int { return len(c.entries) }

// Entries returns the metadata of every entry in stored order.
func (c *Channel[T]) Entries() []storage.EntryInfo {
	return append([]storage.EntryInfo(nil), c.entries...)
}

// At reads and decodes the i-th entry. Decoding failures are returned as
// *errors.SerializationError together with the entry's timestamps.
func (c *Channel[T]) At(i int) (Frame[T], error) {
	if i < 0 || i >= len(c.entries) {
		return Frame[T]{}, fmt.Errorf("%w: %d of %d", errspkg.ErrIndexOutOfRange, i, len(c.entries))
	}
	info := c.entries[i]
	frame := Frame[T]{
		SndTimestamp: info.SndTimestamp,
		RcvTimestamp: info.RcvTimestamp,
		Clock:        info.Clock,
	}

	payload, err := c.m.EntryData(info.ID)
	if err != nil {
		return frame, err
	}
	frame.Message, err = c.decode(payload, c.dt)
	return frame, err
}

// Iterator returns a new iterator positioned before the first entry.
func (c *Channel[T]) Iterator() *Iterator[T] {
	return &Iterator[T]{ch: c, next: 0}
}

// All yields every entry in stored order. A failing entry is yielded with
// its error and iteration continues.
func (c *Channel[T]) All() iter.Seq2[Frame[T], error] {
	return func(yield func(Frame[T], error) bool) {
		for i := range c.entries {
			if !yield(c.At(i)) {
				return
			}
		}
	}
}

// Iterator walks a channel once. Create a new one to start over.
type Iterator[T any] struct {
	ch    *Channel[T]
	next  int
	frame Frame[T]
	err   error
}

// Next decodes the following entry. It returns false at the end of the
// channel or after a failure; see Err.
func (it *Iterator[T]) Next() bool {
	if it.err != nil || it.next >= it.ch.Len() {
		return false
	}
	it.frame, it.err = it.ch.At(it.next)
	it.next++
	return it.err == nil
}

// Frame returns the entry decoded by the last successful Next.
func (it *Iterator[T]) Frame() Frame[T] { return it.frame }

// Err returns the failure that stopped the iterator, if any.
func (it *Iterator[T]) Err() error { return it.err }

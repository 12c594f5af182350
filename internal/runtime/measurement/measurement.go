package measurement

import (
	"github.com/drblury/protomeas/internal/runtime/datatype"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
	"github.com/drblury/protomeas/internal/runtime/logging"
	"github.com/drblury/protomeas/internal/runtime/storage"
)

// Measurement is an opened, read-only measurement. Channel views created
// from it become invalid once it is closed.
type Measurement struct {
	path   string
	engine storage.Engine
	log    logging.ServiceLogger
	closed bool
}

// Open opens the measurement at path, which is either its directory or a
// single data file. A measurement that fails to open is not returned.
func Open(path string, opts ...Option) (*Measurement, error) {
	o := newOptions(opts)
	if err := o.engine.Open(path, storage.ModeRead); err != nil {
		return nil, err
	}
	o.log.Debug("Measurement opened", logging.LogFields{"path": path})
	return &Measurement{path: path, engine: o.engine, log: o.log}, nil
}

// Path returns the path the measurement was opened from.
func (m *Measurement) Path() string { return m.path }

// ChannelNames lists the channels in name order.
func (m *Measurement) ChannelNames() []string { return m.engine.ChannelNames() }

func (m *Measurement) HasChannel(name string) bool { return m.engine.HasChannel(name) }

// ChannelType returns the descriptor a channel was written with. Channels
// written without one report the zero Descriptor.
func (m *Measurement) ChannelType(name string) (datatype.Descriptor, error) {
	return m.engine.ChannelType(name)
}

// MinTimestamp is the earliest receive timestamp, or 0 when empty.
func (m *Measurement) MinTimestamp() int64 { return m.engine.MinTimestamp() }

// MaxTimestamp is the latest receive timestamp, or 0 when empty.
func (m *Measurement) MaxTimestamp() int64 { return m.engine.MaxTimestamp() }

// EntriesInfo lists a channel's entries in stored order.
func (m *Measurement) EntriesInfo(name string) ([]storage.EntryInfo, error) {
	if m.closed {
		return nil, errspkg.ErrClosed
	}
	return m.engine.EntriesInfo(name)
}

// EntriesInfoRange lists the entries received within [begin, end]. A zero
// bound is open.
func (m *Measurement) EntriesInfoRange(name string, begin, end int64) ([]storage.EntryInfo, error) {
	if m.closed {
		return nil, errspkg.ErrClosed
	}
	return m.engine.EntriesInfoRange(name, begin, end)
}

func (m *Measurement) EntryDataSize(id storage.EntryID) (int, error) {
	if m.closed {
		return 0, errspkg.ErrClosed
	}
	return m.engine.EntryDataSize(id)
}

func (m *Measurement) EntryData(id storage.EntryID) ([]byte, error) {
	if m.closed {
		return nil, errspkg.ErrClosed
	}
	return m.engine.EntryData(id)
}

// Close releases the underlying files.
func (m *Measurement) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.log.Debug("Measurement closed", logging.LogFields{"path": m.path})
	return m.engine.Close()
}

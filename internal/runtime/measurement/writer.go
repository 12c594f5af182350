package measurement

import (
	"errors"
	"time"

	"github.com/drblury/protomeas/internal/runtime/codec"
	"github.com/drblury/protomeas/internal/runtime/config"
	"github.com/drblury/protomeas/internal/runtime/datatype"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
	"github.com/drblury/protomeas/internal/runtime/logging"
	"github.com/drblury/protomeas/internal/runtime/storage"
)

// Writer appends entries to a new measurement. It is meant to be driven by
// a single goroutine and must be closed to finalize its files.
type Writer struct {
	dir    string
	engine storage.Engine
	log    logging.ServiceLogger
	closed bool
}

// Create starts a new measurement in dir. Files are created on the first
// write, so the base name may still be changed until then.
func Create(dir string, opts ...Option) (*Writer, error) {
	if dir == "" {
		return nil, errspkg.NewIOError("create measurement", dir, errors.New("directory is required"))
	}
	o := newOptions(opts)
	if err := o.engine.Open(dir, storage.ModeCreate); err != nil {
		return nil, err
	}
	o.log.Info("Measurement created", logging.LogFields{"dir": dir})
	return &Writer{dir: dir, engine: o.engine, log: o.log}, nil
}

// CreateFromConfig creates a measurement in conf.MeasurementDir using the
// configured base name and file size.
func CreateFromConfig(conf *config.Config, opts ...Option) (*Writer, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	return Create(conf.MeasurementDir, append([]Option{WithConfig(conf)}, opts...)...)
}

// Dir returns the measurement directory.
func (w *Writer) Dir() string { return w.dir }

// SetFileBaseName renames the files of the measurement. Only effective
// before the first entry is written.
func (w *Writer) SetFileBaseName(name string) { w.engine.SetFileBaseName(name) }

func (w *Writer) SetMaxSizePerFile(size int64) { w.engine.SetMaxSizePerFile(size) }

// OnPreSplit registers fn to run before the writer starts a new file. It is
// a no-op for engines that never split.
func (w *Writer) OnPreSplit(fn func(next string)) {
	if s, ok := w.engine.(storage.Splitter); ok {
		s.OnPreSplit(fn)
	}
}

// RegisterChannel fixes the data type of a channel. Registering the same
// descriptor again is a no-op; a different one fails with
// *errors.ChannelTypeConflictError.
func (w *Writer) RegisterChannel(name string, dt datatype.Descriptor) error {
	if w.closed {
		return errspkg.ErrClosed
	}
	if err := w.engine.SetChannelType(name, dt); err != nil {
		return err
	}
	w.log.Debug("Channel registered", logging.LogFields{"channel": name, "type": dt.Name})
	return nil
}

// AddEntry appends payload to channel name. A negative rcvTimestamp is
// replaced by the current time in microseconds.
func (w *Writer) AddEntry(payload []byte, sndTimestamp, rcvTimestamp int64, name string, counter int32) error {
	if w.closed {
		return errspkg.ErrClosed
	}
	if rcvTimestamp < 0 {
		rcvTimestamp = time.Now().UnixMicro()
	}
	return w.engine.AddEntry(payload, sndTimestamp, rcvTimestamp, name, counter)
}

// AddEntryWithType appends payload and registers the channel with dt if it
// has no type yet.
func (w *Writer) AddEntryWithType(payload []byte, sndTimestamp, rcvTimestamp int64, name string, dt datatype.Descriptor, counter int32) error {
	if w.closed {
		return errspkg.ErrClosed
	}
	if current, err := w.engine.ChannelType(name); err != nil || !current.Equal(dt) {
		if err := w.RegisterChannel(name, dt); err != nil {
			return err
		}
	}
	return w.AddEntry(payload, sndTimestamp, rcvTimestamp, name, counter)
}

// Close finalizes every file and the manifest. The writer is unusable
// afterwards.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.engine.Close()
	if err != nil {
		w.log.Error("Failed to finalize measurement", err, logging.LogFields{"dir": w.dir})
		return err
	}
	w.log.Info("Measurement finalized", logging.LogFields{"dir": w.dir})
	return nil
}

// Write serializes msg with s and appends it to channel name under the
// serializer's data type.
func Write[T any](w *Writer, name string, s codec.Serializer[T], msg T, sndTimestamp, rcvTimestamp int64, counter int32) error {
	if s == nil {
		return errspkg.ErrCodecRequired
	}
	dt := s.DataTypeInformation()
	if typer, ok := s.(codec.MessageTyper[T]); ok {
		var err error
		if dt, err = typer.DataTypeInformationFor(msg); err != nil {
			return err
		}
	}
	payload, err := s.Serialize(msg)
	if err != nil {
		return err
	}
	return w.AddEntryWithType(payload, sndTimestamp, rcvTimestamp, name, dt, counter)
}

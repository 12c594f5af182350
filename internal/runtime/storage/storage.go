// Package storage defines the engine that persists measurement channels.
// An engine owns one logical measurement which may span several physical
// files; entry ids and entry order are stable across all of them.
package storage

import (
	"fmt"

	"github.com/drblury/protomeas/internal/runtime/datatype"
)

// Mode selects how an engine opens a measurement.
type Mode int

const (
	// ModeRead opens an existing measurement.
	ModeRead Mode = iota + 1
	// ModeCreate starts a new measurement in a directory.
	ModeCreate
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeCreate:
		return "create"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

const (
	// DefaultMaxSizePerFile is the payload volume after which a new
	// physical file is started.
	DefaultMaxSizePerFile int64 = 1000 * 1024 * 1024
	// DefaultFileBaseName names the first file <base>.sqlite and the
	// following ones <base>_N.sqlite.
	DefaultFileBaseName = "measurement"
)

// EntryID identifies one entry across every file of a measurement.
type EntryID int64

// EntryInfo is the metadata row of one entry.
type EntryInfo struct {
	ID           EntryID
	RcvTimestamp int64
	SndTimestamp int64
	Clock        int32
}

// Engine stores channels of timestamped payloads.
type Engine interface {
	Open(path string, mode Mode) error
	Close() error

	// SetChannelType fixes the data type of a channel. Setting a different
	// type on a typed channel fails with *errors.ChannelTypeConflictError.
	SetChannelType(name string, dt datatype.Descriptor) error
	ChannelType(name string) (datatype.Descriptor, error)
	ChannelNames() []string
	HasChannel(name string) bool

	// EntriesInfo lists a channel's entries in write order.
	EntriesInfo(name string) ([]EntryInfo, error)
	// EntriesInfoRange is EntriesInfo restricted to receive timestamps in
	// [begin, end]. A zero bound is open.
	EntriesInfoRange(name string, begin, end int64) ([]EntryInfo, error)
	EntryDataSize(id EntryID) (int, error)
	EntryData(id EntryID) ([]byte, error)

	// AddEntry appends payload to a channel. Unknown channels are created
	// untyped.
	AddEntry(payload []byte, sndTimestamp, rcvTimestamp int64, name string, counter int32) error

	SetMaxSizePerFile(size int64)
	SetFileBaseName(name string)

	// MinTimestamp and MaxTimestamp bound the receive timestamps of all
	// entries, or return 0 for an empty measurement.
	MinTimestamp() int64
	MaxTimestamp() int64
}

// Splitter is implemented by engines that roll over to new files.
type Splitter interface {
	// OnPreSplit registers fn to run before a new file is started. next is
	// the name of the file about to be created.
	OnPreSplit(fn func(next string))
}

// Manifest describes the files and channels of a measurement. Engines write
// it next to the data files; readers use it to find the files in order.
type Manifest struct {
	BaseName       string            `json:"base_name"`
	Files          []string          `json:"files"`
	Channels       []ManifestChannel `json:"channels"`
	MaxSizePerFile int64             `json:"max_size_per_file"`
}

// ManifestChannel summarises one channel.
type ManifestChannel struct {
	Name     string `json:"name"`
	TypeName string `json:"type_name"`
	Encoding string `json:"encoding"`
	Entries  int    `json:"entries"`
}

package errors

import (
	sterrors "errors"
	"fmt"

	"github.com/drblury/protomeas/internal/runtime/datatype"
)

var (
	ErrTopicRequired       = sterrors.New("protomeas: topic is required")
	ErrCodecRequired       = sterrors.New("protomeas: codec is required")
	ErrTransportRequired   = sterrors.New("protomeas: transport is required")
	ErrConfigRequired      = sterrors.New("protomeas: configuration is required")
	ErrNilMessage          = sterrors.New("protomeas: message is nil")
	ErrClosed              = sterrors.New("protomeas: already closed")
	ErrChannelNameRequired = sterrors.New("protomeas: channel name is required")
	ErrWriterRequired      = sterrors.New("protomeas: measurement writer is required")
	ErrReadOnly            = sterrors.New("protomeas: measurement is opened read-only")
	ErrIndexOutOfRange     = sterrors.New("protomeas: entry index out of range")
	ErrEntryNotFound       = sterrors.New("protomeas: entry not found")
	ErrMessageTooLarge     = sterrors.New("protomeas: payload exceeds the transport message size")
)

// SerializationError reports payload bytes that do not match the expected or
// advertised schema. It is recoverable and reported per message.
type SerializationError struct {
	DataType datatype.Descriptor
	Err      error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("protomeas: cannot deserialize %s payload: %v", e.DataType.Name, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// NewSerializationError wraps err, or returns nil when err is nil.
func NewSerializationError(dt datatype.Descriptor, err error) error {
	if err == nil {
		return nil
	}
	return &SerializationError{DataType: dt, Err: err}
}

// UnsupportedDatatypeError is returned when no message type can be built for an
// advertised descriptor.
type UnsupportedDatatypeError struct {
	TypeName string
	Reason   string
	Err      error
}

func (e *UnsupportedDatatypeError) Error() string {
	msg := "protomeas: unsupported datatype " + e.TypeName
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnsupportedDatatypeError) Unwrap() error { return e.Err }

// NotFoundError is returned synchronously when a channel is absent from a
// measurement.
type NotFoundError struct {
	Channel string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("protomeas: channel %q not found in measurement", e.Channel)
}

// IOError wraps failures creating, writing or closing measurement files.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("protomeas: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// NewIOError wraps err, or returns nil when err is nil.
func NewIOError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// ChannelTypeConflictError rejects registering an existing channel under a
// different descriptor.
type ChannelTypeConflictError struct {
	Channel   string
	Existing  datatype.Descriptor
	Requested datatype.Descriptor
}

func (e *ChannelTypeConflictError) Error() string {
	return fmt.Sprintf("protomeas: channel %q is registered as %s, cannot change to %s",
		e.Channel, e.Existing, e.Requested)
}

// ConfigValidationError wraps the joined configuration problems.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "protomeas: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError wraps err, or returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

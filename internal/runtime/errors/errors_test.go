package errors

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/protomeas/internal/runtime/datatype"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrTopicRequired", ErrTopicRequired, "protomeas: topic is required"},
		{"ErrCodecRequired", ErrCodecRequired, "protomeas: codec is required"},
		{"ErrTransportRequired", ErrTransportRequired, "protomeas: transport is required"},
		{"ErrNilMessage", ErrNilMessage, "protomeas: message is nil"},
		{"ErrClosed", ErrClosed, "protomeas: already closed"},
		{"ErrChannelNameRequired", ErrChannelNameRequired, "protomeas: channel name is required"},
		{"ErrWriterRequired", ErrWriterRequired, "protomeas: measurement writer is required"},
		{"ErrReadOnly", ErrReadOnly, "protomeas: measurement is opened read-only"},
		{"ErrIndexOutOfRange", ErrIndexOutOfRange, "protomeas: entry index out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestSerializationError(t *testing.T) {
	inner := errors.New("proto: cannot parse invalid wire-format data")
	dt := datatype.New("pkg.Imu", datatype.EncodingProto, nil)

	err := NewSerializationError(dt, inner)
	var serr *SerializationError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "pkg.Imu", serr.DataType.Name)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "pkg.Imu")

	assert.NoError(t, NewSerializationError(dt, nil))
}

func TestUnsupportedDatatypeErrorMessage(t *testing.T) {
	err := &UnsupportedDatatypeError{TypeName: "pkg.Missing", Reason: "not in descriptor set"}
	assert.Equal(t, "protomeas: unsupported datatype pkg.Missing: not in descriptor set", err.Error())

	wrapped := NewSerializationError(datatype.Descriptor{Name: "pkg.Missing"}, err)
	var unsupported *UnsupportedDatatypeError
	assert.True(t, errors.As(wrapped, &unsupported))
}

func TestIOError(t *testing.T) {
	err := NewIOError("create", "/tmp/x.sqlite", fs.ErrPermission)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Equal(t, "protomeas: create /tmp/x.sqlite: permission denied", err.Error())
	assert.NoError(t, NewIOError("close", "x", nil))
}

func TestNotFoundAndConflict(t *testing.T) {
	nf := &NotFoundError{Channel: "imu"}
	assert.Equal(t, `protomeas: channel "imu" not found in measurement`, nf.Error())

	conflict := &ChannelTypeConflictError{
		Channel:   "imu",
		Existing:  datatype.New("pkg.Imu", datatype.EncodingProto, []byte{1}),
		Requested: datatype.New("pkg.Gps", datatype.EncodingProto, []byte{2}),
	}
	assert.Contains(t, conflict.Error(), "pkg.Imu")
	assert.Contains(t, conflict.Error(), "pkg.Gps")
}

func TestNewConfigValidationError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		assert.NoError(t, NewConfigValidationError(nil))
	})

	t.Run("wraps error", func(t *testing.T) {
		inner := errors.New("bad config")
		err := NewConfigValidationError(inner)

		var cfgErr ConfigValidationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, inner, cfgErr.Err)
		assert.ErrorIs(t, err, inner)
		assert.Equal(t, "protomeas: invalid configuration: bad config", err.Error())
	})
}

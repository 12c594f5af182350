package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/protomeas/internal/runtime/datatype"
)

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	assert.Equal(t, "1", original["a"])
	assert.Len(t, clone, len(original))

	var empty Metadata
	assert.NotNil(t, empty.Clone())
}

func TestNew(t *testing.T) {
	md := New("key", "value", "dangling")
	assert.Equal(t, Metadata{"key": "value"}, md)
	assert.Equal(t, Metadata{}, New())
}

func TestToAndFromWatermill(t *testing.T) {
	md := Metadata{"source": "imu"}
	wm := ToWatermill(md)
	wm["source"] = "mutation"
	assert.Equal(t, "imu", md["source"])

	assert.Empty(t, ToWatermill(nil))
	assert.Equal(t, Metadata{"event": "sample"}, FromWatermill(message.Metadata{"event": "sample"}))
	assert.NotNil(t, FromWatermill(nil))
}

func TestAdvertisementRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		adv  Advertisement
	}{
		{
			name: "proto schema",
			adv: Advertisement{
				ProducerID:    "pub-1",
				DataType:      datatype.New("pkg.Imu", datatype.EncodingProto, []byte{0x0a, 0x00, 0xff}),
				SendTimestamp: 1_700_000_000_000_000,
				SendClock:     7,
			},
		},
		{
			name: "no schema",
			adv: Advertisement{
				ProducerID: "pub-2",
				DataType:   datatype.Descriptor{Name: "std::string", Encoding: datatype.EncodingBase},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := tt.adv.Encode()
			got, err := DecodeAdvertisement(FromWatermill(ToWatermill(headers)))
			require.NoError(t, err)
			assert.Equal(t, tt.adv.ProducerID, got.ProducerID)
			assert.True(t, tt.adv.DataType.Equal(got.DataType))
			assert.Equal(t, tt.adv.SendTimestamp, got.SendTimestamp)
			assert.Equal(t, tt.adv.SendClock, got.SendClock)
		})
	}
}

func TestDecodeAdvertisementErrors(t *testing.T) {
	valid := Advertisement{ProducerID: "pub-1", DataType: datatype.Descriptor{Name: "binary", Encoding: "base"}}.Encode()

	tests := []struct {
		name       string
		key, value string
	}{
		{"missing producer", KeyProducerID, ""},
		{"bad schema", KeyTypeSchema, "%%%"},
		{"bad timestamp", KeySendTimestamp, "soon"},
		{"bad clock", KeySendClock, "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := valid.Clone()
			md[tt.key] = tt.value
			_, err := DecodeAdvertisement(md)
			assert.Error(t, err)
			assert.NotEqual(t, tt.value, valid[tt.key])
		})
	}
}

package metadata

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/drblury/protomeas/internal/runtime/datatype"
)

// Header keys written next to every payload.
const (
	KeyTypeName      = "protomeas_type_name"
	KeyTypeEncoding  = "protomeas_type_encoding"
	KeyTypeSchema    = "protomeas_type_schema"
	KeyProducerID    = "protomeas_producer_id"
	KeySendTimestamp = "protomeas_send_timestamp_us"
	KeySendClock     = "protomeas_send_clock"
)

var errMissingProducer = errors.New("missing producer id")

// Advertisement is what a producer states about every payload it sends.
type Advertisement struct {
	ProducerID    string
	DataType      datatype.Descriptor
	SendTimestamp int64
	SendClock     int64
}

// Encode renders the advertisement as headers. Schema bytes are base64
// encoded since some transports only carry text headers.
func (a Advertisement) Encode() Metadata {
	md := New(
		KeyProducerID, a.ProducerID,
		KeyTypeName, a.DataType.Name,
		KeyTypeEncoding, a.DataType.Encoding,
		KeySendTimestamp, strconv.FormatInt(a.SendTimestamp, 10),
		KeySendClock, strconv.FormatInt(a.SendClock, 10),
	)
	if len(a.DataType.Descriptor) > 0 {
		md[KeyTypeSchema] = base64.StdEncoding.EncodeToString(a.DataType.Descriptor)
	}
	return md
}

// DecodeAdvertisement parses headers written by Encode.
func DecodeAdvertisement(md Metadata) (Advertisement, error) {
	adv := Advertisement{
		ProducerID: md[KeyProducerID],
		DataType: datatype.Descriptor{
			Name:     md[KeyTypeName],
			Encoding: md[KeyTypeEncoding],
		},
	}
	if adv.ProducerID == "" {
		return Advertisement{}, errMissingProducer
	}

	if raw := md[KeyTypeSchema]; raw != "" {
		schema, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Advertisement{}, fmt.Errorf("decode %s: %w", KeyTypeSchema, err)
		}
		adv.DataType.Descriptor = schema
	}

	var err error
	if adv.SendTimestamp, err = parseInt(md, KeySendTimestamp); err != nil {
		return Advertisement{}, err
	}
	if adv.SendClock, err = parseInt(md, KeySendClock); err != nil {
		return Advertisement{}, err
	}
	return adv, nil
}

func parseInt(md Metadata, key string) (int64, error) {
	raw, ok := md[key]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

// Package protomeas is a typed publish/subscribe layer on top of Watermill
// with pluggable wire encodings, plus a timestamped multi-channel log (a
// measurement) that records and replays the same typed messages.
//
// A codec binds a Go type to its wire format. String and Binary cover raw
// payloads, Protobuf[T] a generated message, and DynamicProtobuf decodes any
// protobuf message from the schema its producer advertises, so subscribers
// need no compile-time knowledge of the type. DynamicJSON renders such
// messages as JSON text.
//
// NewPublisher and NewSubscriber wrap a Transport with a codec. Every
// payload travels with its data type descriptor, send timestamp and send
// clock; subscribers reject producers whose advertised type their codec does
// not accept and report undecodable payloads to an error callback without
// ending the subscription.
//
// # Transports
//
// NewTransport reads the backend from Config.PubSubSystem:
//   - channel: In-memory Go channels, the default
//   - kafka: Every subscriber reads all partitions unless a consumer group is set
//   - rabbitmq: Fan-out exchange per topic
//   - aws: SNS topics with one SQS queue per subscriber instance
//   - nats: Core NATS subjects
//   - http: Webhook style delivery
//
// # Measurements
//
// CreateMeasurement starts a Writer that appends entries to named channels
// and splits its output into <base>.sqlite, <base>_1.sqlite, ... once the
// configured size per file is reached. OpenMeasurement reads the result and
// OpenChannel returns a lazy view that fetches and decodes a payload only when
// it is accessed. A Recorder copies live traffic from a Transport into a
// Writer.
package protomeas

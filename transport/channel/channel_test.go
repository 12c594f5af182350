package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/protomeas/transport"
)

func TestRegister(t *testing.T) {
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "channel", caps.Name)
	assert.True(t, caps.InProcess)
	assert.True(t, caps.SupportsOrdering)
	assert.Equal(t, transport.ChannelCapabilities, Capabilities())
}

func TestBuild(t *testing.T) {
	t.Run("creates a shared pub/sub", func(t *testing.T) {
		tr, err := Build(context.Background(), nil, watermill.NopLogger{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = tr.Close() })

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		messages, err := tr.Subscriber.Subscribe(ctx, "imu")
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			done <- tr.Publisher.Publish("imu", message.NewMessage("1", []byte("payload")))
		}()

		select {
		case msg := <-messages:
			assert.Equal(t, []byte("payload"), []byte(msg.Payload))
			msg.Ack()
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
		require.NoError(t, <-done)
	})

	t.Run("uses custom factory", func(t *testing.T) {
		originalFactory := Factory
		defer func() { Factory = originalFactory }()

		var gotCfg gochannel.Config
		mockPub := &mockPublisher{}
		mockSub := &mockSubscriber{}
		Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
			gotCfg = cfg
			return mockPub, mockSub
		}

		tr := New(nil)
		assert.Equal(t, mockPub, tr.Publisher)
		assert.Equal(t, mockSub, tr.Subscriber)
		assert.True(t, gotCfg.BlockPublishUntilSubscriberAck)
	})
}

type mockPublisher struct{}

func (m *mockPublisher) Publish(topic string, messages ...*message.Message) error { return nil }
func (m *mockPublisher) Close() error                                             { return nil }

type mockSubscriber struct{}

func (m *mockSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}
func (m *mockSubscriber) Close() error { return nil }

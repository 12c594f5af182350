package transport

import (
	"context"

	"github.com/drblury/protomeas/internal/runtime/config"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
	"github.com/drblury/protomeas/internal/runtime/logging"
	bus "github.com/drblury/protomeas/transport"
	"github.com/drblury/protomeas/transport/channel"

	// Register every built-in backend.
	_ "github.com/drblury/protomeas/transport/transports"
)

// New builds the backend selected by conf.PubSubSystem through the transport
// registry and wraps it. An empty system selects the in-process channel.
func New(ctx context.Context, conf *config.Config, opts ...Option) (*Watermill, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if conf.PubSubSystem == "" {
		return NewInProcess(opts...), nil
	}

	o := newOptions(opts)
	backend, caps, err := bus.Build(ctx, conf, logging.NewWatermillAdapter(o.log))
	if err != nil {
		return nil, err
	}
	return NewWatermill(backend, caps, opts...), nil
}

// NewInProcess returns a transport whose publishers and subscribers meet in
// memory. Send reports false while a topic has no subscriber.
func NewInProcess(opts ...Option) *Watermill {
	o := newOptions(opts)
	return NewWatermill(channel.New(logging.NewWatermillAdapter(o.log)), channel.Capabilities(), opts...)
}

// Package transports imports all built-in transports for auto-registration.
// Import this package to have every transport registered with the default registry.
package transports

import (
	_ "github.com/drblury/protomeas/transport/aws"
	_ "github.com/drblury/protomeas/transport/channel"
	_ "github.com/drblury/protomeas/transport/http"
	_ "github.com/drblury/protomeas/transport/kafka"
	_ "github.com/drblury/protomeas/transport/nats"
	_ "github.com/drblury/protomeas/transport/rabbitmq"
)

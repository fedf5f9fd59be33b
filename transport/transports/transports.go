// Package transports imports all built-in transports for auto-registration.
// Import this package to have all transports registered with the default registry.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/drblury/packflow/transport/channel"
	_ "github.com/drblury/packflow/transport/jetstream"
	_ "github.com/drblury/packflow/transport/nats"
)

package tcpnet

import (
	"time"
)

// options holds the shared configuration for servers, clients, and the
// connections they own.
type options struct {
	logger Logger

	bufferSize        int
	heartbeatInterval time.Duration
	maxConnections    int
	rateLimit         *RateLimitConfig
}

// Default configuration values.
const (
	// defaultBufferSize is the capacity of a connection's outbound queue.
	defaultBufferSize = 64
	// defaultHeartbeatInterval is how often an idle client pings.
	defaultHeartbeatInterval = 500 * time.Millisecond
)

// Option configures a Server or Client.
type Option func(*options)

// LoggerOption sets the logger. If not set, the default slog logger is used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// BufferSizeOption sets the capacity of each connection's outbound queue.
// A larger buffer lets more payloads queue before Write reports
// ErrBufferFull.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// HeartbeatOption sets the client's heartbeat interval. A client sends at
// most one ping per interval, and only when the previous ping has been
// answered. Servers ignore this option; they only answer pings.
func HeartbeatOption(interval time.Duration) Option {
	return func(o *options) {
		o.heartbeatInterval = interval
	}
}

// MaxConnectionsOption caps the number of simultaneously live connections
// a server accepts. Zero means no limit. When the cap is reached, further
// inbound connections wait in the OS accept backlog until a slot frees.
// Clients ignore this option.
func MaxConnectionsOption(max int) Option {
	return func(o *options) {
		o.maxConnections = max
	}
}

// RateLimitOption sets per-connection rate limiting of application
// packets. Limiting is off by default.
func RateLimitOption(cfg *RateLimitConfig) Option {
	return func(o *options) {
		o.rateLimit = cfg
	}
}

// checkOptions fills in defaults for anything left unset.
func checkOptions(opts *options) {
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.heartbeatInterval <= 0 {
		opts.heartbeatInterval = defaultHeartbeatInterval
	}

	if opts.maxConnections < 0 {
		opts.maxConnections = 0
	}

	if opts.rateLimit == nil {
		opts.rateLimit = NoRateLimit()
	}
}

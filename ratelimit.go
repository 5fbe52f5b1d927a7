package tcpnet

import "golang.org/x/time/rate"

// RateLimitConfig caps the rate of application packets dispatched per
// connection. Packets beyond the limit are dropped with a warning; the
// connection itself stays up. Heartbeat traffic is never limited.
type RateLimitConfig struct {
	// Enabled turns rate limiting on.
	Enabled bool
	// MessagesPerSecond is the sustained dispatch rate per connection.
	MessagesPerSecond rate.Limit
	// Burst is the number of packets that may exceed the sustained rate.
	Burst int
}

// DefaultRateLimitConfig returns a config suited to interactive demos:
// 100 packets per second sustained with bursts of 200.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled:           true,
		MessagesPerSecond: 100,
		Burst:             200,
	}
}

// NoRateLimit returns a config with rate limiting disabled. This is the
// default when no RateLimitOption is given.
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{Enabled: false}
}

// newLimiter builds a per-connection limiter, or nil when limiting is off.
func (c *RateLimitConfig) newLimiter() *rate.Limiter {
	if c == nil || !c.Enabled {
		return nil
	}
	return rate.NewLimiter(c.MessagesPerSecond, c.Burst)
}

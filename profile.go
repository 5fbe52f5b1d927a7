package tcpnet

import (
	"sync/atomic"
	"time"
)

// ConnectionProfile reports the wall-clock cost of the most recently
// completed iteration of each of a connection's three loops. The values
// are instantaneous gauges, not accumulators.
type ConnectionProfile struct {
	ListenerTime  time.Duration
	ProcessorTime time.Duration
	SenderTime    time.Duration
}

// profile is the live backing store. Each loop writes only its own gauge;
// any goroutine may snapshot them.
type profile struct {
	listener  atomic.Int64
	processor atomic.Int64
	sender    atomic.Int64
}

func (p *profile) snapshot() ConnectionProfile {
	return ConnectionProfile{
		ListenerTime:  time.Duration(p.listener.Load()),
		ProcessorTime: time.Duration(p.processor.Load()),
		SenderTime:    time.Duration(p.sender.Load()),
	}
}

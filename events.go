package tcpnet

import "sync"

// The event surface is a closed set of typed hooks rather than a
// string-keyed bus. Handlers are append-only and run synchronously, in
// registration order, on the goroutine that triggers them. Packet
// handlers are expected to be fast and non-blocking: they delay every
// subsequent packet on the same connection.

// PacketHandler handles one application packet on a server, together
// with the connection it arrived on. Returning a non-nil error tears
// down that connection.
type PacketHandler func(*Packet, *Conn) error

// ClientPacketHandler handles one application packet on a client.
// Returning a non-nil error tears down the connection.
type ClientPacketHandler func(*Packet) error

// ConnHandler observes a connection lifecycle event on a server.
type ConnHandler func(*Conn)

// serverEvents holds the server's hook lists. The mutex only guards the
// slices themselves; handlers run outside it.
type serverEvents struct {
	mu         sync.RWMutex
	ready      []func()
	connect    []ConnHandler
	disconnect []ConnHandler
	packet     []PacketHandler
}

func (e *serverEvents) onReady(fn func()) {
	e.mu.Lock()
	e.ready = append(e.ready, fn)
	e.mu.Unlock()
}

func (e *serverEvents) onConnect(fn ConnHandler) {
	e.mu.Lock()
	e.connect = append(e.connect, fn)
	e.mu.Unlock()
}

func (e *serverEvents) onDisconnect(fn ConnHandler) {
	e.mu.Lock()
	e.disconnect = append(e.disconnect, fn)
	e.mu.Unlock()
}

func (e *serverEvents) onPacket(fn PacketHandler) {
	e.mu.Lock()
	e.packet = append(e.packet, fn)
	e.mu.Unlock()
}

func (e *serverEvents) triggerReady() {
	e.mu.RLock()
	handlers := e.ready
	e.mu.RUnlock()

	for _, fn := range handlers {
		fn()
	}
}

func (e *serverEvents) triggerConnect(conn *Conn) {
	e.mu.RLock()
	handlers := e.connect
	e.mu.RUnlock()

	for _, fn := range handlers {
		fn(conn)
	}
}

func (e *serverEvents) triggerDisconnect(conn *Conn) {
	e.mu.RLock()
	handlers := e.disconnect
	e.mu.RUnlock()

	for _, fn := range handlers {
		fn(conn)
	}
}

// triggerPacket runs the packet handlers in order, stopping at the first
// failure. The error propagates out of the dispatch loop that called it.
func (e *serverEvents) triggerPacket(packet *Packet, conn *Conn) error {
	e.mu.RLock()
	handlers := e.packet
	e.mu.RUnlock()

	for _, fn := range handlers {
		if err := fn(packet, conn); err != nil {
			return err
		}
	}
	return nil
}

// clientEvents mirrors serverEvents for the client side, where handlers
// have no connection argument: a client has exactly one.
type clientEvents struct {
	mu         sync.RWMutex
	connect    []func()
	disconnect []func()
	packet     []ClientPacketHandler
}

func (e *clientEvents) onConnect(fn func()) {
	e.mu.Lock()
	e.connect = append(e.connect, fn)
	e.mu.Unlock()
}

func (e *clientEvents) onDisconnect(fn func()) {
	e.mu.Lock()
	e.disconnect = append(e.disconnect, fn)
	e.mu.Unlock()
}

func (e *clientEvents) onPacket(fn ClientPacketHandler) {
	e.mu.Lock()
	e.packet = append(e.packet, fn)
	e.mu.Unlock()
}

func (e *clientEvents) triggerConnect() {
	e.mu.RLock()
	handlers := e.connect
	e.mu.RUnlock()

	for _, fn := range handlers {
		fn()
	}
}

func (e *clientEvents) triggerDisconnect() {
	e.mu.RLock()
	handlers := e.disconnect
	e.mu.RUnlock()

	for _, fn := range handlers {
		fn()
	}
}

func (e *clientEvents) triggerPacket(packet *Packet) error {
	e.mu.RLock()
	handlers := e.packet
	e.mu.RUnlock()

	for _, fn := range handlers {
		if err := fn(packet); err != nil {
			return err
		}
	}
	return nil
}

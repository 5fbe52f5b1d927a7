// Package tcpnet implements a small length-prefixed TCP packet protocol
// with event-driven server and client runtimes. Each connection runs
// three cooperating loops: a receive loop framing packets off the wire,
// a dispatch loop invoking registered handlers, and a send loop draining
// the outbound queue. Clients additionally measure round-trip latency
// with a heartbeat ping/pong exchange answered by the server.
package tcpnet

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Errors returned by connection operations.
var (
	// ErrConnectionClosed is returned when writing to a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrBufferFull is returned by Write when the outbound queue is full.
	// Use WriteBlocking to wait for space instead.
	ErrBufferFull = errors.New("send buffer full")
)

// Sentinels for the two expected ways a peer goes away. Both end the
// connection quietly; a reset is logged at debug level so it can still
// be told apart from a clean close.
var (
	errPeerClosed = errors.New("peer closed connection")
	errPeerReset  = errors.New("connection reset by peer")
)

// Conn is one live connection: a socket, an inbound queue of decoded
// packets, an outbound queue of application payloads, and the three
// loops that service them. Servers hand a Conn to every lifecycle and
// packet handler; clients own exactly one behind the Client API.
type Conn struct {
	id          uint64
	raw         *net.TCPConn
	remoteAddr  *net.TCPAddr
	connectedAt time.Time

	logger Logger
	opts   options

	inbound  chan *Packet
	outbound chan []byte
	limiter  *rate.Limiter

	// writeMu serializes socket writes: the dispatch loop writes pong
	// replies and the send loop writes everything else. Interleaved
	// partial frames would desync the stream for good.
	writeMu sync.Mutex

	profile profile

	// hb is set on client-side connections only. It makes the send loop
	// initiate pings and the dispatch loop complete them.
	hb *heartbeat

	onPacket func(*Packet, *Conn) error
	onClose  func(*Conn)

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	done   chan struct{}
}

func newConn(parent context.Context, raw *net.TCPConn, id uint64, opts options) *Conn {
	ctx, cancel := context.WithCancel(parent)
	addr, _ := raw.RemoteAddr().(*net.TCPAddr)

	return &Conn{
		id:          id,
		raw:         raw,
		remoteAddr:  addr,
		connectedAt: time.Now(),
		logger:      opts.logger,
		opts:        opts,
		inbound:     make(chan *Packet, opts.bufferSize),
		outbound:    make(chan []byte, opts.bufferSize),
		limiter:     opts.rateLimit.newLimiter(),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// ID returns the connection's identifier, unique for the lifetime of the
// owning server. Client-side connections have id 0.
func (c *Conn) ID() uint64 {
	return c.id
}

// RemoteAddr returns the peer's address.
func (c *Conn) RemoteAddr() *net.TCPAddr {
	return c.remoteAddr
}

// ConnectedAt returns when the connection was established.
func (c *Conn) ConnectedAt() time.Time {
	return c.connectedAt
}

// Profile returns the wall-clock cost of the most recent iteration of
// each of the connection's three loops.
func (c *Conn) Profile() ConnectionProfile {
	return c.profile.snapshot()
}

// IsClosed reports whether the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Write queues an application payload for sending without blocking.
//
// Returns ErrBufferFull when the outbound queue is full (the payload was
// NOT queued), ErrConnectionClosed when the connection is closed, and
// ErrPayloadTooLarge when the payload cannot fit in a single frame.
// Payloads are written to the wire in the order they were queued.
func (c *Conn) Write(payload []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if len(payload) > MaxPayloadSize {
		return errors.Wrapf(ErrPayloadTooLarge, "payload %d bytes", len(payload))
	}

	select {
	case c.outbound <- payload:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking queues an application payload, waiting for queue space
// until the given context is canceled or the connection closes.
func (c *Conn) WriteBlocking(ctx context.Context, payload []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if len(payload) > MaxPayloadSize {
		return errors.Wrapf(ErrPayloadTooLarge, "payload %d bytes", len(payload))
	}

	select {
	case c.outbound <- payload:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the connection down: exactly one caller flips the closed
// flag, cancels the loops, notifies the owner (registry removal,
// disconnect handlers, admission slot release) and closes the socket.
// Safe to call multiple times and from multiple goroutines; any of the
// three loops, the owning runtime, or the application may race here.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.cancel()
	if c.onClose != nil {
		c.onClose(c)
	}
	return c.raw.Close()
}

// run starts the three loops and blocks until all of them have exited.
// The returned error is nil for every expected teardown path.
func (c *Conn) run() error {
	defer close(c.done)

	c.logger.Info("connection established", "id", c.id, "addr", c.remoteAddr)

	group, ctx := errgroup.WithContext(c.ctx)

	// A blocked socket read has no cancellation point; closing the
	// socket from here is what unblocks it once any loop fails.
	group.Go(func() error {
		<-ctx.Done()
		_ = c.Close()
		return nil
	})

	group.Go(func() error {
		return c.receiveLoop(ctx)
	})

	group.Go(func() error {
		return c.dispatchLoop(ctx)
	})

	group.Go(func() error {
		return c.sendLoop(ctx)
	})

	err := group.Wait()
	_ = c.Close()

	if err != nil && !isExpectedClose(err) {
		c.logger.Error("connection closed with error", "id", c.id, "addr", c.remoteAddr, "error", err)
		return err
	}

	c.logger.Info("connection closed", "id", c.id, "addr", c.remoteAddr)
	return nil
}

// receiveLoop reads frames off the wire: a 6-byte header, then exactly
// the payload length it announces. Completed packets are stamped and
// handed to the dispatch loop through the inbound queue.
func (c *Conn) receiveLoop(ctx context.Context) error {
	header := make([]byte, HeaderSize)

	for {
		start := time.Now()

		if _, err := io.ReadFull(c.raw, header); err != nil {
			return c.classifySocketError(err)
		}

		h, err := DecodeHeader(header)
		if err != nil {
			// The framing cannot be trusted past this point.
			return err
		}

		payload := make([]byte, h.Length)
		if _, err := io.ReadFull(c.raw, payload); err != nil {
			return c.classifySocketError(err)
		}

		packet := &Packet{
			Payload:    payload,
			Header:     h,
			ReceivedAt: time.Now(),
		}

		select {
		case c.inbound <- packet:
		case <-ctx.Done():
			return ctx.Err()
		}

		c.profile.listener.Store(int64(time.Since(start)))
	}
}

// dispatchLoop consumes the inbound queue. Pings are answered straight
// on the socket so they never wait behind application traffic; pongs
// complete a pending heartbeat; everything else goes to the packet
// handlers, whose failure tears the connection down.
func (c *Conn) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet := <-c.inbound:
			start := time.Now()

			if err := c.dispatch(packet); err != nil {
				return err
			}

			c.profile.processor.Store(int64(time.Since(start)))
		}
	}
}

func (c *Conn) dispatch(packet *Packet) error {
	switch packet.Header.Format {
	case FormatHeartbeatPing:
		return c.writePacket(FormatHeartbeatPong, nil)

	case FormatHeartbeatPong:
		if c.hb != nil {
			c.hb.complete(packet.ReceivedAt)
		}
		return nil

	default:
		if c.limiter != nil && !c.limiter.Allow() {
			c.logger.Warn("rate limit exceeded, dropping packet", "id", c.id, "addr", c.remoteAddr)
			return nil
		}
		if c.onPacket == nil {
			return nil
		}
		if err := c.onPacket(packet, c); err != nil {
			return errors.Wrap(err, "packet handler")
		}
		return nil
	}
}

// sendLoop drains the outbound queue, framing each payload as RAW. On
// client-side connections it also owns the heartbeat ticker: at most one
// ping per interval, and only when the previous one has been answered.
func (c *Conn) sendLoop(ctx context.Context) error {
	var tick <-chan time.Time
	if c.hb != nil {
		ticker := time.NewTicker(c.opts.heartbeatInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-tick:
			if err := c.hb.ping(c); err != nil {
				return err
			}

		case payload := <-c.outbound:
			start := time.Now()

			if err := c.writePacket(FormatRaw, payload); err != nil {
				return err
			}

			c.profile.sender.Store(int64(time.Since(start)))
		}
	}
}

// writePacket frames and writes one packet to the socket. Heartbeat
// frames take this path directly from their loop, skipping the outbound
// queue, which is why writes need the mutex.
func (c *Conn) writePacket(format PacketFormat, payload []byte) error {
	frame, err := EncodePacket(format, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	_, err = c.raw.Write(frame)
	c.writeMu.Unlock()

	if err != nil {
		return c.classifySocketError(err)
	}
	return nil
}

// classifySocketError sorts socket failures into the teardown taxonomy:
// a clean close or reset by the peer ends the connection quietly, any
// error after the local side closed is post-shutdown noise, and
// everything else is unexpected and propagates.
func (c *Conn) classifySocketError(err error) error {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return errPeerClosed

	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		c.logger.Debug("peer reset", "id", c.id, "addr", c.remoteAddr, "error", err)
		return errPeerReset

	case c.closed.Load(), errors.Is(err, net.ErrClosed):
		return net.ErrClosed

	default:
		return errors.Wrap(err, "socket")
	}
}

func isExpectedClose(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, errPeerClosed) ||
		errors.Is(err, errPeerReset)
}

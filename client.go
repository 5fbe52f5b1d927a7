package tcpnet

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Client owns a single connection to a server. On top of the worker
// triple it runs an active heartbeat cycle: the send loop pings every
// heartbeat interval, the server answers, and the measured round trip
// is exposed through Latency.
type Client struct {
	addr   string
	opts   options
	logger Logger

	events clientEvents
	hb     heartbeat

	conn *Conn
}

// NewClient creates a client for the server at addr ("host:port").
// Nothing is dialed until Connect.
func NewClient(addr string, opt ...Option) *Client {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	return &Client{
		addr:   addr,
		opts:   opts,
		logger: opts.logger,
	}
}

// OnConnect registers a handler fired when the connection is established.
func (c *Client) OnConnect(fn func()) {
	c.events.onConnect(fn)
}

// OnDisconnect registers a handler fired exactly once when the
// connection goes away, whichever side initiated it.
func (c *Client) OnDisconnect(fn func()) {
	c.events.onDisconnect(fn)
}

// OnPacket registers a handler for application packets, run in
// registration order on the dispatch loop. A non-nil error tears the
// connection down.
func (c *Client) OnPacket(fn ClientPacketHandler) {
	c.events.onPacket(fn)
}

// Connect dials the server, fires on_connect, and starts the worker
// triple. The context bounds the dial only; the connection itself lives
// until Disconnect or a socket failure.
func (c *Client) Connect(ctx context.Context) error {
	var dialer net.Dialer
	raw, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return errors.Wrap(err, "dial")
	}

	tcp := raw.(*net.TCPConn)
	_ = tcp.SetNoDelay(true)

	c.hb.reset()

	conn := newConn(context.Background(), tcp, 0, c.opts)
	conn.hb = &c.hb
	conn.onPacket = func(packet *Packet, _ *Conn) error {
		return c.events.triggerPacket(packet)
	}
	conn.onClose = func(*Conn) {
		c.events.triggerDisconnect()
	}
	c.conn = conn

	c.events.triggerConnect()

	go func() {
		if err := conn.run(); err != nil {
			c.logger.Error("connection failed", "addr", c.addr, "error", err)
		}
	}()

	return nil
}

// Disconnect closes the connection and waits for its loops to exit.
// Safe to call multiple times.
func (c *Client) Disconnect() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	<-c.conn.done
}

// Write queues an application payload without blocking. See Conn.Write.
func (c *Client) Write(payload []byte) error {
	if c.conn == nil {
		return ErrConnectionClosed
	}
	return c.conn.Write(payload)
}

// WriteBlocking queues an application payload, waiting for queue space.
// See Conn.WriteBlocking.
func (c *Client) WriteBlocking(ctx context.Context, payload []byte) error {
	if c.conn == nil {
		return ErrConnectionClosed
	}
	return c.conn.WriteBlocking(ctx, payload)
}

// Latency returns the most recently measured heartbeat round trip. Zero
// until the first pong arrives.
func (c *Client) Latency() time.Duration {
	return c.hb.roundTrip()
}

// Profile returns the connection's loop timings. Zero before Connect.
func (c *Client) Profile() ConnectionProfile {
	if c.conn == nil {
		return ConnectionProfile{}
	}
	return c.conn.Profile()
}

// IsConnected reports whether the client currently has a live connection.
func (c *Client) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// heartbeat tracks one outstanding ping at a time. The send loop calls
// ping on its ticker; the dispatch loop calls complete when the pong
// arrives. All fields are atomic: the two loops and Latency readers
// touch them concurrently.
type heartbeat struct {
	pending atomic.Bool
	sentAt  atomic.Int64
	latency atomic.Int64
}

// ping sends a heartbeat ping unless one is still in flight. It writes
// straight to the socket, ahead of any queued application payloads.
func (h *heartbeat) ping(c *Conn) error {
	if h.pending.Load() {
		return nil
	}

	h.pending.Store(true)
	h.sentAt.Store(time.Now().UnixNano())
	return c.writePacket(FormatHeartbeatPing, nil)
}

// complete resolves the pending ping against the pong's receive time.
// An unsolicited pong is ignored.
func (h *heartbeat) complete(receivedAt time.Time) {
	if !h.pending.Swap(false) {
		return
	}
	h.latency.Store(receivedAt.UnixNano() - h.sentAt.Load())
}

func (h *heartbeat) roundTrip() time.Duration {
	return time.Duration(h.latency.Load())
}

func (h *heartbeat) reset() {
	h.pending.Store(false)
	h.sentAt.Store(0)
	h.latency.Store(0)
}

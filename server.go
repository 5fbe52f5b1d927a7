package tcpnet

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Server listens for TCP connections and runs a worker triple for each
// one. Handlers are registered before Start and fire synchronously on
// the connection's dispatch loop (packets) or on whichever goroutine
// observed the event (lifecycle).
type Server struct {
	addr   string
	opts   options
	logger Logger

	listener *net.TCPListener

	// sem bounds the number of simultaneously live connections when
	// MaxConnectionsOption is set. The accept loop holds a permit per
	// connection; teardown returns it.
	sem *semaphore.Weighted

	events serverEvents

	mu     sync.Mutex
	conns  map[uint64]*Conn
	nextID atomic.Uint64

	packetCount atomic.Int64

	ctx        context.Context
	cancel     context.CancelFunc
	running    atomic.Bool
	acceptDone chan struct{}
	acceptErr  error // written by the accept loop before acceptDone closes
}

// NewServer creates a server that will listen on addr ("host:port").
// Nothing is bound until Start.
func NewServer(addr string, opt ...Option) *Server {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	s := &Server{
		addr:       addr,
		opts:       opts,
		logger:     opts.logger,
		conns:      make(map[uint64]*Conn),
		acceptDone: make(chan struct{}),
	}

	if opts.maxConnections > 0 {
		s.sem = semaphore.NewWeighted(int64(opts.maxConnections))
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// OnReady registers a handler fired once the server is listening.
func (s *Server) OnReady(fn func()) {
	s.events.onReady(fn)
}

// OnConnect registers a handler fired for every accepted connection.
func (s *Server) OnConnect(fn ConnHandler) {
	s.events.onConnect(fn)
}

// OnDisconnect registers a handler fired exactly once per connection
// teardown, whichever side initiated it.
func (s *Server) OnDisconnect(fn ConnHandler) {
	s.events.onDisconnect(fn)
}

// OnPacket registers a handler for application packets. Handlers run in
// registration order on the receiving connection's dispatch loop; keep
// them fast, they delay every later packet on that connection. A non-nil
// error tears the connection down.
func (s *Server) OnPacket(fn PacketHandler) {
	s.events.onPacket(fn)
}

// Start binds the listener, fires on_ready, and begins accepting
// connections on a background goroutine.
func (s *Server) Start() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", s.addr)
	if err != nil {
		return errors.Wrap(err, "resolve address")
	}

	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}

	s.listener = listener
	s.running.Store(true)

	s.logger.Info("server listening", "addr", listener.Addr())
	s.events.triggerReady()

	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer close(s.acceptDone)

	for {
		if s.sem != nil {
			// Parks here while the connection cap is saturated; further
			// inbound connections wait in the OS backlog. Stop cancels
			// the context to unblock a parked acquire.
			if err := s.sem.Acquire(s.ctx, 1); err != nil {
				return
			}
		}

		raw, err := s.listener.AcceptTCP()
		if err != nil {
			if s.sem != nil {
				s.sem.Release(1)
			}
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			// Not a shutdown: something is wrong with the listener
			// itself. Surfaced through Stop.
			s.logger.Error("accept failed", "error", err)
			s.acceptErr = errors.Wrap(err, "accept")
			return
		}

		_ = raw.SetNoDelay(true)
		s.startConn(raw)
	}
}

func (s *Server) startConn(raw *net.TCPConn) {
	id := s.nextID.Add(1)
	conn := newConn(s.ctx, raw, id, s.opts)

	conn.onPacket = func(packet *Packet, cn *Conn) error {
		s.packetCount.Add(1)
		return s.events.triggerPacket(packet, cn)
	}
	conn.onClose = func(cn *Conn) {
		s.removeConn(cn)
	}

	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()

	s.events.triggerConnect(conn)

	go func() {
		if err := conn.run(); err != nil {
			s.logger.Error("connection failed", "id", conn.ID(), "addr", conn.RemoteAddr(), "error", err)
		}
	}()
}

func (s *Server) removeConn(conn *Conn) {
	s.mu.Lock()
	delete(s.conns, conn.id)
	s.mu.Unlock()

	s.events.triggerDisconnect(conn)

	if s.sem != nil {
		s.sem.Release(1)
	}
}

// Stop shuts the server down: stops accepting, waits for the accept
// loop, then closes every live connection and waits for its three loops
// to exit. Call it once; repeated or concurrent calls are the caller's
// responsibility. Returns the accept loop's error, if it died from one.
func (s *Server) Stop() error {
	s.running.Store(false)
	s.cancel()

	if s.listener != nil {
		_ = s.listener.Close()
		<-s.acceptDone
	}

	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	for _, conn := range conns {
		<-conn.done
	}

	s.logger.Info("server stopped", "addr", s.addr)
	return s.acceptErr
}

// Addr returns the listener's address, or nil before Start. Useful when
// listening on an ephemeral port.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connections returns a snapshot of the currently live connections.
func (s *Server) Connections() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := make([]*Conn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	return conns
}

// ConnectionCount returns the number of currently live connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// PacketCount returns the number of application packets dispatched
// across all connections since the last reset. This is an observability
// hook for throughput reporting, not part of the protocol.
func (s *Server) PacketCount() int64 {
	return s.packetCount.Load()
}

// ResetPacketCount zeroes the packet counter and returns the old value.
func (s *Server) ResetPacketCount() int64 {
	return s.packetCount.Swap(0)
}

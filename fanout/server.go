package fanout

import (
	"errors"
	"io"

	"github.com/ardnew/usb2sock/metrics"
	"github.com/ardnew/usb2sock/pkg"
)

// discardSize is the scratch buffer used to drain client input.
const discardSize = 256

// maxDrainReads bounds the reads spent on one client per DrainInbound call.
const maxDrainReads = 64

// Server distributes each frame to every registered client. All methods
// must be called from the same goroutine. No method blocks.
type Server struct {
	ln      Listener
	reg     *Registry
	metrics *metrics.Metrics
	onJoin  func(index int, addr string)
	discard [discardSize]byte
}

// Option configures a [Server].
type Option func(*Server)

// WithCapacity sets the client registry capacity.
func WithCapacity(n int) Option {
	return func(s *Server) { s.reg = NewRegistry(n) }
}

// WithMetrics records client and byte counts to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithJoinHook calls fn with the index and address of every registered client.
func WithJoinHook(fn func(index int, addr string)) Option {
	return func(s *Server) { s.onJoin = fn }
}

// NewServer wraps ln. The server owns ln and every accepted socket.
func NewServer(ln Listener, opts ...Option) *Server {
	s := &Server{ln: ln}
	for _, opt := range opts {
		opt(s)
	}
	if s.reg == nil {
		s.reg = NewRegistry(DefaultCapacity)
	}
	return s
}

// Addr returns the listener's local address.
func (s *Server) Addr() string {
	return s.ln.Addr()
}

// Len returns the number of connected clients.
func (s *Server) Len() int {
	return s.reg.Len()
}

// AcceptPending registers every connection waiting on the listener. A
// connection arriving while the registry is full is closed.
func (s *Server) AcceptPending() {
	for {
		sock, addr, err := s.ln.Accept()
		switch {
		case err == nil:
		case errors.Is(err, pkg.ErrWouldBlock):
			return
		case errors.Is(err, pkg.ErrAddressMismatch):
			pkg.LogWarn(pkg.ComponentFanout, "accepted peer with wrong address family",
				"client", addr)
			s.metrics.RecordReject(metrics.ReasonAddress)
			continue
		default:
			pkg.LogWarn(pkg.ComponentFanout, "accept failed", "client", addr, "error", err)
			s.metrics.RecordReject(metrics.ReasonSetup)
			return
		}

		idx, err := s.reg.Add(Client{Socket: sock, Addr: addr})
		if err != nil {
			pkg.LogWarn(pkg.ComponentFanout, "too many clients", "client", addr, "max", s.reg.Cap())
			sock.Close()
			s.metrics.RecordReject(metrics.ReasonCapacity)
			continue
		}

		pkg.LogInfo(pkg.ComponentFanout, "client connected", "index", idx, "client", addr)
		s.metrics.RecordAccept()
		s.metrics.SetClients(s.reg.Len())
		if s.onJoin != nil {
			s.onJoin(idx, addr)
		}
	}
}

// DrainInbound reads and discards whatever each client has sent. A client
// that closed its end or whose read fails is removed.
func (s *Server) DrainInbound() {
	reads := 0
	for i := 0; i < s.reg.Len(); {
		c := s.reg.At(i)
		_, err := c.Socket.Read(s.discard[:])
		switch {
		case err == nil:
			// More may be queued; read the same client again.
			if reads++; reads >= maxDrainReads {
				i, reads = i+1, 0
			}
		case errors.Is(err, pkg.ErrWouldBlock):
			i, reads = i+1, 0
		case errors.Is(err, io.EOF):
			s.drop(i, metrics.ReasonEOF, nil)
			reads = 0
		default:
			s.drop(i, metrics.ReasonReadError, err)
			reads = 0
		}
	}
}

// Broadcast writes p to every client in registry order. A client keeps
// receiving until p is fully sent or its write would block, at which point
// the rest of p is dropped for that client. A client whose write fails is
// removed. Broadcast returns the total bytes written across clients.
func (s *Server) Broadcast(p []byte) int {
	total := 0
	for i := 0; i < s.reg.Len(); {
		c := s.reg.At(i)
		off := 0
		removed := false
		for off < len(p) {
			n, err := c.Socket.Write(p[off:])
			off += n
			total += n
			if err != nil {
				if !errors.Is(err, pkg.ErrWouldBlock) {
					s.drop(i, metrics.ReasonWriteErr, err)
					removed = true
				}
				break
			}
			if n == 0 {
				break
			}
		}
		if !removed {
			i++
		}
	}
	s.metrics.RecordSent(total)
	return total
}

// Close closes every client and the listener.
func (s *Server) Close() error {
	n := s.reg.CloseAll()
	for range n {
		s.metrics.RecordDrop(metrics.ReasonShutdown)
	}
	s.metrics.SetClients(0)
	return s.ln.Close()
}

func (s *Server) drop(i int, reason string, cause error) {
	addr := s.reg.At(i).Addr
	if err := s.reg.Remove(i); err != nil {
		pkg.LogDebug(pkg.ComponentFanout, "client close failed", "client", addr, "error", err)
	}
	if cause != nil {
		pkg.LogInfo(pkg.ComponentFanout, "client dropped", "client", addr, "reason", reason, "error", cause)
	} else {
		pkg.LogInfo(pkg.ComponentFanout, "client dropped", "client", addr, "reason", reason)
	}
	s.metrics.RecordDrop(reason)
	s.metrics.SetClients(s.reg.Len())
}

//go:build unix

package fanout

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/ardnew/usb2sock/pkg"
)

// DefaultBacklog is the listen queue length.
const DefaultBacklog = 5

// =============================================================================
// Client Socket
// =============================================================================

// fdSocket is a non-blocking connected stream socket.
type fdSocket struct {
	fd int
}

func (s *fdSocket) Read(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	if err != nil {
		return 0, sockErr(err)
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (s *fdSocket) Write(p []byte) (int, error) {
	n, err := unix.Write(s.fd, p)
	if err != nil {
		return 0, sockErr(err)
	}
	return n, nil
}

func (s *fdSocket) Close() error {
	return unix.Close(s.fd)
}

// sockErr maps the non-blocking "try again" errnos onto [pkg.ErrWouldBlock].
func sockErr(err error) error {
	switch err {
	case unix.EAGAIN, unix.EINTR:
		return pkg.ErrWouldBlock
	}
	if err == unix.EWOULDBLOCK {
		return pkg.ErrWouldBlock
	}
	return err
}

// =============================================================================
// Listener
// =============================================================================

// fdListener is a non-blocking TCP listening socket.
type fdListener struct {
	fd     int
	family int
}

// Listen creates a non-blocking TCP listener on addr ("host:port") with
// SO_REUSEADDR set and the given backlog.
func Listen(addr string, backlog int) (Listener, error) {
	tcp, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	if backlog <= 0 {
		backlog = DefaultBacklog
	}

	family, sa := sockaddr(tcp)
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	unix.CloseOnExec(fd)

	fail := func(op string, err error) (Listener, error) {
		unix.Close(fd)
		return nil, fmt.Errorf("%s %s: %w", op, addr, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt SO_REUSEADDR", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fail("listen", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("set nonblock", err)
	}

	l := &fdListener{fd: fd, family: family}
	pkg.LogDebug(pkg.ComponentFanout, "listening", "addr", l.Addr(), "backlog", backlog)
	return l, nil
}

// Accept accepts one pending connection. A peer whose address family does
// not match the listener is closed and reported as [pkg.ErrAddressMismatch].
func (l *fdListener) Accept() (Socket, string, error) {
	nfd, sa, err := unix.Accept(l.fd)
	if err != nil {
		return nil, "", sockErr(err)
	}
	unix.CloseOnExec(nfd)

	addr := formatSockaddr(sa)
	if sockaddrFamily(sa) != l.family {
		unix.Close(nfd)
		return nil, addr, pkg.ErrAddressMismatch
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return nil, addr, fmt.Errorf("set nonblock: %w", err)
	}
	return &fdSocket{fd: nfd}, addr, nil
}

func (l *fdListener) Addr() string {
	sa, err := unix.Getsockname(l.fd)
	if err != nil {
		return ""
	}
	return formatSockaddr(sa)
}

func (l *fdListener) Close() error {
	return unix.Close(l.fd)
}

// =============================================================================
// Address Helpers
// =============================================================================

func sockaddr(tcp *net.TCPAddr) (int, unix.Sockaddr) {
	if ip4 := tcp.IP.To4(); ip4 != nil || tcp.IP == nil {
		sa := &unix.SockaddrInet4{Port: tcp.Port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: tcp.Port}
	copy(sa.Addr[:], tcp.IP.To16())
	return unix.AF_INET6, sa
}

func sockaddrFamily(sa unix.Sockaddr) int {
	switch sa.(type) {
	case *unix.SockaddrInet4:
		return unix.AF_INET
	case *unix.SockaddrInet6:
		return unix.AF_INET6
	default:
		return unix.AF_UNSPEC
	}
}

func formatSockaddr(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)).String()
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port)).String()
	default:
		return "unknown:" + strconv.Itoa(sockaddrFamily(sa))
	}
}

package fanout

import (
	"bytes"
	"errors"

	"github.com/ardnew/usb2sock/pkg"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeSocket records writes and replays scripted read results. Once the
// read script is exhausted reads would block. writeLimit caps the bytes
// accepted per Write call (0 = unlimited); room caps the total bytes the
// socket will take before writes would block (-1 = unlimited).
type fakeSocket struct {
	reads      []error
	writeLimit int
	room       int
	failAfter  int // Write calls before every write fails (0 = never)
	writes     int
	got        bytes.Buffer
	closed     bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{room: -1}
}

func (s *fakeSocket) Read(p []byte) (int, error) {
	if len(s.reads) == 0 {
		return 0, pkg.ErrWouldBlock
	}
	err := s.reads[0]
	s.reads = s.reads[1:]
	if err == nil {
		return len(p), nil
	}
	return 0, err
}

func (s *fakeSocket) Write(p []byte) (int, error) {
	s.writes++
	if s.failAfter > 0 && s.writes > s.failAfter {
		return 0, errBrokenPipe
	}
	n := len(p)
	if s.writeLimit > 0 && n > s.writeLimit {
		n = s.writeLimit
	}
	if s.room >= 0 {
		if s.room == 0 {
			return 0, pkg.ErrWouldBlock
		}
		if n > s.room {
			n = s.room
		}
		s.room -= n
	}
	s.got.Write(p[:n])
	return n, nil
}

func (s *fakeSocket) Close() error {
	s.closed = true
	return nil
}

// fakeListener hands out queued sockets, then would block.
type fakeListener struct {
	pending []*fakeSocket
	errs    []error
	closed  bool
}

func (l *fakeListener) Accept() (Socket, string, error) {
	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		return nil, "198.51.100.7:1", err
	}
	if len(l.pending) == 0 {
		return nil, "", pkg.ErrWouldBlock
	}
	s := l.pending[0]
	l.pending = l.pending[1:]
	return s, "127.0.0.1:40000", nil
}

func (l *fakeListener) Addr() string { return "127.0.0.1:18080" }

func (l *fakeListener) Close() error {
	l.closed = true
	return nil
}


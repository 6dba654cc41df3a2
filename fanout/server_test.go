package fanout

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ardnew/usb2sock/metrics"
	"github.com/ardnew/usb2sock/pkg"
)

func frame(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}

func serverWith(socks ...*fakeSocket) (*Server, *fakeListener) {
	ln := &fakeListener{pending: socks}
	srv := NewServer(ln)
	srv.AcceptPending()
	return srv, ln
}

func TestServer_AcceptPending(t *testing.T) {
	var joined []int
	ln := &fakeListener{pending: []*fakeSocket{newFakeSocket(), newFakeSocket()}}
	srv := NewServer(ln, WithJoinHook(func(i int, addr string) { joined = append(joined, i) }))

	srv.AcceptPending()

	if srv.Len() != 2 {
		t.Errorf("Len() = %d, want 2", srv.Len())
	}
	if len(joined) != 2 || joined[0] != 0 || joined[1] != 1 {
		t.Errorf("join hook indices = %v, want [0 1]", joined)
	}
	if srv.Addr() != "127.0.0.1:18080" {
		t.Errorf("Addr() = %q", srv.Addr())
	}
}

func TestServer_AcceptAtCapacity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	pending := make([]*fakeSocket, DefaultCapacity+1)
	for i := range pending {
		pending[i] = newFakeSocket()
	}
	srv := NewServer(&fakeListener{pending: pending}, WithMetrics(m))

	srv.AcceptPending()

	if srv.Len() != DefaultCapacity {
		t.Fatalf("Len() = %d, want %d", srv.Len(), DefaultCapacity)
	}
	last := pending[DefaultCapacity]
	if !last.closed {
		t.Error("connection beyond capacity was not closed")
	}
	for i, s := range pending[:DefaultCapacity] {
		if s.closed {
			t.Fatalf("registered socket %d closed", i)
		}
	}
	if got := testutil.ToFloat64(m.ClientsRejected.WithLabelValues(metrics.ReasonCapacity)); got != 1 {
		t.Errorf("rejected{capacity} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Clients); got != DefaultCapacity {
		t.Errorf("clients gauge = %v, want %d", got, DefaultCapacity)
	}
}

func TestServer_AcceptErrors(t *testing.T) {
	ok := newFakeSocket()
	ln := &fakeListener{
		pending: []*fakeSocket{ok},
		errs:    []error{pkg.ErrAddressMismatch},
	}
	srv := NewServer(ln)

	srv.AcceptPending()
	if srv.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after mismatched peer then good peer", srv.Len())
	}

	ln.errs = []error{errors.New("too many open files")}
	ln.pending = []*fakeSocket{newFakeSocket()}
	srv.AcceptPending()
	if srv.Len() != 1 {
		t.Errorf("Len() = %d, want 1; accept failure should end the pass", srv.Len())
	}
}

func TestServer_DrainInbound(t *testing.T) {
	quiet := newFakeSocket()
	chatty := newFakeSocket()
	chatty.reads = []error{nil, nil, nil}
	closed := newFakeSocket()
	closed.reads = []error{io.EOF}
	broken := newFakeSocket()
	broken.reads = []error{nil, errors.New("connection reset")}
	after := newFakeSocket()

	srv, _ := serverWith(quiet, closed, chatty, broken, after)
	srv.DrainInbound()

	if srv.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", srv.Len())
	}
	if !closed.closed || !broken.closed {
		t.Error("closed or broken client still open")
	}
	if len(chatty.reads) != 0 {
		t.Errorf("chatty client has %d unread results", len(chatty.reads))
	}
	want := []Socket{quiet, chatty, after}
	for i, s := range want {
		if srv.reg.At(i).Socket != s {
			t.Errorf("client %d is not the expected socket", i)
		}
	}
}

func TestServer_DrainInboundBounded(t *testing.T) {
	flood := newFakeSocket()
	flood.reads = make([]error, maxDrainReads*2)
	next := newFakeSocket()
	next.reads = []error{io.EOF}

	srv, _ := serverWith(flood, next)
	srv.DrainInbound()

	if got := len(flood.reads); got != maxDrainReads {
		t.Errorf("flood unread results = %d, want %d", got, maxDrainReads)
	}
	if srv.Len() != 1 {
		t.Errorf("Len() = %d, want 1; later client must still be drained", srv.Len())
	}
}

func TestServer_BroadcastFullDelivery(t *testing.T) {
	a, b := newFakeSocket(), newFakeSocket()
	b.writeLimit = 1000
	srv, _ := serverWith(a, b)

	p := frame(4096)
	if got := srv.Broadcast(p); got != 2*len(p) {
		t.Errorf("Broadcast() = %d, want %d", got, 2*len(p))
	}
	if !bytes.Equal(a.got.Bytes(), p) {
		t.Error("client a did not receive the exact frame")
	}
	if !bytes.Equal(b.got.Bytes(), p) {
		t.Errorf("client b got %d bytes via partial writes, want exact frame", b.got.Len())
	}
	if b.writes != 5 {
		t.Errorf("client b writes = %d, want 5", b.writes)
	}
}

func TestServer_BroadcastWouldBlockDropsRemainder(t *testing.T) {
	slow, fast := newFakeSocket(), newFakeSocket()
	slow.room = 1500
	srv, _ := serverWith(slow, fast)

	p := frame(4096)
	srv.Broadcast(p)
	if slow.got.Len() != 1500 {
		t.Errorf("slow client got %d bytes, want 1500", slow.got.Len())
	}
	if !bytes.Equal(fast.got.Bytes(), p) {
		t.Error("fast client did not receive the full frame")
	}

	// Next frame starts from offset 0; nothing from the last frame is queued.
	slow.room = 10
	q := frame(100)
	srv.Broadcast(q)
	if !bytes.Equal(slow.got.Bytes()[1500:], q[:10]) {
		t.Error("slow client resumed with stale data instead of the new frame's head")
	}
	if srv.Len() != 2 {
		t.Errorf("Len() = %d, want 2", srv.Len())
	}
}

func TestServer_BroadcastRemovesFailedClient(t *testing.T) {
	a, bad, c := newFakeSocket(), newFakeSocket(), newFakeSocket()
	bad.failAfter = 1
	srv, _ := serverWith(a, bad, c)

	p := frame(512)
	srv.Broadcast(p)
	if srv.Len() != 3 {
		t.Fatalf("Len() after first frame = %d, want 3", srv.Len())
	}

	srv.Broadcast(p)
	if srv.Len() != 2 {
		t.Fatalf("Len() after failed write = %d, want 2", srv.Len())
	}
	if !bad.closed {
		t.Error("failed client not closed")
	}
	want := append(append([]byte{}, p...), p...)
	if !bytes.Equal(a.got.Bytes(), want) || !bytes.Equal(c.got.Bytes(), want) {
		t.Error("clients around the removed one did not receive both frames")
	}
	if srv.reg.At(1).Socket != Socket(c) {
		t.Error("client after the removed one did not shift down")
	}
}

func TestServer_StalledClientEventuallyDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	healthy := newFakeSocket()
	stalled := newFakeSocket()
	stalled.room = 3000 // kernel buffer fills, then writes would block
	// The OS eventually reports an error for the stuck peer (a reset or a
	// send timeout). Without one the client only sees would-block and is
	// kept, losing frames.
	stalled.failAfter = 6
	tail := newFakeSocket()

	ln := &fakeListener{pending: []*fakeSocket{healthy, stalled, tail}}
	srv := NewServer(ln, WithMetrics(m))
	srv.AcceptPending()

	p := frame(2048)
	var want bytes.Buffer
	for range 10 {
		srv.Broadcast(p)
		want.Write(p)
	}

	if srv.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", srv.Len())
	}
	if !stalled.closed {
		t.Error("stalled client not dropped")
	}
	if !bytes.Equal(healthy.got.Bytes(), want.Bytes()) || !bytes.Equal(tail.got.Bytes(), want.Bytes()) {
		t.Error("healthy clients did not receive every frame in full")
	}
	if got := testutil.ToFloat64(m.ClientsDropped.WithLabelValues(metrics.ReasonWriteErr)); got != 1 {
		t.Errorf("dropped{write_error} = %v, want 1", got)
	}
}

func TestServer_Close(t *testing.T) {
	a, b := newFakeSocket(), newFakeSocket()
	srv, ln := serverWith(a, b)

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !a.closed || !b.closed || !ln.closed {
		t.Error("Close() left a socket open")
	}
	if srv.Len() != 0 {
		t.Errorf("Len() = %d, want 0", srv.Len())
	}
}

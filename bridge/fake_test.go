package bridge

import (
	"bytes"
	"context"
	"time"

	"github.com/google/gousb"

	"github.com/ardnew/usb2sock/pkg"
	"github.com/ardnew/usb2sock/usb"
)

var target = usb.DeviceInfo{Bus: 1, Address: 7, Vendor: 0x2ca3, Product: 0x001f, NumConfigs: 1}

func usbErr(code gousb.Error, sentinel error) error {
	return &pkg.TransportError{Op: "fake", Code: int(code), Desc: code.Error(), Err: sentinel, Lib: code}
}

var (
	errTimeout  = usbErr(gousb.ErrorTimeout, pkg.ErrTimeout)
	errIO       = usbErr(gousb.ErrorIO, pkg.ErrIO)
	errNoDevice = usbErr(gousb.ErrorNoDevice, pkg.ErrNoDevice)
	errPipe     = usbErr(gousb.ErrorPipe, nil)
)

// streamDesc is a configuration with one streaming interface.
func streamDesc() gousb.ConfigDesc {
	in := gousb.EndpointDesc{Address: 0x84, Number: 4, Direction: gousb.EndpointDirectionIn, TransferType: gousb.TransferTypeBulk}
	out := gousb.EndpointDesc{Address: 0x03, Number: 3, Direction: gousb.EndpointDirectionOut, TransferType: gousb.TransferTypeBulk}
	return gousb.ConfigDesc{
		Number: 1,
		Interfaces: []gousb.InterfaceDesc{{
			Number: 3,
			AltSettings: []gousb.InterfaceSetting{{
				Number:    3,
				Class:     usb.StreamClass,
				SubClass:  usb.StreamSubClass,
				Endpoints: map[gousb.EndpointAddress]gousb.EndpointDesc{in.Address: in, out.Address: out},
			}},
		}},
	}
}

// =============================================================================
// USB Fakes
// =============================================================================

type fakeTransport struct {
	devices  func(call int) []usb.DeviceInfo
	devCalls int
	openErr  error
	opens    int
	handle   *fakeHandle
	debug    []int
}

func (t *fakeTransport) Devices() ([]usb.DeviceInfo, error) {
	t.devCalls++
	if t.devices == nil {
		return []usb.DeviceInfo{target}, nil
	}
	return t.devices(t.devCalls), nil
}

func (t *fakeTransport) Open(info usb.DeviceInfo) (usb.Handle, error) {
	t.opens++
	if t.openErr != nil {
		return nil, t.openErr
	}
	return t.handle, nil
}

func (t *fakeTransport) SetDebug(level int) { t.debug = append(t.debug, level) }

func (t *fakeTransport) Close() error { return nil }

type fakeHandle struct {
	active    []int // successive ActiveConfig results
	activeErr error
	setErr    error
	set       []int
	desc      gousb.ConfigDesc
	descErr   error
	claimErr  error
	claimed   []usb.Endpoints
	sess      *fakeSession
	closed    bool
}

func (h *fakeHandle) ActiveConfig() (int, error) {
	if h.activeErr != nil {
		return 0, h.activeErr
	}
	if len(h.active) == 0 {
		return 1, nil
	}
	n := h.active[0]
	h.active = h.active[1:]
	return n, nil
}

func (h *fakeHandle) SetConfig(n int) error {
	h.set = append(h.set, n)
	return h.setErr
}

func (h *fakeHandle) ConfigDesc(n int) (gousb.ConfigDesc, error) {
	return h.desc, h.descErr
}

func (h *fakeHandle) Claim(ep usb.Endpoints) (usb.Session, error) {
	if h.claimErr != nil {
		return nil, h.claimErr
	}
	h.claimed = append(h.claimed, ep)
	return h.sess, nil
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

type readStep struct {
	n   int
	err error
}

// fakeSession replays scripted reads. When the script runs out it cancels
// the run and reports a cancellation.
type fakeSession struct {
	writeN   int
	writeErr error
	written  []byte
	reads    []readStep
	readCall int
	cancel   context.CancelFunc
	closed   bool
}

func (s *fakeSession) Write(ctx context.Context, p []byte) (int, error) {
	if s.writeErr == nil && s.writeN == 0 {
		s.written = append(s.written, p...)
		return len(p), nil
	}
	s.written = append(s.written, p[:s.writeN]...)
	return s.writeN, s.writeErr
}

func (s *fakeSession) Read(ctx context.Context, p []byte) (int, error) {
	if _, ok := ctx.Deadline(); !ok {
		return 0, errPipe
	}
	call := s.readCall
	s.readCall++
	if call >= len(s.reads) {
		if s.cancel != nil {
			s.cancel()
		}
		return 0, usbErr(gousb.ErrorInterrupted, nil)
	}
	step := s.reads[call]
	for i := range p[:step.n] {
		p[i] = byte(call + i)
	}
	return step.n, step.err
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// pattern is what fakeSession writes for read call number call.
func pattern(call, n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(call + i)
	}
	return p
}

type fakeHint struct {
	polls  [][]usb.HotplugEvent
	closed bool
}

func (h *fakeHint) Poll() []usb.HotplugEvent {
	if len(h.polls) == 0 {
		return nil
	}
	evts := h.polls[0]
	h.polls = h.polls[1:]
	return evts
}

func (h *fakeHint) Close() error {
	h.closed = true
	return nil
}

// =============================================================================
// Fan-out Fake
// =============================================================================

type fakeFan struct {
	clients  int
	accepts  int
	drains   int
	received bytes.Buffer
	frames   int
}

func (f *fakeFan) AcceptPending() { f.accepts++ }
func (f *fakeFan) DrainInbound()  { f.drains++ }
func (f *fakeFan) Len() int       { return f.clients }

func (f *fakeFan) Broadcast(p []byte) int {
	f.frames++
	f.received.Write(p)
	return len(p) * f.clients
}

// =============================================================================
// Helpers
// =============================================================================

type sleepRecorder struct {
	slept []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.slept = append(r.slept, d)
	return nil
}

func testOptions() Options {
	o := DefaultOptions()
	o.FrameSize = 16 * 1024
	return o
}

package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardnew/usb2sock/metrics"
	"github.com/ardnew/usb2sock/pkg"
	"github.com/ardnew/usb2sock/pkg/usbid"
	"github.com/ardnew/usb2sock/usb"
)

// =============================================================================
// Results
// =============================================================================

// Outcome is the result of offering one device to the supervisor.
type Outcome int

// Outcome values.
const (
	NotThisDevice Outcome = iota // Identity does not match, keep scanning
	Matched                      // Identity matches, attach
	Abandoned                    // Session ended, rescan
	Failed                       // Session ended with a fatal error
	Stopped                      // Context cancelled
)

// String returns a string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case NotThisDevice:
		return "not this device"
	case Matched:
		return "matched"
	case Abandoned:
		return "abandoned"
	case Failed:
		return "failed"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result pairs an [Outcome] with the error behind it, if any.
type Result struct {
	Outcome Outcome
	Err     error
}

// =============================================================================
// Supervisor
// =============================================================================

// Supervisor scans for the device, runs a session on it, and rescans after
// the session is abandoned. Clients stay connected across sessions.
type Supervisor struct {
	tr      usb.Transport
	fan     Fanout
	hint    usb.Hint
	status  *Status
	metrics *metrics.Metrics
	names   *usbid.Database
	opts    Options
	buf     []byte
	sleep   sleepFunc
}

// Option configures a [Supervisor].
type Option func(*Supervisor)

// WithHint uses h to cut the device-absent wait short on arrival.
func WithHint(h usb.Hint) Option {
	return func(s *Supervisor) { s.hint = h }
}

// WithMetrics records session and frame counts to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithNames annotates device log lines with usb.ids names.
func WithNames(db *usbid.Database) Option {
	return func(s *Supervisor) { s.names = db }
}

// withSleep replaces the backoff sleep.
func withSleep(fn sleepFunc) Option {
	return func(s *Supervisor) { s.sleep = fn }
}

// NewSupervisor bridges devices from tr to fan, reporting on status.
func NewSupervisor(tr usb.Transport, fan Fanout, status *Status, opts Options, options ...Option) *Supervisor {
	s := &Supervisor{
		tr:     tr,
		fan:    fan,
		hint:   usb.NopHint{},
		status: status,
		opts:   opts.withDefaults(),
		sleep:  sleep,
	}
	for _, o := range options {
		o(s)
	}
	s.buf = make([]byte, s.opts.FrameSize)
	return s
}

// Run scans and streams until ctx is cancelled, returning nil, or until a
// session fails fatally, returning its error.
func (s *Supervisor) Run(ctx context.Context) error {
	pkg.LogInfo(pkg.ComponentBridge, "supervisor started", "target", s.opts.Identity.String())
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.fan.AcceptPending()
		s.fan.DrainInbound()

		res := s.Scan(ctx)
		switch res.Outcome {
		case Stopped:
			return nil
		case Failed:
			return res.Err
		}

		s.status.Waiting(s.fan.Len())
		if err := s.wait(ctx); err != nil {
			return nil
		}
	}
}

// Scan offers each attached device in turn and attaches to the first match.
// It returns [NotThisDevice] when no device matched.
func (s *Supervisor) Scan(ctx context.Context) Result {
	devs, err := s.tr.Devices()
	if err != nil {
		pkg.LogWarn(pkg.ComponentUSB, "device list failed", pkg.ErrorAttrs(err)...)
	}
	for _, dev := range devs {
		if s.identify(dev) != Matched {
			continue
		}
		return s.attach(ctx, dev)
	}
	return Result{Outcome: NotThisDevice}
}

func (s *Supervisor) identify(dev usb.DeviceInfo) Outcome {
	if s.opts.Identity.Matches(dev) {
		return Matched
	}
	return NotThisDevice
}

// attach takes dev from Opened to Streaming and runs the pump. Every
// resource acquired here is released before it returns.
func (s *Supervisor) attach(ctx context.Context, dev usb.DeviceInfo) Result {
	log := []any{"device", s.describe(dev)}

	h, err := s.tr.Open(dev)
	if err != nil {
		pkg.LogWarn(pkg.ComponentUSB, "open failed", append(log, pkg.ErrorAttrs(err)...)...)
		return s.finish(ctx, err)
	}
	defer func() {
		if err := h.Close(); err != nil {
			pkg.LogDebug(pkg.ComponentUSB, "close failed", append(log, pkg.ErrorAttrs(err)...)...)
		}
	}()

	cfg, err := s.configure(h, log)
	if err != nil {
		return s.finish(ctx, err)
	}

	desc, err := h.ConfigDesc(cfg)
	if err != nil {
		pkg.LogWarn(pkg.ComponentUSB, "config descriptor unavailable",
			append(log, pkg.ErrorAttrs(err)...)...)
		return s.finish(ctx, err)
	}

	ep, err := usb.ResolveEndpoints(desc)
	if err != nil {
		pkg.LogWarn(pkg.ComponentUSB, "no streaming interface", append(log, "error", err)...)
		return s.finish(ctx, err)
	}

	sess, err := h.Claim(ep)
	if err != nil {
		pkg.LogWarn(pkg.ComponentUSB, "claim failed",
			append(log, append([]any{"iface", ep.Interface}, pkg.ErrorAttrs(err)...)...)...)
		return s.finish(ctx, err)
	}
	defer sess.Close()

	pkg.LogInfo(pkg.ComponentUSB, "interface claimed",
		append(log, "iface", ep.Interface,
			"in", fmt.Sprintf("%#02x", uint8(ep.In.Address)),
			"out", fmt.Sprintf("%#02x", uint8(ep.Out.Address)))...)
	s.checkClaimed(h, dev, log)

	p := &pump{
		sess:    sess,
		tr:      s.tr,
		fan:     s.fan,
		status:  s.status,
		metrics: s.metrics,
		opts:    s.opts,
		buf:     s.buf,
		sleep:   s.sleep,
	}
	return s.finish(ctx, p.run(ctx))
}

// configure returns the configuration to resolve endpoints in, selecting
// the configured one when the device is unconfigured.
func (s *Supervisor) configure(h usb.Handle, log []any) (int, error) {
	want := s.opts.Configuration
	cfg, err := h.ActiveConfig()
	switch {
	case err != nil:
		pkg.LogWarn(pkg.ComponentUSB, "get configuration failed",
			append(log, pkg.ErrorAttrs(err)...)...)
		return want, nil
	case cfg == 0:
		pkg.LogInfo(pkg.ComponentUSB, "device unconfigured, setting configuration",
			append(log, "cfg", want)...)
		if err := h.SetConfig(want); err != nil {
			pkg.LogError(pkg.ComponentUSB, "set configuration failed",
				append(log, append([]any{"cfg", want}, pkg.ErrorAttrs(err)...)...)...)
			return 0, err
		}
		return want, nil
	default:
		pkg.LogDebug(pkg.ComponentUSB, "device configured", append(log, "cfg", cfg)...)
		return cfg, nil
	}
}

// checkClaimed re-reads the configuration now that it can no longer change
// underneath us. Surprises are logged, not fatal.
func (s *Supervisor) checkClaimed(h usb.Handle, dev usb.DeviceInfo, log []any) {
	cfg, err := h.ActiveConfig()
	if err != nil {
		pkg.LogWarn(pkg.ComponentUSB, "get configuration after claim failed",
			append(log, pkg.ErrorAttrs(err)...)...)
		return
	}
	if cfg != s.opts.Configuration || dev.NumConfigs != 1 {
		pkg.LogWarn(pkg.ComponentUSB, "unexpected configuration, continuing",
			append(log, "cfg", cfg, "num_cfg", dev.NumConfigs)...)
	}
}

// finish maps the error that ended a session onto a [Result].
func (s *Supervisor) finish(ctx context.Context, err error) Result {
	var res Result
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		res = Result{Outcome: Stopped}
		s.metrics.RecordSession(metrics.SessionStopped)
	case pkg.Classify(err) == pkg.DispositionFatal:
		res = Result{Outcome: Failed, Err: err}
		s.metrics.RecordSession(metrics.SessionFatal)
	default:
		res = Result{Outcome: Abandoned, Err: err}
		s.metrics.RecordSession(metrics.SessionAbandoned)
	}
	pkg.LogDebug(pkg.ComponentBridge, "session ended", "outcome", res.Outcome.String())
	return res
}

// wait sleeps out the device-absent backoff in slices, polling the hint
// and picking up new clients. An arrival ends the wait early.
func (s *Supervisor) wait(ctx context.Context) error {
	for left := s.opts.NoDeviceBackoff; left > 0; left -= hintSlice {
		events := s.hint.Poll()
		for _, evt := range events {
			pkg.LogDebug(pkg.ComponentHotplug, "hotplug event",
				"action", evt.Action.String(), "devpath", evt.DevPath)
			s.status.Hotplug(evt.Action == usb.HotplugArrived)
		}
		if usb.Arrived(events) {
			return nil
		}
		s.fan.AcceptPending()
		if err := s.sleep(ctx, min(left, hintSlice)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) describe(dev usb.DeviceInfo) string {
	if s.names == nil {
		return dev.String()
	}
	return fmt.Sprintf("%03d/%03d %s", dev.Bus, dev.Address, s.names.Describe(dev.Vendor, dev.Product))
}

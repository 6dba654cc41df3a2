package bridge

import (
	"context"
	"errors"

	"github.com/google/gousb"

	"github.com/ardnew/usb2sock/metrics"
	"github.com/ardnew/usb2sock/pkg"
	"github.com/ardnew/usb2sock/usb"
)

// handshakeDebug is the libusb verbosity used while sending the token.
// A timeout there is expected and libusb would otherwise warn about it.
const handshakeDebug = 1

// pump drives one claimed session: handshake, then read and broadcast
// until a non-benign outcome.
type pump struct {
	sess    usb.Session
	tr      usb.Transport
	fan     Fanout
	status  *Status
	metrics *metrics.Metrics
	opts    Options
	buf     []byte
	sleep   sleepFunc
}

// handshake sends the token. A write that times out with nothing sent
// means the device is already streaming.
func (p *pump) handshake(ctx context.Context) error {
	token := p.opts.Token

	p.tr.SetDebug(min(p.opts.Debug, handshakeDebug))
	wctx, cancel := context.WithTimeout(ctx, p.opts.HandshakeTimeout)
	n, err := p.sess.Write(wctx, token)
	cancel()
	p.tr.SetDebug(p.opts.Debug)

	switch {
	case err == nil && n == len(token):
		pkg.LogDebug(pkg.ComponentBridge, "handshake accepted", "sent", n)
		return nil
	case err == nil:
		pkg.LogError(pkg.ComponentBridge, "handshake short write", "sent", n, "want", len(token))
		return &pkg.TransportError{
			Op:   "handshake",
			Code: int(gousb.ErrorTimeout),
			Desc: "short write",
			Err:  pkg.ErrShortHandshake,
		}
	case errors.Is(err, pkg.ErrTimeout) && n == 0:
		pkg.LogDebug(pkg.ComponentBridge, "handshake ignored, device already streaming")
		return nil
	case errors.Is(err, pkg.ErrTimeout):
		pkg.LogError(pkg.ComponentBridge, "handshake timed out mid-token",
			append([]any{"sent", n, "want", len(token)}, pkg.ErrorAttrs(err)...)...)
		te, _ := pkg.AsTransportError(err)
		partial := &pkg.TransportError{Op: "handshake", Err: pkg.ErrPartialHandshake}
		if te != nil {
			partial.Code, partial.Desc = te.Code, te.Desc
		}
		return partial
	}

	if errors.Is(err, pkg.ErrIO) {
		p.status.Abandoned("send:io")
	}
	pkg.LogWarn(pkg.ComponentBridge, "handshake failed",
		append([]any{"sent", n}, pkg.ErrorAttrs(err)...)...)
	return err
}

// run performs the handshake and pumps frames. It returns ctx.Err() when
// ctx is cancelled, otherwise the error that ended the session.
func (p *pump) run(ctx context.Context) error {
	if err := p.handshake(ctx); err != nil {
		return err
	}

	for count := 0; ; count++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		p.fan.AcceptPending()
		p.fan.DrainInbound()

		rctx, cancel := context.WithTimeout(ctx, p.opts.IOTimeout)
		n, err := p.sess.Read(rctx, p.buf)
		cancel()

		if n > 0 {
			p.deliver(count, n)
		}
		if err == nil {
			continue
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		switch pkg.Classify(err) {
		case pkg.DispositionBenign:
			if n > 0 {
				continue
			}
			p.status.NoSignal()
			p.metrics.RecordNoSignal()
			if err := p.sleep(ctx, p.opts.NoSignalBackoff); err != nil {
				return err
			}
			count = 0
		case pkg.DispositionAbandon:
			p.status.Abandoned(abandonTag(err))
			pkg.LogWarn(pkg.ComponentBridge, "session abandoned", pkg.ErrorAttrs(err)...)
			return err
		default:
			pkg.LogError(pkg.ComponentBridge, "bulk read failed",
				append([]any{"received", n}, pkg.ErrorAttrs(err)...)...)
			return err
		}
	}
}

func (p *pump) deliver(count, n int) {
	p.status.Frame(p.fan.Len(), count, n)
	p.metrics.RecordFrame(n)
	p.fan.Broadcast(p.buf[:n])
}

// abandonTag names an abandon cause for the status line.
func abandonTag(err error) string {
	switch {
	case errors.Is(err, pkg.ErrIO):
		return "wait:io"
	case errors.Is(err, pkg.ErrNoDevice):
		return "wait:no dev"
	case errors.Is(err, pkg.ErrNotFound):
		return "wait:not found"
	default:
		return "wait"
	}
}

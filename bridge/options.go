package bridge

import (
	"context"
	"time"

	"github.com/ardnew/usb2sock/usb"
)

// DefaultToken is the handshake that starts the device's stream.
var DefaultToken = []byte("RMVT")

// Defaults.
const (
	DefaultFrameSize        = 128 * 1024
	DefaultConfiguration    = 1
	DefaultIOTimeout        = 250 * time.Millisecond
	DefaultHandshakeTimeout = 50 * time.Millisecond
	DefaultBackoff          = 500 * time.Millisecond
	DefaultDebug            = 2

	// hintSlice is how often the device-absent wait polls the hotplug hint.
	hintSlice = 50 * time.Millisecond
)

// Options tune the supervisor and its stream pump.
type Options struct {
	Identity         usb.Identity  // Target vendor/product
	Configuration    int           // Configuration set when the device reports 0
	FrameSize        int           // Bulk read buffer size
	IOTimeout        time.Duration // Bulk read timeout
	HandshakeTimeout time.Duration // Handshake write timeout
	Token            []byte        // Handshake token
	Debug            int           // libusb verbosity outside the handshake
	NoDeviceBackoff  time.Duration // Wait between scans with no session
	NoSignalBackoff  time.Duration // Wait after a read with no data
}

// DefaultOptions returns the options for the stock device.
func DefaultOptions() Options {
	return Options{
		Identity:         usb.Identity{Vendor: 0x2ca3, Product: 0x001f},
		Configuration:    DefaultConfiguration,
		FrameSize:        DefaultFrameSize,
		IOTimeout:        DefaultIOTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		Token:            DefaultToken,
		Debug:            DefaultDebug,
		NoDeviceBackoff:  DefaultBackoff,
		NoSignalBackoff:  DefaultBackoff,
	}
}

// withDefaults fills zero fields from [DefaultOptions].
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Identity == (usb.Identity{}) {
		o.Identity = d.Identity
	}
	if o.Configuration <= 0 {
		o.Configuration = d.Configuration
	}
	if o.FrameSize <= 0 {
		o.FrameSize = d.FrameSize
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = d.IOTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	if len(o.Token) == 0 {
		o.Token = d.Token
	}
	if o.NoDeviceBackoff <= 0 {
		o.NoDeviceBackoff = d.NoDeviceBackoff
	}
	if o.NoSignalBackoff <= 0 {
		o.NoSignalBackoff = d.NoSignalBackoff
	}
	return o
}

// Fanout is the client side of the bridge. All calls are non-blocking.
type Fanout interface {
	AcceptPending()
	DrainInbound()
	Broadcast(p []byte) int
	Len() int
}

// sleepFunc blocks for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

//go:build !unix

package fanout

import "github.com/ardnew/usb2sock/pkg"

// DefaultBacklog is the listen queue length.
const DefaultBacklog = 5

// Listen is unavailable on this platform.
func Listen(addr string, backlog int) (Listener, error) {
	return nil, pkg.ErrNotSupported
}

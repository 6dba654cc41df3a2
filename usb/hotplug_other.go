//go:build !linux

package usb

import "github.com/ardnew/usb2sock/pkg"

// NewHotplugHint returns a [NopHint] and [pkg.ErrNotSupported]; hotplug
// notifications are only implemented on Linux.
func NewHotplugHint(Identity) (Hint, error) {
	return NopHint{}, pkg.ErrNotSupported
}

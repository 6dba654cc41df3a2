//go:build !(linux && (386 || amd64 || arm || arm64 || loong64 || riscv64 || s390x))

package usb

import "github.com/ardnew/usb2sock/pkg"

// NewUsbfs returns [pkg.ErrNotSupported]; the usbfs transport needs Linux
// on an architecture with the generic ioctl encoding.
func NewUsbfs(int) (Transport, error) {
	return nil, pkg.ErrNotSupported
}

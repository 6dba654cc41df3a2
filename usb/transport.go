package usb

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// DeviceInfo identifies one attached device as seen during a scan.
type DeviceInfo struct {
	Bus        int    // Bus number
	Address    int    // Device address on the bus
	Vendor     uint16 // idVendor
	Product    uint16 // idProduct
	NumConfigs int    // bNumConfigurations
}

// String returns "bus/address vid:pid".
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%03d/%03d %04x:%04x", d.Bus, d.Address, d.Vendor, d.Product)
}

// Identity is the vendor/product pair of the streaming device.
type Identity struct {
	Vendor  uint16
	Product uint16
}

// Matches reports whether d carries this identity.
func (id Identity) Matches(d DeviceInfo) bool {
	return d.Vendor == id.Vendor && d.Product == id.Product
}

// String returns "vid:pid".
func (id Identity) String() string {
	return fmt.Sprintf("%04x:%04x", id.Vendor, id.Product)
}

// Transport enumerates and opens devices.
type Transport interface {
	// Devices lists attached devices without opening them.
	Devices() ([]DeviceInfo, error)

	// Open opens the device previously returned by Devices.
	Open(info DeviceInfo) (Handle, error)

	// SetDebug sets the transport library's log verbosity.
	SetDebug(level int)

	// Close releases the transport.
	Close() error
}

// Handle is an open, unclaimed device.
type Handle interface {
	// ActiveConfig returns the device's current configuration value.
	// Zero means unconfigured.
	ActiveConfig() (int, error)

	// SetConfig selects configuration n.
	SetConfig(n int) error

	// ConfigDesc returns the descriptor tree of configuration n, or of the
	// lowest-numbered configuration when n is not present.
	ConfigDesc(n int) (gousb.ConfigDesc, error)

	// Claim claims the interface named by ep and opens its endpoints.
	Claim(ep Endpoints) (Session, error)

	// Close releases the configuration and closes the device.
	Close() error
}

// Session is a claimed streaming interface with its bulk endpoint pair.
type Session interface {
	// Write sends p to the OUT endpoint. The transfer is bounded by ctx.
	Write(ctx context.Context, p []byte) (int, error)

	// Read fills p from the IN endpoint. The transfer is bounded by ctx.
	Read(ctx context.Context, p []byte) (int, error)

	// Close releases the interface.
	Close() error
}

//go:build linux

package usb

import (
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ardnew/usb2sock/pkg"
)

// ueventBufferSize holds one kernel uevent message.
const ueventBufferSize = 8192

// maxEventsPerPoll bounds the work done by one Poll call.
const maxEventsPerPoll = 64

// =============================================================================
// UEvent Types
// =============================================================================

// ueventAction represents a kernel uevent action.
type ueventAction uint8

const (
	ueventUnknown ueventAction = iota
	ueventAdd
	ueventRemove
	ueventChange
	ueventBind
	ueventUnbind
)

// uevent represents a parsed netlink uevent.
type uevent struct {
	action    ueventAction
	devpath   string // DEVPATH value
	subsystem string // SUBSYSTEM value
	devtype   string // DEVTYPE value
	product   string // PRODUCT value, "vid/pid/bcd" in unpadded hex
}

// ids parses the vendor and product out of the PRODUCT key.
func (e uevent) ids() (vid, pid uint16, ok bool) {
	parts := strings.Split(e.product, "/")
	if len(parts) < 2 {
		return 0, 0, false
	}
	v, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return 0, 0, false
	}
	p, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, 0, false
	}
	return uint16(v), uint16(p), true
}

// =============================================================================
// Hotplug Monitor
// =============================================================================

// hotplugMonitor reads kernel uevents from a non-blocking netlink socket
// and reports arrivals and departures of one vendor/product pair.
type hotplugMonitor struct {
	fd  int
	id  Identity
	buf [ueventBufferSize]byte
}

// NewHotplugHint opens a netlink uevent socket filtered to id.
func NewHotplugHint(id Identity) (Hint, error) {
	fd, err := unix.Socket(
		unix.AF_NETLINK,
		unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK,
		unix.NETLINK_KOBJECT_UEVENT,
	)
	if err != nil {
		return NopHint{}, err
	}

	// Kernel broadcast group
	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return NopHint{}, err
	}

	pkg.LogDebug(pkg.ComponentHotplug, "netlink monitor open", "target", id.String())
	return &hotplugMonitor{fd: fd, id: id}, nil
}

// Poll drains pending uevents without blocking.
func (h *hotplugMonitor) Poll() []HotplugEvent {
	var events []HotplugEvent
	for range maxEventsPerPoll {
		n, err := unix.Read(h.fd, h.buf[:])
		if err != nil {
			if err != unix.EAGAIN && err != unix.EINTR {
				pkg.LogDebug(pkg.ComponentHotplug, "netlink read failed", "error", err)
			}
			break
		}
		if n <= 0 {
			break
		}
		if evt, ok := h.match(parseUEvent(h.buf[:n])); ok {
			events = append(events, evt)
		}
	}
	return events
}

// match filters evt down to add/remove of the target usb_device.
func (h *hotplugMonitor) match(evt uevent) (HotplugEvent, bool) {
	if evt.subsystem != "usb" || evt.devtype != "usb_device" {
		return HotplugEvent{}, false
	}
	vid, pid, ok := evt.ids()
	if !ok || vid != h.id.Vendor || pid != h.id.Product {
		return HotplugEvent{}, false
	}
	switch evt.action {
	case ueventAdd:
		return HotplugEvent{Action: HotplugArrived, DevPath: evt.devpath}, true
	case ueventRemove:
		return HotplugEvent{Action: HotplugLeft, DevPath: evt.devpath}, true
	}
	return HotplugEvent{}, false
}

// Close closes the netlink socket.
func (h *hotplugMonitor) Close() error {
	return unix.Close(h.fd)
}

// =============================================================================
// UEvent Parsing
// =============================================================================

var ueventPrefixes = []struct {
	prefix string
	action ueventAction
}{
	{"add@", ueventAdd},
	{"remove@", ueventRemove},
	{"change@", ueventChange},
	{"bind@", ueventBind},
	{"unbind@", ueventUnbind},
}

// parseUEvent parses a netlink uevent message: an "action@devpath" header
// followed by NUL-separated KEY=value pairs.
func parseUEvent(data []byte) uevent {
	evt := uevent{}

	for _, line := range bytes.Split(data, []byte{0}) {
		if len(line) == 0 {
			continue
		}
		s := string(line)

		key, value, found := strings.Cut(s, "=")
		if !found {
			for _, p := range ueventPrefixes {
				if strings.HasPrefix(s, p.prefix) {
					evt.action = p.action
					evt.devpath = s[len(p.prefix):]
					break
				}
			}
			continue
		}

		switch key {
		case "ACTION":
			evt.action = parseAction(value)
		case "DEVPATH":
			evt.devpath = value
		case "SUBSYSTEM":
			evt.subsystem = value
		case "DEVTYPE":
			evt.devtype = value
		case "PRODUCT":
			evt.product = value
		}
	}

	return evt
}

func parseAction(s string) ueventAction {
	switch s {
	case "add":
		return ueventAdd
	case "remove":
		return ueventRemove
	case "change":
		return ueventChange
	case "bind":
		return ueventBind
	case "unbind":
		return ueventUnbind
	}
	return ueventUnknown
}

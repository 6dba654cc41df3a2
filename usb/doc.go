// Package usb finds the streaming device, resolves its bulk endpoint pair
// and runs transfers on it.
//
// Two [Transport] backends are provided:
//   - [GoUSB] drives libusb through github.com/google/gousb.
//   - [Usbfs] talks to the Linux usbfs interface (/dev/bus/usb/) directly,
//     discovering devices through sysfs (/sys/bus/usb/devices/). It needs
//     read/write access to the device nodes and no cgo.
//
// Both backends report failures as [pkg.TransportError] values holding a
// libusb error code, so callers classify them the same way:
//
//	tr, err := usb.NewGoUSB(2)
//	if err != nil {
//	    return err // libusb unavailable
//	}
//	defer tr.Close()
//	dev, _ := tr.Open(info)
//	desc, _ := dev.ConfigDesc(1)
//	ep, err := usb.ResolveEndpoints(desc)
//	if errors.Is(err, pkg.ErrNoMatchingInterface) {
//	    // not a streaming device
//	}
//
// # Hotplug
//
// On Linux [NewHotplugHint] listens for kernel uevents over netlink and
// reports arrivals and departures of one vendor/product pair. The hint is
// advisory: scanning finds the device whether or not it fires.
package usb

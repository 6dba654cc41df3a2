package usb

import (
	"sort"

	"github.com/google/gousb"

	"github.com/ardnew/usb2sock/pkg"
)

// Streaming interface class. Vendor-specific class 0xFF with subclass 0x43
// carries the video stream on this device family.
const (
	StreamClass    = gousb.ClassVendorSpec
	StreamSubClass = gousb.Class(0x43)
)

// Endpoints names the streaming interface and its bulk endpoint pair.
type Endpoints struct {
	Config    int                // Configuration value the interface belongs to
	Interface int                // bInterfaceNumber
	Alternate int                // bAlternateSetting
	In        gousb.EndpointDesc // First bulk IN endpoint
	Out       gousb.EndpointDesc // First bulk OUT endpoint
}

// ResolveEndpoints walks the configuration's interface tree and returns
// the streaming interface's first bulk IN and first bulk OUT endpoints.
//
// Only alternate setting 0 of an interface can qualify. When several
// interfaces qualify the last one wins. A matching non-zero alternate
// setting is logged and skipped. Returns [pkg.ErrNoMatchingInterface] when
// no interface qualifies. Nothing is claimed or configured.
func ResolveEndpoints(desc gousb.ConfigDesc) (Endpoints, error) {
	var found Endpoints
	ok := false

	for _, iface := range desc.Interfaces {
		if len(iface.AltSettings) == 0 {
			pkg.LogWarn(pkg.ComponentUSB, "interface has no alternate settings",
				"config", desc.Number, "iface", iface.Number)
			continue
		}

		for j, alt := range iface.AltSettings {
			if alt.Class != StreamClass || alt.SubClass != StreamSubClass {
				continue
			}
			if j != 0 {
				pkg.LogWarn(pkg.ComponentUSB, "streaming class on non-zero alternate setting, ignoring",
					"config", desc.Number,
					"iface", iface.Number,
					"alt", alt.Alternate,
					"num_alt", len(iface.AltSettings))
				continue
			}

			in, out, paired := firstBulkPair(alt)
			if !paired {
				pkg.LogDebug(pkg.ComponentUSB, "streaming interface lacks a bulk endpoint pair",
					"config", desc.Number, "iface", iface.Number)
				continue
			}
			if ok {
				pkg.LogWarn(pkg.ComponentUSB, "multiple streaming interfaces, using later one",
					"previous", found.Interface, "iface", iface.Number)
			}
			found = Endpoints{
				Config:    desc.Number,
				Interface: iface.Number,
				Alternate: alt.Alternate,
				In:        in,
				Out:       out,
			}
			ok = true
		}
	}

	if !ok {
		return Endpoints{}, pkg.ErrNoMatchingInterface
	}
	return found, nil
}

// firstBulkPair picks the lowest-numbered bulk IN and bulk OUT endpoints.
func firstBulkPair(alt gousb.InterfaceSetting) (in, out gousb.EndpointDesc, ok bool) {
	eps := make([]gousb.EndpointDesc, 0, len(alt.Endpoints))
	for _, ep := range alt.Endpoints {
		if ep.TransferType == gousb.TransferTypeBulk {
			eps = append(eps, ep)
		}
	}
	sort.Slice(eps, func(i, j int) bool {
		return eps[i].Address < eps[j].Address
	})

	var haveIn, haveOut bool
	for _, ep := range eps {
		switch {
		case ep.Direction == gousb.EndpointDirectionIn && !haveIn:
			in, haveIn = ep, true
		case ep.Direction == gousb.EndpointDirectionOut && !haveOut:
			out, haveOut = ep, true
		}
	}
	return in, out, haveIn && haveOut
}

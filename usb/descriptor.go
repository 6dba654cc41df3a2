package usb

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gousb"
)

// Standard descriptor types.
const (
	descTypeDevice    = 0x01
	descTypeConfig    = 0x02
	descTypeInterface = 0x04
	descTypeEndpoint  = 0x05
)

// Standard descriptor sizes.
const (
	deviceDescSize    = 18
	configDescSize    = 9
	interfaceDescSize = 9
	endpointDescSize  = 7
)

// rawDevice is the part of a device descriptor the bridge uses.
type rawDevice struct {
	Vendor     uint16
	Product    uint16
	NumConfigs int
}

// parseDescriptors splits a raw descriptor blob, as exposed by the kernel
// in sysfs, into the device descriptor and the configuration trees that
// follow it.
func parseDescriptors(data []byte) (rawDevice, []gousb.ConfigDesc, error) {
	if len(data) < deviceDescSize || data[1] != descTypeDevice {
		return rawDevice{}, nil, fmt.Errorf("device descriptor: %d bytes", len(data))
	}
	if n := int(data[0]); n < deviceDescSize || n > len(data) {
		return rawDevice{}, nil, fmt.Errorf("device descriptor length %d of %d", n, len(data))
	}
	dev := rawDevice{
		Vendor:     binary.LittleEndian.Uint16(data[8:]),
		Product:    binary.LittleEndian.Uint16(data[10:]),
		NumConfigs: int(data[17]),
	}

	var configs []gousb.ConfigDesc
	rest := data[data[0]:]
	for len(rest) >= configDescSize {
		if rest[1] != descTypeConfig {
			return dev, configs, fmt.Errorf("descriptor type 0x%02x where configuration expected", rest[1])
		}
		total := int(binary.LittleEndian.Uint16(rest[2:]))
		if total < configDescSize || total > len(rest) {
			return dev, configs, fmt.Errorf("configuration total length %d of %d", total, len(rest))
		}
		configs = append(configs, parseConfig(rest[:total]))
		rest = rest[total:]
	}
	return dev, configs, nil
}

// parseConfig builds the interface tree of one configuration descriptor.
// Class-specific descriptors are skipped. Parsing stops at the first
// malformed descriptor.
func parseConfig(data []byte) gousb.ConfigDesc {
	cfg := gousb.ConfigDesc{Number: int(data[5])}

	var alt *gousb.InterfaceSetting
	offset := int(data[0])
	for offset+2 <= len(data) {
		length := int(data[offset])
		if length < 2 || offset+length > len(data) {
			break
		}
		d := data[offset : offset+length]

		switch d[1] {
		case descTypeInterface:
			if length < interfaceDescSize {
				break
			}
			alt = addSetting(&cfg, gousb.InterfaceSetting{
				Number:    int(d[2]),
				Alternate: int(d[3]),
				Class:     gousb.Class(d[5]),
				SubClass:  gousb.Class(d[6]),
				Protocol:  gousb.Protocol(d[7]),
				Endpoints: make(map[gousb.EndpointAddress]gousb.EndpointDesc, d[4]),
			})

		case descTypeEndpoint:
			if length < endpointDescSize || alt == nil {
				break
			}
			ep := parseEndpoint(d)
			alt.Endpoints[ep.Address] = ep
		}

		offset += length
	}
	return cfg
}

// addSetting files s under its interface number, creating the interface on
// first sight, and returns a pointer to the stored setting.
func addSetting(cfg *gousb.ConfigDesc, s gousb.InterfaceSetting) *gousb.InterfaceSetting {
	for i := range cfg.Interfaces {
		iface := &cfg.Interfaces[i]
		if iface.Number == s.Number {
			iface.AltSettings = append(iface.AltSettings, s)
			return &iface.AltSettings[len(iface.AltSettings)-1]
		}
	}
	cfg.Interfaces = append(cfg.Interfaces, gousb.InterfaceDesc{
		Number:      s.Number,
		AltSettings: []gousb.InterfaceSetting{s},
	})
	last := &cfg.Interfaces[len(cfg.Interfaces)-1]
	return &last.AltSettings[0]
}

func parseEndpoint(d []byte) gousb.EndpointDesc {
	addr := d[2]
	return gousb.EndpointDesc{
		Address:       gousb.EndpointAddress(addr),
		Number:        int(addr & 0x0f),
		Direction:     gousb.EndpointDirection(addr&0x80 != 0),
		MaxPacketSize: int(binary.LittleEndian.Uint16(d[4:]) & 0x07ff),
		TransferType:  gousb.TransferType(d[3] & 0x03),
	}
}

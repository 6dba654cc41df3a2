package usb

import (
	"testing"

	"github.com/google/gousb"
)

// streamBlob returns a device descriptor followed by one configuration:
// interface 0 (HID, interrupt IN) and interface 1 with two alternate
// settings, the first carrying the streaming class and a bulk pair.
func streamBlob() []byte {
	dev := []byte{
		18, descTypeDevice, 0x00, 0x02, 0, 0, 0, 64,
		0xa3, 0x2c, 0x1f, 0x00, 0x00, 0x01, 1, 2, 3, 1,
	}
	body := []byte{
		// Interface 0 alt 0, HID
		9, descTypeInterface, 0, 0, 1, 0x03, 0x00, 0x00, 0,
		7, descTypeEndpoint, 0x81, 0x03, 8, 0, 10,
		// Interface 1 alt 0, streaming
		9, descTypeInterface, 1, 0, 2, 0xff, 0x43, 0x00, 0,
		5, 0x24, 0x01, 0x02, 0x03, // class-specific, skipped
		7, descTypeEndpoint, 0x84, 0x02, 0x00, 0x02, 0,
		7, descTypeEndpoint, 0x03, 0x02, 0x00, 0x02, 0,
		// Interface 1 alt 1
		9, descTypeInterface, 1, 1, 0, 0xff, 0x43, 0x00, 0,
	}
	total := configDescSize + len(body)
	cfg := []byte{9, descTypeConfig, byte(total), byte(total >> 8), 2, 1, 0, 0x80, 250}

	blob := append(dev, cfg...)
	return append(blob, body...)
}

func TestParseDescriptors(t *testing.T) {
	dev, configs, err := parseDescriptors(streamBlob())
	if err != nil {
		t.Fatalf("parseDescriptors() error = %v", err)
	}
	if dev.Vendor != 0x2ca3 || dev.Product != 0x001f || dev.NumConfigs != 1 {
		t.Errorf("device = %+v", dev)
	}
	if len(configs) != 1 {
		t.Fatalf("len(configs) = %d, want 1", len(configs))
	}

	cfg := configs[0]
	if cfg.Number != 1 || len(cfg.Interfaces) != 2 {
		t.Fatalf("config %d with %d interfaces", cfg.Number, len(cfg.Interfaces))
	}
	stream := cfg.Interfaces[1]
	if stream.Number != 1 || len(stream.AltSettings) != 2 {
		t.Fatalf("interface %d with %d settings", stream.Number, len(stream.AltSettings))
	}
	alt := stream.AltSettings[0]
	if alt.Class != StreamClass || alt.SubClass != StreamSubClass || len(alt.Endpoints) != 2 {
		t.Errorf("alt 0 = %+v", alt)
	}
	in := alt.Endpoints[0x84]
	if in.Number != 4 || in.Direction != gousb.EndpointDirectionIn ||
		in.TransferType != gousb.TransferTypeBulk || in.MaxPacketSize != 512 {
		t.Errorf("IN endpoint = %+v", in)
	}
	if hid := cfg.Interfaces[0].AltSettings[0].Endpoints[0x81]; hid.TransferType != gousb.TransferTypeInterrupt {
		t.Errorf("HID endpoint type = %v, want interrupt", hid.TransferType)
	}

	ep, err := ResolveEndpoints(cfg)
	if err != nil {
		t.Fatalf("ResolveEndpoints(parsed) error = %v", err)
	}
	if ep.Interface != 1 || ep.In.Address != 0x84 || ep.Out.Address != 0x03 {
		t.Errorf("resolved = %+v", ep)
	}
}

func TestParseDescriptors_Malformed(t *testing.T) {
	good := streamBlob()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short device", good[:10]},
		{"not a device", append([]byte{18, descTypeConfig}, good[2:]...)},
		{"truncated config", good[:len(good)-4]},
		{"device length past end", withByte(good[:deviceDescSize], 0, 0x40)},
		{"device length short", withByte(good, 0, deviceDescSize-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := parseDescriptors(tt.data); err == nil {
				t.Error("parseDescriptors() error = nil, want error")
			}
		})
	}
}

// withByte returns a copy of data with data[i] set to b.
func withByte(data []byte, i int, b byte) []byte {
	out := append([]byte(nil), data...)
	out[i] = b
	return out
}

func TestParseConfig_StopsAtBadLength(t *testing.T) {
	data := []byte{
		9, descTypeConfig, 0, 0, 1, 3, 0, 0x80, 50,
		9, descTypeInterface, 0, 0, 1, 0xff, 0x43, 0, 0,
		1, descTypeEndpoint, // length below 2 ends parsing
		7, descTypeEndpoint, 0x81, 0x02, 0x40, 0, 0,
	}
	cfg := parseConfig(data)
	if cfg.Number != 3 || len(cfg.Interfaces) != 1 {
		t.Fatalf("config = %+v", cfg)
	}
	if n := len(cfg.Interfaces[0].AltSettings[0].Endpoints); n != 0 {
		t.Errorf("endpoints after bad descriptor = %d, want 0", n)
	}
}

package usb

import "testing"

func TestNopHint(t *testing.T) {
	var h Hint = NopHint{}
	if events := h.Poll(); events != nil {
		t.Errorf("Poll() = %v, want nil", events)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestArrived(t *testing.T) {
	tests := []struct {
		name   string
		events []HotplugEvent
		want   bool
	}{
		{"none", nil, false},
		{"left only", []HotplugEvent{{Action: HotplugLeft}}, false},
		{"arrived", []HotplugEvent{{Action: HotplugLeft}, {Action: HotplugArrived}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Arrived(tt.events); got != tt.want {
				t.Errorf("Arrived() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	id := Identity{Vendor: 0x2ca3, Product: 0x001f}
	if got := id.String(); got != "2ca3:001f" {
		t.Errorf("String() = %q", got)
	}
	if !id.Matches(DeviceInfo{Vendor: 0x2ca3, Product: 0x001f}) {
		t.Error("Matches() = false for same vid:pid")
	}
	if id.Matches(DeviceInfo{Vendor: 0x2ca3, Product: 0x0020}) {
		t.Error("Matches() = true for different product")
	}
	d := DeviceInfo{Bus: 1, Address: 12, Vendor: 0x2ca3, Product: 0x1f}
	if got := d.String(); got != "001/012 2ca3:001f" {
		t.Errorf("DeviceInfo.String() = %q", got)
	}
}

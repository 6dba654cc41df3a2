package usb

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/gousb"

	"github.com/ardnew/usb2sock/pkg"
)

// GoUSB implements [Transport] on libusb through gousb.
type GoUSB struct {
	ctx *gousb.Context
}

// newContext is replaced in tests.
var newContext = gousb.NewContext

// NewGoUSB initializes a libusb context with the given log verbosity
// (0 = none ... 4 = debug). LIBUSB_DEBUG in the environment takes
// precedence inside libusb. A libusb initialization failure is returned
// as a [pkg.TransportError].
func NewGoUSB(debug int) (tr *GoUSB, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cause, ok := r.(error)
		if !ok {
			cause = fmt.Errorf("%v", r)
		}
		tr, err = nil, translate("init", cause)
	}()

	ctx := newContext()
	ctx.Debug(debug)
	return &GoUSB{ctx: ctx}, nil
}

// SetDebug sets libusb's log verbosity.
func (t *GoUSB) SetDebug(level int) {
	t.ctx.Debug(level)
}

// Devices lists attached devices. No device is opened.
func (t *GoUSB) Devices() ([]DeviceInfo, error) {
	var infos []DeviceInfo
	_, err := t.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		infos = append(infos, deviceInfo(desc))
		return false
	})
	if err != nil {
		return infos, translate("get device list", err)
	}
	return infos, nil
}

// Open opens the device at info's bus and address.
func (t *GoUSB) Open(info DeviceInfo) (Handle, error) {
	devs, err := t.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == info.Bus && desc.Address == info.Address &&
			uint16(desc.Vendor) == info.Vendor && uint16(desc.Product) == info.Product
	})
	if len(devs) == 0 {
		if err == nil {
			err = gousb.ErrorNoDevice
		}
		return nil, fmt.Errorf("%w: %w", pkg.ErrOpenFailed, translate("open", err))
	}
	for _, extra := range devs[1:] {
		extra.Close()
	}

	dev := devs[0]
	if err := dev.SetAutoDetach(true); err != nil {
		pkg.LogDebug(pkg.ComponentUSB, "kernel driver auto-detach unavailable",
			pkg.ErrorAttrs(translate("set auto detach", err))...)
	}
	return &goDevice{dev: dev}, nil
}

// Close releases the libusb context.
func (t *GoUSB) Close() error {
	return t.ctx.Close()
}

func deviceInfo(desc *gousb.DeviceDesc) DeviceInfo {
	return DeviceInfo{
		Bus:        desc.Bus,
		Address:    desc.Address,
		Vendor:     uint16(desc.Vendor),
		Product:    uint16(desc.Product),
		NumConfigs: len(desc.Configs),
	}
}

// goDevice implements [Handle].
type goDevice struct {
	dev *gousb.Device
	cfg *gousb.Config
}

func (d *goDevice) ActiveConfig() (int, error) {
	n, err := d.dev.ActiveConfigNum()
	return n, translate("get configuration", err)
}

func (d *goDevice) SetConfig(n int) error {
	if d.cfg != nil {
		if d.cfg.Desc.Number == n {
			return nil
		}
		if err := d.cfg.Close(); err != nil {
			return translate("release configuration", err)
		}
		d.cfg = nil
	}
	cfg, err := d.dev.Config(n)
	if err != nil {
		return translate("set configuration", err)
	}
	d.cfg = cfg
	return nil
}

func (d *goDevice) ConfigDesc(n int) (gousb.ConfigDesc, error) {
	if desc, ok := d.dev.Desc.Configs[n]; ok {
		return desc, nil
	}
	nums := make([]int, 0, len(d.dev.Desc.Configs))
	for num := range d.dev.Desc.Configs {
		nums = append(nums, num)
	}
	if len(nums) == 0 {
		return gousb.ConfigDesc{}, translate("get config descriptor", gousb.ErrorNotFound)
	}
	sort.Ints(nums)
	return d.dev.Desc.Configs[nums[0]], nil
}

func (d *goDevice) Claim(ep Endpoints) (Session, error) {
	if d.cfg == nil {
		if err := d.SetConfig(ep.Config); err != nil {
			return nil, err
		}
	}
	intf, err := d.cfg.Interface(ep.Interface, ep.Alternate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkg.ErrClaimFailed, translate("claim interface", err))
	}
	in, err := intf.InEndpoint(ep.In.Number)
	if err != nil {
		intf.Close()
		return nil, translate("open in endpoint", err)
	}
	out, err := intf.OutEndpoint(ep.Out.Number)
	if err != nil {
		intf.Close()
		return nil, translate("open out endpoint", err)
	}
	return &goSession{intf: intf, in: in, out: out}, nil
}

func (d *goDevice) Close() error {
	if d.cfg != nil {
		if err := d.cfg.Close(); err != nil {
			pkg.LogDebug(pkg.ComponentUSB, "release configuration failed", "error", err)
		}
		d.cfg = nil
	}
	return translate("close", d.dev.Close())
}

// goSession implements [Session].
type goSession struct {
	intf *gousb.Interface
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint
}

func (s *goSession) Write(ctx context.Context, p []byte) (int, error) {
	n, err := s.out.WriteContext(ctx, p)
	return n, translateTransfer(ctx, "bulk write", err)
}

func (s *goSession) Read(ctx context.Context, p []byte) (int, error) {
	n, err := s.in.ReadContext(ctx, p)
	return n, translateTransfer(ctx, "bulk read", err)
}

func (s *goSession) Close() error {
	s.intf.Close()
	return nil
}

//go:build linux && (386 || amd64 || arm || arm64 || loong64 || riscv64 || s390x)

package usb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
	"golang.org/x/sys/unix"

	"github.com/ardnew/usb2sock/pkg"
)

// System paths.
const (
	SysfsUSBPath = "/sys/bus/usb/devices"
	DevfsUSBPath = "/dev/bus/usb"
)

// Usbfs implements [Transport] directly on the kernel's usbfs interface.
// Devices are enumerated from sysfs and transfers are synchronous ioctls
// on /dev/bus/usb nodes. No libusb is involved.
type Usbfs struct {
	sysfs string
	devfs string

	mu    sync.Mutex
	debug int
	paths map[[2]int]string // bus/address -> sysfs directory
}

// NewUsbfs returns a usbfs transport on the standard system paths.
func NewUsbfs(debug int) (Transport, error) {
	t, err := newUsbfs(SysfsUSBPath, DevfsUSBPath, debug)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func newUsbfs(sysfs, devfs string, debug int) (*Usbfs, error) {
	if _, err := os.Stat(sysfs); err != nil {
		return nil, fmt.Errorf("usbfs: %w: %w", pkg.ErrNotSupported, err)
	}
	return &Usbfs{
		sysfs: sysfs,
		devfs: devfs,
		debug: debug,
		paths: make(map[[2]int]string),
	}, nil
}

// SetDebug sets the verbosity of per-transfer logging. Levels of 4 and
// above log every failed ioctl.
func (t *Usbfs) SetDebug(level int) {
	t.mu.Lock()
	t.debug = level
	t.mu.Unlock()
}

func (t *Usbfs) verbose() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.debug >= 4
}

// Devices lists devices from sysfs. Root hubs and interface entries are
// skipped.
func (t *Usbfs) Devices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(t.sysfs)
	if err != nil {
		return nil, translate("get device list", fileError(err))
	}

	paths := make(map[[2]int]string, len(entries))
	var infos []DeviceInfo
	for _, entry := range entries {
		name := entry.Name()
		// Devices are "1-1", "1-1.2"; "usb1" is a root hub and "1-1:1.0" an interface.
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}
		dir := filepath.Join(t.sysfs, name)
		info, err := readSysfsDevice(dir)
		if err != nil {
			pkg.LogDebug(pkg.ComponentUSB, "skipping unreadable sysfs device", "path", dir, "error", err)
			continue
		}
		paths[[2]int{info.Bus, info.Address}] = dir
		infos = append(infos, info)
	}

	t.mu.Lock()
	t.paths = paths
	t.mu.Unlock()
	return infos, nil
}

// Open opens the device node for info and reads its descriptors.
func (t *Usbfs) Open(info DeviceInfo) (Handle, error) {
	t.mu.Lock()
	dir, ok := t.paths[[2]int{info.Bus, info.Address}]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %w", pkg.ErrOpenFailed, translate("open", gousb.ErrorNoDevice))
	}

	blob, err := os.ReadFile(filepath.Join(dir, "descriptors"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkg.ErrOpenFailed, translate("open", fileError(err)))
	}
	_, configs, err := parseDescriptors(blob)
	if err != nil {
		pkg.LogWarn(pkg.ComponentUSB, "descriptor blob malformed", "path", dir, "error", err)
	}

	node := filepath.Join(t.devfs, fmt.Sprintf("%03d", info.Bus), fmt.Sprintf("%03d", info.Address))
	fd, err := unix.Open(node, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkg.ErrOpenFailed, translate("open", fileError(err)))
	}

	return &usbfsDevice{t: t, fd: fd, sysfs: dir, configs: configs}, nil
}

// Close is a no-op; each device owns its descriptor.
func (t *Usbfs) Close() error {
	return nil
}

// usbfsDevice implements [Handle].
type usbfsDevice struct {
	t       *Usbfs
	fd      int
	sysfs   string
	configs []gousb.ConfigDesc
}

func (d *usbfsDevice) ActiveConfig() (int, error) {
	s, err := readSysfsString(filepath.Join(d.sysfs, "bConfigurationValue"))
	if err != nil {
		return 0, translate("get configuration", fileError(err))
	}
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, translate("get configuration", gousb.ErrorIO)
	}
	return n, nil
}

func (d *usbfsDevice) SetConfig(n int) error {
	if err := ioctlUint(d.fd, ioctlSetConfiguration, uint32(n)); err != nil {
		return translate("set configuration", d.controlError(err))
	}
	return nil
}

func (d *usbfsDevice) ConfigDesc(n int) (gousb.ConfigDesc, error) {
	if len(d.configs) == 0 {
		return gousb.ConfigDesc{}, translate("get config descriptor", gousb.ErrorNotFound)
	}
	low := 0
	for i, cfg := range d.configs {
		if cfg.Number == n {
			return cfg, nil
		}
		if cfg.Number < d.configs[low].Number {
			low = i
		}
	}
	return d.configs[low], nil
}

func (d *usbfsDevice) Claim(ep Endpoints) (Session, error) {
	// ENODATA means no kernel driver was bound.
	if err := driverIoctl(d.fd, ep.Interface, ioctlDisconnect); err != nil && !errors.Is(err, unix.ENODATA) {
		pkg.LogDebug(pkg.ComponentUSB, "kernel driver detach failed", "iface", ep.Interface, "error", err)
	}
	if err := ioctlUint(d.fd, ioctlClaimInterface, uint32(ep.Interface)); err != nil {
		return nil, fmt.Errorf("%w: %w", pkg.ErrClaimFailed, translate("claim interface", d.controlError(err)))
	}
	return &usbfsSession{
		dev:   d,
		iface: ep.Interface,
		in:    uint8(ep.In.Address),
		out:   uint8(ep.Out.Address),
	}, nil
}

func (d *usbfsDevice) Close() error {
	if err := unix.Close(d.fd); err != nil {
		return translate("close", fileError(err))
	}
	return nil
}

// controlError maps a non-transfer ioctl failure the way libusb does.
func (d *usbfsDevice) controlError(err error) error {
	if d.t.verbose() {
		pkg.LogDebug(pkg.ComponentUSB, "usbfs ioctl failed", "error", err)
	}
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return err
	}
	switch errno {
	case unix.EINVAL, unix.ENOENT:
		return errnoError(errno, gousb.ErrorNotFound)
	case unix.EBUSY:
		return errnoError(errno, gousb.ErrorBusy)
	case unix.EACCES, unix.EPERM:
		return errnoError(errno, gousb.ErrorAccess)
	case unix.ENODEV:
		return errnoError(errno, gousb.ErrorNoDevice)
	}
	return errnoError(errno, gousb.ErrorIO)
}

// usbfsSession implements [Session].
type usbfsSession struct {
	dev   *usbfsDevice
	iface int
	in    uint8
	out   uint8
}

func (s *usbfsSession) Write(ctx context.Context, p []byte) (int, error) {
	return s.transfer(ctx, "bulk write", s.out, p)
}

func (s *usbfsSession) Read(ctx context.Context, p []byte) (int, error) {
	return s.transfer(ctx, "bulk read", s.in, p)
}

// transfer runs one bulk ioctl bounded by ctx's deadline. The ioctl
// cannot be interrupted once started; cancellation only takes effect
// before it begins.
func (s *usbfsSession) transfer(ctx context.Context, op string, endpoint uint8, p []byte) (int, error) {
	if ctx.Err() != nil {
		return 0, translateTransfer(ctx, op, gousb.TransferCancelled)
	}
	timeout, ok := timeoutMS(ctx)
	if !ok {
		return 0, translate(op, gousb.ErrorTimeout)
	}

	n, err := doBulk(s.dev.fd, endpoint, p, timeout)
	if err != nil {
		if s.dev.t.verbose() {
			pkg.LogDebug(pkg.ComponentUSB, "usbfs bulk transfer failed",
				"endpoint", fmt.Sprintf("0x%02x", endpoint), "error", err)
		}
		return n, translate(op, transferError(err))
	}
	return n, nil
}

// Close releases the interface and hands it back to the kernel driver.
func (s *usbfsSession) Close() error {
	err := ioctlUint(s.dev.fd, ioctlReleaseInterface, uint32(s.iface))
	if cerr := driverIoctl(s.dev.fd, s.iface, ioctlConnect); cerr != nil && s.dev.t.verbose() {
		pkg.LogDebug(pkg.ComponentUSB, "kernel driver reattach failed", "iface", s.iface, "error", cerr)
	}
	if err != nil {
		return translate("release interface", s.dev.controlError(err))
	}
	return nil
}

// timeoutMS converts ctx's deadline to a usbfs timeout. No deadline means
// wait forever. Reports false when the deadline has already passed.
func timeoutMS(ctx context.Context) (uint32, bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0, true
	}
	left := time.Until(deadline)
	if left <= 0 {
		return 0, false
	}
	ms := (left + time.Millisecond - 1) / time.Millisecond
	return uint32(ms), true
}

// transferError maps a bulk ioctl errno onto the libusb code.
func transferError(err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return err
	}
	switch errno {
	case unix.ETIMEDOUT:
		return errnoError(errno, gousb.ErrorTimeout)
	case unix.EPIPE:
		return errnoError(errno, gousb.ErrorPipe)
	case unix.EOVERFLOW:
		return errnoError(errno, gousb.ErrorOverflow)
	case unix.ENODEV, unix.ESHUTDOWN:
		return errnoError(errno, gousb.ErrorNoDevice)
	case unix.EINTR:
		return errnoError(errno, gousb.ErrorInterrupted)
	}
	return errnoError(errno, gousb.ErrorIO)
}

// errnoError pairs errno with a libusb code. translate sees the code and
// errors.Is still finds the errno.
func errnoError(errno error, code gousb.Error) error {
	return fmt.Errorf("%w (%w)", code, errno)
}

// fileError maps a failed sysfs or devfs file operation. A missing node
// means the device is gone.
func fileError(err error) error {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENODEV):
		return errnoError(err, gousb.ErrorNoDevice)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return errnoError(err, gousb.ErrorAccess)
	}
	return errnoError(err, gousb.ErrorIO)
}

// =============================================================================
// Sysfs
// =============================================================================

func readSysfsDevice(dir string) (DeviceInfo, error) {
	var info DeviceInfo
	bus, err := readSysfsUint(filepath.Join(dir, "busnum"), 10, 8)
	if err != nil {
		return info, err
	}
	addr, err := readSysfsUint(filepath.Join(dir, "devnum"), 10, 8)
	if err != nil {
		return info, err
	}
	vid, err := readSysfsUint(filepath.Join(dir, "idVendor"), 16, 16)
	if err != nil {
		return info, err
	}
	pid, err := readSysfsUint(filepath.Join(dir, "idProduct"), 16, 16)
	if err != nil {
		return info, err
	}
	info = DeviceInfo{
		Bus:     int(bus),
		Address: int(addr),
		Vendor:  uint16(vid),
		Product: uint16(pid),
	}
	if n, err := readSysfsUint(filepath.Join(dir, "bNumConfigurations"), 10, 8); err == nil {
		info.NumConfigs = int(n)
	}
	return info, nil
}

func readSysfsString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readSysfsUint(path string, base, bitSize int) (uint64, error) {
	s, err := readSysfsString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), base, bitSize)
}

//go:build linux && (386 || amd64 || arm || arm64 || loong64 || riscv64 || s390x)

package usb

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl number encoding shared by the asm-generic architectures:
//
//	bits 0-7:   command number
//	bits 8-15:  type
//	bits 16-29: argument size
//	bits 30-31: direction
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

// bulkTransfer matches struct usbdevfs_bulktransfer.
type bulkTransfer struct {
	endpoint uint32
	length   uint32
	timeout  uint32 // milliseconds, 0 waits forever
	data     uintptr
}

// ifaceIoctl matches struct usbdevfs_ioctl.
type ifaceIoctl struct {
	ifno int32
	code int32
	data uintptr
}

const usbdevfsType = 'U'

var (
	ioctlBulk             = ioc(iocRead|iocWrite, usbdevfsType, 2, unsafe.Sizeof(bulkTransfer{}))
	ioctlSetConfiguration = ioc(iocRead, usbdevfsType, 5, 4)
	ioctlClaimInterface   = ioc(iocRead, usbdevfsType, 15, 4)
	ioctlReleaseInterface = ioc(iocRead, usbdevfsType, 16, 4)
	ioctlInterface        = ioc(iocRead|iocWrite, usbdevfsType, 18, unsafe.Sizeof(ifaceIoctl{}))
	ioctlDisconnect       = ioc(iocNone, usbdevfsType, 22, 0)
	ioctlConnect          = ioc(iocNone, usbdevfsType, 23, 0)
)

func ioctl(fd int, req, arg uintptr) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, arg)
	if errno != 0 {
		return int(r), errno
	}
	return int(r), nil
}

// ioctlUint issues req with a pointer to v.
func ioctlUint(fd int, req uintptr, v uint32) error {
	_, err := ioctl(fd, req, uintptr(unsafe.Pointer(&v)))
	return err
}

// doBulk runs one synchronous bulk transfer on endpoint.
func doBulk(fd int, endpoint uint8, p []byte, timeoutMS uint32) (int, error) {
	bulk := bulkTransfer{
		endpoint: uint32(endpoint),
		length:   uint32(len(p)),
		timeout:  timeoutMS,
	}
	if len(p) > 0 {
		bulk.data = uintptr(unsafe.Pointer(&p[0]))
	}
	n, err := ioctl(fd, ioctlBulk, uintptr(unsafe.Pointer(&bulk)))
	runtime.KeepAlive(p)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// driverIoctl forwards code to the kernel driver bound to iface.
func driverIoctl(fd, iface int, code uintptr) error {
	cmd := ifaceIoctl{ifno: int32(iface), code: int32(code)}
	_, err := ioctl(fd, ioctlInterface, uintptr(unsafe.Pointer(&cmd)))
	return err
}

package usb

import (
	"context"
	"errors"

	"github.com/google/gousb"

	"github.com/ardnew/usb2sock/pkg"
)

// translate wraps a gousb error in a [pkg.TransportError] carrying the
// libusb code and the sentinel that decides recovery.
func translate(op string, err error) error {
	return translateTransfer(context.Background(), op, err)
}

// translateTransfer is translate for a transfer that ran under ctx.
func translateTransfer(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := pkg.AsTransportError(err); ok {
		return err
	}

	te := &pkg.TransportError{Op: op, Lib: err, Desc: err.Error()}

	var code gousb.Error
	var status gousb.TransferStatus
	switch {
	case errors.As(err, &code):
		te.Code = int(code)
	case errors.As(err, &status):
		code = statusCode(ctx, status)
		te.Code = int(code)
	case errors.Is(err, context.DeadlineExceeded):
		code = gousb.ErrorTimeout
		te.Code = int(code)
	default:
		te.Code = int(gousb.ErrorOther)
		return te
	}
	te.Err = sentinel(code)
	return te
}

// statusCode maps an asynchronous transfer status onto the libusb error
// code a synchronous transfer would have returned. A cancellation caused by
// the transfer's own deadline counts as a timeout.
func statusCode(ctx context.Context, status gousb.TransferStatus) gousb.Error {
	switch status {
	case gousb.TransferTimedOut:
		return gousb.ErrorTimeout
	case gousb.TransferStall:
		return gousb.ErrorPipe
	case gousb.TransferOverflow:
		return gousb.ErrorOverflow
	case gousb.TransferNoDevice:
		return gousb.ErrorNoDevice
	case gousb.TransferCancelled:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return gousb.ErrorTimeout
		}
		return gousb.ErrorIO
	default:
		return gousb.ErrorIO
	}
}

func sentinel(code gousb.Error) error {
	switch code {
	case gousb.ErrorTimeout:
		return pkg.ErrTimeout
	case gousb.ErrorIO:
		return pkg.ErrIO
	case gousb.ErrorNoDevice:
		return pkg.ErrNoDevice
	case gousb.ErrorNotFound:
		return pkg.ErrNotFound
	default:
		return nil
	}
}

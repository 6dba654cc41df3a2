package pkg

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	// ErrTimeout indicates a transfer timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrIO indicates a transport-level I/O failure.
	ErrIO = errors.New("input/output error")

	// ErrNoDevice indicates the device is not present.
	ErrNoDevice = errors.New("device not present")

	// ErrNotFound indicates the requested entity (endpoint, device) is gone.
	ErrNotFound = errors.New("entity not found")

	// ErrOpenFailed indicates the device could not be opened.
	ErrOpenFailed = errors.New("device open failed")

	// ErrClaimFailed indicates the streaming interface could not be claimed.
	ErrClaimFailed = errors.New("interface claim failed")

	// ErrNoMatchingInterface indicates no interface exposes the streaming
	// class with a bulk IN and a bulk OUT endpoint.
	ErrNoMatchingInterface = errors.New("no matching interface")

	// ErrPartialHandshake indicates the handshake write timed out after the
	// device accepted only part of the token.
	ErrPartialHandshake = errors.New("handshake partially sent")

	// ErrNotSupported indicates an unsupported operation or platform feature.
	ErrNotSupported = errors.New("not supported")

	// ErrShortHandshake indicates the handshake write completed without
	// error but transferred fewer bytes than the token length.
	ErrShortHandshake = errors.New("handshake short write")
)

// Socket errors.
var (
	// ErrWouldBlock indicates a non-blocking operation found no data or no
	// buffer space. It is part of normal control flow.
	ErrWouldBlock = errors.New("operation would block")

	// ErrRegistryFull indicates the client registry is at capacity.
	ErrRegistryFull = errors.New("too many clients")

	// ErrAddressMismatch indicates an accepted peer address does not belong
	// to the listener's address family.
	ErrAddressMismatch = errors.New("peer address family mismatch")
)

// TransportError records a failed transport operation together with the
// numeric code and description reported by the USB library.
type TransportError struct {
	Op   string // Operation that failed, e.g. "bulk read"
	Code int    // Library error code
	Desc string // Library-provided description
	Err  error  // Sentinel classifying the failure, may be nil
	Lib  error  // Original library error, may be nil
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (code %d: %s)", e.Op, e.Err, e.Code, e.Desc)
	}
	return fmt.Sprintf("%s: code %d: %s", e.Op, e.Code, e.Desc)
}

// Unwrap exposes both the classifying sentinel and the library error.
func (e *TransportError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Lib != nil {
		errs = append(errs, e.Lib)
	}
	return errs
}

// AsTransportError returns the first [TransportError] in err's chain.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Disposition is the retry decision derived from a transport outcome.
type Disposition int

// Disposition values.
const (
	DispositionBenign  Disposition = iota // No data, keep looping at reduced rate
	DispositionAbandon                    // Close the session and rescan
	DispositionFatal                      // Terminate the program
)

// String returns a string representation of the disposition.
func (d Disposition) String() string {
	switch d {
	case DispositionBenign:
		return "benign"
	case DispositionAbandon:
		return "abandon"
	case DispositionFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps a transport error onto its [Disposition]. A nil error is
// benign. Unrecognized errors are fatal.
func Classify(err error) Disposition {
	switch {
	case err == nil, errors.Is(err, ErrTimeout):
		return DispositionBenign
	case errors.Is(err, ErrIO),
		errors.Is(err, ErrNoDevice),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrOpenFailed),
		errors.Is(err, ErrClaimFailed),
		errors.Is(err, ErrNoMatchingInterface):
		return DispositionAbandon
	default:
		return DispositionFatal
	}
}

// ExitCode returns the process exit status for err. A nil error exits 0.
// Transport errors exit with the low byte of the library code, any other
// error exits 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if te, ok := AsTransportError(err); ok {
		if code := int(uint8(te.Code)); code != 0 {
			return code
		}
	}
	return 1
}

package pkg

import (
	"errors"
	"fmt"
	"testing"
)

func TestDisposition_String(t *testing.T) {
	tests := []struct {
		d    Disposition
		want string
	}{
		{DispositionBenign, "benign"},
		{DispositionAbandon, "abandon"},
		{DispositionFatal, "fatal"},
		{Disposition(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.d.String(); got != tt.want {
				t.Errorf("Disposition.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	libErr := errors.New("LIBUSB_ERROR_OVERFLOW")

	tests := []struct {
		name string
		err  error
		want Disposition
	}{
		{"nil", nil, DispositionBenign},
		{"timeout", ErrTimeout, DispositionBenign},
		{"wrapped timeout", &TransportError{Op: "bulk read", Code: -7, Err: ErrTimeout}, DispositionBenign},
		{"io", ErrIO, DispositionAbandon},
		{"no device", fmt.Errorf("read: %w", ErrNoDevice), DispositionAbandon},
		{"not found", &TransportError{Op: "bulk read", Code: -5, Err: ErrNotFound}, DispositionAbandon},
		{"open", ErrOpenFailed, DispositionAbandon},
		{"claim", ErrClaimFailed, DispositionAbandon},
		{"no interface", ErrNoMatchingInterface, DispositionAbandon},
		{"partial handshake", ErrPartialHandshake, DispositionFatal},
		{"unclassified", &TransportError{Op: "bulk read", Code: -8, Lib: libErr}, DispositionFatal},
		{"plain", errors.New("boom"), DispositionFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	libErr := errors.New("LIBUSB_ERROR_NO_DEVICE")
	err := fmt.Errorf("session: %w", &TransportError{
		Op:   "bulk read",
		Code: -4,
		Desc: "No such device",
		Err:  ErrNoDevice,
		Lib:  libErr,
	})

	if !errors.Is(err, ErrNoDevice) {
		t.Error("errors.Is(err, ErrNoDevice) = false, want true")
	}
	if !errors.Is(err, libErr) {
		t.Error("errors.Is(err, libErr) = false, want true")
	}
	te, ok := AsTransportError(err)
	if !ok {
		t.Fatal("AsTransportError() ok = false, want true")
	}
	if te.Code != -4 {
		t.Errorf("Code = %d, want -4", te.Code)
	}
}

func TestTransportError_Error(t *testing.T) {
	withSentinel := &TransportError{Op: "bulk read", Code: -1, Desc: "Input/Output Error", Err: ErrIO}
	if got, want := withSentinel.Error(), "bulk read: input/output error (code -1: Input/Output Error)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := &TransportError{Op: "set config", Code: -6, Desc: "Resource busy"}
	if got, want := bare.Error(), "set config: code -6: Resource busy"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("bind failed"), 1},
		{"transport", &TransportError{Op: "bulk read", Code: -8}, 248},
		{"transport zero code", &TransportError{Op: "handshake", Code: 0, Err: ErrShortHandshake}, 1},
		{"wrapped transport", fmt.Errorf("run: %w", &TransportError{Code: -99}), 157},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorAttrs(t *testing.T) {
	plain := ErrorAttrs(errors.New("x"))
	if len(plain) != 2 {
		t.Errorf("len(ErrorAttrs(plain)) = %d, want 2", len(plain))
	}

	te := ErrorAttrs(&TransportError{Op: "bulk read", Code: -1, Desc: "Input/Output Error"})
	if len(te) != 6 {
		t.Fatalf("len(ErrorAttrs(transport)) = %d, want 6", len(te))
	}
	if te[2] != "code" || te[3] != -1 {
		t.Errorf("code attr = %v=%v, want code=-1", te[2], te[3])
	}
}

package usb

import (
	"errors"
	"testing"

	"github.com/google/gousb"

	"github.com/ardnew/usb2sock/pkg"
)

func TestNewGoUSB_InitFailure(t *testing.T) {
	saved := newContext
	defer func() { newContext = saved }()

	tests := []struct {
		name     string
		panicVal any
		wantCode int
		wantLib  bool
	}{
		{"libusb error", gousb.ErrorOther, int(gousb.ErrorOther), true},
		{"access denied", gousb.ErrorAccess, int(gousb.ErrorAccess), true},
		{"non-error value", "init blew up", int(gousb.ErrorOther), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newContext = func() *gousb.Context { panic(tt.panicVal) }

			tr, err := NewGoUSB(2)
			if tr != nil {
				t.Errorf("NewGoUSB() transport = %v, want nil", tr)
			}
			te, ok := pkg.AsTransportError(err)
			if !ok {
				t.Fatalf("NewGoUSB() error = %v, want *pkg.TransportError", err)
			}
			if te.Op != "init" {
				t.Errorf("Op = %q, want init", te.Op)
			}
			if te.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", te.Code, tt.wantCode)
			}
			var code gousb.Error
			if got := errors.As(err, &code); got != tt.wantLib {
				t.Errorf("errors.As(gousb.Error) = %v, want %v", got, tt.wantLib)
			}
			if pkg.ExitCode(err) == 0 {
				t.Errorf("ExitCode() = 0, want non-zero")
			}
			if got := pkg.Classify(err); got != pkg.DispositionFatal {
				t.Errorf("Classify() = %v, want fatal", got)
			}
		})
	}
}

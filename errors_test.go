package myriadusb

import (
	"errors"
	"testing"

	"github.com/google/gousb"
)

// The fakes speak the backend's error vocabulary.
var (
	errBusyForTest     error = gousb.ErrorBusy
	errAccessForTest   error = gousb.ErrorAccess
	errNoDeviceForTest error = gousb.ErrorNoDevice
	errTimeoutForTest  error = gousb.ErrorTimeout
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusSuccess},
		{errAccessForTest, StatusInsufficientPermissions},
		{ErrInsufficientPermissions, StatusInsufficientPermissions},
		{errTimeoutForTest, StatusError},
		{errors.New("anything else"), StatusError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	if !isBusyError(errBusyForTest) {
		t.Error("busy not classified as busy")
	}
	if !isNoDeviceError(errNoDeviceForTest) || !isNoDeviceError(gousb.TransferNoDevice) {
		t.Error("no-device not classified")
	}
	if !isTimeoutError(errTimeoutForTest) || !isTimeoutError(gousb.TransferTimedOut) {
		t.Error("timeout not classified")
	}
	if isTimeoutError(errBusyForTest) || isAccessError(errTimeoutForTest) {
		t.Error("cross-classification")
	}
}

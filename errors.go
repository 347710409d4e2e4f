package myriadusb

import (
	"context"
	"errors"

	"github.com/google/gousb"
)

// ErrDeviceNotFound is returned when no device with the requested path
// appeared on the bus within the polling window.
var ErrDeviceNotFound = errors.New("usb: device not found")

// ErrInsufficientPermissions is returned when the backend refused to open a
// device, typically for lack of an udev rule or equivalent OS access.
var ErrInsufficientPermissions = errors.New("usb: insufficient permissions")

// ErrBootTimeout is returned by the firmware boot path when a chunk write
// timed out or the whole send exceeded its budget.
var ErrBootTimeout = errors.New("usb: boot transfer timed out")

// ErrBootError is returned by the firmware boot path for any other transfer
// failure.
var ErrBootError = errors.New("usb: boot transfer failed")

// ErrDeviceClosed is returned for operations on a Connection that has
// already been closed.
var ErrDeviceClosed = errors.New("usb: device closed")

// errMXIDProgramMissing means the host was asked to query an unbooted
// device without an MXID request program configured.
var errMXIDProgramMissing = errors.New("usb: no mxid request payload configured")

// errShortTransfer stands in when a bulk transfer moved fewer bytes than
// the exchange requires without the backend reporting an error.
var errShortTransfer = errors.New("usb: short bulk transfer")

// Status is the per-device outcome attached to each DeviceInfo record. It is
// independent of the sweep-wide result: a sweep that completes reports
// success even when individual records carry StatusError.
type Status int

const (
	StatusSuccess Status = iota
	StatusInsufficientPermissions
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInsufficientPermissions:
		return "insufficient permissions"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// statusFor folds an acquisition error into the per-record status.
func statusFor(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case isAccessError(err):
		return StatusInsufficientPermissions
	default:
		return StatusError
	}
}

// The helpers below classify backend errors into the categories the retry
// and boot loops branch on. The vocabulary is libusb's, surfaced through
// gousb's error constants.

func isAccessError(err error) bool {
	return errors.Is(err, gousb.ErrorAccess) || errors.Is(err, ErrInsufficientPermissions)
}

func isNoDeviceError(err error) bool {
	return errors.Is(err, gousb.ErrorNoDevice) || errors.Is(err, gousb.TransferNoDevice)
}

func isBusyError(err error) bool {
	return errors.Is(err, gousb.ErrorBusy)
}

func isTimeoutError(err error) bool {
	return errors.Is(err, gousb.ErrorTimeout) ||
		errors.Is(err, gousb.TransferTimedOut) ||
		errors.Is(err, gousb.TransferCancelled) ||
		errors.Is(err, context.DeadlineExceeded)
}

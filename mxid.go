package myriadusb

import (
	"encoding/hex"
	"strings"
	"time"
)

const (
	// Per-transfer timeout for each leg of the MXID exchange.
	mxidTransferTimeout = 100 * time.Millisecond
	// Wall-clock budget for the whole retry window, and the pause
	// between attempts. Contention with another process claiming the
	// interface resolves well inside this window.
	mxidRetryBudget = 5 * time.Millisecond
	mxidRetrySleep  = 100 * time.Microsecond

	// The ROM answers the request program with exactly this many bytes.
	mxidResponseSize = 9

	// Bound on the serial read from booted devices.
	maxMXIDSize = 32
)

// deviceMXID obtains the persistent serial of the device behind ref, keyed
// and cached by its topology path. Unbooted devices run a small vendor
// program over the bulk endpoints; booted ones simply report their string
// descriptor.
func (h *Host) deviceMXID(state DeviceState, path string, ref deviceRef) (string, error) {
	if mxid, ok := h.cache.lookup(path); ok {
		debugf("cached mxid for %s: %s", path, mxid)
		return mxid, nil
	}
	if state == Unbooted && len(h.mxidPayload) == 0 {
		return "", errMXIDProgramMissing
	}

	handle, err := ref.open()
	if err != nil {
		// Permission, no-memory and gone errors are terminal here;
		// there is nothing to clean up beyond what the opener did.
		return "", err
	}
	defer handle.close()

	// Transient failures (busy interface, short transfers, configuration
	// churn) retry until the budget runs out; the last transport error
	// seen is what the caller gets.
	deadline := time.Now().Add(mxidRetryBudget)
	var mxid string
	for {
		if state == Unbooted {
			mxid, err = h.readROMSerial(handle)
		} else {
			mxid, err = readDescriptorSerial(handle)
		}
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return "", err
		}
		time.Sleep(mxidRetrySleep)
	}

	if slot := h.cache.store(path, mxid); slot >= 0 {
		debugf("cached mxid %s at slot %d", mxid, slot)
	} else {
		debugf("mxid cache full, not caching %s", mxid)
	}
	return mxid, nil
}

// readROMSerial runs one attempt of the exchange with unbooted ROM. The
// stages are config -> claim -> send request -> read response -> send end;
// a failure at any stage aborts the attempt and the caller retries from the
// top.
func (h *Host) readROMSerial(dev deviceHandle) (string, error) {
	cfg, err := dev.activeConfig()
	if err != nil {
		debugf("get configuration: %v", err)
		return "", err
	}
	if cfg != 1 {
		debugf("setting configuration from %d to 1", cfg)
		if err := dev.setConfig(1); err != nil {
			debugf("set configuration: %v", err)
			return "", err
		}
	}

	// Busy means another process holds the interface right now; that is
	// the expected contention case, not worth a log line.
	intf, err := dev.claim(0)
	if err != nil {
		if !isBusyError(err) {
			debugf("claim interface: %v", err)
		}
		return "", err
	}
	defer intf.release()

	// The request program also arms watchdog protection on the device
	// for the duration of the exchange.
	n, err := intf.bulkOut(endpointOut, h.mxidPayload, mxidTransferTimeout)
	if err != nil || n != len(h.mxidPayload) {
		return "", shortTransfer(err, n, len(h.mxidPayload))
	}

	buf := make([]byte, 128)
	n, err = intf.bulkIn(endpointIn, buf, mxidTransferTimeout)
	if err != nil || n != mxidResponseSize {
		return "", shortTransfer(err, n, mxidResponseSize)
	}

	n, err = intf.bulkOut(endpointOut, h.mxidPayloadEnd, mxidTransferTimeout)
	if err != nil || n != len(h.mxidPayloadEnd) {
		return "", shortTransfer(err, n, len(h.mxidPayloadEnd))
	}

	// 0x0F looks intended here, but 0xF0 is what shipped in the device
	// MDK. Keep the observed behavior; changing the mask would change
	// every reported MXID.
	buf[8] &= 0xF0

	return strings.ToUpper(hex.EncodeToString(buf[:mxidResponseSize])), nil
}

// readDescriptorSerial reads the serial of a booted or bootloader device
// from its string descriptor.
func readDescriptorSerial(dev deviceHandle) (string, error) {
	serial, err := dev.serial()
	if err != nil {
		debugf("serial descriptor: %v", err)
		return "", err
	}
	if len(serial) > maxMXIDSize {
		serial = serial[:maxMXIDSize]
	}
	return serial, nil
}

func shortTransfer(err error, got, want int) error {
	if err == nil {
		err = errShortTransfer
	}
	debugf("bulk transfer: %v (%d of %d bytes)", err, got, want)
	return err
}

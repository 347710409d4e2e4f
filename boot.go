package myriadusb

import (
	"fmt"
	"time"
)

// BootFirmware pushes a firmware image into the device at the given path.
// The path is the one the enumerator reported for the unbooted device; the
// call waits for the device to (re)appear on the bus before sending, so it
// can be issued right after a reset.
//
// The image travels as max-packet-sized bulk writes on the discovered OUT
// endpoint, with a zero-length trailer when the image length is a multiple
// of 512. The device re-enumerates in its booted state afterwards, under
// the same path.
func (h *Host) BootFirmware(path string, firmware []byte) error {
	// Phase A: wait for the device to show up.
	ref, err := h.waitForDevice(path, 10*time.Millisecond, h.connectTimeout)
	if err != nil {
		return err
	}
	defer ref.release()

	var usbSpec uint16 = 0x0200
	if d, err := ref.desc(); err == nil {
		usbSpec = d.usbSpec
	}

	// Phase B: open, select configuration 1, claim interface 0 and find
	// the bulk OUT endpoint. The open can fail for a while right after
	// the device appears (permissions racing udev), so poll.
	var (
		handle deviceHandle
		intf   claimedIntf
		ep     bulkEndpoint
	)
	deadline := time.Now().Add(h.connectTimeout)
	for {
		handle, intf, ep, err = openBootDevice(ref)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return ErrInsufficientPermissions
		}
		time.Sleep(100 * time.Millisecond)
	}
	defer handle.close()
	defer intf.release()

	return h.sendFirmware(intf, ep, firmware, usbSpec)
}

// waitForDevice polls the bus for a device with the given path.
func (h *Host) waitForDevice(path string, interval, timeout time.Duration) (deviceRef, error) {
	deadline := time.Now().Add(timeout)
	for {
		ref, err := h.refDeviceByPath(path)
		if err == nil {
			return ref, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrDeviceNotFound
		}
		time.Sleep(interval)
	}
}

// openBootDevice opens the referenced device and prepares it for the
// firmware send. On any failure the handle is closed before returning.
func openBootDevice(ref deviceRef) (deviceHandle, claimedIntf, bulkEndpoint, error) {
	handle, err := ref.open()
	if err != nil {
		return nil, nil, bulkEndpoint{}, err
	}
	cfg, err := handle.activeConfig()
	if err != nil {
		handle.close()
		return nil, nil, bulkEndpoint{}, err
	}
	if cfg != 1 {
		debugf("setting configuration from %d to 1", cfg)
		if err := handle.setConfig(1); err != nil {
			handle.close()
			return nil, nil, bulkEndpoint{}, err
		}
	}
	intf, err := handle.claim(0)
	if err != nil {
		handle.close()
		return nil, nil, bulkEndpoint{}, err
	}
	ep, err := intf.outEndpoint()
	if err != nil {
		intf.release()
		handle.close()
		return nil, nil, bulkEndpoint{}, err
	}
	debugf("boot endpoint 0x%02x, max packet %d", ep.address, ep.maxPacket)
	return handle, intf, ep, nil
}

// sendFirmware streams the image in endpoint-sized chunks within the send
// budget.
func (h *Host) sendFirmware(intf claimedIntf, ep bulkEndpoint, firmware []byte, usbSpec uint16) error {
	chunk := ep.maxPacket
	if chunk <= 0 {
		chunk = h.chunkSize
	}
	if usbSpec < 0x0200 {
		chunk = usb1ChunkSize
	}
	sendZLP := len(firmware)%zlpBoundary == 0

	debugf("bulk write of %d bytes in %d byte chunks", len(firmware), chunk)
	deadline := time.Now().Add(h.sendTimeout)
	sent := 0
	for sent < len(firmware) || sendZLP {
		wb := len(firmware) - sent
		if wb > chunk {
			wb = chunk
		}
		n, err := intf.bulkOut(ep.address, firmware[sent:sent+wb], h.writeTimeout)
		if (err != nil || n != wb) && wb != 0 { // the ZLP result is not checked
			if isNoDeviceError(err) {
				// The device can drop off the bus as soon as it
				// has consumed the image; treat as end of send.
				break
			}
			debugf("bulk write: %v (%d of %d bytes)", err, n, wb)
			if isTimeoutError(err) {
				return ErrBootTimeout
			}
			return ErrBootError
		}
		if time.Now().After(deadline) {
			return ErrBootTimeout
		}
		if wb == 0 {
			// The ZLP trailer was just sent.
			break
		}
		sent += n
	}
	return nil
}

// BootBootloader asks the device at the given path to reboot into its
// bootloader through a vendor control request. Best effort: the device
// usually resets before completing the transfer, so its result is ignored.
func (h *Host) BootBootloader(path string) error {
	ref, err := h.refDeviceByPath(path)
	if err != nil {
		return err
	}
	defer ref.release()

	handle, err := ref.open()
	if err != nil {
		return fmt.Errorf("usb: open %s: %w", path, err)
	}
	defer handle.close()

	_, _ = handle.control(0x00, 0xF5, 0x0DA1, 0x0000, nil)
	return nil
}

package myriadusb

import "time"

// The interfaces below are the seam between the transport logic and the USB
// library. Production code uses the gousb implementation; tests substitute
// fakes.

type backend interface {
	// devices returns one reference per device currently on the bus, in
	// the backend's list order. The caller releases every reference.
	devices() ([]deviceRef, error)
	// close releases the backend context.
	close() error
}

// deviceRef is the pre-open form of a device: enough to read its descriptor
// and topology path without claiming it.
type deviceRef interface {
	// desc reads the device descriptor.
	desc() (refDesc, error)
	// path renders the bus/port topology path.
	path() string
	// open opens the device; the returned handle is exclusively owned by
	// the caller and must be closed on every exit path.
	open() (deviceHandle, error)
	// release drops this reference. The ref must not be used afterwards.
	release()
}

// refDesc carries the descriptor fields the enumerator branches on.
type refDesc struct {
	vendor  uint16
	product uint16
	usbSpec uint16 // BCD-coded USB release, e.g. 0x0110, 0x0200
}

// deviceHandle is an opened device.
type deviceHandle interface {
	// activeConfig reads the active configuration value (from the OS
	// cache where the backend supports it).
	activeConfig() (int, error)
	// setConfig selects the given configuration.
	setConfig(cfg int) error
	// claim claims the numbered interface on configuration 1 and returns
	// the endpoint surface for it.
	claim(intf int) (claimedIntf, error)
	// serial reads the ASCII serial number string descriptor.
	serial() (string, error)
	// control performs a control transfer on the default endpoint.
	control(rType, request uint8, val, idx uint16, data []byte) (int, error)
	// close releases any interface still claimed through this handle and
	// closes it.
	close() error
}

// claimedIntf is a claimed interface; all bulk traffic goes through it.
type claimedIntf interface {
	// bulkOut writes to the given OUT endpoint address. A zero timeout
	// blocks until completion or error.
	bulkOut(ep uint8, p []byte, timeout time.Duration) (int, error)
	// bulkIn reads from the given IN endpoint address.
	bulkIn(ep uint8, p []byte, timeout time.Duration) (int, error)
	// outEndpoint scans the endpoint descriptors for the first bulk OUT
	// endpoint.
	outEndpoint() (bulkEndpoint, error)
	// release releases the claim. Errors are not interesting to callers.
	release()
}

type bulkEndpoint struct {
	address   uint8
	maxPacket int
}

func releaseRefs(refs []deviceRef) {
	for _, r := range refs {
		r.release()
	}
}

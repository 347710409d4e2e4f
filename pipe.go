package myriadusb

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Connection is the post-boot bulk data pipe to one device: a fixed IN/OUT
// endpoint pair on interface 0. A Connection is intended to be owned by one
// goroutine at a time; reads and writes from a single goroutine observe
// strict ordering.
type Connection struct {
	id     string
	handle deviceHandle
	intf   claimedIntf
	chunk  int

	mu     sync.Mutex
	closed bool
}

// Connect opens the bulk data pipe to the booted device at the given path,
// polling for the device up to the open timeout.
func (h *Host) Connect(path string) (*Connection, error) {
	if path == "" {
		return nil, ErrDeviceNotFound
	}
	ref, err := h.waitForDevice(path, 10*time.Millisecond, h.openTimeout)
	if err != nil {
		return nil, err
	}
	handle, err := ref.open()
	ref.release()
	if err != nil {
		if isAccessError(err) {
			return nil, ErrInsufficientPermissions
		}
		return nil, fmt.Errorf("usb: open %s: %w", path, err)
	}
	intf, err := handle.claim(0)
	if err != nil {
		handle.close()
		return nil, fmt.Errorf("usb: claim %s: %w", path, err)
	}
	c := &Connection{
		id:     uuid.NewString(),
		handle: handle,
		intf:   intf,
		chunk:  h.chunkSize,
	}
	debugf("connection %s open to %s", c.id, path)
	return c, nil
}

// Read fills p from the IN endpoint. It blocks until all of p was received
// or the backend reports an error, whichever comes first; there is no
// timeout and no retry.
func (c *Connection) Read(p []byte) (int, error) {
	intf, err := c.pipe()
	if err != nil {
		return 0, err
	}
	total := 0
	for total < len(p) {
		chunk := len(p) - total
		if chunk > c.chunk {
			chunk = c.chunk
		}
		n, err := intf.bulkIn(endpointIn, p[total:total+chunk], 0)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Write sends p to the OUT endpoint. Same contract as Read: all bytes or
// the first backend error.
func (c *Connection) Write(p []byte) (int, error) {
	intf, err := c.pipe()
	if err != nil {
		return 0, err
	}
	total := 0
	for total < len(p) {
		chunk := len(p) - total
		if chunk > c.chunk {
			chunk = c.chunk
		}
		n, err := intf.bulkOut(endpointOut, p[total:total+chunk], 0)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (c *Connection) pipe() (claimedIntf, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrDeviceClosed
	}
	return c.intf, nil
}

// Close releases the claimed interface and the device handle. Further
// operations return ErrDeviceClosed.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrDeviceClosed
	}
	c.closed = true
	c.intf.release()
	err := c.handle.close()
	debugf("connection %s closed", c.id)
	return err
}

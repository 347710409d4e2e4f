package myriadusb

import (
	"sync"
	"time"
)

// Fakes for the backend seam. Function fields override behavior per test;
// nil fields fall back to a successful default.

type fakeBackend struct {
	mu      sync.Mutex
	refs    []deviceRef
	listErr error
	lists   int
	closed  bool
}

func (b *fakeBackend) devices() ([]deviceRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists++
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]deviceRef(nil), b.refs...), nil
}

func (b *fakeBackend) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type fakeRef struct {
	vendor   uint16
	product  uint16
	usbSpec  uint16
	devPath  string
	descErr  error
	openErr  error
	handle   *fakeHandle
	opens    int
	releases int
}

func newFakeRef(vendor, product uint16, path string, h *fakeHandle) *fakeRef {
	return &fakeRef{vendor: vendor, product: product, usbSpec: 0x0200, devPath: path, handle: h}
}

func (r *fakeRef) desc() (refDesc, error) {
	if r.descErr != nil {
		return refDesc{}, r.descErr
	}
	return refDesc{vendor: r.vendor, product: r.product, usbSpec: r.usbSpec}, nil
}

func (r *fakeRef) path() string { return r.devPath }

func (r *fakeRef) open() (deviceHandle, error) {
	r.opens++
	if r.openErr != nil {
		return nil, r.openErr
	}
	return r.handle, nil
}

func (r *fakeRef) release() { r.releases++ }

type fakeHandle struct {
	active     int
	activeErr  error
	setErr     error
	claimBusy  int // first claimBusy claims fail with ErrorBusy
	claimErr   error
	serialStr  string
	serialErr  error
	intf       *fakeIntf
	claims     int
	closes     int
	controls   []fakeControl
	controlErr error
}

type fakeControl struct {
	rType, request uint8
	val, idx       uint16
}

func (h *fakeHandle) activeConfig() (int, error) {
	if h.activeErr != nil {
		return 0, h.activeErr
	}
	return h.active, nil
}

func (h *fakeHandle) setConfig(cfg int) error {
	if h.setErr != nil {
		return h.setErr
	}
	h.active = cfg
	return nil
}

func (h *fakeHandle) claim(intf int) (claimedIntf, error) {
	h.claims++
	if h.claimBusy > 0 {
		h.claimBusy--
		return nil, errBusyForTest
	}
	if h.claimErr != nil {
		return nil, h.claimErr
	}
	return h.intf, nil
}

func (h *fakeHandle) serial() (string, error) {
	if h.serialErr != nil {
		return "", h.serialErr
	}
	return h.serialStr, nil
}

func (h *fakeHandle) control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	h.controls = append(h.controls, fakeControl{rType, request, val, idx})
	if h.controlErr != nil {
		return 0, h.controlErr
	}
	return len(data), nil
}

func (h *fakeHandle) close() error {
	h.closes++
	return nil
}

type fakeIntf struct {
	onBulkOut func(ep uint8, p []byte, timeout time.Duration) (int, error)
	onBulkIn  func(ep uint8, p []byte, timeout time.Duration) (int, error)
	out       bulkEndpoint
	outErr    error
	releases  int
}

func (i *fakeIntf) bulkOut(ep uint8, p []byte, timeout time.Duration) (int, error) {
	if i.onBulkOut != nil {
		return i.onBulkOut(ep, p, timeout)
	}
	return len(p), nil
}

func (i *fakeIntf) bulkIn(ep uint8, p []byte, timeout time.Duration) (int, error) {
	if i.onBulkIn != nil {
		return i.onBulkIn(ep, p, timeout)
	}
	return len(p), nil
}

func (i *fakeIntf) outEndpoint() (bulkEndpoint, error) {
	if i.outErr != nil {
		return bulkEndpoint{}, i.outErr
	}
	return i.out, nil
}

func (i *fakeIntf) release() { i.releases++ }

// testHost builds a host over a fake backend with poll windows short enough
// for tests.
func testHost(b backend, opts ...Option) *Host {
	h := newHost(b, opts...)
	h.openTimeout = 50 * time.Millisecond
	h.connectTimeout = 50 * time.Millisecond
	h.sendTimeout = time.Second
	return h
}

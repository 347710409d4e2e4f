// Package myriadusb implements the USB host side of the Myriad link
// transport: enumerating devices in their unbooted, booted and bootloader
// states, acquiring their persistent MXID serials, booting firmware images
// into them, and moving bulk data after boot.
package myriadusb

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

const (
	defaultChunkSize      = 1024 * 1024
	usb1ChunkSize         = 64
	defaultWriteTimeout   = 2000 * time.Millisecond
	defaultOpenTimeout    = 5 * time.Second
	defaultConnectTimeout = 20 * time.Second
	defaultSendTimeout    = 10 * time.Second
	controlTimeout        = 1000 * time.Millisecond

	// Fixed endpoint pair of the link protocol.
	endpointIn  = 0x81
	endpointOut = 0x01

	// A firmware image whose length is a multiple of this needs a ZLP
	// trailer so the device sees the end of the transfer.
	zlpBoundary = 512
)

var debugLog = log.New(io.Discard, "myriadusb: ", log.LstdFlags)

// SetDebug redirects the package's debug stream, io.Discard by default.
func SetDebug(w io.Writer) {
	debugLog.SetOutput(w)
}

func debugf(format string, args ...interface{}) {
	debugLog.Printf(format, args...)
}

// Host owns the USB backend context, the per-sweep MXID cache and the
// transfer defaults. All enumeration and lookup goes through one Host; a
// process that wants a global can wrap one in a singleton.
type Host struct {
	mu      sync.Mutex // serialises enumeration, lookup and the cache
	backend backend
	cache   mxidCache

	chunkSize    int
	writeTimeout time.Duration

	// Poll windows; fixed in production, shortened by tests.
	openTimeout    time.Duration
	connectTimeout time.Duration
	sendTimeout    time.Duration

	// Opaque request program pushed into unbooted ROM to coax the MXID
	// out of it, and the exchange-end payload. Supplied by the caller.
	mxidPayload    []byte
	mxidPayloadEnd []byte

	usbDebugLevel int
}

// Option configures a Host.
type Option func(*Host)

// WithBulkChunkSize sets the chunk size used for boot transfers when the
// endpoint's max packet size is unknown, and for the bulk data pipe.
func WithBulkChunkSize(n int) Option {
	return func(h *Host) { h.chunkSize = n }
}

// WithWriteTimeout sets the per-chunk timeout for boot transfers.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Host) { h.writeTimeout = d }
}

// WithMXIDPayload supplies the request program sent to unbooted devices
// during MXID acquisition and the payload that ends the exchange. Without
// it, unbooted devices enumerate with an empty MXID and StatusError.
func WithMXIDPayload(request, end []byte) Option {
	return func(h *Host) {
		h.mxidPayload = request
		h.mxidPayloadEnd = end
	}
}

// WithUSBDebugLevel turns on the USB library's own debug output at the
// given libusb level.
func WithUSBDebugLevel(level int) Option {
	return func(h *Host) { h.usbDebugLevel = level }
}

// NewHost initialises the USB backend and returns the host facade.
func NewHost(opts ...Option) *Host {
	b := newGousbBackend()
	h := newHost(b, opts...)
	if h.usbDebugLevel > 0 {
		b.ctx.Debug(h.usbDebugLevel)
	}
	return h
}

func newHost(b backend, opts ...Option) *Host {
	h := &Host{
		backend:        b,
		chunkSize:      defaultChunkSize,
		writeTimeout:   defaultWriteTimeout,
		openTimeout:    defaultOpenTimeout,
		connectTimeout: defaultConnectTimeout,
		sendTimeout:    defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Close releases the backend context. In-flight connections stay usable;
// they own their handles.
func (h *Host) Close() error {
	return h.backend.close()
}

// Devices runs one enumeration sweep: it walks the bus, keeps devices from
// the recognised vendor/product table that pass the filter, acquires each
// one's MXID, and reports up to limit records (no limit when limit <= 0).
//
// A completed sweep returns nil even when individual records carry a
// non-success Status; only a failure to obtain the device list at all is an
// error.
func (h *Host) Devices(filter Filter, limit int) ([]DeviceInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cache.reset()

	refs, err := h.backend.devices()
	if err != nil {
		return nil, fmt.Errorf("usb: device list: %w", err)
	}
	defer releaseRefs(refs)

	var found []DeviceInfo
	for _, ref := range refs {
		if limit > 0 && len(found) >= limit {
			break
		}

		d, err := ref.desc()
		if err != nil {
			debugf("device descriptor: %v", err)
			continue
		}
		state, ok := deviceStates[vidpid{d.vendor, d.product}]
		if !ok {
			continue
		}
		if !filter.matchState(state) {
			continue
		}

		path := ref.path()
		if filter.Path != "" && filter.Path != path {
			continue
		}

		// An MXID failure doesn't drop the device; it shows up in the
		// record's status instead.
		mxid, err := h.deviceMXID(state, path, ref)
		status := statusFor(err)
		if err != nil {
			debugf("mxid for %s: %v", path, err)
			mxid = ""
		}
		if filter.MXID != "" && filter.MXID != mxid {
			continue
		}

		found = append(found, DeviceInfo{
			Status:   status,
			Platform: PlatformMyriadX,
			Protocol: ProtocolUSBVSC,
			State:    state,
			Path:     path,
			MXID:     mxid,
		})
	}
	return found, nil
}

// refDeviceByPath walks the bus and returns a reference to the device whose
// topology path matches exactly. The caller owns the returned reference and
// must release it.
func (h *Host) refDeviceByPath(path string) (deviceRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	refs, err := h.backend.devices()
	if err != nil {
		return nil, fmt.Errorf("usb: device list: %w", err)
	}

	var found deviceRef
	for _, ref := range refs {
		if found == nil && path != "" && ref.path() == path {
			found = ref
			continue
		}
		ref.release()
	}
	if found == nil {
		return nil, ErrDeviceNotFound
	}
	return found, nil
}

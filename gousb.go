package myriadusb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
	"github.com/google/gousb/usbid"
)

// gousbBackend implements the backend seam on top of github.com/google/gousb.
type gousbBackend struct {
	ctx *gousb.Context
}

func newGousbBackend() *gousbBackend {
	return &gousbBackend{ctx: gousb.NewContext()}
}

// devices collects the descriptors of every device on the bus without
// opening any of them: the opener callback sees each descriptor and declines
// the open.
func (b *gousbBackend) devices() ([]deviceRef, error) {
	var descs []*gousb.DeviceDesc
	if _, err := b.ctx.OpenDevices(func(d *gousb.DeviceDesc) bool {
		descs = append(descs, d)
		return false
	}); err != nil {
		return nil, err
	}
	refs := make([]deviceRef, len(descs))
	for i, d := range descs {
		refs[i] = &gousbRef{backend: b, d: d}
	}
	return refs, nil
}

func (b *gousbBackend) close() error {
	return b.ctx.Close()
}

type gousbRef struct {
	backend *gousbBackend
	d       *gousb.DeviceDesc
}

func (r *gousbRef) desc() (refDesc, error) {
	return refDesc{
		vendor:  uint16(r.d.Vendor),
		product: uint16(r.d.Product),
		usbSpec: uint16(r.d.Spec),
	}, nil
}

func (r *gousbRef) path() string {
	return encodePath(r.d.Bus, r.d.Path)
}

// open re-walks the bus and opens the device at this ref's address.
func (r *gousbRef) open() (deviceHandle, error) {
	devs, err := r.backend.ctx.OpenDevices(func(d *gousb.DeviceDesc) bool {
		return d.Bus == r.d.Bus && d.Address == r.d.Address
	})
	if err != nil {
		for _, d := range devs {
			d.Close()
		}
		return nil, err
	}
	if len(devs) == 0 {
		return nil, gousb.ErrorNoDevice
	}
	dev := devs[0]
	for _, d := range devs[1:] {
		d.Close()
	}
	dev.ControlTimeout = controlTimeout
	// Take over interface 0 from any kernel driver; ignore failure, the
	// claim reports it if it matters.
	_ = dev.SetAutoDetach(true)
	debugf("opened %s (%s)", r.path(), usbid.Describe(r.d))
	return &gousbHandle{dev: dev}, nil
}

// release is nominal for gousb: descriptors are plain values and the backend
// holds no per-device count for unopened devices.
func (r *gousbRef) release() {}

type gousbHandle struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
}

func (h *gousbHandle) activeConfig() (int, error) {
	return h.dev.ActiveConfigNum()
}

func (h *gousbHandle) setConfig(cfg int) error {
	c, err := h.dev.Config(cfg)
	if err != nil {
		return err
	}
	h.cfg = c
	return nil
}

func (h *gousbHandle) claim(intf int) (claimedIntf, error) {
	if h.cfg == nil {
		c, err := h.dev.Config(1)
		if err != nil {
			return nil, err
		}
		h.cfg = c
	}
	i, err := h.cfg.Interface(intf, 0)
	if err != nil {
		return nil, err
	}
	h.intf = i
	return &gousbIntf{handle: h, intf: i}, nil
}

func (h *gousbHandle) serial() (string, error) {
	return h.dev.SerialNumber()
}

func (h *gousbHandle) control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	return h.dev.Control(rType, request, val, idx, data)
}

func (h *gousbHandle) close() error {
	if h.intf != nil {
		h.intf.Close()
		h.intf = nil
	}
	if h.cfg != nil {
		// Config release failures are unactionable here; the device
		// close below is what matters.
		_ = h.cfg.Close()
		h.cfg = nil
	}
	return h.dev.Close()
}

type gousbIntf struct {
	handle *gousbHandle
	intf   *gousb.Interface
}

func (i *gousbIntf) bulkOut(ep uint8, p []byte, timeout time.Duration) (int, error) {
	out, err := i.intf.OutEndpoint(int(ep & 0x0F))
	if err != nil {
		return 0, err
	}
	if timeout == 0 {
		return out.Write(p)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return out.WriteContext(ctx, p)
}

func (i *gousbIntf) bulkIn(ep uint8, p []byte, timeout time.Duration) (int, error) {
	in, err := i.intf.InEndpoint(int(ep & 0x0F))
	if err != nil {
		return 0, err
	}
	if timeout == 0 {
		return in.Read(p)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return in.ReadContext(ctx, p)
}

func (i *gousbIntf) outEndpoint() (bulkEndpoint, error) {
	var (
		best  bulkEndpoint
		found bool
	)
	for _, ep := range i.intf.Setting.Endpoints {
		if ep.Direction != gousb.EndpointDirectionOut || ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		// Endpoints is a map; keep the lowest address so the pick is
		// deterministic and matches descriptor order in practice.
		if !found || uint8(ep.Address) < best.address {
			best = bulkEndpoint{address: uint8(ep.Address), maxPacket: ep.MaxPacketSize}
			found = true
		}
	}
	if !found {
		return bulkEndpoint{}, fmt.Errorf("usb: no bulk OUT endpoint on interface %d", i.intf.Setting.Number)
	}
	return best, nil
}

func (i *gousbIntf) release() {
	i.intf.Close()
	if i.handle.intf == i.intf {
		i.handle.intf = nil
	}
}

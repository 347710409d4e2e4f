package myriadusb

// DeviceState is the lifecycle state of a Myriad device on the bus. A device
// cycles through these states as it is booted: the ROM enumerates as
// Unbooted, and re-enumerates as Booted (or Bootloader) after a firmware
// image has been pushed into it.
type DeviceState int

const (
	// AnyState is only meaningful as a Filter value; it is never reported
	// for a found device.
	AnyState DeviceState = iota
	Unbooted
	Booted
	Bootloader
)

func (s DeviceState) String() string {
	switch s {
	case AnyState:
		return "any"
	case Unbooted:
		return "unbooted"
	case Booted:
		return "booted"
	case Bootloader:
		return "bootloader"
	}
	return "unknown"
}

// Platform identifies the device family behind a transport.
type Platform int

// PlatformMyriadX is the only platform this transport produces.
const PlatformMyriadX Platform = iota

func (p Platform) String() string {
	if p == PlatformMyriadX {
		return "myriad-x"
	}
	return "unknown"
}

// Protocol identifies the transport a device was found on.
type Protocol int

// ProtocolUSBVSC (vendor-specific class over USB bulk endpoints) is the only
// protocol this transport produces.
const ProtocolUSBVSC Protocol = iota

func (p Protocol) String() string {
	if p == ProtocolUSBVSC {
		return "usb-vsc"
	}
	return "unknown"
}

type vidpid struct {
	vendor  uint16
	product uint16
}

// deviceStates maps the recognised vendor/product pairs to the lifecycle
// state they enumerate in. Any other pair is not a Myriad device.
var deviceStates = map[vidpid]DeviceState{
	{0x03E7, 0x2485}: Unbooted,
	{0x03E7, 0xF63B}: Booted,
	{0x03E7, 0xF63C}: Bootloader,
}

// DeviceInfo describes one device found by an enumeration sweep.
type DeviceInfo struct {
	Status   Status // per-device outcome, independent of the sweep result
	Platform Platform
	Protocol Protocol
	State    DeviceState
	Path     string // bus/port topology path, never empty
	MXID     string // empty when the serial could not be obtained
}

// Filter restricts which devices an enumeration sweep reports. Zero fields
// match everything.
type Filter struct {
	State DeviceState // AnyState matches every state
	Path  string
	MXID  string
}

func (f Filter) matchState(s DeviceState) bool {
	return f.State == AnyState || f.State == s
}

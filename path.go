package myriadusb

import "strconv"

// maxPortChain is the deepest USB topology libusb reports port numbers for.
const maxPortChain = 7

// pathOverflow is reported when the backend hands us a port chain longer
// than maxPortChain. The device stays usable, but the path compares unequal
// to any user-supplied filter.
const pathOverflow = "<error>"

// encodePath renders the canonical device path, "bus" followed by the port
// chain, all decimal: "3", "3.1", "3.1.4". The path is stable across the
// device's soft reboots between lifecycle states, which is what makes it a
// usable key for the MXID cache and for boot-time re-discovery.
func encodePath(bus int, ports []int) string {
	if len(ports) > maxPortChain {
		return pathOverflow
	}
	path := strconv.Itoa(bus)
	for _, p := range ports {
		path += "." + strconv.Itoa(p)
	}
	return path
}

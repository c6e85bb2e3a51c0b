package host

import (
	"fmt"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// Scan is the set of controllers discovered by one bus enumeration and not
// yet bound to a unit, in discovery order.
type Scan struct {
	pending []Handle
	gen     int
}

// Len returns the number of unbound controllers.
func (s *Scan) Len() int {
	return len(s.pending)
}

// Handles returns the unbound controller handles.
func (s *Scan) Handles() []Handle {
	h := make([]Handle, len(s.pending))
	copy(h, s.pending)
	return h
}

// Enumerate walks the bus for USB host controller functions and creates a
// controller for each usable one. The returned scan is consumed by Bind.
func (h *Host) Enumerate() (*Scan, error) {
	sc := &Scan{gen: h.pool.gen}
	pkg.LogDebug(pkg.ComponentEnum, "searching for devices")
	err := h.bus.EnumerateFunctions(hal.USBFilter, func(fn hal.Function) {
		if _, err := h.enumerateFunction(sc, fn); err != nil {
			pkg.LogDebug(pkg.ComponentEnum, "function skipped",
				"location", fn.Info().Location.String(),
				"error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate PCI bus: %w", err)
	}
	pkg.LogDebug(pkg.ComponentEnum, "scan complete", "controllers", sc.Len())
	return sc, nil
}

// supported returns true if controllers of type t are accepted.
func (h *Host) supported(t hal.HCIType) bool {
	switch t {
	case hal.HCIUHCI, hal.HCIOHCI, hal.HCIEHCI:
		return true
	case hal.HCIXHCI:
		return XHCIBuilt && h.cfg.EnableXHCI
	default:
		return false
	}
}

// enumerateFunction creates a controller for fn and appends it to sc.
func (h *Host) enumerateFunction(sc *Scan, fn hal.Function) (*Controller, error) {
	info := fn.Info()
	devID := info.Location.DeviceID()

	pkg.LogDebug(pkg.ComponentEnum, "found PCI device",
		"devid", fmt.Sprintf("0x%x", devID),
		"type", info.Interface.String(),
		"intline", info.IntLine)

	if info.IntLine == hal.IntLineUnassigned {
		// Firmware left the function unrouted; it needs plug and play
		// OS support disabled.
		pkg.LogError(pkg.ComponentEnum, "PCI card has no interrupt line assigned",
			"location", info.Location.String())
		return nil, pkg.ErrUnassignedInterrupt
	}

	if !h.supported(info.Interface) {
		pkg.LogInfo(pkg.ComponentEnum, "unsupported HCI type",
			"location", info.Location.String(),
			"type", info.Interface.String())
		return nil, pkg.ErrUnsupportedInterface
	}

	c := h.pool.alloc()
	if c == nil {
		pkg.LogError(pkg.ComponentEnum, "failed to allocate storage for controller entry",
			"location", info.Location.String(),
			"limit", h.pool.limit)
		return nil, pkg.ErrNoMemory
	}

	c.fn = fn
	c.hci = info.Interface
	c.location = info.Location
	c.devID = devID
	c.funcNum = info.Location.Function
	c.intLine = info.IntLine
	c.vendorID = info.VendorID
	c.productID = info.ProductID
	c.Queues = Queues{}
	c.config = newConfigAccessor(fn)

	sc.pending = append(sc.pending, c.handle)

	c.quirks = DetectQuirks(c.hci, c.vendorID, c.productID)
	if c.quirks != 0 {
		pkg.LogDebug(pkg.ComponentQuirk, "quirks applied",
			"controller", c.String(),
			"quirks", c.quirks.String())
	}
	return c, nil
}

package host

import (
	"fmt"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// Bind groups the controllers of sc into units. Controllers sharing the
// device identity and interrupt line of the first remaining controller are
// moved, in discovery order, into a new unit until sc is empty. Each bound
// controller is added to the device tree.
//
// A scan taken before Expunge binds nothing.
func (h *Host) Bind(sc *Scan) []*Unit {
	if sc.gen != h.pool.gen {
		pkg.LogWarn(pkg.ComponentBind, "discarding stale scan",
			"controllers", len(sc.pending))
		sc.pending = nil
		return nil
	}
	live := sc.pending[:0]
	for _, handle := range sc.pending {
		if c := h.pool.get(handle); c != nil && c.unit == nil {
			live = append(live, handle)
		}
	}
	sc.pending = live

	var bound []*Unit
	for len(sc.pending) > 0 {
		key := h.pool.get(sc.pending[0])
		u := &Unit{
			index:   len(h.units),
			pool:    &h.pool,
			devID:   key.devID,
			intLine: key.intLine,
		}

		rest := sc.pending[:0]
		for _, handle := range sc.pending {
			c := h.pool.get(handle)
			if c.devID != u.devID || c.intLine != u.intLine {
				rest = append(rest, handle)
				continue
			}
			u.add(c)
			h.register(u, c)
		}
		sc.pending = rest

		pkg.LogDebug(pkg.ComponentBind, "unit created",
			"unit", u.index,
			"devid", fmt.Sprintf("0x%x", u.devID),
			"controllers", len(u.members))

		h.units = append(h.units, u)
		bound = append(bound, u)
	}
	return bound
}

// register adds a bound controller to the device tree.
func (h *Host) register(u *Unit, c *Controller) {
	c.name = fmt.Sprintf("%s/%d", h.cfg.Name, u.index)
	if h.tree == nil {
		return
	}
	err := h.tree.AddDriver(hal.Node{
		Name:         c.name,
		HardwareName: description(c.hci),
		Producer:     0,
		Product:      u.devID,
		DriverData:   c,
	})
	if err != nil {
		pkg.LogWarn(pkg.ComponentBind, "device tree registration failed",
			"controller", c.String(),
			"error", err)
	}
}

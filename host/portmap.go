package host

import (
	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// mapPorts computes the unit's root hub port tables from the port counts
// reported by bring-up. Every member controller must have been initialized.
//
// High-speed and super-speed controllers own their ports one to one. Each
// companion controller either takes the next contiguous block of global
// ports or, when it reports a routing bitmask, every high-speed port whose
// 4-bit field matches its function number.
func (u *Unit) mapPorts() {
	u.resetPorts()

	var usb20, usb30 int
	for _, c := range u.Controllers() {
		c.localPorts = 0
		switch c.hci {
		case hal.HCIEHCI:
			if usb20 > 0 {
				pkg.LogWarn(pkg.ComponentPort, "more than one EHCI controller per board",
					"unit", u.index,
					"controller", c.String())
				u.portMap20 = [MaxRootPorts]*Controller{}
			}
			usb20 = c.numPorts
			for global := 0; global < usb20; global++ {
				u.portMap20[global] = c
				c.assignPort(global)
			}
		case hal.HCIXHCI:
			if usb30 > 0 {
				pkg.LogWarn(pkg.ComponentPort, "more than one XHCI controller per board",
					"unit", u.index,
					"controller", c.String())
			}
			usb30 = c.numPorts
			for global := 0; global < usb30; global++ {
				c.assignPort(global)
			}
		}
	}

	var usb11 int
	for _, c := range u.Controllers() {
		if !c.hci.IsCompanion() {
			continue
		}
		if c.complexRouting {
			for global := 0; global < usb20; global++ {
				if c.routedFunction(global) != c.funcNum {
					continue
				}
				u.mapCompanionPort(c, global)
			}
			pkg.LogDebug(pkg.ComponentPort, "companion ports routed by bitmask",
				"unit", u.index,
				"controller", c.String(),
				"route", c.portRoute,
				"ports", c.LocalPorts())
		} else {
			start := usb11
			for global := start; global < start+c.numPorts; global++ {
				if global >= MaxRootPorts {
					pkg.LogWarn(pkg.ComponentPort, "companion ports exceed root hub limit",
						"unit", u.index,
						"controller", c.String(),
						"limit", MaxRootPorts)
					break
				}
				u.mapCompanionPort(c, global)
			}
		}
		usb11 += c.localPorts
	}

	if usb20 > 0 && usb11 != usb20 {
		pkg.LogWarn(pkg.ComponentPort, pkg.ErrPortTopology.Error(),
			"unit", u.index,
			"usb11", usb11,
			"usb20", usb20)
	}

	u.rootHub11Ports = usb11
	u.rootHub20Ports = usb20
	u.rootHub30Ports = usb30
	u.rootHubPorts = max(usb11, usb20)

	// Ports without a high-speed mapping fall back to the companion owning
	// them, or to UHCI when no companion does.
	for global := 0; global < u.rootHubPorts; global++ {
		switch {
		case u.portMap20[global] != nil:
			u.portOwner[global] = hal.HCIEHCI
		case u.portMap11[global] != nil:
			u.portOwner[global] = u.portMap11[global].hci
		default:
			u.portOwner[global] = hal.HCIUHCI
			pkg.LogDebug(pkg.ComponentPort, "port has no mapped controller",
				"unit", u.index,
				"port", global)
		}
	}

	pkg.LogDebug(pkg.ComponentPort, "root hub ports mapped",
		"unit", u.index,
		"usb11", u.rootHub11Ports,
		"usb20", u.rootHub20Ports,
		"usb30", u.rootHub30Ports,
		"ports", u.rootHubPorts)
}

// mapCompanionPort assigns a global 1.1 port to the next local port of c.
func (u *Unit) mapCompanionPort(c *Controller, global int) {
	local := c.assignPort(global)
	u.portMap11[global] = c
	u.portNum11[global] = local
}

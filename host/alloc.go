package host

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// =============================================================================
// Allocation
// =============================================================================

// AllocUnit takes exclusive ownership of every controller of u, brings each
// up through its protocol, maps the root hub ports and puts the unit online.
//
// Allocation is all or nothing: on failure no controller of u is online and
// every ownership acquired during the attempt has been released.
func (h *Host) AllocUnit(u *Unit) error {
	switch u.state {
	case UnitOnline:
		return fmt.Errorf("%v: %w", u, pkg.ErrAlreadyOnline)
	case UnitUnbound:
	default:
		return fmt.Errorf("%v: %w: %v", u, pkg.ErrInvalidState, u.state)
	}

	pkg.LogDebug(pkg.ComponentUnit, "allocating unit",
		"unit", u.index,
		"controllers", len(u.members))
	u.state = UnitAllocating

	cs := u.Controllers()
	if err := h.acquire(u, cs); err != nil {
		u.state = UnitUnbound
		return err
	}

	for i, c := range cs {
		if err := h.bringUp(u, c); err != nil {
			pkg.LogError(pkg.ComponentUnit, "controller bring-up failed",
				"unit", u.index,
				"controller", c.String(),
				"error", err)
			h.unwind(u, cs, i)
			u.state = UnitUnbound
			return fmt.Errorf("%v: %w", u, err)
		}
	}

	u.mapPorts()
	u.frameCounter = 1
	u.rootHubAddr = 0

	version := Version{1, 0}
	for _, c := range cs {
		c.flags |= FlagOnline
		if v := ProtocolVersion(c.hci); version.Less(v) {
			version = v
		}
		if c.hci == hal.HCIXHCI {
			version = h.xhciRelease(c, version)
		}
	}
	u.productName = productName(cs, version)
	u.state = UnitOnline

	pkg.LogInfo(pkg.ComponentUnit, "unit allocated",
		"unit", u.index,
		"product", u.productName,
		"ports", u.rootHubPorts)
	return nil
}

// acquire claims every controller of u. On the first conflict every claim
// already made is released.
func (h *Host) acquire(u *Unit, cs []*Controller) error {
	for i, c := range cs {
		err := h.rm.Acquire(c.fn, h.cfg.Name)
		if err == nil {
			c.flags |= FlagAllocated
			continue
		}
		pkg.LogError(pkg.ComponentUnit, "couldn't allocate board",
			"unit", u.index,
			"controller", c.String(),
			"error", err)
		for _, prev := range cs[:i] {
			h.release(prev)
		}
		return fmt.Errorf("%v: %w", u, err)
	}
	return nil
}

// bringUp runs the protocol-specific initialization of c.
func (h *Host) bringUp(u *Unit, c *Controller) error {
	p, ok := h.protocols[c.hci]
	if !ok {
		return fmt.Errorf("%w: %v: no protocol for %v", pkg.ErrBringup, c, c.hci)
	}
	c.resetPorts()
	if err := p.Init(c, u); err != nil {
		return fmt.Errorf("%w: %v: %w", pkg.ErrBringup, c, err)
	}
	pkg.LogDebug(pkg.ComponentUnit, "controller initialized",
		"controller", c.String(),
		"ports", c.numPorts,
		"complex", c.complexRouting)
	return nil
}

// unwind reverses an allocation that failed at cs[failed]: the
// controllers brought up before it are stopped, everything they and the
// failed controller hold or reported is cleared, and every controller is
// released.
func (h *Host) unwind(u *Unit, cs []*Controller, failed int) {
	var result *multierror.Error
	for _, c := range cs[:failed] {
		if p, ok := h.protocols[c.hci]; ok {
			p.Stop(c, u)
		}
	}
	for _, c := range cs[:failed+1] {
		result = multierror.Append(result, h.freeMemory(c), h.deactivate(c))
		c.resetPorts()
	}
	for _, c := range cs {
		h.release(c)
	}
	if err := result.ErrorOrNil(); err != nil {
		pkg.LogWarn(pkg.ComponentUnit, "incomplete rollback",
			"unit", u.index,
			"error", err)
	}
}

// xhciRelease raises v to the serial bus release number reported by c.
func (h *Host) xhciRelease(c *Controller, v Version) Version {
	sbrn, err := c.config.ReadConfigByte(CfgSBRN)
	if err != nil {
		pkg.LogWarn(pkg.ComponentConfig, "cannot read serial bus release number",
			"controller", c.String(),
			"error", err)
		return v
	}
	if hw := VersionFromBCD(sbrn); v.Less(hw) {
		return hw
	}
	return v
}

// productName builds the unit's product name from the interface types of
// its controllers and the highest USB release they implement.
func productName(cs []*Controller, v Version) string {
	var uhci, ohci, ehci, xhci int
	for _, c := range cs {
		switch c.hci {
		case hal.HCIUHCI:
			uhci++
		case hal.HCIOHCI:
			ohci++
		case hal.HCIEHCI:
			ehci++
		case hal.HCIXHCI:
			xhci++
		}
	}

	var tags []string
	if n := uhci + ohci; n > 0 {
		tag := hal.HCIUHCI.String()
		if ohci > 0 {
			tag = hal.HCIOHCI.String()
		}
		if n > 1 {
			tag = strconv.Itoa(n) + "x" + tag
		}
		tags = append(tags, tag)
	}
	if ehci > 0 {
		tags = append(tags, hal.HCIEHCI.String())
	}
	if XHCIBuilt && xhci > 0 {
		tags = append(tags, hal.HCIXHCI.String())
	}

	var b strings.Builder
	b.WriteString("PCI ")
	b.WriteString(strings.Join(tags, "/"))
	fmt.Fprintf(&b, " USB %v Host Controller", v)
	return b.String()
}

// =============================================================================
// Deallocation
// =============================================================================

// FreeUnit takes u offline, stops and deactivates its controllers and
// releases their ownership. It is best effort: a step that fails on one
// controller is logged and the remaining steps and controllers proceed.
// The only error is ErrNotOnline, for a unit that was not allocated.
func (h *Host) FreeUnit(u *Unit) error {
	if u.state != UnitOnline {
		err := fmt.Errorf("%v: %w: %v", u, pkg.ErrNotOnline, u.state)
		pkg.LogDebug(pkg.ComponentUnit, "unit not freed",
			"unit", u.index,
			"error", err)
		return err
	}
	pkg.LogDebug(pkg.ComponentUnit, "freeing unit", "unit", u.index)
	u.state = UnitDeallocating

	cs := u.Controllers()
	for _, c := range cs {
		c.flags &^= FlagOnline
	}
	for _, c := range cs {
		if p, ok := h.protocols[c.hci]; ok {
			p.Stop(c, u)
		}
	}

	var result *multierror.Error
	for _, c := range cs {
		result = multierror.Append(result, h.freeMemory(c))
	}
	for _, c := range cs {
		result = multierror.Append(result, h.deactivate(c))
		h.release(c)
	}
	if err := result.ErrorOrNil(); err != nil {
		pkg.LogWarn(pkg.ComponentUnit, "incomplete unit teardown",
			"unit", u.index,
			"error", err)
	}

	u.state = UnitUnbound
	pkg.LogInfo(pkg.ComponentUnit, "unit freed", "unit", u.index)
	return nil
}

// freeMemory returns every memory block held by c.
func (h *Host) freeMemory(c *Controller) error {
	var result *multierror.Error
	for _, block := range c.memory {
		if err := c.fn.FreeMemory(block); err != nil {
			result = multierror.Append(result, fmt.Errorf("%v: free memory: %w", c, err))
		}
	}
	c.memory = nil
	return result.ErrorOrNil()
}

// deactivate disables bus mastering and decoding of c's function and
// removes its interrupt handler.
func (h *Host) deactivate(c *Controller) error {
	var result *multierror.Error
	cmd, err := c.config.ReadConfigWord(CfgCommand)
	if err == nil {
		cmd &^= CmdIOEnable | CmdMemoryEnable | CmdBusMaster
		err = c.config.WriteConfigWord(CfgCommand, cmd)
	}
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("%v: deactivate: %w", c, err))
	}
	if c.irq != nil {
		if err := c.fn.RemoveInterrupt(c.irq); err != nil {
			result = multierror.Append(result, fmt.Errorf("%v: remove interrupt: %w", c, err))
		}
		c.irq = nil
	}
	return result.ErrorOrNil()
}

// release gives up ownership of c if held.
func (h *Host) release(c *Controller) {
	if c.flags&FlagAllocated == 0 {
		return
	}
	c.flags &^= FlagAllocated
	if err := h.rm.Release(c.fn); err != nil {
		pkg.LogWarn(pkg.ComponentUnit, "release failed",
			"controller", c.String(),
			"error", err)
	}
}

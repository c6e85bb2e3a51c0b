package host

import (
	"fmt"
	"strings"

	"github.com/ardnew/pciusb/host/hal"
)

// MaxRootPorts is the maximum number of root hub ports of a unit.
const MaxRootPorts = 16

// DefaultMaxControllers is the default capacity of the controller pool.
const DefaultMaxControllers = 32

// DefaultName is the default driver name. It keys ownership claims and
// prefixes device tree node names.
const DefaultName = "pciusb.device"

// routeBits is the width of one port field in a complex routing bitmask.
const routeBits = 4

// =============================================================================
// Configuration Space Registers
// =============================================================================

// PCI configuration space offsets used by the driver.
const (
	CfgVendorID  uint8 = 0x00
	CfgProductID uint8 = 0x02
	CfgCommand   uint8 = 0x04
	CfgProgIF    uint8 = 0x09
	CfgIntLine   uint8 = 0x3C
	CfgSBRN      uint8 = 0x60 // Serial bus release number (EHCI/XHCI)
)

// Command register bits.
const (
	CmdIOEnable     uint16 = 1 << 0
	CmdMemoryEnable uint16 = 1 << 1
	CmdBusMaster    uint16 = 1 << 2
)

// =============================================================================
// Controller Flags
// =============================================================================

// ControllerFlags holds the lifecycle flags of a controller.
type ControllerFlags uint8

// Controller flag bits.
const (
	FlagAllocated ControllerFlags = 1 << iota // Ownership acquired
	FlagOnline                                // Brought up and in service
)

// =============================================================================
// Unit State
// =============================================================================

// UnitState is the allocation state of a unit.
type UnitState uint8

// Unit states.
const (
	UnitUnbound      UnitState = iota // Bound but not allocated
	UnitAllocating                    // Allocation in progress
	UnitOnline                        // Allocated and in service
	UnitDeallocating                  // Teardown in progress
)

// String returns a human-readable state name.
func (s UnitState) String() string {
	switch s {
	case UnitUnbound:
		return "unbound"
	case UnitAllocating:
		return "allocating"
	case UnitOnline:
		return "online"
	case UnitDeallocating:
		return "deallocating"
	default:
		return fmt.Sprintf("UnitState(%d)", s)
	}
}

// =============================================================================
// USB Versions
// =============================================================================

// Version is a USB specification release.
type Version struct {
	Major uint8
	Minor uint8
}

// Less compares versions by major, then minor.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// VersionFromBCD decodes a serial bus release number register.
func VersionFromBCD(b uint8) Version {
	return Version{Major: b >> 4, Minor: b & 0x0F}
}

// ProtocolVersion returns the USB release implemented by an interface type.
func ProtocolVersion(t hal.HCIType) Version {
	switch t {
	case hal.HCIOHCI:
		return Version{1, 1}
	case hal.HCIEHCI:
		return Version{2, 0}
	case hal.HCIXHCI:
		return Version{3, 0}
	default:
		return Version{1, 0}
	}
}

// description returns the device tree description of an interface type.
func description(t hal.HCIType) string {
	switch t {
	case hal.HCIUHCI:
		return "PCI USB 1.x UHCI Host controller"
	case hal.HCIOHCI:
		return "PCI USB 1.1 OHCI Host controller"
	case hal.HCIEHCI:
		return "PCI USB 2.0 EHCI Host controller"
	case hal.HCIXHCI:
		return "PCI USB 3.x XHCI Host controller"
	default:
		return "PCI USB Host controller"
	}
}

// =============================================================================
// Quirks
// =============================================================================

// Quirk is a bitmask of hardware erratum workarounds.
type Quirk uint32

// Quirk bits.
const (
	QuirkEHCIOverlayCtrlFill   Quirk = 1 << iota // Fill control qTD overlay
	QuirkEHCIOverlayIntFill                      // Fill interrupt qTD overlay
	QuirkEHCIOverlayBulkFill                     // Fill bulk qTD overlay
	QuirkEHCIFrameRollover                       // Frame list rollover interrupt unreliable
	QuirkEHCIFrameCounterBug                     // Frame index register misreads
)

// QuirkEHCIOverlayFill is the set of overlay fill bits every EHCI controller
// starts with.
const QuirkEHCIOverlayFill = QuirkEHCIOverlayCtrlFill | QuirkEHCIOverlayIntFill | QuirkEHCIOverlayBulkFill

var quirkNames = []struct {
	q    Quirk
	name string
}{
	{QuirkEHCIOverlayCtrlFill, "overlay-ctrl-fill"},
	{QuirkEHCIOverlayIntFill, "overlay-int-fill"},
	{QuirkEHCIOverlayBulkFill, "overlay-bulk-fill"},
	{QuirkEHCIFrameRollover, "frame-rollover"},
	{QuirkEHCIFrameCounterBug, "frame-counter-bug"},
}

// Has returns true if every bit of x is set in q.
func (q Quirk) Has(x Quirk) bool {
	return q&x == x
}

// String returns the set quirk names joined by "|", or "none".
func (q Quirk) String() string {
	if q == 0 {
		return "none"
	}
	var names []string
	for _, n := range quirkNames {
		if q&n.q != 0 {
			names = append(names, n.name)
			q &^= n.q
		}
	}
	if q != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(q)))
	}
	return strings.Join(names, "|")
}

package host

import (
	"github.com/ardnew/pciusb/host/hal"
)

// Vendor and product ids with known errata.
const (
	VendorIntel   uint16 = 0x8086
	VendorMosChip uint16 = 0x9710

	// ProductVBoxEHCI is the ICH6 EHCI id presented by the VirtualBox
	// emulated controller.
	ProductVBoxEHCI uint16 = 0x265C
)

// quirkRule applies a workaround to a quirk mask when its predicate matches.
type quirkRule struct {
	name  string
	match func(t hal.HCIType, vendor, product uint16) bool
	apply func(q Quirk) Quirk
}

// quirkRules are evaluated in order. The first rule is the EHCI baseline;
// later rules may add or remove bits set by earlier ones. The vendor rules
// are mutually exclusive.
var quirkRules = []quirkRule{
	{
		name: "ehci-baseline",
		match: func(t hal.HCIType, _, _ uint16) bool {
			return t == hal.HCIEHCI
		},
		apply: func(q Quirk) Quirk {
			return q | QuirkEHCIOverlayFill
		},
	},
	{
		// The emulated controller reports a 1024 entry frame list but
		// raises rollover interrupts only a few times per second.
		name: "vbox-ehci",
		match: func(_ hal.HCIType, vendor, product uint16) bool {
			return vendor == VendorIntel && product == ProductVBoxEHCI
		},
		apply: func(q Quirk) Quirk {
			return q&^QuirkEHCIOverlayFill | QuirkEHCIFrameRollover
		},
	},
	{
		name: "moschip-frame-counter",
		match: func(_ hal.HCIType, vendor, _ uint16) bool {
			return vendor == VendorMosChip
		},
		apply: func(q Quirk) Quirk {
			return q | QuirkEHCIFrameCounterBug
		},
	},
}

// DetectQuirks returns the erratum workarounds required by a controller.
// It is a pure function of its arguments.
func DetectQuirks(t hal.HCIType, vendor, product uint16) Quirk {
	var q Quirk
	for _, r := range quirkRules {
		if r.match(t, vendor, product) {
			q = r.apply(q)
		}
	}
	return q
}

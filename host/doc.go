// Package host implements the enumeration and binding engine of a
// multi-protocol PCI USB host controller driver.
//
// It is platform-agnostic and reaches hardware only through the interfaces
// of package [github.com/ardnew/pciusb/host/hal]. Register-level bring-up
// of each controller family is supplied by the caller as a [Protocol].
//
// # Lifecycle
//
// A [Host] is driven through four stages:
//
//   - Enumerate walks the bus for USB class functions and creates one
//     [Controller] per usable function, returning a [Scan]
//   - Bind groups the controllers of a scan into [Unit]s by device identity
//     and interrupt line, and registers each controller in the device tree
//   - AllocUnit acquires ownership of a unit's controllers, brings them up,
//     maps root hub ports and synthesizes the product name
//   - FreeUnit stops and releases an online unit
//
// Init performs the first two stages. Expunge frees everything.
//
// # Controllers
//
// Controllers live in a pool owned by the host and are referred to by
// [Handle]. A unit holds the handles of its members in discovery order.
// Functions without a routed interrupt line and interface types outside
// the supported set are skipped. XHCI is accepted only when the package is
// built without the noxhci tag and [Config].EnableXHCI is set.
//
// Erratum workarounds are computed once per controller by [DetectQuirks].
//
// # Root Hub Ports
//
// A unit presents a single root hub. An EHCI controller owns global ports
// 0 to n-1. Each UHCI or OHCI companion takes the next contiguous block of
// global ports, or, when its bring-up reports a routing bitmask with
// [Controller.SetPortRoute], every EHCI port whose 4-bit field equals its
// PCI function number. A mismatch between the companion and EHCI totals
// is logged and tolerated.
//
// # Example
//
//	h := host.New(host.DefaultConfig(), bus, rm,
//		host.WithProtocol(hal.HCIUHCI, uhci),
//		host.WithProtocol(hal.HCIEHCI, ehci),
//	)
//	if err := h.Init(); err != nil {
//		return err
//	}
//	for _, u := range h.Units() {
//		if err := h.AllocUnit(u); err != nil {
//			log.Print(err)
//			continue
//		}
//		fmt.Println(u.ProductName())
//	}
//	defer h.Expunge()
package host

// Package hal defines the Hardware Abstraction Layer interfaces used by the
// pciusb enumeration and binding engine.
//
// The HAL separates the engine from the platform's PCI bus, its ownership
// arbitration and its device tree. Platform vendors implement these
// interfaces; the engine in package host implements grouping, port mapping
// and the allocation lifecycle on top of them.
//
// # Interface Overview
//
//   - [Bus] yields PCI functions matching a class filter
//   - [Function] exposes a function's attributes, generic configuration
//     space access, interrupt registration and mapped memory
//   - [ConfigSpace] is the optional typed method table used for fast
//     configuration space access
//   - [ResourceManager] grants exclusive, non-blocking ownership
//   - [DeviceTree] receives one node per bound controller
//
// # Implementations
//
// A sysfs-backed implementation is available in
// [github.com/ardnew/pciusb/host/hal/linux], and an in-memory simulator
// for tests and dry runs in [github.com/ardnew/pciusb/host/hal/sim].
package hal

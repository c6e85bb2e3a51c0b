package hal

import (
	"fmt"
)

// HCIType identifies a USB host controller interface. Values equal the PCI
// programming interface byte of a serial-bus/USB class function.
type HCIType uint8

// Host controller interface types (PCI class 0x0C, subclass 0x03).
const (
	HCIUHCI HCIType = 0x00 // Universal Host Controller Interface (USB 1.x)
	HCIOHCI HCIType = 0x10 // Open Host Controller Interface (USB 1.1)
	HCIEHCI HCIType = 0x20 // Enhanced Host Controller Interface (USB 2.0)
	HCIXHCI HCIType = 0x30 // eXtensible Host Controller Interface (USB 3.x)
)

// String returns the interface tag used in product names.
func (t HCIType) String() string {
	switch t {
	case HCIUHCI:
		return "UHCI"
	case HCIOHCI:
		return "OHCI"
	case HCIEHCI:
		return "EHCI"
	case HCIXHCI:
		return "XHCI"
	default:
		return fmt.Sprintf("HCI(0x%02x)", uint8(t))
	}
}

// IsCompanion returns true for the low/full-speed interfaces that share
// root hub ports with a high-speed controller.
func (t HCIType) IsCompanion() bool {
	return t == HCIUHCI || t == HCIOHCI
}

// PCI class codes for USB host controllers.
const (
	ClassSerialBus uint8 = 0x0C
	SubclassUSB    uint8 = 0x03
)

// IntLineUnassigned is the interrupt line value reported for a function that
// the firmware did not route to an interrupt.
const IntLineUnassigned uint8 = 0xFF

// ClassFilter selects functions by PCI base class and subclass.
type ClassFilter struct {
	Class    uint8
	Subclass uint8
}

// USBFilter matches every USB host controller function.
var USBFilter = ClassFilter{Class: ClassSerialBus, Subclass: SubclassUSB}

// Location is the bus address of a PCI function.
type Location struct {
	Domain   uint16
	Bus      uint8
	Device   uint8
	Function uint8
}

// String returns the location in domain:bus:device.function notation.
func (l Location) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%x", l.Domain, l.Bus, l.Device, l.Function)
}

// ParseLocation parses a location in domain:bus:device.function notation.
func ParseLocation(s string) (Location, error) {
	var l Location
	n, err := fmt.Sscanf(s, "%x:%x:%x.%x", &l.Domain, &l.Bus, &l.Device, &l.Function)
	if err != nil || n != 4 {
		return Location{}, fmt.Errorf("malformed PCI address %q", s)
	}
	if l.Device > 0x1F || l.Function > 0x07 {
		return Location{}, fmt.Errorf("PCI address %q out of range", s)
	}
	return l, nil
}

// DeviceID returns the bus and device numbers encoded as one integer.
// Functions of the same physical board share a DeviceID. The domain is
// not included.
func (l Location) DeviceID() uint32 {
	return uint32(l.Bus)<<16 | uint32(l.Device)
}

// Resource is a memory or I/O window decoded by one base address register.
type Resource struct {
	Index int    // BAR index
	Base  uint64 // Start address
	Size  uint64 // Window size in bytes
	IO    bool   // I/O space rather than memory space
}

// FunctionInfo holds the attributes of a PCI function resolved by the bus
// before a driver sees it.
type FunctionInfo struct {
	Location  Location
	Interface HCIType // Programming interface
	IntLine   uint8   // Assigned interrupt line, IntLineUnassigned if none
	VendorID  uint16
	ProductID uint16
	Resources []Resource
}

// Width is the access width of a configuration space register.
type Width uint8

// Configuration register access widths.
const (
	Width8  Width = 1
	Width16 Width = 2
	Width32 Width = 4
)

// Interrupt is a handler registered against a function's interrupt line.
// Handlers are compared by identity.
type Interrupt struct {
	Name    string
	Handler func()
}

// MemoryBlock is a block of memory mapped for device access.
type MemoryBlock struct {
	Mem  []byte
	Addr uintptr // Bus address seen by the device
}

// Function is one addressable PCI function.
//
// ReadConfig and WriteConfig form the generic configuration space path.
// Implementations that can dispatch typed accesses directly should also
// implement [ConfigSpace].
type Function interface {
	// Info returns the function's bus-resolved attributes.
	Info() FunctionInfo

	// ReadConfig reads a configuration register of the given width.
	ReadConfig(offset uint8, width Width) (uint32, error)

	// WriteConfig writes a configuration register of the given width.
	WriteConfig(offset uint8, width Width, value uint32) error

	// AddInterrupt registers an interrupt handler.
	AddInterrupt(irq *Interrupt) error

	// RemoveInterrupt removes a previously registered handler.
	RemoveInterrupt(irq *Interrupt) error

	// AllocMemory maps a block of device-accessible memory.
	AllocMemory(size int) (*MemoryBlock, error)

	// FreeMemory releases a block returned by AllocMemory.
	FreeMemory(block *MemoryBlock) error
}

// ConfigSpace is the typed configuration space method table of a function.
type ConfigSpace interface {
	ReadConfigByte(offset uint8) (uint8, error)
	ReadConfigWord(offset uint8) (uint16, error)
	ReadConfigLong(offset uint8) (uint32, error)
	WriteConfigByte(offset uint8, value uint8) error
	WriteConfigWord(offset uint8, value uint16) error
	WriteConfigLong(offset uint8, value uint32) error
}

// Bus enumerates PCI functions.
type Bus interface {
	// EnumerateFunctions calls fn once for every function matching filter.
	EnumerateFunctions(filter ClassFilter, fn func(Function)) error

	// Close releases the bus. Functions must not be used afterwards.
	Close() error
}

// ResourceManager arbitrates exclusive ownership of functions. Neither
// method blocks.
type ResourceManager interface {
	// Acquire claims fn for owner. If another owner holds fn, Acquire
	// returns a *pkg.ConflictError naming it.
	Acquire(fn Function, owner string) error

	// Release gives up a claim made by Acquire.
	Release(fn Function) error
}

// Node describes a driver instance added to the system device tree.
type Node struct {
	Name         string // Generated instance name
	HardwareName string // Human-readable description
	Producer     uint32 // Vendor id
	Product      uint32 // Product id
	DriverData   any
}

// DeviceTree receives driver instances.
type DeviceTree interface {
	AddDriver(node Node) error
}

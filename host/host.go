package host

import (
	"fmt"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// Protocol brings a controller of one interface type up and down. The
// register-level work is done by the implementation; the host only
// sequences calls.
type Protocol interface {
	// Init brings up c as part of u. On success it must have reported the
	// physical port count with SetNumPorts and, for companions whose ports
	// are routed by bitmask, the bitmask with SetPortRoute.
	Init(c *Controller, u *Unit) error

	// Stop halts c's hardware activity. Protocol-owned memory need not be
	// reclaimed.
	Stop(c *Controller, u *Unit)
}

// Config holds driver policy.
type Config struct {
	// Name identifies the driver to the resource manager and prefixes
	// device tree node names.
	Name string

	// EnableXHCI accepts XHCI controllers. It has no effect unless
	// XHCIBuilt is true.
	EnableXHCI bool

	// MaxControllers bounds the controller pool.
	MaxControllers int
}

// DefaultConfig returns the default driver policy.
func DefaultConfig() Config {
	return Config{
		Name:           DefaultName,
		MaxControllers: DefaultMaxControllers,
	}
}

// Option configures a Host.
type Option func(*Host)

// WithProtocol installs the bring-up implementation for one interface type.
func WithProtocol(t hal.HCIType, p Protocol) Option {
	return func(h *Host) {
		h.protocols[t] = p
	}
}

// WithDeviceTree sets the device tree that receives bound controllers.
func WithDeviceTree(tree hal.DeviceTree) Option {
	return func(h *Host) {
		h.tree = tree
	}
}

// Host enumerates and binds the USB host controllers of a PCI bus and
// manages the lifecycle of the resulting units.
//
// A Host is not safe for concurrent use; callers serialize Init, AllocUnit,
// FreeUnit and Expunge.
type Host struct {
	cfg       Config
	bus       hal.Bus
	rm        hal.ResourceManager
	tree      hal.DeviceTree
	protocols map[hal.HCIType]Protocol

	pool  pool
	units []*Unit
}

// New creates a host on the given bus and resource manager.
func New(cfg Config, bus hal.Bus, rm hal.ResourceManager, opts ...Option) *Host {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.MaxControllers <= 0 {
		cfg.MaxControllers = DefaultMaxControllers
	}
	h := &Host{
		cfg:       cfg,
		bus:       bus,
		rm:        rm,
		tree:      NewDeviceTree(),
		protocols: make(map[hal.HCIType]Protocol),
		pool:      pool{limit: cfg.MaxControllers},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Config returns the driver policy.
func (h *Host) Config() Config { return h.cfg }

// DeviceTree returns the device tree receiving bound controllers.
func (h *Host) DeviceTree() hal.DeviceTree { return h.tree }

// Init scans the bus and binds the discovered controllers into units.
// Functions that cannot be used are skipped; Init fails only if the bus
// itself cannot be enumerated.
func (h *Host) Init() error {
	sc, err := h.Enumerate()
	if err != nil {
		return err
	}
	h.Bind(sc)
	return nil
}

// Units returns the bound units in creation order.
func (h *Host) Units() []*Unit {
	units := make([]*Unit, len(h.units))
	copy(units, h.units)
	return units
}

// Unit returns the unit with the given index.
func (h *Host) Unit(index int) (*Unit, error) {
	if index < 0 || index >= len(h.units) {
		return nil, fmt.Errorf("%w: %d", pkg.ErrNoUnit, index)
	}
	return h.units[index], nil
}

// Controller returns the controller with the given handle, or nil.
func (h *Host) Controller(handle Handle) *Controller {
	return h.pool.get(handle)
}

// Expunge tears down every online unit, drops all units and controllers
// and closes the bus.
func (h *Host) Expunge() error {
	pkg.LogDebug(pkg.ComponentUnit, "expunging driver", "units", len(h.units))
	for _, u := range h.units {
		if u.state == UnitOnline {
			h.FreeUnit(u)
		}
		for _, c := range u.Controllers() {
			c.unit = nil
		}
		u.members = nil
	}
	h.units = nil
	h.pool.reset()
	if h.bus == nil {
		return nil
	}
	return h.bus.Close()
}

package host

import (
	"fmt"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// Handle is the stable index of a controller in the host's pool.
type Handle int

// Queue is a FIFO of transfer requests. The driver only creates queues;
// protocol collaborators fill and drain them.
type Queue struct {
	items []any
}

// Push appends a request.
func (q *Queue) Push(v any) {
	q.items = append(q.items, v)
}

// Pop removes and returns the oldest request.
func (q *Queue) Pop() (any, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	v := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return v, true
}

// Len returns the number of queued requests.
func (q *Queue) Len() int {
	return len(q.items)
}

// Clear removes all requests.
func (q *Queue) Clear() {
	q.items = nil
}

// Queues holds the transfer queues of a controller.
type Queues struct {
	Periodic    Queue // Periodic transfer descriptors
	Control     Queue
	Interrupt   Queue
	Isochronous Queue
	Bulk        Queue
	General     Queue // Transfer descriptors pending completion
	Abort       Queue
	Retire      Queue // Descriptors awaiting retirement
}

// Controller is one USB host controller chip exposed as one PCI function.
type Controller struct {
	handle Handle
	fn     hal.Function
	config hal.ConfigSpace

	hci       hal.HCIType
	location  hal.Location
	devID     uint32
	funcNum   uint8
	intLine   uint8
	vendorID  uint16
	productID uint16
	quirks    Quirk
	flags     ControllerFlags

	// Reported by protocol bring-up
	numPorts       int
	complexRouting bool
	portRoute      uint64

	// Local to global root hub port numbers
	portNum    [MaxRootPorts]int
	localPorts int

	// Queues are created empty at enumeration
	Queues Queues

	memory []*hal.MemoryBlock
	irq    *hal.Interrupt

	// Owning unit, nil until bound
	unit *Unit
	name string
}

// String returns a short description for logging.
func (c *Controller) String() string {
	return fmt.Sprintf("%v@%v", c.hci, c.location)
}

// Handle returns the controller's pool handle.
func (c *Controller) Handle() Handle { return c.handle }

// Function returns the underlying PCI function.
func (c *Controller) Function() hal.Function { return c.fn }

// Config returns the controller's configuration space accessor.
func (c *Controller) Config() hal.ConfigSpace { return c.config }

// Type returns the host controller interface type.
func (c *Controller) Type() hal.HCIType { return c.hci }

// Location returns the PCI bus location.
func (c *Controller) Location() hal.Location { return c.location }

// DeviceID returns the bus and device numbers shared with companion functions.
func (c *Controller) DeviceID() uint32 { return c.devID }

// FunctionNum returns the PCI function number.
func (c *Controller) FunctionNum() uint8 { return c.funcNum }

// IntLine returns the assigned interrupt line.
func (c *Controller) IntLine() uint8 { return c.intLine }

// VendorID returns the PCI vendor id.
func (c *Controller) VendorID() uint16 { return c.vendorID }

// ProductID returns the PCI device id.
func (c *Controller) ProductID() uint16 { return c.productID }

// Quirks returns the erratum workarounds detected at enumeration.
func (c *Controller) Quirks() Quirk { return c.quirks }

// Flags returns the lifecycle flags.
func (c *Controller) Flags() ControllerFlags { return c.flags }

// IsAllocated returns true while the controller's function is owned.
func (c *Controller) IsAllocated() bool { return c.flags&FlagAllocated != 0 }

// IsOnline returns true while the controller is in service.
func (c *Controller) IsOnline() bool { return c.flags&FlagOnline != 0 }

// Unit returns the owning unit, or nil before binding.
func (c *Controller) Unit() *Unit { return c.unit }

// Name returns the device tree node name, empty before binding.
func (c *Controller) Name() string { return c.name }

// NumPorts returns the physical port count reported by bring-up.
func (c *Controller) NumPorts() int { return c.numPorts }

// ComplexRouting returns true if ports are routed by bitmask.
func (c *Controller) ComplexRouting() bool { return c.complexRouting }

// PortRoute returns the routing bitmask: 4 bits per global high-speed port
// holding the function number of the companion owning that port.
func (c *Controller) PortRoute() uint64 { return c.portRoute }

// LocalPorts returns the global port number of each local port.
func (c *Controller) LocalPorts() []int {
	ports := make([]int, c.localPorts)
	copy(ports, c.portNum[:c.localPorts])
	return ports
}

// GlobalPort returns the global port number of a local port.
func (c *Controller) GlobalPort(local int) (int, bool) {
	if local < 0 || local >= c.localPorts {
		return 0, false
	}
	return c.portNum[local], true
}

// SetNumPorts records the physical port count. Protocol bring-up calls it
// before returning success. Counts above MaxRootPorts are clamped.
func (c *Controller) SetNumPorts(n int) {
	if n < 0 {
		n = 0
	}
	if n > MaxRootPorts {
		pkg.LogWarn(pkg.ComponentPort, "port count exceeds root hub limit",
			"controller", c.String(),
			"ports", n,
			"limit", MaxRootPorts)
		n = MaxRootPorts
	}
	c.numPorts = n
}

// SetPortRoute enables complex routing with the given bitmask.
func (c *Controller) SetPortRoute(route uint64) {
	c.complexRouting = true
	c.portRoute = route
}

// AddInterrupt registers an interrupt handler on the controller's function.
// At most one handler is held; it is removed at deallocation.
func (c *Controller) AddInterrupt(irq *hal.Interrupt) error {
	if c.irq != nil {
		return fmt.Errorf("%w: interrupt already registered", pkg.ErrInvalidState)
	}
	if err := c.fn.AddInterrupt(irq); err != nil {
		return err
	}
	c.irq = irq
	return nil
}

// AllocMemory maps a device-accessible memory block held by the controller
// until deallocation.
func (c *Controller) AllocMemory(size int) (*hal.MemoryBlock, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: memory size %d", pkg.ErrInvalidParameter, size)
	}
	block, err := c.fn.AllocMemory(size)
	if err != nil {
		return nil, err
	}
	c.memory = append(c.memory, block)
	return block, nil
}

// MemoryBlocks returns the number of memory blocks held.
func (c *Controller) MemoryBlocks() int { return len(c.memory) }

// resetPorts clears bring-up results before a new allocation.
func (c *Controller) resetPorts() {
	c.numPorts = 0
	c.complexRouting = false
	c.portRoute = 0
	c.localPorts = 0
}

// assignPort appends global as the controller's next local port.
func (c *Controller) assignPort(global int) (local int) {
	local = c.localPorts
	c.portNum[local] = global
	c.localPorts++
	return local
}

// routedFunction returns the function number routed to a global port.
func (c *Controller) routedFunction(global int) uint8 {
	return uint8(c.portRoute>>(uint(global)*routeBits)) & (1<<routeBits - 1)
}

// =============================================================================
// Controller Pool
// =============================================================================

// pool holds every controller created during the host's lifetime, indexed
// by handle.
type pool struct {
	controllers []*Controller
	limit       int
	gen         int // Incremented by reset; handles of older generations are stale
}

// alloc returns a new controller, or nil if the pool is exhausted.
func (p *pool) alloc() *Controller {
	if len(p.controllers) >= p.limit {
		return nil
	}
	c := &Controller{handle: Handle(len(p.controllers))}
	p.controllers = append(p.controllers, c)
	return c
}

// get returns the controller for h, or nil.
func (p *pool) get(h Handle) *Controller {
	if h < 0 || int(h) >= len(p.controllers) {
		return nil
	}
	return p.controllers[h]
}

// reset drops every controller.
func (p *pool) reset() {
	p.controllers = nil
	p.gen++
}

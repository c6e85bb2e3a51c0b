package host

import (
	"fmt"

	"github.com/ardnew/pciusb/host/hal"
)

// Unit is one logical USB host device: the controllers of one board that
// share a device identity and interrupt line, presented with a single root
// hub.
type Unit struct {
	index   int
	pool    *pool
	members []Handle
	devID   uint32
	intLine uint8
	state   UnitState

	rootHub11Ports int
	rootHub20Ports int
	rootHub30Ports int
	rootHubPorts   int

	// Global port tables
	portMap11 [MaxRootPorts]*Controller
	portNum11 [MaxRootPorts]int
	portMap20 [MaxRootPorts]*Controller
	portOwner [MaxRootPorts]hal.HCIType

	productName  string
	frameCounter uint32
	rootHubAddr  uint8
}

// String returns a short description for logging.
func (u *Unit) String() string {
	return fmt.Sprintf("unit %d (%08x)", u.index, u.devID)
}

// Index returns the unit number.
func (u *Unit) Index() int { return u.index }

// DeviceID returns the device identity shared by all member controllers.
func (u *Unit) DeviceID() uint32 { return u.devID }

// IntLine returns the interrupt line shared by all member controllers.
func (u *Unit) IntLine() uint8 { return u.intLine }

// State returns the allocation state.
func (u *Unit) State() UnitState { return u.state }

// Handles returns the member controller handles in discovery order.
func (u *Unit) Handles() []Handle {
	h := make([]Handle, len(u.members))
	copy(h, u.members)
	return h
}

// Controllers returns the member controllers in discovery order.
func (u *Unit) Controllers() []*Controller {
	cs := make([]*Controller, 0, len(u.members))
	for _, h := range u.members {
		if c := u.pool.get(h); c != nil {
			cs = append(cs, c)
		}
	}
	return cs
}

// RootHub11Ports returns the number of USB 1.1 root hub ports.
func (u *Unit) RootHub11Ports() int { return u.rootHub11Ports }

// RootHub20Ports returns the number of USB 2.0 root hub ports.
func (u *Unit) RootHub20Ports() int { return u.rootHub20Ports }

// RootHub30Ports returns the number of USB 3.x root hub ports.
func (u *Unit) RootHub30Ports() int { return u.rootHub30Ports }

// RootHubPorts returns the number of root hub ports presented by the unit.
func (u *Unit) RootHubPorts() int { return u.rootHubPorts }

// PortOwner returns the interface type owning a global port.
func (u *Unit) PortOwner(global int) (hal.HCIType, bool) {
	if global < 0 || global >= u.rootHubPorts {
		return 0, false
	}
	return u.portOwner[global], true
}

// CompanionPort returns the companion controller and its local port number
// for a global port.
func (u *Unit) CompanionPort(global int) (*Controller, int) {
	if global < 0 || global >= MaxRootPorts || u.portMap11[global] == nil {
		return nil, 0
	}
	return u.portMap11[global], u.portNum11[global]
}

// HighSpeedPort returns the high-speed controller serving a global port.
func (u *Unit) HighSpeedPort(global int) *Controller {
	if global < 0 || global >= MaxRootPorts {
		return nil
	}
	return u.portMap20[global]
}

// ProductName returns the product name synthesized at allocation.
func (u *Unit) ProductName() string { return u.productName }

// FrameCounter returns the root hub frame counter.
func (u *Unit) FrameCounter() uint32 { return u.frameCounter }

// RootHubAddr returns the root hub device address.
func (u *Unit) RootHubAddr() uint8 { return u.rootHubAddr }

// add transfers ownership of c to the unit.
func (u *Unit) add(c *Controller) {
	u.members = append(u.members, c.handle)
	c.unit = u
}

// resetPorts clears the port tables before mapping.
func (u *Unit) resetPorts() {
	u.portMap11 = [MaxRootPorts]*Controller{}
	u.portNum11 = [MaxRootPorts]int{}
	u.portMap20 = [MaxRootPorts]*Controller{}
	u.portOwner = [MaxRootPorts]hal.HCIType{}
	u.rootHub11Ports = 0
	u.rootHub20Ports = 0
	u.rootHub30Ports = 0
	u.rootHubPorts = 0
}

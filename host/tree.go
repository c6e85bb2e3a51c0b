package host

import (
	"sync"

	"github.com/ardnew/pciusb/host/hal"
)

// DeviceTree is an in-memory hal.DeviceTree. It is the default destination
// for bound controllers when no platform device tree is supplied.
type DeviceTree struct {
	nodes []hal.Node
	mu    sync.RWMutex
}

// NewDeviceTree returns an empty device tree.
func NewDeviceTree() *DeviceTree {
	return &DeviceTree{}
}

// AddDriver records a node.
func (t *DeviceTree) AddDriver(node hal.Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = append(t.nodes, node)
	return nil
}

// Nodes returns the recorded nodes in insertion order.
func (t *DeviceTree) Nodes() []hal.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	nodes := make([]hal.Node, len(t.nodes))
	copy(nodes, t.nodes)
	return nodes
}

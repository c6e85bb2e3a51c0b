package sim

import (
	"github.com/ardnew/pciusb/host"
)

// Machine bundles the simulated bus, ownership table and bring-up protocol
// of one topology.
type Machine struct {
	Topology *Topology
	Bus      *Bus
	Owners   *Owners
	Protocol *Protocol
}

// NewMachine builds a machine from t.
func NewMachine(t *Topology) (*Machine, error) {
	bus, err := NewBus(t)
	if err != nil {
		return nil, err
	}
	return &Machine{
		Topology: t,
		Bus:      bus,
		Owners:   NewOwners(t),
		Protocol: NewProtocol(t),
	}, nil
}

// Host creates a driver instance running on m.
func (m *Machine) Host(cfg host.Config, opts ...host.Option) *host.Host {
	opts = append(m.Protocol.Options(), opts...)
	return host.New(cfg, m.Bus, m.Owners, opts...)
}

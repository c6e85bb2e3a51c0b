// Package sim provides an in-memory PCI machine for exercising the host
// driver without hardware.
//
// A machine is described by a YAML topology listing its PCI functions and
// how each controller behaves when brought up:
//
//	name: ich4
//	functions:
//	  - location: "0000:00:1d.0"
//	    interface: uhci
//	    vendor: 0x8086
//	    product: 0x24c2
//	    intline: 11
//	    ports: 2
//	  - location: "0000:00:1d.7"
//	    interface: ehci
//	    vendor: 0x8086
//	    product: 0x24cd
//	    intline: 11
//	    ports: 2
//	    memory: 4096
//
// A function may start out owned by someone else (owner), fail bring-up
// with a given message (fail), route its ports by bitmask (route) or
// implement typed configuration access (direct).
//
//	t, err := sim.LoadTopology("ich4.yaml")
//	m, err := sim.NewMachine(t)
//	h := m.Host(host.DefaultConfig())
//	err = h.Init()
package sim

package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardnew/pciusb/host"
	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// Protocol implements host.Protocol for every interface type by replaying
// the bring-up behavior described in a topology: it maps the requested
// memory, hooks the interrupt, reports the port count and routing bitmask,
// and fails when the topology says so.
type Protocol struct {
	mu      sync.Mutex
	specs   map[hal.Location]FunctionSpec
	running map[hal.Location]bool
	irqs    map[hal.Location]int

	inits int
	stops int
}

// NewProtocol creates a bring-up simulator for t.
func NewProtocol(t *Topology) *Protocol {
	p := &Protocol{
		specs:   make(map[hal.Location]FunctionSpec),
		running: make(map[hal.Location]bool),
		irqs:    make(map[hal.Location]int),
	}
	for _, spec := range t.Functions {
		p.specs[spec.PCILocation()] = spec
	}
	return p
}

// Options returns host options installing p for every interface type.
func (p *Protocol) Options() []host.Option {
	return []host.Option{
		host.WithProtocol(hal.HCIUHCI, p),
		host.WithProtocol(hal.HCIOHCI, p),
		host.WithProtocol(hal.HCIEHCI, p),
		host.WithProtocol(hal.HCIXHCI, p),
	}
}

// Init brings up c.
func (p *Protocol) Init(c *host.Controller, u *host.Unit) error {
	loc := c.Location()

	p.mu.Lock()
	spec, ok := p.specs[loc]
	p.inits++
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %v not in topology", pkg.ErrInvalidParameter, loc)
	}

	if spec.Memory > 0 {
		if _, err := c.AllocMemory(spec.Memory); err != nil {
			return err
		}
	}
	irq := &hal.Interrupt{
		Name:    c.String(),
		Handler: func() { p.interrupt(loc) },
	}
	if err := c.AddInterrupt(irq); err != nil {
		return err
	}
	if spec.Fail != "" {
		return errors.New(spec.Fail)
	}

	c.SetNumPorts(spec.Ports)
	if spec.Route != nil {
		c.SetPortRoute(*spec.Route)
	}

	p.mu.Lock()
	p.running[loc] = true
	p.mu.Unlock()

	pkg.LogDebug(pkg.ComponentHAL, "simulated controller running",
		"controller", c.String(),
		"unit", u.Index(),
		"ports", spec.Ports)
	return nil
}

// Stop halts c.
func (p *Protocol) Stop(c *host.Controller, u *host.Unit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, c.Location())
	p.stops++
}

func (p *Protocol) interrupt(loc hal.Location) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.irqs[loc]++
}

// Running returns true while the controller at loc is brought up.
func (p *Protocol) Running(loc hal.Location) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running[loc]
}

// InterruptsServiced returns the number of interrupts delivered to the
// controller at loc.
func (p *Protocol) InterruptsServiced(loc hal.Location) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.irqs[loc]
}

// Counts returns the number of Init and Stop calls.
func (p *Protocol) Counts() (inits, stops int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inits, p.stops
}

package sim

import (
	"fmt"
	"sync"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// Owners implements hal.ResourceManager with an in-memory ownership table.
// Functions that name an owner in the topology start out claimed.
type Owners struct {
	mu     sync.Mutex
	owners map[hal.Location]string

	acquired int
	released int
}

// NewOwners creates an ownership table for t.
func NewOwners(t *Topology) *Owners {
	o := &Owners{owners: make(map[hal.Location]string)}
	for _, spec := range t.Functions {
		if spec.Owner != "" {
			o.owners[spec.PCILocation()] = spec.Owner
		}
	}
	return o
}

// Acquire claims fn for owner.
func (o *Owners) Acquire(fn hal.Function, owner string) error {
	loc := fn.Info().Location

	o.mu.Lock()
	defer o.mu.Unlock()
	if current, ok := o.owners[loc]; ok {
		return &pkg.ConflictError{Object: loc.String(), Owner: current}
	}
	o.owners[loc] = owner
	o.acquired++
	return nil
}

// Release gives up a claim made by Acquire.
func (o *Owners) Release(fn hal.Function) error {
	loc := fn.Info().Location

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.owners[loc]; !ok {
		return fmt.Errorf("%w: %v not acquired", pkg.ErrInvalidState, loc)
	}
	delete(o.owners, loc)
	o.released++
	return nil
}

// Owner returns the current owner of loc.
func (o *Owners) Owner(loc hal.Location) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	owner, ok := o.owners[loc]
	return owner, ok
}

// Counts returns the number of successful acquisitions and releases.
func (o *Owners) Counts() (acquired, released int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.acquired, o.released
}

//go:build linux

package linux

import (
	"errors"
	"fmt"
	"sync"

	units "github.com/docker/go-units"
	vfs "github.com/twpayne/go-vfs"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
	"github.com/ardnew/pciusb/pkg/linux/pciid"
)

// =============================================================================
// Bus Implementation
// =============================================================================

// Bus implements hal.Bus over the sysfs PCI device tree.
type Bus struct {
	fs      vfs.FS
	root    string // sysfs PCI devices directory
	devRoot string // device node directory
	ids     *pciid.Database
	direct  bool

	// Functions handed out by EnumerateFunctions
	functions []*Function

	// Interrupt dispatch, created on first AddInterrupt
	poller *poller
	wg     sync.WaitGroup

	closed bool
	mu     sync.Mutex
}

// Option configures a Bus.
type Option func(*Bus)

// WithFS sets the filesystem sysfs and device nodes are read from.
func WithFS(fs vfs.FS) Option {
	return func(b *Bus) { b.fs = fs }
}

// WithSysfsPath sets the sysfs PCI devices directory.
func WithSysfsPath(path string) Option {
	return func(b *Bus) { b.root = path }
}

// WithDevPath sets the device node directory holding UIO devices.
func WithDevPath(path string) Option {
	return func(b *Bus) { b.devRoot = path }
}

// WithIDs sets the PCI ID database used to name functions.
func WithIDs(db *pciid.Database) Option {
	return func(b *Bus) { b.ids = db }
}

// WithDirectConfig selects positioned reads and writes on the config file
// descriptor for configuration space access. It is enabled by default.
func WithDirectConfig(enabled bool) Option {
	return func(b *Bus) { b.direct = enabled }
}

// NewBus creates a sysfs PCI bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		fs:      vfs.OSFS,
		root:    SysfsPCIPath,
		devRoot: DevPath,
		direct:  true,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.ids == nil {
		b.ids = pciid.NewWithPaths(b.fs, pciid.DefaultPaths)
	}
	return b
}

// EnumerateFunctions calls fn once for every function matching filter, in
// address order.
func (b *Bus) EnumerateFunctions(filter hal.ClassFilter, fn func(hal.Function)) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("%w: bus closed", pkg.ErrInvalidState)
	}
	b.mu.Unlock()

	infos, err := scanPCIFunctions(b.fs, b.root, filter)
	if err != nil {
		return fmt.Errorf("scan %s: %w", b.root, err)
	}
	b.ids.Load()

	for _, info := range infos {
		f := b.newFunction(info)

		b.mu.Lock()
		b.functions = append(b.functions, f)
		b.mu.Unlock()

		if b.direct {
			fn(directFunction{f})
		} else {
			fn(f)
		}
	}
	return nil
}

// newFunction creates a function from scanned sysfs information.
func (b *Bus) newFunction(info pciFunctionInfo) *Function {
	f := &Function{
		bus:  b,
		path: info.sysfsPath,
		info: info.info,
	}
	f.vendor = b.ids.LookupVendor(info.info.VendorID)
	f.name = b.ids.LookupProduct(info.info.VendorID, info.info.ProductID)

	args := []any{
		"function", info.info.Location.String(),
		"id", fmt.Sprintf("%04x:%04x", info.info.VendorID, info.info.ProductID),
		"type", info.info.Interface.String(),
		"intline", info.info.IntLine,
	}
	if f.vendor != "" {
		args = append(args, "vendor", f.vendor)
	}
	if f.name != "" {
		args = append(args, "product", f.name)
	}
	for _, r := range info.info.Resources {
		args = append(args, fmt.Sprintf("bar%d", r.Index), units.BytesSize(float64(r.Size)))
	}
	pkg.LogDebug(pkg.ComponentHAL, "found PCI function", args...)
	return f
}

// Functions returns every function handed out so far.
func (b *Bus) Functions() []*Function {
	b.mu.Lock()
	defer b.mu.Unlock()
	fs := make([]*Function, len(b.functions))
	copy(fs, b.functions)
	return fs
}

// interrupts returns the interrupt poller, starting it on first use.
func (b *Bus) interrupts() (*poller, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("%w: bus closed", pkg.ErrInvalidState)
	}
	if b.poller != nil {
		return b.poller, nil
	}

	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	b.poller = p

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := p.poll(); err != nil {
			pkg.LogError(pkg.ComponentHAL, "interrupt poller stopped", "error", err)
		}
	}()
	return p, nil
}

// activePoller returns the interrupt poller, or nil if never started.
func (b *Bus) activePoller() *poller {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.poller
}

// Close closes every function's files and stops interrupt delivery.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	functions := b.functions
	b.functions = nil
	p := b.poller
	b.mu.Unlock()

	var err error
	if p != nil {
		err = p.close()
		b.wg.Wait()
	}
	for _, f := range functions {
		err = errors.Join(err, f.close())
	}

	pkg.LogDebug(pkg.ComponentHAL, "PCI bus closed")
	return err
}

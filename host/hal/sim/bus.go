package sim

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// Configuration space layout.
const (
	configSpaceSize = 256

	cfgVendorID  = 0x00
	cfgProductID = 0x02
	cfgCommand   = 0x04
	cfgProgIF    = 0x09
	cfgHeader    = 0x0E
	cfgIntLine   = 0x3C
	cfgIntPin    = 0x3D
	cfgSBRN      = 0x60

	// Firmware leaves I/O, memory decoding and bus mastering enabled.
	resetCommand = 0x0007
)

// memoryBase is the first bus address handed out by AllocMemory.
const memoryBase uintptr = 0x1000_0000

// pageSize aligns simulated memory blocks.
const pageSize = 4096

// =============================================================================
// Bus
// =============================================================================

// Bus is an in-memory PCI bus populated from a topology. Functions are
// enumerated in topology order.
type Bus struct {
	mu        sync.Mutex
	functions []*Function
	nextAddr  uintptr
	closed    bool
}

// NewBus creates a bus holding the functions of t.
func NewBus(t *Topology) (*Bus, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	b := &Bus{nextAddr: memoryBase}
	for _, spec := range t.Functions {
		b.functions = append(b.functions, newFunction(b, spec))
	}
	pkg.LogDebug(pkg.ComponentHAL, "simulated bus created",
		"topology", t.Name,
		"functions", len(b.functions))
	return b, nil
}

// EnumerateFunctions calls fn for every function matching filter.
func (b *Bus) EnumerateFunctions(filter hal.ClassFilter, fn func(hal.Function)) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("%w: bus closed", pkg.ErrInvalidState)
	}
	functions := make([]*Function, len(b.functions))
	copy(functions, b.functions)
	b.mu.Unlock()

	for _, f := range functions {
		class := f.spec.ClassCode()
		if uint8(class>>16) != filter.Class || uint8(class>>8) != filter.Subclass {
			continue
		}
		if f.spec.Direct {
			fn(directFunction{f})
		} else {
			fn(f)
		}
	}
	return nil
}

// Functions returns every function on the bus.
func (b *Bus) Functions() []*Function {
	b.mu.Lock()
	defer b.mu.Unlock()
	functions := make([]*Function, len(b.functions))
	copy(functions, b.functions)
	return functions
}

// Function returns the function at loc, or nil.
func (b *Bus) Function(loc hal.Location) *Function {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.functions {
		if f.info.Location == loc {
			return f
		}
	}
	return nil
}

// Close marks the bus closed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed returns true once Close has been called.
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// mapAddr reserves a page-aligned bus address range.
func (b *Bus) mapAddr(size int) uintptr {
	b.mu.Lock()
	defer b.mu.Unlock()
	addr := b.nextAddr
	b.nextAddr += uintptr((size + pageSize - 1) &^ (pageSize - 1))
	return addr
}

// =============================================================================
// Function
// =============================================================================

// Function is a simulated PCI function with a 256-byte configuration space.
type Function struct {
	bus  *Bus
	spec FunctionSpec
	info hal.FunctionInfo

	mu     sync.Mutex
	config [configSpaceSize]byte
	irqs   []*hal.Interrupt
	blocks map[*hal.MemoryBlock]struct{}
}

func newFunction(b *Bus, spec FunctionSpec) *Function {
	class := spec.ClassCode()
	f := &Function{
		bus:  b,
		spec: spec,
		info: hal.FunctionInfo{
			Location:  spec.PCILocation(),
			Interface: hal.HCIType(uint8(class)),
			IntLine:   spec.IntLine,
			VendorID:  spec.Vendor,
			ProductID: spec.Product,
			Resources: spec.Resources,
		},
		blocks: make(map[*hal.MemoryBlock]struct{}),
	}

	binary.LittleEndian.PutUint16(f.config[cfgVendorID:], spec.Vendor)
	binary.LittleEndian.PutUint16(f.config[cfgProductID:], spec.Product)
	binary.LittleEndian.PutUint16(f.config[cfgCommand:], resetCommand)
	f.config[cfgProgIF] = uint8(class)
	f.config[cfgProgIF+1] = uint8(class >> 8)
	f.config[cfgProgIF+2] = uint8(class >> 16)
	f.config[cfgHeader] = 0x00
	f.config[cfgIntLine] = spec.IntLine
	f.config[cfgIntPin] = 1

	sbrn := spec.SBRN
	if sbrn == 0 {
		switch hal.HCIType(uint8(class)) {
		case hal.HCIEHCI:
			sbrn = 0x20
		case hal.HCIXHCI:
			sbrn = 0x30
		}
	}
	f.config[cfgSBRN] = sbrn
	return f
}

// Info returns the function's attributes.
func (f *Function) Info() hal.FunctionInfo { return f.info }

// Spec returns the topology entry the function was built from.
func (f *Function) Spec() FunctionSpec { return f.spec }

func checkAccess(offset uint8, width hal.Width) error {
	switch width {
	case hal.Width8, hal.Width16, hal.Width32:
	default:
		return fmt.Errorf("%w: access width %d", pkg.ErrInvalidParameter, width)
	}
	if int(offset)+int(width) > configSpaceSize || int(offset)%int(width) != 0 {
		return fmt.Errorf("%w: config offset 0x%02x width %d", pkg.ErrInvalidParameter, offset, width)
	}
	return nil
}

// ReadConfig reads a configuration register of the given width.
func (f *Function) ReadConfig(offset uint8, width hal.Width) (uint32, error) {
	if err := checkAccess(offset, width); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var buf [4]byte
	copy(buf[:width], f.config[offset:])
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteConfig writes a configuration register of the given width.
func (f *Function) WriteConfig(offset uint8, width hal.Width, value uint32) error {
	if err := checkAccess(offset, width); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	copy(f.config[offset:int(offset)+int(width)], buf[:width])
	return nil
}

// Command returns the command register.
func (f *Function) Command() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return binary.LittleEndian.Uint16(f.config[cfgCommand:])
}

// AddInterrupt registers a handler run by Raise.
func (f *Function) AddInterrupt(irq *hal.Interrupt) error {
	if irq == nil || irq.Handler == nil {
		return fmt.Errorf("%w: nil interrupt handler", pkg.ErrInvalidParameter)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.irqs = append(f.irqs, irq)
	return nil
}

// RemoveInterrupt removes a handler registered by AddInterrupt.
func (f *Function) RemoveInterrupt(irq *hal.Interrupt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, h := range f.irqs {
		if h == irq {
			f.irqs = append(f.irqs[:i], f.irqs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %v: interrupt not registered", pkg.ErrInvalidParameter, f.info.Location)
}

// Interrupts returns the number of registered handlers.
func (f *Function) Interrupts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.irqs)
}

// Raise runs every registered handler once and returns how many ran.
func (f *Function) Raise() int {
	f.mu.Lock()
	irqs := make([]*hal.Interrupt, len(f.irqs))
	copy(irqs, f.irqs)
	f.mu.Unlock()

	for _, irq := range irqs {
		irq.Handler()
	}
	return len(irqs)
}

// AllocMemory returns a zeroed block at a page-aligned bus address.
func (f *Function) AllocMemory(size int) (*hal.MemoryBlock, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: memory size %d", pkg.ErrInvalidParameter, size)
	}
	block := &hal.MemoryBlock{
		Mem:  make([]byte, size),
		Addr: f.bus.mapAddr(size),
	}
	f.mu.Lock()
	f.blocks[block] = struct{}{}
	f.mu.Unlock()
	return block, nil
}

// FreeMemory releases a block returned by AllocMemory.
func (f *Function) FreeMemory(block *hal.MemoryBlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blocks[block]; !ok {
		return fmt.Errorf("%w: %v: unknown memory block", pkg.ErrInvalidParameter, f.info.Location)
	}
	delete(f.blocks, block)
	block.Mem = nil
	return nil
}

// MemoryBlocks returns the number of blocks allocated and not freed.
func (f *Function) MemoryBlocks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blocks)
}

// directFunction is a Function that also implements hal.ConfigSpace.
type directFunction struct {
	*Function
}

func (d directFunction) ReadConfigByte(offset uint8) (uint8, error) {
	v, err := d.ReadConfig(offset, hal.Width8)
	return uint8(v), err
}

func (d directFunction) ReadConfigWord(offset uint8) (uint16, error) {
	v, err := d.ReadConfig(offset, hal.Width16)
	return uint16(v), err
}

func (d directFunction) ReadConfigLong(offset uint8) (uint32, error) {
	return d.ReadConfig(offset, hal.Width32)
}

func (d directFunction) WriteConfigByte(offset uint8, value uint8) error {
	return d.WriteConfig(offset, hal.Width8, uint32(value))
}

func (d directFunction) WriteConfigWord(offset uint8, value uint16) error {
	return d.WriteConfig(offset, hal.Width16, uint32(value))
}

func (d directFunction) WriteConfigLong(offset uint8, value uint32) error {
	return d.WriteConfig(offset, hal.Width32, value)
}

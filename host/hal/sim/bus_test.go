package sim

import (
	"errors"
	"testing"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b, err := NewBus(mustParse(t, ich4))
	if err != nil {
		t.Fatalf("NewBus() error = %v", err)
	}
	return b
}

func enumerate(t *testing.T, b *Bus, filter hal.ClassFilter) []hal.Function {
	t.Helper()
	var fns []hal.Function
	if err := b.EnumerateFunctions(filter, func(fn hal.Function) {
		fns = append(fns, fn)
	}); err != nil {
		t.Fatalf("EnumerateFunctions() error = %v", err)
	}
	return fns
}

func TestBusEnumerate(t *testing.T) {
	b := newTestBus(t)

	fns := enumerate(t, b, hal.USBFilter)
	want := []struct {
		loc    string
		hci    hal.HCIType
		direct bool
	}{
		{"0000:00:1d.0", hal.HCIUHCI, false},
		{"0000:00:1d.1", hal.HCIUHCI, false},
		{"0000:00:1d.7", hal.HCIEHCI, true},
	}
	if len(fns) != len(want) {
		t.Fatalf("len(functions) = %d, want %d", len(fns), len(want))
	}
	for i, tt := range want {
		info := fns[i].Info()
		if info.Location.String() != tt.loc || info.Interface != tt.hci || info.IntLine != 11 {
			t.Errorf("function %d = %v %v intline %d, want %s %v intline 11",
				i, info.Location, info.Interface, info.IntLine, tt.loc, tt.hci)
		}
		if _, ok := fns[i].(hal.ConfigSpace); ok != tt.direct {
			t.Errorf("function %d implements ConfigSpace = %v, want %v", i, ok, tt.direct)
		}
	}

	display := enumerate(t, b, hal.ClassFilter{Class: 0x03, Subclass: 0x00})
	if len(display) != 1 || display[0].Info().ProductID != 0x2582 {
		t.Errorf("display functions = %d, want the 2582", len(display))
	}

	if len(b.Functions()) != 4 {
		t.Errorf("len(Functions()) = %d, want 4", len(b.Functions()))
	}
	if b.Function(hal.Location{Device: 0x1d, Function: 7}) == nil {
		t.Error("Function(1d.7) = nil")
	}
	if b.Function(hal.Location{Device: 0x1e}) != nil {
		t.Error("Function(1e.0) != nil")
	}
}

func TestBusClose(t *testing.T) {
	b := newTestBus(t)
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !b.Closed() {
		t.Error("Closed() = false after Close")
	}
	err := b.EnumerateFunctions(hal.USBFilter, func(hal.Function) {
		t.Error("callback invoked on closed bus")
	})
	if !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("EnumerateFunctions() error = %v, want %v", err, pkg.ErrInvalidState)
	}
}

func TestFunctionConfig(t *testing.T) {
	b := newTestBus(t)
	ehci := enumerate(t, b, hal.USBFilter)[2]

	tests := []struct {
		offset uint8
		width  hal.Width
		want   uint32
	}{
		{cfgVendorID, hal.Width16, 0x8086},
		{cfgProductID, hal.Width16, 0x24cd},
		{cfgCommand, hal.Width16, resetCommand},
		{0x08, hal.Width32, 0x0c032000},
		{cfgIntLine, hal.Width8, 11},
		{cfgIntPin, hal.Width8, 1},
		{cfgSBRN, hal.Width8, 0x20},
	}
	for _, tt := range tests {
		got, err := ehci.ReadConfig(tt.offset, tt.width)
		if err != nil || got != tt.want {
			t.Errorf("ReadConfig(0x%02x, %d) = 0x%x, %v; want 0x%x", tt.offset, tt.width, got, err, tt.want)
		}
	}

	cs := ehci.(hal.ConfigSpace)
	if err := cs.WriteConfigWord(cfgCommand, 0x0002); err != nil {
		t.Fatalf("WriteConfigWord() error = %v", err)
	}
	if got := b.Function(ehci.Info().Location).Command(); got != 0x0002 {
		t.Errorf("Command() = 0x%04x, want 0x0002", got)
	}
	if v, _ := cs.ReadConfigLong(cfgVendorID); v != 0x24cd8086 {
		t.Errorf("ReadConfigLong(0) = 0x%08x, want 0x24cd8086", v)
	}

	for _, bad := range []struct {
		offset uint8
		width  hal.Width
	}{{0x01, hal.Width16}, {0xFE, hal.Width32}, {0x00, hal.Width(8)}} {
		if _, err := ehci.ReadConfig(bad.offset, bad.width); !errors.Is(err, pkg.ErrInvalidParameter) {
			t.Errorf("ReadConfig(0x%02x, %d) error = %v, want %v", bad.offset, bad.width, err, pkg.ErrInvalidParameter)
		}
		if err := ehci.WriteConfig(bad.offset, bad.width, 0); !errors.Is(err, pkg.ErrInvalidParameter) {
			t.Errorf("WriteConfig(0x%02x, %d) error = %v, want %v", bad.offset, bad.width, err, pkg.ErrInvalidParameter)
		}
	}
}

func TestFunctionSBRN(t *testing.T) {
	b, err := NewBus(mustParse(t, `
functions:
  - {location: "0000:00:14.0", interface: xhci}
  - {location: "0000:00:14.1", interface: xhci, sbrn: 0x32}
  - {location: "0000:00:14.2", interface: ohci}
`))
	if err != nil {
		t.Fatalf("NewBus() error = %v", err)
	}
	want := []uint32{0x30, 0x32, 0x00}
	for i, f := range b.Functions() {
		if v, _ := f.ReadConfig(cfgSBRN, hal.Width8); v != want[i] {
			t.Errorf("%v SBRN = 0x%02x, want 0x%02x", f.Info().Location, v, want[i])
		}
	}
}

func TestFunctionMemory(t *testing.T) {
	b := newTestBus(t)
	f := b.Functions()[0]

	a, err := f.AllocMemory(100)
	if err != nil {
		t.Fatalf("AllocMemory() error = %v", err)
	}
	c, err := f.AllocMemory(pageSize + 1)
	if err != nil {
		t.Fatalf("AllocMemory() error = %v", err)
	}
	if a.Addr != memoryBase || c.Addr != memoryBase+pageSize {
		t.Errorf("addresses = 0x%x, 0x%x; want page-aligned from 0x%x", a.Addr, c.Addr, memoryBase)
	}
	if len(c.Mem) != pageSize+1 {
		t.Errorf("len(Mem) = %d, want %d", len(c.Mem), pageSize+1)
	}

	// Addresses are unique across the bus.
	d, _ := b.Functions()[1].AllocMemory(1)
	if d.Addr != memoryBase+3*pageSize {
		t.Errorf("next function block at 0x%x, want 0x%x", d.Addr, memoryBase+3*pageSize)
	}

	if f.MemoryBlocks() != 2 {
		t.Errorf("MemoryBlocks() = %d, want 2", f.MemoryBlocks())
	}
	if err := f.FreeMemory(a); err != nil {
		t.Errorf("FreeMemory() error = %v", err)
	}
	if err := f.FreeMemory(a); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("second FreeMemory() error = %v, want %v", err, pkg.ErrInvalidParameter)
	}
	if err := f.FreeMemory(d); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("FreeMemory(foreign) error = %v, want %v", err, pkg.ErrInvalidParameter)
	}
	if f.MemoryBlocks() != 1 {
		t.Errorf("MemoryBlocks() = %d, want 1", f.MemoryBlocks())
	}
	if _, err := f.AllocMemory(0); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("AllocMemory(0) error = %v, want %v", err, pkg.ErrInvalidParameter)
	}
}

func TestFunctionInterrupts(t *testing.T) {
	b := newTestBus(t)
	f := b.Functions()[0]

	var fired int
	irq := &hal.Interrupt{Name: "test", Handler: func() { fired++ }}
	if err := f.AddInterrupt(irq); err != nil {
		t.Fatalf("AddInterrupt() error = %v", err)
	}
	if n := f.Raise(); n != 1 || fired != 1 {
		t.Errorf("Raise() = %d, fired = %d; want 1, 1", n, fired)
	}

	if err := f.RemoveInterrupt(irq); err != nil {
		t.Errorf("RemoveInterrupt() error = %v", err)
	}
	if err := f.RemoveInterrupt(irq); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("second RemoveInterrupt() error = %v, want %v", err, pkg.ErrInvalidParameter)
	}
	if n := f.Raise(); n != 0 || fired != 1 {
		t.Errorf("Raise() after removal = %d, fired = %d; want 0, 1", n, fired)
	}
	if err := f.AddInterrupt(&hal.Interrupt{Name: "nil"}); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("AddInterrupt(nil handler) error = %v, want %v", err, pkg.ErrInvalidParameter)
	}
}

func TestOwners(t *testing.T) {
	topo := mustParse(t, `
functions:
  - {location: "0000:00:1d.0", interface: uhci}
  - {location: "0000:00:1d.7", interface: ehci, owner: ehci-pci}
`)
	b, err := NewBus(topo)
	if err != nil {
		t.Fatalf("NewBus() error = %v", err)
	}
	o := NewOwners(topo)
	uhci, ehci := b.Functions()[0], b.Functions()[1]

	err = o.Acquire(ehci, "pciusb.device")
	var ce *pkg.ConflictError
	if !errors.As(err, &ce) || ce.Owner != "ehci-pci" {
		t.Errorf("Acquire(ehci) error = %v, want conflict with ehci-pci", err)
	}

	if err := o.Acquire(uhci, "pciusb.device"); err != nil {
		t.Fatalf("Acquire(uhci) error = %v", err)
	}
	if owner, ok := o.Owner(uhci.Info().Location); !ok || owner != "pciusb.device" {
		t.Errorf("Owner() = %q, %v", owner, ok)
	}
	if err := o.Acquire(directFunction{uhci}, "other"); !errors.Is(err, pkg.ErrResourceConflict) {
		t.Errorf("second Acquire() error = %v, want %v", err, pkg.ErrResourceConflict)
	}

	if err := o.Release(uhci); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if err := o.Release(uhci); !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("second Release() error = %v, want %v", err, pkg.ErrInvalidState)
	}
	if acquired, released := o.Counts(); acquired != 1 || released != 1 {
		t.Errorf("Counts() = %d, %d; want 1, 1", acquired, released)
	}
}

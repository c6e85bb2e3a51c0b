//go:build linux

package linux

import (
	"errors"
	"testing"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

func TestFunctionConfigGeneric(t *testing.T) {
	b, _ := newTestBus(t, WithDirectConfig(false))
	fn := enumerate(t, b)[1] // 0000:00:1d.0

	tests := []struct {
		offset uint8
		width  hal.Width
		want   uint32
	}{
		{0x00, hal.Width16, 0x8086},
		{0x02, hal.Width16, 0x24c2},
		{0x00, hal.Width32, 0x24c28086},
		{0x3C, hal.Width8, 11},
		{0x0B, hal.Width8, 0x0c},
	}
	for _, tt := range tests {
		got, err := fn.ReadConfig(tt.offset, tt.width)
		if err != nil {
			t.Errorf("ReadConfig(0x%02x, %d) error = %v", tt.offset, tt.width, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadConfig(0x%02x, %d) = 0x%x, want 0x%x", tt.offset, tt.width, got, tt.want)
		}
	}

	if err := fn.WriteConfig(0x04, hal.Width16, 0); err != nil {
		t.Fatalf("WriteConfig() error = %v", err)
	}
	if got, _ := fn.ReadConfig(0x04, hal.Width16); got != 0 {
		t.Errorf("command after write = 0x%04x, want 0", got)
	}
	if got, _ := fn.ReadConfig(0x00, hal.Width16); got != 0x8086 {
		t.Errorf("vendor after write = 0x%04x, want 0x8086", got)
	}
}

func TestFunctionConfigInvalid(t *testing.T) {
	b, _ := newTestBus(t, WithDirectConfig(false))
	fn := enumerate(t, b)[1]

	tests := []struct {
		name   string
		offset uint8
		width  hal.Width
	}{
		{"bad width", 0x00, hal.Width(3)},
		{"unaligned word", 0x01, hal.Width16},
		{"unaligned long", 0x02, hal.Width32},
		{"past end", 0xFE, hal.Width32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := fn.ReadConfig(tt.offset, tt.width); !errors.Is(err, pkg.ErrInvalidParameter) {
				t.Errorf("ReadConfig() error = %v, want %v", err, pkg.ErrInvalidParameter)
			}
			if err := fn.WriteConfig(tt.offset, tt.width, 0); !errors.Is(err, pkg.ErrInvalidParameter) {
				t.Errorf("WriteConfig() error = %v, want %v", err, pkg.ErrInvalidParameter)
			}
		})
	}
}

func TestFunctionConfigDirect(t *testing.T) {
	b, _ := newTestBus(t)
	fn := enumerate(t, b)[2] // 0000:00:1d.7
	cs, ok := fn.(hal.ConfigSpace)
	if !ok {
		t.Fatalf("%T does not implement hal.ConfigSpace", fn)
	}

	if v, err := cs.ReadConfigWord(0x02); err != nil || v != 0x24cd {
		t.Errorf("ReadConfigWord(0x02) = 0x%04x, %v; want 0x24cd", v, err)
	}
	if v, err := cs.ReadConfigByte(0x60); err != nil || v != 0x20 {
		t.Errorf("ReadConfigByte(0x60) = 0x%02x, %v; want 0x20", v, err)
	}
	if v, err := cs.ReadConfigLong(0x08); err != nil || v>>8 != 0x0c0320 {
		t.Errorf("ReadConfigLong(0x08) = 0x%08x, %v; want class 0c0320", v, err)
	}

	if err := cs.WriteConfigLong(0x40, 0xcafef00d); err != nil {
		t.Fatalf("WriteConfigLong() error = %v", err)
	}
	if err := cs.WriteConfigByte(0x41, 0x00); err != nil {
		t.Fatalf("WriteConfigByte() error = %v", err)
	}
	if err := cs.WriteConfigWord(0x42, 0x1234); err != nil {
		t.Fatalf("WriteConfigWord() error = %v", err)
	}
	if v, _ := cs.ReadConfigLong(0x40); v != 0x1234000d {
		t.Errorf("ReadConfigLong(0x40) = 0x%08x, want 0x1234000d", v)
	}

	// The generic path sees the same file.
	if v, _ := fn.ReadConfig(0x40, hal.Width32); v != 0x1234000d {
		t.Errorf("ReadConfig(0x40) = 0x%08x, want 0x1234000d", v)
	}

	if _, err := cs.ReadConfigWord(0xFF); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("ReadConfigWord(0xFF) error = %v, want %v", err, pkg.ErrInvalidParameter)
	}
}

func TestFunctionMemory(t *testing.T) {
	b, _ := newTestBus(t)
	fn := enumerate(t, b)[1]

	block, err := fn.AllocMemory(8192)
	if err != nil {
		t.Fatalf("AllocMemory() error = %v", err)
	}
	if len(block.Mem) != 8192 || block.Addr == 0 {
		t.Errorf("block len/addr = %d/0x%x", len(block.Mem), block.Addr)
	}
	block.Mem[0] = 0xAA
	block.Mem[8191] = 0x55

	if err := fn.FreeMemory(block); err != nil {
		t.Errorf("FreeMemory() error = %v", err)
	}
	if block.Mem != nil {
		t.Error("block.Mem not cleared")
	}
	if err := fn.FreeMemory(block); err != nil {
		t.Errorf("second FreeMemory() error = %v", err)
	}

	if _, err := fn.AllocMemory(0); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("AllocMemory(0) error = %v, want %v", err, pkg.ErrInvalidParameter)
	}
}

func TestFunctionInterruptWithoutUIO(t *testing.T) {
	b, _ := newTestBus(t)
	fn := enumerate(t, b)[1]

	irq := &hal.Interrupt{Name: "uhci", Handler: func() {}}
	if err := fn.AddInterrupt(irq); !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("AddInterrupt() error = %v, want %v", err, pkg.ErrNotSupported)
	}
	if err := fn.AddInterrupt(&hal.Interrupt{Name: "nil"}); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("AddInterrupt(nil handler) error = %v, want %v", err, pkg.ErrInvalidParameter)
	}
	if err := fn.RemoveInterrupt(irq); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("RemoveInterrupt() error = %v, want %v", err, pkg.ErrInvalidParameter)
	}
}

func TestFunctionDriver(t *testing.T) {
	b, _ := newTestBus(t)
	enumerate(t, b)

	fs := b.Functions()
	if d := fs[1].Driver(); d != "" {
		t.Errorf("%s Driver() = %q, want none", fs[1].Info().Location, d)
	}
	if d := fs[2].Driver(); d != "ehci-pci" {
		t.Errorf("%s Driver() = %q, want ehci-pci", fs[2].Info().Location, d)
	}
}

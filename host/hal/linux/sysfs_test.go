//go:build linux

package linux

import (
	"testing"

	"github.com/ardnew/pciusb/host/hal"
)

// =============================================================================
// parseLocation Tests
// =============================================================================

func TestParseLocation(t *testing.T) {
	tests := []struct {
		input   string
		want    hal.Location
		wantErr bool
	}{
		{"0000:00:1d.7", hal.Location{Domain: 0, Bus: 0, Device: 0x1d, Function: 7}, false},
		{"0001:3a:00.0", hal.Location{Domain: 1, Bus: 0x3a, Device: 0, Function: 0}, false},
		{"0000:ff:1f.6", hal.Location{Domain: 0, Bus: 0xff, Device: 0x1f, Function: 6}, false},
		{"0000:00:20.0", hal.Location{}, true},
		{"0000:00:1d.8", hal.Location{}, true},
		{"bogus", hal.Location{}, true},
		{"", hal.Location{}, true},
	}

	for _, tt := range tests {
		got, err := parseLocation(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLocation(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseLocation(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

// =============================================================================
// parseResources Tests
// =============================================================================

func TestParseResources(t *testing.T) {
	data := []byte("" +
		"0x00000000febff000 0x00000000febff3ff 0x0000000000040200\n" +
		"0x0000000000000000 0x0000000000000000 0x0000000000000000\n" +
		"0x000000000000e000 0x000000000000e01f 0x0000000000040101\n")

	got, err := parseResources(data)
	if err != nil {
		t.Fatalf("parseResources() error = %v", err)
	}

	want := []hal.Resource{
		{Index: 0, Base: 0xfebff000, Size: 0x400, IO: false},
		{Index: 2, Base: 0xe000, Size: 0x20, IO: true},
	}
	if len(got) != len(want) {
		t.Fatalf("len(resources) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("resource %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseResourcesMalformed(t *testing.T) {
	if _, err := parseResources([]byte("0x1000 garbage\n")); err == nil {
		t.Error("parseResources() error = nil, want error")
	}
	if got, err := parseResources(nil); err != nil || len(got) != 0 {
		t.Errorf("parseResources(nil) = %v, %v; want empty", got, err)
	}
}

// =============================================================================
// Sysfs Read Tests
// =============================================================================

func TestReadClass(t *testing.T) {
	_, fs := newTestBus(t)

	class, subclass, progIF, err := readClass(fs, "/sys/bus/pci/devices/0000:00:1d.7")
	if err != nil {
		t.Fatalf("readClass() error = %v", err)
	}
	if class != 0x0c || subclass != 0x03 || progIF != 0x20 {
		t.Errorf("readClass() = %02x/%02x/%02x, want 0c/03/20", class, subclass, progIF)
	}

	if _, _, _, err := readClass(fs, "/sys/bus/pci/devices/missing"); err == nil {
		t.Error("readClass(missing) error = nil, want error")
	}
}

func TestScanPCIFunctions(t *testing.T) {
	_, fs := newTestBus(t)

	display := hal.ClassFilter{Class: 0x03, Subclass: 0x00}
	infos, err := scanPCIFunctions(fs, SysfsPCIPath, display)
	if err != nil {
		t.Fatalf("scanPCIFunctions() error = %v", err)
	}
	if len(infos) != 1 || infos[0].info.ProductID != 0x2582 {
		t.Fatalf("scanPCIFunctions(display) = %+v, want the display controller", infos)
	}
	if infos[0].info.IntLine != 10 {
		t.Errorf("IntLine = %d, want 10", infos[0].info.IntLine)
	}

	infos, err = scanPCIFunctions(fs, SysfsPCIPath, hal.USBFilter)
	if err != nil {
		t.Fatalf("scanPCIFunctions() error = %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("len(infos) = %d, want 3", len(infos))
	}
	if res := infos[2].info.Resources; len(res) != 1 || res[0].Size != 0x400 {
		t.Errorf("EHCI resources = %+v, want one 1KiB region", res)
	}
}

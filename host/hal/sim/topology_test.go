package sim

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// ich4 is an ICH4-style board: two UHCI companions and one EHCI sharing a
// device and interrupt line, plus a display controller.
const ich4 = `
name: ich4
functions:
  - location: "0000:00:1d.0"
    interface: uhci
    vendor: 0x8086
    product: 0x24c2
    intline: 11
    ports: 2
    memory: 4096
  - location: "0000:00:1d.1"
    interface: uhci
    vendor: 0x8086
    product: 0x24c4
    intline: 11
    ports: 2
    memory: 4096
  - location: "0000:00:1d.7"
    interface: ehci
    vendor: 0x8086
    product: 0x24cd
    intline: 11
    ports: 4
    memory: 8192
    direct: true
    resources:
      - index: 0
        base: 0xfebff000
        size: 1024
  - location: "0000:00:02.0"
    class: 0x030000
    vendor: 0x8086
    product: 0x2582
    intline: 10
`

func mustParse(t *testing.T, doc string) *Topology {
	t.Helper()
	topo, err := ParseTopology([]byte(doc))
	if err != nil {
		t.Fatalf("ParseTopology() error = %v", err)
	}
	return topo
}

func TestParseTopology(t *testing.T) {
	topo := mustParse(t, ich4)

	if topo.Name != "ich4" {
		t.Errorf("Name = %q, want ich4", topo.Name)
	}
	if len(topo.Functions) != 4 {
		t.Fatalf("len(Functions) = %d, want 4", len(topo.Functions))
	}

	ehci := topo.Functions[2]
	if hal.HCIType(ehci.Interface) != hal.HCIEHCI {
		t.Errorf("Interface = %v, want EHCI", hal.HCIType(ehci.Interface))
	}
	if ehci.Vendor != 0x8086 || ehci.Product != 0x24cd {
		t.Errorf("id = %04x:%04x, want 8086:24cd", ehci.Vendor, ehci.Product)
	}
	if want := (hal.Location{Device: 0x1d, Function: 7}); ehci.PCILocation() != want {
		t.Errorf("PCILocation() = %v, want %v", ehci.PCILocation(), want)
	}
	if ehci.ClassCode() != 0x0c0320 {
		t.Errorf("ClassCode() = 0x%06x, want 0x0c0320", ehci.ClassCode())
	}
	if len(ehci.Resources) != 1 || ehci.Resources[0].Base != 0xfebff000 || ehci.Resources[0].Size != 1024 {
		t.Errorf("Resources = %+v", ehci.Resources)
	}
	if !ehci.Direct || ehci.Memory != 8192 || ehci.Route != nil {
		t.Errorf("direct/memory/route = %v/%d/%v", ehci.Direct, ehci.Memory, ehci.Route)
	}

	if display := topo.Functions[3]; display.ClassCode() != 0x030000 {
		t.Errorf("display ClassCode() = 0x%06x, want 0x030000", display.ClassCode())
	}
}

func TestParseTopologyRoute(t *testing.T) {
	topo := mustParse(t, `
functions:
  - location: "0000:00:1d.0"
    interface: ohci
    route: 0x0101
`)
	s := topo.Functions[0]
	if s.Route == nil || *s.Route != 0x0101 {
		t.Errorf("Route = %v, want 0x0101", s.Route)
	}
	if hal.HCIType(s.Interface) != hal.HCIOHCI {
		t.Errorf("Interface = %v, want OHCI", hal.HCIType(s.Interface))
	}
}

func TestParseTopologyInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown interface", `functions: [{location: "0000:00:1d.0", interface: firewire}]`},
		{"bad location", `functions: [{location: "00:1d", interface: uhci}]`},
		{"duplicate", `functions: [{location: "0000:00:1d.0"}, {location: "0000:00:1d.0"}]`},
		{"negative ports", `functions: [{location: "0000:00:1d.0", ports: -1}]`},
		{"not yaml", `functions: [`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTopology([]byte(tt.doc)); err == nil {
				t.Error("ParseTopology() error = nil, want error")
			}
		})
	}

	_, err := ParseTopology([]byte(tests[2].doc))
	if !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("duplicate error = %v, want %v", err, pkg.ErrInvalidParameter)
	}
}

func TestLoadTopology(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ich4.yaml")
	if err := os.WriteFile(path, []byte(ich4), 0o644); err != nil {
		t.Fatal(err)
	}

	topo, err := LoadTopology(path)
	if err != nil {
		t.Fatalf("LoadTopology() error = %v", err)
	}
	if len(topo.Functions) != 4 {
		t.Errorf("len(Functions) = %d, want 4", len(topo.Functions))
	}

	if _, err := LoadTopology(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadTopology(missing) error = nil, want error")
	}
}

func TestInterfaceMarshal(t *testing.T) {
	out, err := yaml.Marshal(Topology{
		Name:      "xhci",
		Functions: []FunctionSpec{{Location: "0000:00:14.0", Interface: Interface(hal.HCIXHCI)}},
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(out), "interface: xhci") {
		t.Errorf("Marshal() = %q, want interface: xhci", out)
	}

	topo := mustParse(t, string(out))
	if hal.HCIType(topo.Functions[0].Interface) != hal.HCIXHCI {
		t.Errorf("round trip Interface = %v, want XHCI", hal.HCIType(topo.Functions[0].Interface))
	}
}

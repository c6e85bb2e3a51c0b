package sim

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// Topology describes the PCI functions of a simulated machine.
type Topology struct {
	Name      string         `yaml:"name"`
	Functions []FunctionSpec `yaml:"functions"`
}

// FunctionSpec describes one simulated PCI function and how its controller
// behaves during bring-up.
type FunctionSpec struct {
	Location  string    `yaml:"location"`
	Interface Interface `yaml:"interface"`
	// Class overrides the class code (0xCCSSPP) derived from Interface.
	Class   uint32 `yaml:"class,omitempty"`
	Vendor  uint16 `yaml:"vendor"`
	Product uint16 `yaml:"product"`
	IntLine uint8  `yaml:"intline"`
	// SBRN is the serial bus release number register (BCD).
	SBRN      uint8          `yaml:"sbrn,omitempty"`
	Resources []hal.Resource `yaml:"resources,omitempty"`

	// Direct functions implement hal.ConfigSpace.
	Direct bool `yaml:"direct,omitempty"`

	// Owner holds the function before the driver starts.
	Owner string `yaml:"owner,omitempty"`

	// Bring-up behavior
	Ports  int     `yaml:"ports"`
	Route  *uint64 `yaml:"route,omitempty"`  // Complex routing bitmask
	Memory int     `yaml:"memory,omitempty"` // Bytes mapped at bring-up
	Fail   string  `yaml:"fail,omitempty"`   // Bring-up error message

	location hal.Location
}

// ClassCode returns the function's class code.
func (s FunctionSpec) ClassCode() uint32 {
	if s.Class != 0 {
		return s.Class
	}
	return uint32(hal.ClassSerialBus)<<16 | uint32(hal.SubclassUSB)<<8 | uint32(s.Interface)
}

// PCILocation returns the parsed location. It is valid once the topology has
// been validated.
func (s FunctionSpec) PCILocation() hal.Location { return s.location }

// Interface is a host controller interface named in a topology file.
type Interface hal.HCIType

// UnmarshalYAML implements yaml.Unmarshaler for Interface.
func (i *Interface) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	for _, t := range []hal.HCIType{hal.HCIUHCI, hal.HCIOHCI, hal.HCIEHCI, hal.HCIXHCI} {
		if strings.EqualFold(s, t.String()) {
			*i = Interface(t)
			return nil
		}
	}
	return fmt.Errorf("%w: interface %q", pkg.ErrInvalidParameter, s)
}

// MarshalYAML implements yaml.Marshaler for Interface.
func (i Interface) MarshalYAML() (any, error) {
	return strings.ToLower(hal.HCIType(i).String()), nil
}

// LoadTopology reads a topology file.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology file: %w", err)
	}
	t, err := ParseTopology(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ParseTopology decodes and validates a topology document.
func ParseTopology(data []byte) (*Topology, error) {
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate resolves every function location and rejects duplicates.
func (t *Topology) Validate() error {
	seen := make(map[hal.Location]bool, len(t.Functions))
	for i := range t.Functions {
		s := &t.Functions[i]
		loc, err := hal.ParseLocation(s.Location)
		if err != nil {
			return fmt.Errorf("%w: function %d: %w", pkg.ErrInvalidParameter, i, err)
		}
		if seen[loc] {
			return fmt.Errorf("%w: duplicate function %v", pkg.ErrInvalidParameter, loc)
		}
		if s.Ports < 0 {
			return fmt.Errorf("%w: %v: negative port count", pkg.ErrInvalidParameter, loc)
		}
		seen[loc] = true
		s.location = loc
	}
	return nil
}

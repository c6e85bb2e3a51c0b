package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/ardnew/pciusb/host"
	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// outputFormat selects how a report is written.
type outputFormat int

const (
	outputText outputFormat = iota
	outputYAML
)

func parseOutput(s string) (outputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return outputText, nil
	case "yaml", "yml":
		return outputYAML, nil
	default:
		return outputText, fmt.Errorf("%w: output format %q", pkg.ErrInvalidParameter, s)
	}
}

// report describes the units found on one bus.
type report struct {
	Source string       `yaml:"source"`
	Units  []unitReport `yaml:"units"`
}

type unitReport struct {
	Index       int                `yaml:"index"`
	DeviceID    string             `yaml:"device_id"`
	IntLine     uint8              `yaml:"intline"`
	State       string             `yaml:"state"`
	Product     string             `yaml:"product,omitempty"`
	Ports       int                `yaml:"root_hub_ports,omitempty"`
	USB11Ports  int                `yaml:"usb11_ports,omitempty"`
	USB20Ports  int                `yaml:"usb20_ports,omitempty"`
	USB30Ports  int                `yaml:"usb30_ports,omitempty"`
	PortMap     []portReport       `yaml:"port_map,omitempty"`
	Error       string             `yaml:"error,omitempty"`
	Controllers []controllerReport `yaml:"controllers"`
}

type controllerReport struct {
	Name      string   `yaml:"name"`
	Location  string   `yaml:"location"`
	Interface string   `yaml:"interface"`
	ID        string   `yaml:"id"`
	Vendor    string   `yaml:"vendor,omitempty"`
	Product   string   `yaml:"product,omitempty"`
	Quirks    string   `yaml:"quirks,omitempty"`
	Ports     []int    `yaml:"ports,omitempty"` // Global port of each local port
	Resources []string `yaml:"resources,omitempty"`
	Owner     string   `yaml:"owner,omitempty"`
}

type portReport struct {
	Port      int    `yaml:"port"`
	Owner     string `yaml:"owner"`
	HighSpeed string `yaml:"high_speed,omitempty"`
	Companion string `yaml:"companion,omitempty"`
}

// named is implemented by functions that know their PCI ID database names.
type named interface {
	VendorName() string
	ProductName() string
}

func newUnitReport(u *host.Unit) unitReport {
	r := unitReport{
		Index:      u.Index(),
		DeviceID:   fmt.Sprintf("0x%x", u.DeviceID()),
		IntLine:    u.IntLine(),
		State:      u.State().String(),
		Product:    u.ProductName(),
		Ports:      u.RootHubPorts(),
		USB11Ports: u.RootHub11Ports(),
		USB20Ports: u.RootHub20Ports(),
		USB30Ports: u.RootHub30Ports(),
	}
	for port, n := 0, u.RootHubPorts(); port < n; port++ {
		owner, _ := u.PortOwner(port)
		p := portReport{Port: port, Owner: owner.String()}
		if c := u.HighSpeedPort(port); c != nil {
			p.HighSpeed = c.Location().String()
		}
		if c, local := u.CompanionPort(port); c != nil {
			p.Companion = c.Location().String() + "#" + strconv.Itoa(local)
		}
		r.PortMap = append(r.PortMap, p)
	}
	for _, c := range u.Controllers() {
		r.Controllers = append(r.Controllers, newControllerReport(c))
	}
	return r
}

func newControllerReport(c *host.Controller) controllerReport {
	r := controllerReport{
		Name:      c.Name(),
		Location:  c.Location().String(),
		Interface: c.Type().String(),
		ID:        fmt.Sprintf("%04x:%04x", c.VendorID(), c.ProductID()),
		Ports:     c.LocalPorts(),
	}
	if n, ok := c.Function().(named); ok {
		r.Vendor = n.VendorName()
		r.Product = n.ProductName()
	}
	if q := c.Quirks(); q != 0 {
		r.Quirks = q.String()
	}
	for _, res := range c.Function().Info().Resources {
		r.Resources = append(r.Resources, formatResource(res))
	}
	return r
}

func formatResource(res hal.Resource) string {
	kind := "mem"
	if res.IO {
		kind = "io"
	}
	return fmt.Sprintf("BAR%d %s 0x%x (%s)", res.Index, kind, res.Base, units.BytesSize(float64(res.Size)))
}

// writeReport writes r to w in the given format.
func writeReport(w io.Writer, r report, format outputFormat) error {
	if format == outputYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	}

	var b strings.Builder
	if len(r.Units) == 0 {
		fmt.Fprintf(&b, "%s: no USB host controllers\n", r.Source)
	}
	for _, u := range r.Units {
		fmt.Fprintf(&b, "Unit %d: device %s intline %d [%s]\n", u.Index, u.DeviceID, u.IntLine, u.State)
		if u.Product != "" {
			fmt.Fprintf(&b, "  %s, %d root hub ports (1.1: %d, 2.0: %d, 3.x: %d)\n",
				u.Product, u.Ports, u.USB11Ports, u.USB20Ports, u.USB30Ports)
		}
		if u.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", u.Error)
		}
		for _, c := range u.Controllers {
			fmt.Fprintf(&b, "  %-18s %s %-4s %s", c.Name, c.Location, c.Interface, c.ID)
			if c.Product != "" {
				fmt.Fprintf(&b, " %s", c.Product)
			}
			if len(c.Ports) > 0 {
				fmt.Fprintf(&b, " ports %s", joinInts(c.Ports))
			}
			if c.Quirks != "" {
				fmt.Fprintf(&b, " quirks %s", c.Quirks)
			}
			if c.Owner != "" {
				fmt.Fprintf(&b, " owner %s", c.Owner)
			}
			b.WriteByte('\n')
			for _, res := range c.Resources {
				fmt.Fprintf(&b, "    %s\n", res)
			}
		}
		for _, p := range u.PortMap {
			fmt.Fprintf(&b, "  port %d: %s", p.Port, p.Owner)
			if p.Companion != "" {
				fmt.Fprintf(&b, " companion %s", p.Companion)
			}
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ",")
}

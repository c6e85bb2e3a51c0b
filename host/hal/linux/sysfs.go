//go:build linux

package linux

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	vfs "github.com/twpayne/go-vfs"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// =============================================================================
// PCI Function Information
// =============================================================================

// pciFunctionInfo holds information about a PCI function discovered via
// sysfs.
type pciFunctionInfo struct {
	sysfsPath string // Path in /sys/bus/pci/devices
	class     uint8
	subclass  uint8
	progIF    uint8
	info      hal.FunctionInfo
}

// =============================================================================
// Sysfs Parsing
// =============================================================================

// scanPCIFunctions scans root for PCI functions matching filter.
func scanPCIFunctions(fs vfs.FS, root string, filter hal.ClassFilter) ([]pciFunctionInfo, error) {
	entries, err := fs.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var functions []pciFunctionInfo
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(root, name)

		loc, err := parseLocation(name)
		if err != nil {
			continue // Not a function entry
		}

		class, subclass, progIF, err := readClass(fs, path)
		if err != nil {
			pkg.LogDebug(pkg.ComponentHAL, "unreadable class", "function", name, "error", err)
			continue
		}
		if class != filter.Class || subclass != filter.Subclass {
			continue
		}

		info, err := parsePCIFunction(fs, path, loc)
		if err != nil {
			pkg.LogDebug(pkg.ComponentHAL, "unreadable function", "function", name, "error", err)
			continue
		}
		info.class = class
		info.subclass = subclass
		info.progIF = progIF
		info.info.Interface = hal.HCIType(progIF)

		functions = append(functions, info)
	}

	return functions, nil
}

// parsePCIFunction parses PCI function information from sysfs.
func parsePCIFunction(fs vfs.FS, sysfsPath string, loc hal.Location) (pciFunctionInfo, error) {
	info := pciFunctionInfo{
		sysfsPath: sysfsPath,
	}
	info.info.Location = loc

	vendorID, err := readSysfsHexUint16(fs, filepath.Join(sysfsPath, "vendor"))
	if err != nil {
		return info, err
	}
	info.info.VendorID = vendorID

	productID, err := readSysfsHexUint16(fs, filepath.Join(sysfsPath, "device"))
	if err != nil {
		return info, err
	}
	info.info.ProductID = productID

	// The interrupt line register is in the header, which sysfs exposes to
	// unprivileged readers.
	intLine, err := readConfigByte(fs, filepath.Join(sysfsPath, "config"), cfgIntLine)
	if err != nil {
		return info, err
	}
	info.info.IntLine = intLine

	if data, err := fs.ReadFile(filepath.Join(sysfsPath, "resource")); err == nil {
		info.info.Resources, err = parseResources(data)
		if err != nil {
			pkg.LogDebug(pkg.ComponentHAL, "malformed resource table", "function", loc.String(), "error", err)
		}
	}

	return info, nil
}

// readClass reads the class attribute, formatted as 0xCCSSPP.
func readClass(fs vfs.FS, sysfsPath string) (class, subclass, progIF uint8, err error) {
	v, err := readSysfsHex(fs, filepath.Join(sysfsPath, "class"), 24)
	if err != nil {
		return 0, 0, 0, err
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}

// readConfigByte reads one byte of a configuration space file.
func readConfigByte(fs vfs.FS, path string, offset int64) (uint8, error) {
	f, err := fs.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var b [1]byte
	if _, err := f.ReadAt(b[:], offset); err != nil {
		return 0, err
	}
	return b[0], nil
}

// parseLocation parses a function directory name of the form
// dddd:bb:dd.f.
func parseLocation(name string) (hal.Location, error) {
	loc, err := hal.ParseLocation(name)
	if err != nil {
		return loc, fmt.Errorf("%w: %w", pkg.ErrInvalidParameter, err)
	}
	return loc, nil
}

// parseResources parses the sysfs resource table: one "start end flags"
// line per region. Unused regions have a zero start and are omitted.
func parseResources(data []byte) ([]hal.Resource, error) {
	var resources []hal.Resource
	sc := bufio.NewScanner(bytes.NewReader(data))
	for i := 0; sc.Scan() && i < MaxResources; i++ {
		var start, end, flags uint64
		n, err := fmt.Sscanf(sc.Text(), "0x%x 0x%x 0x%x", &start, &end, &flags)
		if err != nil || n != 3 {
			return resources, fmt.Errorf("resource %d: short read", i)
		}
		if start == 0 {
			continue
		}
		resources = append(resources, hal.Resource{
			Index: i,
			Base:  start,
			Size:  1 + end - start,
			IO:    flags&ioresourceIO != 0,
		})
	}
	return resources, sc.Err()
}

// =============================================================================
// Sysfs Read Helpers
// =============================================================================

// readSysfsString reads a string from a sysfs attribute file.
func readSysfsString(fs vfs.FS, path string) (string, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// readSysfsHex reads a hexadecimal value from a sysfs attribute file.
func readSysfsHex(fs vfs.FS, path string, bitSize int) (uint64, error) {
	s, err := readSysfsString(fs, path)
	if err != nil {
		return 0, err
	}
	// Remove any "0x" prefix
	s = strings.TrimPrefix(s, "0x")
	return strconv.ParseUint(s, 16, bitSize)
}

// readSysfsHexUint16 reads a hexadecimal uint16 from a sysfs attribute file.
func readSysfsHexUint16(fs vfs.FS, path string) (uint16, error) {
	v, err := readSysfsHex(fs, path, 16)
	if err != nil {
		return 0, err
	}
	if v > 0xFFFF {
		return 0, os.ErrInvalid
	}
	return uint16(v), nil
}

// readDriver returns the name of the kernel driver bound to a function, or
// the empty string.
func readDriver(fs vfs.FS, sysfsPath string) string {
	target, err := fs.Readlink(filepath.Join(sysfsPath, "driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

// findUIODevice returns the UIO device name (uioN) bound to a function.
func findUIODevice(fs vfs.FS, sysfsPath string) (string, error) {
	entries, err := fs.ReadDir(filepath.Join(sysfsPath, "uio"))
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "uio") {
			return entry.Name(), nil
		}
	}
	return "", os.ErrNotExist
}

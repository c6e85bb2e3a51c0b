//go:build linux

package linux

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// =============================================================================
// Function
// =============================================================================

// Function is a PCI function backed by its sysfs directory. Configuration
// space is accessed through the sysfs config file; the part beyond the
// standard header is only writable, and on most kernels only readable, by
// privileged users.
type Function struct {
	bus    *Bus
	path   string
	info   hal.FunctionInfo
	vendor string // Vendor name, if known
	name   string // Product name, if known

	mu       sync.Mutex
	config   *os.File
	readOnly bool
	uio      *os.File
	irq      *hal.Interrupt
}

// Info returns the function's attributes.
func (f *Function) Info() hal.FunctionInfo { return f.info }

// Path returns the function's sysfs directory.
func (f *Function) Path() string { return f.path }

// VendorName returns the vendor name from the PCI ID database, if any.
func (f *Function) VendorName() string { return f.vendor }

// ProductName returns the product name from the PCI ID database, if any.
func (f *Function) ProductName() string { return f.name }

// Driver returns the name of the kernel driver bound to the function.
func (f *Function) Driver() string {
	return readDriver(f.bus.fs, f.path)
}

// openConfig opens the configuration space file on first use. Without
// write permission it falls back to read-only access.
func (f *Function) openConfig() (*os.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.config != nil {
		return f.config, nil
	}

	path := filepath.Join(f.path, "config")
	file, err := f.bus.fs.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrPermission) {
		file, err = f.bus.fs.OpenFile(path, os.O_RDONLY, 0)
		f.readOnly = err == nil
	}
	if err != nil {
		return nil, err
	}
	f.config = file
	return file, nil
}

// checkAccess validates a configuration space access.
func checkAccess(offset uint8, width hal.Width) error {
	switch width {
	case hal.Width8, hal.Width16, hal.Width32:
	default:
		return fmt.Errorf("%w: access width %d", pkg.ErrInvalidParameter, width)
	}
	if int(offset)+int(width) > ConfigSpaceSize || int(offset)%int(width) != 0 {
		return fmt.Errorf("%w: config offset 0x%02x width %d", pkg.ErrInvalidParameter, offset, width)
	}
	return nil
}

// ReadConfig reads a configuration register of the given width.
func (f *Function) ReadConfig(offset uint8, width hal.Width) (uint32, error) {
	if err := checkAccess(offset, width); err != nil {
		return 0, err
	}
	file, err := f.openConfig()
	if err != nil {
		return 0, err
	}

	var buf [4]byte
	if _, err := file.ReadAt(buf[:width], int64(offset)); err != nil {
		return 0, fmt.Errorf("%s: read config 0x%02x: %w", f.info.Location, offset, err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteConfig writes a configuration register of the given width.
func (f *Function) WriteConfig(offset uint8, width hal.Width, value uint32) error {
	if err := checkAccess(offset, width); err != nil {
		return err
	}
	file, err := f.openConfig()
	if err != nil {
		return err
	}
	if f.readOnly {
		return fmt.Errorf("%w: %s: config space is read-only", pkg.ErrNotSupported, f.info.Location)
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	if _, err := file.WriteAt(buf[:width], int64(offset)); err != nil {
		return fmt.Errorf("%s: write config 0x%02x: %w", f.info.Location, offset, err)
	}
	return nil
}

// AddInterrupt delivers the function's interrupts to irq.Handler. The
// function must be bound to uio_pci_generic; each interrupt is reported
// through the UIO device node and re-armed after the handler returns.
func (f *Function) AddInterrupt(irq *hal.Interrupt) error {
	if irq == nil || irq.Handler == nil {
		return fmt.Errorf("%w: nil interrupt handler", pkg.ErrInvalidParameter)
	}

	uioName, err := findUIODevice(f.bus.fs, f.path)
	if err != nil {
		return fmt.Errorf("%w: %s: no UIO device", pkg.ErrNotSupported, f.info.Location)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.irq != nil {
		return fmt.Errorf("%w: %s: interrupt already registered", pkg.ErrInvalidState, f.info.Location)
	}

	file, err := f.bus.fs.OpenFile(filepath.Join(f.bus.devRoot, uioName), os.O_RDWR, 0)
	if err != nil {
		return err
	}
	p, err := f.bus.interrupts()
	if err != nil {
		file.Close()
		return err
	}

	fd := int(file.Fd())
	if err := armUIO(fd); err != nil {
		file.Close()
		return err
	}
	if err := p.addFD(fd, unix.EPOLLIN, func(events uint32) { f.serviceInterrupt(fd, irq, events) }); err != nil {
		file.Close()
		return err
	}

	f.uio = file
	f.irq = irq
	pkg.LogDebug(pkg.ComponentHAL, "interrupt registered",
		"function", f.info.Location.String(),
		"uio", uioName,
		"name", irq.Name)
	return nil
}

// serviceInterrupt consumes one UIO event, runs the handler and re-arms.
func (f *Function) serviceInterrupt(fd int, irq *hal.Interrupt, events uint32) {
	if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		pkg.LogWarn(pkg.ComponentHAL, "interrupt source failed", "function", f.info.Location.String())
		return
	}
	var count [4]byte
	if _, err := unix.Read(fd, count[:]); err != nil {
		return
	}
	irq.Handler()
	if err := armUIO(fd); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "cannot re-arm interrupt",
			"function", f.info.Location.String(),
			"error", err)
	}
}

// armUIO enables interrupt delivery on a UIO device.
func armUIO(fd int) error {
	var enable [4]byte
	binary.NativeEndian.PutUint32(enable[:], 1)
	_, err := unix.Write(fd, enable[:])
	return err
}

// RemoveInterrupt stops delivery to a handler registered by AddInterrupt.
func (f *Function) RemoveInterrupt(irq *hal.Interrupt) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.irq == nil || f.irq != irq {
		return fmt.Errorf("%w: %s: interrupt not registered", pkg.ErrInvalidParameter, f.info.Location)
	}
	var err error
	if p := f.bus.activePoller(); p != nil {
		err = p.delFD(int(f.uio.Fd()))
	}
	err = errors.Join(err, f.uio.Close())
	f.uio = nil
	f.irq = nil
	return err
}

// AllocMemory maps an anonymous, page-aligned block. Addr holds the
// process virtual address; no IOMMU mapping is established.
func (f *Function) AllocMemory(size int) (*hal.MemoryBlock, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: memory size %d", pkg.ErrInvalidParameter, size)
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %w", pkg.ErrNoMemory, size, err)
	}
	return &hal.MemoryBlock{
		Mem:  mem,
		Addr: uintptr(unsafe.Pointer(&mem[0])),
	}, nil
}

// FreeMemory unmaps a block returned by AllocMemory.
func (f *Function) FreeMemory(block *hal.MemoryBlock) error {
	if block == nil || block.Mem == nil {
		return nil
	}
	err := unix.Munmap(block.Mem)
	block.Mem = nil
	block.Addr = 0
	return err
}

// close releases the function's open files.
func (f *Function) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if f.uio != nil {
		err = f.uio.Close()
		f.uio = nil
		f.irq = nil
	}
	if f.config != nil {
		err = errors.Join(err, f.config.Close())
		f.config = nil
	}
	return err
}

// =============================================================================
// Direct Configuration Access
// =============================================================================

// directFunction is a Function that also implements hal.ConfigSpace with
// positioned reads and writes on the config file descriptor.
type directFunction struct {
	*Function
}

func (d directFunction) pread(buf []byte, offset uint8) error {
	if err := checkAccess(offset, hal.Width(len(buf))); err != nil {
		return err
	}
	file, err := d.openConfig()
	if err != nil {
		return err
	}
	n, err := unix.Pread(int(file.Fd()), buf, int64(offset))
	if err == nil && n < len(buf) {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return fmt.Errorf("%s: read config 0x%02x: %w", d.info.Location, offset, err)
	}
	return nil
}

func (d directFunction) pwrite(buf []byte, offset uint8) error {
	if err := checkAccess(offset, hal.Width(len(buf))); err != nil {
		return err
	}
	file, err := d.openConfig()
	if err != nil {
		return err
	}
	if d.readOnly {
		return fmt.Errorf("%w: %s: config space is read-only", pkg.ErrNotSupported, d.info.Location)
	}
	n, err := unix.Pwrite(int(file.Fd()), buf, int64(offset))
	if err == nil && n < len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("%s: write config 0x%02x: %w", d.info.Location, offset, err)
	}
	return nil
}

func (d directFunction) ReadConfigByte(offset uint8) (uint8, error) {
	var b [1]byte
	err := d.pread(b[:], offset)
	return b[0], err
}

func (d directFunction) ReadConfigWord(offset uint8) (uint16, error) {
	var b [2]byte
	err := d.pread(b[:], offset)
	return binary.LittleEndian.Uint16(b[:]), err
}

func (d directFunction) ReadConfigLong(offset uint8) (uint32, error) {
	var b [4]byte
	err := d.pread(b[:], offset)
	return binary.LittleEndian.Uint32(b[:]), err
}

func (d directFunction) WriteConfigByte(offset uint8, value uint8) error {
	return d.pwrite([]byte{value}, offset)
}

func (d directFunction) WriteConfigWord(offset uint8, value uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], value)
	return d.pwrite(b[:], offset)
}

func (d directFunction) WriteConfigLong(offset uint8, value uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], value)
	return d.pwrite(b[:], offset)
}

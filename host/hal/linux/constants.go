package linux

// =============================================================================
// System Paths
// =============================================================================

// SysfsPCIPath is the base path for PCI functions in sysfs.
const SysfsPCIPath = "/sys/bus/pci/devices"

// DevPath is the base path for device nodes.
const DevPath = "/dev"

// ProcCmdlinePath is the kernel command line.
const ProcCmdlinePath = "/proc/cmdline"

// DefaultLockDir holds the ownership lock files of LockManager.
const DefaultLockDir = "/run/pciusb"

// =============================================================================
// Configuration Space
// =============================================================================

// ConfigSpaceSize is the size of the conventional PCI configuration space.
const ConfigSpaceSize = 256

// Configuration space offsets read during discovery.
const (
	cfgIntLine = 0x3C
)

// =============================================================================
// Resources
// =============================================================================

// MaxResources is the number of resource lines considered: six BARs and the
// expansion ROM.
const MaxResources = 7

// ioresourceIO marks an I/O port resource in the sysfs resource flags.
const ioresourceIO = 0x100

// =============================================================================
// Epoll Constants
// =============================================================================

// MaxEpollEvents is the maximum events to retrieve per epoll_wait call.
const MaxEpollEvents = 16

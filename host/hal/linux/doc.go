// Package linux provides a PCI HAL implementation for Linux using sysfs.
//
// Functions are discovered under /sys/bus/pci/devices/ and their
// configuration space is accessed through each function's config file,
// either with positioned reads and writes on its file descriptor or through
// the generic width-parameterized path. All filesystem access goes through
// a vfs.FS so the HAL can be pointed at a captured sysfs tree.
//
// # Requirements
//
// Reading the standard configuration header needs no privileges. Writing
// configuration space, and reading beyond the header, typically requires
// running as root.
//
// Interrupt delivery requires the function to be bound to uio_pci_generic.
// Interrupts are read from the UIO device node in an epoll loop and handed
// to the registered handler.
//
// # Ownership
//
// [LockManager] arbitrates exclusive ownership between processes with one
// flock-protected file per function. Functions bound to a kernel driver
// are reported as owned by that driver.
//
// # Kernel Command Line
//
// [CmdlineEnablesXHCI] honors a USB= argument such as USB=xhci.
package linux

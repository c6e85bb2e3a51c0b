//go:build linux

package linux

import (
	"strings"

	vfs "github.com/twpayne/go-vfs"
)

// CmdlineEnablesXHCI reports whether the kernel command line requests XHCI
// support with a USB= argument containing "xhci", e.g. USB=ehci,xhci.
func CmdlineEnablesXHCI(fs vfs.FS) (bool, error) {
	data, err := fs.ReadFile(ProcCmdlinePath)
	if err != nil {
		return false, err
	}
	return parseCmdlineXHCI(string(data)), nil
}

func parseCmdlineXHCI(cmdline string) bool {
	for _, arg := range strings.Fields(cmdline) {
		if v, ok := strings.CutPrefix(arg, "USB="); ok && strings.Contains(v, "xhci") {
			return true
		}
	}
	return false
}

// Command pciusb enumerates the USB host controllers of a PCI bus, groups
// them into units and reports the resulting root hubs, either for the
// running machine or for a simulated one described in YAML.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

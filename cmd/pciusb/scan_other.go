//go:build !linux

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ardnew/pciusb/host"
	"github.com/ardnew/pciusb/pkg"
)

const defaultLockDir = ""

func runScan(_ *cobra.Command, _ host.Config, _ scanOptions, _ outputFormat) error {
	return fmt.Errorf("%w: scanning requires Linux sysfs", pkg.ErrNotSupported)
}

//go:build linux

package main

import (
	"errors"
	"fmt"

	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"
	vfs "github.com/twpayne/go-vfs"

	"github.com/ardnew/pciusb/host"
	"github.com/ardnew/pciusb/host/hal/linux"
	"github.com/ardnew/pciusb/pkg"
)

const defaultLockDir = linux.DefaultLockDir

func runScan(cmd *cobra.Command, cfg host.Config, opts scanOptions, format outputFormat) error {
	var fs vfs.FS = vfs.OSFS
	source := "/"
	if opts.sysfs != "" {
		fs = vfs.NewPathFS(vfs.OSFS, opts.sysfs)
		source = opts.sysfs
	}

	if !cfg.EnableXHCI {
		enabled, err := linux.CmdlineEnablesXHCI(fs)
		if err != nil {
			pkg.LogDebug(pkg.ComponentCLI, "kernel command line unavailable", "error", err)
		}
		cfg.EnableXHCI = enabled
	}

	bus := linux.NewBus(linux.WithFS(fs))
	rm := linux.NewLockManager(fs, opts.lockDir)
	h := host.New(cfg, bus, rm)
	if err := h.Init(); err != nil {
		return errors.Join(err, bus.Close())
	}

	if opts.dump {
		for _, f := range bus.Functions() {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", f.Path(), litter.Sdump(f.Info()))
		}
	}

	r := report{Source: source}
	for _, u := range h.Units() {
		ur := newUnitReport(u)
		if opts.probe {
			probeOwners(rm, cfg.Name, u, &ur)
		}
		r.Units = append(r.Units, ur)
	}

	err := writeReport(cmd.OutOrStdout(), r, format)
	return errors.Join(err, rm.Close(), h.Expunge())
}

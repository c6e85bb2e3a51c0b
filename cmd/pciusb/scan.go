package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ardnew/pciusb/host"
	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

type scanOptions struct {
	sysfs   string
	lockDir string
	dump    bool
	probe   bool
}

func newScanCmd(v *viper.Viper) *cobra.Command {
	var opts scanOptions
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Enumerate and bind the USB host controllers of this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := parseOutput(v.GetString(keyOutput))
			if err != nil {
				return err
			}
			return runScan(cmd, hostConfig(v), opts, format)
		},
	}
	cmd.Flags().StringVar(&opts.sysfs, "sysfs", "", "Read sysfs and procfs below `DIR` instead of /")
	cmd.Flags().StringVar(&opts.lockDir, "lock-dir", defaultLockDir, "Directory holding ownership lock files")
	cmd.Flags().BoolVar(&opts.dump, "dump", false, "Dump the attributes of every function to stderr")
	cmd.Flags().BoolVar(&opts.probe, "probe", false, "Report whether each controller can be acquired")
	return cmd
}

// probeOwners tries to acquire every controller of u and records who owns
// it: "available" if the claim succeeded and was given back.
func probeOwners(rm hal.ResourceManager, name string, u *host.Unit, r *unitReport) {
	for i, c := range u.Controllers() {
		err := rm.Acquire(c.Function(), name)
		var ce *pkg.ConflictError
		switch {
		case err == nil:
			r.Controllers[i].Owner = "available"
			if err := rm.Release(c.Function()); err != nil {
				pkg.LogWarn(pkg.ComponentCLI, "probe release failed",
					"controller", c.String(),
					"error", err)
			}
		case errors.As(err, &ce):
			r.Controllers[i].Owner = ce.Owner
		default:
			r.Controllers[i].Owner = "unknown"
			pkg.LogWarn(pkg.ComponentCLI, "probe failed",
				"controller", c.String(),
				"error", err)
		}
	}
}

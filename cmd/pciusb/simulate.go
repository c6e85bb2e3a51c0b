package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ardnew/pciusb/host"
	"github.com/ardnew/pciusb/host/hal/sim"
	"github.com/ardnew/pciusb/pkg"
)

func newSimulateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate TOPOLOGY",
		Short: "Run the driver lifecycle against a simulated machine",
		Long: "Build a machine from a YAML topology file, enumerate and bind its\n" +
			"controllers, allocate every unit, report it and free it again.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutput(v.GetString(keyOutput))
			if err != nil {
				return err
			}
			t, err := sim.LoadTopology(args[0])
			if err != nil {
				return err
			}
			m, err := sim.NewMachine(t)
			if err != nil {
				return err
			}

			h := m.Host(hostConfig(v))
			if err := h.Init(); err != nil {
				return err
			}

			r := report{Source: t.Name}
			if r.Source == "" {
				r.Source = args[0]
			}
			units := h.Units()
			for _, u := range units {
				err := h.AllocUnit(u)
				ur := newUnitReport(u)
				if err != nil {
					ur.Error = err.Error()
				}
				r.Units = append(r.Units, ur)
			}
			for _, u := range units {
				if u.State() == host.UnitOnline {
					if err := h.FreeUnit(u); err != nil {
						return err
					}
				}
			}
			if err := h.Expunge(); err != nil {
				return err
			}

			inits, stops := m.Protocol.Counts()
			pkg.LogInfo(pkg.ComponentCLI, "simulation complete",
				"units", len(units),
				"inits", inits,
				"stops", stops)
			return writeReport(cmd.OutOrStdout(), r, format)
		},
	}
}

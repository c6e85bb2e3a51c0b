package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ardnew/pciusb/host"
	"github.com/ardnew/pciusb/pkg"
)

// Configuration keys. Each is a persistent flag, a PCIUSB_* environment
// variable and a key of the --config file.
const (
	keyConfig         = "config"
	keyLogLevel       = "log-level"
	keyLogFormat      = "log-format"
	keyName           = "name"
	keyXHCI           = "xhci"
	keyMaxControllers = "max-controllers"
	keyOutput         = "output"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:          "pciusb",
		Short:        "Enumerate and bind PCI USB host controllers",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return configure(cmd, v)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(keyConfig, "", "Read configuration from `FILE`")
	flags.String(keyLogLevel, "warn", "Log level (debug, info, warn, error)")
	flags.String(keyLogFormat, "text", "Log format (text, json)")
	flags.String(keyName, host.DefaultName, "Driver name used for ownership claims and device nodes")
	flags.Bool(keyXHCI, false, "Accept XHCI controllers")
	flags.Int(keyMaxControllers, host.DefaultMaxControllers, "Maximum number of controllers")
	flags.StringP(keyOutput, "o", "text", "Output format (text, yaml)")
	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})

	v.SetEnvPrefix("PCIUSB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd.AddCommand(newScanCmd(v), newSimulateCmd(v))
	return cmd
}

// configure loads the config file and sets up logging.
func configure(cmd *cobra.Command, v *viper.Viper) error {
	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	level, err := pkg.ParseLogLevel(v.GetString(keyLogLevel))
	if err != nil {
		return err
	}
	format, err := pkg.ParseLogFormat(v.GetString(keyLogFormat))
	if err != nil {
		return err
	}
	if _, err := parseOutput(v.GetString(keyOutput)); err != nil {
		return err
	}

	pkg.SetLogLevel(level)
	pkg.SetLogFormat(cmd.ErrOrStderr(), format)
	pkg.LogDebug(pkg.ComponentCLI, "configured",
		"command", cmd.Name(),
		"config", v.ConfigFileUsed(),
		"name", v.GetString(keyName),
		"xhci", v.GetBool(keyXHCI))
	return nil
}

// hostConfig returns the driver policy selected by v.
func hostConfig(v *viper.Viper) host.Config {
	cfg := host.DefaultConfig()
	cfg.Name = v.GetString(keyName)
	cfg.EnableXHCI = v.GetBool(keyXHCI)
	cfg.MaxControllers = v.GetInt(keyMaxControllers)
	return cfg
}

// Senville controls Senville / Midea mini-split air conditioners over the
// local network.
//
// It discovers units with the Midea UDP broadcast, reads their state and
// applies settings over the V3 (token/key) or V2 local protocol. Known units
// and their credentials are kept in a YAML registry.
//
// Usage:
//
//	senville [command] [flags]
//
// See 'senville --help' for available commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/config"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/device"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/logging"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/transport"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/ui"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/version"
)

// Global flags
var (
	logLevel       string
	configPath     string
	envFile        string
	requestTimeout time.Duration
	retries        uint64
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()

	if err != nil {
		var e *midea.Error
		if errors.As(err, &e) && ui.IsTerminal(os.Stderr) {
			ui.NewPrinter(os.Stderr).PrintError(commandTitle(err), err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func commandTitle(err error) string {
	switch midea.KindOf(err) {
	case midea.KindValidation:
		return "Invalid request"
	case midea.KindDiscoveryTimeout:
		return "Discovery"
	default:
		return "Unit request"
	}
}

var rootCmd = &cobra.Command{
	Use:   "senville",
	Short: "Senville / Midea air conditioner local control",
	Long: `Control Senville and other Midea-made mini-split air conditioners
over the local network, without the cloud.

Units are found with 'senville discover' and remembered with
'senville devices add'. Protocol V3 units need the token and key obtained
from the Midea cloud once; after that everything stays on the LAN.`,
	Version:       version.Full(),
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(logLevel); err != nil {
			return err
		}
		if configPath != "" {
			if err := os.Setenv(config.PathEnvVar, configPath); err != nil {
				return err
			}
		}
		if envFile != "" {
			return config.LoadDotEnv(envFile)
		}
		return config.LoadDotEnv()
	},
	Example: `  # Find units on the LAN
  senville discover

  # Remember one, with its cloud credentials
  senville devices add bedroom --id 151732605161920 --token <hex> --key <hex>

  # Read and change its state
  senville status --device bedroom
  senville set --device bedroom --power on --mode cool --temp 72F`,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Registry file (default $XDG_CONFIG_HOME/senville/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load SENVILLE_* variables from this file (default .env when present)")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "request-timeout", 0, "Per request timeout (default from preferences)")
	rootCmd.PersistentFlags().Uint64Var(&retries, "retries", 2, "Reconnect attempts on timeouts and dropped connections")

	versionCmd.Flags().StringVar(&versionFormat, "format", "text", "Output format (text, json)")
	rootCmd.AddCommand(versionCmd)
}

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := ui.NewPrinter(cmd.OutOrStdout())
		if versionFormat == "json" {
			return p.PrintJSON(version.Get())
		}
		p.Println("senville " + version.Full())
		return nil
	},
}

// loadRegistry reads the registry named by --config or the default location.
func loadRegistry() (*config.Registry, error) {
	path, err := config.GetConfigPath()
	if err != nil {
		return nil, err
	}
	return config.LoadRegistryFrom(path)
}

// temperatureUnit returns the --unit flag when given, else the preference.
func temperatureUnit(flag string, prefs *config.Preferences) (device.Unit, error) {
	if flag != "" {
		return device.ParseUnit(flag)
	}
	if prefs != nil && prefs.TemperatureUnit != "" {
		return device.ParseUnit(prefs.TemperatureUnit)
	}
	return device.Celsius, nil
}

// clientOptions builds the facade options from preferences and global flags.
func clientOptions(name string, prefs *config.Preferences) device.Options {
	opts := device.Options{Name: name}
	if prefs != nil {
		opts.Beep = prefs.Beep
		opts.Transport.RequestTimeout = prefs.RequestTimeoutDuration()
	}
	if requestTimeout > 0 {
		opts.Transport.RequestTimeout = requestTimeout
	}
	if opts.Transport.RequestTimeout <= 0 {
		opts.Transport.RequestTimeout = transport.DefaultRequestTimeout
	}
	return opts
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/discovery"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/ui"
)

// Discover command flags
var (
	discoverTimeout time.Duration
	discoverTargets []string
	discoverFormat  string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find air conditioners on the local network",
	Long: `Broadcast the Midea discovery probe and list every unit that answers.

Units already in the registry are shown with their name, and their IP
address is refreshed if it changed.`,
	Example: `  # Broadcast on the local subnet for 5 seconds
  senville discover

  # Probe one address directly (e.g. across VLANs)
  senville discover --target 192.168.20.31

  # JSON output for scripting
  senville discover --format json`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 0, "How long to wait for replies (default from preferences)")
	discoverCmd.Flags().StringSliceVar(&discoverTargets, "target", nil, "Probe these hosts instead of broadcasting")
	discoverCmd.Flags().StringVar(&discoverFormat, "format", "table", "Output format (table, json)")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	scanner := discovery.NewScanner()
	if discoverTimeout > 0 {
		scanner.Timeout = discoverTimeout
	} else if t := reg.Preferences.DiscoverTimeoutDuration(); t > 0 {
		scanner.Timeout = t
	}
	if len(discoverTargets) > 0 {
		scanner.Targets = nil
		for _, host := range discoverTargets {
			scanner.Targets = append(scanner.Targets, discovery.TargetsFor(host)...)
		}
	}

	label := fmt.Sprintf("Scanning for units (%s)...", scanner.Timeout)
	units, err := ui.RunDiscovery(cmd.Context(), label, scanner.Discover)
	if err != nil {
		return err
	}

	names := make([]string, len(units))
	changed := false
	for i, unit := range units {
		name, known, ok := reg.FindByID(unit.ID)
		if !ok {
			continue
		}
		names[i] = name
		if known.IP != unit.IP {
			changed = true
		}
		reg.UpdateDeviceLastSeen(name, unit.IP)
	}
	if changed {
		if err := reg.Save(); err != nil {
			return err
		}
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	if discoverFormat == "json" {
		return p.PrintJSON(discoveredJSON(units, names))
	}

	if len(units) == 0 {
		p.PrintWarning("No units answered",
			ui.Param{Key: "Waited", Value: scanner.Timeout.String()},
			ui.Param{Key: "Hint", Value: "check the subnet, or probe an IP with --target"},
		)
		return nil
	}

	p.Printf("Found %d unit(s):\n\n", len(units))
	p.Println(ui.RenderDevices(units, names))
	p.Newline()
	p.Println("Use 'senville devices add <name> --id <id> --token <hex> --key <hex>' to remember a unit")
	return nil
}

type discoveredUnit struct {
	Name string `json:"name,omitempty"`
	midea.DeviceIdentity
}

func discoveredJSON(units []midea.DeviceIdentity, names []string) []discoveredUnit {
	out := make([]discoveredUnit, len(units))
	for i, u := range units {
		out[i] = discoveredUnit{Name: names[i], DeviceIdentity: u}
	}
	return out
}

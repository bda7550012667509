package main

import (
	"github.com/spf13/cobra"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/device"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/protocol"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/ui"
)

// Output flags shared by status and set
var (
	outputFormat string
	unitFlag     string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current state of a unit",
	Long: `Connect to a unit and show its power, mode, setpoint, fan, swing,
eco and turbo settings along with the indoor and outdoor temperatures.`,
	Example: `  # Unit from the registry
  senville status --device bedroom

  # Unit given on the command line, in Fahrenheit
  senville status --ip 192.168.1.50 --id 151732605161920 --token <hex> --key <hex> --unit F

  # JSON output for scripting
  senville status --device bedroom --format json`,
	RunE: runStatus,
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, json)")
	cmd.Flags().StringVar(&unitFlag, "unit", "", "Temperature unit, C or F (default from preferences)")
}

func init() {
	addTargetFlags(statusCmd)
	addOutputFlags(statusCmd)
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), nil, func(s *session) error {
		unit, err := temperatureUnit(unitFlag, s.Registry.Preferences)
		if err != nil {
			return err
		}
		state, err := s.Client.Status(cmd.Context())
		if err != nil {
			return err
		}
		return printState(ui.NewPrinter(cmd.OutOrStdout()), s.Name, s.Client.Identity(), state, unit)
	})
}

type stateJSON struct {
	Name     string                  `json:"name"`
	Identity midea.DeviceIdentity    `json:"identity"`
	State    protocol.ApplianceState `json:"state"`
}

func printState(p *ui.Printer, name string, identity midea.DeviceIdentity, state protocol.ApplianceState, unit device.Unit) error {
	if outputFormat == "json" {
		return p.PrintJSON(stateJSON{Name: name, Identity: identity, State: state})
	}
	p.PrintStatus(ui.StatusView{Name: name, Identity: identity, State: state, Unit: unit})
	return nil
}

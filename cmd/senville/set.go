package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/device"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/protocol"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/ui"
)

// setOptions holds the raw set flags. Empty strings are left unchanged.
type setOptions struct {
	Power  string
	Mode   string
	Temp   string
	Fan    string
	VSwing string
	HSwing string
	Swing  string
	Eco    string
	Turbo  string
}

// Set command flags
var (
	setFlags setOptions
	beep     bool
	dryRun   bool
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change settings on a unit",
	Long: `Change one or more settings. Settings that are not named keep their
current value: the unit's state is read first and the full state is sent
back with only the requested fields changed.

Temperatures accept a unit suffix (72F, 22.5C); bare numbers use --unit or
the preference. The setpoint range is 16-31°C (61-88°F) in half degrees.`,
	Example: `  # Turn on in cooling mode at 72°F
  senville set --device bedroom --power on --mode cool --temp 72F

  # Lower the fan and stop the vertical swing
  senville set --device bedroom --fan low --vswing off

  # Show what would be sent without sending it
  senville set --device bedroom --mode heat --temp 21 --dry-run`,
	RunE: runSet,
}

func init() {
	addTargetFlags(setCmd)
	addOutputFlags(setCmd)
	f := setCmd.Flags()
	f.StringVar(&setFlags.Power, "power", "", "on or off")
	f.StringVar(&setFlags.Mode, "mode", "", "auto, cool, dry, heat or fan")
	f.StringVar(&setFlags.Temp, "temp", "", "Setpoint, e.g. 72F, 22.5C or 22.5")
	f.StringVar(&setFlags.Fan, "fan", "", "auto, low, med-low, medium, med-high, high or 20/40/60/80/100")
	f.StringVar(&setFlags.VSwing, "vswing", "", "Vertical swing, on or off")
	f.StringVar(&setFlags.HSwing, "hswing", "", "Horizontal swing, on or off")
	f.StringVar(&setFlags.Swing, "swing", "", "Both swings, on or off")
	f.StringVar(&setFlags.Eco, "eco", "", "on or off")
	f.StringVar(&setFlags.Turbo, "turbo", "", "on or off")
	f.BoolVar(&beep, "beep", false, "Make the unit chirp when it accepts the command (default from preferences)")
	f.BoolVar(&dryRun, "dry-run", false, "Read the unit and show the command without sending it")
	rootCmd.AddCommand(setCmd)
}

// parseOnOff accepts on/off and the usual boolean spellings.
func parseOnOff(name, s string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return nil, nil
	case "on", "true", "yes", "1":
		return protocol.Ptr(true), nil
	case "off", "false", "no", "0":
		return protocol.Ptr(false), nil
	default:
		return nil, midea.NewValidationError(fmt.Sprintf("--%s must be on or off, got %q", name, s))
	}
}

// buildPartial turns the set flags into a field update.
func buildPartial(o setOptions, unit device.Unit) (protocol.Partial, error) {
	var p protocol.Partial
	var err error

	if p.Power, err = parseOnOff("power", o.Power); err != nil {
		return p, err
	}
	if o.Mode != "" {
		m, err := protocol.ParseMode(o.Mode)
		if err != nil {
			return p, err
		}
		p.Mode = &m
	}
	if o.Temp != "" {
		c, err := device.ParseTemperature(o.Temp, unit)
		if err != nil {
			return p, err
		}
		if err := protocol.ValidateSetpoint(protocol.QuantizeSetpoint(c)); err != nil {
			return p, err
		}
		p.SetpointC = &c
	}
	if o.Fan != "" {
		f, err := protocol.ParseFanSpeed(o.Fan)
		if err != nil {
			return p, err
		}
		p.Fan = &f
	}
	if p.SwingVertical, err = parseOnOff("swing", o.Swing); err != nil {
		return p, err
	}
	p.SwingHorizontal = p.SwingVertical
	vswing, err := parseOnOff("vswing", o.VSwing)
	if err != nil {
		return p, err
	}
	if vswing != nil {
		p.SwingVertical = vswing
	}
	hswing, err := parseOnOff("hswing", o.HSwing)
	if err != nil {
		return p, err
	}
	if hswing != nil {
		p.SwingHorizontal = hswing
	}
	if p.Eco, err = parseOnOff("eco", o.Eco); err != nil {
		return p, err
	}
	if p.Turbo, err = parseOnOff("turbo", o.Turbo); err != nil {
		return p, err
	}
	return p, nil
}

func runSet(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	unit, err := temperatureUnit(unitFlag, reg.Preferences)
	if err != nil {
		return err
	}
	partial, err := buildPartial(setFlags, unit)
	if err != nil {
		return err
	}
	if partial.Empty() {
		return midea.NewValidationError("nothing to set; pass at least one of --power, --mode, --temp, --fan, --swing, --vswing, --hswing, --eco, --turbo")
	}

	configure := func(o *device.Options) {
		if cmd.Flags().Changed("beep") {
			o.Beep = beep
		}
	}

	p := ui.NewPrinter(cmd.OutOrStdout())

	if dryRun {
		return withSession(cmd.Context(), configure, func(s *session) error {
			current, err := s.Client.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printDryRun(p, s, current, partial, unit, configure)
		})
	}

	return withSession(cmd.Context(), configure, func(s *session) error {
		state, err := s.Client.Apply(cmd.Context(), partial)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printState(p, s.Name, s.Client.Identity(), state, unit)
		}
		p.PrintSuccess("Settings applied", ui.Param{Key: "Changed", Value: partial.String()})
		p.PrintStatus(ui.StatusView{Name: s.Name, Identity: s.Client.Identity(), State: state, Unit: unit})
		return nil
	})
}

// printDryRun encodes the command that would be sent and decodes it back so
// the output shows exactly what the unit would receive.
func printDryRun(p *ui.Printer, s *session, current protocol.ApplianceState, partial protocol.Partial, unit device.Unit, configure func(*device.Options)) error {
	opts := clientOptions(s.Name, s.Registry.Preferences)
	configure(&opts)

	frame, err := protocol.EncodeSetCommand(protocol.Merge(current, partial), protocol.SetOptions{Beep: opts.Beep}, protocol.NextMessageID())
	if err != nil {
		return err
	}
	next, setOpts, err := protocol.DecodeSetCommand(frame)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return p.PrintJSON(struct {
			Frame string                  `json:"frame"`
			Beep  bool                    `json:"beep"`
			State protocol.ApplianceState `json:"state"`
		}{hex.EncodeToString(frame), setOpts.Beep, next})
	}

	p.PrintWarning("Dry run, nothing sent",
		ui.Param{Key: "Changed", Value: partial.String()},
		ui.Param{Key: "Beep", Value: fmt.Sprint(setOpts.Beep)},
		ui.Param{Key: "Frame", Value: hex.EncodeToString(frame)},
	)
	p.PrintStatus(ui.StatusView{Name: s.Name + " (after)", Identity: s.Client.Identity(), State: next, Unit: unit})
	return nil
}

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/device"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/protocol"
)

// StatusView is what the status box shows for one unit.
type StatusView struct {
	Name     string
	Identity midea.DeviceIdentity
	State    protocol.ApplianceState
	Unit     device.Unit
	Width    int
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func modeStyle(m protocol.Mode) lipgloss.Style {
	switch m {
	case protocol.ModeCool, protocol.ModeDry:
		return lipgloss.NewStyle().Foreground(CoolColor)
	case protocol.ModeHeat:
		return lipgloss.NewStyle().Foreground(WarningColor)
	default:
		return ResultValueStyle
	}
}

func sensor(t *float64, unit device.Unit) string {
	if t == nil {
		return "n/a"
	}
	return device.FormatTemperature(*t, unit)
}

// display names the temperature scale on the unit's own panel.
func display(s protocol.ApplianceState) string {
	if s.DisplayFahrenheit() {
		return "°F"
	}
	return "°C"
}

// StatusLines returns the status fields in display order, unstyled.
func StatusLines(s protocol.ApplianceState, unit device.Unit) []Param {
	fan := s.Fan.String()
	if s.Fan != protocol.FanAuto {
		fan = fmt.Sprintf("%s (%d%%)", fan, s.FanPercent())
	}
	return []Param{
		{"Power", onOff(s.Power)},
		{"Mode", s.Mode.String()},
		{"Setpoint", device.FormatTemperature(s.SetpointC, unit)},
		{"Fan", fan},
		{"Swing", fmt.Sprintf("vertical %s, horizontal %s", onOff(s.SwingVertical), onOff(s.SwingHorizontal))},
		{"Eco", onOff(s.Eco)},
		{"Turbo", onOff(s.Turbo)},
		{"Sleep", onOff(s.Sleep())},
		{"Display", display(s)},
		{"Indoor", sensor(s.IndoorC, unit)},
		{"Outdoor", sensor(s.OutdoorC, unit)},
	}
}

// Render draws the status box
func (v StatusView) Render() string {
	width := clampWidth(v.Width)

	title := v.Name
	if title == "" {
		title = v.Identity.Address()
	}

	powerStyle := PowerOffStyle
	if v.State.Power {
		powerStyle = PowerOnStyle
	}

	lines := []string{
		"",
		HeaderTitleStyle.Render(strings.ToUpper(title)) + "  " + powerStyle.Render(strings.ToUpper(onOff(v.State.Power))),
		HeaderCommandStyle.Render(v.Identity.String()),
		"",
	}
	for _, p := range StatusLines(v.State, v.Unit) {
		valueStyle := ResultValueStyle
		switch p.Key {
		case "Power":
			valueStyle = powerStyle
		case "Mode":
			valueStyle = modeStyle(v.State.Mode)
		}
		lines = append(lines, ResultKeyStyle.Render("   "+p.Key+":")+" "+valueStyle.Render(p.Value))
	}
	lines = append(lines, "")

	return BoxStyle(width, PrimaryColor).Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (v StatusView) String() string {
	return v.Render()
}

// RenderDevices draws a table of discovered or registered units. names may
// be nil or hold a registry name per identity.
func RenderDevices(identities []midea.DeviceIdentity, names []string) string {
	header := fmt.Sprintf("  %-16s %-20s %-22s %-3s %s", "NAME", "ID", "ADDRESS", "V", "SERIAL")
	lines := []string{HeaderParamKeyStyle.Render(strings.TrimPrefix(header, "  "))}

	for i, id := range identities {
		name := "-"
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		serial := id.Serial
		if serial == "" {
			serial = "-"
		}
		row := fmt.Sprintf("%-16s %-20d %-22s %-3d %s", name, id.ID, id.Address(), id.Version, serial)
		lines = append(lines, ResultValueStyle.PaddingLeft(2).Render(row))
	}
	return strings.Join(lines, "\n")
}

// StatusSummary renders the status fields on one line, for periodic output.
func StatusSummary(s protocol.ApplianceState, unit device.Unit) string {
	lines := StatusLines(s, unit)
	parts := make([]string, 0, len(lines))
	for _, p := range lines {
		parts = append(parts, strings.ToLower(p.Key)+"="+strings.ReplaceAll(p.Value, " ", ""))
	}
	return strings.Join(parts, " ")
}

package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// Unit is a temperature scale.
type Unit string

// Temperature units
const (
	Celsius    Unit = "C"
	Fahrenheit Unit = "F"
)

// ParseUnit accepts "C", "F" and their long names, case insensitively.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CELSIUS":
		return Celsius, nil
	case "F", "FAHRENHEIT":
		return Fahrenheit, nil
	default:
		return "", midea.NewValidationError(fmt.Sprintf("unknown temperature unit %q (want C or F)", s))
	}
}

// FahrenheitToCelsius converts and rounds to the nearest half degree, the
// resolution of the unit's setpoint.
func FahrenheitToCelsius(f float64) float64 {
	return math.Round((f-32)*5/9*2) / 2
}

// CelsiusToFahrenheit converts without rounding.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// ParseTemperature reads "72F", "22.5C", "22.5 °C" or a bare number in
// defaultUnit, and returns degrees Celsius. Fahrenheit input is rounded to
// the nearest half degree Celsius.
func ParseTemperature(s string, defaultUnit Unit) (float64, error) {
	value := strings.TrimSpace(s)
	unit := defaultUnit

	if n := len(value); n > 0 {
		switch value[n-1] {
		case 'C', 'c':
			unit, value = Celsius, value[:n-1]
		case 'F', 'f':
			unit, value = Fahrenheit, value[:n-1]
		}
	}
	value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "°"))

	t, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, midea.NewValidationError(fmt.Sprintf("invalid temperature %q", s))
	}

	switch unit {
	case Fahrenheit:
		return FahrenheitToCelsius(t), nil
	case Celsius, "":
		return t, nil
	default:
		return 0, midea.NewValidationError(fmt.Sprintf("unknown temperature unit %q", unit))
	}
}

// FormatTemperature renders a Celsius value in unit.
func FormatTemperature(c float64, unit Unit) string {
	if unit == Fahrenheit {
		return fmt.Sprintf("%.0f°F", CelsiusToFahrenheit(c))
	}
	return fmt.Sprintf("%.1f°C", c)
}

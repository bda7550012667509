package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// Environment variables describing a single unit, as used by .env files.
const (
	EnvIP      = "SENVILLE_IP"
	EnvID      = "SENVILLE_ID"
	EnvToken   = "SENVILLE_TOKEN"
	EnvKey     = "SENVILLE_KEY"
	EnvPort    = "SENVILLE_PORT"
	EnvVersion = "SENVILLE_VERSION"
)

// LoadDotEnv loads variables from the given files, or ".env" when none are
// named. Missing files are ignored. Variables already set in the process
// environment are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// DeviceFromEnv builds a device entry from SENVILLE_* variables. ok is false
// when SENVILLE_IP is not set.
func DeviceFromEnv() (device *Device, ok bool, err error) {
	ip := strings.TrimSpace(os.Getenv(EnvIP))
	if ip == "" {
		return nil, false, nil
	}

	device = &Device{
		IP:    ip,
		Token: strings.TrimSpace(os.Getenv(EnvToken)),
		Key:   strings.TrimSpace(os.Getenv(EnvKey)),
	}

	if v := strings.TrimSpace(os.Getenv(EnvID)); v != "" {
		device.ID, err = strconv.ParseUint(v, 0, 64)
		if err != nil {
			return nil, false, midea.NewValidationError(fmt.Sprintf("%s must be a number, got %q", EnvID, v))
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		device.Port, err = strconv.Atoi(v)
		if err != nil {
			return nil, false, midea.NewValidationError(fmt.Sprintf("%s must be a number, got %q", EnvPort, v))
		}
	}

	device.Version = midea.ProtocolV3
	if v := strings.TrimSpace(os.Getenv(EnvVersion)); v != "" {
		device.Version, err = strconv.Atoi(v)
		if err != nil {
			return nil, false, midea.NewValidationError(fmt.Sprintf("%s must be 2 or 3, got %q", EnvVersion, v))
		}
	} else if device.Token == "" && device.Key == "" {
		device.Version = midea.ProtocolV2
	}

	return device, true, nil
}

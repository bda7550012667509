package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/config"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/device"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/discovery"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/logging"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// targetOptions selects a unit. Zero values are unset.
type targetOptions struct {
	Device  string
	IP      string
	ID      uint64
	Port    int
	Version int
	Token   string
	Key     string
}

// Target flags shared by status, set and watch
var target targetOptions

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&target.Device, "device", "d", "", "Registry name of the unit")
	cmd.Flags().StringVar(&target.IP, "ip", "", "Unit IP address (skips the registry)")
	cmd.Flags().Uint64Var(&target.ID, "id", 0, "Appliance ID")
	cmd.Flags().IntVar(&target.Port, "port", 0, "Control port (default 6444)")
	cmd.Flags().IntVar(&target.Version, "protocol", 0, "Protocol version, 2 or 3 (default 3 with credentials)")
	cmd.Flags().StringVar(&target.Token, "token", "", "V3 token, 128 hex characters")
	cmd.Flags().StringVar(&target.Key, "key", "", "V3 key, 64 hex characters")
}

// resolveTarget picks the unit to talk to. Flags win over a registry entry,
// which wins over SENVILLE_* environment variables. Explicit flags are
// applied on top of whichever entry was chosen.
func resolveTarget(opts targetOptions, reg *config.Registry, fromEnv func() (*config.Device, bool, error)) (string, *config.Device, error) {
	var name string
	var entry config.Device

	switch {
	case opts.IP != "":
		name = opts.IP

	case opts.Device != "":
		d := reg.GetDevice(opts.Device)
		if d == nil {
			return "", nil, midea.NewValidationError(fmt.Sprintf("no unit named %q in the registry (see 'senville devices list')", opts.Device))
		}
		name, entry = opts.Device, *d

	case len(reg.Names()) == 1:
		name = reg.Names()[0]
		entry = *reg.GetDevice(name)

	default:
		d, ok, err := fromEnv()
		if err != nil {
			return "", nil, err
		}
		if !ok {
			if len(reg.Names()) > 1 {
				return "", nil, midea.NewValidationError("several units are registered; pick one with --device")
			}
			return "", nil, midea.NewValidationError("no unit selected; use --device, --ip or set SENVILLE_IP")
		}
		name, entry = d.IP, *d
	}

	if opts.IP != "" {
		entry.IP = opts.IP
	}
	if opts.ID != 0 {
		entry.ID = opts.ID
	}
	if opts.Port != 0 {
		entry.Port = opts.Port
	}
	if opts.Token != "" {
		entry.Token = opts.Token
	}
	if opts.Key != "" {
		entry.Key = opts.Key
	}
	if opts.Version != 0 {
		entry.Version = opts.Version
	}
	if entry.Version == 0 {
		entry.Version = midea.ProtocolV3
		if entry.Token == "" && entry.Key == "" {
			entry.Version = midea.ProtocolV2
		}
	}

	if err := entry.Validate(); err != nil {
		return "", nil, err
	}
	return name, &entry, nil
}

// unitDiscoveryTargets lists the discovery addresses of a unit known by IP.
var unitDiscoveryTargets = discovery.TargetsFor

// identify asks a unit known only by address for its appliance ID, which
// every packet header carries. Port and protocol version come from the same
// reply. A unit that does not answer fails with a DiscoveryTimeout error.
func identify(ctx context.Context, entry *config.Device, timeout time.Duration) error {
	if entry.ID != 0 {
		return nil
	}
	scanner := &discovery.Scanner{Timeout: timeout, Targets: unitDiscoveryTargets(entry.IP)}
	identity, err := scanner.Identify(ctx, entry.IP)
	if err != nil {
		return err
	}

	logging.Debug("Identified unit", zap.String("ip", entry.IP), zap.Uint64("id", identity.ID))
	entry.ID = identity.ID
	entry.Version = identity.Version
	if entry.Port == 0 {
		entry.Port = identity.Port
	}
	if entry.Serial == "" {
		entry.Serial = identity.Serial
	}
	if entry.SSID == "" {
		entry.SSID = identity.SSID
	}
	return entry.Validate()
}

// session is what a command gets once a unit is connected.
type session struct {
	Client   *device.Client
	Name     string
	Registry *config.Registry
}

// openSession resolves the target from the flags and connects to it.
// configure may adjust the options built from the preferences.
func openSession(ctx context.Context, configure func(*device.Options)) (*session, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	name, entry, err := resolveTarget(target, reg, config.DeviceFromEnv)
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		if err := identify(ctx, entry, reg.Preferences.DiscoverTimeoutDuration()); err != nil {
			return nil, err
		}
		if d := reg.GetDevice(name); d != nil {
			d.ID, d.Version = entry.ID, entry.Version
			if d.Port == 0 {
				d.Port = entry.Port
			}
		}
	}
	creds, err := entry.Credentials()
	if err != nil {
		return nil, err
	}

	opts := clientOptions(name, reg.Preferences)
	if configure != nil {
		configure(&opts)
	}

	identity := entry.Identity()
	logging.Debug("Connecting", zap.String("device", name), zap.Stringer("identity", identity))

	client, err := device.Connect(ctx, identity, creds, opts)
	if err != nil {
		return nil, err
	}

	if reg.GetDevice(name) != nil {
		reg.UpdateDeviceLastSeen(name, identity.IP)
		if err := reg.Save(); err != nil {
			logging.Warn("Failed to update registry", zap.Error(err))
		}
	}
	return &session{Client: client, Name: name, Registry: reg}, nil
}

// withSession connects, runs fn and disconnects. Transient failures in
// either step start over with a fresh connection.
func withSession(ctx context.Context, configure func(*device.Options), fn func(*session) error) error {
	return withRetry(ctx, retries, func() error {
		s, err := openSession(ctx, configure)
		if err != nil {
			return err
		}
		defer s.Client.Close()
		return fn(s)
	})
}

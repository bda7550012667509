package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/config"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/discovery"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/ui"
)

// Devices command flags
var (
	addOpts      targetOptions
	addNickname  string
	listFormat   string
	removeAssume bool
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage the registry of known units",
	Long: `Add, list and remove units in the registry file.

The registry stores each unit's address, appliance ID, protocol version
and V3 credentials under a name of your choice, so other commands only
need --device <name>.`,
}

var devicesAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or update a unit",
	Long: `Add a unit to the registry, or update an existing entry.

When --ip is omitted the unit is located by --id with a discovery
broadcast, which also fills in its port, protocol version and serial.`,
	Example: `  # Locate by ID and store credentials
  senville devices add bedroom --id 151732605161920 --token <hex> --key <hex>

  # Fixed address, protocol V2 (no credentials)
  senville devices add office --ip 192.168.1.51 --id 2 --protocol 2`,
	Args: cobra.ExactArgs(1),
	RunE: runDevicesAdd,
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered units",
	RunE:  runDevicesList,
}

var devicesRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a unit and its credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesRemove,
}

func init() {
	f := devicesAddCmd.Flags()
	f.StringVar(&addOpts.IP, "ip", "", "Unit IP address (located by --id when empty)")
	f.Uint64Var(&addOpts.ID, "id", 0, "Appliance ID")
	f.IntVar(&addOpts.Port, "port", 0, "Control port (default 6444)")
	f.IntVar(&addOpts.Version, "protocol", 0, "Protocol version, 2 or 3")
	f.StringVar(&addOpts.Token, "token", "", "V3 token, 128 hex characters")
	f.StringVar(&addOpts.Key, "key", "", "V3 key, 64 hex characters")
	f.StringVar(&addNickname, "nickname", "", "Display name")

	devicesListCmd.Flags().StringVar(&listFormat, "format", "table", "Output format (table, json)")
	devicesRemoveCmd.Flags().BoolVarP(&removeAssume, "yes", "y", false, "Do not ask for confirmation")

	devicesCmd.AddCommand(devicesAddCmd, devicesListCmd, devicesRemoveCmd)
	rootCmd.AddCommand(devicesCmd)
}

// mergeEntry applies the add flags to an existing or new entry.
func mergeEntry(d *config.Device, o targetOptions, nickname string) {
	if o.IP != "" {
		d.IP = o.IP
	}
	if o.ID != 0 {
		d.ID = o.ID
	}
	if o.Port != 0 {
		d.Port = o.Port
	}
	if o.Version != 0 {
		d.Version = o.Version
	}
	if o.Token != "" {
		d.Token = o.Token
	}
	if o.Key != "" {
		d.Key = o.Key
	}
	if nickname != "" {
		d.Nickname = nickname
	}
	if d.Version == 0 {
		d.Version = midea.ProtocolV3
		if d.Token == "" && d.Key == "" {
			d.Version = midea.ProtocolV2
		}
	}
}

// locate fills the address fields of d from a discovery reply.
func locate(ctx context.Context, d *config.Device, timeout int) error {
	scanner := discovery.NewScanner()
	if timeout > 0 {
		scanner.Timeout = time.Duration(timeout) * time.Second
	}
	identity, err := scanner.Find(ctx, d.ID)
	if err != nil {
		return err
	}
	d.IP = identity.IP
	d.Port = identity.Port
	d.Serial = identity.Serial
	d.SSID = identity.SSID
	if d.Version == 0 {
		d.Version = identity.Version
	}
	return nil
}

func runDevicesAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	entry := config.Device{}
	if existing := reg.GetDevice(name); existing != nil {
		entry = *existing
	}

	if addOpts.IP == "" && entry.IP == "" {
		if addOpts.ID == 0 && entry.ID == 0 {
			return midea.NewValidationError("need --ip or --id to find the unit")
		}
		if addOpts.ID != 0 {
			entry.ID = addOpts.ID
		}
		if addOpts.Version != 0 {
			entry.Version = addOpts.Version
		}
		if err := locate(cmd.Context(), &entry, reg.Preferences.DiscoverTimeout); err != nil {
			return err
		}
	}
	mergeEntry(&entry, addOpts, addNickname)
	if err := identify(cmd.Context(), &entry, reg.Preferences.DiscoverTimeoutDuration()); err != nil {
		return err
	}

	if err := entry.Validate(); err != nil {
		return err
	}
	reg.SetDevice(name, &entry)
	reg.UpdateDeviceLastSeen(name, entry.IP)
	if err := reg.Save(); err != nil {
		return err
	}

	path, _ := reg.Path()
	ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Unit saved",
		ui.Param{Key: "Name", Value: name},
		ui.Param{Key: "Unit", Value: entry.String()},
		ui.Param{Key: "Registry", Value: path},
	)
	return nil
}

type listedDevice struct {
	Name           string               `json:"name"`
	Nickname       string               `json:"nickname,omitempty"`
	Identity       midea.DeviceIdentity `json:"identity"`
	HasCredentials bool                 `json:"has_credentials"`
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	p := ui.NewPrinter(cmd.OutOrStdout())

	names := reg.Names()
	identities := make([]midea.DeviceIdentity, len(names))
	listed := make([]listedDevice, len(names))
	for i, name := range names {
		d := reg.GetDevice(name)
		identities[i] = d.Identity()
		listed[i] = listedDevice{
			Name:           name,
			Nickname:       d.Nickname,
			Identity:       identities[i],
			HasCredentials: d.Token != "" && d.Key != "",
		}
	}

	if listFormat == "json" {
		return p.PrintJSON(listed)
	}
	if len(names) == 0 {
		p.Println("No units registered. Use 'senville discover' and 'senville devices add'.")
		return nil
	}
	p.Println(ui.RenderDevices(identities, names))
	return nil
}

func runDevicesRemove(cmd *cobra.Command, args []string) error {
	name := args[0]
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	d := reg.GetDevice(name)
	if d == nil {
		return midea.NewValidationError(fmt.Sprintf("no unit named %q in the registry", name))
	}

	if !removeAssume {
		ok := ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Remove "+name,
			[]string{fmt.Sprintf("%s (%s) will be forgotten", name, d), "Its token and key are deleted from the registry"},
			"Remove this unit?")
		if !ok {
			return nil
		}
	}

	reg.RemoveDevice(name)
	if err := reg.Save(); err != nil {
		return err
	}
	ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Unit removed", ui.Param{Key: "Name", Value: name})
	return nil
}

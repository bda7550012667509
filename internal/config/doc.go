// Package config provides user configuration management for senville.
//
// This package manages a YAML-based configuration file that stores the known
// air conditioners (address, appliance id, protocol version and local
// control credentials) and application preferences.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/senville/config.yaml or $HOME/.config/senville/config.yaml
//   - macOS: $HOME/.config/senville/config.yaml
//   - Windows: %LOCALAPPDATA%\senville\config.yaml
//
// SENVILLE_CONFIG overrides the location.
//
// # Security
//
// The token and key stored per device grant full control of the unit. The
// file is always written with mode 0600.
//
// # Environment
//
// A single unit can also be described with SENVILLE_IP, SENVILLE_ID,
// SENVILLE_TOKEN and SENVILLE_KEY, optionally loaded from a .env file:
//
//	if err := config.LoadDotEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	device, ok, err := config.DeviceFromEnv()
//
// # Usage Example
//
//	path, err := config.GetConfigPath()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	registry, err := config.LoadRegistryFrom(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.SetDevice("bedroom", config.DeviceFromIdentity(identity))
//
//	// Save changes atomically
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// A Registry is a plain value owned by its caller; there is no process-wide
// instance. Saves from one process are serialized by a mutex and written
// atomically through a temporary file.
package config

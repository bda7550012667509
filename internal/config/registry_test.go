package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

var (
	testToken = strings.Repeat("ab", midea.TokenSize)
	testKey   = strings.Repeat("cd", midea.KeySize)
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if configDir == "" {
		t.Error("GetConfigDir() returned empty string")
	}

	if !strings.Contains(configDir, "senville") {
		t.Errorf("GetConfigDir() = %v, should contain 'senville'", configDir)
	}

	if runtime.GOOS == "linux" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
		configDir, _ = GetConfigDir()
		if configDir != filepath.Join("/tmp/xdg", "senville") {
			t.Errorf("GetConfigDir() with XDG_CONFIG_HOME = %v", configDir)
		}
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(PathEnvVar, "")
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}

	t.Setenv(PathEnvVar, "/etc/senville.yaml")
	configPath, _ = GetConfigPath()
	if configPath != "/etc/senville.yaml" {
		t.Errorf("GetConfigPath() with %s = %v", PathEnvVar, configPath)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != CurrentVersion {
		t.Errorf("NewRegistry().Version = %v, want %d", reg.Version, CurrentVersion)
	}
	if reg.Devices == nil {
		t.Error("NewRegistry().Devices should not be nil")
	}
	if reg.Preferences == nil {
		t.Fatal("NewRegistry().Preferences should not be nil")
	}
	if reg.Preferences.TemperatureUnit != "C" {
		t.Errorf("TemperatureUnit = %q, want C", reg.Preferences.TemperatureUnit)
	}
	if reg.Preferences.DiscoverTimeoutDuration() != 5*time.Second {
		t.Errorf("DiscoverTimeoutDuration() = %v, want 5s", reg.Preferences.DiscoverTimeoutDuration())
	}
	if reg.Preferences.RequestTimeoutDuration() != 8*time.Second {
		t.Errorf("RequestTimeoutDuration() = %v, want 8s", reg.Preferences.RequestTimeoutDuration())
	}
}

func TestRegistryEnsureDevice(t *testing.T) {
	reg := NewRegistry()

	device1 := reg.EnsureDevice("bedroom")
	if device1 == nil {
		t.Fatal("EnsureDevice() returned nil")
	}

	device2 := reg.EnsureDevice("bedroom")
	if device1 != device2 {
		t.Error("EnsureDevice() should return same instance for same name")
	}

	device3 := reg.EnsureDevice("office")
	if device1 == device3 {
		t.Error("EnsureDevice() should create new instance for different name")
	}
}

func TestRegistryUpdateDeviceLastSeen(t *testing.T) {
	reg := NewRegistry()

	before := time.Now()
	reg.UpdateDeviceLastSeen("bedroom", "192.168.1.100")
	after := time.Now()

	device := reg.GetDevice("bedroom")
	if device == nil {
		t.Fatal("Device should exist after UpdateDeviceLastSeen()")
	}
	if device.IP != "192.168.1.100" {
		t.Errorf("IP = %v, want 192.168.1.100", device.IP)
	}
	if device.LastSeen.Before(before) || device.LastSeen.After(after) {
		t.Errorf("LastSeen = %v, should be between %v and %v", device.LastSeen, before, after)
	}
}

func TestRegistryRemoveAndNames(t *testing.T) {
	reg := NewRegistry()
	reg.SetDevice("office", &Device{IP: "192.168.1.11", ID: 2})
	reg.SetDevice("bedroom", &Device{IP: "192.168.1.10", ID: 1})

	names := reg.Names()
	if len(names) != 2 || names[0] != "bedroom" || names[1] != "office" {
		t.Errorf("Names() = %v, want [bedroom office]", names)
	}

	name, device, ok := reg.FindByID(2)
	if !ok || name != "office" || device.IP != "192.168.1.11" {
		t.Errorf("FindByID(2) = %q, %v, %v", name, device, ok)
	}
	if _, _, ok := reg.FindByID(3); ok {
		t.Error("FindByID(3) should not find anything")
	}

	if !reg.RemoveDevice("office") {
		t.Error("RemoveDevice(office) = false, want true")
	}
	if reg.RemoveDevice("office") {
		t.Error("second RemoveDevice(office) = true, want false")
	}
	if reg.GetDevice("office") != nil {
		t.Error("office should be gone")
	}
}

func TestDeviceIdentityAndCredentials(t *testing.T) {
	device := &Device{IP: "192.168.1.10", ID: 1234, Token: testToken, Key: testKey}

	identity := device.Identity()
	if identity.Port != midea.DefaultPort {
		t.Errorf("Port = %d, want %d", identity.Port, midea.DefaultPort)
	}
	if identity.Version != midea.ProtocolV3 {
		t.Errorf("Version = %d, want 3", identity.Version)
	}
	if identity.ID != 1234 {
		t.Errorf("ID = %d, want 1234", identity.ID)
	}

	creds, err := device.Credentials()
	if err != nil {
		t.Fatalf("Credentials() error = %v", err)
	}
	if len(creds.Token) != midea.TokenSize || len(creds.Key) != midea.KeySize {
		t.Errorf("Credentials() sizes = %d/%d", len(creds.Token), len(creds.Key))
	}
	if err := device.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestDeviceValidate(t *testing.T) {
	tests := []struct {
		name    string
		device  Device
		wantErr bool
	}{
		{"v3 with credentials", Device{IP: "10.0.0.2", Token: testToken, Key: testKey}, false},
		{"v2 without credentials", Device{IP: "10.0.0.2", Version: midea.ProtocolV2}, false},
		{"v3 without credentials", Device{IP: "10.0.0.2"}, true},
		{"bad token", Device{IP: "10.0.0.2", Token: "abc", Key: testKey}, true},
		{"bad ip", Device{IP: "not-an-ip", Version: midea.ProtocolV2}, true},
		{"bad version", Device{IP: "10.0.0.2", Version: 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.device.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !midea.IsValidationError(err) {
				t.Errorf("Validate() error kind = %v, want validation", midea.KindOf(err))
			}
		})
	}
}

func TestDeviceFromIdentity(t *testing.T) {
	identity := midea.DeviceIdentity{IP: "10.0.0.7", Port: 6444, ID: 99, Version: midea.ProtocolV2, Serial: "SN1", SSID: "net_ac_0001"}
	device := DeviceFromIdentity(identity)

	if got := device.Identity(); got.IP != identity.IP || got.ID != identity.ID || got.Version != identity.Version || got.Serial != identity.Serial {
		t.Errorf("Identity() = %v, want %v", got, identity)
	}
	if device.LastSeen.IsZero() {
		t.Error("LastSeen should be set")
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg, err := LoadRegistryFrom(path)
	if err != nil {
		t.Fatalf("LoadRegistryFrom(missing) error = %v", err)
	}
	if len(reg.Devices) != 0 {
		t.Fatalf("new registry has %d devices", len(reg.Devices))
	}

	reg.SetDevice("bedroom", &Device{
		Nickname: "Bedroom",
		IP:       "192.168.1.10",
		ID:       0x1A2B3C4D5E6F,
		Version:  midea.ProtocolV3,
		Token:    testToken,
		Key:      testKey,
	})
	reg.Preferences.TemperatureUnit = "F"
	reg.Preferences.Beep = true

	if err := reg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadRegistryFrom(path)
	if err != nil {
		t.Fatalf("LoadRegistryFrom() error = %v", err)
	}
	device := loaded.GetDevice("bedroom")
	if device == nil {
		t.Fatal("Device should exist in loaded registry")
	}
	if device.Nickname != "Bedroom" || device.ID != 0x1A2B3C4D5E6F || device.Token != testToken || device.Key != testKey {
		t.Errorf("loaded device = %+v", device)
	}
	if loaded.Preferences.TemperatureUnit != "F" || !loaded.Preferences.Beep {
		t.Errorf("loaded preferences = %+v", loaded.Preferences)
	}

	p, _ := loaded.Path()
	if p != path {
		t.Errorf("Path() = %q, want %q", p, path)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("config directory has %d entries, want only config.yaml", len(entries))
	}
}

func TestLoadRegistryFrom_Errors(t *testing.T) {
	dir := t.TempDir()

	badVersion := filepath.Join(dir, "v2.yaml")
	if err := os.WriteFile(badVersion, []byte("version: 2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistryFrom(badVersion); err == nil {
		t.Error("LoadRegistryFrom() should reject version 2")
	}

	badYAML := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(badYAML, []byte("version: [1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistryFrom(badYAML); err == nil {
		t.Error("LoadRegistryFrom() should reject malformed YAML")
	}

	minimal := filepath.Join(dir, "minimal.yaml")
	if err := os.WriteFile(minimal, []byte("version: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	reg, err := LoadRegistryFrom(minimal)
	if err != nil {
		t.Fatalf("LoadRegistryFrom(minimal) error = %v", err)
	}
	if reg.Devices == nil || reg.Preferences == nil {
		t.Error("minimal registry should get default maps and preferences")
	}
}

func BenchmarkEnsureDevice(b *testing.B) {
	reg := NewRegistry()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.EnsureDevice("bedroom")
	}
}

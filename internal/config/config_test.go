package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-beacon/internal/domain/link"
)

// TestValidate checks required fields, defaults and format validations.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Nothing to connect to.
	require.ErrorIs(t, Validate(new(Config)), ErrNoNetworks)

	// Nameless network.
	cfg := &Config{Networks: []Network{{PSK: "secret"}}}
	require.ErrorIs(t, Validate(cfg), errEmptySSID)

	// Bad port.
	cfg = &Config{Networks: []Network{{SSID: "home"}}, Port: 70000}
	require.ErrorIs(t, Validate(cfg), errInvalidPort)

	// Unknown link driver.
	cfg = &Config{Networks: []Network{{SSID: "home"}}, Link: Link{Driver: "carrier-pigeon"}}
	require.ErrorIs(t, Validate(cfg), errUnknownDriver)

	// Half-configured pins.
	cfg = &Config{Networks: []Network{{SSID: "home"}}, Hardware: Hardware{StatusPin: "GPIO5"}}
	require.ErrorIs(t, Validate(cfg), errPinRequired)

	// Bad broker.
	cfg = &Config{Networks: []Network{{SSID: "home"}}, MQTT: MQTT{Broker: "not a uri"}}
	require.Error(t, Validate(cfg))

	// Defaults.
	cfg = &Config{Networks: []Network{{SSID: "home", PSK: "secret"}}}
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultPort, cfg.Port)
	require.Equal(t, 4*time.Second, cfg.Alarm.Duration)
	require.Equal(t, 5, cfg.Alarm.MaxQueue)
	require.Equal(t, 10*time.Millisecond, cfg.Alarm.Grace)
	require.Equal(t, LinkDriverNetworkManager, cfg.Link.Driver)
	require.Equal(t, DefaultInterface, cfg.Link.Interface)
	require.Equal(t, time.Second, cfg.Link.PollTimeout)
	require.Equal(t, HardwareDriverGPIO, cfg.Hardware.Driver)
	require.Equal(t, DefaultBeaconPin, cfg.Hardware.BeaconPin)
	require.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")

	cfg := &Config{
		Networks: []Network{{SSID: "home", PSK: "secret"}, {SSID: "guest"}},
		Alarm:    Alarm{Duration: 2 * time.Second},
		MQTT:     MQTT{Broker: "tcp://127.0.0.1:1883"},
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Networks, loaded.Networks)
	require.Equal(t, 2*time.Second, loaded.Alarm.Duration)
	require.Equal(t, DefaultMQTTTopic, loaded.MQTT.Topic)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())
}

// TestLoad_NetworksFile verifies that a legacy JSON network list is merged after inline networks.
func TestLoad_NetworksFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	secrets := `[
  { "ssid": "network_name", "psk": "secrets" },
  { "ssid": "another_network", "psk": "public_password" }
]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secrets.json"), []byte(secrets), 0o600))

	settings := "networks:\n  - ssid: wired-in\n    psk: x\nnetworks_file: secrets.json\n"
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(settings), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []link.Profile{
		{SSID: "wired-in", PSK: "x"},
		{SSID: "network_name", PSK: "secrets"},
		{SSID: "another_network", PSK: "public_password"},
	}, cfg.Profiles())
}

// TestLoad_Failures covers the fatal startup conditions.
func TestLoad_Failures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	// Missing file.
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	// Malformed YAML.
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("networks: [unclosed"), 0o600))

	_, err = Load(bad)
	require.Error(t, err)

	// Empty network list.
	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("port: 112\n"), 0o600))

	_, err = Load(empty)
	require.ErrorIs(t, err, ErrNoNetworks)

	// Missing networks file.
	dangling := filepath.Join(dir, "dangling.yaml")
	require.NoError(t, os.WriteFile(dangling, []byte("networks_file: nope.json\n"), 0o600))

	_, err = Load(dangling)
	require.Error(t, err)
}

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/alarm-beacon/internal/domain/alarm"
	"github.com/oshokin/alarm-beacon/internal/domain/link"
)

// Config holds everything the relay needs at startup.
type Config struct {
	// Networks lists known networks in retry priority order.
	Networks []Network `yaml:"networks"`
	// NetworksFile optionally points to a YAML or JSON list of networks.
	// Relative paths are resolved against the directory of the config file.
	NetworksFile string `yaml:"networks_file,omitempty"`
	// Port is the UDP port watched for triggers.
	Port int `yaml:"port"`
	// Alarm holds the timing of the beacon state machine.
	Alarm Alarm `yaml:"alarm"`
	// Link selects and configures the radio backend.
	Link Link `yaml:"link"`
	// Hardware selects and configures the indicator outputs.
	Hardware Hardware `yaml:"hardware"`
	// MetricsAddress enables the Prometheus endpoint when set (e.g. ":9112").
	MetricsAddress string `yaml:"metrics_address,omitempty"`
	// HealthAddress enables the gRPC health endpoint when set (e.g. ":9113").
	HealthAddress string `yaml:"health_address,omitempty"`
	// MQTT enables state notifications when Broker is set.
	MQTT MQTT `yaml:"mqtt"`
	// LogLevel is the minimum level written to the console.
	LogLevel string `yaml:"log_level"`
}

// Network is a single entry of the network list.
type Network struct {
	SSID string `yaml:"ssid"`
	PSK  string `yaml:"psk"`
}

// Alarm configures the beacon timing.
type Alarm struct {
	// Duration is the active time per trigger.
	Duration time.Duration `yaml:"duration"`
	// MaxQueue caps consecutive triggers per episode.
	MaxQueue int `yaml:"max_queue"`
	// Grace is the window after each active period that looks for a retrigger.
	Grace time.Duration `yaml:"grace"`
}

// Link configures the radio.
type Link struct {
	// Driver is LinkDriverNetworkManager or LinkDriverStatic.
	Driver string `yaml:"driver"`
	// Interface is the network interface used by the relay.
	Interface string `yaml:"interface"`
	// PollTimeout bounds each wait for a datagram, and therefore how
	// quickly link loss is noticed.
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// Hardware configures the indicator outputs.
type Hardware struct {
	// Driver is HardwareDriverGPIO or HardwareDriverLog.
	Driver string `yaml:"driver"`
	// StatusPin is the pin name of the status indicator.
	StatusPin string `yaml:"status_pin"`
	// BeaconPin is the pin name of the beacon relay.
	BeaconPin string `yaml:"beacon_pin"`
}

// MQTT configures the state publisher.
type MQTT struct {
	Broker   string        `yaml:"broker,omitempty"`
	Topic    string        `yaml:"topic,omitempty"`
	ClientID string        `yaml:"client_id,omitempty"`
	Username string        `yaml:"username,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for relay settings.
	DefaultConfigFilename = "alarm-beacon.yaml"

	// DefaultPort is the UDP port watched for triggers.
	DefaultPort = 112

	// DefaultPollTimeout is the wait per main-loop poll.
	DefaultPollTimeout = time.Second

	// DefaultInterface is the wireless interface on a Raspberry Pi.
	DefaultInterface = "wlan0"

	// DefaultStatusPin drives the status indicator.
	DefaultStatusPin = "GPIO5"

	// DefaultBeaconPin drives the beacon relay.
	DefaultBeaconPin = "GPIO6"

	// DefaultMQTTTopic is the topic prefix for state notifications.
	DefaultMQTTTopic = "alarm-beacon"

	// DefaultMQTTTimeout bounds MQTT connect and publish acknowledgements.
	DefaultMQTTTimeout = 5 * time.Second

	// DefaultLogLevel is used when log_level is empty.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// LinkDriverNetworkManager associates through NetworkManager on D-Bus.
	LinkDriverNetworkManager = "networkmanager"
	// LinkDriverStatic uses an interface configured by the system.
	LinkDriverStatic = "static"

	// HardwareDriverGPIO drives real pins.
	HardwareDriverGPIO = "gpio"
	// HardwareDriverLog only logs output changes.
	HardwareDriverLog = "log"

	maxPort = 65535
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// ErrNoNetworks is returned when neither networks nor networks_file list anything.
	ErrNoNetworks = errors.New("at least one network must be configured")
	// errEmptySSID is returned for a network entry without a name.
	errEmptySSID = errors.New("network ssid must not be empty")
	// errInvalidPort is returned for ports outside 1..65535.
	errInvalidPort = errors.New("port must be between 1 and 65535")
	// errInvalidTiming is returned for non-positive alarm settings.
	errInvalidTiming = errors.New("alarm timing must be positive")
	// errUnknownDriver is returned for unsupported link or hardware drivers.
	errUnknownDriver = errors.New("unknown driver")
	// errPinRequired is returned when the GPIO driver lacks a pin name.
	errPinRequired = errors.New("status and beacon pins must be provided")
)

// Load reads configuration from the provided path, merges the optional
// networks file and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if cfg.NetworksFile != "" {
		networksPath := cfg.NetworksFile
		if !filepath.IsAbs(networksPath) {
			networksPath = filepath.Join(filepath.Dir(path), networksPath)
		}

		networks, err := LoadNetworks(networksPath)
		if err != nil {
			return nil, err
		}

		cfg.Networks = append(cfg.Networks, networks...)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadNetworks reads a list of networks. YAML is a superset of JSON, so the
// legacy secrets.json format ([{"ssid": ..., "psk": ...}]) is accepted as is.
func LoadNetworks(path string) ([]Network, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read networks: %w", err)
	}

	var networks []Network
	if err = yaml.Unmarshal(contents, &networks); err != nil {
		return nil, fmt.Errorf("unmarshal networks: %w", err)
	}

	return networks, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// The file holds pre-shared keys.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills defaults in place.
//
//nolint:cyclop // A flat list of field checks reads better than helpers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if len(cfg.Networks) == 0 {
		return ErrNoNetworks
	}

	for i, network := range cfg.Networks {
		if network.SSID == "" {
			return fmt.Errorf("network #%d: %w", i+1, errEmptySSID)
		}
	}

	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	if cfg.Port < 1 || cfg.Port > maxPort {
		return fmt.Errorf("%w: %d", errInvalidPort, cfg.Port)
	}

	if err := validateAlarm(&cfg.Alarm); err != nil {
		return err
	}

	if err := validateLink(&cfg.Link); err != nil {
		return err
	}

	if err := validateHardware(&cfg.Hardware); err != nil {
		return err
	}

	for _, address := range []string{cfg.MetricsAddress, cfg.HealthAddress} {
		if address == "" {
			continue
		}

		if _, err := net.ResolveTCPAddr("tcp", address); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", address, err)
		}
	}

	if err := validateMQTT(&cfg.MQTT); err != nil {
		return err
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	return nil
}

// Profiles converts the network list into domain profiles, keeping order.
func (c *Config) Profiles() []link.Profile {
	profiles := make([]link.Profile, 0, len(c.Networks))
	for _, network := range c.Networks {
		profiles = append(profiles, link.Profile{
			SSID: network.SSID,
			PSK:  network.PSK,
		})
	}

	return profiles
}

func validateAlarm(a *Alarm) error {
	if a.Duration == 0 {
		a.Duration = alarm.DefaultDuration
	}

	if a.MaxQueue == 0 {
		a.MaxQueue = alarm.DefaultMaxQueue
	}

	if a.Grace == 0 {
		a.Grace = alarm.DefaultGrace
	}

	if a.Duration < 0 || a.MaxQueue < 0 || a.Grace < 0 {
		return errInvalidTiming
	}

	return nil
}

func validateLink(l *Link) error {
	if l.Driver == "" {
		l.Driver = LinkDriverNetworkManager
	}

	if l.Driver != LinkDriverNetworkManager && l.Driver != LinkDriverStatic {
		return fmt.Errorf("link: %w %q", errUnknownDriver, l.Driver)
	}

	if l.Interface == "" {
		l.Interface = DefaultInterface
	}

	if l.PollTimeout <= 0 {
		l.PollTimeout = DefaultPollTimeout
	}

	return nil
}

func validateHardware(h *Hardware) error {
	if h.Driver == "" {
		h.Driver = HardwareDriverGPIO
	}

	switch h.Driver {
	case HardwareDriverLog:
		return nil
	case HardwareDriverGPIO:
	default:
		return fmt.Errorf("hardware: %w %q", errUnknownDriver, h.Driver)
	}

	if h.StatusPin == "" && h.BeaconPin == "" {
		h.StatusPin = DefaultStatusPin
		h.BeaconPin = DefaultBeaconPin
	}

	if h.StatusPin == "" || h.BeaconPin == "" {
		return errPinRequired
	}

	return nil
}

func validateMQTT(m *MQTT) error {
	if m.Broker == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(m.Broker); err != nil {
		return fmt.Errorf("invalid mqtt broker URI: %w", err)
	}

	if m.Topic == "" {
		m.Topic = DefaultMQTTTopic
	}

	if m.Timeout <= 0 {
		m.Timeout = DefaultMQTTTimeout
	}

	return nil
}

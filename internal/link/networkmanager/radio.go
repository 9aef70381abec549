package networkmanager

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/godbus/dbus/v5"

	domain "github.com/oshokin/alarm-beacon/internal/domain/link"
	"github.com/oshokin/alarm-beacon/internal/link"
)

const (
	busName      = "org.freedesktop.NetworkManager"
	managerPath  = "/org/freedesktop/NetworkManager"
	managerIface = "org.freedesktop.NetworkManager"
	deviceIface  = "org.freedesktop.NetworkManager.Device"
	ip4Iface     = "org.freedesktop.NetworkManager.IP4Config"
	propsIface   = "org.freedesktop.DBus.Properties"

	// errNotActive is raised by Device.Disconnect on an idle device.
	errNotActive = "org.freedesktop.NetworkManager.Device.NotActive"

	// deviceStateActivated is NM_DEVICE_STATE_ACTIVATED.
	deviceStateActivated uint32 = 100
)

var (
	// errUnexpectedType is returned when a property does not have the documented type.
	errUnexpectedType = errors.New("unexpected property type")
	// errNoAddress is returned when an IP4Config lists no usable address.
	errNoAddress = errors.New("no IPv4 address")
)

// Radio associates a wireless device through NetworkManager on the system bus.
type Radio struct {
	// conn is a private system bus connection.
	conn *dbus.Conn
	// iface is the interface name, e.g. "wlan0".
	iface string
	// device is the NetworkManager object path of iface.
	device dbus.ObjectPath
}

// New connects to the system bus and resolves the device of iface.
func New(ctx context.Context, iface string) (*Radio, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}

	var device dbus.ObjectPath

	err = conn.Object(busName, managerPath).
		CallWithContext(ctx, managerIface+".GetDeviceByIpIface", 0, iface).
		Store(&device)
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("find device %s (is NetworkManager running?): %w", iface, err)
	}

	return &Radio{
		conn:   conn,
		iface:  iface,
		device: device,
	}, nil
}

// Close releases the bus connection.
func (r *Radio) Close() error {
	return r.conn.Close()
}

// Reset disconnects the device so that the next association starts clean.
func (r *Radio) Reset(ctx context.Context) error {
	err := r.conn.Object(busName, r.device).CallWithContext(ctx, deviceIface+".Disconnect", 0).Err
	if err != nil && !isNotActive(err) {
		return fmt.Errorf("disconnect %s: %w", r.iface, err)
	}

	return nil
}

// Associate asks NetworkManager to activate a volatile connection for profile.
// The call returns once the activation has started; Status reports the outcome.
func (r *Radio) Associate(ctx context.Context, profile domain.Profile) error {
	var (
		connection dbus.ObjectPath
		active     dbus.ObjectPath
		result     map[string]dbus.Variant
		options    = map[string]dbus.Variant{
			"persist": dbus.MakeVariant("volatile"),
		}
	)

	err := r.conn.Object(busName, managerPath).
		CallWithContext(
			ctx,
			managerIface+".AddAndActivateConnection2",
			0,
			connectionSettings(profile),
			r.device,
			dbus.ObjectPath("/"),
			options,
		).
		Store(&connection, &active, &result)
	if err != nil {
		return fmt.Errorf("activate %s on %s: %w", profile.SSID, r.iface, err)
	}

	return nil
}

// Status reads the device state and, once activated, its IPv4 address.
func (r *Radio) Status(ctx context.Context) (link.Status, error) {
	v, err := r.getProp(ctx, r.device, deviceIface, "State")
	if err != nil {
		return link.Status{}, err
	}

	state, ok := v.Value().(uint32)
	if !ok {
		return link.Status{}, fmt.Errorf("device State: %w", errUnexpectedType)
	}

	if state != deviceStateActivated {
		return link.Status{}, nil
	}

	v, err = r.getProp(ctx, r.device, deviceIface, "Ip4Config")
	if err != nil {
		return link.Status{}, err
	}

	config, ok := v.Value().(dbus.ObjectPath)
	if !ok {
		return link.Status{}, fmt.Errorf("device Ip4Config: %w", errUnexpectedType)
	}

	if config == "/" || !config.IsValid() {
		return link.Status{Associated: true}, nil
	}

	v, err = r.getProp(ctx, config, ip4Iface, "AddressData")
	if err != nil {
		return link.Status{}, err
	}

	address, err := firstAddress(v.Value())
	if err != nil {
		return link.Status{Associated: true}, nil //nolint:nilerr // Activated but not addressed yet.
	}

	return link.Status{Associated: true, Address: address}, nil
}

func (r *Radio) getProp(ctx context.Context, path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant

	err := r.conn.Object(busName, path).CallWithContext(ctx, propsIface+".Get", 0, iface, prop).Store(&v)
	if err != nil {
		return dbus.Variant{}, fmt.Errorf("get %s.%s: %w", iface, prop, err)
	}

	return v, nil
}

// isNotActive reports whether err is NetworkManager refusing to disconnect an idle device.
func isNotActive(err error) bool {
	var value dbus.Error
	if errors.As(err, &value) {
		return value.Name == errNotActive
	}

	var pointer *dbus.Error
	if errors.As(err, &pointer) {
		return pointer.Name == errNotActive
	}

	return false
}

// connectionSettings builds the a{sa{sv}} settings of a wireless connection.
// An empty PSK produces an open network.
func connectionSettings(profile domain.Profile) map[string]map[string]dbus.Variant {
	settings := map[string]map[string]dbus.Variant{
		"connection": {
			"id":          dbus.MakeVariant(profile.SSID),
			"type":        dbus.MakeVariant("802-11-wireless"),
			"autoconnect": dbus.MakeVariant(false),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(profile.SSID)),
			"mode": dbus.MakeVariant("infrastructure"),
		},
		"ipv4": {
			"method": dbus.MakeVariant("auto"),
		},
	}

	if profile.PSK != "" {
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(profile.PSK),
		}
	}

	return settings
}

// firstAddress extracts the first address of an IP4Config AddressData value (aa{sv}).
func firstAddress(value any) (netip.Addr, error) {
	entries, ok := value.([]map[string]dbus.Variant)
	if !ok {
		return netip.Addr{}, fmt.Errorf("AddressData: %w", errUnexpectedType)
	}

	for _, entry := range entries {
		v, ok := entry["address"]
		if !ok {
			continue
		}

		s, ok := v.Value().(string)
		if !ok {
			continue
		}

		address, err := netip.ParseAddr(s)
		if err == nil && address.Is4() {
			return address, nil
		}
	}

	return netip.Addr{}, errNoAddress
}

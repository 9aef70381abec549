package link

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	domain "github.com/oshokin/alarm-beacon/internal/domain/link"
	"github.com/oshokin/alarm-beacon/internal/logger"
)

// StaticRadio uses an interface that the operating system keeps configured
// (ethernet, or Wi-Fi managed by wpa_supplicant). Association requests are
// no-ops; the link is up while the interface is up with an IPv4 address.
type StaticRadio struct {
	// iface is the interface name, e.g. "eth0".
	iface string
}

// NewStaticRadio watches the named interface.
func NewStaticRadio(iface string) *StaticRadio {
	return &StaticRadio{iface: iface}
}

// Reset does nothing: the interface is not ours to reset.
func (r *StaticRadio) Reset(context.Context) error {
	return nil
}

// Associate only logs the request.
func (r *StaticRadio) Associate(ctx context.Context, profile domain.Profile) error {
	logger.DebugKV(ctx, "Static link ignores association", "ssid", profile.SSID, "interface", r.iface)

	return nil
}

// Status reports the first IPv4 address of the interface while it is up.
func (r *StaticRadio) Status(context.Context) (Status, error) {
	iface, err := net.InterfaceByName(r.iface)
	if err != nil {
		return Status{}, fmt.Errorf("lookup interface %s: %w", r.iface, err)
	}

	if iface.Flags&net.FlagUp == 0 {
		return Status{}, nil
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return Status{}, fmt.Errorf("list addresses of %s: %w", r.iface, err)
	}

	for _, addr := range addrs {
		prefix, err := netip.ParsePrefix(addr.String())
		if err != nil {
			continue
		}

		if ip := prefix.Addr(); ip.Is4() {
			return Status{Associated: true, Address: ip}, nil
		}
	}

	return Status{Associated: true}, nil
}

package integration

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-beacon/internal/config"
	"github.com/oshokin/alarm-beacon/internal/service/checker"
	"github.com/oshokin/alarm-beacon/internal/service/relay"
)

// reservePort returns a free loopback TCP address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := new(net.ListenConfig).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

// reserveUDPPort returns a free loopback UDP port.
func reserveUDPPort(t *testing.T) int {
	t.Helper()

	pc, err := new(net.ListenConfig).ListenPacket(context.Background(), "udp", "127.0.0.1:0")
	require.NoError(t, err)

	port := pc.LocalAddr().(*net.UDPAddr).Port //nolint:forcetypeassert // ListenPacket("udp") returns a UDP address.
	require.NoError(t, pc.Close())

	return port
}

// loopbackName finds the loopback interface of the host.
func loopbackName(t *testing.T) string {
	t.Helper()

	ifaces, err := net.Interfaces()
	require.NoError(t, err)

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 && iface.Flags&net.FlagUp != 0 {
			return iface.Name
		}
	}

	t.Skip("no loopback interface")

	return ""
}

// scrape fetches the metrics page.
func scrape(ctx context.Context, addr string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/metrics", nil)
	if err != nil {
		return ""
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return ""
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	return string(body)
}

// TestRelay_EndToEnd starts the relay on loopback, fires a datagram and follows
// the episode through the health endpoint and the metrics.
func TestRelay_EndToEnd(t *testing.T) {
	// Not parallel: the relay refuses to run twice in one process tree.
	healthAddr, metricsAddr := reservePort(t), reservePort(t)
	port := reserveUDPPort(t)
	cfgPath := filepath.Join(t.TempDir(), config.DefaultConfigFilename)

	require.NoError(t, config.Save(cfgPath, &config.Config{
		Networks: []config.Network{{SSID: "loopback"}},
		Port:     port,
		Alarm: config.Alarm{
			Duration: 200 * time.Millisecond,
			MaxQueue: 5,
			Grace:    10 * time.Millisecond,
		},
		Link: config.Link{
			Driver:      config.LinkDriverStatic,
			Interface:   loopbackName(t),
			PollTimeout: 100 * time.Millisecond,
		},
		Hardware:       config.Hardware{Driver: config.HardwareDriverLog},
		MetricsAddress: metricsAddr,
		HealthAddress:  healthAddr,
		LogLevel:       "warn",
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- relay.Run(ctx, &relay.Options{ConfigPath: cfgPath})
	}()

	// The static link comes up after one supervisor tick.
	require.Eventually(t, func() bool {
		var out bytes.Buffer

		return checker.Run(ctx, &checker.Options{Address: healthAddr, Timeout: time.Second, Output: &out}) == nil
	}, 10*time.Second, 100*time.Millisecond)

	conn, err := new(net.Dialer).DialContext(ctx, "udp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)

	_, err = conn.Write([]byte("any payload triggers"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(scrape(ctx, metricsAddr)), []byte("alarm_beacon_episodes_total 1"))
	}, 5*time.Second, 50*time.Millisecond)

	// 200ms active and 200ms cooldown bring the relay back to idle.
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(scrape(ctx, metricsAddr)), []byte("alarm_beacon_alarm_state 0"))
	}, 5*time.Second, 50*time.Millisecond)

	cancel()

	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("relay did not stop")
	}
}

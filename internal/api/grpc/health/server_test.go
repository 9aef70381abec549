package health

import (
	"context"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/alarm-beacon/internal/domain/link"
)

func check(t *testing.T, s *Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()

	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)

	return resp.GetStatus()
}

// TestServer_LinkChanged follows the link phase for both the named and the overall service.
func TestServer_LinkChanged(t *testing.T) {
	t.Parallel()

	s := NewServer()
	profile := link.Profile{SSID: "home"}

	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, s, ServiceName))

	s.LinkChanged(context.Background(), link.Connected(profile, netip.MustParseAddr("10.0.0.2")))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, s, ServiceName))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, s, ""))

	s.LinkChanged(context.Background(), link.Connecting(profile, 1, 10))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, s, ServiceName))

	s.LinkChanged(context.Background(), link.Disconnected())
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, s, ""))
}

// TestServer_ServeListener answers a real client and stops on cancel.
func TestServer_ServeListener(t *testing.T) {
	t.Parallel()

	lis, err := new(net.ListenConfig).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer()
	s.LinkChanged(context.Background(), link.Connected(link.Profile{SSID: "home"}, netip.MustParseAddr("10.0.0.2")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- s.ServeListener(ctx, lis)
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	defer func() {
		_ = conn.Close()
	}()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	cancel()
	require.NoError(t, <-done)
}

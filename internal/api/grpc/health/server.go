package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/alarm-beacon/internal/domain/link"
	"github.com/oshokin/alarm-beacon/internal/logger"
)

// ServiceName is the service reported by the health endpoint.
// The empty name reports the same status for the whole process.
const ServiceName = "alarm-beacon"

// Server is the standard gRPC health service, SERVING while the link is up.
type Server struct {
	// health holds the per-service status and the Watch subscriptions.
	health *grpchealth.Server
}

// NewServer creates a health server that starts as NOT_SERVING.
func NewServer() *Server {
	s := &Server{
		health: grpchealth.NewServer(),
	}

	s.set(healthpb.HealthCheckResponse_NOT_SERVING)

	return s
}

// LinkChanged flips the status with the link. Connecting counts as down.
func (s *Server) LinkChanged(_ context.Context, state link.State) {
	if state.Phase == link.PhaseConnected {
		s.set(healthpb.HealthCheckResponse_SERVING)

		return
	}

	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
}

// Register attaches the health service to a gRPC server.
func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, s.health)
}

// Serve listens on addr and serves health checks until ctx is canceled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	return s.ServeListener(ctx, lis)
}

// ServeListener serves health checks on lis until ctx is canceled.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer()
	s.Register(grpcServer)

	logger.InfoKV(ctx, "Health endpoint listening", "listen_address", lis.Addr().String())

	// Closed after GracefulStop so that Serve's return means fully stopped.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		// Watchers see NOT_SERVING before the connection goes away.
		s.health.Shutdown()
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Health endpoint stopped")

	return nil
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/oshokin/alarm-beacon/internal/api/grpc/health"
	"github.com/oshokin/alarm-beacon/internal/config"
	"github.com/oshokin/alarm-beacon/internal/logger"
	"github.com/oshokin/alarm-beacon/internal/service/common"
)

// Options controls a single health probe.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Address overrides the health address of the configuration.
	Address string
	// Timeout is the per-RPC timeout.
	Timeout time.Duration
	// Output receives the JSON response; stdout when nil.
	Output io.Writer
}

var (
	// ErrNotServing is returned when the relay answers but its link is down.
	ErrNotServing = errors.New("relay is not serving")
	// ErrNoHealthAddress indicates that neither the flag nor the config names an endpoint.
	ErrNoHealthAddress = errors.New("no health address configured")
)

// Run probes the relay health endpoint once, prints the response as JSON
// and fails unless the relay reports SERVING.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "check")

	address := opts.Address
	if address == "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		address = cfg.HealthAddress
	}

	address, err := resolveCheckAddress(address)
	if err != nil {
		return err
	}

	client, err := common.Dial(ctx, address, common.WithCallTimeout(opts.Timeout))
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	resp, err := client.Check(ctx, health.ServiceName)
	if err != nil {
		return err
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	data, err := protojson.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	if _, err = fmt.Fprintln(out, string(data)); err != nil {
		return fmt.Errorf("write response: %w", err)
	}

	logger.DebugKV(ctx, "Health checked", "address", address, "status", resp.GetStatus().String())

	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrNotServing, resp.GetStatus())
	}

	return nil
}

// resolveCheckAddress turns a listen address into a dialable one.
// A missing host (":9113") means the relay on this machine.
func resolveCheckAddress(address string) (string, error) {
	if address == "" {
		return "", ErrNoHealthAddress
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "", fmt.Errorf("invalid health address format %q: %w", address, err)
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port), nil
}

package relay

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/alarm-beacon/internal/api/grpc/health"
	"github.com/oshokin/alarm-beacon/internal/config"
	"github.com/oshokin/alarm-beacon/internal/hardware"
	"github.com/oshokin/alarm-beacon/internal/link"
	"github.com/oshokin/alarm-beacon/internal/link/networkmanager"
	"github.com/oshokin/alarm-beacon/internal/listener"
	"github.com/oshokin/alarm-beacon/internal/logger"
	"github.com/oshokin/alarm-beacon/internal/metrics"
	"github.com/oshokin/alarm-beacon/internal/notify"
	"github.com/oshokin/alarm-beacon/internal/service/alarm"
	"github.com/oshokin/alarm-beacon/internal/service/common"
	"github.com/oshokin/alarm-beacon/internal/version"
)

// Options controls the relay process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// LogLevel overrides log_level of the configuration when set.
	LogLevel string
}

// errUnknownLogLevel is returned for a log level zap does not know.
var errUnknownLogLevel = errors.New("unknown log level")

// Run loads the configuration, wires the hardware, the radio and the side
// endpoints, and runs the relay until ctx is canceled. Configuration and
// wiring errors are returned before any output is touched.
//
//nolint:cyclop,funlen // Straight-line wiring reads best in one place.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "relay")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err = applyLogLevel(cfg.LogLevel, opts.LogLevel); err != nil {
		return err
	}

	if err = ensureSingleInstance(); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Starting relay", append(version.KV(), "networks", len(cfg.Networks), "port", cfg.Port)...)

	driver, err := newDriver(ctx, &cfg.Hardware)
	if err != nil {
		return err
	}

	radio, closeRadio, err := newRadio(ctx, &cfg.Link)
	if err != nil {
		return err
	}

	defer closeRadio()

	var (
		alarmObservers []alarm.Observer
		linkObservers  []link.Observer
		sidecars       []func(context.Context) error
	)

	if cfg.MetricsAddress != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		m := metrics.New(registry, cfg.Alarm.MaxQueue)
		alarmObservers = append(alarmObservers, m)
		linkObservers = append(linkObservers, m)
		sidecars = append(sidecars, func(ctx context.Context) error {
			return metrics.Serve(ctx, cfg.MetricsAddress, registry)
		})
	}

	if cfg.HealthAddress != "" {
		h := health.NewServer()
		linkObservers = append(linkObservers, h)
		sidecars = append(sidecars, func(ctx context.Context) error {
			return h.Serve(ctx, cfg.HealthAddress)
		})
	}

	if cfg.MQTT.Broker != "" {
		publisher, dialErr := dialPublisher(ctx, &cfg.MQTT)
		if dialErr != nil {
			return dialErr
		}

		defer publisher.Close(context.WithoutCancel(ctx))

		alarmObservers = append(alarmObservers, publisher)
		linkObservers = append(linkObservers, publisher)
	}

	supervisor := link.NewSupervisor(radio, driver, link.WithObservers(linkObservers...))

	relay := New(supervisor, driver, listenUDP, Settings{
		Port:        cfg.Port,
		PollTimeout: cfg.Link.PollTimeout,
		Alarm: alarm.Options{
			Duration: cfg.Alarm.Duration,
			MaxQueue: cfg.Alarm.MaxQueue,
			Grace:    cfg.Alarm.Grace,
		},
	}, alarmObservers...)

	g, gctx := errgroup.WithContext(ctx)

	for _, sidecar := range sidecars {
		g.Go(func() error {
			return sidecar(gctx)
		})
	}

	g.Go(func() error {
		return relay.Run(gctx, cfg.Profiles())
	})

	return g.Wait()
}

// applyLogLevel sets the global level; override wins over the configuration.
func applyLogLevel(configured, override string) error {
	name := configured
	if override != "" {
		name = override
	}

	level, ok := logger.ParseLogLevel(name)
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, name)
	}

	logger.SetLevel(level)

	return nil
}

// newDriver opens the configured outputs.
func newDriver(ctx context.Context, cfg *config.Hardware) (*hardware.Driver, error) {
	if cfg.Driver == config.HardwareDriverLog {
		return hardware.NewDriver(
			hardware.NewLogOutput(ctx, "status"),
			hardware.NewLogOutput(ctx, "beacon"),
		), nil
	}

	if err := hardware.Init(); err != nil {
		return nil, err
	}

	status, err := hardware.OpenPin(cfg.StatusPin)
	if err != nil {
		return nil, fmt.Errorf("open status pin: %w", err)
	}

	beacon, err := hardware.OpenPin(cfg.BeaconPin)
	if err != nil {
		return nil, fmt.Errorf("open beacon pin: %w", err)
	}

	return hardware.NewDriver(status, beacon), nil
}

// newRadio opens the configured radio backend and returns its cleanup.
func newRadio(ctx context.Context, cfg *config.Link) (link.Radio, func(), error) {
	if cfg.Driver == config.LinkDriverStatic {
		return link.NewStaticRadio(cfg.Interface), func() {}, nil
	}

	radio, err := networkmanager.New(ctx, cfg.Interface)
	if err != nil {
		return nil, nil, err
	}

	return radio, func() {
		if err := radio.Close(); err != nil {
			logger.WarnKV(ctx, "Failed to close system bus connection", "error", err)
		}
	}, nil
}

// dialPublisher connects the MQTT publisher, deriving a client ID when none is configured.
func dialPublisher(ctx context.Context, cfg *config.MQTT) (*notify.Publisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		var err error

		clientID, err = common.DetectClientID()
		if err != nil {
			return nil, fmt.Errorf("detect MQTT client ID: %w", err)
		}
	}

	publisher, err := notify.Dial(ctx, notify.Options{
		Broker:   cfg.Broker,
		Topic:    cfg.Topic,
		ClientID: clientID,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("dial MQTT broker: %w", err)
	}

	return publisher, nil
}

// listenUDP binds the real trigger socket.
func listenUDP(ctx context.Context, address netip.Addr, port int) (Listener, error) {
	lis, err := listener.Listen(ctx, address, port)
	if err != nil {
		return nil, err
	}

	return lis, nil
}

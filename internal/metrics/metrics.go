package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/alarm-beacon/internal/domain/alarm"
	"github.com/oshokin/alarm-beacon/internal/domain/link"
	"github.com/oshokin/alarm-beacon/internal/logger"
)

const (
	namespace = "alarm_beacon"

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 2 * time.Second
)

// Metrics exports the alarm and link state as prometheus collectors.
// It observes both the alarm controller and the connectivity supervisor.
type Metrics struct {
	episodes    prometheus.Counter
	retriggers  prometheus.Counter
	saturated   prometheus.Counter
	connections prometheus.Counter
	alarmState  prometheus.Gauge
	linkUp      prometheus.Gauge
	patience    prometheus.Gauge

	// maxQueue marks an episode as saturated when its last retrigger reaches it.
	maxQueue int
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer, maxQueue int) *Metrics {
	m := &Metrics{
		episodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episodes_total",
			Help:      "Alarm episodes started by a datagram.",
		}),
		retriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retriggers_total",
			Help:      "Datagrams that extended a running episode.",
		}),
		saturated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saturated_episodes_total",
			Help:      "Episodes that reached the consecutive trigger cap.",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_connections_total",
			Help:      "Successful network associations.",
		}),
		alarmState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alarm_state",
			Help:      "Alarm phase: 0 idle, 1 active, 2 cooldown.",
		}),
		linkUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_up",
			Help:      "1 while the device holds a local address.",
		}),
		patience: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_patience_polls",
			Help:      "Poll budget of the current association pass.",
		}),
		maxQueue: maxQueue,
	}

	reg.MustRegister(
		m.episodes,
		m.retriggers,
		m.saturated,
		m.connections,
		m.alarmState,
		m.linkUp,
		m.patience,
	)

	return m
}

// AlarmChanged records an alarm transition.
func (m *Metrics) AlarmChanged(_ context.Context, state alarm.State, session alarm.Session) {
	m.alarmState.Set(float64(state))

	if state != alarm.StateActive {
		return
	}

	if session.ConsecutiveTriggers <= 1 {
		m.episodes.Inc()

		return
	}

	m.retriggers.Inc()

	if session.ConsecutiveTriggers == m.maxQueue {
		m.saturated.Inc()
	}
}

// LinkChanged records a link transition.
func (m *Metrics) LinkChanged(_ context.Context, state link.State) {
	switch state.Phase {
	case link.PhaseConnected:
		m.linkUp.Set(1)
		m.connections.Inc()
	case link.PhaseConnecting:
		m.linkUp.Set(0)
		m.patience.Set(float64(state.Patience))
	default:
		m.linkUp.Set(0)
	}
}

// Serve exposes gatherer on addr under /metrics until ctx is canceled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	l, err := new(net.ListenConfig).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	return ServeListener(ctx, l, gatherer)
}

// ServeListener is Serve on an already bound listener.
func ServeListener(ctx context.Context, l net.Listener, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn(ctx, "metrics server shutdown:", err)
		}
	}()

	logger.Infof(ctx, "metrics are served on %s", l.Addr())

	err := srv.Serve(l)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}

	return nil
}

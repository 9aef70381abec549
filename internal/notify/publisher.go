package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/alarm-beacon/internal/domain/alarm"
	"github.com/oshokin/alarm-beacon/internal/domain/link"
	"github.com/oshokin/alarm-beacon/internal/logger"
)

const (
	// qos is "at least once": retained state must reach the broker.
	qos = 1

	keepAlive = 30 * time.Second

	// quiesce is how long Disconnect lets in-flight work finish, in milliseconds.
	quiesce = 250

	statusOnline  = "online"
	statusOffline = "offline"
)

// Options configures the MQTT connection.
type Options struct {
	// Broker is the broker URI, e.g. tcp://broker.local:1883.
	Broker string
	// Topic is the prefix of every published topic.
	Topic string
	// ClientID identifies the device to the broker.
	ClientID string
	// Username and Password are optional credentials.
	Username string
	Password string
	// Timeout bounds the initial connect and each acknowledgement.
	Timeout time.Duration
}

// Publisher mirrors alarm and link state to retained MQTT topics:
//
//	<topic>/status  online | offline (last will)
//	<topic>/alarm   alarmEvent JSON
//	<topic>/link    linkEvent JSON
//
// Publishing never blocks the caller: acknowledgements are awaited in the background.
type Publisher struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration

	// pending tracks acknowledgement waiters so Close can flush them.
	pending sync.WaitGroup
}

type alarmEvent struct {
	State               string    `json:"state"`
	ConsecutiveTriggers int       `json:"consecutive_triggers"`
	Time                time.Time `json:"time"`
}

type linkEvent struct {
	State    string    `json:"state"`
	SSID     string    `json:"ssid,omitempty"`
	Address  string    `json:"address,omitempty"`
	Patience int       `json:"patience,omitempty"`
	Time     time.Time `json:"time"`
}

// Dial connects to the broker. The client keeps reconnecting in the background,
// so a broker that is unreachable at startup only produces a warning.
func Dial(ctx context.Context, opts Options) (*Publisher, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(opts.Timeout).
		SetWill(opts.Topic+"/status", statusOffline, qos, true).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.InfoKV(ctx, "Connected to MQTT broker", "broker", opts.Broker)
			c.Publish(opts.Topic+"/status", qos, true, statusOnline)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.WarnKV(ctx, "Lost MQTT broker connection", "error", err)
		})

	client := mqtt.NewClient(clientOpts)

	token := client.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		logger.WarnKV(ctx, "MQTT broker is not reachable yet, retrying in background", "broker", opts.Broker)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", opts.Broker, err)
	}

	return newPublisher(client, opts.Topic, opts.Timeout), nil
}

func newPublisher(client mqtt.Client, topic string, timeout time.Duration) *Publisher {
	return &Publisher{
		client:  client,
		topic:   topic,
		timeout: timeout,
	}
}

// AlarmChanged publishes every alarm transition.
func (p *Publisher) AlarmChanged(ctx context.Context, state alarm.State, session alarm.Session) {
	p.publish(ctx, "alarm", alarmEvent{
		State:               state.String(),
		ConsecutiveTriggers: session.ConsecutiveTriggers,
		Time:                time.Now(),
	})
}

// LinkChanged publishes link transitions. While connecting only the start
// of each profile attempt is published, not every poll.
func (p *Publisher) LinkChanged(ctx context.Context, state link.State) {
	if state.Phase == link.PhaseConnecting && state.Attempts > 0 {
		return
	}

	event := linkEvent{
		State: state.Phase.String(),
		SSID:  state.Profile.SSID,
		Time:  time.Now(),
	}

	switch state.Phase {
	case link.PhaseConnecting:
		event.Patience = state.Patience
	case link.PhaseConnected:
		event.Address = state.Address.String()
	}

	p.publish(ctx, "link", event)
}

// Close marks the device offline and disconnects once pending
// acknowledgements are in or timed out.
func (p *Publisher) Close(ctx context.Context) {
	p.pending.Wait()

	if p.client.IsConnected() {
		p.client.Publish(p.topic+"/status", qos, true, statusOffline).WaitTimeout(p.timeout)
	}

	p.client.Disconnect(quiesce)
	logger.Info(ctx, "MQTT publisher closed")
}

func (p *Publisher) publish(ctx context.Context, subtopic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to encode notification", "topic", subtopic, "error", err)

		return
	}

	topic := p.topic + "/" + subtopic
	token := p.client.Publish(topic, qos, true, payload)

	p.pending.Go(func() {
		if !token.WaitTimeout(p.timeout) {
			logger.WarnKV(ctx, "MQTT publish is not acknowledged", "topic", topic, "timeout", p.timeout)

			return
		}

		if err := token.Error(); err != nil {
			logger.WarnKV(ctx, "MQTT publish failed", "topic", topic, "error", err)
		}
	})
}

// Package mqttfeed carries change events over an MQTT broker.
package mqttfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
)

const (
	// DefaultTopicPrefix is followed by the table name.
	DefaultTopicPrefix = "tss/changes/"
	DefaultQoS         = byte(1)
	DefaultTimeout     = 10 * time.Second
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// Conn is the subset of mqtt.Client used here.
type Conn interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Config configures the broker connection.
type Config struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
	Logger      zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.QoS == 0 {
		c.QoS = DefaultQoS
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ClientID == "" {
		c.ClientID = fmt.Sprintf("tss-%d", time.Now().UnixNano())
	}
	return c
}

func wait(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return token.Error()
}

// Publisher publishes change events to the broker.
type Publisher struct {
	conn    Conn
	prefix  string
	qos     byte
	timeout time.Duration
}

var _ realtime.Publisher = (*Publisher)(nil)

// NewPublisher creates a Publisher on an already connected Conn.
func NewPublisher(conn Conn, cfg Config) *Publisher {
	cfg = cfg.withDefaults()
	return &Publisher{conn: conn, prefix: cfg.TopicPrefix, qos: cfg.QoS, timeout: cfg.Timeout}
}

// Publish sends evt to the topic of its table.
func (p *Publisher) Publish(_ context.Context, evt realtime.ChangeEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding change event: %w", err)
	}
	if err := wait(p.conn.Publish(p.prefix+evt.Table, p.qos, false, data), p.timeout); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.prefix+evt.Table, err)
	}
	return nil
}

// Bridge subscribes to every change topic and re-publishes into a local target.
type Bridge struct {
	cfg    Config
	target realtime.Publisher
	logger zerolog.Logger
}

// NewBridge creates a Bridge delivering into target.
func NewBridge(cfg Config, target realtime.Publisher) *Bridge {
	cfg = cfg.withDefaults()
	return &Bridge{
		cfg:    cfg,
		target: target,
		logger: cfg.Logger.With().Str("component", "mqttfeed").Logger(),
	}
}

// ClientOptions returns paho options that resubscribe on every (re)connect.
func (b *Bridge) ClientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.BrokerURL).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(b.cfg.Timeout)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if err := b.Subscribe(c); err != nil {
			b.logger.Error().Err(err).Msg("failed to subscribe to change topics")
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn().Err(err).Msg("mqtt connection lost")
	})
	return opts
}

// Subscribe registers the change topic wildcard on conn.
func (b *Bridge) Subscribe(conn Conn) error {
	topic := b.cfg.TopicPrefix + "#"
	if err := wait(conn.Subscribe(topic, b.cfg.QoS, b.HandleMessage), b.cfg.Timeout); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	b.logger.Info().Str("topic", topic).Msg("bridging mqtt change events")
	return nil
}

// HandleMessage decodes one broker message and forwards it.
func (b *Bridge) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	evt, err := realtime.ParseEvent(msg.Payload())
	if err != nil {
		b.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("skipping malformed change event")
		return
	}
	if table := strings.TrimPrefix(msg.Topic(), b.cfg.TopicPrefix); table != evt.Table {
		b.logger.Debug().Str("topic", msg.Topic()).Str("table", evt.Table).Msg("topic does not match event table")
	}
	if err := b.target.Publish(context.Background(), evt); err != nil {
		b.logger.Warn().Err(err).Str("table", evt.Table).Msg("failed to deliver change event")
	}
}

// Run connects, bridges events until ctx is cancelled, then disconnects.
// The connected client is passed to onConnect so callers can also publish.
func (b *Bridge) Run(ctx context.Context, onConnect func(mqtt.Client)) error {
	client := mqtt.NewClient(b.ClientOptions())
	if err := wait(client.Connect(), b.cfg.Timeout); err != nil {
		return fmt.Errorf("connecting to %s: %w", b.cfg.BrokerURL, err)
	}
	if onConnect != nil {
		onConnect(client)
	}
	<-ctx.Done()
	client.Disconnect(250)
	return nil
}

package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mfreeman451/lineradar/pkg/config"
)

const mqttPublishTimeout = 5 * time.Second

// mqttPublisher is the part of mqtt.Client the sender uses.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSender publishes requests to <prefix>/<channel> for a downstream
// delivery gateway.
type MQTTSender struct {
	client mqttPublisher
	closer func()
	qos    byte
	prefix string
}

// NewMQTTSender connects to the broker.
func NewMQTTSender(cfg *config.MQTTConfig) (*MQTTSender, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}

	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	s := newMQTTSender(client, cfg)
	s.closer = func() { client.Disconnect(250) }

	return s, nil
}

func newMQTTSender(client mqttPublisher, cfg *config.MQTTConfig) *MQTTSender {
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "lineradar/notifications"
	}

	return &MQTTSender{client: client, qos: cfg.QoS, prefix: prefix}
}

func (*MQTTSender) Name() string {
	return "mqtt"
}

func (m *MQTTSender) Topic(ch string) string {
	return m.prefix + "/" + ch
}

func (m *MQTTSender) Send(ctx context.Context, req *Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	topic := m.Topic(string(req.Channel))
	token := m.client.Publish(topic, m.qos, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mqttPublishTimeout):
		return fmt.Errorf("%w: %s", errMQTTTimeout, topic)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}

	return nil
}

// Close disconnects from the broker.
func (m *MQTTSender) Close() {
	if m.closer != nil {
		m.closer()
	}
}

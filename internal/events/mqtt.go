package events

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig mirrors internal/config.MQTTConfig's connection fields
// this sink needs (kept decoupled from internal/config to avoid an
// import cycle; internal/pipeline wires the two together).
type MQTTConfig struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string // e.g. "trunkrx/<system-name>/events"
}

// MQTTSink publishes envelopes to an MQTT broker under TopicPrefix,
// grounded on the teacher's mqtt_publisher.go: same client-option
// shape (auto-reconnect, keepalive, retry interval, random client ID),
// trimmed of the teacher's metrics/spectrum publishing loops since this
// sink only ever publishes what the Bus hands it.
type MQTTSink struct {
	client mqtt.Client
	topic  string
}

// NewMQTTSink connects to cfg.Broker and returns a ready-to-use sink.
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateClientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("events: connect to mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	return &MQTTSink{client: client, topic: cfg.TopicPrefix}, nil
}

// Publish marshals the envelope as JSON and publishes it at QoS 0
// under the configured topic prefix.
func (m *MQTTSink) Publish(env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	token := m.client.Publish(m.topic, 0, false, payload)
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker.
func (m *MQTTSink) Close() {
	m.client.Disconnect(250)
}

func generateClientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "trunkrx_" + hex.EncodeToString(b)
}

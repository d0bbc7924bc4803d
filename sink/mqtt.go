package sink

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"drive-camera-publisher/config"
)

// MQTTPublisher publishes frames to an MQTT broker. Frames go to the
// configured topic as binary ImageMessage payloads; the stream-closed
// event goes to "<topic>/status" as JSON.
type MQTTPublisher struct {
	cfg    config.MQTTConfig
	client mqtt.Client
	logger *zap.Logger
}

// NewMQTTPublisher creates a publisher for the given broker configuration.
// The configured client id is salted with a random suffix so restarting
// the service never collides with a half-dead session at the broker.
func NewMQTTPublisher(cfg config.MQTTConfig, logger *zap.Logger) *MQTTPublisher {
	p := &MQTTPublisher{cfg: cfg, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8]))
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.String("broker", cfg.Broker), zap.Error(err))
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect establishes the broker connection
func (p *MQTTPublisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(time.Duration(p.cfg.ConnectTimeoutMs) * time.Millisecond) {
		return fmt.Errorf("mqtt connect timeout after %dms", p.cfg.ConnectTimeoutMs)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Publish sends one frame. Delivery failures are logged, not returned;
// the acquisition loop must not stall on a slow broker.
func (p *MQTTPublisher) Publish(msg *ImageMessage) {
	if !p.client.IsConnected() {
		p.logger.Warn("Dropping frame, MQTT not connected", zap.Uint64("seq", msg.Seq))
		return
	}

	token := p.client.Publish(p.cfg.Topic, byte(p.cfg.QoS), p.cfg.Retain, msg.Encode())
	go func() {
		if !token.WaitTimeout(time.Duration(p.cfg.PublishTimeoutMs) * time.Millisecond) {
			p.logger.Warn("MQTT publish timeout",
				zap.String("topic", p.cfg.Topic),
				zap.Uint64("seq", msg.Seq))
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Error("MQTT publish failed",
				zap.String("topic", p.cfg.Topic),
				zap.Uint64("seq", msg.Seq),
				zap.Error(err))
		}
	}()
}

// PublishStreamClosed emits the terminal session event
func (p *MQTTPublisher) PublishStreamClosed(event *StreamClosed) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to encode stream-closed event", zap.Error(err))
		return
	}

	topic := p.cfg.Topic + "/status"
	token := p.client.Publish(topic, byte(p.cfg.QoS), false, payload)
	if !token.WaitTimeout(time.Duration(p.cfg.PublishTimeoutMs) * time.Millisecond) {
		p.logger.Warn("MQTT publish timeout for stream-closed event", zap.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Error("Failed to publish stream-closed event", zap.String("topic", topic), zap.Error(err))
	}
}

// Disconnect closes the broker connection
func (p *MQTTPublisher) Disconnect() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

var _ Publisher = (*MQTTPublisher)(nil)

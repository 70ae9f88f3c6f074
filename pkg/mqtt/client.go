// Package mqtt publishes navcore's dispatch events to an MQTT broker,
// implementing the dispatch.EventSink interface. Adapted from the
// teacher's WAN-telemetry MQTT client: connection lifecycle, rate
// limiting, and batched publishing are kept verbatim in shape; the
// member/sample/status/health publish methods are replaced with one
// method per dispatch event, each writing to its own topic instead of a
// generic telemetry channel.
package mqtt

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/trailmesh/navcore/pkg/alerts"
	"github.com/trailmesh/navcore/pkg/dispatch"
	"github.com/trailmesh/navcore/pkg/logx"
)

// Client publishes navcore events to MQTT, with rate limiting and batched
// publishing so a burst of packet-rate position updates doesn't flood the
// broker.
type Client struct {
	client      MQTT.Client
	logger      *logx.Logger
	config      *Config
	connected   bool
	lastPublish time.Time

	messageQueue   []*QueuedMessage
	queueMutex     sync.Mutex
	queueSize      int
	maxQueueSize   int
	batchInterval  time.Duration
	lastBatchFlush time.Time

	publishRateLimiter *RateLimiter
}

// Config holds MQTT broker connection settings.
type Config struct {
	Broker      string `json:"broker"`
	Port        int    `json:"port"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         int    `json:"qos"`
	Retain      bool   `json:"retain"`
	Enabled     bool   `json:"enabled"`
}

// DefaultConfig returns the default, disabled MQTT configuration.
func DefaultConfig() *Config {
	return &Config{
		Broker:      "localhost",
		Port:        1883,
		ClientID:    "navcore",
		TopicPrefix: "navcore",
		QoS:         1,
		Retain:      false,
		Enabled:     false,
	}
}

// LoadConfig returns DefaultConfig with MQTT_* environment overrides
// applied, matching the env-override idiom in pkg/config.Load. MQTT
// publishing stays disabled unless MQTT_ENABLED=true is set explicitly.
func LoadConfig() *Config {
	c := DefaultConfig()

	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.Broker = v
	}
	if v := os.Getenv("MQTT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("MQTT_TOPIC_PREFIX"); v != "" {
		c.TopicPrefix = v
	}
	if v := os.Getenv("MQTT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Enabled = b
		}
	}

	return c
}

// NewClient creates an MQTT client. Connect must be called before any
// EventSink method will publish.
func NewClient(config *Config, logger *logx.Logger) *Client {
	return &Client{
		logger:        logger,
		config:        config,
		messageQueue:  make([]*QueuedMessage, 0, 100),
		maxQueueSize:  100,
		batchInterval: 5 * time.Second,
		publishRateLimiter: &RateLimiter{
			maxMessages: 10,
			windowSize:  1 * time.Second,
		},
	}
}

// Connect establishes the connection to the broker. A no-op when the
// client is disabled.
func (c *Client) Connect() error {
	if !c.config.Enabled {
		c.logger.Debug("mqtt client disabled")
		return nil
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port))
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = MQTT.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}

	c.logger.Info("mqtt client connected", "broker", c.config.Broker, "port", c.config.Port)
	return nil
}

// Disconnect closes the connection to the broker.
func (c *Client) Disconnect() error {
	if c.client != nil && c.connected {
		c.client.Disconnect(250)
		c.connected = false
		c.logger.Info("mqtt client disconnected")
	}
	return nil
}

func (c *Client) onConnect(client MQTT.Client) {
	c.connected = true
	c.logger.Info("mqtt connection established")
}

func (c *Client) onConnectionLost(client MQTT.Client, err error) {
	c.connected = false
	c.logger.Error("mqtt connection lost", "error", err.Error())
}

// PositionUpdate implements dispatch.EventSink.
func (c *Client) PositionUpdate(e dispatch.PositionUpdate) {
	c.publish(fmt.Sprintf("%s/position", c.config.TopicPrefix), e)
}

// Alert implements dispatch.EventSink.
func (c *Client) Alert(a alerts.Alert) {
	c.publish(fmt.Sprintf("%s/alerts", c.config.TopicPrefix), a)
}

// DeviceLeft implements dispatch.EventSink.
func (c *Client) DeviceLeft(e dispatch.DeviceLeft) {
	c.publish(fmt.Sprintf("%s/devices/left", c.config.TopicPrefix), e)
}

// Registered implements dispatch.EventSink.
func (c *Client) Registered(e dispatch.Registered) {
	c.publish(fmt.Sprintf("%s/devices/registered", c.config.TopicPrefix), e)
}

// publish marshals payload and hands it to the rate-limited, batched
// publish path. Errors are logged, never propagated — the event sink
// contract has no error return, mirroring spec.md §4.9's "persistence and
// I/O failures are logged, never fatal."
func (c *Client) publish(topic string, payload interface{}) {
	if !c.config.Enabled {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("mqtt marshal failed", "topic", topic, "error", err.Error())
		return
	}

	if !c.publishRateLimiter.Allow() {
		c.enqueue(topic, data)
		return
	}

	if err := c.publishBatched(topic, data); err != nil {
		c.logger.Warn("mqtt publish failed", "topic", topic, "error", err.Error())
	}
}

func (c *Client) publishBatched(topic string, payload []byte) error {
	c.queueMutex.Lock()
	defer c.queueMutex.Unlock()

	c.messageQueue = append(c.messageQueue, &QueuedMessage{
		Topic:   topic,
		Payload: payload,
		QoS:     c.config.QoS,
		Retain:  c.config.Retain,
		Time:    time.Now(),
	})
	c.queueSize++

	if c.queueSize >= c.maxQueueSize || time.Since(c.lastBatchFlush) >= c.batchInterval {
		return c.flushMessageQueue()
	}
	return nil
}

func (c *Client) enqueue(topic string, payload []byte) {
	c.queueMutex.Lock()
	defer c.queueMutex.Unlock()

	if c.queueSize >= c.maxQueueSize {
		c.logger.Warn("mqtt queue full, dropping message", "topic", topic)
		return
	}

	c.messageQueue = append(c.messageQueue, &QueuedMessage{
		Topic:   topic,
		Payload: payload,
		QoS:     c.config.QoS,
		Retain:  c.config.Retain,
		Time:    time.Now(),
	})
	c.queueSize++
}

func (c *Client) flushMessageQueue() error {
	if len(c.messageQueue) == 0 {
		return nil
	}

	for _, msg := range c.messageQueue {
		if err := c.publishDirect(msg.Topic, msg.Payload); err != nil {
			c.logger.Error("failed to publish queued message", "topic", msg.Topic, "error", err.Error())
		}
	}

	c.messageQueue = c.messageQueue[:0]
	c.queueSize = 0
	c.lastBatchFlush = time.Now()
	return nil
}

func (c *Client) publishDirect(topic string, payload []byte) error {
	if !c.connected {
		return fmt.Errorf("not connected to mqtt broker")
	}

	token := c.client.Publish(topic, byte(c.config.QoS), c.config.Retain, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish message: %w", token.Error())
	}

	c.lastPublish = time.Now()
	return nil
}

// IsConnected reports whether the client currently has a live broker
// connection.
func (c *Client) IsConnected() bool {
	return c.connected && c.client != nil && c.client.IsConnected()
}

// QueuedMessage is a message waiting to be published, either because it
// was batched or because it was rate-limited.
type QueuedMessage struct {
	Topic   string
	Payload []byte
	QoS     int
	Retain  bool
	Time    time.Time
}

// RateLimiter is a fixed-window publish-rate limiter.
type RateLimiter struct {
	mu           sync.Mutex
	lastCheck    time.Time
	messageCount int
	maxMessages  int
	windowSize   time.Duration
}

// Allow reports whether another message may be published in the current
// window, incrementing the window's counter if so.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastCheck) >= rl.windowSize {
		rl.messageCount = 0
		rl.lastCheck = now
	}

	if rl.messageCount < rl.maxMessages {
		rl.messageCount++
		return true
	}
	return false
}

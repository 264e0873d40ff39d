package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"aionclock/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

var ErrNotConnected = errors.New("broker not connected")

// Credentials authenticate the device to the broker. The client id is the
// device serial; username and password come from the settings record.
type Credentials struct {
	ClientID string
	Username string
	Password string
}

// Client is the telemetry broker client (MQTT or Kafka).
type Client struct {
	mu       sync.RWMutex
	cfg      *config.MessagingConfig
	backend  string
	mqttConn mqtt.Client
	kafkaW   *kafkago.Writer
}

// NewClient creates a broker client based on config.
func NewClient(cfg *config.MessagingConfig) *Client {
	return &Client{
		cfg:     cfg,
		backend: cfg.Backend,
	}
}

// Connect (re)establishes the broker connection with the given credentials.
// Any previous connection is dropped first.
func (c *Client) Connect(creds Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()
	switch c.backend {
	case "mqtt":
		return c.connectMQTT(creds)
	case "kafka":
		return c.connectKafka(creds)
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.backend)
	}
}

func (c *Client) connectMQTT(creds Credentials) error {
	broker := fmt.Sprintf("tcp://%s:%d", c.cfg.MQTT.Broker, c.cfg.MQTT.Port)
	timeout := c.cfg.MQTT.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(creds.ClientID).
		SetUsername(creds.Username).
		SetPassword(creds.Password).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect: timed out after %v", timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.mqttConn = client
	return nil
}

func (c *Client) connectKafka(creds Credentials) error {
	if len(c.cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka connect: no brokers configured")
	}
	transport := &kafkago.Transport{ClientID: creds.ClientID}
	if creds.Username != "" {
		transport.SASL = plain.Mechanism{Username: creds.Username, Password: creds.Password}
	}
	c.kafkaW = newKafkaWriter(c.cfg.Kafka, transport)
	return nil
}

// newKafkaWriter builds an async writer that tries each batch once. Publish
// runs on the control loop and must not wait on an unreachable broker.
func newKafkaWriter(cfg config.KafkaConfig, transport *kafkago.Transport) *kafkago.Writer {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		Transport:    transport,
		Async:        true,
		MaxAttempts:  1,
		WriteTimeout: timeout,
		BatchTimeout: 100 * time.Millisecond,
		Completion: func(_ []kafkago.Message, err error) {
			if err != nil {
				log.Printf("messaging: kafka write: %v", err)
			}
		},
	}
}

// Publish sends a single message to topic.
func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.backend {
	case "mqtt":
		if c.mqttConn == nil || !c.mqttConn.IsConnected() {
			return ErrNotConnected
		}
		token := c.mqttConn.Publish(topic, 0, false, payload)
		token.Wait()
		return token.Error()
	case "kafka":
		if c.kafkaW == nil {
			return ErrNotConnected
		}
		// Kafka topic names cannot contain '/'.
		return c.kafkaW.WriteMessages(context.Background(), kafkago.Message{
			Topic: kafkaTopic(topic),
			Value: payload,
		})
	default:
		return fmt.Errorf("unknown backend: %s", c.backend)
	}
}

func kafkaTopic(topic string) string {
	b := []byte(topic)
	for i, ch := range b {
		if ch == '/' {
			b[i] = '.'
		}
	}
	return string(b)
}

// IsConnected returns whether the broker client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.backend {
	case "mqtt":
		return c.mqttConn != nil && c.mqttConn.IsConnected()
	case "kafka":
		return c.kafkaW != nil
	default:
		return false
	}
}

// Close shuts down the broker connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.mqttConn != nil {
		c.mqttConn.Disconnect(250)
		c.mqttConn = nil
	}
	if c.kafkaW != nil {
		c.kafkaW.Close()
		c.kafkaW = nil
	}
}

// Package mqtt wraps the paho client behind the narrow surface the rest of
// the program needs: connect once, dispatch inbound commands to a handler,
// and publish.
package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"voltlight/logger"
)

const connectTimeout = 10 * time.Second

// Handler receives transport callbacks. Both methods are invoked on the
// client's delivery goroutines, concurrently with anything else the process
// does.
type Handler interface {
	// OnReady is called after every successful (re)connection, once the
	// command subscription is in place.
	OnReady()
	// OnCommand is called for every message on the command topic.
	OnCommand(payload []byte)
}

// Config carries broker connection settings.
type Config struct {
	Host         string
	Port         int
	Username     string
	Password     string
	ClientID     string
	CommandTopic string
}

// Client is a connected MQTT session. It satisfies light.Publisher.
type Client struct {
	cfg   Config
	inner paho.Client
	log   *logrus.Logger
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg, log: logger.GetProjectLogger()}
}

// Connect establishes the broker session and wires the handler. Failure to
// reach the broker is returned to the caller; disconnects after that are
// handled by paho's auto-reconnect, which re-runs the subscription and
// OnReady on every new session.
func (c *Client) Connect(handler Handler) error {
	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", c.cfg.Host, c.cfg.Port)).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(false)
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	opts.SetOnConnectHandler(func(client paho.Client) {
		c.log.WithField("topic", c.cfg.CommandTopic).Info("connected to MQTT broker, subscribing")
		token := client.Subscribe(c.cfg.CommandTopic, 1, func(_ paho.Client, msg paho.Message) {
			handler.OnCommand(msg.Payload())
		})
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.WithError(err).Error("command topic subscription failed")
			return
		}
		handler.OnReady()
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.log.WithError(err).Warn("MQTT connection lost, waiting for auto-reconnect")
	})

	c.inner = paho.NewClient(opts)
	token := c.inner.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("timed out connecting to MQTT broker at %s:%d", c.cfg.Host, c.cfg.Port)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to MQTT broker at %s:%d: %w", c.cfg.Host, c.cfg.Port, err)
	}
	return nil
}

// Publish sends a payload and waits for the broker to accept it.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if c.inner == nil {
		return fmt.Errorf("publish to %s: not connected", topic)
	}
	token := c.inner.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

// Close tears down the connection, allowing a moment for in-flight messages.
func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Disconnect(250)
	}
}

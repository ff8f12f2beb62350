// internal/publish/client.go
package publish

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// sink is the exact contract the publishers use.
// IMPORTANT: There must be NO other version of this interface anywhere.
type sink interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"

	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options carries the broker connection settings.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// BaseTopic roots all value topics; the bridge availability topic is
	// <BaseTopic>/bridge/status and doubles as the LWT.
	BaseTopic string
	QoS       byte

	// OnConnect fires after every (re)connect, availability already
	// republished. Used to re-announce discovery configs.
	OnConnect func()
}

// Client wraps the paho connection behind the sink contract.
type Client struct {
	c            mqtt.Client
	qos          byte
	availability string
}

// Connect dials the broker. The will marks the bridge offline if the
// connection drops without a clean shutdown.
func Connect(o Options) (*Client, error) {
	cl := &Client{
		qos:          o.QoS,
		availability: o.BaseTopic + "/bridge/status",
	}

	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetWill(cl.availability, availabilityOffline, o.QoS, true).
		SetOnConnectHandler(func(mqtt.Client) {
			_ = cl.Publish(cl.availability, o.QoS, true, []byte(availabilityOnline))
			if o.OnConnect != nil {
				o.OnConnect()
			}
		})

	cl.c = mqtt.NewClient(opts)
	t := cl.c.Connect()
	if !t.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", o.Broker)
	}
	if err := t.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", o.Broker, err)
	}
	return cl, nil
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	t := c.c.Publish(topic, qos, retained, payload)
	if !t.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: publish to %s timed out", topic)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", topic, err)
	}
	return nil
}

// Close marks the bridge offline and disconnects cleanly.
func (c *Client) Close() {
	_ = c.Publish(c.availability, c.qos, true, []byte(availabilityOffline))
	c.c.Disconnect(250)
}

// AvailabilityTopic is referenced by the discovery configs.
func (c *Client) AvailabilityTopic() string { return c.availability }

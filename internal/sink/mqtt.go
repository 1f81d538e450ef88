// Package sink forwards received event notifications to storage and brokers.
package sink

import (
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultKeepAlive         = 60 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
)

// ErrPublishTimeout is returned when the broker does not acknowledge a publish in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Username string
	Password string
	QoS      byte
	Retained bool
}

// MQTTPublisher publishes through a paho client.
type MQTTPublisher struct {
	client   pahomqtt.Client
	qos      byte
	retained bool
}

func buildClientOptions(opts MQTTOptions) *pahomqtt.ClientOptions {
	co := pahomqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	clientID := opts.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("upnpctl-%d", time.Now().UnixNano())
	}
	co.SetClientID(clientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetConnectTimeout(defaultConnectTimeout)
	co.SetKeepAlive(defaultKeepAlive)
	return co
}

// ConnectMQTT connects to the broker and waits for the connection to be established.
func ConnectMQTT(opts MQTTOptions) (*MQTTPublisher, error) {
	if opts.QoS > 2 {
		return nil, fmt.Errorf("invalid mqtt qos %d", opts.QoS)
	}
	client := pahomqtt.NewClient(buildClientOptions(opts))
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("failed to connect to %s: timeout after %v", opts.Broker, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Broker, err)
	}
	return &MQTTPublisher{client: client, qos: opts.QoS, retained: opts.Retained}, nil
}

func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	if p.client != nil {
		p.client.Disconnect(defaultDisconnectQuiesce)
	}
	return nil
}

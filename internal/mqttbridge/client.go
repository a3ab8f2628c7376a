package mqttbridge

import (
	"context"
	"errors"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish or subscribe in time.
var ErrPublishTimeout = errors.New("mqtt: broker did not acknowledge in time")

// MessageHandler receives a message on a subscribed topic.
type MessageHandler func(topic string, payload []byte)

// Client is the subset of an MQTT client the bridge uses.
type Client interface {
	Connect(ctx context.Context) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(filter string, qos byte, handler MessageHandler) error
	Disconnect(quiesce time.Duration)
	IsConnected() bool
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// WillTopic receives WillPayload, retained, when the connection drops
	// without a clean disconnect.
	WillTopic   string
	WillPayload string

	Timeout time.Duration

	// OnConnect runs after every successful (re)connect, once subscriptions
	// have been restored.
	OnConnect func()

	Logger *zap.Logger
}

// Dialer builds a Client. It must not touch the network.
type Dialer func(opts ClientOptions) Client

type subscription struct {
	qos     byte
	handler MessageHandler
}

// pahoClient adapts the Eclipse Paho client. Subscriptions are remembered
// and restored on every reconnect because sessions are clean.
type pahoClient struct {
	client  paho.Client
	timeout time.Duration
	logger  *zap.Logger

	onConnect func()

	mu   sync.Mutex
	subs map[string]subscription
}

// NewPahoClient returns a Client backed by paho.mqtt.golang with automatic
// reconnects.
func NewPahoClient(opts ClientOptions) Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &pahoClient{
		timeout:   opts.Timeout,
		logger:    logger,
		onConnect: opts.OnConnect,
		subs:      make(map[string]subscription),
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(10 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetConnectTimeout(opts.Timeout).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}
	if opts.WillTopic != "" {
		po.SetWill(opts.WillTopic, opts.WillPayload, 1, true)
	}
	c.client = paho.NewClient(po)
	return c
}

func (c *pahoClient) Connect(ctx context.Context) error {
	t := c.client.Connect()
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *pahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return c.wait(c.client.Publish(topic, qos, retained, payload))
}

func (c *pahoClient) Subscribe(filter string, qos byte, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[filter] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.wait(c.client.Subscribe(filter, qos, adapt(handler)))
}

func (c *pahoClient) Disconnect(quiesce time.Duration) {
	c.client.Disconnect(uint(quiesce.Milliseconds()))
}

func (c *pahoClient) IsConnected() bool { return c.client.IsConnectionOpen() }

func (c *pahoClient) handleConnect(cl paho.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for k, v := range c.subs {
		subs[k] = v
	}
	c.mu.Unlock()

	for filter, s := range subs {
		if err := c.wait(cl.Subscribe(filter, s.qos, adapt(s.handler))); err != nil {
			c.logger.Warn("mqtt resubscribe failed", zap.String("filter", filter), zap.Error(err))
		}
	}
	c.logger.Info("mqtt connected", zap.Int("subscriptions", len(subs)))
	if c.onConnect != nil {
		c.onConnect()
	}
}

func (c *pahoClient) wait(t paho.Token) error {
	if !t.WaitTimeout(c.timeout) {
		return ErrPublishTimeout
	}
	return t.Error()
}

func adapt(h MessageHandler) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) {
		h(m.Topic(), m.Payload())
	}
}

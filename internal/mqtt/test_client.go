package mqtt

import (
	"errors"
	"sync"
	"time"

	"github.com/berfenger/exportlimit/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func NewTestMQTTClient(cfg config.MQTTBusConfig) (*MQTTClient, *TestPahoClient) {
	paho := NewTestPahoClient()
	return newMQTTClient(cfg, paho), paho
}

type TestPublish struct {
	Topic   string
	Payload []byte
}

// TestPahoClient is an in-process broker stand-in. Published messages are
// recorded and Deliver routes a message to the subscription handlers.
type TestPahoClient struct {
	mu            sync.Mutex
	connected     bool
	published     []TestPublish
	subscriptions map[string]mqtt.MessageHandler
	publishErr    error
}

func NewTestPahoClient() *TestPahoClient {
	return &TestPahoClient{
		subscriptions: map[string]mqtt.MessageHandler{},
	}
}

func (c *TestPahoClient) FailPublish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

func (c *TestPahoClient) Published() []TestPublish {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]TestPublish(nil), c.published...)
}

func (c *TestPahoClient) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	topics := make([]string, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		topics = append(topics, topic)
	}
	return topics
}

// Deliver hands msg to every subscription handler.
func (c *TestPahoClient) Deliver(msg mqtt.Message) {
	c.mu.Lock()
	handlers := make([]mqtt.MessageHandler, 0, len(c.subscriptions))
	for _, h := range c.subscriptions {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(c, msg)
	}
}

func (c *TestPahoClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *TestPahoClient) IsConnectionOpen() bool {
	return c.IsConnected()
}

func (c *TestPahoClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return doneToken(nil)
}

func (c *TestPahoClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *TestPahoClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return doneToken(c.publishErr)
	}
	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	case string:
		body = []byte(p)
	default:
		return doneToken(errors.New("unknown payload type"))
	}
	c.published = append(c.published, TestPublish{Topic: topic, Payload: body})
	return doneToken(nil)
}

func (c *TestPahoClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[topic] = callback
	return doneToken(nil)
}

func (c *TestPahoClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic := range filters {
		c.subscriptions[topic] = callback
	}
	return doneToken(nil)
}

func (c *TestPahoClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.subscriptions, topic)
	}
	return doneToken(nil)
}

func (c *TestPahoClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[topic] = callback
}

func (c *TestPahoClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

type testToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *testToken {
	t := &testToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *testToken) Wait() bool {
	return true
}

func (t *testToken) WaitTimeout(time.Duration) bool {
	return true
}

func (t *testToken) Done() <-chan struct{} {
	return t.done
}

func (t *testToken) Error() error {
	return t.err
}

type TestMessage struct {
	TopicName string
	Body      []byte
}

func (m TestMessage) Duplicate() bool   { return false }
func (m TestMessage) Qos() byte         { return 0 }
func (m TestMessage) Retained() bool    { return false }
func (m TestMessage) Topic() string     { return m.TopicName }
func (m TestMessage) MessageID() uint16 { return 0 }
func (m TestMessage) Payload() []byte   { return m.Body }
func (m TestMessage) Ack()              {}

// ensure interface compliance
var _ mqtt.Client = (*TestPahoClient)(nil)
var _ mqtt.Message = TestMessage{}

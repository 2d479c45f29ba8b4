package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/berfenger/exportlimit/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

func OptsFromConfig(cfg config.MQTTBusConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(fmt.Sprintf("exportlimit_%s", uuid.NewString()[:8]))
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(false)
	return opts
}

func CreateMQTTClient(cfg config.MQTTBusConfig, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return newMQTTClient(cfg, mqtt.NewClient(opts))
}

func newMQTTClient(cfg config.MQTTBusConfig, client mqtt.Client) *MQTTClient {
	return &MQTTClient{
		client:             client,
		cfg:                cfg,
		notificationRegexp: notificationExtractor(cfg.PortalId),
	}
}

// MQTTClient speaks the Venus OS MQTT dialect: N/ notifications, W/ writes
// and R/ read requests, all under the GX portal id.
type MQTTClient struct {
	client             mqtt.Client
	cfg                config.MQTTBusConfig
	notificationRegexp *regexp.Regexp
}

type Notification struct {
	Type     string
	Instance uint
	Path     string
	Value    *float64
}

type venusValue struct {
	Value *float64 `json:"value"`
}

func (c *MQTTClient) portalId() string {
	return c.cfg.PortalId
}

func (c *MQTTClient) NotificationTopic(serviceType string, instance uint, path string) string {
	return fmt.Sprintf("N/%s/%s/%d%s", c.portalId(), serviceType, instance, path)
}

func (c *MQTTClient) WriteTopic(serviceType string, instance uint, path string) string {
	return fmt.Sprintf("W/%s/%s/%d%s", c.portalId(), serviceType, instance, path)
}

func (c *MQTTClient) ReadTopic(serviceType string, instance uint, path string) string {
	return fmt.Sprintf("R/%s/%s/%d%s", c.portalId(), serviceType, instance, path)
}

func (c *MQTTClient) KeepaliveTopic() string {
	return fmt.Sprintf("R/%s/keepalive", c.portalId())
}

func (c *MQTTClient) notificationsTopic() string {
	return fmt.Sprintf("N/%s/#", c.portalId())
}

func (c *MQTTClient) ParseNotification(msg mqtt.Message) (*Notification, error) {
	matches := c.notificationRegexp.FindAllStringSubmatch(msg.Topic(), 1)
	if len(matches) == 0 || len(matches[0]) != 4 {
		return nil, errors.New("not a notification")
	}
	instance, err := strconv.ParseUint(matches[0][2], 10, 32)
	if err != nil {
		return nil, err
	}
	var payload venusValue
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		return nil, err
	}
	return &Notification{
		Type:     matches[0][1],
		Instance: uint(instance),
		Path:     matches[0][3],
		Value:    payload.Value,
	}, nil
}

func EncodeValue(value float64) []byte {
	payload, _ := json.Marshal(venusValue{Value: &value})
	return payload
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) SubscribeToNotifications(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(c.notificationsTopic(), 0, handler, continuation, timeout)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func notificationExtractor(portalId string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^N/%s/([a-z0-9_]+)/([0-9]+)(/.+)$", regexp.QuoteMeta(portalId)))
}

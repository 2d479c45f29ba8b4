package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/exportlimit/internal/config"
	"github.com/berfenger/exportlimit/internal/core/domain"
	"github.com/berfenger/exportlimit/internal/core/port"
	"github.com/berfenger/exportlimit/internal/metrics"
	"github.com/berfenger/exportlimit/internal/mqtt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	MQTT_OPERATION_TIMEOUT = 2 * time.Second
	// the GX stops publishing after 60s without a keepalive
	MQTT_KEEPALIVE_INTERVAL = 30 * time.Second
)

var (
	errNoValue    = errors.New("no value received yet")
	errStaleValue = errors.New("value is stale")
)

type cachedValue struct {
	value      *float64
	receivedAt time.Time
}

// MQTTBus mirrors the N/ notifications of a Venus OS broker and writes through
// W/ topics. A read never blocks: it answers from the last notification.
type MQTTBus struct {
	client     *mqtt.MQTTClient
	services   map[string]config.MQTTServiceConfig
	staleAfter time.Duration

	mu     sync.RWMutex
	values map[string]cachedValue

	now    func() time.Time
	logger *zap.Logger
}

func NewMQTTBus(cfg config.MQTTBusConfig, logger *zap.Logger) *MQTTBus {
	b := newMQTTBus(cfg, logger)
	b.client = mqtt.CreateMQTTClient(cfg, mqtt.OptsFromConfig(cfg), b.onConnect, b.onConnectionLost)
	return b
}

func newMQTTBus(cfg config.MQTTBusConfig, logger *zap.Logger) *MQTTBus {
	services := make(map[string]config.MQTTServiceConfig, len(cfg.Services))
	for _, svc := range cfg.Services {
		services[svc.ServiceID] = svc
	}
	return &MQTTBus{
		services:   services,
		staleAfter: time.Duration(cfg.StaleAfterMillis) * time.Millisecond,
		values:     map[string]cachedValue{},
		now:        time.Now,
		logger:     logger.With(zap.String("bus", config.TRANSPORT_MQTT)),
	}
}

// Connect blocks until the broker accepted the connection.
func (b *MQTTBus) Connect() error {
	done := make(chan error, 1)
	b.client.Connect(func(err error) { done <- err }, MQTT_OPERATION_TIMEOUT)
	return <-done
}

func (b *MQTTBus) Close() {
	b.client.Disconnect(MQTT_OPERATION_TIMEOUT)
}

// KeepAlive asks the GX to keep publishing notifications.
func (b *MQTTBus) KeepAlive() error {
	return b.publish(b.client.KeepaliveTopic(), []byte(""))
}

// KeepAliveUntil sends a keepalive every interval until ctx is done.
func (b *MQTTBus) KeepAliveUntil(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := b.KeepAlive(); err != nil {
					b.logger.Warn("mqtt: keepalive failed", zap.Error(err))
				}
			}
		}
	}()
}

func (b *MQTTBus) onConnect(client pahomqtt.Client) {
	b.logger.Info("mqtt: connected, subscribing to notifications")
	b.client.SubscribeToNotifications(b.onNotification, func(err error) {
		if err != nil {
			b.logger.Error("mqtt: subscription failed", zap.Error(err))
			return
		}
		if err := b.KeepAlive(); err != nil {
			b.logger.Warn("mqtt: keepalive failed", zap.Error(err))
		}
	}, MQTT_OPERATION_TIMEOUT)
}

func (b *MQTTBus) onConnectionLost(client pahomqtt.Client, err error) {
	b.logger.Warn("mqtt: connection lost", zap.Error(err))
}

func (b *MQTTBus) onNotification(client pahomqtt.Client, msg pahomqtt.Message) {
	n, err := b.client.ParseNotification(msg)
	if err != nil {
		b.logger.Debug("mqtt: ignoring message", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[b.client.NotificationTopic(n.Type, n.Instance, n.Path)] = cachedValue{
		value:      n.Value,
		receivedAt: b.now(),
	}
}

func (b *MQTTBus) Read(serviceID, path string) (float64, error) {
	svc, ok := b.services[serviceID]
	if !ok {
		return 0, domain.NewNotFound(serviceID, path, nil)
	}
	b.mu.RLock()
	cached, ok := b.values[b.client.NotificationTopic(svc.Type, svc.Instance, path)]
	b.mu.RUnlock()
	if !ok || cached.value == nil {
		b.requestRefresh(svc, path)
		return 0, domain.NewNotFound(serviceID, path, errNoValue)
	}
	if b.staleAfter > 0 && b.now().Sub(cached.receivedAt) > b.staleAfter {
		b.requestRefresh(svc, path)
		return 0, domain.NewNotFound(serviceID, path, errStaleValue)
	}
	return *cached.value, nil
}

func (b *MQTTBus) requestRefresh(svc config.MQTTServiceConfig, path string) {
	b.client.Publish(b.client.ReadTopic(svc.Type, svc.Instance, path), []byte(""), 0, false, func(err error) {
		if err != nil {
			b.logger.Debug("mqtt: read request failed", zap.String("service", svc.ServiceID), zap.String("path", path), zap.Error(err))
		}
	}, MQTT_OPERATION_TIMEOUT)
}

func (b *MQTTBus) Write(serviceID, path string, value float64) error {
	svc, ok := b.services[serviceID]
	if !ok {
		return domain.NewWriteError(serviceID, path, nil)
	}
	if !b.client.IsConnected() {
		return domain.NewWriteError(serviceID, path, errors.New("not connected"))
	}
	if err := b.publish(b.client.WriteTopic(svc.Type, svc.Instance, path), mqtt.EncodeValue(value)); err != nil {
		return domain.NewWriteError(serviceID, path, err)
	}
	return nil
}

func (b *MQTTBus) publish(topic string, payload []byte) error {
	start := time.Now()
	done := make(chan error, 1)
	b.client.Publish(topic, payload, 0, false, func(err error) { done <- err }, MQTT_OPERATION_TIMEOUT)
	err := <-done
	metrics.RecordBusOperation(config.TRANSPORT_MQTT, "Publish", time.Since(start))
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// ensure interface compliance
var _ port.Bus = (*MQTTBus)(nil)

// Package ingest принимает показания устройств по MQTT и сохраняет их в хранилище
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"envmonitor-service/internal/metrics"
	"envmonitor-service/internal/models"
)

// Transport метка транспорта в метриках
const Transport = "mqtt"

// ErrTopicMismatch топик сообщения не соответствует фильтру подписки
var ErrTopicMismatch = errors.New("topic does not match subscription")

// Ingester сохраняет показание устройства
type Ingester interface {
	Ingest(ctx context.Context, deviceID string, reading models.RawReading, transport string) (string, error)
}

// Config параметры подключения к брокеру
type Config struct {
	BrokerURL string
	Topic     string
	ClientID  string
	QoS       byte
	KeepAlive uint16
}

// Collector подписывается на топик показаний и передает их в Ingester.
// Фильтр топика должен содержать ровно один уровень "+" на месте идентификатора устройства.
type Collector struct {
	cfg      Config
	ingester Ingester
	log      *slog.Logger
	deviceAt int
	levels   []string
}

// NewCollector создает сборщик
func NewCollector(cfg Config, ingester Ingester, log *slog.Logger) (*Collector, error) {
	levels := strings.Split(cfg.Topic, "/")
	deviceAt := -1
	for i, level := range levels {
		switch {
		case level == "+" && deviceAt == -1:
			deviceAt = i
		case strings.ContainsAny(level, "+#"):
			return nil, fmt.Errorf("topic %q: only one single-level wildcard is supported", cfg.Topic)
		}
	}
	if deviceAt == -1 {
		return nil, fmt.Errorf("topic %q: device wildcard \"+\" is required", cfg.Topic)
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 30
	}
	if log == nil {
		log = slog.Default()
	}

	return &Collector{
		cfg:      cfg,
		ingester: ingester,
		log:      log,
		deviceAt: deviceAt,
		levels:   levels,
	}, nil
}

// DeviceFromTopic извлекает идентификатор устройства из имени топика
func (c *Collector) DeviceFromTopic(topic string) (string, error) {
	names := strings.Split(topic, "/")
	if len(names) != len(c.levels) {
		return "", fmt.Errorf("%w: %q", ErrTopicMismatch, topic)
	}
	for i, level := range c.levels {
		if i != c.deviceAt && level != names[i] {
			return "", fmt.Errorf("%w: %q", ErrTopicMismatch, topic)
		}
	}
	return names[c.deviceAt], nil
}

// HandleMessage разбирает сообщение и сохраняет показание
func (c *Collector) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	deviceID, err := c.DeviceFromTopic(topic)
	if err != nil {
		return err
	}

	var reading models.RawReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		metrics.ReadingsDropped.WithLabelValues("undecodable").Inc()
		return fmt.Errorf("device %s: decode payload: %w", deviceID, err)
	}

	key, err := c.ingester.Ingest(ctx, deviceID, reading, Transport)
	if err != nil {
		return fmt.Errorf("device %s: %w", deviceID, err)
	}

	c.log.Debug("reading ingested", "device", deviceID, "key", key)
	return nil
}

// Run подключается к брокеру и обрабатывает сообщения до отмены ctx
func (c *Collector) Run(ctx context.Context) error {
	u, err := url.Parse(c.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("invalid broker url: %w", err)
	}

	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: false,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.log.Info("mqtt connection up", "broker", c.cfg.BrokerURL)
			sub := &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: c.cfg.Topic, QoS: c.cfg.QoS}},
			}
			if _, err := cm.Subscribe(ctx, sub); err != nil {
				c.log.Error("mqtt subscribe failed", "topic", c.cfg.Topic, "error", err)
			}
		},
		OnConnectError: func(err error) {
			c.log.Warn("mqtt connection attempt failed", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					if err := c.HandleMessage(ctx, pr.Packet.Topic, pr.Packet.Payload); err != nil {
						c.log.Warn("mqtt message rejected", "topic", pr.Packet.Topic, "error", err)
						return false, err
					}
					return true, nil
				},
			},
			OnClientError: func(err error) {
				c.log.Error("mqtt client error", "error", err)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return fmt.Errorf("failed to start mqtt connection: %w", err)
	}

	<-ctx.Done()
	<-cm.Done()
	c.log.Info("mqtt collector stopped")
	return nil
}

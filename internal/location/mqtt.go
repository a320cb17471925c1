package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"goodzwork-checkin/models"
)

type gpsMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
}

func NewMQTT(cfg models.LocationConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}

// MQTTLocator takes fixes published by a GPS receiver on an MQTT topic.
type MQTTLocator struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
	maxAge  time.Duration
	log     logrus.FieldLogger
	now     func() time.Time

	mu      sync.Mutex
	latest  *models.GeoPosition
	waiters map[chan models.GeoPosition]struct{}
}

func NewMQTTLocator(client mqtt.Client, cfg models.LocationConfig, log logrus.FieldLogger) *MQTTLocator {
	return &MQTTLocator{
		client:  client,
		topic:   cfg.MQTTTopic,
		timeout: cfg.FixTimeout,
		maxAge:  cfg.FixMaxAge,
		log:     log,
		now:     time.Now,
		waiters: make(map[chan models.GeoPosition]struct{}),
	}
}

// Start subscribes to the GPS topic. A refused subscription is reported as
// ErrPermissionDenied.
func (l *MQTTLocator) Start() error {
	token := l.client.Subscribe(l.topic, 1, l.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: subscribe %s: %v", ErrPermissionDenied, l.topic, err)
	}
	l.log.Infof("🛰️  Subscribed to GPS topic %s", l.topic)
	return nil
}

func (l *MQTTLocator) Close() {
	if l.client == nil {
		return
	}
	l.client.Unsubscribe(l.topic).Wait()
	l.client.Disconnect(250)
}

// Locate returns a cached fix younger than the freshness window, otherwise
// waits for the next one.
func (l *MQTTLocator) Locate(ctx context.Context) (models.GeoPosition, error) {
	ch := make(chan models.GeoPosition, 1)

	l.mu.Lock()
	if l.latest != nil && l.now().Sub(l.latest.Timestamp) <= l.maxAge {
		pos := *l.latest
		l.mu.Unlock()
		return pos, nil
	}
	l.waiters[ch] = struct{}{}
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	select {
	case pos := <-ch:
		return pos, nil
	case <-ctx.Done():
		l.mu.Lock()
		delete(l.waiters, ch)
		l.mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.GeoPosition{}, fmt.Errorf("%w after %v", ErrTimeout, l.timeout)
		}
		return models.GeoPosition{}, ctx.Err()
	}
}

func (l *MQTTLocator) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw gpsMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		l.log.Warnf("⚠️  Invalid GPS message: %v", err)
		return
	}
	if err := ValidateCoordinates(raw.Latitude, raw.Longitude); err != nil {
		l.log.Warnf("⚠️  Dropping GPS fix: %v", err)
		return
	}

	pos := models.GeoPosition{
		Latitude:  raw.Latitude,
		Longitude: raw.Longitude,
		Accuracy:  raw.Accuracy,
		Timestamp: l.now(),
	}
	if raw.Timestamp > 0 {
		pos.Timestamp = time.Unix(raw.Timestamp, 0)
	}

	l.mu.Lock()
	l.latest = &pos
	for ch := range l.waiters {
		ch <- pos
		delete(l.waiters, ch)
	}
	l.mu.Unlock()
}

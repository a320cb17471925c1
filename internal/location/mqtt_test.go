package location

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goodzwork-checkin/models"
)

type fakeMessage struct {
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return "kiosk/gps" }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newTestMQTTLocator(timeout, maxAge time.Duration) *MQTTLocator {
	logger, _ := test.NewNullLogger()
	return NewMQTTLocator(nil, models.LocationConfig{
		MQTTTopic:  "kiosk/gps",
		FixTimeout: timeout,
		FixMaxAge:  maxAge,
	}, logger)
}

func TestMQTTLocatorWaitsForNextFix(t *testing.T) {
	l := newTestMQTTLocator(time.Second, time.Minute)

	go func() {
		for {
			l.mu.Lock()
			n := len(l.waiters)
			l.mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		l.handleMessage(nil, fakeMessage{payload: []byte(`{"latitude":10.7769,"longitude":106.7009,"accuracy":6.5,"timestamp":1772438400}`)})
	}()

	pos, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.7769, pos.Latitude)
	assert.Equal(t, 6.5, pos.Accuracy)
	assert.Equal(t, time.Unix(1772438400, 0), pos.Timestamp)
}

func TestMQTTLocatorUsesFreshCachedFix(t *testing.T) {
	l := newTestMQTTLocator(10*time.Millisecond, time.Minute)
	now := time.Unix(1772438400, 0)
	l.now = func() time.Time { return now }

	l.handleMessage(nil, fakeMessage{payload: []byte(`{"latitude":21.03,"longitude":105.78}`)})

	pos, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 21.03, pos.Latitude)
	assert.Equal(t, now, pos.Timestamp)
}

func TestMQTTLocatorIgnoresStaleFix(t *testing.T) {
	l := newTestMQTTLocator(10*time.Millisecond, time.Second)
	l.handleMessage(nil, fakeMessage{payload: []byte(`{"latitude":21.03,"longitude":105.78,"timestamp":1000}`)})

	_, err := l.Locate(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, l.waiters)
}

func TestMQTTLocatorDropsInvalidMessages(t *testing.T) {
	l := newTestMQTTLocator(10*time.Millisecond, time.Minute)
	l.handleMessage(nil, fakeMessage{payload: []byte(`not json`)})
	l.handleMessage(nil, fakeMessage{payload: []byte(`{"latitude":0,"longitude":0}`)})
	l.handleMessage(nil, fakeMessage{payload: []byte(`{"latitude":95,"longitude":10}`)})

	_, err := l.Locate(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestMQTTLocatorHonoursCancel(t *testing.T) {
	l := newTestMQTTLocator(time.Minute, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Locate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

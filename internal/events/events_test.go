package events

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func TestNewAssignsUniqueIDs(t *testing.T) {
	a := New("s1", TypeCaptured, at, CapturePayload{Width: 640, Height: 480})
	b := New("s1", TypeCaptured, at, nil)

	_, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "s1", a.SessionID)
	assert.Equal(t, at, a.At)
}

func TestMultiFansOut(t *testing.T) {
	var got []Type
	rec := Func(func(e Event) { got = append(got, e.Type) })

	Multi{rec, Nop{}, rec}.Publish(New("s1", TypeSuccess, at, nil))
	assert.Equal(t, []Type{TypeSuccess, TypeSuccess}, got)
}

func TestConsoleDrawsProgress(t *testing.T) {
	var out bytes.Buffer
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	c := NewConsole(&out, logger)

	c.Publish(New("s1", TypePresenceProgress, at, ProgressPayload{Progress: 0.5}))
	require.NotNil(t, c.bar)
	assert.Contains(t, out.String(), "50/100")

	c.Publish(New("s1", TypePresenceState, at, StatePayload{State: "idle"}))
	assert.Nil(t, c.bar)

	c.Publish(New("s1", TypeFeedback, at, map[string]string{"reason": "low_confidence"}))
	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.WarnLevel, last.Level)
	assert.Equal(t, "attendance.feedback", last.Data["event"])
	assert.True(t, strings.Contains(last.Message, "low_confidence"))
}

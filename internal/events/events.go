// Package events fans session activity out to displays and other listeners.
package events

import (
	"time"

	"github.com/google/uuid"

	"goodzwork-checkin/models"
)

type Type string

const (
	TypeSessionStarted   Type = "session.started"
	TypeSessionEnded     Type = "session.ended"
	TypeLocationChecked  Type = "location.checked"
	TypeDetectorLoaded   Type = "detector.loaded"
	TypePresenceState    Type = "presence.state"
	TypePresenceProgress Type = "presence.progress"
	TypeCaptured         Type = "capture.taken"
	TypeSubmitting       Type = "attendance.submitting"
	TypeSuccess          Type = "attendance.success"
	TypeFeedback         Type = "attendance.feedback"
	TypeFeedbackCleared  Type = "attendance.feedback_cleared"
	TypeToday            Type = "attendance.today"
	TypeLogs             Type = "attendance.logs"
)

type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Type      Type      `json:"type"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload,omitempty"`
}

func New(sessionID string, t Type, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      t,
		At:        at,
		Payload:   payload,
	}
}

// ============================================================
// PAYLOADS
// ============================================================

type LocationPayload struct {
	Position models.GeoPosition    `json:"position"`
	Result   models.GeofenceResult `json:"result"`
}

type DetectorPayload struct {
	Kind  string `json:"kind"`
	Model string `json:"model"`
}

type StatePayload struct {
	State string `json:"state"`
}

type ProgressPayload struct {
	Progress float64 `json:"progress"`
}

type CapturePayload struct {
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
}

type SubmitPayload struct {
	Type models.AttendanceType `json:"type"`
}

type EndedPayload struct {
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// ============================================================
// PUBLISHERS
// ============================================================

// Publisher must not block; it is called from the session loop.
type Publisher interface {
	Publish(Event)
}

type Nop struct{}

func (Nop) Publish(Event) {}

type Multi []Publisher

func (m Multi) Publish(e Event) {
	for _, p := range m {
		p.Publish(e)
	}
}

// Func adapts a function to a Publisher.
type Func func(Event)

func (f Func) Publish(e Event) { f(e) }

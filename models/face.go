package models

import (
	"image"
	"time"
)

// ============================================================
// FACE DETECTION
// ============================================================

// FaceBox is one detection on one frame, in frame pixels.
type FaceBox struct {
	X          int
	Y          int
	Width      int
	Height     int
	Confidence float64
}

func (b FaceBox) Center() image.Point {
	return image.Pt(b.X+b.Width/2, b.Y+b.Height/2)
}

func (b FaceBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// ============================================================
// CAPTURE
// ============================================================

// CaptureResult is an encoded still frame ready for submission.
type CaptureResult struct {
	Image      string // data:image/jpeg;base64,...
	Width      int
	Height     int
	CapturedAt time.Time
}

// ============================================================
// FEEDBACK
// ============================================================

type FeedbackKind string

const (
	FeedbackWarning FeedbackKind = "warning"
	FeedbackError   FeedbackKind = "error"
)

type FeedbackReason string

const (
	ReasonFaceNotEnrolled FeedbackReason = "face_not_enrolled"
	ReasonLowConfidence   FeedbackReason = "low_confidence"
	ReasonNoFaceDetected  FeedbackReason = "no_face_detected"
	ReasonUnauthorized    FeedbackReason = "unauthorized"
	ReasonGeneric         FeedbackReason = "generic"
)

type AttendanceFeedback struct {
	Kind       FeedbackKind   `json:"kind"`
	Reason     FeedbackReason `json:"reason"`
	Message    string         `json:"message"`
	Confidence string         `json:"confidence,omitempty"` // e.g. "73.4%"
}

package models

import (
	"fmt"
	"time"
)

// ============================================================
// GEOLOCATION
// ============================================================

type GeoPosition struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

type LocationCheckRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type GeofenceResult struct {
	Allowed     bool    `json:"allowed"`
	Distance    float64 `json:"distance"`
	MaxDistance float64 `json:"max_distance"`
	Message     string  `json:"message"`
}

type CompanyLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
}

// ============================================================
// CHECK-IN / CHECK-OUT
// ============================================================

type AttendanceRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	FaceImage string  `json:"face_image"`
}

type AttendanceResult struct {
	Type         AttendanceType   `json:"type,omitempty"`
	Message      string           `json:"message"`
	UserName     string           `json:"user_name"`
	Time         string           `json:"time"`
	Status       AttendanceStatus `json:"status"`
	Confidence   string           `json:"confidence"`
	WorkingHours string           `json:"working_hours,omitempty"`
	LogID        string           `json:"log_id"`
}

// String returns a formatted representation of the result
func (r *AttendanceResult) String() string {
	if r == nil {
		return "nil"
	}
	return fmt.Sprintf("Attendance{Name: %s, Type: %s, Time: %s, Status: %s, Confidence: %s}",
		r.UserName, r.Type, r.Time, r.Status, r.Confidence)
}

// ============================================================
// STATUS & LOGS
// ============================================================

type TodayStatus struct {
	CheckedIn      bool             `json:"checked_in"`
	CheckedOut     bool             `json:"checked_out"`
	CheckinTime    *string          `json:"checkin_time"`
	CheckoutTime   *string          `json:"checkout_time"`
	CheckinStatus  AttendanceStatus `json:"checkin_status"`
	CheckoutStatus AttendanceStatus `json:"checkout_status"`
}

// NextType reports which submission today's record calls for.
func (s TodayStatus) NextType() AttendanceType {
	if s.CheckedIn && !s.CheckedOut {
		return CheckOut
	}
	return CheckIn
}

// Complete is true once both check-in and check-out are recorded.
func (s TodayStatus) Complete() bool {
	return s.CheckedIn && s.CheckedOut
}

type AttendanceLog struct {
	ID             string           `json:"id"`
	Type           AttendanceType   `json:"type"`
	Status         AttendanceStatus `json:"status"`
	Timestamp      string           `json:"timestamp"`
	Location       *GeoPosition     `json:"location"`
	FaceConfidence *float64         `json:"face_confidence"`
	Notes          *string          `json:"notes"`
}

package attendance

import (
	"errors"
	"regexp"
	"strings"

	"goodzwork-checkin/internal/api"
	"goodzwork-checkin/models"
)

const (
	msgFaceNotEnrolled = "Bạn chưa đăng ký khuôn mặt. Vui lòng liên hệ quản trị viên để đăng ký."
	msgLowConfidence   = "Khuôn mặt không khớp. Vui lòng thử lại."
	msgNoFaceDetected  = "Không phát hiện được khuôn mặt. Vui lòng nhìn thẳng vào camera."
	msgUnauthorized    = "Phiên đăng nhập đã hết hạn. Vui lòng đăng nhập lại."
	msgGeneric         = "Chấm công thất bại"
)

var confidencePattern = regexp.MustCompile(`độ tin cậy:\s*([\d.]+%)`)

// ExtractConfidence pulls the percentage out of a backend detail such as
// "Khuôn mặt không khớp (độ tin cậy: 73.4%)".
func ExtractConfidence(detail string) string {
	m := confidencePattern.FindStringSubmatch(detail)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// Classify maps a failed submission to user feedback. A structured error code
// wins over the detail text.
func Classify(err error) models.AttendanceFeedback {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return models.AttendanceFeedback{
			Kind:    models.FeedbackError,
			Reason:  models.ReasonGeneric,
			Message: msgGeneric,
		}
	}

	if errors.Is(apiErr, api.ErrUnauthorized) {
		return models.AttendanceFeedback{
			Kind:    models.FeedbackError,
			Reason:  models.ReasonUnauthorized,
			Message: msgUnauthorized,
		}
	}

	reason := reasonFromCode(apiErr.Code)
	if reason == "" {
		reason = reasonFromDetail(apiErr.Detail)
	}

	switch reason {
	case models.ReasonFaceNotEnrolled:
		return models.AttendanceFeedback{
			Kind:    models.FeedbackError,
			Reason:  reason,
			Message: msgFaceNotEnrolled,
		}

	case models.ReasonLowConfidence:
		fb := models.AttendanceFeedback{
			Kind:       models.FeedbackWarning,
			Reason:     reason,
			Message:    msgLowConfidence,
			Confidence: ExtractConfidence(apiErr.Detail),
		}
		if fb.Confidence != "" {
			fb.Message = "Khuôn mặt không khớp (độ tin cậy: " + fb.Confidence + "). Vui lòng thử lại."
		}
		return fb

	case models.ReasonNoFaceDetected:
		return models.AttendanceFeedback{
			Kind:    models.FeedbackWarning,
			Reason:  reason,
			Message: msgNoFaceDetected,
		}
	}

	msg := apiErr.Detail
	if msg == "" {
		msg = msgGeneric
	}
	return models.AttendanceFeedback{
		Kind:    models.FeedbackError,
		Reason:  models.ReasonGeneric,
		Message: msg,
	}
}

func reasonFromCode(code string) models.FeedbackReason {
	switch code {
	case models.CodeFaceNotEnrolled:
		return models.ReasonFaceNotEnrolled
	case models.CodeLowConfidence:
		return models.ReasonLowConfidence
	case models.CodeNoFaceDetected:
		return models.ReasonNoFaceDetected
	}
	return ""
}

// reasonFromDetail matches the backend's verbatim Vietnamese substrings.
func reasonFromDetail(detail string) models.FeedbackReason {
	switch {
	case strings.Contains(detail, models.DetailFaceNotEnrolled):
		return models.ReasonFaceNotEnrolled
	case strings.Contains(detail, models.DetailConfidence):
		return models.ReasonLowConfidence
	case strings.Contains(detail, models.DetailNoFaceDetected):
		return models.ReasonNoFaceDetected
	}
	return ""
}

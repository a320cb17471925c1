package models

// ============================================================
// API ENDPOINTS
// ============================================================

const (
	PathCheckLocation   = "/api/attendance/check-location"
	PathCheckIn         = "/api/attendance/checkin"
	PathCheckOut        = "/api/attendance/checkout"
	PathToday           = "/api/attendance/today"
	PathLogs            = "/api/attendance/logs"
	PathCompanyLocation = "/api/attendance/company-location"
)

// ============================================================
// BACKEND ERROR VOCABULARY
// ============================================================

// Substrings of the backend's `detail` messages. They are matched verbatim and
// must not be translated.
const (
	DetailFaceNotEnrolled = "chưa đăng ký khuôn mặt"
	DetailConfidence      = "độ tin cậy"
	DetailNoFaceDetected  = "Không phát hiện được khuôn mặt"
)

// Structured error codes, preferred over the substrings when present.
const (
	CodeFaceNotEnrolled = "FACE_NOT_ENROLLED"
	CodeLowConfidence   = "FACE_LOW_CONFIDENCE"
	CodeNoFaceDetected  = "FACE_NOT_DETECTED"
)

// ============================================================
// ATTENDANCE ENUMS
// ============================================================

type AttendanceType string

const (
	CheckIn  AttendanceType = "CHECK_IN"
	CheckOut AttendanceType = "CHECK_OUT"
)

type AttendanceStatus string

const (
	StatusOnTime     AttendanceStatus = "ON_TIME"
	StatusLate       AttendanceStatus = "LATE"
	StatusEarlyLeave AttendanceStatus = "EARLY_LEAVE"
	StatusAbsent     AttendanceStatus = "ABSENT"
)

package models

import "time"

// ============================================================
// CONFIGURATION
// ============================================================

type Config struct {
	API       APIConfig
	Location  LocationConfig
	Face      FaceRecognitionConfig
	Presence  PresenceConfig
	Feedback  FeedbackConfig
	Camera    CameraConfig
	WebRTC    WebRTCConfig
	Events    EventsConfig
	HTTP      HTTPConfig
	LogLevel  string
	LogFormat string
}

type APIConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// ============================================================
// GEOLOCATION
// ============================================================

type LocationConfig struct {
	Locator         string // static | mqtt
	Geofence        string // remote | local
	Latitude        float64
	Longitude       float64
	Accuracy        float64
	HasFix          bool
	FixTimeout      time.Duration
	FixMaxAge       time.Duration
	OfficesFilePath string
	MQTTBroker      string
	MQTTClientID    string
	MQTTTopic       string
}

// ============================================================
// FACE DETECTION
// ============================================================

type FaceRecognitionConfig struct {
	MinFaceSize     int
	CenterTolerance int
	InputSize       int
	ScoreThreshold  float64
	JPEGQuality     int // 85-95 recommended
	ModelSources    []ModelSource
	ModelCacheDir   string
}

const (
	ModelKindDNN     = "dnn"
	ModelKindCascade = "cascade"
)

// ModelSource is one candidate detector model. Model and Config may be local
// paths or http(s) URLs.
type ModelSource struct {
	Kind   string `json:"kind" yaml:"kind"` // dnn | cascade
	Model  string `json:"model" yaml:"model"`
	Config string `json:"config,omitempty" yaml:"config,omitempty"`
}

// ============================================================
// AUTO CAPTURE
// ============================================================

type PresenceConfig struct {
	AutoAttendance   bool
	SampleInterval   time.Duration
	ProgressInterval time.Duration
	TargetHold       time.Duration
	MaxMisses        int
}

type FeedbackConfig struct {
	DisplayWindow time.Duration
}

// ============================================================
// FRAME SOURCES
// ============================================================

type CameraConfig struct {
	Source       string // webcam | webrtc
	Device       int
	Width        int
	Height       int
	MaxStillSide int
}

type WebRTCConfig struct {
	ICEServers      []string
	PLIInterval     time.Duration
	SampleBufferMax uint16
	MaxDecodeWidth  int
	MaxDecodeHeight int
	DecodeTimeout   time.Duration
	FFmpegPath      string
}

// ============================================================
// EVENTS & HTTP
// ============================================================

type EventsConfig struct {
	RabbitMQURL  string
	Exchange     string
	Console      bool
	BufferLength int
}

type HTTPConfig struct {
	Addr string
}

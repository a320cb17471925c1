// Package config builds the agent configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"goodzwork-checkin/internal/events"
	"goodzwork-checkin/internal/webrtc"
	"goodzwork-checkin/models"
)

const (
	LocatorStatic  = "static"
	LocatorMQTT    = "mqtt"
	GeofenceRemote = "remote"
	GeofenceLocal  = "local"
	CameraWebcam   = "webcam"
	CameraWebRTC   = "webrtc"
)

// Default model sources: the OpenCV SSD face detector, then the bundled
// Haar cascade.
var DefaultModelSources = []models.ModelSource{
	{
		Kind:   models.ModelKindDNN,
		Model:  "https://raw.githubusercontent.com/opencv/opencv_3rdparty/dnn_samples_face_detector_20170830/res10_300x300_ssd_iter_140000.caffemodel",
		Config: "https://raw.githubusercontent.com/opencv/opencv/4.x/samples/dnn/face_detector/deploy.prototxt",
	},
	{
		Kind:  models.ModelKindCascade,
		Model: "https://raw.githubusercontent.com/opencv/opencv/4.x/data/haarcascades/haarcascade_frontalface_default.xml",
	},
}

func Default() models.Config {
	return models.Config{
		API: models.APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Location: models.LocationConfig{
			Locator:         LocatorStatic,
			Geofence:        GeofenceRemote,
			FixTimeout:      10 * time.Second,
			FixMaxAge:       5 * time.Second,
			OfficesFilePath: "config/offices.json",
			MQTTBroker:      "tcp://localhost:1883",
			MQTTClientID:    "goodzwork-kiosk",
			MQTTTopic:       "kiosk/gps",
		},
		Face: models.FaceRecognitionConfig{
			MinFaceSize:     80,
			CenterTolerance: 100,
			InputSize:       320,
			ScoreThreshold:  0.5,
			JPEGQuality:     90,
			ModelSources:    DefaultModelSources,
			ModelCacheDir:   defaultCacheDir(),
		},
		Presence: models.PresenceConfig{
			AutoAttendance:   true,
			SampleInterval:   200 * time.Millisecond,
			ProgressInterval: 50 * time.Millisecond,
			TargetHold:       time.Second,
			MaxMisses:        2,
		},
		Feedback: models.FeedbackConfig{
			DisplayWindow: 3 * time.Second,
		},
		Camera: models.CameraConfig{
			Source:       CameraWebcam,
			Width:        640,
			Height:       480,
			MaxStillSide: 1280,
		},
		WebRTC: webrtc.DefaultConfig(),
		Events: models.EventsConfig{
			Exchange:     events.DefaultExchange,
			Console:      true,
			BufferLength: 64,
		},
		HTTP: models.HTTPConfig{
			Addr: ":8088",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load overlays the environment on Default. Unset or unparsable numeric
// values keep their default.
func Load() (models.Config, error) {
	cfg := Default()

	cfg.API.BaseURL = envString("API_BASE_URL", cfg.API.BaseURL)
	cfg.API.AccessToken = os.Getenv("API_ACCESS_TOKEN")
	cfg.API.Timeout = envDuration("API_TIMEOUT", cfg.API.Timeout)

	loc := &cfg.Location
	loc.Locator = envString("LOCATOR", loc.Locator)
	loc.Geofence = envString("GEOFENCE", loc.Geofence)
	lat, latOK := envFloat("KIOSK_LATITUDE")
	lon, lonOK := envFloat("KIOSK_LONGITUDE")
	if latOK && lonOK {
		loc.Latitude, loc.Longitude, loc.HasFix = lat, lon, true
	}
	if acc, ok := envFloat("KIOSK_ACCURACY"); ok {
		loc.Accuracy = acc
	}
	loc.FixTimeout = envDuration("LOCATION_TIMEOUT", loc.FixTimeout)
	loc.FixMaxAge = envDuration("LOCATION_MAX_AGE", loc.FixMaxAge)
	loc.OfficesFilePath = envString("OFFICES_FILE", loc.OfficesFilePath)
	loc.MQTTBroker = envString("MQTT_BROKER", loc.MQTTBroker)
	loc.MQTTClientID = envString("MQTT_CLIENT_ID", loc.MQTTClientID)
	loc.MQTTTopic = envString("MQTT_TOPIC", loc.MQTTTopic)

	face := &cfg.Face
	face.MinFaceSize = envInt("FACE_MIN_SIZE", face.MinFaceSize)
	face.CenterTolerance = envInt("FACE_CENTER_TOLERANCE", face.CenterTolerance)
	face.InputSize = envInt("DETECTOR_INPUT_SIZE", face.InputSize)
	if v, ok := envFloat("DETECTOR_SCORE_THRESHOLD"); ok && v > 0 && v < 1 {
		face.ScoreThreshold = v
	}
	face.JPEGQuality = envInt("JPEG_QUALITY", face.JPEGQuality)
	face.ModelCacheDir = envString("MODEL_CACHE_DIR", face.ModelCacheDir)
	if s := os.Getenv("DETECTOR_SOURCES"); s != "" {
		sources, err := ParseModelSources(s)
		if err != nil {
			return cfg, fmt.Errorf("DETECTOR_SOURCES: %w", err)
		}
		face.ModelSources = sources
	}

	p := &cfg.Presence
	p.AutoAttendance = envBool("AUTO_ATTENDANCE", p.AutoAttendance)
	p.SampleInterval = envDuration("SAMPLE_INTERVAL", p.SampleInterval)
	p.ProgressInterval = envDuration("PROGRESS_INTERVAL", p.ProgressInterval)
	p.TargetHold = envDuration("TARGET_HOLD", p.TargetHold)
	p.MaxMisses = envInt("MAX_MISSES", p.MaxMisses)
	cfg.Feedback.DisplayWindow = envDuration("FEEDBACK_WINDOW", cfg.Feedback.DisplayWindow)

	cam := &cfg.Camera
	cam.Source = envString("CAMERA_SOURCE", cam.Source)
	if v, err := strconv.Atoi(os.Getenv("CAMERA_DEVICE")); err == nil && v >= 0 {
		cam.Device = v
	}
	cam.Width = envInt("CAMERA_WIDTH", cam.Width)
	cam.Height = envInt("CAMERA_HEIGHT", cam.Height)
	cam.MaxStillSide = envInt("CAPTURE_MAX_SIDE", cam.MaxStillSide)

	rtc := &cfg.WebRTC
	if s := os.Getenv("ICE_SERVERS"); s != "" {
		rtc.ICEServers = splitList(s)
	}
	rtc.PLIInterval = envDuration("WEBRTC_PLI_INTERVAL", rtc.PLIInterval)
	rtc.MaxDecodeWidth = envInt("WEBRTC_MAX_DECODE_WIDTH", rtc.MaxDecodeWidth)
	rtc.MaxDecodeHeight = envInt("WEBRTC_MAX_DECODE_HEIGHT", rtc.MaxDecodeHeight)
	rtc.DecodeTimeout = envDuration("WEBRTC_DECODE_TIMEOUT", rtc.DecodeTimeout)
	rtc.FFmpegPath = envString("FFMPEG_PATH", rtc.FFmpegPath)

	ev := &cfg.Events
	ev.RabbitMQURL = os.Getenv("RABBITMQ_URL")
	ev.Exchange = envString("RABBITMQ_EXCHANGE", ev.Exchange)
	ev.Console = envBool("CONSOLE_EVENTS", ev.Console)
	ev.BufferLength = envInt("EVENT_BUFFER", ev.BufferLength)

	cfg.HTTP.Addr = envString("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envString("LOG_FORMAT", cfg.LogFormat)

	return cfg, Validate(cfg)
}

// Validate checks the enumerated settings.
func Validate(cfg models.Config) error {
	switch cfg.Location.Locator {
	case LocatorStatic, LocatorMQTT:
	default:
		return fmt.Errorf("unknown locator %q (want %s or %s)", cfg.Location.Locator, LocatorStatic, LocatorMQTT)
	}
	switch cfg.Location.Geofence {
	case GeofenceRemote, GeofenceLocal:
	default:
		return fmt.Errorf("unknown geofence %q (want %s or %s)", cfg.Location.Geofence, GeofenceRemote, GeofenceLocal)
	}
	switch cfg.Camera.Source {
	case CameraWebcam, CameraWebRTC:
	default:
		return fmt.Errorf("unknown camera source %q (want %s or %s)", cfg.Camera.Source, CameraWebcam, CameraWebRTC)
	}
	if cfg.Location.Geofence == GeofenceRemote && cfg.API.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required for the remote geofence")
	}
	if len(cfg.Face.ModelSources) == 0 {
		return fmt.Errorf("no detector model sources configured")
	}
	return nil
}

// ParseModelSources reads a comma separated list of kind=model[;config]
// entries, in order of preference.
func ParseModelSources(s string) ([]models.ModelSource, error) {
	var sources []models.ModelSource
	for _, entry := range splitList(s) {
		kind, rest, ok := strings.Cut(entry, "=")
		if !ok || rest == "" {
			return nil, fmt.Errorf("malformed source %q", entry)
		}
		kind = strings.ToLower(strings.TrimSpace(kind))
		if kind != models.ModelKindDNN && kind != models.ModelKindCascade {
			return nil, fmt.Errorf("unknown detector kind %q", kind)
		}
		model, conf, _ := strings.Cut(rest, ";")
		src := models.ModelSource{Kind: kind, Model: strings.TrimSpace(model), Config: strings.TrimSpace(conf)}
		if src.Kind == models.ModelKindDNN && src.Config == "" {
			return nil, fmt.Errorf("dnn source %q needs a config file", src.Model)
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("empty source list")
	}
	return sources, nil
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/goodzwork-checkin/models"
	}
	return ".models"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string) (float64, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"goodzwork-checkin/internal/api"
	"goodzwork-checkin/internal/camera"
	"goodzwork-checkin/internal/camera/webcam"
	"goodzwork-checkin/internal/checkin"
	"goodzwork-checkin/internal/config"
	"goodzwork-checkin/internal/detector"
	"goodzwork-checkin/internal/location"
	"goodzwork-checkin/internal/logging"
	"goodzwork-checkin/internal/modelcache"
	"goodzwork-checkin/internal/webrtc"
	"goodzwork-checkin/models"
)

// ============================================================
// COMPONENT WIRING
// ============================================================

type companyLocator interface {
	CompanyLocation(ctx context.Context) (*models.CompanyLocation, error)
}

// agent holds the long-lived collaborators shared by every attempt.
type agent struct {
	cfg     models.Config
	log     *logrus.Logger
	api     *api.APIClient
	gate    *location.Gate
	company companyLocator
	ingest  *webrtc.Ingest
	closers []func()
}

func newAgent(cfg models.Config, log *logrus.Logger) (*agent, error) {
	a := &agent{
		cfg: cfg,
		log: log,
		api: api.NewAPIClient(cfg.API, logging.Component(log, "api")),
	}

	locator, err := a.newLocator()
	if err != nil {
		a.Close()
		return nil, err
	}
	checker, err := a.newGeofence()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.gate = location.NewGate(locator, checker, logging.Component(log, "location"))

	if cfg.Camera.Source == config.CameraWebRTC {
		a.ingest = webrtc.NewIngest(cfg.WebRTC, logging.Component(log, "webrtc"))
		a.closers = append(a.closers, func() { a.ingest.Close() })
	}
	return a, nil
}

func (a *agent) newLocator() (location.Locator, error) {
	if a.cfg.Location.Locator != config.LocatorMQTT {
		return location.NewStaticLocator(a.cfg.Location), nil
	}

	client, err := location.NewMQTT(a.cfg.Location)
	if err != nil {
		return nil, err
	}
	l := location.NewMQTTLocator(client, a.cfg.Location, logging.Component(a.log, "gps"))
	if err := l.Start(); err != nil {
		l.Close()
		return nil, err
	}
	a.closers = append(a.closers, l.Close)
	return l, nil
}

func (a *agent) newGeofence() (location.GeofenceChecker, error) {
	if a.cfg.Location.Geofence != config.GeofenceLocal {
		a.company = a.api
		return a.api, nil
	}

	offices := location.NewOfficeGeofence(a.cfg.Location.OfficesFilePath, logging.Component(a.log, "offices"))
	if err := offices.Load(); err != nil {
		return nil, err
	}
	a.company = offices
	return offices, nil
}

func (a *agent) openCamera() (camera.Source, error) {
	if a.ingest != nil {
		return camera.Shared(a.ingest), nil
	}
	cam, err := webcam.Open(a.cfg.Camera, logging.Component(a.log, "camera"))
	if err != nil {
		return nil, err
	}
	return cam, nil
}

func (a *agent) loadDetector(ctx context.Context) (checkin.Detector, error) {
	log := logging.Component(a.log, "detector")
	resolver := modelcache.New(a.cfg.Face.ModelCacheDir, nil, os.Stderr, log)
	det, err := detector.Load(ctx, a.cfg.Face, resolver, log)
	if err != nil {
		return nil, err
	}
	return det, nil
}

func (a *agent) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// userMessage is the line shown to the person at the kiosk when an attempt
// ends without a recorded attendance.
func userMessage(err error) string {
	var rejected *checkin.RejectedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rejected):
		return rejected.Admission.Result.Message
	case errors.Is(err, checkin.ErrDayComplete):
		return "Bạn đã chấm công đủ hôm nay"
	case errors.Is(err, detector.ErrModelUnavailable):
		return "Không thể tải mô hình nhận diện khuôn mặt"
	case errors.Is(err, location.ErrNoGeoSupport),
		errors.Is(err, location.ErrPermissionDenied),
		errors.Is(err, location.ErrTimeout),
		errors.Is(err, location.ErrInvalidCoordinates):
		return location.UserMessage(err)
	default:
		return fmt.Sprintf("Chấm công thất bại: %v", err)
	}
}

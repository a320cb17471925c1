// Package checkin runs one attendance attempt: location admission, face
// presence, auto capture and submission, all on a single event loop.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"goodzwork-checkin/internal/attendance"
	"goodzwork-checkin/internal/camera"
	"goodzwork-checkin/internal/events"
	"goodzwork-checkin/internal/location"
	"goodzwork-checkin/internal/loop"
	"goodzwork-checkin/internal/presence"
	"goodzwork-checkin/models"
)

var (
	ErrDayComplete    = errors.New("attendance already complete for today")
	ErrNotRunning     = errors.New("session is not running")
	ErrCaptureRefused = errors.New("capture refused while a submission or feedback is pending")

	ErrGeofenceRejected = errors.New("geofence rejected")
)

// RejectedError is returned when the device is outside the allowed area. No
// camera or detector is touched in that case.
type RejectedError struct {
	Admission *location.Admission
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("outside allowed area (%.0fm): %s", e.Admission.Result.Distance, e.Admission.Result.Message)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrGeofenceRejected
}

// ============================================================
// DEPENDENCIES
// ============================================================

type Admitter interface {
	Admit(ctx context.Context) (*location.Admission, error)
}

type Detector interface {
	presence.Detector
	Close()
}

type Deps struct {
	Backend      attendance.Backend
	Gate         Admitter
	LoadDetector func(ctx context.Context) (Detector, error)
	OpenCamera   func() (camera.Source, error)
	Encoder      *camera.Encoder
	Events       events.Publisher
}

// ============================================================
// SESSION
// ============================================================

type Phase string

const (
	PhaseLocating Phase = "locating"
	PhaseLoading  Phase = "loading"
	PhaseScanning Phase = "scanning"
	PhaseDone     Phase = "done"
)

// Status is a point-in-time copy of the session, safe to read from any
// goroutine.
type Status struct {
	SessionID      string                     `json:"session_id"`
	Phase          Phase                      `json:"phase"`
	State          string                     `json:"state"`
	Progress       float64                    `json:"progress"`
	AutoAttendance bool                       `json:"auto_attendance"`
	ModelReady     bool                       `json:"model_ready"`
	Processing     bool                       `json:"processing"`
	NextType       models.AttendanceType      `json:"next_type"`
	Position       *models.GeoPosition        `json:"position,omitempty"`
	Geofence       *models.GeofenceResult     `json:"geofence,omitempty"`
	Feedback       *models.AttendanceFeedback `json:"feedback,omitempty"`
	Today          *models.TodayStatus        `json:"today,omitempty"`
	Result         *models.AttendanceResult   `json:"result,omitempty"`
	Error          string                     `json:"error,omitempty"`
}

type Session struct {
	ID   string
	cfg  models.Config
	deps Deps
	log  logrus.FieldLogger

	// Loop-owned.
	sched      loop.Scheduler
	capture    *presence.AutoCapture
	controller *attendance.Controller
	detector   Detector
	probe      presence.Probe
	finish     func()
	result     *models.AttendanceResult
	err        error

	mu     sync.Mutex
	status Status
	posts  loop.Scheduler
	done   chan struct{}
}

func NewSession(cfg models.Config, deps Deps, log logrus.FieldLogger) *Session {
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	id := uuid.NewString()
	return &Session{
		ID:   id,
		cfg:  cfg,
		deps: deps,
		log:  log.WithField("session", id[:8]),
		status: Status{
			SessionID:      id,
			Phase:          PhaseLocating,
			State:          presence.Idle.String(),
			AutoAttendance: cfg.Presence.AutoAttendance,
			NextType:       models.CheckIn,
		},
		done: make(chan struct{}),
	}
}

// Run performs one attempt and returns the recorded attendance. It ends on
// success, on a fatal error or when ctx is cancelled.
func (s *Session) Run(ctx context.Context) (*models.AttendanceResult, error) {
	defer close(s.done)
	s.emit(events.TypeSessionStarted, nil)

	today, adm, err := s.precheck(ctx)
	if err != nil {
		return nil, s.end(err)
	}

	src, err := s.deps.OpenCamera()
	if err != nil {
		return nil, s.end(fmt.Errorf("open camera: %w", err))
	}
	defer src.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	l := loop.New()
	l.Post(func() {
		s.begin(runCtx, l, src, adm, today, cancel)
	})
	_ = l.Run(runCtx)
	s.teardown()

	if s.result == nil && s.err == nil {
		s.err = ctx.Err()
	}
	return s.result, s.end(s.err)
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// precheck reads today's record and asks for location admission.
func (s *Session) precheck(ctx context.Context) (*models.TodayStatus, *location.Admission, error) {
	today, err := s.deps.Backend.Today(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("today status: %w", err)
	}
	s.update(func(st *Status) {
		st.Today = today
		st.NextType = today.NextType()
	})
	s.emit(events.TypeToday, today)
	if today.Complete() {
		return today, nil, ErrDayComplete
	}

	adm, err := s.deps.Gate.Admit(ctx)
	if err != nil {
		return today, nil, err
	}
	s.update(func(st *Status) {
		st.Position = &adm.Position
		st.Geofence = &adm.Result
	})
	s.emit(events.TypeLocationChecked, events.LocationPayload{Position: adm.Position, Result: adm.Result})

	if !adm.Allowed() {
		s.log.Warnf("📍 %s", adm.Result.Message)
		return today, adm, &RejectedError{Admission: adm}
	}
	s.log.Infof("📍 %s", adm.Result.Message)
	return today, adm, nil
}

// ============================================================
// LOOP
// ============================================================

// begin wires the loop-owned machines and starts the detector load. It runs
// on the loop; finish stops the loop.
func (s *Session) begin(ctx context.Context, sched loop.Scheduler, src camera.Source, adm *location.Admission, today *models.TodayStatus, finish func()) {
	s.sched = sched
	s.finish = finish

	snap := camera.Snapshotter{Source: src, Encoder: s.deps.Encoder, Now: sched.Now}

	s.capture = presence.NewAutoCapture(s.cfg.Presence, sched,
		presence.ProbeFunc(s.present), snap,
		presence.Hooks{
			OnState:    s.onState,
			OnProgress: s.onProgress,
			OnCapture:  s.onCapture,
		}, s.log)

	s.controller = attendance.NewController(ctx, s.deps.Backend, s.capture, sched, s.cfg.Feedback,
		attendance.Hooks{
			OnSubmit:          s.onSubmit,
			OnSuccess:         s.onSuccess,
			OnFeedback:        s.onFeedback,
			OnFeedbackCleared: s.onFeedbackCleared,
			OnToday:           s.onToday,
			OnLogs:            s.onLogs,
		}, s.log)
	s.controller.SetPosition(adm.Position)
	s.controller.SetToday(today)

	s.update(func(st *Status) { st.Phase = PhaseLoading })
	s.mu.Lock()
	s.posts = sched
	s.mu.Unlock()

	s.log.Info("🔄 Loading face detector...")
	sched.Go(func() func() {
		det, err := s.deps.LoadDetector(ctx)
		return func() { s.onDetector(det, src, err) }
	})
}

func (s *Session) onDetector(det Detector, src camera.Source, err error) {
	if err != nil {
		s.fail(fmt.Errorf("load detector: %w", err))
		return
	}
	if s.finish == nil {
		det.Close()
		return
	}

	s.detector = det
	s.probe = presence.NewSampler(det, s.cfg.Face, s.log).Probe(src)
	s.update(func(st *Status) {
		st.Phase = PhaseScanning
		st.ModelReady = true
	})
	s.emit(events.TypeDetectorLoaded, nil)
	s.capture.SetModelReady(true)
}

func (s *Session) present() bool {
	if s.probe == nil {
		return false
	}
	return s.probe.Present()
}

func (s *Session) fail(err error) {
	s.log.Errorf("❌ %v", err)
	s.err = err
	s.stop()
}

func (s *Session) stop() {
	if s.capture != nil {
		s.capture.SetAutoAttendance(false)
	}
	if s.finish != nil {
		finish := s.finish
		s.finish = nil
		finish()
	}
}

// teardown runs after the loop has exited.
func (s *Session) teardown() {
	s.mu.Lock()
	s.posts = nil
	s.mu.Unlock()
	if s.detector != nil {
		s.detector.Close()
		s.detector = nil
	}
}

func (s *Session) end(err error) error {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		outcome = "cancelled"
	case errors.Is(err, ErrGeofenceRejected):
		outcome = "rejected"
	case errors.Is(err, ErrDayComplete):
		outcome = "complete"
	default:
		outcome = "failed"
	}

	payload := events.EndedPayload{Outcome: outcome}
	if err != nil {
		payload.Error = err.Error()
	}
	s.update(func(st *Status) {
		st.Phase = PhaseDone
		st.Error = payload.Error
	})
	s.emit(events.TypeSessionEnded, payload)
	return err
}

// ============================================================
// HOOKS
// ============================================================

func (s *Session) onState(state presence.State) {
	s.update(func(st *Status) { st.State = state.String() })
	s.emit(events.TypePresenceState, events.StatePayload{State: state.String()})
}

func (s *Session) onProgress(p float64) {
	s.update(func(st *Status) { st.Progress = p })
	s.emit(events.TypePresenceProgress, events.ProgressPayload{Progress: p})
}

func (s *Session) onCapture(res models.CaptureResult) {
	s.emit(events.TypeCaptured, events.CapturePayload{Width: res.Width, Height: res.Height, CapturedAt: res.CapturedAt})
	s.controller.OnCapture(res)
}

func (s *Session) onSubmit(kind models.AttendanceType) {
	s.update(func(st *Status) { st.Processing = true })
	s.emit(events.TypeSubmitting, events.SubmitPayload{Type: kind})
}

func (s *Session) onSuccess(result *models.AttendanceResult) {
	s.log.Infof("✅ %s recorded for %s at %s (%s)", result.Type, result.UserName, result.Time, result.Status)
	s.result = result
	s.update(func(st *Status) {
		st.Processing = false
		st.Result = result
	})
	s.emit(events.TypeSuccess, result)
	s.stop()
}

func (s *Session) onFeedback(fb models.AttendanceFeedback) {
	s.update(func(st *Status) {
		st.Processing = false
		st.Feedback = &fb
	})
	s.emit(events.TypeFeedback, fb)
}

func (s *Session) onFeedbackCleared() {
	s.update(func(st *Status) { st.Feedback = nil })
	s.emit(events.TypeFeedbackCleared, nil)
}

func (s *Session) onToday(today *models.TodayStatus) {
	s.update(func(st *Status) {
		st.Today = today
		st.NextType = today.NextType()
	})
	s.emit(events.TypeToday, today)
}

func (s *Session) onLogs(logs []models.AttendanceLog) {
	s.emit(events.TypeLogs, logs)
}

// ============================================================
// CONTROL
// ============================================================

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CaptureNow takes a still immediately, skipping presence confirmation.
func (s *Session) CaptureNow(ctx context.Context) error {
	return s.onLoop(ctx, func() error {
		if !s.capture.Trigger() {
			return ErrCaptureRefused
		}
		return nil
	})
}

// SetAutoAttendance toggles automatic capture. Turning it off clears both
// polls before returning.
func (s *Session) SetAutoAttendance(ctx context.Context, on bool) error {
	return s.onLoop(ctx, func() error {
		s.capture.SetAutoAttendance(on)
		s.update(func(st *Status) { st.AutoAttendance = on })
		return nil
	})
}

func (s *Session) onLoop(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	sched := s.posts
	s.mu.Unlock()
	if sched == nil {
		return ErrNotRunning
	}

	res := make(chan error, 1)
	sched.Post(func() {
		if s.finish == nil {
			res <- ErrNotRunning
			return
		}
		res <- fn()
	})

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrNotRunning
	}
}

func (s *Session) update(fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

func (s *Session) emit(t events.Type, payload any) {
	now := time.Now()
	if s.sched != nil {
		now = s.sched.Now()
	}
	s.deps.Events.Publish(events.New(s.ID, t, now, payload))
}

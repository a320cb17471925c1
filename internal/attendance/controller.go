package attendance

import (
	"context"

	"github.com/sirupsen/logrus"

	"goodzwork-checkin/internal/loop"
	"goodzwork-checkin/models"
)

// Backend is the slice of the API client the controller needs.
type Backend interface {
	Submit(ctx context.Context, kind models.AttendanceType, req models.AttendanceRequest) (*models.AttendanceResult, error)
	Today(ctx context.Context) (*models.TodayStatus, error)
	Logs(ctx context.Context, startDate, endDate string) ([]models.AttendanceLog, error)
}

// Gate receives the controller's busy and feedback flags. The auto-capture
// machine implements it.
type Gate interface {
	SetProcessing(bool)
	SetFeedbackShown(bool)
}

type Hooks struct {
	OnSubmit          func(kind models.AttendanceType)
	OnSuccess         func(result *models.AttendanceResult)
	OnFeedback        func(fb models.AttendanceFeedback)
	OnFeedbackCleared func()
	OnToday           func(status *models.TodayStatus)
	OnLogs            func(logs []models.AttendanceLog)
}

// Controller turns captures into check-in/check-out submissions. At most one
// submission is in flight. All methods must run on the loop.
type Controller struct {
	ctx     context.Context
	backend Backend
	gate    Gate
	sched   loop.Scheduler
	cfg     models.FeedbackConfig
	hooks   Hooks
	log     logrus.FieldLogger

	position   *models.GeoPosition
	today      *models.TodayStatus
	processing bool
	feedback   *models.AttendanceFeedback
	lastResult *models.AttendanceResult
	stopClear  loop.Cancel
}

func NewController(ctx context.Context, backend Backend, gate Gate, sched loop.Scheduler, cfg models.FeedbackConfig, hooks Hooks, log logrus.FieldLogger) *Controller {
	return &Controller{
		ctx:     ctx,
		backend: backend,
		gate:    gate,
		sched:   sched,
		cfg:     cfg,
		hooks:   hooks,
		log:     log,
	}
}

func (c *Controller) SetPosition(pos models.GeoPosition) { c.position = &pos }

func (c *Controller) SetToday(status *models.TodayStatus) { c.today = status }

func (c *Controller) Processing() bool { return c.processing }

func (c *Controller) Feedback() *models.AttendanceFeedback { return c.feedback }

func (c *Controller) LastResult() *models.AttendanceResult { return c.lastResult }

func (c *Controller) Today() *models.TodayStatus { return c.today }

// NextType is check-out when today's record has a check-in without a
// check-out, check-in otherwise.
func (c *Controller) NextType() models.AttendanceType {
	if c.today == nil {
		return models.CheckIn
	}
	return c.today.NextType()
}

// OnCapture submits the capture. It returns false when the capture was
// dropped because a submission is already in flight.
func (c *Controller) OnCapture(capture models.CaptureResult) bool {
	if c.processing {
		c.log.Debug("⏭️  Submission in flight, dropping capture")
		return false
	}
	if c.position == nil {
		c.showFeedback(models.AttendanceFeedback{
			Kind:    models.FeedbackError,
			Reason:  models.ReasonGeneric,
			Message: "Chưa xác định được vị trí",
		})
		return false
	}

	kind := c.NextType()
	req := models.AttendanceRequest{
		Latitude:  c.position.Latitude,
		Longitude: c.position.Longitude,
		Accuracy:  c.position.Accuracy,
		FaceImage: capture.Image,
	}

	c.setProcessing(true)
	if c.hooks.OnSubmit != nil {
		c.hooks.OnSubmit(kind)
	}
	c.log.Infof("📤 Submitting %s", kind)

	ctx := c.ctx
	c.sched.Go(func() func() {
		result, err := c.backend.Submit(ctx, kind, req)
		if err != nil {
			return func() { c.onFailure(kind, err) }
		}

		// Status reads after a recorded attendance are best effort.
		today, todayErr := c.backend.Today(ctx)
		logs, logsErr := c.backend.Logs(ctx, "", "")
		return func() {
			if todayErr != nil {
				c.log.Warnf("⚠️  Failed to refresh today status: %v", todayErr)
			}
			if logsErr != nil {
				c.log.Warnf("⚠️  Failed to refresh attendance logs: %v", logsErr)
			}
			c.onSuccess(result, today, logs, logsErr == nil)
		}
	})
	return true
}

func (c *Controller) onSuccess(result *models.AttendanceResult, today *models.TodayStatus, logs []models.AttendanceLog, logsOK bool) {
	c.lastResult = result
	c.log.Infof("✅ %s recorded for %s at %s (%s)", result.Type, result.UserName, result.Time, result.Status)

	if today != nil {
		c.today = today
		if c.hooks.OnToday != nil {
			c.hooks.OnToday(today)
		}
	}
	if logsOK && c.hooks.OnLogs != nil {
		c.hooks.OnLogs(logs)
	}

	c.ClearFeedback()
	c.setProcessing(false)

	if c.hooks.OnSuccess != nil {
		c.hooks.OnSuccess(result)
	}
}

func (c *Controller) onFailure(kind models.AttendanceType, err error) {
	fb := Classify(err)
	c.log.Warnf("❌ %s failed (%s): %v", kind, fb.Reason, err)

	// Feedback goes up before processing drops so capture stays disarmed.
	c.showFeedback(fb)
	c.setProcessing(false)
}

func (c *Controller) showFeedback(fb models.AttendanceFeedback) {
	if c.stopClear != nil {
		c.stopClear()
	}
	c.feedback = &fb
	c.gate.SetFeedbackShown(true)
	if c.hooks.OnFeedback != nil {
		c.hooks.OnFeedback(fb)
	}
	c.stopClear = c.sched.After(c.cfg.DisplayWindow, c.ClearFeedback)
}

// ClearFeedback hides the current feedback and re-enables capture.
func (c *Controller) ClearFeedback() {
	if c.stopClear != nil {
		c.stopClear()
		c.stopClear = nil
	}
	if c.feedback == nil {
		return
	}
	c.feedback = nil
	c.gate.SetFeedbackShown(false)
	if c.hooks.OnFeedbackCleared != nil {
		c.hooks.OnFeedbackCleared()
	}
}

func (c *Controller) setProcessing(on bool) {
	c.processing = on
	c.gate.SetProcessing(on)
}

package presence

import (
	"time"

	"github.com/sirupsen/logrus"

	"goodzwork-checkin/internal/loop"
	"goodzwork-checkin/models"
)

// ============================================================
// STATE
// ============================================================

type State int

const (
	Idle State = iota
	Acquiring
	Captured
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Captured:
		return "captured"
	default:
		return "unknown"
	}
}

type Probe interface {
	Present() bool
}

type ProbeFunc func() bool

func (f ProbeFunc) Present() bool { return f() }

type Snapshotter interface {
	Snapshot() (models.CaptureResult, error)
}

type SnapshotFunc func() (models.CaptureResult, error)

func (f SnapshotFunc) Snapshot() (models.CaptureResult, error) { return f() }

// Hooks are invoked on the loop. OnCapture may change Conditions.
type Hooks struct {
	OnState    func(State)
	OnProgress func(float64)
	OnCapture  func(models.CaptureResult)
}

// Conditions gate the whole machine. Any of them failing forces Idle with
// no timers.
type Conditions struct {
	AutoAttendance bool
	Processing     bool
	ModelReady     bool
	FeedbackShown  bool
}

func (c Conditions) Armed() bool {
	return c.AutoAttendance && !c.Processing && c.ModelReady && !c.FeedbackShown
}

// ============================================================
// AUTO CAPTURE
// ============================================================

// AutoCapture owns the sampling poll and the progress poll. Every exit from
// Acquiring goes through stopTimers. All methods must run on the loop.
type AutoCapture struct {
	cfg   models.PresenceConfig
	sched loop.Scheduler
	probe Probe
	snap  Snapshotter
	hooks Hooks
	log   logrus.FieldLogger

	cond      Conditions
	state     State
	startedAt time.Time
	misses    int
	progress  float64
	captures  int

	stopSampling loop.Cancel
	stopProgress loop.Cancel
}

func NewAutoCapture(cfg models.PresenceConfig, sched loop.Scheduler, probe Probe, snap Snapshotter, hooks Hooks, log logrus.FieldLogger) *AutoCapture {
	return &AutoCapture{
		cfg:   cfg,
		sched: sched,
		probe: probe,
		snap:  snap,
		hooks: hooks,
		log:   log,
		cond:  Conditions{AutoAttendance: cfg.AutoAttendance},
	}
}

func (a *AutoCapture) State() State { return a.state }

func (a *AutoCapture) Progress() float64 { return a.progress }

func (a *AutoCapture) Captures() int { return a.captures }

func (a *AutoCapture) Conditions() Conditions { return a.cond }

func (a *AutoCapture) Misses() int { return a.misses }

func (a *AutoCapture) StartedAt() time.Time { return a.startedAt }

// ActiveTimers counts the polls currently owned by the machine.
func (a *AutoCapture) ActiveTimers() int {
	n := 0
	if a.stopSampling != nil {
		n++
	}
	if a.stopProgress != nil {
		n++
	}
	return n
}

// Update mutates the gating conditions and reconciles synchronously.
func (a *AutoCapture) Update(fn func(*Conditions)) {
	fn(&a.cond)
	a.reconcile()
}

func (a *AutoCapture) SetAutoAttendance(on bool) {
	a.Update(func(c *Conditions) { c.AutoAttendance = on })
}

func (a *AutoCapture) SetProcessing(on bool) {
	a.Update(func(c *Conditions) { c.Processing = on })
}

func (a *AutoCapture) SetModelReady(on bool) {
	a.Update(func(c *Conditions) { c.ModelReady = on })
}

func (a *AutoCapture) SetFeedbackShown(on bool) {
	a.Update(func(c *Conditions) { c.FeedbackShown = on })
}

func (a *AutoCapture) reconcile() {
	if !a.cond.Armed() {
		a.Stop()
		return
	}
	if a.state == Idle && a.stopSampling == nil {
		a.Start()
	}
}

// Start arms the sampling poll. It is a no-op while already sampling.
func (a *AutoCapture) Start() {
	if a.stopSampling != nil {
		return
	}
	a.log.Debug("⏳ Scanning for faces...")
	a.stopSampling = a.sched.Every(a.cfg.SampleInterval, a.onSampleTick)
}

// Stop clears both polls and resets to Idle with zero progress.
func (a *AutoCapture) Stop() {
	a.stopTimers()
	a.resetToIdle()
}

func (a *AutoCapture) stopTimers() {
	if a.stopProgress != nil {
		a.stopProgress()
		a.stopProgress = nil
	}
	if a.stopSampling != nil {
		a.stopSampling()
		a.stopSampling = nil
	}
}

func (a *AutoCapture) resetToIdle() {
	a.misses = 0
	a.startedAt = time.Time{}
	if a.progress != 0 {
		a.progress = 0
		a.emitProgress()
	}
	a.setState(Idle)
}

func (a *AutoCapture) onSampleTick() {
	present := a.probe.Present()

	switch a.state {
	case Idle:
		if !present {
			return
		}
		a.startedAt = a.sched.Now()
		a.misses = 0
		a.progress = 0
		a.setState(Acquiring)
		a.stopProgress = a.sched.Every(a.cfg.ProgressInterval, a.onProgressTick)

	case Acquiring:
		if present {
			a.misses = 0
			return
		}
		a.misses++
		if a.misses > a.cfg.MaxMisses {
			a.log.Debugf("👻 Face lost for %d samples, restarting", a.misses)
			if a.stopProgress != nil {
				a.stopProgress()
				a.stopProgress = nil
			}
			a.resetToIdle()
		}
	}
}

func (a *AutoCapture) onProgressTick() {
	if a.state != Acquiring {
		return
	}

	elapsed := a.sched.Now().Sub(a.startedAt)
	progress := float64(elapsed) / float64(a.cfg.TargetHold)
	if progress > 1 {
		progress = 1
	}
	a.progress = progress
	a.emitProgress()

	if progress < 1 {
		return
	}

	a.stopTimers()
	a.capture()
}

func (a *AutoCapture) capture() {
	result, err := a.snap.Snapshot()
	if err != nil {
		a.log.Warnf("⚠️  Snapshot failed: %v", err)
		a.resetToIdle()
		a.reconcile()
		return
	}

	a.captures++
	a.setState(Captured)
	a.log.Infof("📸 Face held for %v, captured %dx%d", a.cfg.TargetHold, result.Width, result.Height)

	if a.hooks.OnCapture != nil {
		a.hooks.OnCapture(result)
	}
}

// Trigger captures immediately, bypassing presence confirmation. It refuses
// while a submission or feedback is pending.
func (a *AutoCapture) Trigger() bool {
	if a.cond.Processing || a.cond.FeedbackShown {
		return false
	}
	before := a.captures
	a.stopTimers()
	a.capture()
	return a.captures > before
}

func (a *AutoCapture) setState(s State) {
	if a.state == s {
		return
	}
	a.state = s
	if a.hooks.OnState != nil {
		a.hooks.OnState(s)
	}
}

func (a *AutoCapture) emitProgress() {
	if a.hooks.OnProgress != nil {
		a.hooks.OnProgress(a.progress)
	}
}

package events

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// ============================================================
// CONSOLE
// ============================================================

// Console renders the hold progress as a terminal bar and logs the other
// events.
type Console struct {
	out io.Writer
	log logrus.FieldLogger

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func NewConsole(out io.Writer, log logrus.FieldLogger) *Console {
	return &Console{out: out, log: log}
}

func (c *Console) Publish(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch p := e.Payload.(type) {
	case ProgressPayload:
		c.progress(p.Progress)
		return
	case StatePayload:
		if p.State == "idle" {
			c.resetBar()
		}
		c.log.Debugf("👁️  Presence: %s", p.State)
		return
	}

	entry := c.log.WithField("event", string(e.Type))
	switch e.Type {
	case TypeFeedback:
		entry.Warnf("⚠️  %+v", e.Payload)
	case TypeSessionEnded:
		c.resetBar()
		entry.Infof("🏁 %+v", e.Payload)
	default:
		entry.Debugf("%+v", e.Payload)
	}
}

func (c *Console) progress(p float64) {
	if p <= 0 {
		c.resetBar()
		return
	}
	if c.bar == nil {
		c.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(c.out),
			progressbar.OptionSetDescription("📸 Giữ yên khuôn mặt"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = c.bar.Set(int(p * 100))
}

func (c *Console) resetBar() {
	if c.bar == nil {
		return
	}
	_ = c.bar.Clear()
	c.bar = nil
}

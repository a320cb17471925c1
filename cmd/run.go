package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"goodzwork-checkin/internal/camera"
	"goodzwork-checkin/internal/checkin"
	"goodzwork-checkin/internal/config"
	"goodzwork-checkin/internal/events"
	"goodzwork-checkin/internal/logging"
	"goodzwork-checkin/internal/web"
	"goodzwork-checkin/models"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the attendance kiosk",
	Long: `Run attendance attempts back to back. Each attempt checks the position,
loads the face detector, waits for a steady centered face and submits the
capture. The HTTP server exposes status, controls, the event stream and
WHIP ingest while the kiosk runs.`,
	RunE: runKiosk,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("once", false, "Exit after a single attempt; non-success exits non-zero")
	runCmd.Flags().Duration("cooldown", 5*time.Second, "Pause between attempts")
	runCmd.Flags().String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	runCmd.Flags().String("camera", "", "Frame source: webcam or webrtc (overrides CAMERA_SOURCE)")
	runCmd.Flags().Bool("auto", true, "Start with auto-attendance enabled")
}

// sessionHolder publishes the running attempt to the HTTP handlers.
type sessionHolder struct {
	mu   sync.Mutex
	sess *checkin.Session
}

func (h *sessionHolder) set(s *checkin.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sess = s
}

func (h *sessionHolder) get() web.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess == nil {
		return nil
	}
	return h.sess
}

func runKiosk(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	once, _ := cmd.Flags().GetBool("once")
	cooldown, _ := cmd.Flags().GetDuration("cooldown")
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if src, _ := cmd.Flags().GetString("camera"); src != "" {
		cfg.Camera.Source = src
	}
	if cmd.Flags().Changed("auto") {
		cfg.Presence.AutoAttendance, _ = cmd.Flags().GetBool("auto")
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newAgent(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := events.NewHub(logging.Component(log, "ws"))
	defer hub.Close()

	publishers := events.Multi{hub}
	if cfg.Events.Console {
		publishers = append(publishers, events.NewConsole(os.Stderr, logging.Component(log, "console")))
	}

	pubCtx, stopPublishing := context.WithCancel(context.Background())
	var rabbit *events.RabbitMQ
	if cfg.Events.RabbitMQURL != "" {
		rabbit = events.NewRabbitMQ(cfg.Events, logging.Component(log, "rabbitmq"))
		go rabbit.Run(pubCtx)
		publishers = append(publishers, rabbit)
	}

	var current sessionHolder
	opts := web.Options{
		Addr:    cfg.HTTP.Addr,
		Current: current.get,
		Events:  hub,
	}
	if a.ingest != nil {
		opts.Ingest = a.ingest
	}
	srv := web.NewServer(opts, logging.Component(log, "http"))
	go func() {
		if err := srv.Start(); err != nil {
			log.Errorf("❌ %v", err)
			stop()
		}
	}()

	deps := checkin.Deps{
		Backend:      a.api,
		Gate:         a.gate,
		LoadDetector: a.loadDetector,
		OpenCamera:   a.openCamera,
		Encoder:      camera.NewEncoder(cfg.Camera.MaxStillSide, cfg.Face.JPEGQuality, logging.Component(log, "camera")),
		Events:       publishers,
	}

	log.Info("✅ Kiosk started")
	log.Infof("   - API: %s", cfg.API.BaseURL)
	log.Infof("   - Locator: %s, geofence: %s", cfg.Location.Locator, cfg.Location.Geofence)
	log.Infof("   - Camera: %s", cfg.Camera.Source)
	log.Infof("   - Min face size: %dpx", cfg.Face.MinFaceSize)
	log.Info("   Press Ctrl+C to stop")

	var lastErr error
	for {
		sess := checkin.NewSession(cfg, deps, log)
		current.set(sess)

		result, err := sess.Run(ctx)
		report(cmd.OutOrStdout(), result, err)
		lastErr = err

		if once || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(cooldown):
		}
		if ctx.Err() != nil {
			break
		}
	}

	log.Info("⚠️  Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("⚠️  %v", err)
	}

	stopPublishing()
	if rabbit != nil {
		<-rabbit.Done()
	}
	log.Info("✅ Done!")

	if once && lastErr != nil && !errors.Is(lastErr, context.Canceled) {
		return lastErr
	}
	return nil
}

func report(out io.Writer, result *models.AttendanceResult, err error) {
	if err == nil && result != nil {
		fmt.Fprintf(out, "✅ %s\n", result.Message)
		fmt.Fprintf(out, "   %s: %s lúc %s (%s)\n", result.Type, result.UserName, result.Time, result.Status)
		if result.Confidence != "" {
			fmt.Fprintf(out, "   Độ tin cậy: %s\n", result.Confidence)
		}
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	fmt.Fprintf(out, "❌ %s\n", userMessage(err))
}
